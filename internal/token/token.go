// Package token implements the spec's "signed-token primitive": HMAC
// encode/decode of a small claim set with expiry. Grounded on
// aras-group-co-aras-auth's internal/service.JWTService, generalized to
// the single User Info claim shape from spec.md §3 (no refresh tokens —
// spec.md has no refresh-token concept, only a single session token with
// a fixed expiry).
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalid is returned for any malformed, unsigned, or expired token.
var ErrInvalid = errors.New("invalid or expired token")

// Claims is the User Info token payload from spec.md §3.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Service mints and validates session tokens with a fixed HMAC secret.
type Service struct {
	secret []byte
	expiry time.Duration
}

// NewService builds a Service signing with secret and minting tokens that
// expire after expiryMinutes.
func NewService(secret string, expiryMinutes int) *Service {
	return &Service{
		secret: []byte(secret),
		expiry: time.Duration(expiryMinutes) * time.Minute,
	}
}

// Mint signs a new session token carrying userID and username, expiring
// expiry from now.
func (s *Service) Mint(userID, username string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a session token, returning its claims.
func (s *Service) Validate(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalid
	}
	return claims, nil
}
