// Package password wraps the bcrypt password-hash primitive the spec
// names as an out-of-scope collaborator. Adapted from
// aras-group-co-aras-auth's pkg/password.
package password

import "golang.org/x/crypto/bcrypt"

// DefaultCost is the bcrypt work factor used for every new hash.
const DefaultCost = 12

// Hash hashes a plaintext password with DefaultCost.
func Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether plaintext matches hashed. A mismatch is returned
// as a non-nil error (bcrypt.ErrMismatchedHashAndPassword), never a panic.
func Verify(hashed, plaintext string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext))
}
