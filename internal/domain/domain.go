// Package domain holds the wire and storage types shared across the
// authentication actor and the store repository: spec.md §3's "User
// Credentials", "User Auth Row", and sentinel domain errors.
package domain

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate runs struct-tag validation (the "required" tags on
// Credentials) the same way the teacher's handlers call
// validator.New().Struct(req) before invoking business logic.
func Validate(v interface{}) error {
	return validate.Struct(v)
}

// Sentinel errors surfaced at the actor/response boundary.
var (
	ErrAlreadyExists  = errors.New("account already exists")
	ErrBadCredentials = errors.New("bad credentials")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not found")
)

// Credentials is the wire shape POSTed to /users/register and /users/login.
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthRow is the persisted auth-table record: spec.md §3 "User Auth Row".
type AuthRow struct {
	UserID       string
	Username     string
	PasswordHash string
}
