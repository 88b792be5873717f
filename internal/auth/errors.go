package auth

import (
	"errors"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrUserNotFound          = errors.New("user not found")
	ErrUserExists            = errors.New("user already exists")
	ErrInvalidPassword       = errors.New("invalid password")
	ErrUnauthorized          = errors.New("authentication required")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
)

// ValidationError reports a rejected request field. It matches
// ErrValidation under errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + " " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
