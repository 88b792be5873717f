package auth

import (
	"context"
	"time"
)

// Repository is the credential store. Implementations enforce uniqueness of
// UserName and Email and report violations as ErrUserExists; lookups that
// match nothing return ErrUserNotFound.
type Repository interface {
	// CreateUser inserts user and assigns its ID.
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// GetUserByVerifyToken returns the user holding tokenHash with an expiry after now.
	GetUserByVerifyToken(ctx context.Context, tokenHash string, now time.Time) (*User, error)
	// GetUserByResetToken returns the user holding tokenHash with an expiry after now.
	GetUserByResetToken(ctx context.Context, tokenHash string, now time.Time) (*User, error)

	// SetVerifyToken overwrites any previous verification token.
	SetVerifyToken(ctx context.Context, userID, tokenHash string, expiry time.Time) error
	// SetResetToken overwrites any previous password reset token.
	SetResetToken(ctx context.Context, userID, tokenHash string, expiry time.Time) error

	// MarkEmailVerified sets IsVerified and clears the verification token.
	MarkEmailVerified(ctx context.Context, userID string) error
	// UpdatePassword stores a new hash and clears the reset token.
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}
