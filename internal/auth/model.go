package auth

import (
	"time"
)

// User is the stored account record. PasswordHash and the token hashes
// never leave the service; handlers render Account or AccountSummary.
type User struct {
	ID           string
	UserName     string
	Email        string
	PasswordHash string
	IsVerified   bool
	IsAdmin      bool

	VerifyTokenHash   string
	VerifyTokenExpiry *time.Time

	ForgotPasswordTokenHash string
	ForgotPasswordExpiry    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Account is the redacted view of a User.
type Account struct {
	ID         string    `json:"id"`
	UserName   string    `json:"userName"`
	Email      string    `json:"email"`
	IsVerified bool      `json:"isVerified"`
	IsAdmin    bool      `json:"isAdmin"`
	CreatedAt  time.Time `json:"createdAt"`

	Verification VerificationState `json:"verification"`
}

// AccountSummary is what Login returns.
type AccountSummary struct {
	ID       string `json:"id"`
	UserName string `json:"userName"`
	Email    string `json:"email"`
}

// Account redacts u, with its verification state as of now.
func (u *User) Account(now time.Time) *Account {
	return &Account{
		ID:           u.ID,
		UserName:     u.UserName,
		Email:        u.Email,
		IsVerified:   u.IsVerified,
		IsAdmin:      u.IsAdmin,
		CreatedAt:    u.CreatedAt,
		Verification: u.VerificationState(now),
	}
}

func (u *User) Summary() AccountSummary {
	return AccountSummary{
		ID:       u.ID,
		UserName: u.UserName,
		Email:    u.Email,
	}
}

type VerificationState int

const (
	Unverified VerificationState = iota
	PendingVerification
	Verified
)

func (s VerificationState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s VerificationState) String() string {
	switch s {
	case PendingVerification:
		return "pending"
	case Verified:
		return "verified"
	default:
		return "unverified"
	}
}

// VerificationState derives the verification state at now. An expired
// pending token counts as Unverified.
func (u *User) VerificationState(now time.Time) VerificationState {
	if u.IsVerified {
		return Verified
	}
	if u.VerifyTokenHash != "" && u.VerifyTokenExpiry != nil && now.Before(*u.VerifyTokenExpiry) {
		return PendingVerification
	}
	return Unverified
}
