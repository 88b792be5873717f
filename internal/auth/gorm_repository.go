package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// userRecord is the relational row of a user.
type userRecord struct {
	ID           string `gorm:"primaryKey;type:uuid"`
	UserName     string `gorm:"column:user_name;uniqueIndex;not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	IsVerified   bool   `gorm:"default:false"`
	IsAdmin      bool   `gorm:"default:false"`

	VerifyToken       *string
	VerifyTokenExpiry *time.Time

	ForgotPasswordToken  *string
	ForgotPasswordExpiry *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (userRecord) TableName() string {
	return "users"
}

func (r *userRecord) toUser() *User {
	u := &User{
		ID:                   r.ID,
		UserName:             r.UserName,
		Email:                r.Email,
		PasswordHash:         r.PasswordHash,
		IsVerified:           r.IsVerified,
		IsAdmin:              r.IsAdmin,
		VerifyTokenExpiry:    r.VerifyTokenExpiry,
		ForgotPasswordExpiry: r.ForgotPasswordExpiry,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
	if r.VerifyToken != nil {
		u.VerifyTokenHash = *r.VerifyToken
	}
	if r.ForgotPasswordToken != nil {
		u.ForgotPasswordTokenHash = *r.ForgotPasswordToken
	}
	return u
}

type gormRepository struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewGormRepository stores users in the users table. The schema is owned by
// the goose migrations; db must be opened with TranslateError so unique
// violations surface as gorm.ErrDuplicatedKey.
func NewGormRepository(db *gorm.DB, timeout time.Duration) Repository {
	return &gormRepository{db: db, timeout: timeout}
}

func (r *gormRepository) CreateUser(ctx context.Context, user *User) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rec := userRecord{
		ID:           uuid.NewString(),
		UserName:     user.UserName,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		IsVerified:   user.IsVerified,
		IsAdmin:      user.IsAdmin,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUserExists
		}
		return fmt.Errorf("error inserting user: %w", err)
	}

	user.ID = rec.ID
	user.CreatedAt = rec.CreatedAt
	user.UpdatedAt = rec.UpdatedAt
	return nil
}

func (r *gormRepository) GetUserByID(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrUserNotFound
	}
	return r.first(ctx, "id = ?", id)
}

func (r *gormRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *gormRepository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return r.first(ctx, "user_name = ?", username)
}

func (r *gormRepository) GetUserByVerifyToken(ctx context.Context, tokenHash string, now time.Time) (*User, error) {
	return r.first(ctx, "verify_token = ? AND verify_token_expiry > ?", tokenHash, now)
}

func (r *gormRepository) GetUserByResetToken(ctx context.Context, tokenHash string, now time.Time) (*User, error) {
	return r.first(ctx, "forgot_password_token = ? AND forgot_password_expiry > ?", tokenHash, now)
}

func (r *gormRepository) SetVerifyToken(ctx context.Context, userID, tokenHash string, expiry time.Time) error {
	return r.update(ctx, userID, map[string]any{
		"verify_token":        tokenHash,
		"verify_token_expiry": expiry,
	})
}

func (r *gormRepository) SetResetToken(ctx context.Context, userID, tokenHash string, expiry time.Time) error {
	return r.update(ctx, userID, map[string]any{
		"forgot_password_token":  tokenHash,
		"forgot_password_expiry": expiry,
	})
}

func (r *gormRepository) MarkEmailVerified(ctx context.Context, userID string) error {
	return r.update(ctx, userID, map[string]any{
		"is_verified":         true,
		"verify_token":        nil,
		"verify_token_expiry": nil,
	})
}

func (r *gormRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	return r.update(ctx, userID, map[string]any{
		"password_hash":          passwordHash,
		"forgot_password_token":  nil,
		"forgot_password_expiry": nil,
	})
}

func (r *gormRepository) first(ctx context.Context, query string, args ...any) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rec userRecord
	if err := r.db.WithContext(ctx).Where(query, args...).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("error retrieving user: %w", err)
	}
	return rec.toUser(), nil
}

func (r *gormRepository) update(ctx context.Context, userID string, fields map[string]any) error {
	if _, err := uuid.Parse(userID); err != nil {
		return ErrUserNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res := r.db.WithContext(ctx).Model(&userRecord{}).Where("id = ?", userID).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("error updating user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
