package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/elskow/userauth/internal/config"
)

// EmailSender delivers the links that carry one-time tokens. Implementations
// may deliver asynchronously; a nil error means the message was accepted.
type EmailSender interface {
	SendVerificationEmail(ctx context.Context, email, userName, token string) error
	SendPasswordResetEmail(ctx context.Context, email, userName, token string) error
}

// EventRecorder counts auth flow outcomes.
type EventRecorder interface {
	RecordAuthEvent(event, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) RecordAuthEvent(string, string) {}

type Service struct {
	config     *config.AuthConfig
	log        *zap.Logger
	repository Repository
	mailer     EmailSender
	events     EventRecorder
	now        func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithEventRecorder(r EventRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.events = r
		}
	}
}

func NewService(config *config.AuthConfig, log *zap.Logger, repo Repository, mailer EmailSender, opts ...Option) *Service {
	s := &Service{
		config:     config,
		log:        log,
		repository: repo,
		mailer:     mailer,
		events:     noopRecorder{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// maxPasswordBytes is the bcrypt input limit. Longer candidates are
// rejected rather than truncated.
const maxPasswordBytes = 72

func (s *Service) HashPassword(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", &ValidationError{Field: "password", Message: "must be at most 72 bytes"}
	}
	cost := s.config.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(bytes), err
}

func (s *Service) CheckPasswordHash(password, hash string) bool {
	if len(password) > maxPasswordBytes {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Signup creates an unverified account and starts email verification.
// A verification failure is logged and does not undo the account.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*Account, error) {
	if err := ValidateRequest(&req); err != nil {
		s.events.RecordAuthEvent("signup", "invalid")
		return nil, err
	}

	if err := s.ensureAvailable(ctx, req.Email, req.UserName); err != nil {
		if errors.Is(err, ErrUserExists) {
			s.events.RecordAuthEvent("signup", "conflict")
		}
		return nil, err
	}

	hashedPassword, err := s.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		UserName:     req.UserName,
		Email:        req.Email,
		PasswordHash: hashedPassword,
	}
	if err := s.repository.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrUserExists) {
			s.events.RecordAuthEvent("signup", "conflict")
		}
		return nil, err
	}

	s.log.Info("user created", zap.String("user_id", user.ID), zap.String("username", user.UserName))
	s.events.RecordAuthEvent("signup", "success")

	if err := s.issueVerification(ctx, user); err != nil {
		s.log.Error("failed to start email verification",
			zap.String("user_id", user.ID),
			zap.Error(err))
	}

	return user.Account(s.now()), nil
}

// ensureAvailable reports ErrUserExists when the email or the username is
// taken. The unique indexes still decide a racing insert.
func (s *Service) ensureAvailable(ctx context.Context, email, userName string) error {
	if _, err := s.repository.GetUserByEmail(ctx, email); err == nil {
		return ErrUserExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	if _, err := s.repository.GetUserByUsername(ctx, userName); err == nil {
		return ErrUserExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}
	return nil
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      AccountSummary
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if err := ValidateRequest(&req); err != nil {
		return nil, err
	}

	user, err := s.repository.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.HashPassword("dummy") // Prevent timing attacks
			s.events.RecordAuthEvent("login", "not_found")
		}
		return nil, err
	}

	if !s.CheckPasswordHash(req.Password, user.PasswordHash) {
		s.events.RecordAuthEvent("login", "invalid_password")
		return nil, ErrInvalidPassword
	}

	token, expiresAt, err := s.GenerateToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	s.events.RecordAuthEvent("login", "success")
	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user.Summary(),
	}, nil
}

// WhoAmI resolves a session token to the account it was issued for.
func (s *Service) WhoAmI(ctx context.Context, token string) (*Account, error) {
	claims, err := s.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	user, err := s.repository.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	return user.Account(s.now()), nil
}

// RequestVerification issues a fresh verification token for the account,
// replacing any earlier one, and emails it.
func (s *Service) RequestVerification(ctx context.Context, userID string) error {
	user, err := s.repository.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	return s.issueVerification(ctx, user)
}

// issueVerification stores a new token hash on user and mails the token.
func (s *Service) issueVerification(ctx context.Context, user *User) error {
	token, hash, err := newOneTimeToken()
	if err != nil {
		return err
	}
	expiry := s.now().Add(s.config.VerifyTokenTTL)
	if err := s.repository.SetVerifyToken(ctx, user.ID, hash, expiry); err != nil {
		return fmt.Errorf("failed to store verification token: %w", err)
	}
	user.VerifyTokenHash = hash
	user.VerifyTokenExpiry = &expiry

	if err := s.mailer.SendVerificationEmail(ctx, user.Email, user.UserName, token); err != nil {
		s.events.RecordAuthEvent("verification_request", "mail_failed")
		return fmt.Errorf("failed to send verification email: %w", err)
	}

	s.events.RecordAuthEvent("verification_request", "success")
	return nil
}

// VerifyEmail consumes a verification token. It reports whether the account
// had already been verified, in which case nothing is changed.
func (s *Service) VerifyEmail(ctx context.Context, req VerifyEmailRequest) (alreadyVerified bool, err error) {
	if err := ValidateRequest(&req); err != nil {
		return false, err
	}

	user, err := s.repository.GetUserByVerifyToken(ctx, hashOneTimeToken(req.Token), s.now())
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.events.RecordAuthEvent("verify_email", "invalid_token")
			return false, ErrInvalidOrExpiredToken
		}
		return false, err
	}

	if user.VerificationState(s.now()) == Verified {
		s.events.RecordAuthEvent("verify_email", "already_verified")
		return true, nil
	}

	if err := s.repository.MarkEmailVerified(ctx, user.ID); err != nil {
		return false, err
	}

	s.log.Info("email verified", zap.String("user_id", user.ID))
	s.events.RecordAuthEvent("verify_email", "success")
	return false, nil
}

// RequestPasswordReset issues a reset token for the account owning the email.
func (s *Service) RequestPasswordReset(ctx context.Context, req ForgotPasswordRequest) error {
	if err := ValidateRequest(&req); err != nil {
		return err
	}

	user, err := s.repository.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return err
	}

	token, hash, err := newOneTimeToken()
	if err != nil {
		return err
	}
	expiry := s.now().Add(s.config.ResetTokenTTL)
	if err := s.repository.SetResetToken(ctx, user.ID, hash, expiry); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	if err := s.mailer.SendPasswordResetEmail(ctx, user.Email, user.UserName, token); err != nil {
		s.events.RecordAuthEvent("password_reset_request", "mail_failed")
		return fmt.Errorf("failed to send reset email: %w", err)
	}

	s.events.RecordAuthEvent("password_reset_request", "success")
	return nil
}

// ResetPassword consumes a reset token and replaces the password hash.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if err := ValidateRequest(&req); err != nil {
		return err
	}

	user, err := s.repository.GetUserByResetToken(ctx, hashOneTimeToken(req.Token), s.now())
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.events.RecordAuthEvent("password_reset", "invalid_token")
			return ErrInvalidOrExpiredToken
		}
		return err
	}

	hashedPassword, err := s.HashPassword(req.Password)
	if err != nil {
		return err
	}
	if err := s.repository.UpdatePassword(ctx, user.ID, hashedPassword); err != nil {
		return err
	}

	s.log.Info("password reset", zap.String("user_id", user.ID))
	s.events.RecordAuthEvent("password_reset", "success")
	return nil
}
