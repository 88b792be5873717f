package auth

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// memoryRepository keeps users in process memory. It backs the "memory"
// database driver and the package tests.
type memoryRepository struct {
	users   map[string]*User
	byName  map[string]string
	byEmail map[string]string
	nextID  int
	mu      sync.RWMutex
}

func NewMemoryRepository() Repository {
	return &memoryRepository{
		users:   make(map[string]*User),
		byName:  make(map[string]string),
		byEmail: make(map[string]string),
	}
}

func (r *memoryRepository) CreateUser(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[user.UserName]; exists {
		return ErrUserExists
	}
	if _, exists := r.byEmail[user.Email]; exists {
		return ErrUserExists
	}

	r.nextID++
	now := time.Now()
	user.ID = strconv.Itoa(r.nextID)
	user.CreatedAt = now
	user.UpdatedAt = now

	// Clone the user to prevent external modifications
	stored := *user
	r.users[stored.ID] = &stored
	r.byName[stored.UserName] = stored.ID
	r.byEmail[stored.Email] = stored.ID
	return nil
}

func (r *memoryRepository) GetUserByID(_ context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(id)
}

func (r *memoryRepository) GetUserByEmail(_ context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(r.byEmail[email])
}

func (r *memoryRepository) GetUserByUsername(_ context.Context, username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(r.byName[username])
}

func (r *memoryRepository) GetUserByVerifyToken(_ context.Context, tokenHash string, now time.Time) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.VerifyTokenHash == tokenHash && u.VerifyTokenExpiry != nil && u.VerifyTokenExpiry.After(now) {
			return clone(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *memoryRepository) GetUserByResetToken(_ context.Context, tokenHash string, now time.Time) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.ForgotPasswordTokenHash == tokenHash && u.ForgotPasswordExpiry != nil && u.ForgotPasswordExpiry.After(now) {
			return clone(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *memoryRepository) SetVerifyToken(_ context.Context, userID, tokenHash string, expiry time.Time) error {
	return r.update(userID, func(u *User) {
		u.VerifyTokenHash = tokenHash
		u.VerifyTokenExpiry = &expiry
	})
}

func (r *memoryRepository) SetResetToken(_ context.Context, userID, tokenHash string, expiry time.Time) error {
	return r.update(userID, func(u *User) {
		u.ForgotPasswordTokenHash = tokenHash
		u.ForgotPasswordExpiry = &expiry
	})
}

func (r *memoryRepository) MarkEmailVerified(_ context.Context, userID string) error {
	return r.update(userID, func(u *User) {
		u.IsVerified = true
		u.VerifyTokenHash = ""
		u.VerifyTokenExpiry = nil
	})
}

func (r *memoryRepository) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	return r.update(userID, func(u *User) {
		u.PasswordHash = passwordHash
		u.ForgotPasswordTokenHash = ""
		u.ForgotPasswordExpiry = nil
	})
}

func (r *memoryRepository) lookup(id string) (*User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return clone(u), nil
}

func (r *memoryRepository) update(id string, fn func(*User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now()
	return nil
}

func clone(u *User) *User {
	c := *u
	return &c
}
