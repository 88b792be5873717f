package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elskow/userauth/internal/config"
)

func newTestLogger(t *testing.T) *zap.Logger {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	return logger
}

func newTestConfig() *config.AuthConfig {
	return &config.AuthConfig{
		JWTSecret:       "test-secret-key",
		TokenExpiration: 24 * time.Hour,
		CookieName:      "token",
		BcryptCost:      4,
		VerifyTokenTTL:  time.Hour,
		ResetTokenTTL:   time.Hour,
	}
}

// testClock is a settable clock shared by the service under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentEmail struct {
	kind     string
	email    string
	userName string
	token    string
}

// mockMailer records the tokens it was asked to deliver.
type mockMailer struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (m *mockMailer) SendVerificationEmail(_ context.Context, email, userName, token string) error {
	return m.record("verification", email, userName, token)
}

func (m *mockMailer) SendPasswordResetEmail(_ context.Context, email, userName, token string) error {
	return m.record("reset", email, userName, token)
}

func (m *mockMailer) record(kind, email, userName, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentEmail{kind: kind, email: email, userName: userName, token: token})
	return nil
}

// lastToken returns the most recent token of kind sent to email.
func (m *mockMailer) lastToken(t *testing.T, kind, email string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].kind == kind && m.sent[i].email == email {
			return m.sent[i].token
		}
	}
	t.Fatalf("no %s email sent to %s", kind, email)
	return ""
}

func (m *mockMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type mockRecorder struct {
	mu     sync.Mutex
	events map[string]int
}

func (r *mockRecorder) RecordAuthEvent(event, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = make(map[string]int)
	}
	r.events[event+"/"+outcome]++
}

func (r *mockRecorder) count(event, outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[event+"/"+outcome]
}

type testEnv struct {
	svc      *Service
	repo     Repository
	mailer   *mockMailer
	clock    *testClock
	recorder *mockRecorder
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithRepo(t, NewMemoryRepository())
}

func newTestEnvWithRepo(t *testing.T, repo Repository) *testEnv {
	env := &testEnv{
		repo:     repo,
		mailer:   &mockMailer{},
		clock:    newTestClock(),
		recorder: &mockRecorder{},
	}
	env.svc = NewService(
		newTestConfig(),
		newTestLogger(t),
		repo,
		env.mailer,
		WithClock(env.clock.Now),
		WithEventRecorder(env.recorder),
	)
	return env
}

func newTestService(t *testing.T) *Service {
	return newTestEnv(t).svc
}

// signup registers alice and fails the test on error.
func (e *testEnv) signup(t *testing.T) *Account {
	t.Helper()
	account, err := e.svc.Signup(context.Background(), SignupRequest{
		UserName: "alice",
		Email:    "alice@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	return account
}

// failingRepository fails user lookups with err.
type failingRepository struct {
	Repository
	err error
}

func (r *failingRepository) GetUserByEmail(context.Context, string) (*User, error) {
	return nil, r.err
}

func (r *failingRepository) GetUserByID(context.Context, string) (*User, error) {
	return nil, r.err
}

var errStoreDown = errors.New("store unavailable")

// countingRepository counts CreateUser calls.
type countingRepository struct {
	Repository
	creates int
}

func (r *countingRepository) CreateUser(ctx context.Context, user *User) error {
	r.creates++
	return r.Repository.CreateUser(ctx, user)
}
