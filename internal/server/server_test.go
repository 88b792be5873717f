package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elskow/userauth/internal/auth"
	"github.com/elskow/userauth/internal/config"
	"github.com/elskow/userauth/internal/mailer"
	"github.com/elskow/userauth/internal/metrics"
)

type discardMailer struct{}

func (discardMailer) SendVerificationEmail(context.Context, string, string, string) error {
	return nil
}

func (discardMailer) SendPasswordResetEmail(context.Context, string, string, string) error {
	return nil
}

func setupTestServer(t *testing.T) *Server {
	t.Helper()

	staticDir := t.TempDir()
	for _, name := range []string{"index", "login", "signup", "profile", "verifyemail", "resetpassword"} {
		require.NoError(t, os.WriteFile(filepath.Join(staticDir, name+".html"), []byte("<h1>"+name+"</h1>"), 0644))
	}

	cfg := &config.AppConfig{
		Env: EnvTesting,
		Server: config.ServerConfig{
			Port:           "0",
			StaticDir:      staticDir,
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		Auth: config.AuthConfig{
			JWTSecret:       "test-secret",
			TokenExpiration: 24 * time.Hour,
			CookieName:      "token",
			BcryptCost:      4,
			VerifyTokenTTL:  time.Hour,
			ResetTokenTTL:   time.Hour,
		},
		Metrics: config.MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}

	log := zap.NewNop()
	m := metrics.New()
	cookies := auth.NewCookieJar(&cfg.Auth)
	svc := auth.NewService(&cfg.Auth, log, auth.NewMemoryRepository(), discardMailer{}, auth.WithEventRecorder(m))
	mw := auth.NewAuthMiddleware(svc, cookies)
	dispatcher := mailer.NewDispatcher(&config.MailConfig{Workers: 1, QueueSize: 1}, mailer.NewLogSender(log), log, m)

	return NewServer(Params{
		Config:      cfg,
		Logger:      log,
		AuthHandler: auth.NewHandler(svc, cookies, mw, log),
		RouteGuard:  auth.NewRouteGuard(cookies),
		MailHandler: mailer.NewHandler(dispatcher),
		Metrics:     m,
	})
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	s := setupTestServer(t)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_Pages(t *testing.T) {
	tests := []struct {
		name         string
		path         string
		withCookie   bool
		wantStatus   int
		wantLocation string
		wantBody     string
	}{
		{name: "home anonymous", path: "/", wantStatus: http.StatusOK, wantBody: "index"},
		{name: "home signed in", path: "/", withCookie: true, wantStatus: http.StatusTemporaryRedirect, wantLocation: "/profile"},
		{name: "login signed in", path: "/login", withCookie: true, wantStatus: http.StatusTemporaryRedirect, wantLocation: "/profile"},
		{name: "signup anonymous", path: "/signup", wantStatus: http.StatusOK, wantBody: "signup"},
		{name: "profile anonymous", path: "/profile", wantStatus: http.StatusTemporaryRedirect, wantLocation: "/login"},
		{name: "profile signed in", path: "/profile", withCookie: true, wantStatus: http.StatusOK, wantBody: "profile"},
		{name: "verifyemail anonymous", path: "/verifyemail", wantStatus: http.StatusOK, wantBody: "verifyemail"},
		{name: "resetpassword signed in", path: "/resetpassword", withCookie: true, wantStatus: http.StatusOK, wantBody: "resetpassword"},
	}

	s := setupTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.withCookie {
				req.AddCookie(&http.Cookie{Name: "token", Value: "anything"})
			}

			rec := serve(s, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantLocation != "" {
				assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			}
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestServer_SessionFlow(t *testing.T) {
	s := setupTestServer(t)

	body := `{"userName":"alice","email":"alice@example.com","password":"secret123"}`
	rec := serve(s, httptest.NewRequest(http.MethodPost, "/users/signup", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	body = `{"email":"alice@example.com","password":"secret123"}`
	rec = serve(s, httptest.NewRequest(http.MethodPost, "/users/login", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "token" {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)
	assert.Equal(t, 86400, session.MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.AddCookie(session)
	rec = serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var me struct {
		Data auth.Account `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "alice", me.Data.UserName)
	assert.False(t, me.Data.IsVerified)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/users/logout", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Empty(t, cleared[0].Value)

	req = httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: cleared[0].Value})
	rec = serve(s, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	s := setupTestServer(t)

	serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "userauth_http_requests_total")
	assert.Contains(t, rec.Body.String(), `route="/healthz"`)
}

func TestServer_CORS(t *testing.T) {
	s := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := serve(s, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestServer_UnknownRoute(t *testing.T) {
	s := setupTestServer(t)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="unmatched",status="404"`)
}

func TestServer_MailJobRoute(t *testing.T) {
	s := setupTestServer(t)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/mail/jobs/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Mail job not found")
}
