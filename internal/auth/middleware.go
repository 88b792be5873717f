package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/elskow/userauth/internal/config"
)

// Define a custom type for context keys
type contextKey string

const (
	// ClaimsContextKey is the key used to store the session claims in the context
	ClaimsContextKey contextKey = "claims"
)

type AuthMiddleware struct {
	service *Service
	cookies *CookieJar
}

func NewAuthMiddleware(service *Service, cookies *CookieJar) *AuthMiddleware {
	return &AuthMiddleware{
		service: service,
		cookies: cookies,
	}
}

// RequireSession rejects requests without a valid session cookie and
// stores the verified claims in the request context.
func (m *AuthMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.service.ValidateToken(m.cookies.Token(r))
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ClaimsContextKey, claims)))
	})
}

// Helper function to get the session claims from context
func GetClaimsFromContext(ctx context.Context) (*Claims, error) {
	claims, ok := ctx.Value(ClaimsContextKey).(*Claims)
	if !ok {
		return nil, errors.New("claims not found in context")
	}
	return claims, nil
}

// CookieJar reads and writes the session cookie.
type CookieJar struct {
	name   string
	maxAge time.Duration
	secure bool
}

func NewCookieJar(cfg *config.AuthConfig) *CookieJar {
	name := cfg.CookieName
	if name == "" {
		name = "token"
	}
	return &CookieJar{
		name:   name,
		maxAge: cfg.TokenExpiration,
		secure: cfg.CookieSecure,
	}
}

// Token returns the session cookie value, or "" when absent.
func (j *CookieJar) Token(r *http.Request) string {
	c, err := r.Cookie(j.name)
	if err != nil {
		return ""
	}
	return c.Value
}

func (j *CookieJar) Set(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     j.name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(j.maxAge / time.Second),
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear overwrites the session cookie with an empty, already expired one.
func (j *CookieJar) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     j.name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
