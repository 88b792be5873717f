package auth

import (
	"net/http"

	"github.com/elskow/userauth/internal/api"
)

type Decision int

const (
	Allow Decision = iota
	RedirectToProfile
	RedirectToLogin
)

// Guard decides page access from the path and whether a session cookie is
// present. Public pages send signed-in visitors to the profile; every other
// page sends anonymous visitors to login.
func Guard(path string, hasSession bool) Decision {
	public := api.PublicPages[path]
	switch {
	case public && hasSession:
		return RedirectToProfile
	case !public && !hasSession:
		return RedirectToLogin
	default:
		return Allow
	}
}

// RouteGuard applies Guard to page requests. It only checks that the
// session cookie is present and non-empty: an expired or forged cookie
// passes here and is rejected later by WhoAmI, which is the authoritative
// check. Do not use it to protect data.
type RouteGuard struct {
	cookies *CookieJar
}

func NewRouteGuard(cookies *CookieJar) *RouteGuard {
	return &RouteGuard{cookies: cookies}
}

func (g *RouteGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch Guard(r.URL.Path, g.cookies.Token(r) != "") {
		case RedirectToProfile:
			http.Redirect(w, r, api.PageProfile, http.StatusTemporaryRedirect)
		case RedirectToLogin:
			http.Redirect(w, r, api.PageLogin, http.StatusTemporaryRedirect)
		default:
			next.ServeHTTP(w, r)
		}
	})
}
