// Package middleware holds the HTTP middleware of the API: bearer
// authentication, role gates, rate limiting and request metrics.
package middleware

import (
	"net/http"
	"strings"

	"layoutaria/internal/platform/apperr"
	"layoutaria/internal/platform/httpx"
	userdomain "layoutaria/internal/user/domain"
)

const bearerPrefix = "bearer "

// Authenticator resolves an access token to the actor it was issued for.
type Authenticator interface {
	Authenticate(accessToken string) (userdomain.Actor, error)
}

var (
	errMissingBearer = apperr.Unauthorized("Missing Bearer token")
	errAdminOnly     = apperr.Forbidden("Insufficient permissions")
)

// Authenticate rejects requests without a valid access token and stores the
// caller in the request context.
func Authenticate(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				httpx.Error(w, r, errMissingBearer)
				return
			}
			actor, err := auth.Authenticate(token)
			if err != nil {
				httpx.Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// OptionalAuthenticate stores the caller when a valid token is presented and
// otherwise continues anonymously.
func OptionalAuthenticate(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := extractBearer(r); token != "" {
				if actor, err := auth.Authenticate(token); err == nil {
					r = r.WithContext(WithActor(r.Context(), actor))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin allows only admins through. It must run after Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ActorFrom(r.Context()).IsAdmin() {
			httpx.Error(w, r, errAdminOnly)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractBearer returns the token of an "Authorization: Bearer <token>" header, or "".
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
