package middleware

import (
	"context"
	"net"
	"net/http"

	"layoutaria/internal/audit"
	userdomain "layoutaria/internal/user/domain"
)

type contextKey struct{ name string }

var actorKey = contextKey{"actor"}

// WithActor returns a context carrying the authenticated actor.
func WithActor(ctx context.Context, actor userdomain.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom returns the actor set by Authenticate or OptionalAuthenticate.
// Without one the zero (anonymous) actor is returned.
func ActorFrom(ctx context.Context) userdomain.Actor {
	a, _ := ctx.Value(actorKey).(userdomain.Actor)
	return a
}

// RequestInfo is the caller's ip and user agent for audit entries. It expects
// chi's RealIP to have run.
func RequestInfo(r *http.Request) audit.RequestInfo {
	return audit.RequestInfo{IP: ClientIP(r), UserAgent: r.UserAgent()}
}

// ClientIP is the remote address without its port.
func ClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
