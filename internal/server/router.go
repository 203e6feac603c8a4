// Package server assembles the HTTP and gRPC servers.
package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	adminhandler "layoutaria/internal/admin/handler"
	adminservice "layoutaria/internal/admin/service"
	healthhandler "layoutaria/internal/health/handler"
	identityhandler "layoutaria/internal/identity/handler"
	identityservice "layoutaria/internal/identity/service"
	layouthandler "layoutaria/internal/layout/handler"
	layoutservice "layoutaria/internal/layout/service"
	"layoutaria/internal/platform/apperr"
	"layoutaria/internal/platform/httpx"
	"layoutaria/internal/server/middleware"
	sessionhandler "layoutaria/internal/session/handler"
)

// RateLimits configures the per-client limiters. A non-positive rate turns
// a limiter off.
type RateLimits struct {
	APIRPS    float64
	APIBurst  int
	AuthRPS   float64
	AuthBurst int
}

// Deps holds the services behind the HTTP API.
type Deps struct {
	Auth    *identityservice.AuthService
	Layouts *layoutservice.Service
	Admin   *adminservice.Service
	Health  *healthhandler.Checker
	Limits  RateLimits
	Logger  *slog.Logger
	// Clock drives the rate limiters. Nil means the real clock.
	Clock clockwork.Clock
}

// NewRouter returns the HTTP handler for the whole API.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	apiLimiter := middleware.NewRateLimiter("api", deps.Limits.APIRPS, deps.Limits.APIBurst,
		middleware.ByIP, "Rate limit exceeded", deps.Clock)
	authLimiter := middleware.NewRateLimiter("auth", deps.Limits.AuthRPS, deps.Limits.AuthBurst,
		middleware.ByIPAndPath, "Too many authentication attempts", deps.Clock)

	authenticate := middleware.Authenticate(deps.Auth)
	optionalAuth := middleware.OptionalAuthenticate(deps.Auth)

	auth := identityhandler.NewAuthHandler(deps.Auth)
	sessions := sessionhandler.NewHandler(deps.Auth)
	layouts := layouthandler.NewHandler(deps.Layouts)
	admin := adminhandler.NewHandler(deps.Admin)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Observe(logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestSize(httpx.MaxBodyBytes))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Error(w, r, apperr.NotFound(fmt.Sprintf("Route %s %s not found", r.Method, r.URL.Path)))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusMethodNotAllowed, map[string]any{"error": map[string]string{
			"code":    "METHOD_NOT_ALLOWED",
			"message": fmt.Sprintf("Method %s not allowed on %s", r.Method, r.URL.Path),
		}})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{
			"name":    "layoutaria",
			"version": "v1",
			"status":  "ok",
			"health":  "/api/v1/health",
		})
	})
	r.Get("/health", deps.Health.Live)
	r.Get("/health/ready", deps.Health.ReadyHTTP)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", deps.Health.Live)
		r.Get("/health/ready", deps.Health.ReadyHTTP)

		r.Group(func(r chi.Router) {
			r.Use(apiLimiter.Handler)

			r.Route("/auth", func(r chi.Router) {
				r.With(authLimiter.Handler).Post("/register", auth.Register)
				r.With(authLimiter.Handler).Post("/login", auth.Login)
				r.With(authLimiter.Handler).Post("/refresh", auth.Refresh)
				r.Post("/logout", auth.Logout)

				r.Group(func(r chi.Router) {
					r.Use(authenticate)
					r.Post("/logout-all", auth.LogoutAll)
					r.Get("/me", auth.Me)
					r.Get("/sessions", sessions.List)
					r.Delete("/sessions/{sessionId}", sessions.Revoke)
				})
			})

			r.Route("/layouts", func(r chi.Router) {
				r.Get("/public", layouts.ListPublic)
				r.Get("/public/tags", layouts.ListPublicTags)
				r.With(optionalAuth).Get("/{id}", layouts.Get)

				r.Group(func(r chi.Router) {
					r.Use(authenticate)
					r.Get("/mine", layouts.ListMine)
					r.Post("/", layouts.Create)
					r.Patch("/{id}", layouts.Update)
					r.Delete("/{id}", layouts.Delete)
					r.Get("/{id}/revisions", layouts.ListRevisions)
					r.Get("/{id}/revisions/{revisionId}", layouts.GetRevision)
					r.Post("/{id}/publish", layouts.Publish)
					r.Post("/{id}/star", layouts.Star)
					r.Post("/{id}/clone", layouts.Clone)
					r.Post("/{id}/restore", layouts.Restore)
				})
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(authenticate, middleware.RequireAdmin)
				r.Get("/stats", admin.Stats)
				r.Get("/users", admin.Users)
				r.Get("/audit-logs", admin.AuditLogs)
				r.Get("/audit", admin.AuditLogs)
			})
		})
	})
	return r
}
