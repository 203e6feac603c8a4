// Package handler serves liveness and readiness over HTTP and the standard
// grpc.health.v1 service over gRPC.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"layoutaria/internal/platform/apperr"
	"layoutaria/internal/platform/httpx"
)

// Pinger reports whether the document store accepts writes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PolicyChecker reports whether the layout access policy evaluates.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Checker runs the readiness checks. A nil dependency is skipped.
type Checker struct {
	store     Pinger
	policy    PolicyChecker
	clock     clockwork.Clock
	startedAt time.Time
}

func NewChecker(store Pinger, policy PolicyChecker, clock clockwork.Clock) *Checker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Checker{store: store, policy: policy, clock: clock, startedAt: clock.Now().UTC()}
}

// Ready returns the first failing check.
func (c *Checker) Ready(ctx context.Context) error {
	if c.store != nil {
		if err := c.store.Ping(ctx); err != nil {
			return apperr.Internal("store not ready", err)
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			return apperr.Internal("policy not ready", err)
		}
	}
	return nil
}

// Live handles GET /health.
func (c *Checker) Live(w http.ResponseWriter, r *http.Request) {
	now := c.clock.Now().UTC()
	httpx.JSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"uptimeSeconds": int64(now.Sub(c.startedAt).Seconds()),
		"startedAt":     c.startedAt,
		"timestamp":     now,
	})
}

// ReadyHTTP handles GET /health/ready. It answers 503 while a check fails.
func (c *Checker) ReadyHTTP(w http.ResponseWriter, r *http.Request) {
	now := c.clock.Now().UTC()
	if err := c.Ready(r.Context()); err != nil {
		httpx.JSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "not_ready",
			"error":     err.Error(),
			"timestamp": now,
		})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ready", "timestamp": now})
}

// GRPCServer implements grpc.health.v1. The overall service ("") and
// "layoutaria" report the readiness checks; other names are unknown.
type GRPCServer struct {
	healthpb.UnimplementedHealthServer
	checker *Checker
}

// ServiceName is the gRPC health service name of the API.
const ServiceName = "layoutaria"

func NewGRPCServer(checker *Checker) *GRPCServer {
	return &GRPCServer{checker: checker}
}

// Check never fails the RPC for an unhealthy dependency; it reports NOT_SERVING.
func (s *GRPCServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if svc := req.GetService(); svc != "" && svc != ServiceName {
		return nil, status.Error(codes.NotFound, "unknown service")
	}
	if err := s.checker.Ready(ctx); err != nil {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}
