package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Document store metrics
var (
	// StoreMutationsTotal counts mutations by outcome (committed, rejected, failed).
	// rejected means the transform returned an error; failed means the commit itself failed.
	StoreMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_mutations_total",
			Help: "Total document store mutations by outcome",
		},
		[]string{"outcome"},
	)

	// StoreMutationDuration tracks time spent inside the writer per mutation, persistence included.
	StoreMutationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "store_mutation_duration_seconds",
			Help:    "Document store mutation duration in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// StorePersistDuration tracks the write-then-rename sequence.
	StorePersistDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "store_persist_duration_seconds",
			Help:    "Document persistence duration in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// StoreQuarantinedTotal counts data files moved aside because they could not be parsed.
	StoreQuarantinedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "store_quarantined_files_total",
			Help: "Total corrupt data files quarantined at load",
		},
	)
)

// Session metrics
var (
	// SessionsIssuedTotal counts sessions created by the audit action that created them.
	SessionsIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_sessions_issued_total",
			Help: "Total sessions issued by action",
		},
		[]string{"action"},
	)

	// SessionsRevokedTotal counts session revocations by reason.
	SessionsRevokedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_sessions_revoked_total",
			Help: "Total sessions revoked by reason",
		},
		[]string{"reason"},
	)

	// RefreshReplaysTotal counts refresh attempts with a token that was already rotated.
	RefreshReplaysTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_refresh_replays_total",
			Help: "Total refresh attempts using an already rotated token",
		},
	)
)

// Layout metrics
var (
	// LayoutVersionConflictsTotal counts writes rejected by the expected-version check.
	LayoutVersionConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "layout_version_conflicts_total",
			Help: "Total layout writes rejected because of a version mismatch",
		},
	)

	// PublicCacheRequestsTotal counts public listing cache lookups by query kind and result (hit, miss).
	PublicCacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layout_public_cache_requests_total",
			Help: "Public listing cache lookups by kind and result",
		},
		[]string{"kind", "result"},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// RateLimitedTotal counts requests rejected by a limiter.
	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Total requests rejected by rate limiting",
		},
		[]string{"limiter"},
	)
)

// Audit stream metrics
var (
	// AuditEventsPublishedTotal counts audit events forwarded to a sink by outcome (ok, error).
	AuditEventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_published_total",
			Help: "Total audit events forwarded to sinks by outcome",
		},
		[]string{"sink", "outcome"},
	)
)
