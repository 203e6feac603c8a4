package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"layoutaria/internal/metrics"
	"layoutaria/internal/platform/httpx"
)

const limiterExpiry = 5 * time.Minute

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(r *http.Request) string

// ByIP counts requests per client address.
func ByIP(r *http.Request) string { return ClientIP(r) }

// ByIPAndPath counts requests per client address and path.
func ByIPAndPath(r *http.Request) string { return ClientIP(r) + ":" + r.URL.Path }

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a token bucket per key. Buckets idle for five minutes are
// dropped.
type RateLimiter struct {
	name    string
	limit   rate.Limit
	burst   int
	key     KeyFunc
	message string
	clock   clockwork.Clock

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

// NewRateLimiter allows rps requests per second with the given burst per key.
// name labels the rejection metric.
func NewRateLimiter(name string, rps float64, burst int, key KeyFunc, message string, clock clockwork.Clock) *RateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RateLimiter{
		name:     name,
		limit:    rate.Limit(rps),
		burst:    max(burst, 1),
		key:      key,
		message:  message,
		clock:    clock,
		visitors: make(map[string]*visitor),
	}
}

// allow reports whether a request for key may proceed now, and if not how
// long until it would.
func (rl *RateLimiter) allow(key string) (bool, time.Duration) {
	now := rl.clock.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= time.Minute {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= limiterExpiry {
				delete(rl.visitors, k)
			}
		}
		rl.lastSweep = now
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now

	res := v.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	delay := res.DelayFrom(now)
	if delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Handler rejects requests over the limit with 429 and a Retry-After header.
// A non-positive rate disables the limiter.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	if rl.limit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := rl.allow(rl.key(r))
		if ok {
			next.ServeHTTP(w, r)
			return
		}
		metrics.RateLimitedTotal.WithLabelValues(rl.name).Inc()
		retry := int(math.Ceil(wait.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		httpx.JSON(w, http.StatusTooManyRequests, map[string]any{
			"error": map[string]any{
				"code":              "RATE_LIMIT_EXCEEDED",
				"message":           rl.message,
				"retryAfterSeconds": retry,
				"requestId":         middleware.GetReqID(r.Context()),
			},
		})
	})
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}
