package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"layoutaria/internal/platform/apperr"
	userdomain "layoutaria/internal/user/domain"
)

type fakeAuth map[string]userdomain.Actor

func (f fakeAuth) Authenticate(token string) (userdomain.Actor, error) {
	a, ok := f[token]
	if !ok {
		return userdomain.Actor{}, apperr.Unauthorized("Invalid or expired access token")
	}
	return a, nil
}

var (
	alice  = userdomain.Actor{ID: "u-alice", Role: userdomain.RoleUser, Email: "alice@example.com", SessionID: "s-1"}
	admin  = userdomain.Actor{ID: "u-admin", Role: userdomain.RoleAdmin, Email: "admin@example.com"}
	tokens = fakeAuth{"alice-token": alice, "admin-token": admin}
)

func echoActor(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(ActorFrom(r.Context()))
}

func do(h http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestAuthenticate(t *testing.T) {
	h := Authenticate(tokens)(http.HandlerFunc(echoActor))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic alice-token", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer alice-token", http.StatusOK},
		{"case insensitive scheme", "bearer   alice-token ", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, tt.header)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				var got userdomain.Actor
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
				assert.Equal(t, alice, got)
			} else {
				assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))
			}
		})
	}
}

func TestOptionalAuthenticate_FallsBackToAnonymous(t *testing.T) {
	h := OptionalAuthenticate(tokens)(http.HandlerFunc(echoActor))

	for _, header := range []string{"", "Bearer nope"} {
		rec := do(h, header)
		require.Equal(t, http.StatusOK, rec.Code)
		var got userdomain.Actor
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.True(t, got.Anonymous())
	}

	rec := do(h, "Bearer alice-token")
	var got userdomain.Actor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, alice.ID, got.ID)
}

func TestRequireAdmin(t *testing.T) {
	h := Authenticate(tokens)(RequireAdmin(http.HandlerFunc(echoActor)))

	rec := do(h, "Bearer alice-token")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, rec))

	assert.Equal(t, http.StatusOK, do(h, "Bearer admin-token").Code)
}

func TestRateLimiter_RejectsOverBurstAndRecovers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter("test", 1, 2, ByIP, "Rate limit exceeded", clock)
	h := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":4242"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, call("10.0.0.1").Code)
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1").Code)

	rec := call("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errorCode(t, rec))

	// Another client has its own bucket.
	assert.Equal(t, http.StatusNoContent, call("10.0.0.2").Code)

	clock.Advance(time.Second)
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1").Code)
}

func TestRateLimiter_DropsIdleVisitors(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter("test", 5, 5, ByIP, "", clock)
	for _, ip := range []string{"a", "b", "c"} {
		ok, _ := rl.allow(ip)
		require.True(t, ok)
	}
	require.Equal(t, 3, rl.size())

	clock.Advance(limiterExpiry)
	ok, _ := rl.allow("d")
	require.True(t, ok)
	assert.Equal(t, 1, rl.size())
}

func TestRateLimiter_ZeroRateDisables(t *testing.T) {
	rl := NewRateLimiter("test", 0, 0, ByIP, "", clockwork.NewFakeClock())
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	for range 10 {
		rec := httptest.NewRecorder()
		rl.Handler(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestByIPAndPath(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	assert.Equal(t, "192.0.2.7:/api/v1/auth/login", ByIPAndPath(req))
}

func TestRequestInfo(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	req.Header.Set("User-Agent", "curl/8")
	info := RequestInfo(req)
	assert.Equal(t, "192.0.2.7", info.IP)
	assert.Equal(t, "curl/8", info.UserAgent)

	req.RemoteAddr = "198.51.100.1"
	assert.Equal(t, "198.51.100.1", ClientIP(req))
}

func TestObserve_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Observe(nil))
	var pattern string
	r.Get("/layouts/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	r.Get("/probe", func(w http.ResponseWriter, req *http.Request) {
		pattern = routePattern(req)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/layouts/abc", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/probe", nil))
	assert.Equal(t, "/probe", pattern)
}
