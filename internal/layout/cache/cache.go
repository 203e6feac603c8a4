// Package cache is the read-through cache in front of the public layout listings.
//
// Invalidation is coarse: any layout write clears every entry. A fill that was
// started before an invalidation is returned to its callers but not stored.
package cache

import (
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"layoutaria/internal/metrics"
)

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache holds query results for a fixed TTL. A zero TTL disables it.
type Cache struct {
	ttl   time.Duration
	clock clockwork.Clock

	mu      sync.Mutex
	entries map[string]entry
	gen     uint64

	fills singleflight.Group
}

// New returns a Cache whose entries live for ttl.
func New(ttl time.Duration, clock clockwork.Clock) *Cache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache{
		ttl:     max(ttl, 0),
		clock:   clock,
		entries: make(map[string]entry),
	}
}

// Enabled reports whether results are cached at all.
func (c *Cache) Enabled() bool { return c.ttl > 0 }

// Invalidate drops every entry and fences off fills that are in flight.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	clear(c.entries)
}

// Len is the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) lookup(key string) (any, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if ok && !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		ok = false
	}
	return e.value, c.gen, ok
}

func (c *Cache) store(key string, gen uint64, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.entries[key] = entry{value: v, expiresAt: c.clock.Now().Add(c.ttl)}
}

// GetOrLoad returns the cached value for key, or calls load and caches its
// result. Concurrent misses for the same key share one load. The cached value
// is never handed out directly: callers get clone(value). kind labels the
// hit/miss metric.
func GetOrLoad[T any](c *Cache, kind, key string, load func() (T, error), clone func(T) T) (T, error) {
	if !c.Enabled() {
		return load()
	}
	cached, gen, ok := c.lookup(key)
	if ok {
		metrics.PublicCacheRequestsTotal.WithLabelValues(kind, "hit").Inc()
		return clone(cached.(T)), nil
	}
	metrics.PublicCacheRequestsTotal.WithLabelValues(kind, "miss").Inc()

	// The generation is part of the flight key so a caller arriving after an
	// invalidation never joins a fill that read older data.
	v, err, _ := c.fills.Do(strconv.FormatUint(gen, 10)+"|"+key, func() (any, error) {
		v, err := load()
		if err != nil {
			return nil, err
		}
		c.store(key, gen, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return clone(v.(T)), nil
}
