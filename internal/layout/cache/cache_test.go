package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identity(v []string) []string { return append([]string(nil), v...) }

func counter(calls *atomic.Int32, value []string) func() ([]string, error) {
	return func() ([]string, error) {
		calls.Add(1)
		return value, nil
	}
}

func TestGetOrLoad_CachesUntilTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(15*time.Second, clock)
	var calls atomic.Int32

	for range 3 {
		v, err := GetOrLoad(c, "list", "k", counter(&calls, []string{"a"}), identity)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, v)
	}
	assert.EqualValues(t, 1, calls.Load())

	clock.Advance(15 * time.Second)
	_, err := GetOrLoad(c, "list", "k", counter(&calls, []string{"a"}), identity)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestGetOrLoad_ReturnsCopies(t *testing.T) {
	c := New(time.Minute, clockwork.NewFakeClock())
	var calls atomic.Int32

	v, err := GetOrLoad(c, "list", "k", counter(&calls, []string{"a"}), identity)
	require.NoError(t, err)
	v[0] = "mutated"

	again, err := GetOrLoad(c, "list", "k", counter(&calls, []string{"a"}), identity)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, again)
}

func TestGetOrLoad_ZeroTTLDisablesCache(t *testing.T) {
	c := New(0, clockwork.NewFakeClock())
	var calls atomic.Int32
	for range 3 {
		_, err := GetOrLoad(c, "list", "k", counter(&calls, nil), identity)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, calls.Load())
	assert.Zero(t, c.Len())
}

func TestInvalidate_ClearsEverything(t *testing.T) {
	c := New(time.Minute, clockwork.NewFakeClock())
	var calls atomic.Int32
	_, _ = GetOrLoad(c, "list", "a", counter(&calls, nil), identity)
	_, _ = GetOrLoad(c, "tags", "b", counter(&calls, nil), identity)
	require.Equal(t, 2, c.Len())

	c.Invalidate()
	assert.Zero(t, c.Len())

	_, _ = GetOrLoad(c, "list", "a", counter(&calls, nil), identity)
	assert.EqualValues(t, 3, calls.Load())
}

func TestGetOrLoad_FillStartedBeforeInvalidateIsNotStored(t *testing.T) {
	c := New(time.Minute, clockwork.NewFakeClock())
	release := make(chan struct{})
	started := make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = GetOrLoad(c, "list", "k", func() ([]string, error) {
			close(started)
			<-release
			return []string{"stale"}, nil
		}, identity)
	}()

	<-started
	c.Invalidate()
	close(release)
	<-done

	assert.Zero(t, c.Len())
	v, err := GetOrLoad(c, "list", "k", func() ([]string, error) { return []string{"fresh"}, nil }, identity)
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, v)
}

func TestGetOrLoad_ErrorsAreNotCached(t *testing.T) {
	c := New(time.Minute, clockwork.NewFakeClock())
	boom := errors.New("boom")
	_, err := GetOrLoad(c, "list", "k", func() ([]string, error) { return nil, boom }, identity)
	require.ErrorIs(t, err, boom)
	assert.Zero(t, c.Len())
}

func TestGetOrLoad_ConcurrentMissesShareOneLoad(t *testing.T) {
	c := New(time.Minute, clockwork.NewFakeClock())
	var calls atomic.Int32
	release := make(chan struct{})
	load := func() ([]string, error) {
		calls.Add(1)
		<-release
		return []string{"a"}, nil
	}

	const n = 10
	var wg sync.WaitGroup
	var ready sync.WaitGroup
	ready.Add(n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ready.Done()
			v, err := GetOrLoad(c, "list", "k", load, identity)
			assert.NoError(t, err)
			assert.Equal(t, []string{"a"}, v)
		}()
	}
	ready.Wait()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	// Goroutines that missed the flight hit the stored entry instead.
	assert.LessOrEqual(t, calls.Load(), int32(n))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
	assert.Equal(t, 1, c.Len())
}
