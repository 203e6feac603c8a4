package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"layoutaria/internal/audit/domain"
	"layoutaria/internal/metrics"
	"layoutaria/internal/store"
	"layoutaria/internal/telemetry"
)

type collectingEmitter struct {
	mu     sync.Mutex
	events []*telemetry.Event
	err    error
	block  chan struct{}
}

func (c *collectingEmitter) Emit(ctx context.Context, e *telemetry.Event) error {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return c.err
}

func (c *collectingEmitter) actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Action
	}
	return out
}

func logEntry(action string) *domain.AuditLog {
	return NewLog(Entry{
		ActorID:      "u1",
		ActorRole:    "user",
		Action:       action,
		ResourceType: domain.ResourceLayout,
		ResourceID:   "l1",
		Metadata:     map[string]any{"version": 1},
	}, RequestInfo{IP: "10.0.0.1"}, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
}

func TestPublisher_ForwardsInCommitOrder(t *testing.T) {
	kafka := &collectingEmitter{}
	logs := &collectingEmitter{}
	p := NewPublisher(nil, 0, Sink{Name: "kafka", Emitter: kafka}, Sink{Name: "otel", Emitter: logs})

	p.OnCommit(store.Commit{Seq: 1, AuditLogs: []*domain.AuditLog{logEntry("layout.create"), logEntry("layout.update")}})
	p.OnCommit(store.Commit{Seq: 2})
	p.OnCommit(store.Commit{Seq: 3, AuditLogs: []*domain.AuditLog{logEntry("layout.delete")}})
	require.NoError(t, p.Close(context.Background()))

	want := []string{"layout.create", "layout.update", "layout.delete"}
	assert.Equal(t, want, kafka.actions())
	assert.Equal(t, want, logs.actions())

	ev := kafka.events[0]
	assert.Equal(t, EventSource, ev.Source)
	assert.Equal(t, "l1", ev.ResourceID)
	assert.Equal(t, "10.0.0.1", ev.Metadata["ip"])
}

func TestPublisher_SinkErrorsAreCounted(t *testing.T) {
	failing := &collectingEmitter{err: errors.New("unreachable")}
	p := NewPublisher(nil, 0, Sink{Name: "flaky", Emitter: failing})
	before := testutil.ToFloat64(metrics.AuditEventsPublishedTotal.WithLabelValues("flaky", "error"))

	p.OnCommit(store.Commit{AuditLogs: []*domain.AuditLog{logEntry("auth.login")}})
	require.NoError(t, p.Close(context.Background()))

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AuditEventsPublishedTotal.WithLabelValues("flaky", "error")))
}

func TestPublisher_DropsWhenQueueFull(t *testing.T) {
	slow := &collectingEmitter{block: make(chan struct{})}
	p := NewPublisher(nil, 1, Sink{Name: "slow", Emitter: slow})
	before := testutil.ToFloat64(metrics.AuditEventsPublishedTotal.WithLabelValues("queue", "dropped"))

	// The first event may already be held by the emitting goroutine, so at
	// most two of the four fit.
	entries := []*domain.AuditLog{logEntry("a"), logEntry("b"), logEntry("c"), logEntry("d")}
	p.OnCommit(store.Commit{AuditLogs: entries})
	close(slow.block)
	require.NoError(t, p.Close(context.Background()))

	dropped := testutil.ToFloat64(metrics.AuditEventsPublishedTotal.WithLabelValues("queue", "dropped")) - before
	assert.GreaterOrEqual(t, dropped, 2.0)
	assert.Equal(t, 4, len(slow.actions())+int(dropped))
}

func TestPublisher_AfterCloseIsNoop(t *testing.T) {
	sink := &collectingEmitter{}
	p := NewPublisher(nil, 0, Sink{Name: "s", Emitter: sink})
	require.NoError(t, p.Close(context.Background()))
	require.NoError(t, p.Close(context.Background()))

	p.OnCommit(store.Commit{AuditLogs: []*domain.AuditLog{logEntry("auth.logout")}})
	assert.Empty(t, sink.actions())
}

func TestPublisher_AsStoreHook(t *testing.T) {
	sink := &collectingEmitter{}
	p := NewPublisher(nil, 0, Sink{Name: "s", Emitter: sink})
	st := store.NewMemory(store.WithCommitHook(p.OnCommit))

	_, err := st.Update(context.Background(), func(d *store.Document) error {
		d.AppendAudit(logEntry("layout.create"))
		return nil
	})
	require.NoError(t, err)
	_, err = st.Update(context.Background(), func(d *store.Document) error {
		d.AppendAudit(logEntry("never.committed"))
		return errors.New("rejected")
	})
	require.Error(t, err)

	require.NoError(t, st.Close())
	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, []string{"layout.create"}, sink.actions())
}

func TestEventFromLog_DoesNotAliasMetadata(t *testing.T) {
	l := logEntry("layout.update")
	ev := EventFromLog(l)
	ev.Metadata["version"] = 99
	assert.Equal(t, 1, l.Metadata["version"])
}
