package audit

import (
	"context"
	"log/slog"
	"sync"

	"layoutaria/internal/audit/domain"
	"layoutaria/internal/metrics"
	"layoutaria/internal/store"
	"layoutaria/internal/telemetry"
)

// EventSource is stamped on every event this process publishes.
const EventSource = "layoutaria-api"

const defaultQueueSize = 1024

// Sink is a named destination for published events.
type Sink struct {
	Name    string
	Emitter telemetry.EventEmitter
}

// Publisher forwards committed audit entries to its sinks. It is registered
// as a store commit hook: OnCommit only enqueues, and one goroutine emits
// events in commit order. When the queue is full events are dropped and
// counted; the document remains the system of record.
type Publisher struct {
	sinks  []Sink
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	queue  chan *telemetry.Event
	done   chan struct{}
}

// NewPublisher starts a publisher over the non-nil sinks. queueSize <= 0
// uses a default.
func NewPublisher(logger *slog.Logger, queueSize int, sinks ...Sink) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	p := &Publisher{
		logger: logger,
		queue:  make(chan *telemetry.Event, queueSize),
		done:   make(chan struct{}),
	}
	for _, s := range sinks {
		if s.Emitter != nil {
			p.sinks = append(p.sinks, s)
		}
	}
	go p.run()
	return p
}

// OnCommit is a store.CommitHook.
func (p *Publisher) OnCommit(c store.Commit) {
	if len(p.sinks) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	for _, l := range c.AuditLogs {
		select {
		case p.queue <- EventFromLog(l):
		default:
			metrics.AuditEventsPublishedTotal.WithLabelValues("queue", "dropped").Inc()
			p.logger.Warn("audit: publish queue full, dropping event", "action", l.Action, "audit_id", l.ID)
		}
	}
}

// Close stops accepting events and waits until the queue is drained or ctx ends.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for ev := range p.queue {
		for _, s := range p.sinks {
			p.emit(s, ev)
		}
	}
}

func (p *Publisher) emit(s Sink, ev *telemetry.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), telemetry.EmitTimeout)
	defer cancel()
	if err := s.Emitter.Emit(ctx, ev); err != nil {
		metrics.AuditEventsPublishedTotal.WithLabelValues(s.Name, "error").Inc()
		p.logger.Warn("audit: publish failed", "sink", s.Name, "action", ev.Action, "error", err)
		return
	}
	metrics.AuditEventsPublishedTotal.WithLabelValues(s.Name, "ok").Inc()
}

// EventFromLog converts a stored audit entry into its wire form.
func EventFromLog(l *domain.AuditLog) *telemetry.Event {
	c := l.Clone()
	return &telemetry.Event{
		ID:           c.ID,
		Source:       EventSource,
		Action:       c.Action,
		ActorID:      c.ActorID,
		ActorRole:    c.ActorRole,
		ResourceType: c.ResourceType,
		ResourceID:   c.ResourceID,
		Metadata:     c.Metadata,
		Timestamp:    c.Timestamp,
	}
}
