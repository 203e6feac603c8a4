// Package store holds the application document and serializes every write to it.
//
// One goroutine owns the commit path. Mutations are queued on an unbuffered
// channel and applied one at a time in arrival order; each runs against a
// private copy of the committed document, which is persisted and then published
// as the new committed document. Readers get deep copies and never wait on
// persistence. A transform that returns an error commits nothing.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	auditdomain "layoutaria/internal/audit/domain"
	"layoutaria/internal/metrics"
)

// ErrClosed is returned by Mutate after Close.
var ErrClosed = errors.New("store: closed")

var tracer = otel.Tracer("layoutaria/internal/store")

// Commit describes one committed mutation.
type Commit struct {
	Seq       uint64
	UpdatedAt time.Time
	// AuditLogs holds copies of the audit entries appended by the mutation.
	AuditLogs []*auditdomain.AuditLog
}

// CommitHook observes commits. Hooks run on the writer goroutine after the
// document is durable and published; they must not block or call back into the store.
type CommitHook func(Commit)

// Option configures a Store.
type Option func(*Store)

func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithCommitHook registers h; hooks run in registration order.
func WithCommitHook(h CommitHook) Option {
	return func(s *Store) { s.hooks = append(s.hooks, h) }
}

// Store owns the committed Document.
type Store struct {
	mu  sync.RWMutex
	doc *Document // committed; never modified in place
	seq uint64

	persist *Persistence // nil for in-memory stores
	clock   clockwork.Clock
	logger  *slog.Logger
	hooks   []CommitHook

	requests  chan request
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type request struct {
	fn    func(*Document) (any, error)
	reply chan result
}

type result struct {
	value any
	err   error
}

func newStore(opts []Option) *Store {
	s := &Store{
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
		requests: make(chan request),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open loads the document at path (see Persistence.Load) and starts the writer.
func Open(path string, opts ...Option) (*Store, error) {
	s := newStore(opts)
	s.persist = NewPersistence(path, s.logger)
	doc, err := s.persist.Load(s.clock.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	s.doc = doc
	go s.run()
	return s, nil
}

// NewMemory returns a store that is never persisted.
func NewMemory(opts ...Option) *Store {
	s := newStore(opts)
	s.doc = NewDocument(s.clock.Now().UTC())
	go s.run()
	return s
}

// Read returns a deep copy of the last committed document.
func (s *Store) Read(ctx context.Context) *Document {
	_, span := tracer.Start(ctx, "store.Read")
	defer span.End()

	s.mu.RLock()
	doc, seq := s.doc, s.seq
	s.mu.RUnlock()
	span.SetAttributes(attribute.Int64("store.seq", int64(seq)))
	return doc.Clone()
}

// Ping reports whether the store still accepts mutations.
func (s *Store) Ping(ctx context.Context) error {
	select {
	case <-s.quit:
		return ErrClosed
	default:
	}
	return ctx.Err()
}

// Seq is the number of mutations committed since the store was opened.
func (s *Store) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Mutate runs fn with exclusive access to a working copy of the document. If fn
// returns nil the copy is stamped, persisted and published, and fn's value is
// returned; otherwise nothing is committed and fn's error is returned as is.
//
// fn must not retain the document or return values that alias it. ctx bounds
// only the wait: once the writer has taken the request it runs to completion.
func Mutate[T any](ctx context.Context, s *Store, fn func(*Document) (T, error)) (T, error) {
	var zero T
	ctx, span := tracer.Start(ctx, "store.Mutate")
	defer span.End()

	req := request{
		fn:    func(d *Document) (any, error) { return fn(d) },
		reply: make(chan result, 1),
	}
	select {
	case s.requests <- req:
	case <-s.quit:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case res := <-req.reply:
		if res.err != nil {
			span.SetStatus(codes.Error, res.err.Error())
			return zero, res.err
		}
		v, _ := res.value.(T)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Update is Mutate for transforms with no result of their own; it returns a
// copy of the committed document.
func (s *Store) Update(ctx context.Context, fn func(*Document) error) (*Document, error) {
	return Mutate(ctx, s, func(d *Document) (*Document, error) {
		if err := fn(d); err != nil {
			return nil, err
		}
		return d.Clone(), nil
	})
}

// Close stops the writer after the mutation in progress, if any. Pending and
// later Mutate calls return ErrClosed.
func (s *Store) Close() error {
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.done
	return nil
}

func (s *Store) run() {
	defer close(s.done)
	for {
		select {
		case req := <-s.requests:
			req.reply <- s.apply(req)
		case <-s.quit:
			return
		}
	}
}

func (s *Store) apply(req request) result {
	start := time.Now()
	defer func() {
		metrics.StoreMutationDuration.Observe(time.Since(start).Seconds())
	}()

	prev := s.doc
	next := prev.Clone()

	value, err := runTransform(req.fn, next)
	if err != nil {
		metrics.StoreMutationsTotal.WithLabelValues("rejected").Inc()
		return result{err: err}
	}

	next.Meta.UpdatedAt = s.clock.Now().UTC()
	if s.persist != nil {
		if err := s.persist.Save(next); err != nil {
			metrics.StoreMutationsTotal.WithLabelValues("failed").Inc()
			s.logger.Error("store: persist failed, mutation discarded", "error", err)
			return result{err: fmt.Errorf("store: persist: %w", err)}
		}
	}

	s.mu.Lock()
	s.doc = next
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	metrics.StoreMutationsTotal.WithLabelValues("committed").Inc()

	if len(s.hooks) > 0 {
		s.notify(Commit{
			Seq:       seq,
			UpdatedAt: next.Meta.UpdatedAt,
			AuditLogs: newAuditLogs(prev, next),
		})
	}
	return result{value: value}
}

// runTransform turns a panicking transform into an error so the writer survives it.
func runTransform(fn func(*Document) (any, error), doc *Document) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("store: transform panicked: %v", r)
		}
	}()
	return fn(doc)
}

func (s *Store) notify(c Commit) {
	for _, h := range s.hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("store: commit hook panicked", "seq", c.Seq, "panic", r)
				}
			}()
			h(c)
		}()
	}
}

// newAuditLogs returns copies of the entries next appended to prev's audit trail.
func newAuditLogs(prev, next *Document) []*auditdomain.AuditLog {
	if len(next.AuditLogs) <= len(prev.AuditLogs) {
		return nil
	}
	added := next.AuditLogs[len(prev.AuditLogs):]
	out := make([]*auditdomain.AuditLog, len(added))
	for i, a := range added {
		out[i] = a.Clone()
	}
	return out
}
