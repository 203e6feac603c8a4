// Package telemetry ships audit events out of the process: to Kafka, to OTel
// logs and, through the worker, to Loki.
package telemetry

import (
	"context"
	"time"
)

// EmitTimeout bounds a single emit.
const EmitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long shutdown waits for queued events before
// the OTel providers are stopped. Must be >= EmitTimeout.
const ShutdownDrainDuration = EmitTimeout

// EventEmitter emits audit events. Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}

// EmitterFunc adapts a function to EventEmitter.
type EmitterFunc func(ctx context.Context, event *Event) error

func (f EmitterFunc) Emit(ctx context.Context, event *Event) error { return f(ctx, event) }
