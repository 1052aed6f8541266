// Package events defines the orchestrator's lifecycle notifications and the
// sinks that deliver them to the UI process. Payloads are statically typed —
// no loosely-typed emitter maps.
package events

import (
	"context"
	"time"
)

// Type names one lifecycle event.
type Type string

const (
	ConnectionOnline  Type = "connection:online"
	ConnectionOffline Type = "connection:offline"
	SyncStarted       Type = "sync:started"
	SyncProgress      Type = "sync:progress"
	SyncCompleted     Type = "sync:completed"
	SyncFailed        Type = "sync:failed"
	// QueueEntryFailed fires once when a sale exhausts its upload retries —
	// permanently failed entries are surfaced, never silently dropped.
	QueueEntryFailed Type = "queue:entry_failed"
)

// Event is the union payload for all lifecycle notifications. Optional fields
// are zero-valued when not applicable to the event type.
type Event struct {
	Type Type      `json:"type"`
	At   time.Time `json:"at"`
	// Progress is the full-sync completion percentage (sync:progress).
	Progress int `json:"progress,omitempty"`
	// Error carries the failure cause (sync:failed, queue:entry_failed).
	Error string `json:"error,omitempty"`
	// LocalID identifies the affected sale (queue:entry_failed).
	LocalID string `json:"local_id,omitempty"`
	// Queued is the pending-sale count at emission time (sync:* events).
	Queued int64 `json:"queued,omitempty"`
}

// Sink receives lifecycle events. Implementations must not block the
// orchestrator: delivery is best-effort.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// Fanout delivers each event to every registered sink in order.
type Fanout struct {
	sinks []Sink
}

func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) Emit(ctx context.Context, e Event) {
	for _, s := range f.sinks {
		s.Emit(ctx, e)
	}
}

var _ Sink = (*Fanout)(nil)
