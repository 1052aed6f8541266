// Package queue implements the durable local store for sales awaiting upload,
// plus the per-resource sync cursors. It is the single source of truth for
// pending-sale state: the orchestrator reads entries through it every cycle
// and never caches them.
package queue

import (
	"context"
	"errors"

	"kioskpos/internal/model"
)

// ErrNotFound is returned when no entry exists for the given local id.
var ErrNotFound = errors.New("queue: entry not found")

// Counts summarizes queue state for status reporting.
type Counts struct {
	Pending         int64 `json:"pending"`
	InFlight        int64 `json:"in_flight"`
	FailedPermanent int64 `json:"failed_permanent"`
}

// Queued returns the number of entries still awaiting upload.
func (c Counts) Queued() int64 { return c.Pending + c.InFlight }

// Store provides at-least-once durability for sales created while offline or
// concurrently with a drain cycle. Entries survive process restarts; an entry
// acknowledged via MarkSucceeded is never returned again.
type Store interface {
	// Enqueue appends a sale. Idempotent on the caller-assigned local id:
	// a second call with the same id returns the existing entry's id
	// without duplicating.
	Enqueue(ctx context.Context, sale *model.Sale) (string, error)

	// NextPending returns the oldest pending entry with a sequence id
	// strictly greater than afterID, or nil when none remain. Passing 0
	// starts from the head. The afterID parameter lets one drain cycle walk
	// the queue without revisiting an entry it already failed.
	NextPending(ctx context.Context, afterID int64) (*model.QueueEntry, error)

	// MarkInFlight flags an entry as being uploaded right now.
	MarkInFlight(ctx context.Context, localID string) error

	// MarkSucceeded acknowledges a successful upload and removes the entry.
	MarkSucceeded(ctx context.Context, localID string) error

	// MarkFailed records a failed upload attempt. When the attempt count
	// reaches the configured maximum the entry transitions to
	// failed_permanent instead of pending. Returns the updated entry.
	MarkFailed(ctx context.Context, localID string, cause string) (*model.QueueEntry, error)

	// Requeue resets a failed_permanent entry to pending with zero attempts
	// (operator action).
	Requeue(ctx context.Context, localID string) error

	// Count returns per-status totals.
	Count(ctx context.Context) (Counts, error)

	// List returns entries filtered by status ("" = all), newest first.
	List(ctx context.Context, status string, limit int) ([]model.QueueEntry, error)
}

// CursorStore persists the opaque "since" token per resource type. A cursor
// only advances after the pulled delta has been applied locally.
type CursorStore interface {
	Cursor(ctx context.Context, resource string) (*model.SyncCursor, error)
	Advance(ctx context.Context, resource string, since string) error
}
