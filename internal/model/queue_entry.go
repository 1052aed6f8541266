package model

import (
	"encoding/json"
	"time"
)

// Queue entry states.
const (
	QueuePending         = "pending"
	QueueInFlight        = "in_flight"
	QueueFailedPermanent = "failed_permanent"
)

// QueueEntry wraps a Sale awaiting upload to the upstream server. Owned
// exclusively by the durable queue store — the orchestrator always reads
// entries through the store, never caches them across cycles.
//
// The wrapped sale is stored as a serialized snapshot so the queue survives
// restarts independently of any catalog table.
type QueueEntry struct {
	// ID is a monotonic sequence; drain order is strictly ascending ID,
	// which equals enqueue order.
	ID         int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	LocalID    string          `gorm:"uniqueIndex;not null" json:"local_id"`
	Payload    json.RawMessage `gorm:"not null" json:"payload"`
	Status     string          `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Attempts   int             `gorm:"not null;default:0" json:"attempts"`
	LastError  *string         `json:"last_error,omitempty"`
	EnqueuedAt time.Time       `gorm:"autoCreateTime" json:"enqueued_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Sale deserializes the wrapped sale snapshot.
func (e *QueueEntry) Sale() (*Sale, error) {
	var s Sale
	if err := json.Unmarshal(e.Payload, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
