package queue

// Dead letter queue for sales that exhausted their upload retries.
// The SQLite entry stays in failed_permanent (visible in status counts); a
// copy lands on a Redis list for operator tooling to inspect without touching
// the kiosk's local database.

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const dlqKey = "dlq:sales"

// DLQEntry wraps a permanently failed sale with metadata for debugging.
type DLQEntry struct {
	LocalID  string          `json:"local_id"`
	Payload  json.RawMessage `json:"payload"`
	Reason   string          `json:"reason"`
	FailedAt string          `json:"failed_at"` // ISO 8601
	Attempts int             `json:"attempts"`
}

// SendToDLQ pushes a permanently failed sale to the dead letter list.
// Best-effort: a Redis outage must not break the drain cycle.
func SendToDLQ(ctx context.Context, rdb *redis.Client, localID string, payload json.RawMessage, reason string, attempts int) {
	if rdb == nil {
		return
	}
	entry := DLQEntry{
		LocalID:  localID,
		Payload:  payload,
		Reason:   reason,
		FailedAt: time.Now().UTC().Format(time.RFC3339),
		Attempts: attempts,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		log.Error().Err(err).Str("local_id", localID).Msg("dlq: failed to marshal entry")
		return
	}
	if err := rdb.LPush(ctx, dlqKey, data).Err(); err != nil {
		log.Error().Err(err).Str("local_id", localID).Msg("dlq: failed to push entry")
		return
	}
	log.Warn().
		Str("local_id", localID).
		Str("reason", reason).
		Int("attempts", attempts).
		Msg("dlq: sale moved to dead letter queue")
}

// DLQLength returns the number of dead-lettered sales for monitoring.
func DLQLength(ctx context.Context, rdb *redis.Client) (int64, error) {
	return rdb.LLen(ctx, dlqKey).Result()
}
