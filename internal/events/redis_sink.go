package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const channel = "kioskpos:events"

// RedisSink publishes lifecycle events to a Redis channel. The kiosk UI runs
// as a separate local process and subscribes to this channel for status
// updates. Publishing is best-effort — a Redis outage never blocks sync.
type RedisSink struct {
	rdb *redis.Client
}

func NewRedisSink(rdb *redis.Client) *RedisSink {
	return &RedisSink{rdb: rdb}
}

func (s *RedisSink) Emit(ctx context.Context, e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Str("event", string(e.Type)).Msg("events: marshal failed")
		return
	}
	if err := s.rdb.Publish(ctx, channel, data).Err(); err != nil {
		log.Debug().Err(err).Str("event", string(e.Type)).Msg("events: publish failed")
	}
}

var _ Sink = (*RedisSink)(nil)
