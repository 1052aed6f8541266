package infra

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// NewRedis opens the client backing the dead-letter list and the UI event
// bridge. Connectivity is verified here so a dead Redis surfaces at boot,
// where main degrades to running without DLQ and events instead of failing
// on the first drain cycle.
func NewRedis(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return rdb, nil
}
