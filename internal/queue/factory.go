package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewRedisClient creates a Redis client from the queue configuration and
// verifies connectivity with PING.
func NewRedisClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

// NewQueue wires the enqueuer, dead letter stream, and dequeuer for the
// configured stream. handler may be nil for producer-only processes, in
// which case the returned Dequeuer is nil.
func NewQueue(
	client *redis.Client,
	cfg Config,
	handler MessageHandler,
	log zerolog.Logger,
	consumerPrefix string,
) (Enqueuer, Dequeuer) {
	enqueuer := NewRedisEnqueuer(client, cfg.StreamName)
	if handler == nil {
		return enqueuer, nil
	}

	retry := NewRetryStrategy(cfg.MaxRetries)
	dlq := NewRedisDLQ(client, cfg.StreamName)
	dequeuer := NewRedisDequeuer(client, enqueuer, dlq, handler, retry, cfg, log, consumerPrefix)

	return enqueuer, dequeuer
}
