// Package idempotency provides a Redis-backed fast-path cache over committed
// event keys. It only short-circuits obvious redeliveries; the authoritative
// duplicate check lives inside the processor's unit of work, so losing the
// cache costs latency, never correctness.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "transfer:applied:"

// RedisCache implements processor.DedupCache over a Redis client.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a cache with the given TTL per event key.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Seen reports whether the event key was marked as applied.
func (c *RedisCache) Seen(ctx context.Context, eventKey string) (bool, error) {
	err := c.client.Get(ctx, keyPrefix+eventKey).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("dedup cache get: %w", err)
	}

	return true, nil
}

// MarkApplied records the event key after a successful commit.
func (c *RedisCache) MarkApplied(ctx context.Context, eventKey string) error {
	if err := c.client.Set(ctx, keyPrefix+eventKey, "1", c.ttl).Err(); err != nil {
		return fmt.Errorf("dedup cache set: %w", err)
	}

	return nil
}
