package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisCache(client, time.Minute), mr
}

func TestRedisCache_SeenAfterMark(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	seen, err := cache.Seen(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, cache.MarkApplied(ctx, "evt-1"))

	seen, err = cache.Seen(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)

	// Other keys are unaffected.
	seen, err = cache.Seen(ctx, "evt-2")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisCache_KeyExpires(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	require.NoError(t, cache.MarkApplied(ctx, "evt-1"))

	mr.FastForward(2 * time.Minute)

	seen, err := cache.Seen(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisCache_ErrorWhenDown(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	mr.Close()

	_, err := cache.Seen(ctx, "evt-1")
	assert.Error(t, err)

	err = cache.MarkApplied(ctx, "evt-1")
	assert.Error(t, err)
}
