package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisLimiter(t *testing.T) {
	client := testRedis(t)
	ctx := context.Background()
	key := "test-" + uuid.NewString()
	t.Cleanup(func() {
		client.Del(context.Background(), redisKeyPrefix+key, redisKeyPrefix+key+":gate")
	})

	l := NewRedisLimiter(client, 2, time.Minute, 0)

	for i := 0; i < 2; i++ {
		d, err := l.Check(ctx, key)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := l.Check(ctx, key)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)
}

func TestRedisLimiter_MinInterval(t *testing.T) {
	client := testRedis(t)
	ctx := context.Background()
	key := "test-" + uuid.NewString()
	t.Cleanup(func() {
		client.Del(context.Background(), redisKeyPrefix+key, redisKeyPrefix+key+":gate")
	})

	l := NewRedisLimiter(client, 10, time.Minute, 10*time.Second)

	d, err := l.Check(ctx, key)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = l.Check(ctx, key)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, 5*time.Second)
}
