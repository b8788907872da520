package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	domainRatelimit "github.com/wekeepgrowing/storybook/internal/domain/ratelimit"
)

const redisKeyPrefix = "storybook:ratelimit:"

// slidingWindowScript returns {allowed, retry_after_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local gate = KEYS[2]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local interval = tonumber(ARGV[4])
local member = ARGV[5]

if interval > 0 then
  local ttl = redis.call('PTTL', gate)
  if ttl > 0 then
    return {0, ttl}
  end
end

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= limit then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local wait = window - (now - tonumber(oldest[2]))
  if wait < 1 then
    wait = 1
  end
  return {0, wait}
end

redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window)
if interval > 0 then
  redis.call('SET', gate, 1, 'PX', interval)
end
return {1, 0}
`)

// RedisLimiter shares the sliding window between instances through a sorted
// set per key.
type RedisLimiter struct {
	client      redis.UniversalClient
	maxRequests int
	window      time.Duration
	minInterval time.Duration
}

// NewRedisLimiter creates a limiter backed by redis
func NewRedisLimiter(client redis.UniversalClient, maxRequests int, window, minInterval time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:      client,
		maxRequests: maxRequests,
		window:      window,
		minInterval: minInterval,
	}
}

var _ domainRatelimit.Limiter = (*RedisLimiter)(nil)

func (l *RedisLimiter) Check(ctx context.Context, key string) (domainRatelimit.Decision, error) {
	now := time.Now().UnixMilli()
	result, err := slidingWindowScript.Run(ctx, l.client,
		[]string{redisKeyPrefix + key, redisKeyPrefix + key + ":gate"},
		now,
		l.window.Milliseconds(),
		l.maxRequests,
		l.minInterval.Milliseconds(),
		fmt.Sprintf("%d-%s", now, uuid.NewString()),
	).Int64Slice()
	if err != nil {
		return domainRatelimit.Decision{}, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}
	if len(result) != 2 {
		return domainRatelimit.Decision{}, fmt.Errorf("unexpected rate limit reply %v", result)
	}

	return domainRatelimit.Decision{
		Allowed:    result[0] == 1,
		RetryAfter: time.Duration(result[1]) * time.Millisecond,
	}, nil
}
