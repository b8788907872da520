package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wekeepgrowing/storybook/internal/config"
	domainCache "github.com/wekeepgrowing/storybook/internal/domain/cache"
	"go.uber.org/zap"
)

const (
	balanceKeyPrefix  = "storybook:balance:"
	defaultBalanceTTL = 5 * time.Minute
)

// NewRedisClient creates a redis client and checks the connection
func NewRedisClient(cfg config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("Redis connection failed",
			zap.String("addr", cfg.Addr),
			zap.Error(err))
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis connection established", zap.String("addr", cfg.Addr))
	return client, nil
}

// RedisBalanceCache implements cache-aside balances on redis
type RedisBalanceCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisBalanceCache creates a balance cache
func NewRedisBalanceCache(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) domainCache.BalanceCache {
	if ttl <= 0 {
		ttl = defaultBalanceTTL
	}
	return &RedisBalanceCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func balanceKey(userID string) string {
	return balanceKeyPrefix + userID
}

func (c *RedisBalanceCache) Get(ctx context.Context, userID string) (int, bool, error) {
	balance, err := c.client.Get(ctx, balanceKey(userID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read cached balance: %w", err)
	}
	return balance, true, nil
}

func (c *RedisBalanceCache) Set(ctx context.Context, userID string, balance int) error {
	if err := c.client.Set(ctx, balanceKey(userID), balance, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache balance: %w", err)
	}
	return nil
}

func (c *RedisBalanceCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, balanceKey(userID)).Err(); err != nil {
		c.logger.Warn("Failed to invalidate cached balance",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to invalidate cached balance: %w", err)
	}
	return nil
}
