package ratelimit

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/wekeepgrowing/storybook/internal/config"
	domainRatelimit "github.com/wekeepgrowing/storybook/internal/domain/ratelimit"
)

// New selects the limiter backend from configuration. client may be nil when
// the memory backend is configured.
func New(cfg config.RateLimitConfig, client redis.UniversalClient) (domainRatelimit.Limiter, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryLimiter(cfg.MaxRequests, cfg.Window, cfg.MinInterval), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("rate_limit.backend is redis but redis is disabled")
		}
		return NewRedisLimiter(client, cfg.MaxRequests, cfg.Window, cfg.MinInterval), nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", cfg.Backend)
	}
}
