package usecase

import (
	"context"

	domainCache "github.com/wekeepgrowing/storybook/internal/domain/cache"
	"github.com/wekeepgrowing/storybook/pkg/messaging"
	"go.uber.org/zap"
)

// BalanceChangedChannel carries BalanceChangedEvent messages.
const BalanceChangedChannel = "storybook.balance.changed"

// BalanceChangedEvent is published after every committed balance mutation.
type BalanceChangedEvent struct {
	UserID  string `json:"user_id"`
	Balance int    `json:"balance"`
	Delta   int    `json:"delta"`
	Reason  string `json:"reason"`
	OrderID string `json:"order_id,omitempty"`
}

// Balance change reasons.
const (
	ReasonPayment  = "payment"
	ReasonRecovery = "recovery"
	ReasonSpend    = "generation"
)

// BalanceNotifier drops cached balances and announces the change. Both steps
// are best effort: the database is already committed when it runs.
type BalanceNotifier struct {
	cache     domainCache.BalanceCache
	publisher messaging.Publisher
	logger    *zap.Logger
}

func NewBalanceNotifier(cache domainCache.BalanceCache, publisher messaging.Publisher, logger *zap.Logger) *BalanceNotifier {
	if cache == nil {
		cache = domainCache.Nop{}
	}
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	return &BalanceNotifier{
		cache:     cache,
		publisher: publisher,
		logger:    logger,
	}
}

func (n *BalanceNotifier) BalanceChanged(ctx context.Context, event BalanceChangedEvent) {
	ctx = context.WithoutCancel(ctx)

	if err := n.cache.Invalidate(ctx, event.UserID); err != nil {
		n.logger.Warn("Failed to invalidate cached balance",
			zap.String("user_id", event.UserID),
			zap.Error(err))
	}

	if err := n.publisher.Publish(ctx, BalanceChangedChannel, event); err != nil {
		n.logger.Warn("Failed to publish balance change",
			zap.String("user_id", event.UserID),
			zap.String("reason", event.Reason),
			zap.Error(err))
	}
}
