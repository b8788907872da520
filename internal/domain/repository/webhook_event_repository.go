package repository

import (
	"context"

	"github.com/wekeepgrowing/storybook/internal/domain/model"
)

// WebhookEventRepository journals inbound provider events.
type WebhookEventRepository interface {
	// SaveEvent stores the event once per (provider, event_id) and returns the
	// stored row, which may be an earlier delivery of the same event.
	SaveEvent(ctx context.Context, provider, eventID, eventType string, data map[string]interface{}) (*model.WebhookEvent, error)
	GetEvent(ctx context.Context, provider, eventID string) (*model.WebhookEvent, error)
	MarkProcessed(ctx context.Context, provider, eventID string, status model.WebhookStatus) error
	MarkFailed(ctx context.Context, provider, eventID string, err error) error
}
