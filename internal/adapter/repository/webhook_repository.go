package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wekeepgrowing/storybook/internal/domain/model"
	domainRepo "github.com/wekeepgrowing/storybook/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxStoredErrorLength bounds last_error so a verbose upstream body cannot
// bloat the journal.
const maxStoredErrorLength = 1024

type webhookRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewWebhookRepository creates a new webhook event journal
func NewWebhookRepository(db *gorm.DB, logger *zap.Logger) domainRepo.WebhookEventRepository {
	return &webhookRepository{
		db:     db,
		logger: logger,
	}
}

// SaveEvent saves a new webhook event
func (r *webhookRepository) SaveEvent(ctx context.Context, provider, eventID, eventType string, data map[string]interface{}) (*model.WebhookEvent, error) {
	event := &model.WebhookEvent{
		Provider:  provider,
		EventID:   eventID,
		EventType: eventType,
		Status:    model.WebhookStatusPending,
		Data:      model.JSONB(data),
	}

	// Use ON CONFLICT to handle redelivered events
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event).Error
	if err != nil {
		r.logger.Error("Failed to save webhook event",
			zap.String("provider", provider),
			zap.String("event_id", eventID),
			zap.String("event_type", eventType),
			zap.Error(err))
		return nil, fmt.Errorf("failed to save webhook event: %w", err)
	}

	stored, err := r.GetEvent(ctx, provider, eventID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("webhook event %s/%s vanished after insert", provider, eventID)
	}
	return stored, nil
}

// GetEvent returns nil, nil when the event was never stored.
func (r *webhookRepository) GetEvent(ctx context.Context, provider, eventID string) (*model.WebhookEvent, error) {
	var event model.WebhookEvent

	err := r.db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", provider, eventID).
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get webhook event",
			zap.String("provider", provider),
			zap.String("event_id", eventID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get webhook event: %w", err)
	}

	return &event, nil
}

// MarkProcessed records the final state of a handled event.
func (r *webhookRepository) MarkProcessed(ctx context.Context, provider, eventID string, status model.WebhookStatus) error {
	now := time.Now()

	result := r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("provider = ? AND event_id = ?", provider, eventID).
		Updates(map[string]interface{}{
			"status":              status,
			"processed_at":        &now,
			"processing_attempts": gorm.Expr("processing_attempts + 1"),
			"last_error":          nil,
		})
	if result.Error != nil {
		r.logger.Error("Failed to mark webhook as processed",
			zap.String("provider", provider),
			zap.String("event_id", eventID),
			zap.Error(result.Error))
		return fmt.Errorf("failed to mark webhook as processed: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("webhook event not found: %s/%s", provider, eventID)
	}
	return nil
}

// MarkFailed marks a webhook event as failed. The provider redelivers, so no
// retry schedule is kept here.
func (r *webhookRepository) MarkFailed(ctx context.Context, provider, eventID string, cause error) error {
	errorMsg := cause.Error()
	if len(errorMsg) > maxStoredErrorLength {
		errorMsg = errorMsg[:maxStoredErrorLength]
	}

	result := r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("provider = ? AND event_id = ?", provider, eventID).
		Updates(map[string]interface{}{
			"status":              model.WebhookStatusFailed,
			"processing_attempts": gorm.Expr("processing_attempts + 1"),
			"last_error":          &errorMsg,
		})
	if result.Error != nil {
		r.logger.Error("Failed to mark webhook as failed",
			zap.String("provider", provider),
			zap.String("event_id", eventID),
			zap.Error(result.Error))
		return fmt.Errorf("failed to mark webhook as failed: %w", result.Error)
	}

	return nil
}
