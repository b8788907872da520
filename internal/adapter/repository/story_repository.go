package repository

import (
	"context"
	"fmt"

	"github.com/wekeepgrowing/storybook/internal/domain/entity"
	"github.com/wekeepgrowing/storybook/internal/domain/model"
	domainRepo "github.com/wekeepgrowing/storybook/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type storyRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStoryRepository creates a reader for persisted generations
func NewStoryRepository(db *gorm.DB, logger *zap.Logger) domainRepo.StoryRepository {
	return &storyRepository{
		db:     db,
		logger: logger,
	}
}

func (r *storyRepository) ListByUser(ctx context.Context, userID string, params entity.PaginationParams) ([]model.StoryGeneration, int64, error) {
	params.Normalize()

	query := r.db.WithContext(ctx).Model(&model.StoryGeneration{}).Where("user_id = ?", userID).Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count story generations: %w", err)
	}

	var stories []model.StoryGeneration
	if err := query.
		Order("created_at DESC").
		Limit(params.Limit).
		Offset(params.Offset).
		Find(&stories).Error; err != nil {
		r.logger.Error("Failed to list story generations",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, 0, fmt.Errorf("failed to list story generations: %w", err)
	}

	return stories, total, nil
}
