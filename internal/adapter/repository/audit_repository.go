package repository

import (
	"context"
	"fmt"

	"github.com/wekeepgrowing/storybook/internal/domain/model"
	domainRepo "github.com/wekeepgrowing/storybook/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type auditRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewAuditRepository creates the append-only audit trail store
func NewAuditRepository(db *gorm.DB, logger *zap.Logger) domainRepo.AuditRepository {
	return &auditRepository{
		db:     db,
		logger: logger,
	}
}

// Append inserts one audit entry
func (r *auditRepository) Append(ctx context.Context, entry *model.PaymentAuditLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		r.logger.Error("Failed to append audit log",
			zap.String("order_id", entry.OrderID),
			zap.String("user_id", entry.UserID),
			zap.String("new_status", entry.NewStatus),
			zap.Error(err))
		return fmt.Errorf("failed to append audit log: %w", err)
	}
	return nil
}

// ListByTransaction returns the trail of one transaction in insertion order
func (r *auditRepository) ListByTransaction(ctx context.Context, transactionID int64) ([]model.PaymentAuditLog, error) {
	var entries []model.PaymentAuditLog
	if err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		r.logger.Error("Failed to list audit logs",
			zap.Int64("transaction_id", transactionID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return entries, nil
}
