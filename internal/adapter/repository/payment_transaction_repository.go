package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/wekeepgrowing/storybook/internal/domain/entity"
	"github.com/wekeepgrowing/storybook/internal/domain/model"
	domainRepo "github.com/wekeepgrowing/storybook/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type paymentTransactionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPaymentTransactionRepository creates the idempotency ledger store
func NewPaymentTransactionRepository(db *gorm.DB, logger *zap.Logger) domainRepo.PaymentTransactionRepository {
	return &paymentTransactionRepository{
		db:     db,
		logger: logger,
	}
}

// FindByOrderAndUser retrieves the ledger row for an idempotency key
func (r *paymentTransactionRepository) FindByOrderAndUser(ctx context.Context, orderID, userID string) (*model.PaymentTransaction, error) {
	var row model.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND user_id = ?", orderID, userID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to find payment transaction",
			zap.String("order_id", orderID),
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to find payment transaction: %w", err)
	}
	return &row, nil
}

// RecordAttempt stores a non-crediting outcome so that retries converge on
// one row per (order_id, user_id).
func (r *paymentTransactionRepository) RecordAttempt(ctx context.Context, row *model.PaymentTransaction, audit *model.PaymentAuditLog) (*model.PaymentTransaction, error) {
	if row.Status.IsTerminalSuccess() {
		return nil, fmt.Errorf("status %s can only be written by the crediting transaction", row.Status)
	}

	var stored model.PaymentTransaction

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		insert := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
		if insert.Error != nil {
			return fmt.Errorf("failed to insert payment transaction: %w", insert.Error)
		}

		var previous *string
		if insert.RowsAffected == 1 {
			stored = *row
		} else {
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("order_id = ? AND user_id = ?", row.OrderID, row.UserID).
				First(&stored).Error; err != nil {
				return fmt.Errorf("failed to lock payment transaction: %w", err)
			}

			prev := string(stored.Status)
			previous = &prev

			// Verified or completed rows are never downgraded by a later failure.
			if stored.Status != model.TransactionStatusVerified && !stored.Status.IsTerminalSuccess() {
				updates := map[string]interface{}{
					"status":      row.Status,
					"amount":      row.Amount,
					"currency":    row.Currency,
					"raw_payload": row.RawPayload,
				}
				if row.PackageID != 0 {
					updates["package_id"] = row.PackageID
				}
				if row.CaptureID != nil {
					updates["capture_id"] = row.CaptureID
				}
				if row.VerifiedAt != nil {
					updates["verified_at"] = row.VerifiedAt
				}
				if err := tx.Model(&stored).Updates(updates).Error; err != nil {
					return fmt.Errorf("failed to update payment transaction: %w", err)
				}
				if err := tx.First(&stored, stored.ID).Error; err != nil {
					return fmt.Errorf("failed to reload payment transaction: %w", err)
				}
			}
		}

		if audit != nil {
			audit.TransactionID = &stored.ID
			audit.OrderID = stored.OrderID
			audit.UserID = stored.UserID
			audit.PreviousStatus = previous
			if err := tx.Create(audit).Error; err != nil {
				return fmt.Errorf("failed to append audit log: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to record payment attempt",
			zap.String("order_id", row.OrderID),
			zap.String("user_id", row.UserID),
			zap.String("status", string(row.Status)),
			zap.Error(err))
		return nil, err
	}

	r.logger.Debug("Payment attempt recorded",
		zap.Int64("transaction_id", stored.ID),
		zap.String("order_id", stored.OrderID),
		zap.String("status", string(stored.Status)))
	return &stored, nil
}

// ListByUser pages through a user's ledger, newest first
func (r *paymentTransactionRepository) ListByUser(ctx context.Context, userID string, params entity.PaginationParams) ([]model.PaymentTransaction, int64, error) {
	params.Normalize()

	query := r.db.WithContext(ctx).Model(&model.PaymentTransaction{}).Where("user_id = ?", userID).Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		r.logger.Error("Failed to count payment transactions",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, 0, fmt.Errorf("failed to count payment transactions: %w", err)
	}

	var rows []model.PaymentTransaction
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(params.Limit).
		Offset(params.Offset).
		Find(&rows).Error; err != nil {
		r.logger.Error("Failed to list payment transactions",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, 0, fmt.Errorf("failed to list payment transactions: %w", err)
	}

	return rows, total, nil
}
