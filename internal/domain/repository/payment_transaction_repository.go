package repository

import (
	"context"

	"github.com/wekeepgrowing/storybook/internal/domain/entity"
	"github.com/wekeepgrowing/storybook/internal/domain/model"
)

// PaymentTransactionRepository is the idempotency ledger.
type PaymentTransactionRepository interface {
	// FindByOrderAndUser returns nil, nil when no row exists.
	FindByOrderAndUser(ctx context.Context, orderID, userID string) (*model.PaymentTransaction, error)

	// RecordAttempt creates or refreshes the (order_id, user_id) row with a
	// non-crediting status and appends audit in the same transaction. Rows
	// already VERIFIED or COMPLETED keep their status; only the audit entry
	// is added.
	RecordAttempt(ctx context.Context, row *model.PaymentTransaction, audit *model.PaymentAuditLog) (*model.PaymentTransaction, error)

	// ListByUser pages through a user's ledger, newest first.
	ListByUser(ctx context.Context, userID string, params entity.PaginationParams) ([]model.PaymentTransaction, int64, error)
}

// AuditRepository appends to the payment audit trail.
type AuditRepository interface {
	Append(ctx context.Context, entry *model.PaymentAuditLog) error
	ListByTransaction(ctx context.Context, transactionID int64) ([]model.PaymentAuditLog, error)
}
