package repository

import (
	"context"

	"github.com/wekeepgrowing/storybook/internal/domain/entity"
	"github.com/wekeepgrowing/storybook/internal/domain/model"
)

// CreditRepository owns every balance mutation. Each method runs in a single
// database transaction together with the rows that justify the change.
type CreditRepository interface {
	// GetBalance returns 0 for users without an account row.
	GetBalance(ctx context.Context, userID string) (int, error)

	// ApplyPaymentCredit marks row COMPLETED, adds credits to the balance and
	// appends the COMPLETED audit entry. If the (order_id, user_id) pair is
	// already COMPLETED, nothing is written and AlreadyProcessed is set.
	ApplyPaymentCredit(ctx context.Context, row *model.PaymentTransaction, credits int, audit model.PaymentAuditLog) (*entity.CreditOutcome, error)

	// RecoverUnappliedCredits applies credits of verified transactions that
	// have no applied marker in the audit trail.
	RecoverUnappliedCredits(ctx context.Context, userID string) (*entity.RecoveryOutcome, error)

	// SpendCreditAndRecord debits one credit and inserts record, or fails with
	// InsufficientCreditsError without writing anything.
	SpendCreditAndRecord(ctx context.Context, userID string, record *model.StoryGeneration) (*entity.SpendResult, error)
}

// StoryRepository reads persisted generations.
type StoryRepository interface {
	ListByUser(ctx context.Context, userID string, params entity.PaginationParams) ([]model.StoryGeneration, int64, error)
}
