package usecase

import (
	"context"

	"github.com/wekeepgrowing/storybook/internal/domain/model"
	domainRepo "github.com/wekeepgrowing/storybook/internal/domain/repository"
	"go.uber.org/zap"
)

// AuditSink receives a forensic record for every payment outcome, including
// failures that never produced a ledger row. Record never fails the caller.
type AuditSink interface {
	Record(ctx context.Context, entry *model.PaymentAuditLog)
}

type repositoryAuditSink struct {
	repo   domainRepo.AuditRepository
	logger *zap.Logger
}

// NewAuditSink logs each entry and appends it to the audit trail.
func NewAuditSink(repo domainRepo.AuditRepository, logger *zap.Logger) AuditSink {
	return &repositoryAuditSink{
		repo:   repo,
		logger: logger,
	}
}

func (s *repositoryAuditSink) Record(ctx context.Context, entry *model.PaymentAuditLog) {
	fields := []zap.Field{
		zap.String("order_id", entry.OrderID),
		zap.String("user_id", entry.UserID),
		zap.String("new_status", entry.NewStatus),
		zap.String("changed_by", entry.ChangedBy),
		zap.String("reason", entry.Reason),
		zap.String("request_id", entry.RequestID),
		zap.Int("attempt", entry.Attempt),
	}
	if entry.TransactionID != nil {
		fields = append(fields, zap.Int64("transaction_id", *entry.TransactionID))
	}
	s.logger.Info("Payment audit", fields...)

	// The trail must survive a cancelled request.
	if err := s.repo.Append(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("Failed to append payment audit entry",
			append(fields, zap.Error(err))...)
	}
}
