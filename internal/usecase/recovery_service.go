package usecase

import (
	"context"
	"fmt"

	"github.com/wekeepgrowing/storybook/internal/domain/entity"
	domainRepo "github.com/wekeepgrowing/storybook/internal/domain/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// RecoveryService applies credits of verified payments whose application was
// never confirmed in the audit trail.
type RecoveryService struct {
	creditRepo domainRepo.CreditRepository
	notifier   *BalanceNotifier
	logger     *zap.Logger
}

func NewRecoveryService(creditRepo domainRepo.CreditRepository, notifier *BalanceNotifier, logger *zap.Logger) *RecoveryService {
	return &RecoveryService{
		creditRepo: creditRepo,
		notifier:   notifier,
		logger:     logger,
	}
}

// RecoverMissingCredits sweeps userID's own ledger. Running it again after a
// successful sweep changes nothing.
func (s *RecoveryService) RecoverMissingCredits(ctx context.Context, userID string) *entity.PaymentResult {
	requestID := newRequestID()
	res := &entity.PaymentResult{RequestID: requestID}

	if userID == "" {
		res.Message = MsgAuthRequired
		return res
	}

	ctx, span := tracer.Start(ctx, "RecoveryService.RecoverMissingCredits")
	defer span.End()

	logger := s.logger.With(
		zap.String("request_id", requestID),
		zap.String("user_id", userID))

	outcome, err := s.creditRepo.RecoverUnappliedCredits(ctx, userID)
	if err != nil {
		span.RecordError(err)
		logger.Error("Credit recovery failed", zap.Error(err))
		res.Message = "Credit recovery failed. Please try again later."
		res.CanRetry = true
		return res
	}

	span.SetAttributes(
		attribute.Int("recovery.transactions", len(outcome.RecoveredTransactionIDs)),
		attribute.Int("recovery.credits", outcome.CreditsApplied),
	)
	if len(outcome.Skipped) > 0 {
		logger.Warn("Verified transactions without recorded credits were skipped",
			zap.Int64s("transaction_ids", outcome.Skipped))
	}

	res.Success = true
	res.NewBalance = intPtr(outcome.NewBalance)
	res.RecoveredCredits = outcome.CreditsApplied
	res.RecoveredTransactions = len(outcome.RecoveredTransactionIDs)

	if outcome.CreditsApplied == 0 {
		res.Message = "No missing credits found."
		return res
	}

	logger.Info("Recovered missing credits",
		zap.Int64s("transaction_ids", outcome.RecoveredTransactionIDs),
		zap.Int("credits", outcome.CreditsApplied),
		zap.Int("new_balance", outcome.NewBalance))

	if s.notifier != nil {
		s.notifier.BalanceChanged(ctx, BalanceChangedEvent{
			UserID:  userID,
			Balance: outcome.NewBalance,
			Delta:   outcome.CreditsApplied,
			Reason:  ReasonRecovery,
		})
	}
	res.Message = fmt.Sprintf("Recovered %d credits from %d payments.", outcome.CreditsApplied, len(outcome.RecoveredTransactionIDs))
	return res
}
