package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wekeepgrowing/storybook/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/storybook/internal/domain/errors"
	"github.com/wekeepgrowing/storybook/internal/domain/model"
	domainRepo "github.com/wekeepgrowing/storybook/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// errAlreadyApplied aborts a crediting transaction that lost the race for an
// idempotency key.
var errAlreadyApplied = errors.New("payment already applied")

// creditRepository implements the CreditRepository interface
type creditRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewCreditRepository creates a new credit repository instance
func NewCreditRepository(db *gorm.DB, logger *zap.Logger) domainRepo.CreditRepository {
	return &creditRepository{
		db:     db,
		logger: logger,
	}
}

// GetBalance retrieves the current credit balance for a user
func (r *creditRepository) GetBalance(ctx context.Context, userID string) (int, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		r.logger.Error("Failed to get credit balance",
			zap.String("user_id", userID),
			zap.Error(err))
		return 0, fmt.Errorf("failed to get credit balance: %w", err)
	}
	return account.Credits, nil
}

// lockAccount makes sure the account row exists and locks it for the rest of
// the transaction. All balance mutations lock the account before touching
// ledger rows so concurrent paths for one user acquire locks in one order.
func lockAccount(tx *gorm.DB, userID string) (*model.Account, error) {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.Account{UserID: userID}).Error; err != nil {
		return nil, fmt.Errorf("failed to ensure account: %w", err)
	}

	var account model.Account
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&account).Error; err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}
	return &account, nil
}

func addCredits(tx *gorm.DB, account *model.Account, credits int) error {
	result := tx.Model(&model.Account{}).
		Where("user_id = ?", account.UserID).
		Updates(map[string]interface{}{
			"credits":    gorm.Expr("credits + ?", credits),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to increment credits: %w", result.Error)
	}
	account.Credits += credits
	return nil
}

// ApplyPaymentCredit is the single crediting primitive shared by the capture
// flow and the webhook receiver.
func (r *creditRepository) ApplyPaymentCredit(ctx context.Context, row *model.PaymentTransaction, credits int, audit model.PaymentAuditLog) (*entity.CreditOutcome, error) {
	if credits <= 0 {
		return nil, fmt.Errorf("credits must be positive, got %d", credits)
	}

	var outcome entity.CreditOutcome

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := lockAccount(tx, row.UserID)
		if err != nil {
			return err
		}

		// Re-check the idempotency key inside the transaction.
		var existing model.PaymentTransaction
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("order_id = ? AND user_id = ?", row.OrderID, row.UserID).
			First(&existing).Error
		found := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check existing transaction: %w", err)
		}

		if found && existing.Status.IsTerminalSuccess() {
			outcome = entity.CreditOutcome{
				Transaction:      &existing,
				NewBalance:       account.Credits,
				AlreadyProcessed: true,
			}
			return nil
		}

		claimed, err := claimedByOtherUser(tx, row.Provider, row.OrderID, row.UserID)
		if err != nil {
			return err
		}
		if claimed {
			return domainErrors.ErrOrderClaimed
		}

		now := time.Now()
		row.Status = model.TransactionStatusCompleted
		if row.VerifiedAt == nil {
			row.VerifiedAt = &now
		}

		var previous *string
		if found {
			prev := string(existing.Status)
			previous = &prev
			row.ID = existing.ID
			row.CreatedAt = existing.CreatedAt
			if err := tx.Model(&existing).Updates(map[string]interface{}{
				"provider":    row.Provider,
				"package_id":  row.PackageID,
				"capture_id":  row.CaptureID,
				"amount":      row.Amount,
				"currency":    row.Currency,
				"status":      row.Status,
				"raw_payload": row.RawPayload,
				"verified_at": row.VerifiedAt,
			}).Error; err != nil {
				return fmt.Errorf("failed to complete transaction: %w", err)
			}
		} else if err := tx.Create(row).Error; err != nil {
			if isDuplicateKey(err) {
				return errAlreadyApplied
			}
			return fmt.Errorf("failed to create transaction: %w", err)
		}

		if err := addCredits(tx, account, credits); err != nil {
			return err
		}

		audit.TransactionID = &row.ID
		audit.OrderID = row.OrderID
		audit.UserID = row.UserID
		audit.PreviousStatus = previous
		audit.NewStatus = string(model.TransactionStatusCompleted)
		if err := tx.Create(&audit).Error; err != nil {
			return fmt.Errorf("failed to append audit log: %w", err)
		}

		outcome = entity.CreditOutcome{
			Transaction:    row,
			NewBalance:     account.Credits,
			CreditsApplied: credits,
		}
		return nil
	})

	if errors.Is(err, errAlreadyApplied) {
		return r.alreadyProcessed(ctx, row.OrderID, row.UserID)
	}
	if errors.Is(err, domainErrors.ErrOrderClaimed) {
		r.logger.Warn("Order already credited to another account",
			zap.String("order_id", row.OrderID),
			zap.String("user_id", row.UserID),
			zap.String("provider", row.Provider))
		return nil, err
	}
	if err != nil {
		r.logger.Error("Credit transaction failed",
			zap.String("order_id", row.OrderID),
			zap.String("user_id", row.UserID),
			zap.Error(err))
		return nil, err
	}

	if outcome.AlreadyProcessed {
		r.logger.Info("Payment already applied (idempotency)",
			zap.String("order_id", row.OrderID),
			zap.String("user_id", row.UserID),
			zap.Int64("transaction_id", outcome.Transaction.ID))
	} else {
		r.logger.Info("Payment credits applied",
			zap.String("order_id", row.OrderID),
			zap.String("user_id", row.UserID),
			zap.Int64("transaction_id", outcome.Transaction.ID),
			zap.Int("credits", credits),
			zap.Int("new_balance", outcome.NewBalance))
	}
	return &outcome, nil
}

// claimedByOtherUser reports whether the provider order was already credited
// under a different user. An order id pays for one account only.
func claimedByOtherUser(tx *gorm.DB, providerName, orderID, userID string) (bool, error) {
	var n int64
	if err := tx.Model(&model.PaymentTransaction{}).
		Where("provider = ? AND order_id = ? AND user_id <> ?", providerName, orderID, userID).
		Where("status = ?", model.TransactionStatusCompleted).
		Count(&n).Error; err != nil {
		return false, fmt.Errorf("failed to check order ownership: %w", err)
	}
	return n > 0, nil
}

// alreadyProcessed reads the winner's row after a lost insert race.
func (r *creditRepository) alreadyProcessed(ctx context.Context, orderID, userID string) (*entity.CreditOutcome, error) {
	var existing model.PaymentTransaction
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND user_id = ?", orderID, userID).
		First(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to load concurrent transaction: %w", err)
	}
	if !existing.Status.IsTerminalSuccess() {
		return nil, domainErrors.Retryable(fmt.Errorf("transaction %d is %s after concurrent insert", existing.ID, existing.Status))
	}

	balance, err := r.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	r.logger.Info("Lost idempotency race, returning existing transaction",
		zap.String("order_id", orderID),
		zap.String("user_id", userID),
		zap.Int64("transaction_id", existing.ID))

	return &entity.CreditOutcome{
		Transaction:      &existing,
		NewBalance:       balance,
		AlreadyProcessed: true,
	}, nil
}

// RecoverUnappliedCredits finds verified transactions with no applied marker
// and credits them in one transaction. The intended credit count is read from
// each row's raw payload, which is the one place that payload drives logic.
func (r *creditRepository) RecoverUnappliedCredits(ctx context.Context, userID string) (*entity.RecoveryOutcome, error) {
	outcome := &entity.RecoveryOutcome{}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := lockAccount(tx, userID)
		if err != nil {
			return err
		}

		applied := tx.Model(&model.PaymentAuditLog{}).
			Select("1").
			Where("payment_audit_logs.transaction_id = payment_transactions.id").
			Where("payment_audit_logs.new_status IN ?", model.AppliedMarkers)

		claimed := tx.Table("payment_transactions AS other").
			Select("1").
			Where("other.provider = payment_transactions.provider").
			Where("other.order_id = payment_transactions.order_id").
			Where("other.user_id <> payment_transactions.user_id").
			Where("other.status = ?", model.TransactionStatusCompleted)

		var candidates []model.PaymentTransaction
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			Where("status IN ?", []model.TransactionStatus{model.TransactionStatusCompleted, model.TransactionStatusVerified}).
			Where("verified_at IS NOT NULL").
			Where("NOT EXISTS (?)", applied).
			Where("NOT EXISTS (?)", claimed).
			Order("id").
			Find(&candidates).Error; err != nil {
			return fmt.Errorf("failed to find unapplied transactions: %w", err)
		}

		total := 0
		var audits []model.PaymentAuditLog
		var verifiedIDs []int64
		for i := range candidates {
			candidate := &candidates[i]
			credits, ok := candidate.IntendedCredits()
			if !ok {
				r.logger.Warn("Skipping recovery candidate without recorded credits",
					zap.Int64("transaction_id", candidate.ID),
					zap.String("order_id", candidate.OrderID),
					zap.String("user_id", userID))
				outcome.Skipped = append(outcome.Skipped, candidate.ID)
				continue
			}

			total += credits
			previous := string(candidate.Status)
			audits = append(audits, model.PaymentAuditLog{
				TransactionID:  &candidate.ID,
				OrderID:        candidate.OrderID,
				UserID:         userID,
				PreviousStatus: &previous,
				NewStatus:      model.AuditStatusCreditsRecovered,
				ChangedBy:      model.ChangedByRecovery,
				Reason:         fmt.Sprintf("recovered %d credits for verified payment", credits),
			})
			if candidate.Status == model.TransactionStatusVerified {
				verifiedIDs = append(verifiedIDs, candidate.ID)
			}
			outcome.RecoveredTransactionIDs = append(outcome.RecoveredTransactionIDs, candidate.ID)
		}

		if total == 0 {
			outcome.NewBalance = account.Credits
			return nil
		}

		if err := addCredits(tx, account, total); err != nil {
			return err
		}
		if err := tx.CreateInBatches(&audits, 100).Error; err != nil {
			return fmt.Errorf("failed to append recovery audit logs: %w", err)
		}
		if len(verifiedIDs) > 0 {
			if err := tx.Model(&model.PaymentTransaction{}).
				Where("id IN ?", verifiedIDs).
				Update("status", model.TransactionStatusCompleted).Error; err != nil {
				return fmt.Errorf("failed to complete recovered transactions: %w", err)
			}
		}

		outcome.CreditsApplied = total
		outcome.NewBalance = account.Credits
		return nil
	})
	if err != nil {
		r.logger.Error("Credit recovery failed",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, err
	}

	r.logger.Info("Credit recovery finished",
		zap.String("user_id", userID),
		zap.Int("recovered_transactions", len(outcome.RecoveredTransactionIDs)),
		zap.Int("credits_applied", outcome.CreditsApplied),
		zap.Int("skipped", len(outcome.Skipped)),
		zap.Int("new_balance", outcome.NewBalance))
	return outcome, nil
}

// SpendCreditAndRecord debits exactly one credit and stores the generation.
// The conditional update is the only guard against going below zero.
func (r *creditRepository) SpendCreditAndRecord(ctx context.Context, userID string, record *model.StoryGeneration) (*entity.SpendResult, error) {
	var result entity.SpendResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		debit := tx.Model(&model.Account{}).
			Where("user_id = ? AND credits > 0", userID).
			Updates(map[string]interface{}{
				"credits":    gorm.Expr("credits - 1"),
				"updated_at": time.Now(),
			})
		if debit.Error != nil {
			return fmt.Errorf("failed to debit credit: %w", debit.Error)
		}
		if debit.RowsAffected == 0 {
			return domainErrors.NewInsufficientCreditsError(userID)
		}

		var account model.Account
		if err := tx.Where("user_id = ?", userID).First(&account).Error; err != nil {
			return fmt.Errorf("failed to read balance after debit: %w", err)
		}

		record.UserID = userID
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("failed to create generation record: %w", err)
		}

		result = entity.SpendResult{
			RecordID:         record.ID.String(),
			CreditsRemaining: account.Credits,
		}
		return nil
	})
	if err != nil {
		var insufficient *domainErrors.InsufficientCreditsError
		if errors.As(err, &insufficient) {
			r.logger.Info("Credit debit rejected, no credits left", zap.String("user_id", userID))
		} else {
			r.logger.Error("Credit debit failed",
				zap.String("user_id", userID),
				zap.Error(err))
		}
		return nil, err
	}

	r.logger.Info("Credit spent for generation",
		zap.String("user_id", userID),
		zap.String("record_id", result.RecordID),
		zap.Int("credits_remaining", result.CreditsRemaining))
	return &result, nil
}
