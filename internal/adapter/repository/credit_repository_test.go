package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainErrors "github.com/wekeepgrowing/storybook/internal/domain/errors"
	"github.com/wekeepgrowing/storybook/internal/domain/model"
	"go.uber.org/zap"
)

func completedRow(orderID, userID string, credits int) *model.PaymentTransaction {
	now := time.Now()
	capture := "CAP-" + orderID
	return &model.PaymentTransaction{
		OrderID:    orderID,
		UserID:     userID,
		Provider:   model.ProviderPayPal,
		PackageID:  2,
		CaptureID:  &capture,
		Amount:     decimal.RequireFromString("4.99"),
		Currency:   "USD",
		RawPayload: model.JSONB{model.PayloadKeyCredits: credits, model.PayloadKeyPackageID: 2},
		VerifiedAt: &now,
	}
}

func creditAudit() model.PaymentAuditLog {
	return model.PaymentAuditLog{
		ChangedBy: model.ChangedByPayPal,
		Reason:    "payment verified",
		RequestID: "req1",
		Attempt:   1,
	}
}

func TestCreditRepository_ApplyPaymentCredit(t *testing.T) {
	ctx := context.Background()

	t.Run("credits a new order once", func(t *testing.T) {
		db := newTestDB(t)
		repo := NewCreditRepository(db, zap.NewNop())

		outcome, err := repo.ApplyPaymentCredit(ctx, completedRow("ORDER123", "user-1", 7), 7, creditAudit())
		require.NoError(t, err)
		assert.False(t, outcome.AlreadyProcessed)
		assert.Equal(t, 7, outcome.NewBalance)
		assert.Equal(t, 7, outcome.CreditsApplied)
		assert.Equal(t, model.TransactionStatusCompleted, outcome.Transaction.Status)

		again, err := repo.ApplyPaymentCredit(ctx, completedRow("ORDER123", "user-1", 7), 7, creditAudit())
		require.NoError(t, err)
		assert.True(t, again.AlreadyProcessed)
		assert.Equal(t, 7, again.NewBalance)
		assert.Equal(t, outcome.Transaction.ID, again.Transaction.ID)

		balance, err := repo.GetBalance(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, 7, balance)
		assert.Equal(t, int64(1), countAudit(t, db, string(model.TransactionStatusCompleted)))
	})

	t.Run("completes an earlier failed row", func(t *testing.T) {
		db := newTestDB(t)
		repo := NewCreditRepository(db, zap.NewNop())
		require.NoError(t, db.Create(&model.PaymentTransaction{
			OrderID:  "O-FAILED",
			UserID:   "user-2",
			Provider: model.ProviderPayPal,
			Amount:   decimal.Zero,
			Currency: "USD",
			Status:   model.TransactionStatusFailed,
		}).Error)

		outcome, err := repo.ApplyPaymentCredit(ctx, completedRow("O-FAILED", "user-2", 3), 3, creditAudit())
		require.NoError(t, err)
		assert.Equal(t, 3, outcome.NewBalance)

		var rows []model.PaymentTransaction
		require.NoError(t, db.Where("order_id = ?", "O-FAILED").Find(&rows).Error)
		require.Len(t, rows, 1)
		assert.Equal(t, model.TransactionStatusCompleted, rows[0].Status)

		var entry model.PaymentAuditLog
		require.NoError(t, db.Where("transaction_id = ?", rows[0].ID).First(&entry).Error)
		require.NotNil(t, entry.PreviousStatus)
		assert.Equal(t, string(model.TransactionStatusFailed), *entry.PreviousStatus)
	})

	t.Run("order credited to one user is refused for another", func(t *testing.T) {
		db := newTestDB(t)
		repo := NewCreditRepository(db, zap.NewNop())

		_, err := repo.ApplyPaymentCredit(ctx, completedRow("SHARED", "user-a", 3), 3, creditAudit())
		require.NoError(t, err)
		_, err = repo.ApplyPaymentCredit(ctx, completedRow("SHARED", "user-b", 3), 3, creditAudit())
		require.ErrorIs(t, err, domainErrors.ErrOrderClaimed)

		balance, err := repo.GetBalance(ctx, "user-b")
		require.NoError(t, err)
		assert.Zero(t, balance)

		var n int64
		require.NoError(t, db.Model(&model.PaymentTransaction{}).Where("order_id = ? AND user_id = ?", "SHARED", "user-b").Count(&n).Error)
		assert.Zero(t, n)
		assert.Equal(t, int64(1), countAudit(t, db, string(model.TransactionStatusCompleted)))
	})

	t.Run("rejects non-positive credits", func(t *testing.T) {
		repo := NewCreditRepository(newTestDB(t), zap.NewNop())
		_, err := repo.ApplyPaymentCredit(ctx, completedRow("O-0", "user-1", 0), 0, creditAudit())
		assert.Error(t, err)
	})
}

func TestCreditRepository_ApplyPaymentCredit_Concurrent(t *testing.T) {
	db := newTestDB(t)
	repo := NewCreditRepository(db, zap.NewNop())
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := repo.ApplyPaymentCredit(ctx, completedRow("RACE-1", "user-race", 7), 7, creditAudit())
			if assert.NoError(t, err) {
				results <- outcome.AlreadyProcessed
			}
		}()
	}
	wg.Wait()
	close(results)

	applied := 0
	for already := range results {
		if !already {
			applied++
		}
	}
	assert.Equal(t, 1, applied)

	balance, err := repo.GetBalance(ctx, "user-race")
	require.NoError(t, err)
	assert.Equal(t, 7, balance)
	assert.Equal(t, int64(1), countAudit(t, db, string(model.TransactionStatusCompleted)))
}

func TestCreditRepository_RecoverUnappliedCredits(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewCreditRepository(db, zap.NewNop())
	now := time.Now()

	// Completed but the credit step was lost.
	require.NoError(t, db.Create(&model.PaymentTransaction{
		OrderID: "LOST-1", UserID: "user-r", Provider: model.ProviderPayPal,
		Amount: decimal.RequireFromString("4.99"), Currency: "USD",
		Status: model.TransactionStatusCompleted, VerifiedAt: &now,
		RawPayload: model.JSONB{model.PayloadKeyCredits: 7},
	}).Error)
	// Verified through the verify endpoint only.
	require.NoError(t, db.Create(&model.PaymentTransaction{
		OrderID: "VER-1", UserID: "user-r", Provider: model.ProviderPayPal,
		Amount: decimal.RequireFromString("3.99"), Currency: "USD",
		Status: model.TransactionStatusVerified, VerifiedAt: &now,
		RawPayload: model.JSONB{model.PayloadKeyCredits: "3"},
	}).Error)
	// No credit count recorded: skipped.
	require.NoError(t, db.Create(&model.PaymentTransaction{
		OrderID: "NOCREDITS", UserID: "user-r", Provider: model.ProviderPayPal,
		Amount: decimal.RequireFromString("9.99"), Currency: "USD",
		Status: model.TransactionStatusVerified, VerifiedAt: &now,
	}).Error)
	// Properly applied payment: must not be touched.
	_, err := repo.ApplyPaymentCredit(ctx, completedRow("OK-1", "user-r", 12), 12, creditAudit())
	require.NoError(t, err)
	// Failed rows are never candidates.
	require.NoError(t, db.Create(&model.PaymentTransaction{
		OrderID: "FAIL-1", UserID: "user-r", Provider: model.ProviderPayPal,
		Amount: decimal.Zero, Currency: "USD", Status: model.TransactionStatusFailed,
		RawPayload: model.JSONB{model.PayloadKeyCredits: 99},
	}).Error)

	outcome, err := repo.RecoverUnappliedCredits(ctx, "user-r")
	require.NoError(t, err)
	assert.Equal(t, 10, outcome.CreditsApplied)
	assert.Len(t, outcome.RecoveredTransactionIDs, 2)
	assert.Len(t, outcome.Skipped, 1)
	assert.Equal(t, 22, outcome.NewBalance)
	assert.Equal(t, int64(2), countAudit(t, db, model.AuditStatusCreditsRecovered))

	var verified model.PaymentTransaction
	require.NoError(t, db.Where("order_id = ?", "VER-1").First(&verified).Error)
	assert.Equal(t, model.TransactionStatusCompleted, verified.Status)

	// Running again changes nothing.
	second, err := repo.RecoverUnappliedCredits(ctx, "user-r")
	require.NoError(t, err)
	assert.Zero(t, second.CreditsApplied)
	assert.Empty(t, second.RecoveredTransactionIDs)
	assert.Equal(t, 22, second.NewBalance)
	assert.Equal(t, int64(2), countAudit(t, db, model.AuditStatusCreditsRecovered))
}

func TestCreditRepository_RecoverUnappliedCredits_SkipsOrderOfAnotherUser(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewCreditRepository(db, zap.NewNop())
	now := time.Now()

	_, err := repo.ApplyPaymentCredit(ctx, completedRow("TAKEN-1", "user-a", 7), 7, creditAudit())
	require.NoError(t, err)
	require.NoError(t, db.Create(&model.PaymentTransaction{
		OrderID: "TAKEN-1", UserID: "user-b", Provider: model.ProviderPayPal,
		Amount: decimal.RequireFromString("4.99"), Currency: "USD",
		Status: model.TransactionStatusVerified, VerifiedAt: &now,
		RawPayload: model.JSONB{model.PayloadKeyCredits: 7},
	}).Error)

	outcome, err := repo.RecoverUnappliedCredits(ctx, "user-b")
	require.NoError(t, err)
	assert.Zero(t, outcome.CreditsApplied)
	assert.Empty(t, outcome.RecoveredTransactionIDs)
	assert.Zero(t, outcome.NewBalance)
	assert.Zero(t, countAudit(t, db, model.AuditStatusCreditsRecovered))
}

func TestCreditRepository_SpendCreditAndRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("debits one credit and stores the record", func(t *testing.T) {
		db := newTestDB(t)
		repo := NewCreditRepository(db, zap.NewNop())
		seedBalance(t, db, "user-s", 2)

		result, err := repo.SpendCreditAndRecord(ctx, "user-s", &model.StoryGeneration{
			Title: "The Fox", Subject: "a fox", AgeGroup: "6-8",
			SourceLanguage: "en", TargetLanguage: "es",
			Chapters: []model.Chapter{{Number: 1, Title: "Start", SourceText: "Hi", TargetText: "Hola"}},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, result.CreditsRemaining)
		assert.NotEmpty(t, result.RecordID)

		var stored model.StoryGeneration
		require.NoError(t, db.First(&stored, "id = ?", result.RecordID).Error)
		assert.Equal(t, "user-s", stored.UserID)
		require.Len(t, stored.Chapters, 1)
		assert.Equal(t, "Hola", stored.Chapters[0].TargetText)
	})

	t.Run("zero balance writes nothing", func(t *testing.T) {
		db := newTestDB(t)
		repo := NewCreditRepository(db, zap.NewNop())
		seedBalance(t, db, "user-empty", 0)

		_, err := repo.SpendCreditAndRecord(ctx, "user-empty", &model.StoryGeneration{Title: "x", Subject: "x", AgeGroup: "6-8", SourceLanguage: "en", TargetLanguage: "fr"})
		var insufficient *domainErrors.InsufficientCreditsError
		require.ErrorAs(t, err, &insufficient)

		var n int64
		require.NoError(t, db.Model(&model.StoryGeneration{}).Count(&n).Error)
		assert.Zero(t, n)
	})

	t.Run("missing account is insufficient", func(t *testing.T) {
		repo := NewCreditRepository(newTestDB(t), zap.NewNop())
		_, err := repo.SpendCreditAndRecord(ctx, "nobody", &model.StoryGeneration{Title: "x", Subject: "x", AgeGroup: "6-8", SourceLanguage: "en", TargetLanguage: "fr"})
		var insufficient *domainErrors.InsufficientCreditsError
		assert.ErrorAs(t, err, &insufficient)
	})

	t.Run("concurrent debits never go below zero", func(t *testing.T) {
		db := newTestDB(t)
		repo := NewCreditRepository(db, zap.NewNop())
		seedBalance(t, db, "user-race", 3)

		const workers = 10
		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded := 0
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.SpendCreditAndRecord(ctx, "user-race", &model.StoryGeneration{Title: "t", Subject: "s", AgeGroup: "6-8", SourceLanguage: "en", TargetLanguage: "de"})
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 3, succeeded)
		balance, err := repo.GetBalance(ctx, "user-race")
		require.NoError(t, err)
		assert.Zero(t, balance)

		var n int64
		require.NoError(t, db.Model(&model.StoryGeneration{}).Count(&n).Error)
		assert.Equal(t, int64(3), n)
	})
}

func TestCreditRepository_GetBalance_NoAccount(t *testing.T) {
	repo := NewCreditRepository(newTestDB(t), zap.NewNop())
	balance, err := repo.GetBalance(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Zero(t, balance)
}
