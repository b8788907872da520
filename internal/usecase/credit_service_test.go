package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wekeepgrowing/storybook/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/storybook/internal/domain/errors"
	"github.com/wekeepgrowing/storybook/internal/domain/model"
	"github.com/wekeepgrowing/storybook/internal/usecase"
	"go.uber.org/zap"
)

func TestCreditService_GetBalance(t *testing.T) {
	ctx := context.Background()

	t.Run("cache hit skips the database", func(t *testing.T) {
		repo := new(MockCreditRepository)
		cache := new(MockBalanceCache)
		cache.On("Get", ctx, testUser).Return(4, true, nil)

		service := usecase.NewCreditService(repo, cache, nil, zap.NewNop())
		balance, err := service.GetBalance(ctx, testUser)

		require.NoError(t, err)
		assert.Equal(t, 4, balance)
		repo.AssertNotCalled(t, "GetBalance", mock.Anything, mock.Anything)
	})

	t.Run("miss fills the cache", func(t *testing.T) {
		repo := new(MockCreditRepository)
		cache := new(MockBalanceCache)
		cache.On("Get", ctx, testUser).Return(0, false, nil)
		repo.On("GetBalance", ctx, testUser).Return(9, nil)
		cache.On("Set", ctx, testUser, 9).Return(nil)

		service := usecase.NewCreditService(repo, cache, nil, zap.NewNop())
		balance, err := service.GetBalance(ctx, testUser)

		require.NoError(t, err)
		assert.Equal(t, 9, balance)
		cache.AssertExpectations(t)
	})

	t.Run("cache outage falls through", func(t *testing.T) {
		repo := new(MockCreditRepository)
		cache := new(MockBalanceCache)
		cache.On("Get", ctx, testUser).Return(0, false, errors.New("dial tcp: refused"))
		repo.On("GetBalance", ctx, testUser).Return(2, nil)
		cache.On("Set", ctx, testUser, 2).Return(errors.New("dial tcp: refused"))

		service := usecase.NewCreditService(repo, cache, nil, zap.NewNop())
		balance, err := service.GetBalance(ctx, testUser)

		require.NoError(t, err)
		assert.Equal(t, 2, balance)
	})

	t.Run("database error", func(t *testing.T) {
		repo := new(MockCreditRepository)
		repo.On("GetBalance", ctx, testUser).Return(0, errors.New("connection reset"))

		service := usecase.NewCreditService(repo, nil, nil, zap.NewNop())
		_, err := service.GetBalance(ctx, testUser)
		assert.Error(t, err)
	})

	t.Run("anonymous", func(t *testing.T) {
		service := usecase.NewCreditService(new(MockCreditRepository), nil, nil, zap.NewNop())
		_, err := service.GetBalance(ctx, "")
		assert.ErrorIs(t, err, domainErrors.ErrAuthenticationRequired)
	})
}

func popularPackage() entity.Package {
	return entity.Package{ID: 2, Name: "Popular", Price: decimal.RequireFromString("4.99"), Credits: 7}
}

func TestCreditService_ApplyVerifiedPayment(t *testing.T) {
	ctx := context.Background()
	app := entity.CreditApplication{
		UserID:         testUser,
		OrderID:        "ORDER9",
		Provider:       model.ProviderPayPal,
		Package:        popularPackage(),
		Amount:         entity.VerifiedAmount{Value: "4.99", Currency: "USD"},
		CaptureID:      "CAP9",
		ProviderStatus: "COMPLETED",
		ChangedBy:      model.ChangedByPayPal,
		RequestID:      "req-1",
		Attempt:        1,
	}

	t.Run("fresh credit notifies", func(t *testing.T) {
		repo := new(MockCreditRepository)
		cache := new(MockBalanceCache)
		publisher := new(MockPublisher)

		repo.On("ApplyPaymentCredit", mock.Anything, mock.MatchedBy(func(row *model.PaymentTransaction) bool {
			credits, ok := row.IntendedCredits()
			return ok && credits == 7 &&
				row.OrderID == "ORDER9" &&
				row.Amount.Equal(decimal.RequireFromString("4.99")) &&
				row.CaptureID != nil && *row.CaptureID == "CAP9"
		}), 7, mock.MatchedBy(func(audit model.PaymentAuditLog) bool {
			return audit.RequestID == "req-1" && audit.Attempt == 1
		})).Return(&entity.CreditOutcome{NewBalance: 7, CreditsApplied: 7}, nil)
		cache.On("Invalidate", mock.Anything, testUser).Return(nil)
		publisher.On("Publish", mock.Anything, usecase.BalanceChangedChannel, usecase.BalanceChangedEvent{
			UserID:  testUser,
			Balance: 7,
			Delta:   7,
			Reason:  usecase.ReasonPayment,
			OrderID: "ORDER9",
		}).Return(nil)

		notifier := usecase.NewBalanceNotifier(cache, publisher, zap.NewNop())
		service := usecase.NewCreditService(repo, cache, notifier, zap.NewNop())

		outcome, err := service.ApplyVerifiedPayment(ctx, app)
		require.NoError(t, err)
		assert.Equal(t, 7, outcome.NewBalance)
		cache.AssertExpectations(t)
		publisher.AssertExpectations(t)
	})

	t.Run("replay stays quiet", func(t *testing.T) {
		repo := new(MockCreditRepository)
		cache := new(MockBalanceCache)
		publisher := new(MockPublisher)
		repo.On("ApplyPaymentCredit", mock.Anything, mock.Anything, 7, mock.Anything).
			Return(&entity.CreditOutcome{NewBalance: 7, AlreadyProcessed: true}, nil)

		notifier := usecase.NewBalanceNotifier(cache, publisher, zap.NewNop())
		service := usecase.NewCreditService(repo, cache, notifier, zap.NewNop())

		outcome, err := service.ApplyVerifiedPayment(ctx, app)
		require.NoError(t, err)
		assert.True(t, outcome.AlreadyProcessed)
		cache.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything)
		publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("amount defaults to the package price", func(t *testing.T) {
		repo := new(MockCreditRepository)
		repo.On("ApplyPaymentCredit", mock.Anything, mock.MatchedBy(func(row *model.PaymentTransaction) bool {
			return row.Amount.Equal(decimal.RequireFromString("4.99"))
		}), 7, mock.Anything).Return(&entity.CreditOutcome{NewBalance: 7, CreditsApplied: 7}, nil)

		noAmount := app
		noAmount.Amount = entity.VerifiedAmount{Currency: "USD"}
		service := usecase.NewCreditService(repo, nil, nil, zap.NewNop())
		_, err := service.ApplyVerifiedPayment(ctx, noAmount)
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("invalid input never reaches the repository", func(t *testing.T) {
		repo := new(MockCreditRepository)
		service := usecase.NewCreditService(repo, nil, nil, zap.NewNop())

		anonymous := app
		anonymous.UserID = ""
		_, err := service.ApplyVerifiedPayment(ctx, anonymous)
		assert.ErrorIs(t, err, domainErrors.ErrAuthenticationRequired)

		noOrder := app
		noOrder.OrderID = ""
		_, err = service.ApplyVerifiedPayment(ctx, noOrder)
		assert.Error(t, err)

		empty := app
		empty.Package = entity.Package{ID: 9}
		_, err = service.ApplyVerifiedPayment(ctx, empty)
		assert.ErrorIs(t, err, domainErrors.ErrUnknownPackage)

		garbled := app
		garbled.Amount = entity.VerifiedAmount{Value: "4,99", Currency: "USD"}
		_, err = service.ApplyVerifiedPayment(ctx, garbled)
		assert.Error(t, err)

		repo.AssertNotCalled(t, "ApplyPaymentCredit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
