package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wekeepgrowing/storybook/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/storybook/internal/domain/errors"
	"github.com/wekeepgrowing/storybook/internal/domain/model"
	"github.com/wekeepgrowing/storybook/internal/usecase"
	"go.uber.org/zap"
)

func TestTransactionHistoryService_GetUserTransactionHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("maps rows and normalizes paging", func(t *testing.T) {
		ledger := new(MockPaymentTransactionRepository)
		verified := time.Now().UTC()
		rows := []model.PaymentTransaction{{
			ID:         11,
			OrderID:    "ORDER1",
			UserID:     testUser,
			Provider:   model.ProviderPayPal,
			PackageID:  2,
			Amount:     decimal.RequireFromString("4.99"),
			Currency:   "USD",
			Status:     model.TransactionStatusCompleted,
			RawPayload: model.JSONB{model.PayloadKeyCredits: 7},
			VerifiedAt: &verified,
		}}
		ledger.On("ListByUser", ctx, testUser, entity.PaginationParams{Limit: entity.MaxPageSize}).
			Return(rows, int64(3), nil)

		service := usecase.NewTransactionHistoryService(ledger, zap.NewNop())
		resp, err := service.GetUserTransactionHistory(ctx, testUser, entity.PaginationParams{Limit: 500, Offset: -2})
		require.NoError(t, err)

		require.Len(t, resp.Transactions, 1)
		item := resp.Transactions[0]
		assert.Equal(t, "4.99", item.Amount)
		assert.Equal(t, 7, item.Credits)
		assert.Equal(t, "COMPLETED", item.Status)
		assert.True(t, resp.Pagination.HasMore)
		assert.Equal(t, int64(3), resp.Pagination.Total)
	})

	t.Run("anonymous", func(t *testing.T) {
		service := usecase.NewTransactionHistoryService(new(MockPaymentTransactionRepository), zap.NewNop())
		_, err := service.GetUserTransactionHistory(ctx, "", entity.PaginationParams{})
		assert.ErrorIs(t, err, domainErrors.ErrAuthenticationRequired)
	})

	t.Run("ledger error", func(t *testing.T) {
		ledger := new(MockPaymentTransactionRepository)
		ledger.On("ListByUser", ctx, testUser, entity.PaginationParams{Limit: entity.DefaultPageSize}).
			Return([]model.PaymentTransaction(nil), int64(0), errors.New("timeout"))

		service := usecase.NewTransactionHistoryService(ledger, zap.NewNop())
		_, err := service.GetUserTransactionHistory(ctx, testUser, entity.PaginationParams{})
		assert.Error(t, err)
	})
}
