package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wekeepgrowing/storybook/internal/domain/dto"
	"github.com/wekeepgrowing/storybook/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/storybook/internal/domain/errors"
	domainRepo "github.com/wekeepgrowing/storybook/internal/domain/repository"
)

// TransactionHistoryService lists a user's payment ledger.
type TransactionHistoryService struct {
	ledger domainRepo.PaymentTransactionRepository
	logger *zap.Logger
}

// NewTransactionHistoryService creates a new transaction history service
func NewTransactionHistoryService(ledger domainRepo.PaymentTransactionRepository, logger *zap.Logger) *TransactionHistoryService {
	return &TransactionHistoryService{
		ledger: ledger,
		logger: logger,
	}
}

// GetUserTransactionHistory retrieves a user's ledger with pagination
func (s *TransactionHistoryService) GetUserTransactionHistory(ctx context.Context, userID string, params entity.PaginationParams) (*dto.TransactionListResponse, error) {
	if userID == "" {
		return nil, domainErrors.ErrAuthenticationRequired
	}
	params.Normalize()

	rows, total, err := s.ledger.ListByUser(ctx, userID, params)
	if err != nil {
		s.logger.Error("failed to list payment transactions",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get transaction history: %w", err)
	}

	items := make([]dto.PaymentTransactionDTO, len(rows))
	for i, row := range rows {
		credits, _ := row.IntendedCredits()
		items[i] = dto.PaymentTransactionDTO{
			ID:         row.ID,
			OrderID:    row.OrderID,
			Provider:   row.Provider,
			PackageID:  row.PackageID,
			Amount:     row.Amount.StringFixed(2),
			Currency:   row.Currency,
			Status:     string(row.Status),
			Credits:    credits,
			VerifiedAt: row.VerifiedAt,
			CreatedAt:  row.CreatedAt,
		}
	}

	return &dto.TransactionListResponse{
		Transactions: items,
		Pagination:   entity.NewPaginationMeta(params, len(rows), total),
	}, nil
}
