package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// BalanceReader returns a user's current credit balance.
type BalanceReader interface {
	GetBalance(ctx context.Context, userID string) (int, error)
}

// CreditHandler handles credit-related HTTP requests
type CreditHandler struct {
	credits BalanceReader
	logger  *zap.Logger
}

// NewCreditHandler creates a new credit handler instance
func NewCreditHandler(credits BalanceReader, logger *zap.Logger) *CreditHandler {
	return &CreditHandler{
		credits: credits,
		logger:  logger,
	}
}

// GetUserCredits handles GET /api/v1/credits
func (h *CreditHandler) GetUserCredits(c echo.Context) error {
	userID := userIDOf(c)
	balance, err := h.credits.GetBalance(c.Request().Context(), userID)
	if err != nil {
		h.logger.Error("Failed to get user credit balance",
			zap.String("user_id", userID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to retrieve credit balance",
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"credits": balance,
	})
}
