package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/wekeepgrowing/storybook/internal/domain/dto"
	"github.com/wekeepgrowing/storybook/internal/domain/entity"
	"github.com/wekeepgrowing/storybook/internal/usecase"
	"go.uber.org/zap"
)

// PaymentProcessor captures and verifies provider orders.
type PaymentProcessor interface {
	ProcessPayment(ctx context.Context, userID, orderID string, packageID int) *entity.PaymentResult
	VerifyOnly(ctx context.Context, userID, orderID string) *usecase.VerificationResult
}

// CreditRecoverer re-applies credits for completed but uncredited payments.
type CreditRecoverer interface {
	RecoverMissingCredits(ctx context.Context, userID string) *entity.PaymentResult
}

// TransactionHistory lists a user's payment ledger.
type TransactionHistory interface {
	GetUserTransactionHistory(ctx context.Context, userID string, params entity.PaginationParams) (*dto.TransactionListResponse, error)
}

type PaymentHandler struct {
	payments PaymentProcessor
	recovery CreditRecoverer
	history  TransactionHistory
	logger   *zap.Logger
}

func NewPaymentHandler(payments PaymentProcessor, recovery CreditRecoverer, history TransactionHistory, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		recovery: recovery,
		history:  history,
		logger:   logger,
	}
}

// CaptureRequest is the body of POST /api/v1/payments/capture.
type CaptureRequest struct {
	OrderID   string `json:"orderId" validate:"required,alphanum,max=64"`
	PackageID int    `json:"packageId" validate:"required,min=1"`
}

// Capture handles POST /api/v1/payments/capture. The result body carries the
// outcome; the status is 200 whenever the request itself was well formed.
func (h *PaymentHandler) Capture(c echo.Context) error {
	var req CaptureRequest
	if err := bindAndValidate(c, &req); err != nil {
		return respondError(c, h.logger, err, "Invalid capture request")
	}

	result := h.payments.ProcessPayment(c.Request().Context(), userIDOf(c), req.OrderID, req.PackageID)
	if !result.Success {
		h.logger.Info("Payment capture did not succeed",
			zap.String("user_id", userIDOf(c)),
			zap.String("order_id", req.OrderID),
			zap.Bool("can_retry", result.CanRetry),
			zap.String("request_id", result.RequestID))
	}
	return c.JSON(http.StatusOK, result)
}

// VerifyRequest is the body of POST /payments/verify.
type VerifyRequest struct {
	OrderID string `json:"orderID" validate:"required,alphanum,max=64"`
}

// Verify handles POST /payments/verify.
func (h *PaymentHandler) Verify(c echo.Context) error {
	var req VerifyRequest
	if err := bindAndValidate(c, &req); err != nil {
		message := usecase.MsgInvalidOrder
		if req.OrderID == "" {
			message = usecase.MsgMissingOrder
		}
		return c.JSON(http.StatusBadRequest, usecase.VerificationResult{
			Success: false,
			Message: message,
		})
	}

	result := h.payments.VerifyOnly(c.Request().Context(), userIDOf(c), req.OrderID)
	return c.JSON(http.StatusOK, result)
}

// MethodNotAllowed answers non-POST requests to /payments/verify.
func (h *PaymentHandler) MethodNotAllowed(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderAllow, http.MethodPost)
	return c.JSON(http.StatusMethodNotAllowed, echo.Map{
		"error": "Method not allowed",
	})
}

// Recover handles POST /api/v1/payments/recover for the caller's own account.
func (h *PaymentHandler) Recover(c echo.Context) error {
	result := h.recovery.RecoverMissingCredits(c.Request().Context(), userIDOf(c))
	return c.JSON(http.StatusOK, result)
}

// Transactions handles GET /api/v1/payments/transactions.
func (h *PaymentHandler) Transactions(c echo.Context) error {
	var params entity.PaginationParams
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &params); err != nil {
		return badRequest(c, "Invalid pagination parameters")
	}

	response, err := h.history.GetUserTransactionHistory(c.Request().Context(), userIDOf(c), params)
	if err != nil {
		h.logger.Error("Failed to get transaction history",
			zap.String("user_id", userIDOf(c)),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to retrieve transaction history",
		})
	}
	return c.JSON(http.StatusOK, response)
}
