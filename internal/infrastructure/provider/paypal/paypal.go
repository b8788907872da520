package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/wekeepgrowing/storybook/internal/domain/provider"
	"go.uber.org/zap"
)

const (
	// LiveBaseURL is the production Orders v2 endpoint.
	LiveBaseURL    = "https://api-m.paypal.com"
	SandboxBaseURL = "https://api-m.sandbox.paypal.com"

	statusCompleted = "COMPLETED"
)

// PayPalProvider verifies PayPal Orders v2 payments.
type PayPalProvider struct {
	client *resty.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewPayPalProvider creates a new PayPal verifier. Credentials are sent with
// HTTP basic auth on every call.
func NewPayPalProvider(baseURL, clientID, secret string, timeout time.Duration, logger *zap.Logger) *PayPalProvider {
	if baseURL == "" {
		baseURL = SandboxBaseURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetBasicAuth(clientID, secret).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}

	return &PayPalProvider{
		client: client,
		logger: logger.Named("paypal"),
		now:    time.Now,
	}
}

// GetProviderName returns the name of the provider
func (p *PayPalProvider) GetProviderName() string {
	return string(provider.ProviderTypePayPal)
}

type orderResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
				Amount struct {
					CurrencyCode string `json:"currency_code"`
					Value        string `json:"value"`
				} `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type errorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

// VerifyOrder captures the order. When PayPal answers 422 (typically
// ORDER_ALREADY_CAPTURED) the order is read back instead, so a capture done
// by an earlier attempt still verifies.
// POST /v2/checkout/orders/{id}/capture
func (p *PayPalProvider) VerifyOrder(ctx context.Context, orderID string) (*provider.VerifyResult, error) {
	if orderID == "" {
		return nil, &provider.ProviderError{
			Code:    provider.CodeRequest,
			Message: "Order id is required",
		}
	}

	requestID := p.requestID(ctx, orderID)
	p.logger.Info("Capturing PayPal order",
		zap.String("order_id", orderID),
		zap.String("paypal_request_id", requestID))

	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("PayPal-Request-Id", requestID).
		SetHeader("Prefer", "return=representation").
		SetBody(map[string]interface{}{}).
		SetPathParam("orderID", orderID).
		Post("/v2/checkout/orders/{orderID}/capture")
	if err != nil {
		return nil, p.transportError(ctx, orderID, err)
	}

	switch {
	case resp.StatusCode() == http.StatusUnprocessableEntity:
		p.logger.Info("Capture rejected, checking order status",
			zap.String("order_id", orderID),
			zap.String("issue", issueOf(resp.Body())))
		return p.checkOrderStatus(ctx, orderID)
	case resp.IsError():
		return nil, p.statusError(orderID, "capture", resp)
	}

	result, err := p.parseOrder(orderID, resp.Body())
	if err != nil {
		return nil, err
	}

	p.logger.Info("PayPal order captured",
		zap.String("order_id", orderID),
		zap.String("capture_id", result.CaptureID),
		zap.String("amount", result.Amount),
		zap.String("currency", result.Currency))
	return result, nil
}

// checkOrderStatus reads an order without changing it.
// GET /v2/checkout/orders/{id}
func (p *PayPalProvider) checkOrderStatus(ctx context.Context, orderID string) (*provider.VerifyResult, error) {
	resp, err := p.client.R().
		SetContext(ctx).
		SetPathParam("orderID", orderID).
		Get("/v2/checkout/orders/{orderID}")
	if err != nil {
		return nil, p.transportError(ctx, orderID, err)
	}
	if resp.IsError() {
		return nil, p.statusError(orderID, "order lookup", resp)
	}

	result, err := p.parseOrder(orderID, resp.Body())
	if err != nil {
		return nil, err
	}
	result.FromStatusCheck = true

	p.logger.Info("PayPal order already captured",
		zap.String("order_id", orderID),
		zap.String("capture_id", result.CaptureID))
	return result, nil
}

// parseOrder requires a COMPLETED order with at least one capture.
func (p *PayPalProvider) parseOrder(orderID string, body []byte) (*provider.VerifyResult, error) {
	var order orderResponse
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, &provider.ProviderError{
			Code:    provider.CodeParse,
			Message: "Failed to parse PayPal response",
			Details: err.Error(),
		}
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(body, &raw)

	if order.Status != statusCompleted {
		return nil, &provider.ProviderError{
			Code:    provider.CodeNotCompleted,
			Message: "Payment was not completed",
			Details: fmt.Sprintf("order %s has status %q", orderID, order.Status),
		}
	}
	if len(order.PurchaseUnits) == 0 || len(order.PurchaseUnits[0].Payments.Captures) == 0 {
		return nil, &provider.ProviderError{
			Code:    provider.CodeNotCompleted,
			Message: "Payment was not completed",
			Details: fmt.Sprintf("order %s has no capture", orderID),
		}
	}

	capture := order.PurchaseUnits[0].Payments.Captures[0]
	return &provider.VerifyResult{
		OrderID:   orderID,
		CaptureID: capture.ID,
		Status:    order.Status,
		Amount:    capture.Amount.Value,
		Currency:  capture.Amount.CurrencyCode,
		Raw:       raw,
	}, nil
}

func (p *PayPalProvider) transportError(ctx context.Context, orderID string, err error) error {
	code := provider.CodeAPI
	message := "PayPal API request failed"
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		code = provider.CodeTimeout
		message = "PayPal API request timed out"
	}

	p.logger.Warn("PayPal request failed",
		zap.String("order_id", orderID),
		zap.String("code", code),
		zap.Error(err))

	return &provider.ProviderError{
		Code:      code,
		Message:   message,
		Details:   err.Error(),
		Retryable: true,
	}
}

func (p *PayPalProvider) statusError(orderID, operation string, resp *resty.Response) error {
	var apiErr errorResponse
	_ = json.Unmarshal(resp.Body(), &apiErr)

	code := provider.CodeAPI
	if resp.StatusCode() == http.StatusUnauthorized {
		code = provider.CodeAuth
	}
	message := apiErr.Message
	if message == "" {
		message = fmt.Sprintf("PayPal %s failed with status %d", operation, resp.StatusCode())
	}

	p.logger.Error("PayPal API returned an error",
		zap.String("order_id", orderID),
		zap.String("operation", operation),
		zap.Int("status_code", resp.StatusCode()),
		zap.String("name", apiErr.Name))

	return &provider.ProviderError{
		Code:       code,
		Message:    message,
		Details:    apiErr.Name,
		StatusCode: resp.StatusCode(),
		Retryable:  provider.RetryableStatus(resp.StatusCode()),
	}
}

// requestID derives a PayPal-Request-Id from the order, the internal request
// id and the current time, so each attempt is a distinct capture request.
func (p *PayPalProvider) requestID(ctx context.Context, orderID string) string {
	internal := provider.RequestIDFromContext(ctx)
	seed := fmt.Sprintf("%s:%s:%d", orderID, internal, p.now().UnixNano())
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(seed)).String()
}

func issueOf(body []byte) string {
	var apiErr errorResponse
	if err := json.Unmarshal(body, &apiErr); err != nil || len(apiErr.Details) == 0 {
		return apiErr.Name
	}
	return apiErr.Details[0].Issue
}
