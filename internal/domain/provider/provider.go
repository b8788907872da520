package provider

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Verifier independently confirms a payment with the provider. It never
// touches the ledger.
type Verifier interface {
	// VerifyOrder captures (or re-reads) the order. A nil error means the
	// provider reports the payment as completed.
	VerifyOrder(ctx context.Context, orderID string) (*VerifyResult, error)
	GetProviderName() string
}

// VerifyResult is the provider's view of a completed order.
type VerifyResult struct {
	OrderID   string                 `json:"order_id"`
	CaptureID string                 `json:"capture_id"`
	Status    string                 `json:"status"`
	Amount    string                 `json:"amount"`
	Currency  string                 `json:"currency"`
	Raw       map[string]interface{} `json:"raw,omitempty"`
	// FromStatusCheck is set when the capture was already done and the result
	// came from the read-only order lookup.
	FromStatusCheck bool `json:"from_status_check"`
}

// WebhookVerifier authenticates and decodes provider push notifications.
type WebhookVerifier interface {
	VerifySignature(header http.Header, body []byte) error
	ParseEvent(body []byte) (*WebhookEvent, error)
	// EventID returns the delivery-independent id of the event.
	EventID(header http.Header, body []byte) string
	GetProviderName() string
}

// WebhookEvent is the provider-neutral shape of an inbound event.
type WebhookEvent struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Status    string                 `json:"status"`
	OrderID   string                 `json:"order_id"`
	Amount    string                 `json:"amount,omitempty"`
	Currency  string                 `json:"currency,omitempty"`
	Metadata  map[string]interface{} `json:"metadata"`
	Succeeded bool                   `json:"succeeded"`
	Raw       map[string]interface{} `json:"raw"`
	CreatedAt time.Time              `json:"created_at"`
}

// ProviderType represents the type of payment provider
type ProviderType string

const (
	ProviderTypePayPal ProviderType = "paypal"
	ProviderTypePolar  ProviderType = "polar"
)

// Error codes carried by ProviderError.
const (
	CodeMarshal          = "MARSHAL_ERROR"
	CodeRequest          = "REQUEST_ERROR"
	CodeAPI              = "API_ERROR"
	CodeTimeout          = "TIMEOUT"
	CodeResponse         = "RESPONSE_ERROR"
	CodeParse            = "PARSE_ERROR"
	CodeAuth             = "AUTH_ERROR"
	CodeNotCompleted     = "ORDER_NOT_COMPLETED"
	CodeInvalidSignature = "INVALID_SIGNATURE"
	CodeInvalidPayload   = "INVALID_PAYLOAD"
)

// ProviderError is returned by provider adapters.
type ProviderError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Retryable  bool   `json:"retryable"`
}

func (e *ProviderError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// IsRetryable reports whether err is a ProviderError marked retryable.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable
}

// RetryableStatus classifies an HTTP status from a provider: 5xx is transient,
// 4xx is final.
func RetryableStatus(status int) bool {
	return status >= http.StatusInternalServerError
}

type requestIDKey struct{}

// WithRequestID attaches the caller's short request id. Verifiers use it to
// derive provider idempotency keys.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns "" when no id was attached.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
