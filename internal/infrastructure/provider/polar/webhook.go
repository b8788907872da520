package polar

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wekeepgrowing/storybook/internal/domain/provider"
	"go.uber.org/zap"
)

// Standard Webhooks headers.
const (
	HeaderWebhookID        = "webhook-id"
	HeaderWebhookTimestamp = "webhook-timestamp"
	HeaderWebhookSignature = "webhook-signature"

	secretPrefix     = "whsec_"
	signatureVersion = "v1"

	DefaultTolerance = 5 * time.Minute
)

// Only a checkout.updated event with a succeeded checkout credits. Other
// events about the same purchase, order.paid included, are acknowledged.
const (
	EventCheckoutUpdated = "checkout.updated"

	checkoutStatusSucceeded = "succeeded"
)

// WebhookVerifier authenticates Polar webhooks signed per the Standard
// Webhooks scheme.
type WebhookVerifier struct {
	secret    []byte
	tolerance time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewWebhookVerifier accepts the secret as shown in the Polar dashboard. A
// whsec_ prefix marks a base64 encoded key; anything else is used verbatim.
func NewWebhookVerifier(secret string, tolerance time.Duration, logger *zap.Logger) (*WebhookVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("polar webhook secret is not configured")
	}

	key := []byte(secret)
	if strings.HasPrefix(secret, secretPrefix) {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, secretPrefix))
		if err != nil {
			return nil, fmt.Errorf("invalid polar webhook secret: %w", err)
		}
		key = decoded
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	return &WebhookVerifier{
		secret:    key,
		tolerance: tolerance,
		logger:    logger.Named("polar"),
		now:       time.Now,
	}, nil
}

func (v *WebhookVerifier) GetProviderName() string {
	return string(provider.ProviderTypePolar)
}

// VerifySignature checks the HMAC over "{id}.{timestamp}.{body}" against every
// v1 signature in the header and enforces the timestamp tolerance.
func (v *WebhookVerifier) VerifySignature(header http.Header, body []byte) error {
	id := header.Get(HeaderWebhookID)
	timestamp := header.Get(HeaderWebhookTimestamp)
	signatures := header.Get(HeaderWebhookSignature)
	if id == "" || timestamp == "" || signatures == "" {
		return invalidSignature("missing webhook headers")
	}

	seconds, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return invalidSignature("malformed webhook timestamp")
	}
	skew := v.now().Sub(time.Unix(seconds, 0))
	if math.Abs(float64(skew)) > float64(v.tolerance) {
		return invalidSignature("webhook timestamp outside tolerance")
	}

	expected := v.Sign(id, timestamp, body)
	for _, candidate := range strings.Fields(signatures) {
		version, sig, ok := strings.Cut(candidate, ",")
		if !ok || version != signatureVersion {
			continue
		}
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}

	v.logger.Warn("Polar webhook signature mismatch", zap.String("webhook_id", id))
	return invalidSignature("no matching signature")
}

// Sign returns the base64 v1 signature for a message.
func (v *WebhookVerifier) Sign(id, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(id))
	mac.Write([]byte{'.'})
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// EventID returns the webhook-id header. Polar keeps it stable across
// redeliveries of one event.
func (v *WebhookVerifier) EventID(header http.Header, body []byte) string {
	if id := header.Get(HeaderWebhookID); id != "" {
		return id
	}
	sum := sha256.Sum256(body)
	return "sha256:" + base64.RawURLEncoding.EncodeToString(sum[:])
}

type webhookPayload struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type eventData struct {
	ID         string                 `json:"id"`
	Status     string                 `json:"status"`
	Amount     *int64                 `json:"amount"`
	NetAmount  *int64                 `json:"net_amount"`
	Total      *int64                 `json:"total_amount"`
	Currency   string                 `json:"currency"`
	Metadata   map[string]interface{} `json:"metadata"`
	CreatedAt  *time.Time             `json:"created_at"`
}

// ParseEvent decodes a verified body into the provider-neutral event. The
// order id is the checkout id, which is the idempotency key Polar payments
// are credited under.
func (v *WebhookVerifier) ParseEvent(body []byte) (*provider.WebhookEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, invalidPayload("malformed JSON", err)
	}
	if payload.Type == "" {
		return nil, invalidPayload("missing event type", nil)
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(body, &raw)

	event := &provider.WebhookEvent{
		Type:      payload.Type,
		Raw:       raw,
		CreatedAt: v.now().UTC(),
	}
	if len(payload.Data) == 0 || string(payload.Data) == "null" {
		return event, nil
	}

	var data eventData
	if err := json.Unmarshal(payload.Data, &data); err != nil {
		return nil, invalidPayload("malformed event data", err)
	}

	event.Status = data.Status
	event.Metadata = data.Metadata
	event.Currency = strings.ToUpper(data.Currency)
	if data.CreatedAt != nil {
		event.CreatedAt = data.CreatedAt.UTC()
	}

	event.OrderID = data.ID
	event.Succeeded = payload.Type == EventCheckoutUpdated && data.Status == checkoutStatusSucceeded

	if cents := firstAmount(data.Total, data.Amount, data.NetAmount); cents != nil {
		// Polar amounts are in the smallest currency unit.
		event.Amount = decimal.New(*cents, -2).StringFixed(2)
	}

	return event, nil
}

func firstAmount(values ...*int64) *int64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func invalidSignature(details string) error {
	return &provider.ProviderError{
		Code:    provider.CodeInvalidSignature,
		Message: "Invalid webhook signature",
		Details: details,
	}
}

func invalidPayload(details string, err error) error {
	if err != nil {
		details = details + ": " + err.Error()
	}
	return &provider.ProviderError{
		Code:    provider.CodeInvalidPayload,
		Message: "Invalid webhook payload",
		Details: details,
	}
}
