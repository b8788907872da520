package usecase_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wekeepgrowing/storybook/internal/config"
	"github.com/wekeepgrowing/storybook/internal/domain/model"
	"github.com/wekeepgrowing/storybook/internal/domain/provider"
	"github.com/wekeepgrowing/storybook/internal/infrastructure/provider/polar"
	"github.com/wekeepgrowing/storybook/internal/usecase"
	"github.com/wekeepgrowing/storybook/pkg/errors"
	"go.uber.org/zap"
)

type webhookFixture struct {
	*stack
	verifier *polar.WebhookVerifier
	service  *usecase.WebhookService
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	s := newStack(t, new(MockVerifier))

	verifier, err := polar.NewWebhookVerifier("polar-secret", polar.DefaultTolerance, zap.NewNop())
	require.NoError(t, err)

	service := usecase.NewWebhookService(
		map[string]provider.WebhookVerifier{model.ProviderPolar: verifier},
		s.catalog,
		s.credits,
		s.repos.Webhooks,
		config.WebhookConfig{MinCredits: 1, MaxCredits: 100},
		zap.NewNop(),
	)
	return &webhookFixture{stack: s, verifier: verifier, service: service}
}

func (f *webhookFixture) signed(eventID string, body []byte) http.Header {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	h := http.Header{}
	h.Set(polar.HeaderWebhookID, eventID)
	h.Set(polar.HeaderWebhookTimestamp, ts)
	h.Set(polar.HeaderWebhookSignature, "v1,"+f.verifier.Sign(eventID, ts, body))
	return h
}

func checkoutEvent(t *testing.T, checkoutID, status string, metadata map[string]interface{}) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"type": polar.EventCheckoutUpdated,
		"data": map[string]interface{}{
			"id":           checkoutID,
			"status":       status,
			"total_amount": 499,
			"currency":     "usd",
			"metadata":     metadata,
		},
	})
	require.NoError(t, err)
	return body
}

func validMetadata() map[string]interface{} {
	return map[string]interface{}{"userId": testUser, "packageId": 2, "credits": 5}
}

func TestWebhookService_HandleWebhook_CreditsOnce(t *testing.T) {
	f := newWebhookFixture(t)
	body := checkoutEvent(t, "chk_1", "succeeded", validMetadata())

	resp, err := f.service.HandleWebhook(context.Background(), model.ProviderPolar, f.signed("msg_1", body), body)
	require.NoError(t, err)
	assert.True(t, resp.Received)
	assert.True(t, resp.Processed)
	assert.False(t, resp.AlreadyProcessed)
	assert.Equal(t, "chk_1", resp.OrderID)
	require.NotNil(t, resp.NewBalance)
	assert.Equal(t, 5, *resp.NewBalance)

	rows := f.transactions(t, "chk_1")
	require.Len(t, rows, 1)
	assert.Equal(t, model.ProviderPolar, rows[0].Provider)
	assert.Equal(t, "4.99", rows[0].Amount.StringFixed(2))

	t.Run("redelivery of the same event", func(t *testing.T) {
		resp, err := f.service.HandleWebhook(context.Background(), model.ProviderPolar, f.signed("msg_1", body), body)
		require.NoError(t, err)
		assert.True(t, resp.Processed)
		assert.True(t, resp.AlreadyProcessed)
		require.NotNil(t, resp.NewBalance)
		assert.Equal(t, 5, *resp.NewBalance)
		assert.Equal(t, 5, f.balance(t, testUser))
	})

	t.Run("different event for the same checkout", func(t *testing.T) {
		resp, err := f.service.HandleWebhook(context.Background(), model.ProviderPolar, f.signed("msg_2", body), body)
		require.NoError(t, err)
		assert.True(t, resp.Processed)
		assert.True(t, resp.AlreadyProcessed)
		assert.Equal(t, 5, *resp.NewBalance)
		assert.Equal(t, 5, f.balance(t, testUser))
	})

	var journaled model.WebhookEvent
	require.NoError(t, f.db.Where("event_id = ?", "msg_1").First(&journaled).Error)
	assert.Equal(t, model.WebhookStatusCompleted, journaled.Status)
}

func TestWebhookService_HandleWebhook_OrderPaidAfterCheckout(t *testing.T) {
	f := newWebhookFixture(t)
	checkout := checkoutEvent(t, "chk_1", "succeeded", validMetadata())

	resp, err := f.service.HandleWebhook(context.Background(), model.ProviderPolar, f.signed("msg_checkout", checkout), checkout)
	require.NoError(t, err)
	require.True(t, resp.Processed)
	assert.Equal(t, 5, f.balance(t, testUser))

	orderPaid := []byte(`{"type":"order.paid","data":{"id":"ord_1","checkout_id":null,"status":"paid","total_amount":499,"currency":"usd","metadata":{"userId":"` + testUser + `","packageId":2,"credits":5}}}`)
	resp, err = f.service.HandleWebhook(context.Background(), model.ProviderPolar, f.signed("msg_order", orderPaid), orderPaid)
	require.NoError(t, err)
	assert.True(t, resp.Received)
	assert.False(t, resp.Processed)
	assert.Equal(t, 5, f.balance(t, testUser))
	assert.Empty(t, f.transactions(t, "ord_1"))

	var journaled model.WebhookEvent
	require.NoError(t, f.db.Where("event_id = ?", "msg_order").First(&journaled).Error)
	assert.Equal(t, model.WebhookStatusIgnored, journaled.Status)
}

func TestWebhookService_HandleWebhook_Ignored(t *testing.T) {
	f := newWebhookFixture(t)
	body := checkoutEvent(t, "chk_open", "open", validMetadata())

	resp, err := f.service.HandleWebhook(context.Background(), model.ProviderPolar, f.signed("msg_open", body), body)
	require.NoError(t, err)
	assert.True(t, resp.Received)
	assert.False(t, resp.Processed)
	assert.Equal(t, 0, f.balance(t, testUser))

	var journaled model.WebhookEvent
	require.NoError(t, f.db.Where("event_id = ?", "msg_open").First(&journaled).Error)
	assert.Equal(t, model.WebhookStatusIgnored, journaled.Status)
}

func TestWebhookService_HandleWebhook_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		body     []byte
		header   func(f *webhookFixture, body []byte) http.Header
		code     string
	}{
		{
			name:     "unknown provider",
			provider: "stripe",
			body:     []byte(`{}`),
			header:   func(f *webhookFixture, body []byte) http.Header { return f.signed("m", body) },
			code:     errors.ErrNotFound,
		},
		{
			name:     "bad signature",
			provider: model.ProviderPolar,
			body:     []byte(`{"type":"checkout.updated"}`),
			header: func(f *webhookFixture, body []byte) http.Header {
				h := f.signed("m", body)
				h.Set(polar.HeaderWebhookSignature, "v1,Zm9yZ2Vk")
				return h
			},
			code: errors.ErrUnauthenticated,
		},
		{
			name:     "malformed json",
			provider: model.ProviderPolar,
			body:     []byte(`{"type":`),
			header:   func(f *webhookFixture, body []byte) http.Header { return f.signed("m", body) },
			code:     errors.ErrInvalidArgument,
		},
	}

	metadataCases := map[string]map[string]interface{}{
		"missing user":        {"packageId": 2, "credits": 5},
		"empty user":          {"userId": " ", "packageId": 2, "credits": 5},
		"unknown package":     {"userId": testUser, "packageId": 7, "credits": 5},
		"credits above bound": {"userId": testUser, "packageId": 2, "credits": 500},
		"credits below bound": {"userId": testUser, "packageId": 2, "credits": 0},
		"credits off catalog": {"userId": testUser, "packageId": 2, "credits": 7},
		"non-integer credits": {"userId": testUser, "packageId": 2, "credits": 5.5},
	}
	for name, meta := range metadataCases {
		meta := meta
		tests = append(tests, struct {
			name     string
			provider string
			body     []byte
			header   func(f *webhookFixture, body []byte) http.Header
			code     string
		}{
			name:     name,
			provider: model.ProviderPolar,
			body:     checkoutEvent(t, "chk_meta", "succeeded", meta),
			header:   func(f *webhookFixture, body []byte) http.Header { return f.signed("msg_"+name, body) },
			code:     errors.ErrInvalidArgument,
		})
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWebhookFixture(t)
			resp, err := f.service.HandleWebhook(context.Background(), tt.provider, tt.header(f, tt.body), tt.body)

			require.Error(t, err)
			assert.Nil(t, resp)
			assert.Equal(t, tt.code, errors.CodeOf(err))
			assert.Equal(t, 0, f.balance(t, testUser))
			assert.Empty(t, f.transactions(t, "chk_meta"))
		})
	}
}
