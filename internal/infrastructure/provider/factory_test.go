package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wekeepgrowing/storybook/internal/config"
	"github.com/wekeepgrowing/storybook/internal/domain/provider"
	"go.uber.org/zap"
)

func TestFactory(t *testing.T) {
	cfg := &config.Config{}
	cfg.PayPal.BaseURL = "https://api-m.sandbox.paypal.com"

	f := NewFactory(cfg, zap.NewNop())

	_, err := f.GetVerifier(provider.ProviderTypePayPal)
	assert.Error(t, err, "missing credentials")

	cfg.PayPal.ClientID = "id"
	cfg.PayPal.Secret = "secret"
	v, err := f.GetVerifier(provider.ProviderTypePayPal)
	require.NoError(t, err)
	assert.Equal(t, "paypal", v.GetProviderName())

	_, err = f.GetVerifier(provider.ProviderTypePolar)
	assert.Error(t, err)

	assert.Empty(t, f.WebhookVerifiers())

	cfg.Polar.WebhookSecret = "secret"
	verifiers := f.WebhookVerifiers()
	require.Contains(t, verifiers, "polar")
}
