package provider

import (
	"fmt"

	"github.com/wekeepgrowing/storybook/internal/config"
	"github.com/wekeepgrowing/storybook/internal/domain/provider"
	paypalProvider "github.com/wekeepgrowing/storybook/internal/infrastructure/provider/paypal"
	polarProvider "github.com/wekeepgrowing/storybook/internal/infrastructure/provider/polar"
	"go.uber.org/zap"
)

// Factory creates payment providers based on the provider type
type Factory struct {
	config *config.Config
	logger *zap.Logger
}

// NewFactory creates a new provider factory
func NewFactory(config *config.Config, logger *zap.Logger) *Factory {
	return &Factory{
		config: config,
		logger: logger,
	}
}

// GetVerifier returns the capture verifier of a provider. Only PayPal
// payments are captured server side; Polar reports through webhooks.
func (f *Factory) GetVerifier(providerType provider.ProviderType) (provider.Verifier, error) {
	switch providerType {
	case provider.ProviderTypePayPal:
		return f.createPayPalProvider()
	default:
		return nil, fmt.Errorf("unsupported verifier provider: %s", providerType)
	}
}

// GetWebhookVerifier returns the webhook authenticator of a provider
func (f *Factory) GetWebhookVerifier(providerType provider.ProviderType) (provider.WebhookVerifier, error) {
	switch providerType {
	case provider.ProviderTypePolar:
		return polarProvider.NewWebhookVerifier(
			f.config.Polar.WebhookSecret,
			f.config.Polar.TimestampTolerance,
			f.logger,
		)
	default:
		return nil, fmt.Errorf("unsupported webhook provider: %s", providerType)
	}
}

// WebhookVerifiers builds every configured webhook authenticator, keyed by
// provider name. Providers without credentials are skipped with a warning.
func (f *Factory) WebhookVerifiers() map[string]provider.WebhookVerifier {
	verifiers := make(map[string]provider.WebhookVerifier)
	for _, providerType := range []provider.ProviderType{provider.ProviderTypePolar} {
		v, err := f.GetWebhookVerifier(providerType)
		if err != nil {
			f.logger.Warn("Webhook provider disabled",
				zap.String("provider", string(providerType)),
				zap.Error(err))
			continue
		}
		verifiers[v.GetProviderName()] = v
	}
	return verifiers
}

// createPayPalProvider creates a new PayPal verifier instance
func (f *Factory) createPayPalProvider() (provider.Verifier, error) {
	if f.config.PayPal.ClientID == "" || f.config.PayPal.Secret == "" {
		return nil, fmt.Errorf("PayPal credentials not configured")
	}

	return paypalProvider.NewPayPalProvider(
		f.config.PayPal.BaseURL,
		f.config.PayPal.ClientID,
		f.config.PayPal.Secret,
		f.config.PayPal.Timeout,
		f.logger,
	), nil
}
