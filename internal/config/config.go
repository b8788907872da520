package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	pkgconfig "github.com/wekeepgrowing/storybook/pkg/config"
	"github.com/wekeepgrowing/storybook/pkg/logger"
)

// ServiceName prefixes environment overrides (STORYBOOK_PAYPAL_SECRET, ...).
const ServiceName = "storybook"

type Config struct {
	Service    ServiceConfig    `mapstructure:"service" yaml:"service"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Log        logger.Config    `mapstructure:"log" yaml:"log"`
	JWT        JWTConfig        `mapstructure:"jwt" yaml:"jwt"`
	PayPal     PayPalConfig     `mapstructure:"paypal" yaml:"paypal"`
	Polar      PolarConfig      `mapstructure:"polar" yaml:"polar"`
	Payment    PaymentConfig    `mapstructure:"payment" yaml:"payment"`
	Webhook    WebhookConfig    `mapstructure:"webhook" yaml:"webhook"`
	Catalog    CatalogConfig    `mapstructure:"catalog" yaml:"catalog"`
	Redis      RedisConfig      `mapstructure:"redis" yaml:"redis"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit" yaml:"rate_limit"`
	Generation GenerationConfig `mapstructure:"generation" yaml:"generation"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry" yaml:"telemetry"`
}

// LoadConfig reads configs/storybook.yaml (or $CONFIG_PATH), applies
// environment overrides and validates the result.
func LoadConfig(opts ...pkgconfig.Option) (*Config, error) {
	opts = append([]pkgconfig.Option{
		pkgconfig.WithDefaults(Defaults()),
		pkgconfig.WithDotenv(".env"),
	}, opts...)

	var cfg Config
	if err := pkgconfig.Load(ServiceName, &cfg, opts...); err != nil {
		return nil, err
	}
	cfg.Log.Service = cfg.Service.Name

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and bounds.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Webhook.MinCredits > c.Webhook.MaxCredits {
		return fmt.Errorf("invalid configuration: webhook.min_credits %d exceeds webhook.max_credits %d",
			c.Webhook.MinCredits, c.Webhook.MaxCredits)
	}
	return nil
}
