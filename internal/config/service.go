package config

import "time"

type ServiceConfig struct {
	Name        string `mapstructure:"name" yaml:"name" validate:"required"`
	Environment string `mapstructure:"environment" yaml:"environment"`
	Version     string `mapstructure:"version" yaml:"version"`
	ClientURL   string `mapstructure:"client_url" yaml:"client_url"`
}

type JWTConfig struct {
	// Secret signs session tokens issued by the authentication provider.
	Secret string `mapstructure:"secret" yaml:"secret" validate:"required"`
	Issuer string `mapstructure:"issuer" yaml:"issuer"`
}

type PayPalConfig struct {
	ClientID string        `mapstructure:"client_id" yaml:"client_id"`
	Secret   string        `mapstructure:"secret" yaml:"secret"`
	BaseURL  string        `mapstructure:"base_url" yaml:"base_url" validate:"required,url"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type PolarConfig struct {
	WebhookSecret      string        `mapstructure:"webhook_secret" yaml:"webhook_secret"`
	TimestampTolerance time.Duration `mapstructure:"timestamp_tolerance" yaml:"timestamp_tolerance"`
}

// PaymentConfig drives the capture orchestrator.
type PaymentConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts" yaml:"max_attempts" validate:"min=1,max=10"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
	VerifyTimeout  time.Duration `mapstructure:"verify_timeout" yaml:"verify_timeout" validate:"required"`
	// AmountTolerance is the largest accepted difference between the captured
	// amount and the package price, in currency units.
	AmountTolerance string `mapstructure:"amount_tolerance" yaml:"amount_tolerance" validate:"required,numeric"`
	Currency        string `mapstructure:"currency" yaml:"currency" validate:"required,len=3"`
}

// WebhookConfig bounds credit counts accepted from webhook metadata.
type WebhookConfig struct {
	MinCredits int `mapstructure:"min_credits" yaml:"min_credits" validate:"min=1"`
	MaxCredits int `mapstructure:"max_credits" yaml:"max_credits" validate:"min=1"`
}

type PackageConfig struct {
	ID      int    `mapstructure:"id" yaml:"id" validate:"required"`
	Name    string `mapstructure:"name" yaml:"name"`
	Price   string `mapstructure:"price" yaml:"price" validate:"required,numeric"`
	Credits int    `mapstructure:"credits" yaml:"credits" validate:"min=1"`
}

// CatalogConfig holds one package catalog per payment provider.
type CatalogConfig struct {
	PayPal []PackageConfig `mapstructure:"paypal" yaml:"paypal" validate:"required,dive"`
	Polar  []PackageConfig `mapstructure:"polar" yaml:"polar" validate:"required,dive"`
}

type RedisConfig struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
	Addr       string        `mapstructure:"addr" yaml:"addr" validate:"required_if=Enabled true"`
	Password   string        `mapstructure:"password" yaml:"password"`
	DB         int           `mapstructure:"db" yaml:"db"`
	BalanceTTL time.Duration `mapstructure:"balance_ttl" yaml:"balance_ttl"`
}

type RateLimitConfig struct {
	// memory or redis
	Backend     string        `mapstructure:"backend" yaml:"backend" validate:"oneof=memory redis"`
	MaxRequests int           `mapstructure:"max_requests" yaml:"max_requests" validate:"min=1"`
	Window      time.Duration `mapstructure:"window" yaml:"window" validate:"required"`
	MinInterval time.Duration `mapstructure:"min_interval" yaml:"min_interval"`
}
