package config

import "time"

type GenerationConfig struct {
	LLMModel       string        `mapstructure:"llm_model" yaml:"llm_model"`
	LLMAPIKey      string        `mapstructure:"llm_api_key" yaml:"llm_api_key"`
	LLMBaseURL     string        `mapstructure:"llm_base_url" yaml:"llm_base_url"`
	ImageAPIURL    string        `mapstructure:"image_api_url" yaml:"image_api_url"`
	ImageAPIKey    string        `mapstructure:"image_api_key" yaml:"image_api_key"`
	ImageModel     string        `mapstructure:"image_model" yaml:"image_model"`
	ImageMaxWidth  int           `mapstructure:"image_max_width" yaml:"image_max_width"`
	Chapters       int           `mapstructure:"chapters" yaml:"chapters" validate:"min=1,max=20"`
	CallTimeout    time.Duration `mapstructure:"call_timeout" yaml:"call_timeout" validate:"required"`
	MaxAttempts    int           `mapstructure:"max_attempts" yaml:"max_attempts" validate:"min=1,max=10"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
}

type StorageConfig struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	Region          string `mapstructure:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	// PublicBaseURL is prefixed to object keys to build returned URLs.
	PublicBaseURL string `mapstructure:"public_base_url" yaml:"public_base_url"`
	UsePathStyle  bool   `mapstructure:"use_path_style" yaml:"use_path_style"`
	KeyPrefix     string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio" validate:"min=0,max=1"`
}
