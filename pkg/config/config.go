// Package config loads YAML configuration with environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const configDir = "configs"

type options struct {
	file     string
	defaults map[string]interface{}
	dotenv   []string
}

// Option customises Load.
type Option func(*options)

// WithFile reads exactly this file instead of searching configs/.
func WithFile(path string) Option {
	return func(o *options) { o.file = path }
}

// WithDefaults registers default values. Keys must be registered (here or in
// the file) for environment overrides to reach Unmarshal.
func WithDefaults(defaults map[string]interface{}) Option {
	return func(o *options) { o.defaults = defaults }
}

// WithDotenv loads the given .env files into the process environment first.
// Missing files are ignored.
func WithDotenv(files ...string) Option {
	return func(o *options) { o.dotenv = files }
}

// Load reads the configuration of serviceName into target.
//
// Lookup order: the WithFile path, then $CONFIG_PATH (file or directory),
// then configs/{APP_ENV}/ and configs/, falling back to configs/example/.
// Any key can be overridden by SERVICENAME_SECTION_KEY.
func Load(serviceName string, target interface{}, opts ...Option) error {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	for _, file := range o.dotenv {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(strings.ToUpper(serviceName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range o.defaults {
		v.SetDefault(key, value)
	}

	if err := readConfig(v, serviceName, o.file); err != nil {
		return err
	}

	if err := v.Unmarshal(target); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

func readConfig(v *viper.Viper, serviceName, file string) error {
	if file == "" {
		file = os.Getenv("CONFIG_PATH")
	}

	if file != "" {
		info, err := os.Stat(file)
		if err != nil {
			return fmt.Errorf("failed to stat config path: %w", err)
		}
		if !info.IsDir() {
			v.SetConfigFile(file)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config file: %w", err)
			}
			return nil
		}
		v.AddConfigPath(file)
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	v.SetConfigName(serviceName)
	v.AddConfigPath(filepath.Join(configDir, env))
	v.AddConfigPath(configDir)
	v.AddConfigPath(filepath.Join(configDir, "example"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Defaults and environment alone are a valid configuration.
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}
