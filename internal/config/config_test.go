package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pkgconfig "github.com/wekeepgrowing/storybook/pkg/config"
	"gopkg.in/yaml.v3"
)

func TestLoadConfig(t *testing.T) {
	t.Run("repository config file", func(t *testing.T) {
		cfg, err := LoadConfig(pkgconfig.WithFile(filepath.Join("..", "..", "configs", "storybook.yaml")))
		require.NoError(t, err)

		assert.Equal(t, "storybook", cfg.Service.Name)
		assert.Equal(t, "storybook", cfg.Log.Service)
		assert.Equal(t, 3, cfg.Payment.MaxAttempts)
		assert.Equal(t, time.Second, cfg.Payment.InitialBackoff)
		assert.Equal(t, 30*time.Second, cfg.Payment.VerifyTimeout)
		assert.Equal(t, "0.01", cfg.Payment.AmountTolerance)
		assert.Equal(t, 1, cfg.Webhook.MinCredits)
		assert.Equal(t, 100, cfg.Webhook.MaxCredits)
		require.Len(t, cfg.Catalog.PayPal, 4)
		require.Len(t, cfg.Catalog.Polar, 4)
		assert.Equal(t, 7, cfg.Catalog.PayPal[1].Credits)
		assert.Equal(t, 5, cfg.Catalog.Polar[1].Credits)
		assert.Equal(t, "4.99", cfg.Catalog.PayPal[1].Price)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("STORYBOOK_PAYMENT_MAX_ATTEMPTS", "5")
		t.Setenv("STORYBOOK_WEBHOOK_MAX_CREDITS", "50")

		cfg, err := LoadConfig(pkgconfig.WithFile(filepath.Join("..", "..", "configs", "storybook.yaml")))
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.Payment.MaxAttempts)
		assert.Equal(t, 50, cfg.Webhook.MaxCredits)
	})

	t.Run("missing jwt secret fails validation", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "storybook.yaml")
		require.NoError(t, os.WriteFile(file, []byte("service:\n  name: storybook\n"), 0o600))

		_, err := LoadConfig(pkgconfig.WithFile(file))
		assert.Error(t, err)
	})

	t.Run("inverted credit bounds fail validation", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "storybook.yaml")
		content := "jwt:\n  secret: s\nwebhook:\n  min_credits: 10\n  max_credits: 5\n"
		require.NoError(t, os.WriteFile(file, []byte(content), 0o600))

		_, err := LoadConfig(pkgconfig.WithFile(file))
		assert.ErrorContains(t, err, "min_credits")
	})
}

func TestLoadConfig_CatalogYAMLTags(t *testing.T) {
	doc := struct {
		JWT     JWTConfig     `yaml:"jwt"`
		Catalog CatalogConfig `yaml:"catalog"`
	}{
		JWT: JWTConfig{Secret: "s"},
		Catalog: CatalogConfig{
			PayPal: []PackageConfig{{ID: 1, Name: "Single", Price: "1.99", Credits: 2}},
			Polar:  []PackageConfig{{ID: 1, Name: "Single", Price: "1.99", Credits: 1}},
		},
	}
	raw, err := yaml.Marshal(doc)
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "storybook.yaml")
	require.NoError(t, os.WriteFile(file, raw, 0o600))

	cfg, err := LoadConfig(pkgconfig.WithFile(file))
	require.NoError(t, err)
	assert.Equal(t, doc.Catalog, cfg.Catalog)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", cfg.DSN())
}
