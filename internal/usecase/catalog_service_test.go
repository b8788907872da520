package usecase_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wekeepgrowing/storybook/internal/config"
	domainErrors "github.com/wekeepgrowing/storybook/internal/domain/errors"
	"github.com/wekeepgrowing/storybook/internal/domain/model"
	"github.com/wekeepgrowing/storybook/internal/usecase"
)

func TestCatalogService(t *testing.T) {
	catalog, err := usecase.NewCatalogService(testCatalogConfig())
	require.NoError(t, err)

	t.Run("catalogs differ per provider", func(t *testing.T) {
		paypal, err := catalog.Lookup(model.ProviderPayPal, 4)
		require.NoError(t, err)
		polar, err := catalog.Lookup(model.ProviderPolar, 4)
		require.NoError(t, err)

		assert.Equal(t, 16, paypal.Credits)
		assert.Equal(t, 12, polar.Credits)
		assert.True(t, paypal.Price.Equal(polar.Price))
	})

	t.Run("packages are ordered", func(t *testing.T) {
		packages, err := catalog.Packages(model.ProviderPayPal)
		require.NoError(t, err)
		require.Len(t, packages, 4)
		for i, p := range packages {
			assert.Equal(t, i+1, p.ID)
		}
	})

	t.Run("unknown package", func(t *testing.T) {
		_, err := catalog.Lookup(model.ProviderPayPal, 9)
		assert.ErrorIs(t, err, domainErrors.ErrUnknownPackage)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := catalog.Packages("stripe")
		assert.Error(t, err)
	})

	t.Run("price match honours tolerance", func(t *testing.T) {
		c, err := catalog.Catalog(model.ProviderPayPal)
		require.NoError(t, err)

		p, ok := c.MatchPrice(decimal.RequireFromString("8.985"), decimal.RequireFromString("0.01"))
		require.True(t, ok)
		assert.Equal(t, 3, p.ID)

		_, ok = c.MatchPrice(decimal.RequireFromString("5.50"), decimal.RequireFromString("0.01"))
		assert.False(t, ok)
	})
}

func TestNewCatalogService_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		paypal []config.PackageConfig
	}{
		{name: "empty", paypal: nil},
		{name: "bad price", paypal: []config.PackageConfig{{ID: 1, Price: "abc", Credits: 1}}},
		{name: "zero price", paypal: []config.PackageConfig{{ID: 1, Price: "0", Credits: 1}}},
		{name: "no credits", paypal: []config.PackageConfig{{ID: 1, Price: "1.00"}}},
		{name: "duplicate id", paypal: []config.PackageConfig{
			{ID: 1, Price: "1.00", Credits: 1},
			{ID: 1, Price: "2.00", Credits: 2},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testCatalogConfig()
			cfg.PayPal = tt.paypal
			_, err := usecase.NewCatalogService(cfg)
			assert.Error(t, err)
		})
	}
}
