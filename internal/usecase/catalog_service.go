package usecase

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/wekeepgrowing/storybook/internal/config"
	"github.com/wekeepgrowing/storybook/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/storybook/internal/domain/errors"
	"github.com/wekeepgrowing/storybook/internal/domain/model"
)

// CatalogService serves the per-provider package catalogs. Prices and credit
// counts only ever come from here, never from the client.
type CatalogService struct {
	catalogs map[string]*entity.Catalog
}

// NewCatalogService builds one catalog per configured provider.
func NewCatalogService(cfg config.CatalogConfig) (*CatalogService, error) {
	paypal, err := buildCatalog(model.ProviderPayPal, cfg.PayPal)
	if err != nil {
		return nil, err
	}
	polar, err := buildCatalog(model.ProviderPolar, cfg.Polar)
	if err != nil {
		return nil, err
	}

	return &CatalogService{
		catalogs: map[string]*entity.Catalog{
			model.ProviderPayPal: paypal,
			model.ProviderPolar:  polar,
		},
	}, nil
}

func buildCatalog(provider string, packages []config.PackageConfig) (*entity.Catalog, error) {
	out := make([]entity.Package, 0, len(packages))
	for _, p := range packages {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, fmt.Errorf("catalog %s: invalid price %q for package %d: %w", provider, p.Price, p.ID, err)
		}
		out = append(out, entity.Package{
			ID:      p.ID,
			Name:    p.Name,
			Price:   price,
			Credits: p.Credits,
		})
	}
	return entity.NewCatalog(provider, out...)
}

// Catalog returns the catalog of provider.
func (s *CatalogService) Catalog(provider string) (*entity.Catalog, error) {
	c, ok := s.catalogs[provider]
	if !ok {
		return nil, fmt.Errorf("no catalog for provider %q", provider)
	}
	return c, nil
}

// Packages lists the packages of provider in id order.
func (s *CatalogService) Packages(provider string) ([]entity.Package, error) {
	c, err := s.Catalog(provider)
	if err != nil {
		return nil, err
	}
	return c.Packages(), nil
}

// Lookup resolves packageID in provider's catalog.
func (s *CatalogService) Lookup(provider string, packageID int) (entity.Package, error) {
	c, err := s.Catalog(provider)
	if err != nil {
		return entity.Package{}, err
	}
	p, ok := c.Get(packageID)
	if !ok {
		return entity.Package{}, fmt.Errorf("%w: %d", domainErrors.ErrUnknownPackage, packageID)
	}
	return p, nil
}
