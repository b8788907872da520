package entity

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Package is one purchasable credit tier.
type Package struct {
	ID      int             `json:"id"`
	Name    string          `json:"name"`
	Price   decimal.Decimal `json:"price"`
	Credits int             `json:"credits"`
}

// PriceMatches reports whether amount is within tolerance of the price.
func (p Package) PriceMatches(amount, tolerance decimal.Decimal) bool {
	return amount.Sub(p.Price).Abs().LessThanOrEqual(tolerance)
}

// Catalog is the fixed, server-side package table of one payment provider.
type Catalog struct {
	provider string
	packages map[int]Package
}

// NewCatalog validates and indexes packages.
func NewCatalog(provider string, packages ...Package) (*Catalog, error) {
	if len(packages) == 0 {
		return nil, fmt.Errorf("catalog %s has no packages", provider)
	}

	c := &Catalog{provider: provider, packages: make(map[int]Package, len(packages))}
	for _, p := range packages {
		if _, dup := c.packages[p.ID]; dup {
			return nil, fmt.Errorf("catalog %s: duplicate package id %d", provider, p.ID)
		}
		if !p.Price.IsPositive() {
			return nil, fmt.Errorf("catalog %s: package %d has non-positive price", provider, p.ID)
		}
		if p.Credits <= 0 {
			return nil, fmt.Errorf("catalog %s: package %d grants no credits", provider, p.ID)
		}
		c.packages[p.ID] = p
	}
	return c, nil
}

func (c *Catalog) Provider() string {
	return c.provider
}

// Get looks a package up by id.
func (c *Catalog) Get(id int) (Package, bool) {
	p, ok := c.packages[id]
	return p, ok
}

// Packages lists the catalog ordered by id.
func (c *Catalog) Packages() []Package {
	out := make([]Package, 0, len(c.packages))
	for _, p := range c.packages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MatchPrice returns the package whose price matches amount. Used when the
// caller only knows what was paid.
func (c *Catalog) MatchPrice(amount, tolerance decimal.Decimal) (Package, bool) {
	for _, p := range c.Packages() {
		if p.PriceMatches(amount, tolerance) {
			return p, true
		}
	}
	return Package{}, false
}
