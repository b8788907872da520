package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/wekeepgrowing/storybook/internal/domain/entity"
	"github.com/wekeepgrowing/storybook/internal/domain/model"
)

// PackageLister exposes the per-provider catalogs.
type PackageLister interface {
	Packages(provider string) ([]entity.Package, error)
}

type CatalogHandler struct {
	catalog PackageLister
}

func NewCatalogHandler(catalog PackageLister) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

type packageView struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Price   string `json:"price"`
	Credits int    `json:"credits"`
}

// ListPackages handles GET /api/v1/packages?provider=paypal|polar.
func (h *CatalogHandler) ListPackages(c echo.Context) error {
	provider := c.QueryParam("provider")
	if provider == "" {
		provider = model.ProviderPayPal
	}

	packages, err := h.catalog.Packages(provider)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{
			"error": "Unknown payment provider",
		})
	}

	views := make([]packageView, len(packages))
	for i, p := range packages {
		views[i] = packageView{
			ID:      p.ID,
			Name:    p.Name,
			Price:   p.Price.StringFixed(2),
			Credits: p.Credits,
		}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"provider": provider,
		"packages": views,
	})
}
