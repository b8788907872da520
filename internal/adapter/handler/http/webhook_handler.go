package http

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/wekeepgrowing/storybook/internal/usecase"
	"go.uber.org/zap"
)

// maxWebhookBody bounds the request body read before signature verification.
const maxWebhookBody = 1 << 20

// WebhookProcessor verifies and applies provider webhook deliveries.
type WebhookProcessor interface {
	Supports(provider string) bool
	HandleWebhook(ctx context.Context, provider string, header http.Header, body []byte) (*usecase.WebhookResponse, error)
}

type WebhookHandler struct {
	webhooks WebhookProcessor
	logger   *zap.Logger
}

func NewWebhookHandler(webhooks WebhookProcessor, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		webhooks: webhooks,
		logger:   logger,
	}
}

// HandleWebhook handles POST /webhooks/:provider.
func (h *WebhookHandler) HandleWebhook(c echo.Context) error {
	provider := c.Param("provider")

	body, err := io.ReadAll(http.MaxBytesReader(c.Response(), c.Request().Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("Error reading webhook body",
			zap.String("provider", provider),
			zap.Error(err))
		return badRequest(c, "Error reading request body")
	}

	resp, err := h.webhooks.HandleWebhook(c.Request().Context(), provider, c.Request().Header, body)
	if err != nil {
		return respondError(c, h.logger, err, "Webhook rejected")
	}
	return c.JSON(http.StatusOK, resp)
}

// Health handles GET /webhooks/:provider so the provider dashboard can check
// the endpoint.
func (h *WebhookHandler) Health(c echo.Context) error {
	provider := c.Param("provider")
	if !h.webhooks.Supports(provider) {
		return c.JSON(http.StatusNotFound, echo.Map{
			"error": "Unknown webhook provider",
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status":    "healthy",
		"service":   provider + "-webhook",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
