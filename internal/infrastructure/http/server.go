package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	handlers "github.com/wekeepgrowing/storybook/internal/adapter/handler/http"
	"github.com/wekeepgrowing/storybook/internal/config"
	"github.com/wekeepgrowing/storybook/internal/middleware/auth"
	"github.com/wekeepgrowing/storybook/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Handlers groups the HTTP handlers mounted by the server.
type Handlers struct {
	Payment *handlers.PaymentHandler
	Credit  *handlers.CreditHandler
	Catalog *handlers.CatalogHandler
	Webhook *handlers.WebhookHandler
	Story   *handlers.StoryHandler
}

type Server struct {
	config   *config.Config
	logger   *zap.Logger
	echo     *echo.Echo
	handlers Handlers
}

func NewServer(cfg *config.Config, log *zap.Logger, h Handlers) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	logger.WithEchoLogger(e, log)
	e.Validator = handlers.NewRequestValidator()

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(traceRequests(cfg.Service.Name))
	e.Use(logger.NewEchoRequestLogger(log))
	if cfg.Service.ClientURL != "" {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     []string{cfg.Service.ClientURL},
			AllowMethods:     []string{http.MethodGet, http.MethodPost},
			AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType},
			AllowCredentials: true,
		}))
	}

	s := &Server{
		config:   cfg,
		logger:   log,
		echo:     e,
		handlers: h,
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.HTTP.Host, s.config.Server.HTTP.Port)
	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": s.config.Service.Name,
		})
	})

	requireUser := auth.JWTMiddleware(auth.JWTConfig{
		Secret: s.config.JWT.Secret,
		Issuer: s.config.JWT.Issuer,
		Logger: s.logger,
	})

	// Webhooks authenticate by provider signature, not by session.
	s.echo.POST("/webhooks/:provider", s.handlers.Webhook.HandleWebhook)
	s.echo.GET("/webhooks/:provider", s.handlers.Webhook.Health)

	s.echo.POST("/payments/verify", s.handlers.Payment.Verify, requireUser)
	s.echo.Match([]string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete},
		"/payments/verify", s.handlers.Payment.MethodNotAllowed)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/packages", s.handlers.Catalog.ListPackages)

	protected := v1.Group("", requireUser)
	protected.GET("/credits", s.handlers.Credit.GetUserCredits)

	payments := protected.Group("/payments")
	payments.POST("/capture", s.handlers.Payment.Capture)
	payments.POST("/recover", s.handlers.Payment.Recover)
	payments.GET("/transactions", s.handlers.Payment.Transactions)

	stories := protected.Group("/stories")
	stories.POST("", s.handlers.Story.Create)
	stories.GET("", s.handlers.Story.List)
}

// traceRequests starts a server span per request, continuing any incoming
// trace context.
func traceRequests(service string) echo.MiddlewareFunc {
	tracer := otel.Tracer("github.com/wekeepgrowing/storybook/internal/infrastructure/http")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.URL.Path == "/health" {
				return next(c)
			}

			ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))
			ctx, span := tracer.Start(ctx, req.Method+" "+c.Path(),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("service.name", service),
					attribute.String("http.request.method", req.Method),
					attribute.String("http.route", c.Path()),
				))
			defer span.End()
			c.SetRequest(req.WithContext(ctx))

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			span.SetAttributes(
				attribute.Int("http.response.status_code", status),
				attribute.Int64("http.server.duration_ms", time.Since(start).Milliseconds()),
			)
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}
			return nil
		}
	}
}
