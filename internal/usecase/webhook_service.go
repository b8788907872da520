package usecase

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/wekeepgrowing/storybook/internal/config"
	"github.com/wekeepgrowing/storybook/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/storybook/internal/domain/errors"
	"github.com/wekeepgrowing/storybook/internal/domain/model"
	"github.com/wekeepgrowing/storybook/internal/domain/provider"
	domainRepo "github.com/wekeepgrowing/storybook/internal/domain/repository"
	"github.com/wekeepgrowing/storybook/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Metadata keys the checkout is created with.
const (
	metaUserID    = "userId"
	metaPackageID = "packageId"
	metaCredits   = "credits"
)

// WebhookResponse is the body returned to the provider.
type WebhookResponse struct {
	Received         bool   `json:"received"`
	Processed        bool   `json:"processed"`
	AlreadyProcessed bool   `json:"alreadyProcessed,omitempty"`
	OrderID          string `json:"orderId,omitempty"`
	NewBalance       *int   `json:"newBalance,omitempty"`
}

// WebhookService authenticates provider pushes and feeds successful payments
// into the shared crediting primitive.
type WebhookService struct {
	verifiers map[string]provider.WebhookVerifier
	catalog   *CatalogService
	credits   *CreditService
	journal   domainRepo.WebhookEventRepository
	bounds    config.WebhookConfig
	logger    *zap.Logger
}

func NewWebhookService(
	verifiers map[string]provider.WebhookVerifier,
	catalog *CatalogService,
	credits *CreditService,
	journal domainRepo.WebhookEventRepository,
	bounds config.WebhookConfig,
	logger *zap.Logger,
) *WebhookService {
	return &WebhookService{
		verifiers: verifiers,
		catalog:   catalog,
		credits:   credits,
		journal:   journal,
		bounds:    bounds,
		logger:    logger,
	}
}

// Supports reports whether a verifier is configured for providerName.
func (s *WebhookService) Supports(providerName string) bool {
	_, ok := s.verifiers[providerName]
	return ok
}

// HandleWebhook returns an *errors.AppError whose code selects the HTTP
// status: UNAUTHENTICATED for a bad signature, INVALID_ARGUMENT for bad JSON
// or metadata, INTERNAL for anything the provider should redeliver.
func (s *WebhookService) HandleWebhook(ctx context.Context, providerName string, header http.Header, body []byte) (resp *WebhookResponse, err error) {
	ctx, span := tracer.Start(ctx, "WebhookService.HandleWebhook")
	span.SetAttributes(attribute.String("webhook.provider", providerName))
	defer func() { endSpan(span, err) }()

	verifier, ok := s.verifiers[providerName]
	if !ok {
		return nil, errors.NewAppError(errors.ErrNotFound, "unknown webhook provider", nil)
	}

	if err := verifier.VerifySignature(header, body); err != nil {
		s.logger.Warn("Webhook signature verification failed",
			zap.String("provider", providerName),
			zap.Error(err))
		return nil, errors.NewAppError(errors.ErrUnauthenticated, "Invalid signature", err)
	}

	event, err := verifier.ParseEvent(body)
	if err != nil {
		s.logger.Warn("Webhook payload rejected",
			zap.String("provider", providerName),
			zap.Error(err))
		return nil, errors.NewAppError(errors.ErrInvalidArgument, "Invalid payload", err)
	}
	event.ID = verifier.EventID(header, body)

	logger := s.logger.With(
		zap.String("provider", providerName),
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.String("order_id", event.OrderID))
	logger.Info("Webhook event received", zap.String("status", event.Status))
	span.SetAttributes(
		attribute.String("webhook.event_type", event.Type),
		attribute.String("payment.order_id", event.OrderID),
	)

	journaled := s.journalEvent(ctx, providerName, event, logger)
	if journaled != nil && journaled.Status == model.WebhookStatusCompleted {
		logger.Info("Webhook event already processed")
		return s.redeliveryResponse(ctx, event, logger), nil
	}

	if !event.Succeeded {
		s.markProcessed(ctx, providerName, event.ID, model.WebhookStatusIgnored, logger)
		return &WebhookResponse{Received: true, Processed: false}, nil
	}

	app, err := s.creditApplication(providerName, event)
	if err != nil {
		logger.Warn("Webhook metadata rejected", zap.Error(err))
		s.markFailed(ctx, providerName, event.ID, err, logger)
		return nil, errors.NewAppError(errors.ErrInvalidArgument, "Invalid metadata", err)
	}

	outcome, err := s.credits.ApplyVerifiedPayment(ctx, *app)
	if errors.Is(err, domainErrors.ErrOrderClaimed) {
		logger.Warn("Webhook order already credited to another account", zap.String("user_id", app.UserID))
		s.markFailed(ctx, providerName, event.ID, err, logger)
		return nil, errors.NewAppError(errors.ErrConflict, "Order already credited to another account", err)
	}
	if err != nil {
		logger.Error("Webhook credit application failed", zap.Error(err))
		s.markFailed(ctx, providerName, event.ID, err, logger)
		return nil, errors.NewAppError(errors.ErrInternal, "Internal error processing webhook", err)
	}

	s.markProcessed(ctx, providerName, event.ID, model.WebhookStatusCompleted, logger)
	logger.Info("Webhook payment processed",
		zap.String("user_id", app.UserID),
		zap.Int64("transaction_id", outcome.Transaction.ID),
		zap.Bool("already_processed", outcome.AlreadyProcessed),
		zap.Int("new_balance", outcome.NewBalance))

	return &WebhookResponse{
		Received:         true,
		Processed:        true,
		AlreadyProcessed: outcome.AlreadyProcessed,
		OrderID:          event.OrderID,
		NewBalance:       intPtr(outcome.NewBalance),
	}, nil
}

// redeliveryResponse answers an event the journal has already completed with
// the user's current balance. A balance read failure only drops newBalance.
func (s *WebhookService) redeliveryResponse(ctx context.Context, event *provider.WebhookEvent, logger *zap.Logger) *WebhookResponse {
	resp := &WebhookResponse{Received: true, Processed: true, AlreadyProcessed: true, OrderID: event.OrderID}

	userID, _ := event.Metadata[metaUserID].(string)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return resp
	}
	balance, err := s.credits.GetBalance(ctx, userID)
	if err != nil {
		logger.Warn("Failed to read balance for redelivered event", zap.Error(err))
		return resp
	}
	resp.NewBalance = intPtr(balance)
	return resp
}

// creditApplication validates the checkout metadata against the provider's
// catalog. The metadata is attached server side when the checkout is created,
// so a credit count disagreeing with the catalog means tampering or drift.
func (s *WebhookService) creditApplication(providerName string, event *provider.WebhookEvent) (*entity.CreditApplication, error) {
	if event.OrderID == "" {
		return nil, fmt.Errorf("event has no order id")
	}

	meta := model.JSONB(event.Metadata)
	userID, _ := meta[metaUserID].(string)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("metadata %s must be a non-empty string", metaUserID)
	}

	packageID, ok := meta.Int(metaPackageID)
	if !ok {
		return nil, fmt.Errorf("metadata %s is missing or not an integer", metaPackageID)
	}
	pkg, err := s.catalog.Lookup(providerName, packageID)
	if err != nil {
		return nil, err
	}

	credits, ok := meta.Int(metaCredits)
	if !ok {
		return nil, fmt.Errorf("metadata %s is missing or not an integer", metaCredits)
	}
	if credits < s.bounds.MinCredits || credits > s.bounds.MaxCredits {
		return nil, fmt.Errorf("metadata %s %d outside [%d, %d]", metaCredits, credits, s.bounds.MinCredits, s.bounds.MaxCredits)
	}
	if credits != pkg.Credits {
		return nil, fmt.Errorf("metadata %s %d does not match package %d (%d credits)", metaCredits, credits, pkg.ID, pkg.Credits)
	}

	status := event.Status
	if status == "" {
		status = event.Type
	}

	return &entity.CreditApplication{
		UserID:         userID,
		OrderID:        event.OrderID,
		Provider:       providerName,
		Package:        pkg,
		Amount:         entity.VerifiedAmount{Value: event.Amount, Currency: event.Currency},
		ProviderStatus: status,
		ChangedBy:      changedByFor(providerName),
		RequestID:      newRequestID(),
		Raw:            event.Raw,
	}, nil
}

func changedByFor(providerName string) string {
	if providerName == model.ProviderPolar {
		return model.ChangedByPolar
	}
	return providerName + "_webhook"
}

// journalEvent stores the event once per (provider, event id). The journal
// only short-circuits redeliveries; a failure to write it is not fatal.
func (s *WebhookService) journalEvent(ctx context.Context, providerName string, event *provider.WebhookEvent, logger *zap.Logger) *model.WebhookEvent {
	if s.journal == nil {
		return nil
	}
	stored, err := s.journal.SaveEvent(ctx, providerName, event.ID, event.Type, event.Raw)
	if err != nil {
		logger.Warn("Failed to journal webhook event", zap.Error(err))
		return nil
	}
	return stored
}

func (s *WebhookService) markProcessed(ctx context.Context, providerName, eventID string, status model.WebhookStatus, logger *zap.Logger) {
	if s.journal == nil {
		return
	}
	if err := s.journal.MarkProcessed(context.WithoutCancel(ctx), providerName, eventID, status); err != nil {
		logger.Warn("Failed to update webhook journal", zap.String("status", string(status)), zap.Error(err))
	}
}

func (s *WebhookService) markFailed(ctx context.Context, providerName, eventID string, cause error, logger *zap.Logger) {
	if s.journal == nil {
		return
	}
	if err := s.journal.MarkFailed(context.WithoutCancel(ctx), providerName, eventID, cause); err != nil {
		logger.Warn("Failed to update webhook journal", zap.Error(err))
	}
}
