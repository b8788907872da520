package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	domainCache "github.com/wekeepgrowing/storybook/internal/domain/cache"
	"github.com/wekeepgrowing/storybook/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/storybook/internal/domain/errors"
	"github.com/wekeepgrowing/storybook/internal/domain/model"
	domainRepo "github.com/wekeepgrowing/storybook/internal/domain/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CreditService owns balance reads and the crediting primitive shared by the
// capture flow, the webhook receiver and the recovery sweep.
type CreditService struct {
	creditRepo domainRepo.CreditRepository
	cache      domainCache.BalanceCache
	notifier   *BalanceNotifier
	logger     *zap.Logger
}

// NewCreditService creates a new credit service instance
func NewCreditService(
	creditRepo domainRepo.CreditRepository,
	cache domainCache.BalanceCache,
	notifier *BalanceNotifier,
	logger *zap.Logger,
) *CreditService {
	if cache == nil {
		cache = domainCache.Nop{}
	}
	return &CreditService{
		creditRepo: creditRepo,
		cache:      cache,
		notifier:   notifier,
		logger:     logger,
	}
}

// GetBalance reads the balance through the cache.
func (s *CreditService) GetBalance(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, domainErrors.ErrAuthenticationRequired
	}

	if balance, ok, err := s.cache.Get(ctx, userID); err != nil {
		s.logger.Warn("Balance cache read failed",
			zap.String("user_id", userID),
			zap.Error(err))
	} else if ok {
		return balance, nil
	}

	balance, err := s.creditRepo.GetBalance(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}

	if err := s.cache.Set(ctx, userID, balance); err != nil {
		s.logger.Warn("Balance cache write failed",
			zap.String("user_id", userID),
			zap.Error(err))
	}
	return balance, nil
}

// ApplyVerifiedPayment credits a provider-verified payment exactly once per
// (order id, user id). A replay returns the stored row with AlreadyProcessed
// set and does not touch the balance.
func (s *CreditService) ApplyVerifiedPayment(ctx context.Context, app entity.CreditApplication) (outcome *entity.CreditOutcome, err error) {
	ctx, span := tracer.Start(ctx, "CreditService.ApplyVerifiedPayment")
	span.SetAttributes(
		attribute.String("payment.provider", app.Provider),
		attribute.String("payment.order_id", app.OrderID),
		attribute.Int("payment.package_id", app.Package.ID),
	)
	defer func() { endSpan(span, err) }()

	if app.UserID == "" {
		return nil, domainErrors.ErrAuthenticationRequired
	}
	if app.OrderID == "" {
		return nil, fmt.Errorf("order id is required")
	}
	if app.Package.Credits <= 0 {
		return nil, fmt.Errorf("%w: package %d grants no credits", domainErrors.ErrUnknownPackage, app.Package.ID)
	}

	row, err := transactionFromApplication(app)
	if err != nil {
		return nil, err
	}

	audit := model.PaymentAuditLog{
		ChangedBy: app.ChangedBy,
		Reason:    fmt.Sprintf("%d credits applied for package %d", app.Package.Credits, app.Package.ID),
		RequestID: app.RequestID,
		Attempt:   app.Attempt,
	}

	outcome, err = s.creditRepo.ApplyPaymentCredit(ctx, row, app.Package.Credits, audit)
	if err != nil {
		return nil, fmt.Errorf("failed to apply payment credit: %w", err)
	}

	span.SetAttributes(attribute.Bool("payment.already_processed", outcome.AlreadyProcessed))
	if outcome.AlreadyProcessed {
		return outcome, nil
	}

	if s.notifier != nil {
		s.notifier.BalanceChanged(ctx, BalanceChangedEvent{
			UserID:  app.UserID,
			Balance: outcome.NewBalance,
			Delta:   outcome.CreditsApplied,
			Reason:  ReasonPayment,
			OrderID: app.OrderID,
		})
	}
	return outcome, nil
}

// transactionFromApplication builds the COMPLETED ledger row. The payload
// keeps the credit count decided now; the recovery sweep reads it back.
func transactionFromApplication(app entity.CreditApplication) (*model.PaymentTransaction, error) {
	amount := app.Package.Price
	if app.Amount.Value != "" {
		parsed, err := decimal.NewFromString(app.Amount.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid verified amount %q: %w", app.Amount.Value, err)
		}
		amount = parsed
	}

	payload := model.JSONB{
		model.PayloadKeyCredits:   app.Package.Credits,
		model.PayloadKeyPackageID: app.Package.ID,
		"provider_status":         app.ProviderStatus,
		"request_id":              app.RequestID,
	}
	if app.Raw != nil {
		payload["provider_response"] = app.Raw
	}

	now := time.Now().UTC()
	row := &model.PaymentTransaction{
		OrderID:    app.OrderID,
		UserID:     app.UserID,
		Provider:   app.Provider,
		PackageID:  app.Package.ID,
		Amount:     amount,
		Currency:   app.Amount.Currency,
		RawPayload: payload,
		VerifiedAt: &now,
	}
	if app.CaptureID != "" {
		captureID := app.CaptureID
		row.CaptureID = &captureID
	}
	return row, nil
}
