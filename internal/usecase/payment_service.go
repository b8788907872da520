package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/shopspring/decimal"
	"github.com/wekeepgrowing/storybook/internal/config"
	"github.com/wekeepgrowing/storybook/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/storybook/internal/domain/errors"
	"github.com/wekeepgrowing/storybook/internal/domain/model"
	"github.com/wekeepgrowing/storybook/internal/domain/provider"
	domainRepo "github.com/wekeepgrowing/storybook/internal/domain/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// User-facing messages. Provider and database errors never reach the client.
const (
	MsgAuthRequired     = "Please sign in to complete your purchase."
	MsgMissingOrder     = "Missing order id."
	MsgInvalidOrder     = "Invalid order id."
	MsgOrderClaimed     = "This payment was already applied to another account. Please contact support."
	MsgInvalidPackage   = "Invalid package selected."
	MsgAlreadyProcessed = "Payment already processed."
	MsgAmountMismatch   = "Payment amount does not match the selected package. Please contact support."
	MsgNotVerified      = "Payment could not be verified. Please contact support if you were charged."
	MsgRetryExhausted   = "Payment verification failed after multiple attempts. Please contact support."
	MsgInterrupted      = "Payment verification was interrupted. Please try again."
	MsgUnexpected       = "An unexpected error occurred. Please contact support."
	MsgVerified         = "Payment verified."
)

const requestIDLength = 10

// PaymentSettings tunes the capture orchestrator.
type PaymentSettings struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	VerifyTimeout   time.Duration
	AmountTolerance decimal.Decimal
	Currency        string
}

// NewPaymentSettings converts the payment configuration section.
func NewPaymentSettings(cfg config.PaymentConfig) (PaymentSettings, error) {
	tolerance, err := decimal.NewFromString(cfg.AmountTolerance)
	if err != nil {
		return PaymentSettings{}, fmt.Errorf("invalid payment.amount_tolerance %q: %w", cfg.AmountTolerance, err)
	}
	return PaymentSettings{
		MaxAttempts:     cfg.MaxAttempts,
		InitialBackoff:  cfg.InitialBackoff,
		MaxBackoff:      cfg.MaxBackoff,
		VerifyTimeout:   cfg.VerifyTimeout,
		AmountTolerance: tolerance,
		Currency:        strings.ToUpper(cfg.Currency),
	}, nil
}

func (s PaymentSettings) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.InitialBackoff
	b.MaxInterval = s.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	return b
}

// PaymentService is the client-confirmed capture orchestrator: idempotency
// check, provider verification, amount validation and the atomic credit,
// inside a bounded retry loop.
type PaymentService struct {
	verifier     provider.Verifier
	catalog      *CatalogService
	ledger       domainRepo.PaymentTransactionRepository
	credits      *CreditService
	audit        AuditSink
	settings     PaymentSettings
	logger       *zap.Logger
	newRequestID func() string
}

// NewPaymentService creates a new payment service instance
func NewPaymentService(
	verifier provider.Verifier,
	catalog *CatalogService,
	ledger domainRepo.PaymentTransactionRepository,
	credits *CreditService,
	audit AuditSink,
	settings PaymentSettings,
	logger *zap.Logger,
) *PaymentService {
	if settings.MaxAttempts < 1 {
		settings.MaxAttempts = 1
	}
	return &PaymentService{
		verifier:     verifier,
		catalog:      catalog,
		ledger:       ledger,
		credits:      credits,
		audit:        audit,
		settings:     settings,
		logger:       logger,
		newRequestID: newRequestID,
	}
}

func newRequestID() string {
	id, err := gonanoid.New(requestIDLength)
	if err != nil {
		return fmt.Sprintf("r%d", time.Now().UnixNano())
	}
	return id
}

// paymentCall carries the state of one ProcessPayment invocation across
// retry attempts.
type paymentCall struct {
	requestID string
	userID    string
	orderID   string
	pkg       entity.Package
	attempt   int
}

func (c *paymentCall) auditEntry(status, changedBy, reason string) *model.PaymentAuditLog {
	return &model.PaymentAuditLog{
		OrderID:   c.orderID,
		UserID:    c.userID,
		NewStatus: status,
		ChangedBy: changedBy,
		Reason:    reason,
		RequestID: c.requestID,
		Attempt:   c.attempt,
	}
}

// ProcessPayment verifies orderID with the provider and credits packageID to
// userID exactly once. It never returns nil.
func (s *PaymentService) ProcessPayment(ctx context.Context, userID, orderID string, packageID int) *entity.PaymentResult {
	call := &paymentCall{
		requestID: s.newRequestID(),
		userID:    userID,
		orderID:   strings.TrimSpace(orderID),
	}

	ctx, span := tracer.Start(ctx, "PaymentService.ProcessPayment")
	span.SetAttributes(
		attribute.String("payment.request_id", call.requestID),
		attribute.String("payment.order_id", call.orderID),
		attribute.Int("payment.package_id", packageID),
	)
	defer span.End()

	logger := s.logger.With(
		zap.String("request_id", call.requestID),
		zap.String("order_id", call.orderID),
		zap.String("user_id", userID),
		zap.Int("package_id", packageID))
	logger.Info("Processing payment")

	if userID == "" {
		logger.Warn("Payment rejected: no authenticated user")
		s.audit.Record(ctx, call.auditEntry(model.AuditStatusRejected, model.ChangedBySystem, domainErrors.ErrAuthenticationRequired.Error()))
		return s.result(call, false, MsgAuthRequired, false)
	}
	if call.orderID == "" {
		logger.Warn("Payment rejected: empty order id")
		s.audit.Record(ctx, call.auditEntry(model.AuditStatusRejected, model.ChangedBySystem, "empty order id"))
		return s.result(call, false, MsgMissingOrder, false)
	}

	if done := s.completedResult(ctx, call, logger); done != nil {
		return done
	}

	pkg, err := s.catalog.Lookup(model.ProviderPayPal, packageID)
	if err != nil {
		logger.Warn("Payment rejected: invalid package", zap.Error(err))
		s.audit.Record(ctx, call.auditEntry(model.AuditStatusRejected, model.ChangedBySystem, err.Error()))
		return s.result(call, false, MsgInvalidPackage, false)
	}
	call.pkg = pkg

	outcome, err := backoff.Retry(ctx,
		func() (*entity.CreditOutcome, error) {
			return s.attempt(ctx, call, logger)
		},
		backoff.WithBackOff(s.settings.backOff()),
		backoff.WithMaxTries(uint(s.settings.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("Payment attempt failed, retrying",
				zap.Int("attempt", call.attempt),
				zap.Duration("next_backoff", next),
				zap.Error(err))
		}),
	)
	span.SetAttributes(attribute.Int("payment.attempts", call.attempt))
	if err != nil {
		span.RecordError(err)
		return s.failureResult(ctx, call, err, logger)
	}

	if outcome.AlreadyProcessed {
		logger.Info("Payment already processed",
			zap.Int64("transaction_id", outcome.Transaction.ID),
			zap.Int("balance", outcome.NewBalance))
		res := s.result(call, true, MsgAlreadyProcessed, false)
		res.AlreadyProcessed = true
		res.NewBalance = intPtr(outcome.NewBalance)
		res.TransactionID = int64Ptr(outcome.Transaction.ID)
		return res
	}

	logger.Info("Payment processed",
		zap.Int64("transaction_id", outcome.Transaction.ID),
		zap.Int("credits", outcome.CreditsApplied),
		zap.Int("new_balance", outcome.NewBalance),
		zap.Int("attempts", call.attempt))
	res := s.result(call, true, fmt.Sprintf("Payment successful! %d credits added.", outcome.CreditsApplied), false)
	res.NewBalance = intPtr(outcome.NewBalance)
	res.TransactionID = int64Ptr(outcome.Transaction.ID)
	return res
}

// completedResult short-circuits a replay of an already credited order. A
// failed lookup is logged and ignored; the crediting transaction re-checks.
func (s *PaymentService) completedResult(ctx context.Context, call *paymentCall, logger *zap.Logger) *entity.PaymentResult {
	existing, err := s.ledger.FindByOrderAndUser(ctx, call.orderID, call.userID)
	if err != nil {
		logger.Warn("Idempotency lookup failed", zap.Error(err))
		return nil
	}
	if existing == nil || !existing.Status.IsTerminalSuccess() {
		return nil
	}

	res := s.result(call, true, MsgAlreadyProcessed, false)
	res.AlreadyProcessed = true
	res.TransactionID = int64Ptr(existing.ID)
	if balance, err := s.credits.GetBalance(ctx, call.userID); err == nil {
		res.NewBalance = intPtr(balance)
	} else {
		logger.Warn("Failed to read balance for replayed payment", zap.Error(err))
	}
	logger.Info("Payment replay short-circuited", zap.Int64("transaction_id", existing.ID))
	return res
}

// attempt is one pass of verify, validate and credit. Errors wrapped in
// backoff.Permanent end the retry loop.
func (s *PaymentService) attempt(ctx context.Context, call *paymentCall, logger *zap.Logger) (*entity.CreditOutcome, error) {
	call.attempt++

	verified, err := s.verify(ctx, call)
	if err != nil {
		if isTransient(err) {
			s.audit.Record(ctx, call.auditEntry(model.AuditStatusAttemptFailed, model.ChangedByPayPal, describe(err)))
			return nil, err
		}
		s.recordOutcome(ctx, call, model.TransactionStatusFailed, nil, err, logger)
		return nil, backoff.Permanent(err)
	}

	if mismatch := s.checkAmount(call.pkg, verified); mismatch != nil {
		logger.Error("Captured amount does not match package",
			zap.String("expected", mismatch.Expected),
			zap.String("actual", mismatch.Actual),
			zap.String("capture_id", verified.CaptureID))
		s.recordOutcome(ctx, call, model.TransactionStatusAmountMismatch, verified, mismatch, logger)
		return nil, backoff.Permanent(mismatch)
	}

	outcome, err := s.credits.ApplyVerifiedPayment(ctx, entity.CreditApplication{
		UserID:         call.userID,
		OrderID:        call.orderID,
		Provider:       model.ProviderPayPal,
		Package:        call.pkg,
		Amount:         entity.VerifiedAmount{Value: verified.Amount, Currency: verified.Currency},
		CaptureID:      verified.CaptureID,
		ProviderStatus: verified.Status,
		ChangedBy:      model.ChangedByPayPal,
		RequestID:      call.requestID,
		Attempt:        call.attempt,
		Raw:            verified.Raw,
	})
	if err != nil {
		if errors.Is(err, domainErrors.ErrAuthenticationRequired) ||
			errors.Is(err, domainErrors.ErrUnknownPackage) ||
			errors.Is(err, domainErrors.ErrOrderClaimed) {
			return nil, backoff.Permanent(err)
		}
		s.audit.Record(ctx, call.auditEntry(model.AuditStatusAttemptFailed, model.ChangedBySystem, "credit transaction failed"))
		return nil, domainErrors.Retryable(err)
	}
	return outcome, nil
}

func (s *PaymentService) verify(ctx context.Context, call *paymentCall) (result *provider.VerifyResult, err error) {
	ctx, span := tracer.Start(ctx, "PaymentService.verify")
	span.SetAttributes(attribute.Int("payment.attempt", call.attempt))
	defer func() { endSpan(span, err) }()

	vctx, cancel := context.WithTimeout(provider.WithRequestID(ctx, call.requestID), s.settings.VerifyTimeout)
	defer cancel()

	return s.verifier.VerifyOrder(vctx, call.orderID)
}

// checkAmount compares the captured amount and currency with the package.
func (s *PaymentService) checkAmount(pkg entity.Package, verified *provider.VerifyResult) *domainErrors.AmountMismatchError {
	mismatch := &domainErrors.AmountMismatchError{
		Expected: pkg.Price.StringFixed(2) + " " + s.settings.Currency,
		Actual:   strings.TrimSpace(verified.Amount + " " + verified.Currency),
	}

	amount, err := decimal.NewFromString(verified.Amount)
	if err != nil {
		return mismatch
	}
	if s.settings.Currency != "" && !strings.EqualFold(verified.Currency, s.settings.Currency) {
		return mismatch
	}
	if !pkg.PriceMatches(amount, s.settings.AmountTolerance) {
		return mismatch
	}
	return nil
}

// recordOutcome writes a non-crediting ledger row plus its audit entry. When
// the ledger write fails the audit entry is still recorded without a row.
func (s *PaymentService) recordOutcome(ctx context.Context, call *paymentCall, status model.TransactionStatus, verified *provider.VerifyResult, cause error, logger *zap.Logger) {
	payload := model.JSONB{
		model.PayloadKeyPackageID: call.pkg.ID,
		"request_id":              call.requestID,
		"attempt":                 call.attempt,
		"error":                   describe(cause),
	}
	row := &model.PaymentTransaction{
		OrderID:    call.orderID,
		UserID:     call.userID,
		Provider:   model.ProviderPayPal,
		PackageID:  call.pkg.ID,
		Currency:   s.settings.Currency,
		Status:     status,
		RawPayload: payload,
	}

	if verified != nil {
		if amount, err := decimal.NewFromString(verified.Amount); err == nil {
			row.Amount = amount
		}
		if verified.Currency != "" {
			row.Currency = verified.Currency
		}
		if verified.CaptureID != "" {
			captureID := verified.CaptureID
			row.CaptureID = &captureID
		}
		payload["provider_status"] = verified.Status
		payload["provider_response"] = verified.Raw
	}

	var pe *provider.ProviderError
	if errors.As(cause, &pe) {
		payload["error_code"] = pe.Code
		payload["status_code"] = pe.StatusCode
	}

	entry := call.auditEntry(string(status), model.ChangedByPayPal, describe(cause))
	if _, err := s.ledger.RecordAttempt(context.WithoutCancel(ctx), row, entry); err != nil {
		logger.Error("Failed to record payment outcome",
			zap.String("status", string(status)),
			zap.Error(err))
		entry.TransactionID = nil
		s.audit.Record(ctx, entry)
	}
}

// failureResult maps the error that ended the retry loop to a user message.
func (s *PaymentService) failureResult(ctx context.Context, call *paymentCall, err error, logger *zap.Logger) *entity.PaymentResult {
	var mismatch *domainErrors.AmountMismatchError
	var pe *provider.ProviderError

	switch {
	case errors.As(err, &mismatch):
		return s.result(call, false, MsgAmountMismatch, false)

	case errors.Is(err, domainErrors.ErrUnknownPackage):
		return s.result(call, false, MsgInvalidPackage, false)

	case errors.Is(err, domainErrors.ErrOrderClaimed):
		logger.Warn("Payment rejected: order credited to another account")
		s.audit.Record(ctx, call.auditEntry(model.AuditStatusRejected, model.ChangedBySystem, err.Error()))
		return s.result(call, false, MsgOrderClaimed, false)

	case errors.As(err, &pe) && !pe.Retryable:
		logger.Error("Payment verification rejected by provider",
			zap.String("code", pe.Code),
			zap.Int("status_code", pe.StatusCode),
			zap.Error(err))
		return s.result(call, false, MsgNotVerified, false)

	case ctx.Err() != nil:
		logger.Warn("Payment processing interrupted", zap.Int("attempts", call.attempt), zap.Error(err))
		s.audit.Record(ctx, call.auditEntry(string(model.TransactionStatusFailed), model.ChangedBySystem, "interrupted: "+ctx.Err().Error()))
		return s.result(call, false, MsgInterrupted, true)

	case isTransient(err):
		logger.Error("Payment verification failed after all attempts",
			zap.Int("attempts", call.attempt),
			zap.Error(err))
		s.recordOutcome(ctx, call, model.TransactionStatusFailed, nil, fmt.Errorf("retries exhausted: %w", err), logger)
		return s.result(call, false, MsgRetryExhausted, false)

	default:
		logger.Error("Unexpected payment failure", zap.Error(err))
		s.audit.Record(ctx, call.auditEntry(string(model.TransactionStatusFailed), model.ChangedBySystem, "unexpected: "+err.Error()))
		return s.result(call, false, MsgUnexpected, false)
	}
}

func (s *PaymentService) result(call *paymentCall, success bool, message string, canRetry bool) *entity.PaymentResult {
	return &entity.PaymentResult{
		Success:   success,
		Message:   message,
		CanRetry:  canRetry,
		RequestID: call.requestID,
	}
}

// VerificationResult is returned by VerifyOnly.
type VerificationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	OrderID string `json:"orderID,omitempty"`
}

// VerifyOnly confirms a capture with the provider and records a VERIFIED
// ledger row without crediting. When the captured amount matches a catalog
// price, the intended credits are stored so the recovery sweep or a later
// ProcessPayment can apply them.
func (s *PaymentService) VerifyOnly(ctx context.Context, userID, orderID string) *VerificationResult {
	call := &paymentCall{
		requestID: s.newRequestID(),
		userID:    userID,
		orderID:   strings.TrimSpace(orderID),
	}

	ctx, span := tracer.Start(ctx, "PaymentService.VerifyOnly")
	span.SetAttributes(attribute.String("payment.order_id", call.orderID))
	defer span.End()

	logger := s.logger.With(
		zap.String("request_id", call.requestID),
		zap.String("order_id", call.orderID),
		zap.String("user_id", userID))

	if userID == "" {
		s.audit.Record(ctx, call.auditEntry(model.AuditStatusRejected, model.ChangedBySystem, domainErrors.ErrAuthenticationRequired.Error()))
		return &VerificationResult{Message: MsgAuthRequired}
	}
	if call.orderID == "" {
		s.audit.Record(ctx, call.auditEntry(model.AuditStatusRejected, model.ChangedBySystem, "empty order id"))
		return &VerificationResult{Message: MsgMissingOrder}
	}

	if existing, err := s.ledger.FindByOrderAndUser(ctx, call.orderID, userID); err == nil && existing != nil &&
		(existing.Status.IsTerminalSuccess() || existing.Status == model.TransactionStatusVerified) {
		return &VerificationResult{Success: true, Message: MsgAlreadyProcessed, OrderID: call.orderID}
	}

	verified, err := backoff.Retry(ctx,
		func() (*provider.VerifyResult, error) {
			call.attempt++
			result, err := s.verify(ctx, call)
			if err != nil && !isTransient(err) {
				return nil, backoff.Permanent(err)
			}
			return result, err
		},
		backoff.WithBackOff(s.settings.backOff()),
		backoff.WithMaxTries(uint(s.settings.MaxAttempts)),
	)
	if err != nil {
		logger.Error("Payment verification failed",
			zap.Int("attempts", call.attempt),
			zap.Error(err))
		s.recordOutcome(ctx, call, model.TransactionStatusFailed, nil, err, logger)
		return &VerificationResult{Message: MsgNotVerified}
	}

	now := time.Now().UTC()
	payload := model.JSONB{
		"provider_status":   verified.Status,
		"provider_response": verified.Raw,
		"request_id":        call.requestID,
	}
	row := &model.PaymentTransaction{
		OrderID:    call.orderID,
		UserID:     userID,
		Provider:   model.ProviderPayPal,
		Currency:   verified.Currency,
		Status:     model.TransactionStatusVerified,
		RawPayload: payload,
		VerifiedAt: &now,
	}
	if verified.CaptureID != "" {
		captureID := verified.CaptureID
		row.CaptureID = &captureID
	}

	reason := "verified by provider, credits pending"
	if amount, err := decimal.NewFromString(verified.Amount); err == nil {
		row.Amount = amount
		if catalog, err := s.catalog.Catalog(model.ProviderPayPal); err == nil {
			if pkg, ok := catalog.MatchPrice(amount, s.settings.AmountTolerance); ok {
				row.PackageID = pkg.ID
				payload[model.PayloadKeyCredits] = pkg.Credits
				payload[model.PayloadKeyPackageID] = pkg.ID
				reason = fmt.Sprintf("verified by provider, %d credits pending for package %d", pkg.Credits, pkg.ID)
			} else {
				logger.Warn("Verified amount matches no package", zap.String("amount", verified.Amount))
				reason = "verified by provider, amount matches no package"
			}
		}
	}

	entry := call.auditEntry(string(model.TransactionStatusVerified), model.ChangedByPayPal, reason)
	if _, err := s.ledger.RecordAttempt(ctx, row, entry); err != nil {
		logger.Error("Failed to record verified payment", zap.Error(err))
		return &VerificationResult{Message: MsgUnexpected}
	}

	logger.Info("Payment verified", zap.String("capture_id", verified.CaptureID))
	return &VerificationResult{Success: true, Message: MsgVerified, OrderID: call.orderID}
}

// isTransient reports whether another attempt may succeed.
func isTransient(err error) bool {
	return provider.IsRetryable(err) ||
		domainErrors.IsRetryable(err) ||
		errors.Is(err, context.DeadlineExceeded)
}

// describe renders err for the audit trail.
func describe(err error) string {
	var pe *provider.ProviderError
	if errors.As(err, &pe) {
		if pe.StatusCode != 0 {
			return fmt.Sprintf("%s (%s, HTTP %d)", pe.Message, pe.Code, pe.StatusCode)
		}
		return fmt.Sprintf("%s (%s)", pe.Message, pe.Code)
	}
	return err.Error()
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }
