package usecase_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/wekeepgrowing/storybook/internal/domain/entity"
	"github.com/wekeepgrowing/storybook/internal/domain/generator"
	"github.com/wekeepgrowing/storybook/internal/domain/model"
	"github.com/wekeepgrowing/storybook/internal/domain/provider"
	"github.com/wekeepgrowing/storybook/internal/domain/ratelimit"
)

// MockVerifier is a mock implementation of provider.Verifier
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) VerifyOrder(ctx context.Context, orderID string) (*provider.VerifyResult, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.VerifyResult), args.Error(1)
}

func (m *MockVerifier) GetProviderName() string {
	return model.ProviderPayPal
}

// MockCreditRepository is a mock implementation of CreditRepository
type MockCreditRepository struct {
	mock.Mock
}

func (m *MockCreditRepository) GetBalance(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockCreditRepository) ApplyPaymentCredit(ctx context.Context, row *model.PaymentTransaction, credits int, audit model.PaymentAuditLog) (*entity.CreditOutcome, error) {
	args := m.Called(ctx, row, credits, audit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.CreditOutcome), args.Error(1)
}

func (m *MockCreditRepository) RecoverUnappliedCredits(ctx context.Context, userID string) (*entity.RecoveryOutcome, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.RecoveryOutcome), args.Error(1)
}

func (m *MockCreditRepository) SpendCreditAndRecord(ctx context.Context, userID string, record *model.StoryGeneration) (*entity.SpendResult, error) {
	args := m.Called(ctx, userID, record)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.SpendResult), args.Error(1)
}

// MockPaymentTransactionRepository is a mock implementation of PaymentTransactionRepository
type MockPaymentTransactionRepository struct {
	mock.Mock
}

func (m *MockPaymentTransactionRepository) FindByOrderAndUser(ctx context.Context, orderID, userID string) (*model.PaymentTransaction, error) {
	args := m.Called(ctx, orderID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentTransaction), args.Error(1)
}

func (m *MockPaymentTransactionRepository) RecordAttempt(ctx context.Context, row *model.PaymentTransaction, audit *model.PaymentAuditLog) (*model.PaymentTransaction, error) {
	args := m.Called(ctx, row, audit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentTransaction), args.Error(1)
}

func (m *MockPaymentTransactionRepository) ListByUser(ctx context.Context, userID string, params entity.PaginationParams) ([]model.PaymentTransaction, int64, error) {
	args := m.Called(ctx, userID, params)
	return args.Get(0).([]model.PaymentTransaction), args.Get(1).(int64), args.Error(2)
}

// MockBalanceCache is a mock implementation of cache.BalanceCache
type MockBalanceCache struct {
	mock.Mock
}

func (m *MockBalanceCache) Get(ctx context.Context, userID string) (int, bool, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Bool(1), args.Error(2)
}

func (m *MockBalanceCache) Set(ctx context.Context, userID string, balance int) error {
	return m.Called(ctx, userID, balance).Error(0)
}

func (m *MockBalanceCache) Invalidate(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

// MockPublisher is a mock implementation of messaging.Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, channel string, message interface{}) error {
	return m.Called(ctx, channel, message).Error(0)
}

// MockLimiter is a mock implementation of ratelimit.Limiter
type MockLimiter struct {
	mock.Mock
}

func (m *MockLimiter) Check(ctx context.Context, key string) (ratelimit.Decision, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(ratelimit.Decision), args.Error(1)
}

// MockStoryWriter is a mock implementation of generator.StoryWriter
type MockStoryWriter struct {
	mock.Mock
}

func (m *MockStoryWriter) WriteStory(ctx context.Context, prompt generator.StoryPrompt) (*entity.GeneratedStory, error) {
	args := m.Called(ctx, prompt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.GeneratedStory), args.Error(1)
}

// MockIllustrator is a mock implementation of generator.Illustrator
type MockIllustrator struct {
	mock.Mock
}

func (m *MockIllustrator) GenerateImage(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func (m *MockIllustrator) FetchImage(ctx context.Context, url string) ([]byte, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// MockBlobStore is a mock implementation of generator.BlobStore
type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, key, data, contentType)
	return args.String(0), args.Error(1)
}

// recordingSink keeps audit entries in memory.
type recordingSink struct {
	mu      sync.Mutex
	entries []model.PaymentAuditLog
}

func (s *recordingSink) Record(_ context.Context, entry *model.PaymentAuditLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
}

func (s *recordingSink) statuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.NewStatus
	}
	return out
}
