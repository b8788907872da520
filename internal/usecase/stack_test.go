package usecase_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/wekeepgrowing/storybook/internal/config"
	"github.com/wekeepgrowing/storybook/internal/domain/model"
	"github.com/wekeepgrowing/storybook/internal/domain/provider"
	"github.com/wekeepgrowing/storybook/internal/infrastructure/database"
	"github.com/wekeepgrowing/storybook/internal/usecase"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testCatalogConfig() config.CatalogConfig {
	return config.CatalogConfig{
		PayPal: []config.PackageConfig{
			{ID: 1, Name: "Starter", Price: "3.99", Credits: 3},
			{ID: 2, Name: "Popular", Price: "4.99", Credits: 7},
			{ID: 3, Name: "Family", Price: "8.99", Credits: 12},
			{ID: 4, Name: "Library", Price: "9.99", Credits: 16},
		},
		Polar: []config.PackageConfig{
			{ID: 1, Name: "Starter", Price: "3.99", Credits: 3},
			{ID: 2, Name: "Popular", Price: "4.99", Credits: 5},
			{ID: 3, Name: "Family", Price: "8.99", Credits: 8},
			{ID: 4, Name: "Library", Price: "9.99", Credits: 12},
		},
	}
}

func testSettings() usecase.PaymentSettings {
	return usecase.PaymentSettings{
		MaxAttempts:     3,
		InitialBackoff:  time.Millisecond,
		MaxBackoff:      10 * time.Millisecond,
		VerifyTimeout:   time.Second,
		AmountTolerance: decimal.RequireFromString("0.01"),
		Currency:        "USD",
	}
}

// stack wires the services over a private sqlite database.
type stack struct {
	db       *gorm.DB
	repos    *database.Repositories
	catalog  *usecase.CatalogService
	credits  *usecase.CreditService
	payments *usecase.PaymentService
	recovery *usecase.RecoveryService
	audit    usecase.AuditSink
}

func newStack(t *testing.T, verifier provider.Verifier) *stack {
	t.Helper()
	logger := zap.NewNop()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := database.Open(sqlite.Open(dsn), &config.DatabaseConfig{LogLevel: "silent"}, logger)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db, logger))

	repos := database.NewRepositories(db, logger)
	catalog, err := usecase.NewCatalogService(testCatalogConfig())
	require.NoError(t, err)

	notifier := usecase.NewBalanceNotifier(nil, nil, logger)
	credits := usecase.NewCreditService(repos.Credits, nil, notifier, logger)
	audit := usecase.NewAuditSink(repos.Audit, logger)

	return &stack{
		db:       db,
		repos:    repos,
		catalog:  catalog,
		credits:  credits,
		payments: usecase.NewPaymentService(verifier, catalog, repos.Transactions, credits, audit, testSettings(), logger),
		recovery: usecase.NewRecoveryService(repos.Credits, notifier, logger),
		audit:    audit,
	}
}

func (s *stack) seedBalance(t *testing.T, userID string, credits int) {
	t.Helper()
	require.NoError(t, s.db.Create(&model.Account{UserID: userID, Credits: credits}).Error)
}

func (s *stack) balance(t *testing.T, userID string) int {
	t.Helper()
	var account model.Account
	err := s.db.Where("user_id = ?", userID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0
	}
	require.NoError(t, err)
	return account.Credits
}

func (s *stack) transactions(t *testing.T, orderID string) []model.PaymentTransaction {
	t.Helper()
	var rows []model.PaymentTransaction
	require.NoError(t, s.db.Where("order_id = ?", orderID).Find(&rows).Error)
	return rows
}

func (s *stack) auditStatuses(t *testing.T, orderID string) []string {
	t.Helper()
	var statuses []string
	require.NoError(t, s.db.Model(&model.PaymentAuditLog{}).
		Where("order_id = ?", orderID).
		Order("id").
		Pluck("new_status", &statuses).Error)
	return statuses
}

func completedCapture(orderID, amount string) *provider.VerifyResult {
	return &provider.VerifyResult{
		OrderID:   orderID,
		CaptureID: "CAP1",
		Status:    "COMPLETED",
		Amount:    amount,
		Currency:  "USD",
		Raw:       map[string]interface{}{"id": orderID, "status": "COMPLETED"},
	}
}
