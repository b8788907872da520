package repository

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wekeepgrowing/storybook/internal/domain/model"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB opens a private in-memory sqlite database with the service schema.
// One connection keeps every goroutine on the same database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&model.Account{},
		&model.PaymentTransaction{},
		&model.PaymentAuditLog{},
		&model.StoryGeneration{},
		&model.WebhookEvent{},
	))
	return db
}

func seedBalance(t *testing.T, db *gorm.DB, userID string, credits int) {
	t.Helper()
	require.NoError(t, db.Create(&model.Account{UserID: userID, Credits: credits}).Error)
}

func countAudit(t *testing.T, db *gorm.DB, status string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&model.PaymentAuditLog{}).Where("new_status = ?", status).Count(&n).Error)
	return n
}
