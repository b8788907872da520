package database

import (
	"github.com/wekeepgrowing/storybook/internal/domain/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Migrate runs database migrations
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	logger.Info("Running database migrations...")

	err := db.AutoMigrate(
		&model.Account{},
		&model.PaymentTransaction{},
		&model.PaymentAuditLog{},
		&model.StoryGeneration{},
		&model.WebhookEvent{},
	)
	if err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return err
	}
	logger.Info("GORM auto-migrations completed successfully")

	if err := createCustomIndexes(db); err != nil {
		logger.Error("Failed to create custom indexes", zap.Error(err))
		return err
	}

	if db.Dialector.Name() == "postgres" {
		if err := createAuditGuard(db, logger); err != nil {
			logger.Error("Failed to create audit guard", zap.Error(err))
			return err
		}
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

// createCustomIndexes creates partial indexes GORM tags cannot express
func createCustomIndexes(db *gorm.DB) error {
	// Candidates of the recovery sweep
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_payment_transactions_recoverable ON payment_transactions (user_id) WHERE status IN ('COMPLETED', 'VERIFIED') AND verified_at IS NOT NULL`).Error; err != nil {
		return err
	}

	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_webhook_events_unprocessed ON webhook_events (created_at) WHERE status IN ('pending', 'failed')`).Error; err != nil {
		return err
	}

	return nil
}

// createAuditGuard rejects UPDATE and DELETE on the audit trail at the
// database level, including statements issued outside this service.
func createAuditGuard(db *gorm.DB, logger *zap.Logger) error {
	functionSQL := `
CREATE OR REPLACE FUNCTION reject_payment_audit_mutation() RETURNS TRIGGER AS $$
BEGIN
    RAISE EXCEPTION 'payment_audit_logs is append-only (% rejected)', TG_OP;
END;
$$ LANGUAGE plpgsql;`

	if err := db.Exec(functionSQL).Error; err != nil {
		return err
	}

	if err := db.Exec(`DROP TRIGGER IF EXISTS payment_audit_logs_append_only ON payment_audit_logs`).Error; err != nil {
		logger.Warn("Failed to drop existing audit trigger", zap.Error(err))
	}

	if err := db.Exec(`
CREATE TRIGGER payment_audit_logs_append_only
    BEFORE UPDATE OR DELETE ON payment_audit_logs
    FOR EACH ROW EXECUTE FUNCTION reject_payment_audit_mutation();`).Error; err != nil {
		return err
	}

	logger.Info("Created audit trail guard trigger")
	return nil
}
