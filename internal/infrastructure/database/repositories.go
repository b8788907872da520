package database

import (
	"github.com/wekeepgrowing/storybook/internal/adapter/repository"
	domainRepo "github.com/wekeepgrowing/storybook/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Repositories holds all repository instances
type Repositories struct {
	Transactions domainRepo.PaymentTransactionRepository
	Audit        domainRepo.AuditRepository
	Credits      domainRepo.CreditRepository
	Stories      domainRepo.StoryRepository
	Webhooks     domainRepo.WebhookEventRepository
}

// NewRepositories creates new repository instances with database connection
func NewRepositories(db *gorm.DB, logger *zap.Logger) *Repositories {
	return &Repositories{
		Transactions: repository.NewPaymentTransactionRepository(db, logger),
		Audit:        repository.NewAuditRepository(db, logger),
		Credits:      repository.NewCreditRepository(db, logger),
		Stories:      repository.NewStoryRepository(db, logger),
		Webhooks:     repository.NewWebhookRepository(db, logger),
	}
}
