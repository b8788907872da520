package dto

import (
	"time"

	"github.com/wekeepgrowing/storybook/internal/domain/entity"
)

// PaymentTransactionDTO is a ledger row as shown to its owner. The raw
// provider payload is never exposed.
type PaymentTransactionDTO struct {
	ID         int64      `json:"id"`
	OrderID    string     `json:"order_id"`
	Provider   string     `json:"provider"`
	PackageID  int        `json:"package_id,omitempty"`
	Amount     string     `json:"amount"`
	Currency   string     `json:"currency"`
	Status     string     `json:"status"`
	Credits    int        `json:"credits,omitempty"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// TransactionListResponse represents the paginated transaction list response
type TransactionListResponse struct {
	Transactions []PaymentTransactionDTO `json:"transactions"`
	Pagination   entity.PaginationMeta   `json:"pagination"`
}
