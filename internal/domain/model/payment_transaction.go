package model

import (
	"database/sql/driver"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the state of a PaymentTransaction.
type TransactionStatus string

const (
	// TransactionStatusCompleted is the only terminal success state. A row in
	// this state has had its credits applied.
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	// TransactionStatusVerified means the provider confirmed payment but the
	// credits have not been applied yet.
	TransactionStatusVerified       TransactionStatus = "VERIFIED"
	TransactionStatusFailed         TransactionStatus = "FAILED"
	TransactionStatusAmountMismatch TransactionStatus = "AMOUNT_MISMATCH"
)

// Audit-only statuses.
const (
	AuditStatusCreditsRecovered = "CREDITS_RECOVERED"
	AuditStatusAttemptFailed    = "ATTEMPT_FAILED"
	AuditStatusRejected         = "REJECTED"
)

// Keys of PaymentTransaction.RawPayload that are read back by the recovery
// sweep. Everything else in the payload is forensic only.
const (
	PayloadKeyCredits   = "credits"
	PayloadKeyPackageID = "package_id"
)

// Scan implements sql.Scanner interface
func (s *TransactionStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = TransactionStatus(v)
	case []byte:
		*s = TransactionStatus(v)
	}
	return nil
}

// Value implements driver.Valuer interface
func (s TransactionStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// IsTerminalSuccess reports whether credits were applied for this status.
func (s TransactionStatus) IsTerminalSuccess() bool {
	return s == TransactionStatusCompleted
}

// Provider tags stored on transactions and used as audit actors.
const (
	ProviderPayPal = "paypal"
	ProviderPolar  = "polar"
)

// PaymentTransaction is one external payment keyed by (order_id, user_id).
type PaymentTransaction struct {
	ID         int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID    string            `gorm:"size:128;not null;uniqueIndex:idx_payment_transactions_order_user,priority:1" json:"order_id"`
	UserID     string            `gorm:"size:128;not null;uniqueIndex:idx_payment_transactions_order_user,priority:2;index:idx_payment_transactions_user_status,priority:1" json:"user_id"`
	Provider   string            `gorm:"size:32;not null" json:"provider"`
	PackageID  int               `gorm:"not null;default:0" json:"package_id"`
	CaptureID  *string           `gorm:"size:128" json:"capture_id,omitempty"`
	Amount     decimal.Decimal   `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency   string            `gorm:"size:3;not null" json:"currency"`
	Status     TransactionStatus `gorm:"size:32;not null;index:idx_payment_transactions_user_status,priority:2" json:"status"`
	RawPayload JSONB             `gorm:"type:jsonb" json:"raw_payload,omitempty"`
	VerifiedAt *time.Time        `json:"verified_at,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}

// IntendedCredits returns the credit count decided when the payment was
// processed. The recovery sweep relies on this payload key.
func (t *PaymentTransaction) IntendedCredits() (int, bool) {
	if t.RawPayload == nil {
		return 0, false
	}
	credits, ok := t.RawPayload.Int(PayloadKeyCredits)
	if !ok || credits <= 0 {
		return 0, false
	}
	return credits, true
}
