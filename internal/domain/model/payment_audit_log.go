package model

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrAuditLogImmutable is returned when code attempts to change an audit row.
var ErrAuditLogImmutable = errors.New("payment audit log is append-only")

// Audit actors.
const (
	ChangedBySystem   = "system"
	ChangedByPayPal   = "paypal"
	ChangedByPolar    = "polar_webhook"
	ChangedByRecovery = "recovery_system"
)

// PaymentAuditLog records one status transition. TransactionID is nil for
// failures that happened before any ledger row existed.
type PaymentAuditLog struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionID  *int64    `gorm:"index:idx_payment_audit_logs_tx_status,priority:1" json:"transaction_id,omitempty"`
	OrderID        string    `gorm:"size:128;index" json:"order_id,omitempty"`
	UserID         string    `gorm:"size:128;index" json:"user_id,omitempty"`
	PreviousStatus *string   `gorm:"size:32" json:"previous_status,omitempty"`
	NewStatus      string    `gorm:"size:32;not null;index:idx_payment_audit_logs_tx_status,priority:2" json:"new_status"`
	ChangedBy      string    `gorm:"size:64;not null" json:"changed_by"`
	Reason         string    `gorm:"type:text" json:"reason"`
	RequestID      string    `gorm:"size:32" json:"request_id,omitempty"`
	Attempt        int       `gorm:"not null;default:0" json:"attempt"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for GORM
func (PaymentAuditLog) TableName() string {
	return "payment_audit_logs"
}

// BeforeUpdate rejects in-place modification.
func (PaymentAuditLog) BeforeUpdate(*gorm.DB) error {
	return ErrAuditLogImmutable
}

// BeforeDelete rejects deletion.
func (PaymentAuditLog) BeforeDelete(*gorm.DB) error {
	return ErrAuditLogImmutable
}

// AppliedMarkers are the audit statuses proving that a transaction's credits
// reached the balance.
var AppliedMarkers = []string{string(TransactionStatusCompleted), AuditStatusCreditsRecovered}
