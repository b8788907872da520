package entity

import "github.com/wekeepgrowing/storybook/internal/domain/model"

// PaymentResult is returned to the UI by every payment entrypoint.
type PaymentResult struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	NewBalance       *int   `json:"newBalance,omitempty"`
	TransactionID    *int64 `json:"transactionId,omitempty"`
	CanRetry         bool   `json:"canRetry"`
	AlreadyProcessed bool   `json:"alreadyProcessed,omitempty"`
	RequestID        string `json:"requestId,omitempty"`

	// Filled by the recovery sweep.
	RecoveredCredits      int `json:"recoveredCredits,omitempty"`
	RecoveredTransactions int `json:"recoveredTransactions,omitempty"`
}

// CreditApplication describes a verified payment ready to be credited.
type CreditApplication struct {
	UserID    string
	OrderID   string
	Provider  string
	Package   Package
	Amount    VerifiedAmount
	CaptureID string
	// ProviderStatus is the provider's own completion status, kept in the payload.
	ProviderStatus string
	ChangedBy      string
	RequestID      string
	Attempt        int
	Raw            map[string]interface{}
}

// VerifiedAmount is what the provider reports as captured.
type VerifiedAmount struct {
	Value    string
	Currency string
}

// CreditOutcome is the result of the shared crediting primitive.
type CreditOutcome struct {
	Transaction      *model.PaymentTransaction
	NewBalance       int
	CreditsApplied   int
	AlreadyProcessed bool
}

// SpendResult is returned by the credit debit.
type SpendResult struct {
	RecordID         string `json:"recordId"`
	CreditsRemaining int    `json:"creditsRemaining"`
}

// RecoveryOutcome summarises one recovery sweep.
type RecoveryOutcome struct {
	RecoveredTransactionIDs []int64
	CreditsApplied          int
	NewBalance              int
	Skipped                 []int64
}
