package errors

import (
	"errors"
	"fmt"
)

var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrUnknownPackage         = errors.New("unknown package")
	ErrAmountMismatch         = errors.New("captured amount does not match package price")
	ErrAccountNotFound        = errors.New("account not found")
	ErrTransactionNotFound    = errors.New("payment transaction not found")
	ErrOrderClaimed           = errors.New("order already credited to another account")
)

// InsufficientCreditsError is returned when a debit finds no credits left.
type InsufficientCreditsError struct {
	UserID string
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits for user %s", e.UserID)
}

// NewInsufficientCreditsError creates a new InsufficientCreditsError
func NewInsufficientCreditsError(userID string) *InsufficientCreditsError {
	return &InsufficientCreditsError{UserID: userID}
}

// RetryableError marks a failure that may succeed if the whole attempt is repeated.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Retryable wraps err so IsRetryable reports true.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err, or anything it wraps, is a RetryableError.
func IsRetryable(err error) bool {
	var r *RetryableError
	return errors.As(err, &r)
}

// AmountMismatchError carries both sides of a failed price check.
type AmountMismatchError struct {
	Expected string
	Actual   string
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", ErrAmountMismatch, e.Expected, e.Actual)
}

func (e *AmountMismatchError) Unwrap() error {
	return ErrAmountMismatch
}
