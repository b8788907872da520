package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter is a non-authoritative admission control store. Payment and credit
// correctness never depend on it.
type Limiter interface {
	Check(ctx context.Context, key string) (Decision, error)
}
