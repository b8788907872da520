package errors

import (
	"fmt"
	"time"
)

// RateLimitedError is returned when the admission limiter denies a request.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many requests, retry after %s", e.RetryAfter.Round(time.Second))
}
