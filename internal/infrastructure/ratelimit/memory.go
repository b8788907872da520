package ratelimit

import (
	"context"
	"sync"
	"time"

	domainRatelimit "github.com/wekeepgrowing/storybook/internal/domain/ratelimit"
	"golang.org/x/time/rate"
)

// sweepEvery bounds how often idle keys are dropped.
const sweepEvery = 256

type memoryEntry struct {
	hits    []time.Time
	spacing *rate.Limiter
	seen    time.Time
}

// MemoryLimiter is a per-process sliding window with an optional minimum
// interval between admitted requests of one key.
type MemoryLimiter struct {
	mu          sync.Mutex
	entries     map[string]*memoryEntry
	maxRequests int
	window      time.Duration
	minInterval time.Duration
	checks      int
	now         func() time.Time
}

// NewMemoryLimiter creates an in-process limiter
func NewMemoryLimiter(maxRequests int, window, minInterval time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		entries:     make(map[string]*memoryEntry),
		maxRequests: maxRequests,
		window:      window,
		minInterval: minInterval,
		now:         time.Now,
	}
}

var _ domainRatelimit.Limiter = (*MemoryLimiter)(nil)

func (l *MemoryLimiter) Check(_ context.Context, key string) (domainRatelimit.Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.checks++
	if l.checks%sweepEvery == 0 {
		l.sweep(now)
	}

	entry, ok := l.entries[key]
	if !ok {
		entry = &memoryEntry{}
		if l.minInterval > 0 {
			entry.spacing = rate.NewLimiter(rate.Every(l.minInterval), 1)
		}
		l.entries[key] = entry
	}
	entry.seen = now
	entry.hits = pruneBefore(entry.hits, now.Add(-l.window))

	if len(entry.hits) >= l.maxRequests {
		return domainRatelimit.Decision{
			RetryAfter: entry.hits[0].Add(l.window).Sub(now),
		}, nil
	}

	if entry.spacing != nil {
		reservation := entry.spacing.ReserveN(now, 1)
		if delay := reservation.DelayFrom(now); delay > 0 {
			reservation.CancelAt(now)
			return domainRatelimit.Decision{RetryAfter: delay}, nil
		}
	}

	entry.hits = append(entry.hits, now)
	return domainRatelimit.Decision{Allowed: true}, nil
}

// sweep drops keys that have been idle for longer than the window and the
// minimum interval.
func (l *MemoryLimiter) sweep(now time.Time) {
	idle := l.window
	if l.minInterval > idle {
		idle = l.minInterval
	}
	for key, entry := range l.entries {
		if now.Sub(entry.seen) > idle {
			delete(l.entries, key)
		}
	}
}

func pruneBefore(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}
