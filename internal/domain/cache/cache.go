package cache

import "context"

// BalanceCache keeps a short-lived copy of account balances. The database is
// the source of truth; callers invalidate after every mutation.
type BalanceCache interface {
	// Get reports ok=false on a miss.
	Get(ctx context.Context, userID string) (balance int, ok bool, err error)
	Set(ctx context.Context, userID string, balance int) error
	Invalidate(ctx context.Context, userID string) error
}

// Nop is used when no cache is configured.
type Nop struct{}

func (Nop) Get(context.Context, string) (int, bool, error) { return 0, false, nil }
func (Nop) Set(context.Context, string, int) error         { return nil }
func (Nop) Invalidate(context.Context, string) error       { return nil }
