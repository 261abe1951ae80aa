package quota

import (
	"context"
	"time"
)

// CounterStore persists usage counters. Implementations must make
// CheckAndIncrement atomic per (account, feature).
type CounterStore interface {
	// CheckAndIncrement resets the counter when now >= ResetAt (or it does
	// not exist) to zero with ResetAt = NextPeriodStart(now), then increments
	// it if limit is Unlimited or Used < limit. It returns the counter after
	// the call and whether the increment happened.
	CheckAndIncrement(ctx context.Context, accountID string, feature Feature, limit int64, now time.Time) (Counter, bool, error)
	// Get returns the stored counter; ok is false when none exists.
	Get(ctx context.Context, accountID string, feature Feature) (c Counter, ok bool, err error)
	// Reset zeroes every counter of the account and moves ResetAt to
	// NextPeriodStart(now). It returns the number of counters touched.
	Reset(ctx context.Context, accountID string, now time.Time) (int, error)
	// ResetAll zeroes every counter.
	ResetAll(ctx context.Context, now time.Time) (int, error)
}

// apply is the check-and-increment rule shared by the Go-side backends.
func apply(c Counter, exists bool, limit int64, now time.Time) (Counter, bool) {
	if !exists || !now.Before(c.ResetAt) {
		c = Counter{ResetAt: NextPeriodStart(now)}
	}
	if limit == Unlimited || c.Used < limit {
		c.Used++
		return c, true
	}
	return c, false
}
