package ledger

import "time"

type storeConfig struct {
	historyCap int
	now        func() time.Time
}

func newStoreConfig(opts []StoreOption) storeConfig {
	cfg := storeConfig{
		historyCap: DefaultHistoryCap,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// StoreOption configures a Store backend.
type StoreOption func(*storeConfig)

// WithHistoryCap sets how many transactions each account retains. Values
// below 1 are ignored.
func WithHistoryCap(n int) StoreOption {
	return func(c *storeConfig) {
		if n > 0 {
			c.historyCap = n
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(c *storeConfig) {
		if now != nil {
			c.now = now
		}
	}
}
