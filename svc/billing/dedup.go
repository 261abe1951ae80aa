package billing

import (
	"context"
	"sync"
	"time"
)

// DedupStore records which provider events have been seen. Markers are keyed
// by provider and event id together, since ids are only unique per provider.
type DedupStore interface {
	// Claim marks the event as in progress for lease. It returns false when it
	// is already completed and retained, or held by a live claim.
	Claim(ctx context.Context, provider, id string, lease time.Duration) (bool, error)
	// Complete records the outcome of a claimed event and keeps the marker for ttl.
	Complete(ctx context.Context, provider, id string, outcome Outcome, ttl time.Duration) error
}

func dedupKey(provider, id string) string {
	return provider + ":" + id
}

type dedupEntry struct {
	outcome   Outcome
	completed bool
	expiresAt time.Time
}

// MemoryDedup is a process-local DedupStore.
type MemoryDedup struct {
	mu      sync.Mutex
	entries map[string]dedupEntry
	now     func() time.Time
}

func NewMemoryDedup() *MemoryDedup {
	return &MemoryDedup{entries: make(map[string]dedupEntry), now: time.Now}
}

// WithClock replaces time.Now. It returns d for chaining in tests.
func (d *MemoryDedup) WithClock(now func() time.Time) *MemoryDedup {
	d.now = now
	return d
}

func (d *MemoryDedup) Claim(_ context.Context, provider, id string, lease time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := dedupKey(provider, id)
	now := d.now()
	if e, ok := d.entries[key]; ok && now.Before(e.expiresAt) {
		return false, nil
	}
	d.entries[key] = dedupEntry{expiresAt: now.Add(lease)}
	return true, nil
}

func (d *MemoryDedup) Complete(_ context.Context, provider, id string, outcome Outcome, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.entries[dedupKey(provider, id)] = dedupEntry{outcome: outcome, completed: true, expiresAt: d.now().Add(ttl)}
	return nil
}

// Outcome returns the recorded outcome of a completed event.
func (d *MemoryDedup) Outcome(provider, id string) (Outcome, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[dedupKey(provider, id)]
	if !ok || !e.completed {
		return "", false
	}
	return e.outcome, true
}
