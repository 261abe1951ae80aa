package subscription

import (
	"context"
	"sync"
)

// Store persists projections.
type Store interface {
	// Get returns ErrNotFound for an unknown id.
	Get(ctx context.Context, id string) (*Subscription, error)
	// FindByCustomer returns the most recently updated subscription of a
	// provider customer, or ErrNotFound.
	FindByCustomer(ctx context.Context, customerID string) (*Subscription, error)
	// Save inserts or replaces sub unless the stored copy has a newer
	// LastEventAt. It reports whether sub was written.
	Save(ctx context.Context, sub *Subscription) (bool, error)
}

// MemoryStore is a mutex-guarded Store.
type MemoryStore struct {
	mu   sync.RWMutex
	subs map[string]Subscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[string]Subscription)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sub, nil
}

func (s *MemoryStore) FindByCustomer(_ context.Context, customerID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *Subscription
	for _, sub := range s.subs {
		if customerID == "" || sub.CustomerID != customerID {
			continue
		}
		if found == nil || sub.UpdatedAt.After(found.UpdatedAt) {
			found = &sub
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (s *MemoryStore) Save(_ context.Context, sub *Subscription) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.subs[sub.ID]; ok && cur.LastEventAt.After(sub.LastEventAt) {
		return false, nil
	}
	s.subs[sub.ID] = *sub
	return true, nil
}
