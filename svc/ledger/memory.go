package ledger

import (
	"context"
	"sync"
)

// MemoryStore keeps accounts in a map. fn runs outside the lock and the
// commit is a version compare-and-swap, so contention surfaces as ErrConflict
// exactly as it does with the database backends.
type MemoryStore struct {
	cfg      storeConfig
	mu       sync.RWMutex
	accounts map[string]*Account
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	return &MemoryStore{
		cfg:      newStoreConfig(opts),
		accounts: make(map[string]*Account),
	}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Account, error) {
	if id == "" {
		return nil, ErrInvalidAccountID
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (s *MemoryStore) AtomicUpdate(ctx context.Context, id string, fn UpdateFunc) (*Account, *Transaction, error) {
	if id == "" {
		return nil, nil, ErrInvalidAccountID
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	s.mu.RLock()
	current := s.accounts[id].Clone()
	s.mu.RUnlock()

	next, tx, err := fn(current.Clone())
	if err != nil {
		return nil, nil, err
	}
	if next == nil {
		return current, nil, nil
	}

	committed, appended, err := prepare(id, current, next, tx, s.cfg.historyCap, s.cfg.now())
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.accounts[id]
	switch {
	case current == nil && exists:
		return nil, nil, ErrConflict
	case current != nil && (!exists || stored.Version != current.Version):
		return nil, nil, ErrConflict
	}

	s.accounts[id] = committed
	return committed.Clone(), appended, nil
}
