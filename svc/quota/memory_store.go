package quota

import (
	"context"
	"sync"
	"time"
)

type counterKey struct {
	account string
	feature Feature
}

// MemoryStore keeps counters in a map guarded by a mutex.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[counterKey]Counter
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[counterKey]Counter)}
}

func (s *MemoryStore) CheckAndIncrement(_ context.Context, accountID string, feature Feature, limit int64, now time.Time) (Counter, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := counterKey{accountID, feature}
	c, exists := s.counters[key]
	c, allowed := apply(c, exists, limit, now)
	s.counters[key] = c
	return c, allowed, nil
}

func (s *MemoryStore) Get(_ context.Context, accountID string, feature Feature) (Counter, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[counterKey{accountID, feature}]
	return c, ok, nil
}

func (s *MemoryStore) Reset(_ context.Context, accountID string, now time.Time) (int, error) {
	return s.reset(func(k counterKey) bool { return k.account == accountID }, now), nil
}

func (s *MemoryStore) ResetAll(_ context.Context, now time.Time) (int, error) {
	return s.reset(func(counterKey) bool { return true }, now), nil
}

func (s *MemoryStore) reset(match func(counterKey) bool, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := NextPeriodStart(now)
	n := 0
	for k := range s.counters {
		if match(k) {
			s.counters[k] = Counter{ResetAt: next}
			n++
		}
	}
	return n
}
