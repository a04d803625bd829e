package cache

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/storefront/backend/internal/domain/shared"
)

// InMemoryIdempotencyStore keeps accepted push keys in a map. Suitable for
// single-instance deployments and tests; keys do not survive a restart, so
// the first drain after one may re-push — the key header makes that safe.
type InMemoryIdempotencyStore struct {
	mu        stdsync.RWMutex
	expiries  map[string]time.Time
	clock     shared.Clock
	stopChan  chan struct{}
	wg        stdsync.WaitGroup
	closeOnce stdsync.Once
}

// NewInMemoryIdempotencyStore creates the store and starts its expiry sweep
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	store := &InMemoryIdempotencyStore{
		expiries: make(map[string]time.Time),
		clock:    shared.SystemClock,
		stopChan: make(chan struct{}),
	}
	store.wg.Add(1)
	go store.sweepLoop()
	return store
}

// WithClock overrides the wall clock, for tests
func (s *InMemoryIdempotencyStore) WithClock(clock shared.Clock) *InMemoryIdempotencyStore {
	s.clock = clock
	return s
}

// MarkProcessed records an accepted key with a TTL. Returns false when the
// key is already present and unexpired.
func (s *InMemoryIdempotencyStore) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if expiry, ok := s.expiries[key]; ok && s.clock().Before(expiry) {
		return false, nil
	}
	s.expiries[key] = s.clock().Add(ttl)
	return true, nil
}

// IsProcessed checks whether a key was already accepted
func (s *InMemoryIdempotencyStore) IsProcessed(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	expiry, ok := s.expiries[key]
	return ok && s.clock().Before(expiry), nil
}

// Close stops the sweep goroutine. Safe to call multiple times.
func (s *InMemoryIdempotencyStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *InMemoryIdempotencyStore) sweepLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *InMemoryIdempotencyStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	for key, expiry := range s.expiries {
		if now.After(expiry) {
			delete(s.expiries, key)
		}
	}
}

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
