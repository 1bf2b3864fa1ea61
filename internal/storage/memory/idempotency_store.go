package memory

import (
	"context"
	"sync"

	"solana-launch-signals/internal/storage"
)

// IdempotencyStore is an in-memory implementation of storage.IdempotencyStore.
type IdempotencyStore struct {
	mu   sync.RWMutex
	seen map[string]int64 // signature -> first seen at (ms)
}

// NewIdempotencyStore creates a new in-memory idempotency store.
func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{
		seen: make(map[string]int64),
	}
}

// Admit records the signature if it has not been seen before. Returns true
// when this call claimed it.
func (s *IdempotencyStore) Admit(_ context.Context, signature string, seenAt int64) (bool, error) {
	if signature == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[signature]; exists {
		return false, nil
	}
	s.seen[signature] = seenAt
	return true, nil
}

// Seen reports whether the signature has been admitted.
func (s *IdempotencyStore) Seen(_ context.Context, signature string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.seen[signature]
	return exists, nil
}

// PruneBefore removes entries first seen before cutoff (ms).
func (s *IdempotencyStore) PruneBefore(_ context.Context, cutoff int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for sig, at := range s.seen {
		if at < cutoff {
			delete(s.seen, sig)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of tracked signatures.
func (s *IdempotencyStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.seen)), nil
}

// Verify interface compliance at compile time.
var _ storage.IdempotencyStore = (*IdempotencyStore)(nil)
