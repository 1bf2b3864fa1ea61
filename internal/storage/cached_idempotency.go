package storage

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedIdempotencyStore fronts a durable IdempotencyStore with a bounded
// LRU of recently admitted signatures. Webhook redeliveries arrive close to
// the original, so most duplicates resolve without touching the database.
// The durable store stays the source of truth; a cache miss always falls
// through.
type CachedIdempotencyStore struct {
	inner IdempotencyStore
	cache *lru.Cache[string, int64]
}

// NewCachedIdempotencyStore wraps inner with a cache of the given capacity.
func NewCachedIdempotencyStore(inner IdempotencyStore, capacity int) (*CachedIdempotencyStore, error) {
	cache, err := lru.New[string, int64](capacity)
	if err != nil {
		return nil, fmt.Errorf("create idempotency cache: %w", err)
	}
	return &CachedIdempotencyStore{inner: inner, cache: cache}, nil
}

// Admit records the signature if it has not been seen before.
func (s *CachedIdempotencyStore) Admit(ctx context.Context, signature string, seenAt int64) (bool, error) {
	if signature == "" {
		return false, ErrInvalidInput
	}
	if s.cache.Contains(signature) {
		return false, nil
	}

	claimed, err := s.inner.Admit(ctx, signature, seenAt)
	if err != nil {
		return false, err
	}
	s.cache.Add(signature, seenAt)
	return claimed, nil
}

// Seen reports whether the signature has been admitted.
func (s *CachedIdempotencyStore) Seen(ctx context.Context, signature string) (bool, error) {
	if s.cache.Contains(signature) {
		return true, nil
	}

	seen, err := s.inner.Seen(ctx, signature)
	if err != nil {
		return false, err
	}
	if seen {
		s.cache.Add(signature, 0)
	}
	return seen, nil
}

// PruneBefore removes entries first seen before cutoff (ms). The cache is
// dropped wholesale so it cannot report entries the durable store no longer
// holds.
func (s *CachedIdempotencyStore) PruneBefore(ctx context.Context, cutoff int64) (int64, error) {
	removed, err := s.inner.PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.cache.Purge()
	return removed, nil
}

// Count returns the number of tracked signatures in the durable store.
func (s *CachedIdempotencyStore) Count(ctx context.Context) (int64, error) {
	return s.inner.Count(ctx)
}

// Verify interface compliance at compile time.
var _ IdempotencyStore = (*CachedIdempotencyStore)(nil)
