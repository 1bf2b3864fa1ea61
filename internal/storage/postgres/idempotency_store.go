package postgres

import (
	"context"
	"fmt"

	"solana-launch-signals/internal/storage"
)

// IdempotencyStore implements storage.IdempotencyStore using PostgreSQL.
type IdempotencyStore struct {
	pool *Pool
}

// NewIdempotencyStore creates a new IdempotencyStore.
func NewIdempotencyStore(pool *Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// Compile-time interface check.
var _ storage.IdempotencyStore = (*IdempotencyStore)(nil)

// Admit records the signature if it has not been seen before. The insert is
// the claim: exactly one concurrent caller observes rows affected = 1.
func (s *IdempotencyStore) Admit(ctx context.Context, signature string, seenAt int64) (bool, error) {
	if signature == "" {
		return false, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO processed_signatures (signature, seen_at)
		VALUES ($1, $2)
		ON CONFLICT (signature) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query, signature, seenAt)
	if err != nil {
		return false, fmt.Errorf("admit signature: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Seen reports whether the signature has been admitted.
func (s *IdempotencyStore) Seen(ctx context.Context, signature string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM processed_signatures WHERE signature = $1)`

	var seen bool
	if err := s.pool.QueryRow(ctx, query, signature).Scan(&seen); err != nil {
		return false, fmt.Errorf("check signature: %w", err)
	}
	return seen, nil
}

// PruneBefore removes entries first seen before cutoff (ms).
func (s *IdempotencyStore) PruneBefore(ctx context.Context, cutoff int64) (int64, error) {
	query := `DELETE FROM processed_signatures WHERE seen_at < $1`

	tag, err := s.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune signatures: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of tracked signatures.
func (s *IdempotencyStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM processed_signatures`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count signatures: %w", err)
	}
	return count, nil
}
