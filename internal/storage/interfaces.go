package storage

import (
	"context"

	"solana-launch-signals/internal/domain"
)

// IdempotencyStore tracks transaction signatures that have already been
// admitted, so redelivered webhook batches do not produce duplicate events.
type IdempotencyStore interface {
	// Admit records the signature if it has not been seen before. Returns
	// true when this call claimed it, false when it was already present.
	// The claim must be atomic under concurrent delivery.
	Admit(ctx context.Context, signature string, seenAt int64) (bool, error)

	// Seen reports whether the signature has been admitted.
	Seen(ctx context.Context, signature string) (bool, error)

	// PruneBefore removes entries first seen before cutoff (ms). Returns
	// the number of entries removed.
	PruneBefore(ctx context.Context, cutoff int64) (int64, error)

	// Count returns the number of tracked signatures.
	Count(ctx context.Context) (int64, error)
}

// SignalStore provides access to signals storage.
type SignalStore interface {
	// Insert adds a new signal. Returns ErrDuplicateKey if signal_id exists.
	Insert(ctx context.Context, s *domain.Signal) error

	// InsertIfAbsent adds the signal unless the token already has a pending
	// signal, or any signal created at or after dedupSince (ms). Returns
	// true when the signal was inserted. The check and insert are atomic.
	InsertIfAbsent(ctx context.Context, s *domain.Signal, dedupSince int64) (bool, error)

	// GetByID retrieves a signal by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, signalID string) (*domain.Signal, error)

	// GetOpenByToken retrieves the pending signal for a token.
	// Returns ErrNotFound if the token has no pending signal.
	GetOpenByToken(ctx context.Context, tokenAddress string) (*domain.Signal, error)

	// GetLatestByToken retrieves the most recently created signal for a
	// token regardless of status. Returns ErrNotFound if the token has none.
	GetLatestByToken(ctx context.Context, tokenAddress string) (*domain.Signal, error)

	// Transition moves a signal from one status to another, writing outcome
	// when non-nil. The move happens only if the stored status still equals
	// from; it returns false when another writer got there first.
	Transition(ctx context.Context, signalID string, from, to domain.SignalStatus, outcome *domain.SignalOutcome) (bool, error)

	// ListRecent retrieves up to limit signals, newest first.
	ListRecent(ctx context.Context, limit int) ([]*domain.Signal, error)

	// ListPendingOlderThan retrieves pending signals created before cutoff (ms).
	ListPendingOlderThan(ctx context.Context, cutoff int64) ([]*domain.Signal, error)

	// ListSignaledTokens retrieves the distinct token addresses of signals
	// created at or after since (ms).
	ListSignaledTokens(ctx context.Context, since int64) ([]string, error)

	// Stats aggregates counts, win rate and PnL over all signals.
	Stats(ctx context.Context) (*domain.SignalStats, error)
}

// TradeStore provides access to the trade_history archive.
type TradeStore interface {
	// InsertBatch appends a batch of trade records.
	InsertBatch(ctx context.Context, trades []*domain.TradeRecord) error

	// GetByToken retrieves up to limit records for a token, newest first.
	GetByToken(ctx context.Context, tokenAddress string, limit int) ([]*domain.TradeRecord, error)

	// Count returns the number of archived records.
	Count(ctx context.Context) (uint64, error)
}
