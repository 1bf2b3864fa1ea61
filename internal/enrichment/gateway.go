// Package enrichment resolves authoritative market data for token addresses.
// Sources either return a complete snapshot or report ErrUnavailable; they
// never fabricate or partially fill values.
package enrichment

import (
	"context"
	"errors"

	"solana-launch-signals/internal/domain"
)

// ErrUnavailable indicates the upstream source could not supply an
// authoritative snapshot: timeout, rate limit exhausted, no tradeable pair,
// or a pair missing required fields.
var ErrUnavailable = errors.New("market data unavailable")

// Gateway supplies market snapshots for token addresses.
type Gateway interface {
	// Lookup returns the best available snapshot for a token.
	// Returns ErrUnavailable when no authoritative snapshot exists.
	Lookup(ctx context.Context, tokenAddress string) (*domain.MarketSnapshot, error)
}

// HolderSource reports the combined share of supply held by the largest
// accounts of a mint, as a percentage in [0, 100].
type HolderSource interface {
	TopHolderShare(ctx context.Context, mint string) (float64, error)
}
