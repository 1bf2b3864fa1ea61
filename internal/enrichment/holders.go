package enrichment

import (
	"context"
	"fmt"
	"strconv"

	"solana-launch-signals/internal/solana"
)

// topHolderCount is how many of the largest accounts are summed for the
// concentration share.
const topHolderCount = 10

// RPCHolderSource computes holder concentration from Solana RPC. The share
// includes pool and curve accounts; thresholds should account for that.
type RPCHolderSource struct {
	rpc solana.RPCClient
}

var _ HolderSource = (*RPCHolderSource)(nil)

// NewRPCHolderSource creates a holder source backed by a Solana RPC client.
func NewRPCHolderSource(rpc solana.RPCClient) *RPCHolderSource {
	return &RPCHolderSource{rpc: rpc}
}

// TopHolderShare returns the percentage of total supply held by the largest
// accounts of the mint.
func (s *RPCHolderSource) TopHolderShare(ctx context.Context, mint string) (float64, error) {
	supply, err := s.rpc.GetTokenSupply(ctx, mint)
	if err != nil {
		return 0, fmt.Errorf("get token supply: %w", err)
	}
	if supply == nil {
		return 0, fmt.Errorf("no supply for %s: %w", mint, ErrUnavailable)
	}

	total, err := strconv.ParseFloat(supply.Amount, 64)
	if err != nil || total <= 0 {
		return 0, fmt.Errorf("unusable supply %q for %s: %w", supply.Amount, mint, ErrUnavailable)
	}

	accounts, err := s.rpc.GetTokenLargestAccounts(ctx, mint)
	if err != nil {
		return 0, fmt.Errorf("get largest accounts: %w", err)
	}
	if len(accounts) == 0 {
		return 0, fmt.Errorf("no holder accounts for %s: %w", mint, ErrUnavailable)
	}

	n := len(accounts)
	if n > topHolderCount {
		n = topHolderCount
	}

	var held float64
	for _, acct := range accounts[:n] {
		amount, err := strconv.ParseFloat(acct.Amount, 64)
		if err != nil {
			continue
		}
		held += amount
	}

	share := held / total * 100
	if share > 100 {
		share = 100
	}
	return share, nil
}
