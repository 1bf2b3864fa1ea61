package solana

import "context"

// RPCClient defines the Solana RPC HTTP interface used for holder enrichment.
type RPCClient interface {
	// GetTokenLargestAccounts retrieves the largest token accounts for a mint
	// (the RPC node returns at most 20).
	GetTokenLargestAccounts(ctx context.Context, mint string) ([]TokenAccountBalance, error)

	// GetTokenSupply retrieves the total supply of a mint.
	GetTokenSupply(ctx context.Context, mint string) (*TokenAmount, error)
}
