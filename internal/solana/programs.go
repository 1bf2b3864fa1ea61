package solana

// Known program IDs on Solana mainnet.
const (
	// PumpFunProgram is the pump.fun bonding curve program ID.
	PumpFunProgram = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

	// RaydiumAMMV4Program is the Raydium AMM v4 program ID.
	RaydiumAMMV4Program = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"

	// RaydiumCLMMProgram is the Raydium concentrated liquidity program ID.
	RaydiumCLMMProgram = "CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK"

	// PumpSwapProgram is the PumpSwap AMM program ID.
	PumpSwapProgram = "pSwpGyAJiLMTUidSTPXhNFyJz3aLH41mGqhW3s1hkLd"
)

// Well-known mints that are settlement or stable assets, never launch tokens.
const (
	WSOLMint = "So11111111111111111111111111111111111111112"
	USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDTMint = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

// PumpTokenSuffix is the vanity suffix pump.fun mints end with.
const PumpTokenSuffix = "pump"

// LamportsPerSOL converts lamport amounts to SOL.
const LamportsPerSOL = 1e9

// IsCommonMint reports whether the mint is a settlement or stable asset.
func IsCommonMint(mint string) bool {
	switch mint {
	case WSOLMint, USDCMint, USDTMint:
		return true
	}
	return false
}

// IsPoolProgram reports whether the program ID belongs to a known
// post-migration pool venue.
func IsPoolProgram(programID string) bool {
	switch programID {
	case RaydiumAMMV4Program, RaydiumCLMMProgram, PumpSwapProgram:
		return true
	}
	return false
}
