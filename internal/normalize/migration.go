package normalize

import (
	"fmt"

	"solana-launch-signals/internal/domain"
	"solana-launch-signals/internal/helius"
	"solana-launch-signals/internal/observability"
	"solana-launch-signals/internal/solana"
)

func (n *Normalizer) buildMigration(tx *helius.Transaction, meta domain.EventMeta) (domain.Event, error) {
	mint := resolveMint(tx)
	if mint == "" {
		observability.RecordNormalizeDrop(dropNoToken)
		return nil, fmt.Errorf("migration event carries no token address")
	}
	meta.Token = mint

	venue, pool := classifyVenue(tx)

	// Deposit amounts, when the record exposes them, give the pool listing
	// price without a gateway round trip.
	base := tokenAmountFor(tx, mint)
	quote := migrationQuoteAmount(tx)

	return &domain.Migration{
		EventMeta:        meta,
		DestinationVenue: venue,
		PoolAddress:      pool,
		BaseAmount:       base,
		QuoteAmount:      quote,
	}, nil
}

// touchesPoolProgram reports whether the record references a known
// post-migration pool program in its account keys or instructions.
func touchesPoolProgram(tx *helius.Transaction) bool {
	for _, key := range tx.AccountKeys {
		if solana.IsPoolProgram(string(key)) {
			return true
		}
	}
	for _, inst := range tx.Instructions {
		if solana.IsPoolProgram(inst.ProgramID) {
			return true
		}
	}
	return false
}

// classifyVenue resolves the destination venue and, when determinable, the
// pool account. Instructions take precedence over bare account keys because
// only they tie the program to an account list.
func classifyVenue(tx *helius.Transaction) (domain.Venue, string) {
	for _, inst := range tx.Instructions {
		venue := venueForProgram(inst.ProgramID)
		if venue == domain.VenueOther {
			continue
		}
		return venue, poolFromInstruction(inst)
	}

	for _, key := range tx.AccountKeys {
		if venue := venueForProgram(string(key)); venue != domain.VenueOther {
			return venue, ""
		}
	}

	return domain.VenueOther, ""
}

func venueForProgram(programID string) domain.Venue {
	switch programID {
	case solana.RaydiumAMMV4Program:
		return domain.VenueRaydiumAMM
	case solana.RaydiumCLMMProgram:
		return domain.VenueRaydiumCLMM
	case solana.PumpSwapProgram:
		return domain.VenuePumpSwap
	}
	return domain.VenueOther
}

// poolFromInstruction extracts the pool account for programs whose
// instruction layout is known. Raydium AMM initialize2 lists the AMM id at
// index 4; other venues stay empty rather than guessing.
func poolFromInstruction(inst helius.Instruction) string {
	if inst.ProgramID == solana.RaydiumAMMV4Program && len(inst.Accounts) > 4 {
		if pool := inst.Accounts[4]; solana.IsValidAddress(pool) {
			return pool
		}
	}
	return ""
}

// migrationQuoteAmount extracts the SOL deposited into the pool. Migrations
// move the curve's reserve in one dominant native transfer, so the largest
// one is taken.
func migrationQuoteAmount(tx *helius.Transaction) float64 {
	var largest int64
	for _, tr := range tx.NativeTransfers {
		if amount := abs64(tr.Amount); amount > largest {
			largest = amount
		}
	}
	return float64(largest) / solana.LamportsPerSOL
}
