// Package normalize converts raw webhook records into typed domain events.
package normalize

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"solana-launch-signals/internal/domain"
	"solana-launch-signals/internal/helius"
	"solana-launch-signals/internal/observability"
	"solana-launch-signals/internal/solana"
)

// Drop reasons reported by the normalizer. They show up as metric labels and
// in diagnostics; keep the set small.
const (
	dropNoSignature = "no_signature"
	dropWrongSource = "wrong_source"
	dropUnknownType = "unknown_type"
	dropNoToken     = "no_token"
	dropBadAmounts  = "bad_amounts"
)

// ErrNotRelevant marks well-formed records that are not pipeline events.
// Callers skip these without a diagnostic; anything else is worth a log line.
var ErrNotRelevant = errors.New("not relevant")

// Normalizer converts Helius transaction records into domain events. It holds
// no state and is safe for concurrent use; drops are reported through metrics
// and the returned error, the caller decides what deserves a log line.
type Normalizer struct{}

// New creates a new Normalizer.
func New() *Normalizer {
	return &Normalizer{}
}

// NormalizeTransaction converts one decoded record into a domain event.
// Records that are well formed but not pipeline events return an error
// wrapping ErrNotRelevant.
func (n *Normalizer) NormalizeTransaction(tx *helius.Transaction) (domain.Event, error) {
	if tx.Signature == "" {
		observability.RecordNormalizeDrop(dropNoSignature)
		return nil, fmt.Errorf("%w: record without signature", ErrNotRelevant)
	}

	if tx.Source != sourcePumpFun {
		observability.RecordNormalizeDrop(dropWrongSource)
		return nil, fmt.Errorf("%w: source=%s", ErrNotRelevant, tx.Source)
	}

	eventType, ok := detectEventType(tx)
	if !ok {
		observability.RecordNormalizeDrop(dropUnknownType)
		return nil, fmt.Errorf("unrecognized discriminator type=%q", tx.Type)
	}

	meta := domain.EventMeta{
		TxSignature: tx.Signature,
		SlotNumber:  tx.Slot,
		Timestamp:   tx.Timestamp * 1000,
	}

	switch eventType {
	case domain.EventTokenCreated:
		return n.buildTokenCreated(tx, meta)
	case domain.EventCurveProgress:
		return n.buildCurveProgress(tx, meta)
	case domain.EventMigration:
		return n.buildMigration(tx, meta)
	}

	return nil, fmt.Errorf("%w: unhandled event type %s", ErrNotRelevant, eventType)
}

const sourcePumpFun = "PUMP_FUN"

// detectEventType resolves the variant tag from the type discriminator.
// Migrations are additionally recognized structurally: a launch-platform
// record that touches a known pool program is a migration regardless of how
// the upstream labeled it.
func detectEventType(tx *helius.Transaction) (domain.EventType, bool) {
	switch strings.ToUpper(tx.Type) {
	case "CREATE":
		return domain.EventTokenCreated, true
	case "SWAP":
		return domain.EventCurveProgress, true
	case "MIGRATE", "MIGRATION":
		return domain.EventMigration, true
	}

	if touchesPoolProgram(tx) {
		return domain.EventMigration, true
	}

	return "", false
}

func (n *Normalizer) buildTokenCreated(tx *helius.Transaction, meta domain.EventMeta) (domain.Event, error) {
	mint := resolveMint(tx)
	if mint == "" {
		observability.RecordNormalizeDrop(dropNoToken)
		return nil, fmt.Errorf("create event carries no token address")
	}
	meta.Token = mint

	// SOL seeded into the curve at creation.
	var initial float64
	for _, tr := range tx.NativeTransfers {
		if tr.Amount > 0 {
			initial += float64(tr.Amount) / solana.LamportsPerSOL
		}
	}

	return &domain.TokenCreated{
		EventMeta:           meta,
		CreatorAddress:      tx.FeePayer,
		InitialLiquiditySOL: initial,
	}, nil
}

func (n *Normalizer) buildCurveProgress(tx *helius.Transaction, meta domain.EventMeta) (domain.Event, error) {
	mint := resolveMint(tx)
	if mint == "" {
		observability.RecordNormalizeDrop(dropNoToken)
		return nil, fmt.Errorf("swap event carries no token address")
	}
	meta.Token = mint

	base := tokenAmountFor(tx, mint)
	quote := curveQuoteAmount(tx, mint)
	if base <= 0 || quote <= 0 {
		observability.RecordNormalizeDrop(dropBadAmounts)
		return nil, fmt.Errorf("swap for %s has unusable amounts (base=%v quote=%v)", mint, base, quote)
	}

	return &domain.CurveProgress{
		EventMeta:   meta,
		BaseAmount:  base,
		QuoteAmount: quote,
	}, nil
}

// resolveMint picks the launch token out of a record: the platform-suffixed
// mint when one is present, otherwise the first well-formed mint that is not
// a settlement or stable asset. Transfer lists are consulted before account
// balance deltas.
func resolveMint(tx *helius.Transaction) string {
	for _, tr := range tx.TokenTransfers {
		if strings.HasSuffix(tr.Mint, solana.PumpTokenSuffix) && solana.IsValidAddress(tr.Mint) {
			return tr.Mint
		}
	}
	for _, acc := range tx.AccountData {
		for _, tbc := range acc.TokenBalanceChanges {
			if strings.HasSuffix(tbc.Mint, solana.PumpTokenSuffix) && solana.IsValidAddress(tbc.Mint) {
				return tbc.Mint
			}
		}
	}

	for _, tr := range tx.TokenTransfers {
		if tr.Mint != "" && !solana.IsCommonMint(tr.Mint) && solana.IsValidAddress(tr.Mint) {
			return tr.Mint
		}
	}
	for _, acc := range tx.AccountData {
		for _, tbc := range acc.TokenBalanceChanges {
			if tbc.Mint != "" && !solana.IsCommonMint(tbc.Mint) && solana.IsValidAddress(tbc.Mint) {
				return tbc.Mint
			}
		}
	}

	return ""
}

// tokenAmountFor extracts the traded token amount for the mint, preferring
// the transfer list and falling back to raw balance deltas.
func tokenAmountFor(tx *helius.Transaction, mint string) float64 {
	for _, tr := range tx.TokenTransfers {
		if tr.Mint == mint && tr.TokenAmount != 0 {
			return math.Abs(tr.TokenAmount)
		}
	}
	for _, acc := range tx.AccountData {
		for _, tbc := range acc.TokenBalanceChanges {
			if tbc.Mint != mint {
				continue
			}
			if amount, ok := tbc.RawTokenAmount.Float(); ok && amount > 0 {
				return amount
			}
		}
	}
	return 0
}

// curveQuoteAmount extracts the SOL side of a curve trade. The bonding curve
// account's own balance delta is authoritative when the record includes it;
// the derivation mirrors the on-chain PDA scheme so no lookup is needed.
// Records without account deltas fall back to the largest native transfer.
func curveQuoteAmount(tx *helius.Transaction, mint string) float64 {
	if curve := solana.DeriveBondingCurve(mint); curve != "" {
		for _, acc := range tx.AccountData {
			if acc.Account == curve && acc.NativeBalanceChange != 0 {
				return math.Abs(float64(acc.NativeBalanceChange)) / solana.LamportsPerSOL
			}
		}
	}

	var largest int64
	for _, tr := range tx.NativeTransfers {
		if amount := abs64(tr.Amount); amount > largest {
			largest = amount
		}
	}
	if largest == 0 {
		for _, acc := range tx.AccountData {
			if amount := abs64(acc.NativeBalanceChange); amount > largest {
				largest = amount
			}
		}
	}
	return float64(largest) / solana.LamportsPerSOL
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
