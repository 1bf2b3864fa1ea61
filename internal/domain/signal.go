package domain

// SignalStatus represents the lifecycle state of a signal.
type SignalStatus string

const (
	SignalPending  SignalStatus = "pending"
	SignalMigrated SignalStatus = "migrated"
	SignalExpired  SignalStatus = "expired"
)

// String returns the string representation of SignalStatus.
func (s SignalStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a valid value.
func (s SignalStatus) IsValid() bool {
	return s == SignalPending || s == SignalMigrated || s == SignalExpired
}

// IsTerminal reports whether the status permits no further transition.
func (s SignalStatus) IsTerminal() bool {
	return s == SignalMigrated || s == SignalExpired
}

// PriceDenom is the denomination a price value is quoted in.
type PriceDenom string

const (
	DenomSOL PriceDenom = "sol"
	DenomUSD PriceDenom = "usd"
)

// String returns the string representation of PriceDenom.
func (d PriceDenom) String() string {
	return string(d)
}

// Signal is one recorded candidate opportunity.
// Corresponds to signals table in PostgreSQL.
type Signal struct {
	ID           string       // PRIMARY KEY, deterministic hash
	TokenAddress string       // token mint address
	TriggerTx    string       // transaction that produced the signal
	Status       SignalStatus // pending | migrated | expired

	EntryPrice    float64    // entry price, denominated by EntryDenom
	EntryDenom    PriceDenom // sol when derived from curve amounts, usd when taken from a snapshot
	EntryPriceUSD *float64   // authoritative USD price at entry (nullable)

	// Market snapshot echo at entry, for the query surface (all nullable).
	MarketCapUSD *float64
	Volume1hUSD  *float64
	AgeMinutes   *float64
	PairAddress  *string
	ChartURL     *string

	Outcome *SignalOutcome // set on close, nil while pending or when no exit price existed

	CreatedAt int64 // Unix timestamp in milliseconds
	UpdatedAt int64 // Unix timestamp in milliseconds
}

// SignalOutcome records how a closed signal resolved.
type SignalOutcome struct {
	ExitPrice      float64    // exit price, denominated by ExitDenom
	ExitDenom      PriceDenom // sol when derived from migration amounts, usd from a snapshot
	RealizedPnLPct *float64   // nil when no entry price in ExitDenom existed
	ClosedAt       int64      // Unix timestamp in milliseconds
}

// PnLPct computes percentage profit/loss between an entry and exit price.
// Both prices must share a denomination; callers enforce that.
func PnLPct(entry, exit float64) float64 {
	return (exit - entry) / entry * 100
}
