package domain

// EventType tags the closed set of normalized pipeline events.
type EventType string

const (
	EventTokenCreated  EventType = "TOKEN_CREATED"
	EventCurveProgress EventType = "CURVE_PROGRESS"
	EventMigration     EventType = "MIGRATION"
)

// String returns the string representation of EventType.
func (t EventType) String() string {
	return string(t)
}

// IsValid checks if the event type is a valid value.
func (t EventType) IsValid() bool {
	return t == EventTokenCreated || t == EventCurveProgress || t == EventMigration
}

// Event is a normalized launch-platform event. The set of implementations is
// closed: TokenCreated, CurveProgress and Migration.
type Event interface {
	// Type returns the variant tag.
	Type() EventType

	// TransactionID returns the on-chain transaction signature,
	// unique per transaction.
	TransactionID() string

	// TokenAddress returns the mint the event concerns. The normalizer
	// discards records whose mint is a settlement or stable asset, so this
	// is never WSOL/USDC/USDT.
	TokenAddress() string

	// ObservedAt returns the event timestamp as Unix milliseconds.
	ObservedAt() int64

	// Slot returns the Solana slot number, a monotonic ordering hint.
	Slot() int64

	sealedEvent()
}

// EventMeta carries the fields shared by every event variant.
type EventMeta struct {
	TxSignature string // Solana transaction signature
	Token       string // token mint address
	Timestamp   int64  // Unix timestamp in milliseconds
	SlotNumber  int64  // Solana slot number
}

// TransactionID returns the on-chain transaction signature.
func (m EventMeta) TransactionID() string { return m.TxSignature }

// TokenAddress returns the token mint address.
func (m EventMeta) TokenAddress() string { return m.Token }

// ObservedAt returns the event timestamp in Unix milliseconds.
func (m EventMeta) ObservedAt() int64 { return m.Timestamp }

// Slot returns the Solana slot number.
func (m EventMeta) Slot() int64 { return m.SlotNumber }

func (m EventMeta) sealedEvent() {}

// TokenCreated marks a new token minted on the launch platform.
type TokenCreated struct {
	EventMeta
	CreatorAddress      string  // fee payer that created the token
	InitialLiquiditySOL float64 // SOL seeded into the curve at creation
}

// Type returns EventTokenCreated.
func (e *TokenCreated) Type() EventType { return EventTokenCreated }

// CurveProgress marks a trade against the token's bonding curve.
type CurveProgress struct {
	EventMeta
	BaseAmount             float64 // tokens moved through the curve in this trade
	QuoteAmount            float64 // SOL moved through the curve in this trade
	TokenAmountOutstanding float64 // tokens still held by the curve; 0 when the feed does not report it
}

// Type returns EventCurveProgress.
func (e *CurveProgress) Type() EventType { return EventCurveProgress }

// UnitPrice derives the trade price as quote per base unit (SOL per token).
// Returns false when either amount is missing; the price is never derived
// any other way.
func (e *CurveProgress) UnitPrice() (float64, bool) {
	if e.BaseAmount <= 0 || e.QuoteAmount <= 0 {
		return 0, false
	}
	return e.QuoteAmount / e.BaseAmount, true
}

// Migration marks the token's move from the bonding curve to a pool venue.
type Migration struct {
	EventMeta
	DestinationVenue Venue
	PoolAddress      string  // destination pool account; empty when it could not be determined
	BaseAmount       float64 // tokens deposited into the pool, 0 when unknown
	QuoteAmount      float64 // SOL deposited into the pool, 0 when unknown
}

// Type returns EventMigration.
func (e *Migration) Type() EventType { return EventMigration }

// UnitPrice derives the pool listing price from the deposit amounts.
// Returns false when the migration transaction did not expose them.
func (e *Migration) UnitPrice() (float64, bool) {
	if e.BaseAmount <= 0 || e.QuoteAmount <= 0 {
		return 0, false
	}
	return e.QuoteAmount / e.BaseAmount, true
}

// Venue identifies the destination exchange of a migration.
type Venue string

const (
	VenueRaydiumAMM  Venue = "RAYDIUM_AMM"
	VenueRaydiumCLMM Venue = "RAYDIUM_CLMM"
	VenuePumpSwap    Venue = "PUMP_SWAP"
	VenueOther       Venue = "OTHER"
)

// String returns the string representation of Venue.
func (v Venue) String() string {
	return string(v)
}

// IsValid checks if the venue is a valid value.
func (v Venue) IsValid() bool {
	switch v {
	case VenueRaydiumAMM, VenueRaydiumCLMM, VenuePumpSwap, VenueOther:
		return true
	}
	return false
}
