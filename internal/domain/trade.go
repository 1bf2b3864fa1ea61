package domain

// TradeRecord is one archived trade or migration observation.
// Corresponds to trade_history table in ClickHouse.
type TradeRecord struct {
	TokenAddress string    // token mint address
	TxSignature  string    // Solana transaction signature
	Slot         int64     // Solana slot number
	ObservedAt   int64     // Unix timestamp in milliseconds
	EventType    EventType // CURVE_PROGRESS | MIGRATION
	BaseAmount   float64   // tokens moved
	QuoteAmount  float64   // SOL moved
	UnitPrice    float64   // quote/base, 0 when underivable
	Venue        string    // destination venue for migrations, "" otherwise
}
