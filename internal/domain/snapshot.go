package domain

// MarketSnapshot is an authoritative market-data view of a token at lookup
// time. A snapshot is only constructed when every required field was present
// upstream; partial snapshots do not exist. Optional extras are pointers.
type MarketSnapshot struct {
	TokenAddress string
	PriceUSD     float64
	MarketCapUSD float64
	Volume1hUSD  float64
	AgeMinutes   float64  // minutes since the pair was created
	LiquidityUSD *float64 // optional
	PairAddress  string
	Venue        string // dex identifier as reported upstream, e.g. "raydium"
	ChartURL     string
	FetchedAt    int64 // Unix timestamp in milliseconds
}

// EnrichedEvent pairs an event with optional market context. A nil Snapshot
// means the lookup failed or returned nothing authoritative; filters treat
// that as missing data, never as a pass.
type EnrichedEvent struct {
	Event        Event
	Snapshot     *MarketSnapshot
	TopHolderPct *float64 // share of supply held by the top accounts, 0..100, nil when not fetched
}
