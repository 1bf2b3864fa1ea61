package domain

// SignalStats summarizes the signal population.
type SignalStats struct {
	Total    int64
	Pending  int64
	Migrated int64
	Expired  int64

	Wins        int64   // migrated signals with positive realized PnL
	WinRate     float64 // Wins / Migrated as a percentage, 0 when nothing migrated
	AvgPnLPct   float64 // over migrated signals with a realized PnL
	BestPnLPct  float64
	WorstPnLPct float64
}
