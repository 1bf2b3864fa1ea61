package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-launch-signals/internal/domain"
	"solana-launch-signals/internal/storage"
)

// SignalStore implements storage.SignalStore using PostgreSQL.
type SignalStore struct {
	pool *Pool
}

// NewSignalStore creates a new SignalStore.
func NewSignalStore(pool *Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SignalStore = (*SignalStore)(nil)

// signalColumns is the scan order shared by every SELECT in this store.
const signalColumns = `
	signal_id, token_address, trigger_tx, status,
	entry_price, entry_denom, entry_price_usd,
	market_cap_usd, volume_1h_usd, age_minutes, pair_address, chart_url,
	exit_price, exit_denom, realized_pnl_pct, closed_at,
	created_at, updated_at
`

// Insert adds a new signal. Returns ErrDuplicateKey if signal_id exists or
// the token already has a pending signal.
func (s *SignalStore) Insert(ctx context.Context, sig *domain.Signal) error {
	if sig == nil || sig.ID == "" || sig.TokenAddress == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO signals (
			signal_id, token_address, trigger_tx, status,
			entry_price, entry_denom, entry_price_usd,
			market_cap_usd, volume_1h_usd, age_minutes, pair_address, chart_url,
			exit_price, exit_denom, realized_pnl_pct, closed_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	exitPrice, exitDenom, pnl, closedAt := outcomeColumns(sig)
	_, err := s.pool.Exec(ctx, query,
		sig.ID,
		sig.TokenAddress,
		sig.TriggerTx,
		string(sig.Status),
		sig.EntryPrice,
		string(sig.EntryDenom),
		sig.EntryPriceUSD,
		sig.MarketCapUSD,
		sig.Volume1hUSD,
		sig.AgeMinutes,
		sig.PairAddress,
		sig.ChartURL,
		exitPrice,
		exitDenom,
		pnl,
		closedAt,
		sig.CreatedAt,
		sig.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// InsertIfAbsent adds the signal unless the token already has a pending
// signal, or any signal created at or after dedupSince (ms). The guard and
// the insert run as one statement, so concurrent callers cannot both win;
// a race on the pending-per-token index resolves to no-op via ON CONFLICT.
func (s *SignalStore) InsertIfAbsent(ctx context.Context, sig *domain.Signal, dedupSince int64) (bool, error) {
	if sig == nil || sig.ID == "" || sig.TokenAddress == "" {
		return false, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO signals (
			signal_id, token_address, trigger_tx, status,
			entry_price, entry_denom, entry_price_usd,
			market_cap_usd, volume_1h_usd, age_minutes, pair_address, chart_url,
			exit_price, exit_denom, realized_pnl_pct, closed_at,
			created_at, updated_at
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		WHERE NOT EXISTS (
			SELECT 1 FROM signals
			WHERE token_address = $2
			  AND (status = 'pending' OR created_at >= $19)
		)
		ON CONFLICT DO NOTHING
	`

	exitPrice, exitDenom, pnl, closedAt := outcomeColumns(sig)
	tag, err := s.pool.Exec(ctx, query,
		sig.ID,
		sig.TokenAddress,
		sig.TriggerTx,
		string(sig.Status),
		sig.EntryPrice,
		string(sig.EntryDenom),
		sig.EntryPriceUSD,
		sig.MarketCapUSD,
		sig.Volume1hUSD,
		sig.AgeMinutes,
		sig.PairAddress,
		sig.ChartURL,
		exitPrice,
		exitDenom,
		pnl,
		closedAt,
		sig.CreatedAt,
		sig.UpdatedAt,
		dedupSince,
	)
	if err != nil {
		return false, fmt.Errorf("insert signal if absent: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByID retrieves a signal by its ID. Returns ErrNotFound if not exists.
func (s *SignalStore) GetByID(ctx context.Context, signalID string) (*domain.Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals WHERE signal_id = $1`

	row := s.pool.QueryRow(ctx, query, signalID)
	sig, err := scanSignal(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get signal by id: %w", err)
	}
	return sig, nil
}

// GetOpenByToken retrieves the pending signal for a token.
func (s *SignalStore) GetOpenByToken(ctx context.Context, tokenAddress string) (*domain.Signal, error) {
	query := `
		SELECT ` + signalColumns + `
		FROM signals
		WHERE token_address = $1 AND status = 'pending'
		ORDER BY created_at DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query, tokenAddress)
	sig, err := scanSignal(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get open signal by token: %w", err)
	}
	return sig, nil
}

// GetLatestByToken retrieves the most recently created signal for a token
// regardless of status.
func (s *SignalStore) GetLatestByToken(ctx context.Context, tokenAddress string) (*domain.Signal, error) {
	query := `
		SELECT ` + signalColumns + `
		FROM signals
		WHERE token_address = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query, tokenAddress)
	sig, err := scanSignal(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest signal by token: %w", err)
	}
	return sig, nil
}

// Transition moves a signal from one status to another, writing outcome when
// non-nil. The WHERE clause re-checks the expected status, so a concurrent
// writer that already moved the signal makes this a no-op reported as false.
func (s *SignalStore) Transition(ctx context.Context, signalID string, from, to domain.SignalStatus, outcome *domain.SignalOutcome) (bool, error) {
	if signalID == "" || !from.IsValid() || !to.IsValid() {
		return false, storage.ErrInvalidInput
	}
	if from.IsTerminal() {
		return false, storage.ErrInvalidInput
	}

	query := `
		UPDATE signals
		SET status = $3,
		    updated_at = $4,
		    exit_price = COALESCE($5, exit_price),
		    exit_denom = COALESCE($6, exit_denom),
		    realized_pnl_pct = COALESCE($7, realized_pnl_pct),
		    closed_at = COALESCE($8, closed_at)
		WHERE signal_id = $1 AND status = $2
	`

	var exitPrice, pnl *float64
	var exitDenom *string
	var closedAt *int64
	if outcome != nil {
		exitPrice = &outcome.ExitPrice
		denom := string(outcome.ExitDenom)
		exitDenom = &denom
		pnl = outcome.RealizedPnLPct
		closedAt = &outcome.ClosedAt
	}

	tag, err := s.pool.Exec(ctx, query,
		signalID,
		string(from),
		string(to),
		time.Now().UnixMilli(),
		exitPrice,
		exitDenom,
		pnl,
		closedAt,
	)
	if err != nil {
		return false, fmt.Errorf("transition signal: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListRecent retrieves up to limit signals, newest first.
func (s *SignalStore) ListRecent(ctx context.Context, limit int) ([]*domain.Signal, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT ` + signalColumns + `
		FROM signals
		ORDER BY created_at DESC, signal_id ASC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent signals: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// ListPendingOlderThan retrieves pending signals created before cutoff (ms),
// oldest first.
func (s *SignalStore) ListPendingOlderThan(ctx context.Context, cutoff int64) ([]*domain.Signal, error) {
	query := `
		SELECT ` + signalColumns + `
		FROM signals
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC, signal_id ASC
	`

	rows, err := s.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list pending signals: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// ListSignaledTokens retrieves the distinct token addresses of signals
// created at or after since (ms).
func (s *SignalStore) ListSignaledTokens(ctx context.Context, since int64) ([]string, error) {
	query := `
		SELECT DISTINCT token_address
		FROM signals
		WHERE created_at >= $1
		ORDER BY token_address ASC
	`

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("list signaled tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("scan token row: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token rows: %w", err)
	}
	return tokens, nil
}

// Stats aggregates counts, win rate and PnL over all signals.
func (s *SignalStore) Stats(ctx context.Context) (*domain.SignalStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'migrated'),
			COUNT(*) FILTER (WHERE status = 'expired'),
			COUNT(*) FILTER (WHERE status = 'migrated' AND realized_pnl_pct > 0),
			COALESCE(AVG(realized_pnl_pct) FILTER (WHERE status = 'migrated'), 0),
			COALESCE(MAX(realized_pnl_pct) FILTER (WHERE status = 'migrated'), 0),
			COALESCE(MIN(realized_pnl_pct) FILTER (WHERE status = 'migrated'), 0)
		FROM signals
	`

	var stats domain.SignalStats
	err := s.pool.QueryRow(ctx, query).Scan(
		&stats.Total,
		&stats.Pending,
		&stats.Migrated,
		&stats.Expired,
		&stats.Wins,
		&stats.AvgPnLPct,
		&stats.BestPnLPct,
		&stats.WorstPnLPct,
	)
	if err != nil {
		return nil, fmt.Errorf("signal stats: %w", err)
	}
	if stats.Migrated > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.Migrated) * 100
	}
	return &stats, nil
}

// outcomeColumns flattens an optional outcome into its nullable columns.
func outcomeColumns(sig *domain.Signal) (exitPrice *float64, exitDenom *string, pnl *float64, closedAt *int64) {
	if sig.Outcome == nil {
		return nil, nil, nil, nil
	}
	o := sig.Outcome
	denom := string(o.ExitDenom)
	return &o.ExitPrice, &denom, o.RealizedPnLPct, &o.ClosedAt
}

// scanSignal scans a single row into a Signal.
func scanSignal(row pgx.Row) (*domain.Signal, error) {
	var sig domain.Signal
	var statusStr, entryDenomStr string
	var exitPrice, pnl *float64
	var exitDenom *string
	var closedAt *int64

	err := row.Scan(
		&sig.ID,
		&sig.TokenAddress,
		&sig.TriggerTx,
		&statusStr,
		&sig.EntryPrice,
		&entryDenomStr,
		&sig.EntryPriceUSD,
		&sig.MarketCapUSD,
		&sig.Volume1hUSD,
		&sig.AgeMinutes,
		&sig.PairAddress,
		&sig.ChartURL,
		&exitPrice,
		&exitDenom,
		&pnl,
		&closedAt,
		&sig.CreatedAt,
		&sig.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sig.Status = domain.SignalStatus(statusStr)
	sig.EntryDenom = domain.PriceDenom(entryDenomStr)
	sig.Outcome = outcomeFromColumns(exitPrice, exitDenom, pnl, closedAt)
	return &sig, nil
}

// scanSignals scans multiple rows into a slice of Signal.
func scanSignals(rows pgx.Rows) ([]*domain.Signal, error) {
	var signals []*domain.Signal

	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signal row: %w", err)
		}
		signals = append(signals, sig)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signal rows: %w", err)
	}

	return signals, nil
}

// outcomeFromColumns rebuilds the outcome when an exit price was recorded.
func outcomeFromColumns(exitPrice *float64, exitDenom *string, pnl *float64, closedAt *int64) *domain.SignalOutcome {
	if exitPrice == nil {
		return nil
	}
	o := &domain.SignalOutcome{
		ExitPrice:      *exitPrice,
		RealizedPnLPct: pnl,
	}
	if exitDenom != nil {
		o.ExitDenom = domain.PriceDenom(*exitDenom)
	}
	if closedAt != nil {
		o.ClosedAt = *closedAt
	}
	return o
}
