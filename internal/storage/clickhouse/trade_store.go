package clickhouse

import (
	"context"
	"fmt"

	"solana-launch-signals/internal/domain"
	"solana-launch-signals/internal/storage"
)

// TradeStore implements storage.TradeStore using ClickHouse.
//
// trade_history is an append-only MergeTree. Redelivered webhook batches are
// cut off upstream by the idempotency store, so inserts here don't dedupe.
type TradeStore struct {
	conn *Conn
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(conn *Conn) *TradeStore {
	return &TradeStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// InsertBatch appends a batch of trade records.
func (s *TradeStore) InsertBatch(ctx context.Context, trades []*domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}
	for _, t := range trades {
		if t == nil || t.TokenAddress == "" || t.TxSignature == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trade_history (
			token_address, tx_signature, slot, observed_at,
			event_type, base_amount, quote_amount, unit_price, venue
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, t := range trades {
		err = batch.Append(
			t.TokenAddress, t.TxSignature, uint64(t.Slot), uint64(t.ObservedAt),
			string(t.EventType), t.BaseAmount, t.QuoteAmount, t.UnitPrice, t.Venue,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByToken retrieves up to limit records for a token, newest first.
func (s *TradeStore) GetByToken(ctx context.Context, tokenAddress string, limit int) ([]*domain.TradeRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT token_address, tx_signature, slot, observed_at,
		       event_type, base_amount, quote_amount, unit_price, venue
		FROM trade_history
		WHERE token_address = ?
		ORDER BY observed_at DESC
		LIMIT ?
	`

	rows, err := s.conn.Query(ctx, query, tokenAddress, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("query trades by token: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// Count returns the number of archived records.
func (s *TradeStore) Count(ctx context.Context) (uint64, error) {
	var count uint64
	if err := s.conn.QueryRow(ctx, `SELECT count(*) FROM trade_history`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count trades: %w", err)
	}
	return count, nil
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanTrades scans multiple rows into a slice of TradeRecord.
func scanTrades(rows chRows) ([]*domain.TradeRecord, error) {
	var trades []*domain.TradeRecord

	for rows.Next() {
		var t domain.TradeRecord
		var slot, observedAt uint64
		var eventType string

		err := rows.Scan(
			&t.TokenAddress, &t.TxSignature, &slot, &observedAt,
			&eventType, &t.BaseAmount, &t.QuoteAmount, &t.UnitPrice, &t.Venue,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}

		t.Slot = int64(slot)
		t.ObservedAt = int64(observedAt)
		t.EventType = domain.EventType(eventType)
		trades = append(trades, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
