package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-launch-signals/internal/domain"
	"solana-launch-signals/internal/storage"
)

func TestTradeStore_InsertBatchAndGetByToken(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTradeStore(conn)
	ctx := context.Background()

	trades := []*domain.TradeRecord{
		{
			TokenAddress: "TokenMint1",
			TxSignature:  "tx-1",
			Slot:         250000001,
			ObservedAt:   1700000001000,
			EventType:    domain.EventCurveProgress,
			BaseAmount:   2,
			QuoteAmount:  10,
			UnitPrice:    5,
		},
		{
			TokenAddress: "TokenMint1",
			TxSignature:  "tx-2",
			Slot:         250000002,
			ObservedAt:   1700000002000,
			EventType:    domain.EventMigration,
			BaseAmount:   200000000,
			QuoteAmount:  85,
			UnitPrice:    0.000000425,
			Venue:        "RAYDIUM_AMM",
		},
		{
			TokenAddress: "TokenMint2",
			TxSignature:  "tx-3",
			Slot:         250000003,
			ObservedAt:   1700000003000,
			EventType:    domain.EventCurveProgress,
			BaseAmount:   1,
			QuoteAmount:  3,
			UnitPrice:    3,
		},
	}
	require.NoError(t, store.InsertBatch(ctx, trades))

	result, err := store.GetByToken(ctx, "TokenMint1", 10)
	require.NoError(t, err)

	require.Len(t, result, 2)
	// Newest first
	assert.Equal(t, "tx-2", result[0].TxSignature)
	assert.Equal(t, domain.EventMigration, result[0].EventType)
	assert.Equal(t, "RAYDIUM_AMM", result[0].Venue)
	assert.InDelta(t, 0.000000425, result[0].UnitPrice, 1e-15)
	assert.Equal(t, "tx-1", result[1].TxSignature)
	assert.Equal(t, int64(250000001), result[1].Slot)
	assert.Equal(t, int64(1700000001000), result[1].ObservedAt)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
}

func TestTradeStore_GetByToken_Limit(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTradeStore(conn)
	ctx := context.Background()

	var trades []*domain.TradeRecord
	for i := 0; i < 5; i++ {
		trades = append(trades, &domain.TradeRecord{
			TokenAddress: "TokenMint1",
			TxSignature:  string(rune('a' + i)),
			Slot:         int64(i),
			ObservedAt:   int64(1000 * (i + 1)),
			EventType:    domain.EventCurveProgress,
			BaseAmount:   1,
			QuoteAmount:  1,
			UnitPrice:    1,
		})
	}
	require.NoError(t, store.InsertBatch(ctx, trades))

	result, err := store.GetByToken(ctx, "TokenMint1", 3)
	require.NoError(t, err)
	assert.Len(t, result, 3)
	assert.Equal(t, int64(5000), result[0].ObservedAt)
}

func TestTradeStore_EmptyBatch(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTradeStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBatch(ctx, nil))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestTradeStore_InvalidInput(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTradeStore(conn)
	ctx := context.Background()

	err := store.InsertBatch(ctx, []*domain.TradeRecord{{TokenAddress: ""}})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
