package postgres

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-launch-signals/internal/domain"
	"solana-launch-signals/internal/storage"
)

func testSignal(id, token string, createdAt int64) *domain.Signal {
	return &domain.Signal{
		ID:           id,
		TokenAddress: token,
		TriggerTx:    "trigger-" + id,
		Status:       domain.SignalPending,
		EntryPrice:   0.000031,
		EntryDenom:   domain.DenomSOL,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

func TestSignalStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalStore(pool)
	ctx := context.Background()

	sig := testSignal("signal-001", "TokenMint1", 1700000000000)
	sig.EntryPriceUSD = ptr(0.0000052)
	sig.MarketCapUSD = ptr(15000.0)
	sig.Volume1hUSD = ptr(8200.0)
	sig.AgeMinutes = ptr(12.5)
	sig.PairAddress = ptr("PairAddr1")
	sig.ChartURL = ptr("https://dexscreener.com/solana/PairAddr1")

	err := store.Insert(ctx, sig)
	require.NoError(t, err)

	retrieved, err := store.GetByID(ctx, "signal-001")
	require.NoError(t, err)

	assert.Equal(t, sig.ID, retrieved.ID)
	assert.Equal(t, sig.TokenAddress, retrieved.TokenAddress)
	assert.Equal(t, sig.TriggerTx, retrieved.TriggerTx)
	assert.Equal(t, domain.SignalPending, retrieved.Status)
	assert.InDelta(t, sig.EntryPrice, retrieved.EntryPrice, 1e-12)
	assert.Equal(t, domain.DenomSOL, retrieved.EntryDenom)
	require.NotNil(t, retrieved.EntryPriceUSD)
	assert.InDelta(t, 0.0000052, *retrieved.EntryPriceUSD, 1e-12)
	require.NotNil(t, retrieved.MarketCapUSD)
	assert.InDelta(t, 15000.0, *retrieved.MarketCapUSD, 1e-9)
	require.NotNil(t, retrieved.PairAddress)
	assert.Equal(t, "PairAddr1", *retrieved.PairAddress)
	assert.Nil(t, retrieved.Outcome, "open signal has no outcome")
	assert.Equal(t, sig.CreatedAt, retrieved.CreatedAt)
}

func TestSignalStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalStore(pool)
	ctx := context.Background()

	sig := testSignal("signal-dup", "TokenMint1", 1700000000000)
	require.NoError(t, store.Insert(ctx, sig))

	err := store.Insert(ctx, sig)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestSignalStore_OnePendingPerToken(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testSignal("signal-a", "TokenMint1", 1700000000000)))

	// Different ID, same token, still pending: blocked by the partial index
	err := store.Insert(ctx, testSignal("signal-b", "TokenMint1", 1700000001000))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestSignalStore_GetByIDNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalStore(pool)
	ctx := context.Background()

	_, err := store.GetByID(ctx, "nonexistent")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.GetOpenByToken(ctx, "NoSuchToken")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSignalStore_GetLatestByToken(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testSignal("signal-old", "TokenMint1", 1000)))
	ok, err := store.Transition(ctx, "signal-old", domain.SignalPending, domain.SignalExpired, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, store.Insert(ctx, testSignal("signal-new", "TokenMint1", 2000)))

	latest, err := store.GetLatestByToken(ctx, "TokenMint1")
	require.NoError(t, err)
	assert.Equal(t, "signal-new", latest.ID)

	_, err = store.GetLatestByToken(ctx, "NoSuchToken")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSignalStore_InsertIfAbsent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalStore(pool)
	ctx := context.Background()

	created, err := store.InsertIfAbsent(ctx, testSignal("signal-1", "TokenMint1", 5000), 4000)
	require.NoError(t, err)
	assert.True(t, created)

	// Pending signal blocks a second one for the token
	created, err = store.InsertIfAbsent(ctx, testSignal("signal-2", "TokenMint1", 9000), 8000)
	require.NoError(t, err)
	assert.False(t, created)

	// Other tokens are unaffected
	created, err = store.InsertIfAbsent(ctx, testSignal("signal-3", "TokenMint2", 9000), 8000)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestSignalStore_InsertIfAbsent_DedupWindow(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalStore(pool)
	ctx := context.Background()

	created, err := store.InsertIfAbsent(ctx, testSignal("signal-1", "TokenMint1", 5000), 0)
	require.NoError(t, err)
	require.True(t, created)

	ok, err := store.Transition(ctx, "signal-1", domain.SignalPending, domain.SignalExpired, nil)
	require.NoError(t, err)
	require.True(t, ok)

	// Closed but inside the dedup window
	created, err = store.InsertIfAbsent(ctx, testSignal("signal-2", "TokenMint1", 9000), 4000)
	require.NoError(t, err)
	assert.False(t, created, "closed signal inside the window should block")

	// Window moved past the closed signal
	created, err = store.InsertIfAbsent(ctx, testSignal("signal-3", "TokenMint1", 99000), 6000)
	require.NoError(t, err)
	assert.True(t, created, "closed signal outside the window should not block")
}

func TestSignalStore_Transition(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testSignal("signal-1", "TokenMint1", 1700000000000)))

	outcome := &domain.SignalOutcome{
		ExitPrice:      0.0000372,
		ExitDenom:      domain.DenomSOL,
		RealizedPnLPct: ptr(20.0),
		ClosedAt:       1700000600000,
	}
	ok, err := store.Transition(ctx, "signal-1", domain.SignalPending, domain.SignalMigrated, outcome)
	require.NoError(t, err)
	assert.True(t, ok)

	retrieved, err := store.GetByID(ctx, "signal-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SignalMigrated, retrieved.Status)
	require.NotNil(t, retrieved.Outcome)
	assert.InDelta(t, 0.0000372, retrieved.Outcome.ExitPrice, 1e-12)
	assert.Equal(t, domain.DenomSOL, retrieved.Outcome.ExitDenom)
	require.NotNil(t, retrieved.Outcome.RealizedPnLPct)
	assert.InDelta(t, 20.0, *retrieved.Outcome.RealizedPnLPct, 1e-9)
	assert.Equal(t, int64(1700000600000), retrieved.Outcome.ClosedAt)
	assert.Greater(t, retrieved.UpdatedAt, retrieved.CreatedAt)

	// Stale expected status: no-op
	ok, err = store.Transition(ctx, "signal-1", domain.SignalPending, domain.SignalExpired, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	retrieved, err = store.GetByID(ctx, "signal-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SignalMigrated, retrieved.Status, "lost transition must not overwrite")
}

func TestSignalStore_Transition_TerminalFromRejected(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalStore(pool)
	ctx := context.Background()

	_, err := store.Transition(ctx, "whatever", domain.SignalMigrated, domain.SignalExpired, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestSignalStore_Transition_Concurrent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testSignal("signal-race", "TokenMint1", 1700000000000)))

	var wg sync.WaitGroup
	var winners int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Transition(ctx, "signal-race", domain.SignalPending, domain.SignalMigrated, nil)
			if err != nil {
				t.Errorf("Transition failed: %v", err)
				return
			}
			if ok {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners, "exactly one concurrent transition should win")
}

func TestSignalStore_ListRecent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalStore(pool)
	ctx := context.Background()

	for _, sig := range []*domain.Signal{
		testSignal("signal-1", "TokenMint1", 1000),
		testSignal("signal-2", "TokenMint2", 3000),
		testSignal("signal-3", "TokenMint3", 2000),
	} {
		require.NoError(t, store.Insert(ctx, sig))
	}

	result, err := store.ListRecent(ctx, 2)
	require.NoError(t, err)

	require.Len(t, result, 2)
	assert.Equal(t, "signal-2", result[0].ID)
	assert.Equal(t, "signal-3", result[1].ID)
}

func TestSignalStore_ListPendingOlderThan(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalStore(pool)
	ctx := context.Background()

	for _, sig := range []*domain.Signal{
		testSignal("signal-1", "TokenMint1", 1000),
		testSignal("signal-2", "TokenMint2", 2000),
		testSignal("signal-3", "TokenMint3", 9000),
	} {
		require.NoError(t, store.Insert(ctx, sig))
	}
	ok, err := store.Transition(ctx, "signal-2", domain.SignalPending, domain.SignalMigrated, nil)
	require.NoError(t, err)
	require.True(t, ok)

	result, err := store.ListPendingOlderThan(ctx, 5000)
	require.NoError(t, err)

	require.Len(t, result, 1)
	assert.Equal(t, "signal-1", result[0].ID)
}

func TestSignalStore_ListSignaledTokens(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalStore(pool)
	ctx := context.Background()

	for _, sig := range []*domain.Signal{
		testSignal("signal-1", "TokenMint1", 1000),
		testSignal("signal-2", "TokenMint2", 5000),
		testSignal("signal-3", "TokenMint3", 6000),
	} {
		require.NoError(t, store.Insert(ctx, sig))
	}

	tokens, err := store.ListSignaledTokens(ctx, 5000)
	require.NoError(t, err)

	assert.Equal(t, []string{"TokenMint2", "TokenMint3"}, tokens)
}

func TestSignalStore_Stats(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalStore(pool)
	ctx := context.Background()

	for _, sig := range []*domain.Signal{
		testSignal("signal-1", "TokenMint1", 1000),
		testSignal("signal-2", "TokenMint2", 2000),
		testSignal("signal-3", "TokenMint3", 3000),
		testSignal("signal-4", "TokenMint4", 4000),
	} {
		require.NoError(t, store.Insert(ctx, sig))
	}

	ok, err := store.Transition(ctx, "signal-2", domain.SignalPending, domain.SignalMigrated,
		&domain.SignalOutcome{ExitPrice: 0.6, ExitDenom: domain.DenomSOL, RealizedPnLPct: ptr(20.0), ClosedAt: 5000})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Transition(ctx, "signal-3", domain.SignalPending, domain.SignalMigrated,
		&domain.SignalOutcome{ExitPrice: 0.45, ExitDenom: domain.DenomSOL, RealizedPnLPct: ptr(-10.0), ClosedAt: 6000})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Transition(ctx, "signal-4", domain.SignalPending, domain.SignalExpired, nil)
	require.NoError(t, err)
	require.True(t, ok)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(2), stats.Migrated)
	assert.Equal(t, int64(1), stats.Expired)
	assert.Equal(t, int64(1), stats.Wins)
	assert.InDelta(t, 50.0, stats.WinRate, 1e-9)
	assert.InDelta(t, 5.0, stats.AvgPnLPct, 1e-9)
	assert.InDelta(t, 20.0, stats.BestPnLPct, 1e-9)
	assert.InDelta(t, -10.0, stats.WorstPnLPct, 1e-9)
}

func TestSignalStore_EmptyStats(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalStore(pool)
	ctx := context.Background()

	stats, err := store.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(0), stats.Total)
	assert.Equal(t, 0.0, stats.WinRate)
	assert.Equal(t, 0.0, stats.AvgPnLPct)
}
