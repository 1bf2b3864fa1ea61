package postgres

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyStore_AdmitClaimsOnce(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewIdempotencyStore(pool)
	ctx := context.Background()

	claimed, err := store.Admit(ctx, "sig-001", 1700000000000)
	require.NoError(t, err)
	assert.True(t, claimed, "first admit should claim")

	claimed, err = store.Admit(ctx, "sig-001", 1700000001000)
	require.NoError(t, err)
	assert.False(t, claimed, "second admit should not claim")

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestIdempotencyStore_Seen(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewIdempotencyStore(pool)
	ctx := context.Background()

	seen, err := store.Seen(ctx, "sig-unknown")
	require.NoError(t, err)
	assert.False(t, seen)

	_, err = store.Admit(ctx, "sig-known", 1700000000000)
	require.NoError(t, err)

	seen, err = store.Seen(ctx, "sig-known")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestIdempotencyStore_PruneBefore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewIdempotencyStore(pool)
	ctx := context.Background()

	sigs := map[string]int64{
		"sig-old-1": 1000,
		"sig-old-2": 2000,
		"sig-new":   9000,
	}
	for sig, at := range sigs {
		_, err := store.Admit(ctx, sig, at)
		require.NoError(t, err)
	}

	removed, err := store.PruneBefore(ctx, 5000)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	seen, err := store.Seen(ctx, "sig-new")
	require.NoError(t, err)
	assert.True(t, seen, "entries at or after cutoff should survive")

	seen, err = store.Seen(ctx, "sig-old-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestIdempotencyStore_ConcurrentAdmit(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewIdempotencyStore(pool)
	ctx := context.Background()

	var wg sync.WaitGroup
	var claims int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := store.Admit(ctx, "sig-contested", 1700000000000)
			if err != nil {
				t.Errorf("Admit failed: %v", err)
				return
			}
			if claimed {
				atomic.AddInt32(&claims, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), claims, "exactly one concurrent admit should claim")
}
