package enrichment

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "9BB6NFEcjBCtnNLFko2FqVQBq8HHM13kCyYcdQbgpump"

func pairJSON(dexID string, liquidityUSD float64, createdAt int64) string {
	return fmt.Sprintf(`{
		"chainId": "solana",
		"dexId": %q,
		"url": "https://dexscreener.com/solana/pair-%s",
		"pairAddress": "pair-%s",
		"baseToken": {"address": %q, "name": "Test", "symbol": "TST"},
		"quoteToken": {"address": "So11111111111111111111111111111111111111112", "name": "SOL", "symbol": "SOL"},
		"priceUsd": "0.000045",
		"volume": {"h24": 50000, "h6": 20000, "h1": 6000, "m5": 800},
		"liquidity": {"usd": %f, "base": 1000000, "quote": 50},
		"fdv": 45000,
		"marketCap": 45000,
		"pairCreatedAt": %d
	}`, dexID, dexID, dexID, testToken, liquidityUSD, createdAt)
}

func newTestGateway(url string) *DexScreener {
	return NewDexScreener(
		WithBaseURL(url),
		WithRetryDelay(5*time.Millisecond),
		WithRateLimit(1000),
	)
}

func TestDexScreener_Lookup(t *testing.T) {
	createdAt := time.Now().Add(-10 * time.Minute).UnixMilli()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/latest/dex/tokens/"+testToken, r.URL.Path)
		fmt.Fprintf(w, `{"schemaVersion": "1.0.0", "pairs": [%s, %s, %s]}`,
			pairJSON("pumpfun", 900000, createdAt),
			pairJSON("raydium", 30000, createdAt),
			pairJSON("pumpswap", 12000, createdAt),
		)
	}))
	defer server.Close()

	gw := newTestGateway(server.URL)
	snap, err := gw.Lookup(context.Background(), testToken)
	require.NoError(t, err)
	require.NotNil(t, snap)

	// The pumpfun pair has the deepest liquidity but is not an eligible venue.
	assert.Equal(t, "raydium", snap.Venue)
	assert.Equal(t, "pair-raydium", snap.PairAddress)
	assert.Equal(t, testToken, snap.TokenAddress)
	assert.InDelta(t, 0.000045, snap.PriceUSD, 1e-12)
	assert.InDelta(t, 45000, snap.MarketCapUSD, 1e-9)
	assert.InDelta(t, 6000, snap.Volume1hUSD, 1e-9)
	assert.InDelta(t, 10, snap.AgeMinutes, 1.0)
	require.NotNil(t, snap.LiquidityUSD)
	assert.InDelta(t, 30000, *snap.LiquidityUSD, 1e-9)
	assert.Equal(t, "https://dexscreener.com/solana/pair-raydium", snap.ChartURL)
	assert.Greater(t, snap.FetchedAt, int64(0))
}

func TestDexScreener_Lookup_NoEligiblePair(t *testing.T) {
	createdAt := time.Now().UnixMilli()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"schemaVersion": "1.0.0", "pairs": [%s]}`, pairJSON("pumpfun", 900000, createdAt))
	}))
	defer server.Close()

	gw := newTestGateway(server.URL)
	_, err := gw.Lookup(context.Background(), testToken)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestDexScreener_Lookup_EmptyPairs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"schemaVersion": "1.0.0", "pairs": null}`)
	}))
	defer server.Close()

	gw := newTestGateway(server.URL)
	_, err := gw.Lookup(context.Background(), testToken)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestDexScreener_Lookup_IncompletePair(t *testing.T) {
	// Eligible venue but no price quoted yet: the snapshot must be withheld,
	// not partially built.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"schemaVersion": "1.0.0", "pairs": [{
			"chainId": "solana",
			"dexId": "raydium",
			"pairAddress": "pair-x",
			"baseToken": {"address": %q},
			"quoteToken": {"address": "So11111111111111111111111111111111111111112"},
			"volume": {"h1": 6000},
			"liquidity": {"usd": 30000},
			"marketCap": 45000,
			"pairCreatedAt": %d
		}]}`, testToken, time.Now().UnixMilli())
	}))
	defer server.Close()

	gw := newTestGateway(server.URL)
	_, err := gw.Lookup(context.Background(), testToken)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestDexScreener_Lookup_WrongChain(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"schemaVersion": "1.0.0", "pairs": [{
			"chainId": "ethereum",
			"dexId": "raydium",
			"pairAddress": "pair-x",
			"priceUsd": "0.000045",
			"volume": {"h1": 6000},
			"liquidity": {"usd": 30000},
			"marketCap": 45000,
			"pairCreatedAt": %d
		}]}`, time.Now().UnixMilli())
	}))
	defer server.Close()

	gw := newTestGateway(server.URL)
	_, err := gw.Lookup(context.Background(), testToken)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestDexScreener_Lookup_RetriesOn429(t *testing.T) {
	createdAt := time.Now().Add(-5 * time.Minute).UnixMilli()
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprintf(w, `{"schemaVersion": "1.0.0", "pairs": [%s]}`, pairJSON("raydium", 30000, createdAt))
	}))
	defer server.Close()

	gw := newTestGateway(server.URL)
	snap, err := gw.Lookup(context.Background(), testToken)
	require.NoError(t, err)
	assert.Equal(t, "raydium", snap.Venue)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestDexScreener_Lookup_ServerErrorUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	gw := newTestGateway(server.URL)
	_, err := gw.Lookup(context.Background(), testToken)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestBestEligiblePair_PicksDeepestLiquidity(t *testing.T) {
	pairs := []pair{
		{ChainID: "solana", DexID: "raydium", PairAddress: "shallow", Liquidity: &pairLiquidity{USD: 1000}},
		{ChainID: "solana", DexID: "pumpswap", PairAddress: "deep", Liquidity: &pairLiquidity{USD: 90000}},
		{ChainID: "solana", DexID: "raydium", PairAddress: "mid", Liquidity: &pairLiquidity{USD: 40000}},
		{ChainID: "solana", DexID: "orca", PairAddress: "ineligible", Liquidity: &pairLiquidity{USD: 500000}},
	}
	best := bestEligiblePair(pairs)
	require.NotNil(t, best)
	assert.Equal(t, "deep", best.PairAddress)

	assert.Nil(t, bestEligiblePair(nil))
}
