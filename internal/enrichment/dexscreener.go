package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"solana-launch-signals/internal/domain"
)

// Default configuration values.
const (
	DefaultDexScreenerBaseURL = "https://api.dexscreener.com"
	DefaultLookupTimeout      = 10 * time.Second
	DefaultLookupRetries      = 2
	DefaultLookupRetryDelay   = 500 * time.Millisecond
	DefaultLookupMaxDelay     = 5 * time.Second
	DefaultRatePerSecond      = 5
)

// eligibleVenues are the dexes whose pairs carry an authoritative snapshot.
// Tokens still trading only on the bonding curve are not listed on any of
// them and resolve as unavailable.
var eligibleVenues = map[string]bool{
	"raydium":  true,
	"pumpswap": true,
}

// DexScreener resolves market snapshots from the DexScreener pairs API.
type DexScreener struct {
	baseURL     string
	client      *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	logger      *log.Logger
}

var _ Gateway = (*DexScreener)(nil)

// DexScreenerOption configures DexScreener.
type DexScreenerOption func(*DexScreener)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) DexScreenerOption {
	return func(d *DexScreener) {
		d.baseURL = u
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) DexScreenerOption {
	return func(d *DexScreener) {
		d.client = client
	}
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(perSecond int) DexScreenerOption {
	return func(d *DexScreener) {
		if perSecond > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
		}
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) DexScreenerOption {
	return func(d *DexScreener) {
		d.maxRetries = n
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(delay time.Duration) DexScreenerOption {
	return func(d *DexScreener) {
		d.retryDelay = delay
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *log.Logger) DexScreenerOption {
	return func(d *DexScreener) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDexScreener creates a DexScreener gateway.
func NewDexScreener(opts ...DexScreenerOption) *DexScreener {
	d := &DexScreener{
		baseURL:     DefaultDexScreenerBaseURL,
		client:      &http.Client{Timeout: DefaultLookupTimeout},
		limiter:     rate.NewLimiter(rate.Limit(DefaultRatePerSecond), DefaultRatePerSecond),
		maxRetries:  DefaultLookupRetries,
		retryDelay:  DefaultLookupRetryDelay,
		maxDelay:    DefaultLookupMaxDelay,
		backoffMult: 2.0,
		logger:      log.New(os.Stdout, "[enrichment] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// pairsResponse is the DexScreener token-pairs payload.
type pairsResponse struct {
	SchemaVersion string `json:"schemaVersion"`
	Pairs         []pair `json:"pairs"`
}

type pair struct {
	ChainID       string         `json:"chainId"`
	DexID         string         `json:"dexId"`
	URL           string         `json:"url"`
	PairAddress   string         `json:"pairAddress"`
	BaseToken     pairToken      `json:"baseToken"`
	QuoteToken    pairToken      `json:"quoteToken"`
	PriceUSD      string         `json:"priceUsd"`
	Volume        *volumeWindows `json:"volume"`
	Liquidity     *pairLiquidity `json:"liquidity"`
	FDV           float64        `json:"fdv"`
	MarketCap     float64        `json:"marketCap"`
	PairCreatedAt int64          `json:"pairCreatedAt"` // Unix ms
}

type pairToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type volumeWindows struct {
	H24 float64 `json:"h24"`
	H6  float64 `json:"h6"`
	H1  float64 `json:"h1"`
	M5  float64 `json:"m5"`
}

type pairLiquidity struct {
	USD   float64 `json:"usd"`
	Base  float64 `json:"base"`
	Quote float64 `json:"quote"`
}

// Lookup fetches pairs for a token and builds a snapshot from the eligible
// pair with the deepest liquidity. Every authoritative field (price, market
// cap, volume, age) must be present; otherwise the lookup is unavailable.
func (d *DexScreener) Lookup(ctx context.Context, tokenAddress string) (*domain.MarketSnapshot, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := d.get(ctx, d.baseURL+"/latest/dex/tokens/"+tokenAddress)
	if err != nil {
		d.logger.Printf("lookup %s: %v", tokenAddress, err)
		return nil, fmt.Errorf("lookup %s: %w", tokenAddress, ErrUnavailable)
	}

	var resp pairsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode pairs for %s: %w", tokenAddress, ErrUnavailable)
	}

	best := bestEligiblePair(resp.Pairs)
	if best == nil {
		return nil, fmt.Errorf("no eligible pair for %s: %w", tokenAddress, ErrUnavailable)
	}

	snap, ok := snapshotFromPair(tokenAddress, best, time.Now())
	if !ok {
		return nil, fmt.Errorf("incomplete pair data for %s: %w", tokenAddress, ErrUnavailable)
	}
	return snap, nil
}

// get performs the HTTP request with retries and exponential backoff,
// honoring Retry-After on 429.
func (d *DexScreener) get(ctx context.Context, url string) ([]byte, error) {
	delay := d.retryDelay
	var lastErr error

	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * d.backoffMult)
			if delay > d.maxDelay {
				delay = d.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
					if wait := time.Duration(secs) * time.Second; wait > delay {
						delay = wait
					}
				}
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d", resp.StatusCode)
			continue
		}

		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// bestEligiblePair picks the deepest-liquidity Solana pair on an eligible
// venue, or nil when none qualifies.
func bestEligiblePair(pairs []pair) *pair {
	var best *pair
	bestLiq := -1.0
	for i := range pairs {
		p := &pairs[i]
		if p.ChainID != "solana" || !eligibleVenues[p.DexID] {
			continue
		}
		liq := 0.0
		if p.Liquidity != nil {
			liq = p.Liquidity.USD
		}
		if liq > bestLiq {
			best = p
			bestLiq = liq
		}
	}
	return best
}

// snapshotFromPair builds a MarketSnapshot, reporting ok=false when any
// authoritative field is missing.
func snapshotFromPair(tokenAddress string, p *pair, now time.Time) (*domain.MarketSnapshot, bool) {
	price, err := strconv.ParseFloat(p.PriceUSD, 64)
	if err != nil || price <= 0 {
		return nil, false
	}
	if p.MarketCap <= 0 || p.Volume == nil || p.PairCreatedAt <= 0 {
		return nil, false
	}

	ageMinutes := float64(now.UnixMilli()-p.PairCreatedAt) / 60000.0
	if ageMinutes < 0 {
		ageMinutes = 0
	}

	chartURL := p.URL
	if chartURL == "" {
		chartURL = "https://dexscreener.com/solana/" + p.PairAddress
	}

	snap := &domain.MarketSnapshot{
		TokenAddress: tokenAddress,
		PriceUSD:     price,
		MarketCapUSD: p.MarketCap,
		Volume1hUSD:  p.Volume.H1,
		AgeMinutes:   ageMinutes,
		PairAddress:  p.PairAddress,
		Venue:        p.DexID,
		ChartURL:     chartURL,
		FetchedAt:    now.UnixMilli(),
	}
	if p.Liquidity != nil {
		liq := p.Liquidity.USD
		snap.LiquidityUSD = &liq
	}
	return snap, true
}
