// Package signals turns enriched launch events into persisted signals and
// tracks their lifecycle to a terminal outcome.
package signals

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"solana-launch-signals/internal/domain"
	"solana-launch-signals/internal/enrichment"
	"solana-launch-signals/internal/filters"
	"solana-launch-signals/internal/idhash"
	"solana-launch-signals/internal/notify"
	"solana-launch-signals/internal/observability"
	"solana-launch-signals/internal/storage"
)

// Default tuning for the generator.
const (
	DefaultDedupWindow   = 24 * time.Hour
	DefaultLookupTimeout = 5 * time.Second
)

// Enrichment outcomes reported to metrics.
const (
	enrichHit         = "hit"
	enrichUnavailable = "unavailable"
	enrichError       = "error"
)

// Generator turns qualifying launch events into pending signals. A single
// Generator is safe for concurrent use. The write-time guard in the store
// remains the authority on duplicates; the in-process cache only saves
// round-trips for tokens that already signaled.
type Generator struct {
	store    storage.SignalStore
	gateway  enrichment.Gateway
	holders  enrichment.HolderSource
	chain    *filters.Chain
	notifier notify.Notifier

	dedupWindow   time.Duration
	lookupTimeout time.Duration
	logger        *log.Logger

	mu       sync.Mutex
	signaled map[string]int64 // token -> signaled at (ms)
}

// GeneratorOptions contains configuration for creating a Generator.
type GeneratorOptions struct {
	// Required.
	Store   storage.SignalStore
	Gateway enrichment.Gateway
	Chain   *filters.Chain

	// Optional.
	Holders       enrichment.HolderSource // nil disables holder enrichment
	Notifier      notify.Notifier         // nil disables notifications
	DedupWindow   time.Duration           // 0 means DefaultDedupWindow
	LookupTimeout time.Duration           // 0 means DefaultLookupTimeout
	Logger        *log.Logger
}

// NewGenerator creates a new Generator.
func NewGenerator(opts GeneratorOptions) *Generator {
	g := &Generator{
		store:         opts.Store,
		gateway:       opts.Gateway,
		holders:       opts.Holders,
		chain:         opts.Chain,
		notifier:      opts.Notifier,
		dedupWindow:   opts.DedupWindow,
		lookupTimeout: opts.LookupTimeout,
		logger:        opts.Logger,
		signaled:      make(map[string]int64),
	}
	if g.notifier == nil {
		g.notifier = notify.Noop{}
	}
	if g.dedupWindow <= 0 {
		g.dedupWindow = DefaultDedupWindow
	}
	if g.lookupTimeout <= 0 {
		g.lookupTimeout = DefaultLookupTimeout
	}
	if g.logger == nil {
		g.logger = log.Default()
	}
	return g
}

// Load primes the signaled-token cache from the store. Call once on start so
// tokens signaled within the dedup window are recognized again after a
// restart. Reloaded entries are stamped with the load time.
func (g *Generator) Load(ctx context.Context) error {
	now := time.Now()
	since := now.Add(-g.dedupWindow).UnixMilli()

	tokens, err := g.store.ListSignaledTokens(ctx, since)
	if err != nil {
		return fmt.Errorf("load signaled tokens: %w", err)
	}

	g.mu.Lock()
	for _, token := range tokens {
		g.signaled[token] = now.UnixMilli()
	}
	g.mu.Unlock()

	if len(tokens) > 0 {
		g.logger.Printf("Loaded %d signaled tokens from store", len(tokens))
	}
	return nil
}

// OnEvent evaluates a TokenCreated or CurveProgress event and inserts a
// pending signal when the token qualifies. Migration events are ignored here;
// the Tracker owns them. Returns the inserted signal, or nil when the event
// produced none. The error is non-nil only for storage failures.
func (g *Generator) OnEvent(ctx context.Context, ev domain.Event) (*domain.Signal, error) {
	switch ev.Type() {
	case domain.EventTokenCreated, domain.EventCurveProgress:
	default:
		return nil, nil
	}

	token := ev.TokenAddress()
	now := time.Now()
	if g.recentlySignaled(token, now.UnixMilli()) {
		return nil, nil
	}

	snap, ok := g.lookup(ctx, token)
	if !ok {
		return nil, nil
	}

	enriched := &domain.EnrichedEvent{Event: ev, Snapshot: snap}
	if g.holders != nil {
		hctx, cancel := context.WithTimeout(ctx, g.lookupTimeout)
		pct, err := g.holders.TopHolderShare(hctx, token)
		cancel()
		if err != nil {
			g.logger.Printf("Holder share lookup for %s failed: %v", token, err)
		} else {
			enriched.TopHolderPct = &pct
		}
	}

	if res := g.chain.Evaluate(enriched); !res.Pass {
		observability.RecordFilterRejection(res.FilterID)
		g.logger.Printf("Rejected %s (%s): %s", token, res.FilterID, res.Reason)
		return nil, nil
	}

	sig, ok := buildSignal(ev, snap, now.UnixMilli())
	if !ok {
		return nil, nil
	}

	dedupSince := now.Add(-g.dedupWindow).UnixMilli()
	created, err := g.store.InsertIfAbsent(ctx, sig, dedupSince)
	if err != nil {
		return nil, fmt.Errorf("insert signal: %w", err)
	}
	g.markSignaled(token, sig.CreatedAt)
	if !created {
		return nil, nil
	}

	observability.RecordSignalGenerated()
	g.logger.Printf("Signal %s for %s: entry %.10g %s (mcap $%.0f, vol1h $%.0f)",
		shortID(sig.ID), token, sig.EntryPrice, sig.EntryDenom, snap.MarketCapUSD, snap.Volume1hUSD)

	if err := g.notifier.SignalCreated(ctx, sig); err != nil {
		g.logger.Printf("Notify signal created failed: %v", err)
	}
	return sig, nil
}

// lookup runs the gateway with a bounded timeout and reports the outcome to
// metrics. Any failure means no snapshot; the event is discarded rather than
// enriched with a guess.
func (g *Generator) lookup(ctx context.Context, token string) (*domain.MarketSnapshot, bool) {
	lctx, cancel := context.WithTimeout(ctx, g.lookupTimeout)
	defer cancel()

	start := time.Now()
	snap, err := g.gateway.Lookup(lctx, token)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		if errors.Is(err, enrichment.ErrUnavailable) {
			observability.RecordEnrichment(enrichUnavailable, elapsed)
		} else {
			observability.RecordEnrichment(enrichError, elapsed)
			g.logger.Printf("Market lookup for %s failed: %v", token, err)
		}
		return nil, false
	}

	observability.RecordEnrichment(enrichHit, elapsed)
	return snap, true
}

// recentlySignaled consults the cache, dropping entries that aged out of the
// dedup window.
func (g *Generator) recentlySignaled(token string, nowMs int64) bool {
	cutoff := nowMs - g.dedupWindow.Milliseconds()

	g.mu.Lock()
	defer g.mu.Unlock()

	at, ok := g.signaled[token]
	if !ok {
		return false
	}
	if at < cutoff {
		delete(g.signaled, token)
		return false
	}
	return true
}

func (g *Generator) markSignaled(token string, atMs int64) {
	g.mu.Lock()
	g.signaled[token] = atMs
	g.mu.Unlock()
}

// buildSignal assembles the pending signal for a qualifying event. The entry
// price is the event's own derived unit price for curve trades (denom sol)
// and the snapshot price for creations (denom usd); it is never recomputed
// through another formula.
func buildSignal(ev domain.Event, snap *domain.MarketSnapshot, nowMs int64) (*domain.Signal, bool) {
	var entryPrice float64
	var entryDenom domain.PriceDenom

	switch e := ev.(type) {
	case *domain.CurveProgress:
		price, ok := e.UnitPrice()
		if !ok {
			return nil, false
		}
		entryPrice = price
		entryDenom = domain.DenomSOL
	case *domain.TokenCreated:
		if snap.PriceUSD <= 0 {
			return nil, false
		}
		entryPrice = snap.PriceUSD
		entryDenom = domain.DenomUSD
	default:
		return nil, false
	}

	priceUSD := snap.PriceUSD
	marketCap := snap.MarketCapUSD
	volume := snap.Volume1hUSD
	age := snap.AgeMinutes

	sig := &domain.Signal{
		ID:            idhash.ComputeSignalID(ev.TokenAddress(), ev.TransactionID()),
		TokenAddress:  ev.TokenAddress(),
		TriggerTx:     ev.TransactionID(),
		Status:        domain.SignalPending,
		EntryPrice:    entryPrice,
		EntryDenom:    entryDenom,
		EntryPriceUSD: &priceUSD,
		MarketCapUSD:  &marketCap,
		Volume1hUSD:   &volume,
		AgeMinutes:    &age,
		CreatedAt:     nowMs,
		UpdatedAt:     nowMs,
	}
	if snap.PairAddress != "" {
		pair := snap.PairAddress
		sig.PairAddress = &pair
	}
	if snap.ChartURL != "" {
		chart := snap.ChartURL
		sig.ChartURL = &chart
	}
	return sig, true
}

// shortID trims a signal ID for log lines.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
