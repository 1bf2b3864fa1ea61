package signals

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"solana-launch-signals/internal/domain"
	"solana-launch-signals/internal/enrichment"
	"solana-launch-signals/internal/notify"
	"solana-launch-signals/internal/observability"
	"solana-launch-signals/internal/storage"
)

// DefaultExpiryHorizon bounds how long a signal may stay pending.
const DefaultExpiryHorizon = 24 * time.Hour

// Tracker closes signals against their downstream outcome. Migrations move a
// pending signal to migrated with a realized PnL when one can be computed;
// the expiry sweep moves abandoned signals to expired. A single Tracker is
// safe for concurrent use.
type Tracker struct {
	store    storage.SignalStore
	gateway  enrichment.Gateway
	notifier notify.Notifier

	expiryHorizon time.Duration
	lookupTimeout time.Duration
	logger        *log.Logger
}

// TrackerOptions contains configuration for creating a Tracker.
type TrackerOptions struct {
	// Required.
	Store   storage.SignalStore
	Gateway enrichment.Gateway

	// Optional.
	Notifier      notify.Notifier // nil disables notifications
	ExpiryHorizon time.Duration   // 0 means DefaultExpiryHorizon
	LookupTimeout time.Duration   // 0 means DefaultLookupTimeout
	Logger        *log.Logger
}

// NewTracker creates a new Tracker.
func NewTracker(opts TrackerOptions) *Tracker {
	t := &Tracker{
		store:         opts.Store,
		gateway:       opts.Gateway,
		notifier:      opts.Notifier,
		expiryHorizon: opts.ExpiryHorizon,
		lookupTimeout: opts.LookupTimeout,
		logger:        opts.Logger,
	}
	if t.notifier == nil {
		t.notifier = notify.Noop{}
	}
	if t.expiryHorizon <= 0 {
		t.expiryHorizon = DefaultExpiryHorizon
	}
	if t.lookupTimeout <= 0 {
		t.lookupTimeout = DefaultLookupTimeout
	}
	if t.logger == nil {
		t.logger = log.Default()
	}
	return t
}

// OnMigration closes the token's pending signal as migrated. The exit price
// prefers the migration's own deposit-derived unit price; a gateway snapshot
// is the fallback. PnL is computed only against an entry price in the same
// denomination. Without any exit price the signal still closes, carrying a
// nil outcome; the migration is a fact either way.
func (t *Tracker) OnMigration(ctx context.Context, ev *domain.Migration) error {
	token := ev.TokenAddress()

	sig, err := t.store.GetOpenByToken(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		t.noteLateMigration(ctx, token)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get open signal: %w", err)
	}

	outcome := t.buildOutcome(ctx, ev, sig)

	swapped, err := t.store.Transition(ctx, sig.ID, domain.SignalPending, domain.SignalMigrated, outcome)
	if err != nil {
		return fmt.Errorf("transition signal %s: %w", sig.ID, err)
	}
	if !swapped {
		observability.RecordTransitionRace()

		cur, err := t.store.GetByID(ctx, sig.ID)
		if err != nil {
			return fmt.Errorf("re-read signal %s: %w", sig.ID, err)
		}
		if cur.Status != domain.SignalPending {
			if cur.Status == domain.SignalExpired {
				observability.RecordLateMigration()
				t.logger.Printf("Migration for %s arrived after signal %s expired", token, shortID(sig.ID))
			}
			return nil
		}

		swapped, err = t.store.Transition(ctx, sig.ID, domain.SignalPending, domain.SignalMigrated, outcome)
		if err != nil {
			return fmt.Errorf("transition signal %s: %w", sig.ID, err)
		}
		if !swapped {
			t.logger.Printf("Abandoning transition for %s after repeated conflict", shortID(sig.ID))
			return nil
		}
	}

	observability.RecordSignalClosed(domain.SignalMigrated.String())
	if outcome != nil && outcome.RealizedPnLPct != nil {
		observability.RecordRealizedPnL(*outcome.RealizedPnLPct)
		t.logger.Printf("Signal %s migrated to %s: pnl %+.1f%%",
			shortID(sig.ID), ev.DestinationVenue, *outcome.RealizedPnLPct)
	} else {
		t.logger.Printf("Signal %s migrated to %s", shortID(sig.ID), ev.DestinationVenue)
	}

	closed := *sig
	closed.Status = domain.SignalMigrated
	closed.Outcome = outcome
	closed.UpdatedAt = time.Now().UnixMilli()
	if err := t.notifier.SignalClosed(ctx, &closed); err != nil {
		t.logger.Printf("Notify signal closed failed: %v", err)
	}
	return nil
}

// OnCurveProgress observes the unrealized PnL of an open signal against the
// latest curve trade price. Observation only; no state is written.
func (t *Tracker) OnCurveProgress(ctx context.Context, ev *domain.CurveProgress) {
	price, ok := ev.UnitPrice()
	if !ok {
		return
	}

	sig, err := t.store.GetOpenByToken(ctx, ev.TokenAddress())
	if err != nil {
		return
	}
	if sig.EntryDenom != domain.DenomSOL || sig.EntryPrice <= 0 {
		return
	}

	pnl := domain.PnLPct(sig.EntryPrice, price)
	observability.RecordUnrealizedPnL(pnl)
	t.logger.Printf("Signal %s unrealized pnl %+.1f%%", shortID(sig.ID), pnl)
}

// ExpireStale closes pending signals older than the expiry horizon. Each
// moves through the same CAS as migration, so a concurrent migration wins
// the race. Returns how many signals this sweep expired.
func (t *Tracker) ExpireStale(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-t.expiryHorizon).UnixMilli()

	stale, err := t.store.ListPendingOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list pending signals: %w", err)
	}

	expired := 0
	for _, sig := range stale {
		swapped, err := t.store.Transition(ctx, sig.ID, domain.SignalPending, domain.SignalExpired, nil)
		if err != nil {
			return expired, fmt.Errorf("expire signal %s: %w", sig.ID, err)
		}
		if !swapped {
			observability.RecordTransitionRace()
			continue
		}
		expired++
		observability.RecordSignalClosed(domain.SignalExpired.String())

		closed := *sig
		closed.Status = domain.SignalExpired
		closed.UpdatedAt = time.Now().UnixMilli()
		if err := t.notifier.SignalClosed(ctx, &closed); err != nil {
			t.logger.Printf("Notify signal closed failed: %v", err)
		}
	}

	if expired > 0 {
		t.logger.Printf("Expired %d stale signals", expired)
	}
	return expired, nil
}

// buildOutcome resolves the exit price and PnL for a migrating signal.
// Returns nil when no exit price could be established; a price is never
// fabricated.
func (t *Tracker) buildOutcome(ctx context.Context, ev *domain.Migration, sig *domain.Signal) *domain.SignalOutcome {
	nowMs := time.Now().UnixMilli()

	if price, ok := ev.UnitPrice(); ok {
		return newOutcome(sig, price, domain.DenomSOL, nowMs)
	}

	lctx, cancel := context.WithTimeout(ctx, t.lookupTimeout)
	defer cancel()

	snap, err := t.gateway.Lookup(lctx, ev.TokenAddress())
	if err != nil {
		if !errors.Is(err, enrichment.ErrUnavailable) {
			t.logger.Printf("Exit price lookup for %s failed: %v", ev.TokenAddress(), err)
		}
		return nil
	}
	return newOutcome(sig, snap.PriceUSD, domain.DenomUSD, nowMs)
}

// noteLateMigration records a migration that arrived after the token's signal
// had already closed. Most migrations concern tokens that never signaled;
// those pass silently.
func (t *Tracker) noteLateMigration(ctx context.Context, token string) {
	last, err := t.store.GetLatestByToken(ctx, token)
	if err != nil {
		return
	}
	if last.Status == domain.SignalExpired {
		observability.RecordLateMigration()
		t.logger.Printf("Migration for %s arrived after signal %s expired", token, shortID(last.ID))
	}
}

// newOutcome pairs an exit price with a realized PnL when the signal holds an
// entry price in the same denomination.
func newOutcome(sig *domain.Signal, exitPrice float64, denom domain.PriceDenom, nowMs int64) *domain.SignalOutcome {
	o := &domain.SignalOutcome{
		ExitPrice: exitPrice,
		ExitDenom: denom,
		ClosedAt:  nowMs,
	}
	if entry, ok := entryPriceIn(sig, denom); ok {
		pnl := domain.PnLPct(entry, exitPrice)
		o.RealizedPnLPct = &pnl
	}
	return o
}

// entryPriceIn returns the signal's entry price in the requested
// denomination, when it holds one.
func entryPriceIn(sig *domain.Signal, denom domain.PriceDenom) (float64, bool) {
	switch denom {
	case domain.DenomSOL:
		if sig.EntryDenom == domain.DenomSOL && sig.EntryPrice > 0 {
			return sig.EntryPrice, true
		}
	case domain.DenomUSD:
		if sig.EntryPriceUSD != nil && *sig.EntryPriceUSD > 0 {
			return *sig.EntryPriceUSD, true
		}
		if sig.EntryDenom == domain.DenomUSD && sig.EntryPrice > 0 {
			return sig.EntryPrice, true
		}
	}
	return 0, false
}
