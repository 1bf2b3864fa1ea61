// Package filters implements the quality gate between enriched events and
// signal creation. Filters are stateless reads of an EnrichedEvent against
// construction-time thresholds, so a chain is safe for concurrent use.
package filters

import (
	"fmt"

	"solana-launch-signals/internal/config"
	"solana-launch-signals/internal/domain"
)

// reasonDataUnavailable is the fail-closed reason used when a filter's
// required data is absent. Missing data is never a pass.
const reasonDataUnavailable = "data unavailable"

// Verdict is one filter's judgement of an event.
type Verdict struct {
	Pass   bool
	Reason string // empty on pass
}

func pass() Verdict {
	return Verdict{Pass: true}
}

func fail(reason string) Verdict {
	return Verdict{Pass: false, Reason: reason}
}

// Filter evaluates one quality criterion.
type Filter interface {
	// ID identifies the filter in metrics and rejection reasons.
	ID() string

	// Evaluate judges the event. Filters whose required data is absent
	// fail closed.
	Evaluate(ev *domain.EnrichedEvent) Verdict
}

// MinMarketCap requires the snapshot market cap to reach a floor.
type MinMarketCap struct {
	min float64
}

// NewMinMarketCap creates a market cap floor filter.
func NewMinMarketCap(min float64) *MinMarketCap {
	return &MinMarketCap{min: min}
}

func (f *MinMarketCap) ID() string { return "min_market_cap" }

func (f *MinMarketCap) Evaluate(ev *domain.EnrichedEvent) Verdict {
	if ev.Snapshot == nil {
		return fail(reasonDataUnavailable)
	}
	if ev.Snapshot.MarketCapUSD < f.min {
		return fail(fmt.Sprintf("market cap $%.0f below minimum $%.0f", ev.Snapshot.MarketCapUSD, f.min))
	}
	return pass()
}

// MinVolume requires the snapshot 1h volume to reach a floor.
type MinVolume struct {
	min float64
}

// NewMinVolume creates a 1h volume floor filter.
func NewMinVolume(min float64) *MinVolume {
	return &MinVolume{min: min}
}

func (f *MinVolume) ID() string { return "min_volume_1h" }

func (f *MinVolume) Evaluate(ev *domain.EnrichedEvent) Verdict {
	if ev.Snapshot == nil {
		return fail(reasonDataUnavailable)
	}
	if ev.Snapshot.Volume1hUSD < f.min {
		return fail(fmt.Sprintf("1h volume $%.0f below minimum $%.0f", ev.Snapshot.Volume1hUSD, f.min))
	}
	return pass()
}

// MaxAge rejects tokens whose pair is older than a ceiling, in minutes.
type MaxAge struct {
	maxMinutes float64
}

// NewMaxAge creates a pair age ceiling filter.
func NewMaxAge(maxMinutes float64) *MaxAge {
	return &MaxAge{maxMinutes: maxMinutes}
}

func (f *MaxAge) ID() string { return "max_age" }

func (f *MaxAge) Evaluate(ev *domain.EnrichedEvent) Verdict {
	if ev.Snapshot == nil {
		return fail(reasonDataUnavailable)
	}
	if ev.Snapshot.AgeMinutes > f.maxMinutes {
		return fail(fmt.Sprintf("age %.1fm above maximum %.1fm", ev.Snapshot.AgeMinutes, f.maxMinutes))
	}
	return pass()
}

// MaxTopHolderShare rejects tokens whose largest holders control more than a
// ceiling share of supply. Requires holder enrichment.
type MaxTopHolderShare struct {
	maxPct float64
}

// NewMaxTopHolderShare creates a holder concentration ceiling filter.
func NewMaxTopHolderShare(maxPct float64) *MaxTopHolderShare {
	return &MaxTopHolderShare{maxPct: maxPct}
}

func (f *MaxTopHolderShare) ID() string { return "max_top_holder_share" }

func (f *MaxTopHolderShare) Evaluate(ev *domain.EnrichedEvent) Verdict {
	if ev.TopHolderPct == nil {
		return fail(reasonDataUnavailable)
	}
	if *ev.TopHolderPct > f.maxPct {
		return fail(fmt.Sprintf("top holders %.1f%% above maximum %.1f%%", *ev.TopHolderPct, f.maxPct))
	}
	return pass()
}

// Result is the chain's aggregate judgement. FilterID names the first
// rejecting filter; both extra fields are empty on pass.
type Result struct {
	Pass     bool
	FilterID string
	Reason   string
}

// Chain evaluates filters in order and stops at the first rejection.
type Chain struct {
	filters []Filter
}

// NewChain creates a chain over the given filters.
func NewChain(fs ...Filter) *Chain {
	return &Chain{filters: fs}
}

// Evaluate runs the chain. All filters must pass for the event to pass.
func (c *Chain) Evaluate(ev *domain.EnrichedEvent) Result {
	for _, f := range c.filters {
		if v := f.Evaluate(ev); !v.Pass {
			return Result{Pass: false, FilterID: f.ID(), Reason: v.Reason}
		}
	}
	return Result{Pass: true}
}

// Len returns the number of filters in the chain.
func (c *Chain) Len() int {
	return len(c.filters)
}

// FromConfig builds the standard chain from configured thresholds. A zero
// threshold leaves that filter out; the holder-share filter in particular
// only joins when a positive ceiling is set.
func FromConfig(cfg config.FiltersConfig) *Chain {
	var fs []Filter
	if cfg.MinMarketCapUSD > 0 {
		fs = append(fs, NewMinMarketCap(cfg.MinMarketCapUSD))
	}
	if cfg.MinVolume1hUSD > 0 {
		fs = append(fs, NewMinVolume(cfg.MinVolume1hUSD))
	}
	if cfg.MaxAgeMins > 0 {
		fs = append(fs, NewMaxAge(float64(cfg.MaxAgeMins)))
	}
	if cfg.MaxTopHolderPct > 0 {
		fs = append(fs, NewMaxTopHolderShare(cfg.MaxTopHolderPct))
	}
	return NewChain(fs...)
}
