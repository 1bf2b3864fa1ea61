package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-launch-signals/internal/domain"
	"solana-launch-signals/internal/storage"
)

// SignalStore is an in-memory implementation of storage.SignalStore.
type SignalStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Signal // keyed by signal_id
}

// NewSignalStore creates a new in-memory signal store.
func NewSignalStore() *SignalStore {
	return &SignalStore{
		data: make(map[string]*domain.Signal),
	}
}

// Insert adds a new signal. Returns ErrDuplicateKey if signal_id exists.
func (s *SignalStore) Insert(_ context.Context, sig *domain.Signal) error {
	if sig == nil || sig.ID == "" || sig.TokenAddress == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[sig.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[sig.ID] = cloneSignal(sig)
	return nil
}

// InsertIfAbsent adds the signal unless the token already has a pending
// signal, or any signal created at or after dedupSince (ms).
func (s *SignalStore) InsertIfAbsent(_ context.Context, sig *domain.Signal, dedupSince int64) (bool, error) {
	if sig == nil || sig.ID == "" || sig.TokenAddress == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[sig.ID]; exists {
		return false, nil
	}
	for _, existing := range s.data {
		if existing.TokenAddress != sig.TokenAddress {
			continue
		}
		if existing.Status == domain.SignalPending || existing.CreatedAt >= dedupSince {
			return false, nil
		}
	}
	s.data[sig.ID] = cloneSignal(sig)
	return true, nil
}

// GetByID retrieves a signal by its ID. Returns ErrNotFound if not exists.
func (s *SignalStore) GetByID(_ context.Context, signalID string) (*domain.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sig, exists := s.data[signalID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneSignal(sig), nil
}

// GetOpenByToken retrieves the pending signal for a token.
func (s *SignalStore) GetOpenByToken(_ context.Context, tokenAddress string) (*domain.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.Signal
	for _, sig := range s.data {
		if sig.TokenAddress != tokenAddress || sig.Status != domain.SignalPending {
			continue
		}
		if found == nil || sig.CreatedAt > found.CreatedAt {
			found = sig
		}
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return cloneSignal(found), nil
}

// GetLatestByToken retrieves the most recently created signal for a token
// regardless of status.
func (s *SignalStore) GetLatestByToken(_ context.Context, tokenAddress string) (*domain.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.Signal
	for _, sig := range s.data {
		if sig.TokenAddress != tokenAddress {
			continue
		}
		if found == nil || sig.CreatedAt > found.CreatedAt {
			found = sig
		}
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return cloneSignal(found), nil
}

// Transition moves a signal from one status to another, writing outcome when
// non-nil. Returns false when the stored status no longer equals from.
func (s *SignalStore) Transition(_ context.Context, signalID string, from, to domain.SignalStatus, outcome *domain.SignalOutcome) (bool, error) {
	if signalID == "" || !from.IsValid() || !to.IsValid() {
		return false, storage.ErrInvalidInput
	}
	if from.IsTerminal() {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sig, exists := s.data[signalID]
	if !exists || sig.Status != from {
		return false, nil
	}

	sig.Status = to
	sig.UpdatedAt = time.Now().UnixMilli()
	if outcome != nil {
		sig.Outcome = cloneOutcome(outcome)
	}
	return true, nil
}

// ListRecent retrieves up to limit signals, newest first.
func (s *SignalStore) ListRecent(_ context.Context, limit int) ([]*domain.Signal, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*domain.Signal, 0, len(s.data))
	for _, sig := range s.data {
		all = append(all, sig)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt > all[j].CreatedAt
	})
	if len(all) > limit {
		all = all[:limit]
	}

	result := make([]*domain.Signal, len(all))
	for i, sig := range all {
		result[i] = cloneSignal(sig)
	}
	return result, nil
}

// ListPendingOlderThan retrieves pending signals created before cutoff (ms),
// oldest first.
func (s *SignalStore) ListPendingOlderThan(_ context.Context, cutoff int64) ([]*domain.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Signal
	for _, sig := range s.data {
		if sig.Status == domain.SignalPending && sig.CreatedAt < cutoff {
			result = append(result, cloneSignal(sig))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt < result[j].CreatedAt
	})
	return result, nil
}

// ListSignaledTokens retrieves the distinct token addresses of signals
// created at or after since (ms).
func (s *SignalStore) ListSignaledTokens(_ context.Context, since int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uniq := make(map[string]struct{})
	for _, sig := range s.data {
		if sig.CreatedAt >= since {
			uniq[sig.TokenAddress] = struct{}{}
		}
	}
	result := make([]string, 0, len(uniq))
	for token := range uniq {
		result = append(result, token)
	}
	sort.Strings(result)
	return result, nil
}

// Stats aggregates counts, win rate and PnL over all signals.
func (s *SignalStore) Stats(_ context.Context) (*domain.SignalStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.SignalStats{}
	var pnlSum float64
	var pnlCount int64
	for _, sig := range s.data {
		stats.Total++
		switch sig.Status {
		case domain.SignalPending:
			stats.Pending++
		case domain.SignalMigrated:
			stats.Migrated++
		case domain.SignalExpired:
			stats.Expired++
		}
		if sig.Status != domain.SignalMigrated || sig.Outcome == nil || sig.Outcome.RealizedPnLPct == nil {
			continue
		}
		pnl := *sig.Outcome.RealizedPnLPct
		if pnl > 0 {
			stats.Wins++
		}
		pnlSum += pnl
		if pnlCount == 0 || pnl > stats.BestPnLPct {
			stats.BestPnLPct = pnl
		}
		if pnlCount == 0 || pnl < stats.WorstPnLPct {
			stats.WorstPnLPct = pnl
		}
		pnlCount++
	}
	if stats.Migrated > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.Migrated) * 100
	}
	if pnlCount > 0 {
		stats.AvgPnLPct = pnlSum / float64(pnlCount)
	}
	return stats, nil
}

func cloneSignal(sig *domain.Signal) *domain.Signal {
	c := *sig
	c.EntryPriceUSD = copyFloatPtr(sig.EntryPriceUSD)
	c.MarketCapUSD = copyFloatPtr(sig.MarketCapUSD)
	c.Volume1hUSD = copyFloatPtr(sig.Volume1hUSD)
	c.AgeMinutes = copyFloatPtr(sig.AgeMinutes)
	c.PairAddress = copyStringPtr(sig.PairAddress)
	c.ChartURL = copyStringPtr(sig.ChartURL)
	c.Outcome = cloneOutcome(sig.Outcome)
	return &c
}

func cloneOutcome(o *domain.SignalOutcome) *domain.SignalOutcome {
	if o == nil {
		return nil
	}
	c := *o
	c.RealizedPnLPct = copyFloatPtr(o.RealizedPnLPct)
	return &c
}

func copyFloatPtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Verify interface compliance at compile time.
var _ storage.SignalStore = (*SignalStore)(nil)
