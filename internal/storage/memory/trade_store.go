package memory

import (
	"context"
	"sort"
	"sync"

	"solana-launch-signals/internal/domain"
	"solana-launch-signals/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu     sync.RWMutex
	trades []*domain.TradeRecord
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{}
}

// InsertBatch appends a batch of trade records.
func (s *TradeStore) InsertBatch(_ context.Context, trades []*domain.TradeRecord) error {
	for _, t := range trades {
		if t == nil || t.TokenAddress == "" || t.TxSignature == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range trades {
		tCopy := *t
		s.trades = append(s.trades, &tCopy)
	}
	return nil
}

// GetByToken retrieves up to limit records for a token, newest first.
func (s *TradeStore) GetByToken(_ context.Context, tokenAddress string, limit int) ([]*domain.TradeRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeRecord
	for _, t := range s.trades {
		if t.TokenAddress == tokenAddress {
			tCopy := *t
			result = append(result, &tCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ObservedAt > result[j].ObservedAt
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Count returns the number of archived records.
func (s *TradeStore) Count(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return uint64(len(s.trades)), nil
}

// Verify interface compliance at compile time.
var _ storage.TradeStore = (*TradeStore)(nil)
