package memory

import (
	"context"
	"sort"
	"sync"

	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/storage"
)

// TradeResultStore is an in-memory implementation of storage.TradeResultStore.
type TradeResultStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TradeResult // keyed by trade_id
}

// NewTradeResultStore creates a new in-memory trade result store.
func NewTradeResultStore() *TradeResultStore {
	return &TradeResultStore{
		data: make(map[string]*domain.TradeResult),
	}
}

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeResultStore) Insert(_ context.Context, t *domain.TradeResult) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.TradeID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *t
	s.data[t.TradeID] = &copy
	return nil
}

// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
func (s *TradeResultStore) InsertBulk(_ context.Context, trades []*domain.TradeResult) error {
	if len(trades) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(trades))

	// First pass: check for duplicates (existing + intra-batch)
	for _, t := range trades {
		if t == nil || t.TradeID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[t.TradeID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[t.TradeID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[t.TradeID] = struct{}{}
	}

	// Second pass: insert all
	for _, t := range trades {
		copy := *t
		s.data[t.TradeID] = &copy
	}

	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeResultStore) GetByID(_ context.Context, tradeID string) (*domain.TradeResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[tradeID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *t
	return &copy, nil
}

// GetByCallID retrieves all trades for a call, ordered by strategy_id ASC.
func (s *TradeResultStore) GetByCallID(_ context.Context, callID string) ([]*domain.TradeResult, error) {
	result := s.filter(func(t *domain.TradeResult) bool { return t.CallID == callID })
	sort.Slice(result, func(i, j int) bool {
		return result[i].StrategyID < result[j].StrategyID
	})
	return result, nil
}

// GetByStrategy retrieves all trades for a strategy, ordered by entry_time ASC, trade_id ASC.
func (s *TradeResultStore) GetByStrategy(_ context.Context, strategyID string) ([]*domain.TradeResult, error) {
	result := s.filter(func(t *domain.TradeResult) bool { return t.StrategyID == strategyID })
	sort.Slice(result, func(i, j int) bool {
		if result[i].EntryTime != result[j].EntryTime {
			return result[i].EntryTime < result[j].EntryTime
		}
		return result[i].TradeID < result[j].TradeID
	})
	return result, nil
}

func (s *TradeResultStore) filter(match func(*domain.TradeResult) bool) []*domain.TradeResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeResult
	for _, t := range s.data {
		if match(t) {
			copy := *t
			result = append(result, &copy)
		}
	}
	return result
}

var _ storage.TradeResultStore = (*TradeResultStore)(nil)
