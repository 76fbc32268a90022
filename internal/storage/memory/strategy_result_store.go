package memory

import (
	"context"
	"sort"
	"sync"

	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/storage"
)

// StrategyResultStore is an in-memory implementation of storage.StrategyResultStore.
type StrategyResultStore struct {
	mu   sync.RWMutex
	data map[string]*domain.StrategyResult // keyed by strategy_id
}

// NewStrategyResultStore creates a new in-memory strategy result store.
func NewStrategyResultStore() *StrategyResultStore {
	return &StrategyResultStore{
		data: make(map[string]*domain.StrategyResult),
	}
}

// Insert adds a new result. Returns ErrDuplicateKey if strategy_id exists.
func (s *StrategyResultStore) Insert(_ context.Context, r *domain.StrategyResult) error {
	if r == nil || r.StrategyID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.StrategyID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *r
	s.data[r.StrategyID] = &copy
	return nil
}

// GetByID retrieves a result by strategy ID. Returns ErrNotFound if not exists.
func (s *StrategyResultStore) GetByID(_ context.Context, strategyID string) (*domain.StrategyResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[strategyID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *r
	return &copy, nil
}

// GetAll retrieves all results ordered by strategy_id ASC.
func (s *StrategyResultStore) GetAll(_ context.Context) ([]*domain.StrategyResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.StrategyResult, 0, len(s.data))
	for _, r := range s.data {
		copy := *r
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StrategyID < result[j].StrategyID
	})

	return result, nil
}

var _ storage.StrategyResultStore = (*StrategyResultStore)(nil)
