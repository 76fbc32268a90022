package memory

import (
	"context"
	"sort"
	"sync"

	"call-backtest-lab/internal/storage"
)

// SweepProgressStore is an in-memory implementation of storage.SweepProgressStore.
type SweepProgressStore struct {
	mu   sync.RWMutex
	run  *storage.SweepRun
	done map[string]bool
}

// NewSweepProgressStore creates a new in-memory sweep progress store.
func NewSweepProgressStore() *SweepProgressStore {
	return &SweepProgressStore{
		done: make(map[string]bool),
	}
}

// GetLastRun returns the most recent sweep run.
func (s *SweepProgressStore) GetLastRun(_ context.Context) (*storage.SweepRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.run == nil {
		return nil, storage.ErrNotFound
	}

	run := *s.run
	return &run, nil
}

// SetLastRun saves the current sweep run.
func (s *SweepProgressStore) SetLastRun(_ context.Context, run *storage.SweepRun) error {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *run
	s.run = &copy
	return nil
}

// IsStrategyDone checks if a strategy's result has been persisted.
func (s *SweepProgressStore) IsStrategyDone(_ context.Context, strategyID string) (bool, error) {
	if strategyID == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.done[strategyID], nil
}

// MarkStrategyDone records that a strategy's result has been persisted.
func (s *SweepProgressStore) MarkStrategyDone(_ context.Context, strategyID string) error {
	if strategyID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.done[strategyID] = true
	return nil
}

// LoadDoneStrategies returns all completed strategy IDs, sorted.
func (s *SweepProgressStore) LoadDoneStrategies(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.done))
	for id := range s.done {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

var _ storage.SweepProgressStore = (*SweepProgressStore)(nil)
