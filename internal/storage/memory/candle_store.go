package memory

import (
	"context"
	"sort"
	"sync"

	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu     sync.RWMutex
	series map[domain.CandleKey]map[int64]domain.Candle // keyed by series, then timestamp
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		series: make(map[domain.CandleKey]map[int64]domain.Candle),
	}
}

// InsertBulk adds candles for one series. Fails entire batch on duplicate timestamp.
func (s *CandleStore) InsertBulk(_ context.Context, key domain.CandleKey, candles []domain.Candle) error {
	if key.Token == "" || key.IntervalSeconds <= 0 {
		return storage.ErrInvalidInput
	}
	if len(candles) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.series[key]
	batchKeys := make(map[int64]struct{}, len(candles))

	// First pass: check for duplicates (existing + intra-batch)
	for _, c := range candles {
		if _, exists := existing[c.Timestamp]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[c.Timestamp]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[c.Timestamp] = struct{}{}
	}

	if existing == nil {
		existing = make(map[int64]domain.Candle, len(candles))
		s.series[key] = existing
	}
	for _, c := range candles {
		existing[c.Timestamp] = c
	}
	return nil
}

// GetByTimeRange retrieves candles within [start, end] (inclusive), ordered by timestamp ASC.
func (s *CandleStore) GetByTimeRange(_ context.Context, key domain.CandleKey, start, end int64) ([]domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Candle
	for ts, c := range s.series[key] {
		if ts >= start && ts <= end {
			result = append(result, c)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})
	return result, nil
}

var _ storage.CandleStore = (*CandleStore)(nil)
