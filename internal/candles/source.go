// Package candles supplies candle series to the simulator. Data-source
// behavior (window, interval, cache, rate limit) is explicit Options; nothing
// is read from the process environment.
package candles

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/storage"
)

// Source returns the candles of one series within [start, end], ascending.
type Source interface {
	Series(ctx context.Context, key domain.CandleKey, start, end int64) ([]domain.Candle, error)
}

// StoreSource reads series from a CandleStore, optionally rate limited.
type StoreSource struct {
	store   storage.CandleStore
	limiter *rate.Limiter
}

// NewStoreSource creates a StoreSource. ratePerSec <= 0 disables limiting.
func NewStoreSource(store storage.CandleStore, ratePerSec float64, burst int) *StoreSource {
	s := &StoreSource{store: store}
	if ratePerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(ratePerSec), max(burst, 1))
	}
	return s
}

// Series implements Source.
func (s *StoreSource) Series(ctx context.Context, key domain.CandleKey, start, end int64) ([]domain.Candle, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}
	candles, err := s.store.GetByTimeRange(ctx, key, start, end)
	if err != nil {
		return nil, fmt.Errorf("load candles %s/%s@%ds: %w", key.Chain, key.Token, key.IntervalSeconds, err)
	}
	return candles, nil
}

var _ Source = (*StoreSource)(nil)
