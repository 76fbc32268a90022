package lookup

import (
	"errors"
	"sort"

	"call-backtest-lab/internal/domain"
)

// Errors returned by lookup functions.
var (
	ErrNoCandles = errors.New("no candle data available")
)

// IndexAtOrAfter returns the index of the first candle with Timestamp >= target,
// or -1 if every candle is earlier. Candles must be sorted ascending.
func IndexAtOrAfter(candles []domain.Candle, target int64) int {
	i := sort.Search(len(candles), func(i int) bool {
		return candles[i].Timestamp >= target
	})
	if i == len(candles) {
		return -1
	}
	return i
}

// IndexAtOrBefore returns the index of the last candle with Timestamp <= target,
// or -1 if every candle is later.
func IndexAtOrBefore(candles []domain.Candle, target int64) int {
	i := sort.Search(len(candles), func(i int) bool {
		return candles[i].Timestamp > target
	})
	return i - 1
}

// CloseAt returns the close at or before target.
// If no candle is at or before target, returns the first close.
// Returns ErrNoCandles if slice is empty.
func CloseAt(target int64, candles []domain.Candle) (float64, error) {
	if len(candles) == 0 {
		return 0, ErrNoCandles
	}

	i := IndexAtOrBefore(candles, target)
	if i < 0 {
		return candles[0].Close, nil
	}
	return candles[i].Close, nil
}
