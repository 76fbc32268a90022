package filter

import "call-backtest-lab/internal/domain"

// Market cap estimator defaults.
const (
	DefaultEstimatorWindow     = 60
	DefaultEstimatorMultiplier = 100.0
)

// MarketCapEstimator estimates a token's market cap from its candles.
// ok is false when no estimate can be made.
type MarketCapEstimator interface {
	Estimate(candles []domain.Candle) (capUSD float64, ok bool)
}

// VolumePriceEstimator approximates market cap as avgVolume × avgPrice × Multiplier
// over the first Window candles. It is a rough proxy, not a supply-based figure.
// The main series starts at the alert bar, so the window is post-alert volume.
type VolumePriceEstimator struct {
	Window     int     // candles averaged, 0 = DefaultEstimatorWindow
	Multiplier float64 // 0 = DefaultEstimatorMultiplier
}

// Estimate implements MarketCapEstimator.
func (e VolumePriceEstimator) Estimate(candles []domain.Candle) (float64, bool) {
	window := e.Window
	if window <= 0 {
		window = DefaultEstimatorWindow
	}
	mult := e.Multiplier
	if mult <= 0 {
		mult = DefaultEstimatorMultiplier
	}

	n := min(window, len(candles))
	if n == 0 {
		return 0, false
	}

	var volSum, priceSum float64
	for _, c := range candles[:n] {
		volSum += c.Volume
		priceSum += c.Close
	}
	avgVol, avgPrice := volSum/float64(n), priceSum/float64(n)
	if avgVol <= 0 || avgPrice <= 0 {
		return 0, false
	}
	return avgVol * avgPrice * mult, true
}

// FixedEstimator returns the same estimate for every series.
type FixedEstimator float64

// Estimate implements MarketCapEstimator.
func (f FixedEstimator) Estimate([]domain.Candle) (float64, bool) {
	return float64(f), f > 0
}

var (
	_ MarketCapEstimator = VolumePriceEstimator{}
	_ MarketCapEstimator = FixedEstimator(0)
)
