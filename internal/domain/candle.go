package domain

// Candle is one OHLCV bar. Series are ordered ascending by Timestamp.
type Candle struct {
	Timestamp int64   `json:"timestamp"` // bar open time (unix seconds)
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// CandleKey identifies a stored candle series.
// Corresponds to the candles table in ClickHouse.
type CandleKey struct {
	Chain           string // chain name, lower case
	Token           string // token address
	IntervalSeconds int    // bar width: 60, 300, 900, 3600
}

// Supported candle intervals (in seconds)
const (
	CandleInterval1Min  = 60
	CandleInterval5Min  = 300
	CandleInterval15Min = 900
	CandleInterval1Hour = 3600
)

// Spike clamp thresholds.
const (
	spikeHighRatio = 10.0
	spikeLowRatio  = 0.1
	spikeHighCap   = 1.05
	spikeLowCap    = 0.95
)

// EffectiveRange returns the high and low after spike clamping:
// a high more than 10x the close becomes close*1.05 and a low under 0.1x
// the close becomes close*0.95. Entry and exit decisions both read this range.
func (c Candle) EffectiveRange() (high, low float64) {
	high, low = c.High, c.Low
	if c.Close <= 0 {
		return high, low
	}
	if high/c.Close > spikeHighRatio {
		high = c.Close * spikeHighCap
	}
	if low/c.Close < spikeLowRatio {
		low = c.Close * spikeLowCap
	}
	return high, low
}
