// Package indicators computes moving averages and Ichimoku Cloud values over a candle series.
package indicators

// Warm-up lengths (candles, inclusive of the current one).
const (
	SMAWindow      = 20
	TenkanWindow   = 9
	KijunWindow    = 26
	SpanBWindow    = 52
	IchimokuWindow = SpanBWindow
)

// EMA periods.
const (
	EMAFast   = 9
	EMAMedium = 20
	EMASlow   = 50
)

// Snapshot holds indicator values at one candle index.
type Snapshot struct {
	SMA20    float64   // 0 until SMAWindow candles exist
	EMA9     float64   // seeded with the first close
	EMA20    float64   // seeded with the first close
	EMA50    float64   // seeded with the first close
	Ichimoku *Ichimoku // nil until IchimokuWindow candles exist
}

// HasSMA20 reports whether SMA20 is warmed up.
func (s Snapshot) HasSMA20() bool {
	return s.SMA20 > 0
}

// Ichimoku holds Ichimoku Cloud values. Spans are not displaced forward:
// the cloud at index i is built from data up to i.
type Ichimoku struct {
	Tenkan      float64 // (highest high + lowest low) / 2 over 9
	Kijun       float64 // (highest high + lowest low) / 2 over 26
	SpanA       float64 // (tenkan + kijun) / 2
	SpanB       float64 // (highest high + lowest low) / 2 over 52
	CloudTop    float64
	CloudBottom float64
	IsBullish   bool // close above the cloud
	IsBearish   bool // close below the cloud
}
