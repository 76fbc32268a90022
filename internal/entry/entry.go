// Package entry locates the candle at which a position opens.
package entry

import (
	"errors"
	"fmt"

	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/indicators"
	"call-backtest-lab/internal/lookup"
)

// DefaultConfirmationWindow bounds the bounce lookahead after a dip, in candles.
const DefaultConfirmationWindow = 60

// Resolver errors
var (
	ErrNoCandles     = errors.New("no candles")
	ErrUnknownMode   = errors.New("unknown entry mode")
	ErrUnknownSignal = errors.New("unknown entry signal")
)

// Failed is returned when the entry condition never fires.
// Reason is one of the domain.EntryFail* values.
type Failed struct {
	Reason string
}

func (e *Failed) Error() string {
	return "entry failed: " + e.Reason
}

// Timing places the entry price inside the entry candle.
type Timing int

const (
	AtOpen   Timing = iota // the whole candle trades after the entry
	Intrabar               // price reached inside the candle; its high may predate the entry
	AtClose                // nothing of the candle trades after the entry
)

// Result is where and at what price the position opened.
type Result struct {
	Index  int
	Price  float64
	Time   int64 // unix seconds
	Timing Timing
}

// Resolve finds the entry for call on candles under cfg.
// Returns *Failed when the configured condition never fires; it never falls back to index 0.
func Resolve(cfg domain.EntryConfig, call *domain.Call, candles []domain.Candle, p *indicators.Pipeline) (*Result, error) {
	if len(candles) == 0 {
		return nil, ErrNoCandles
	}

	switch cfg.Mode {
	case domain.EntryModeImmediate, "":
		return at(candles, 0, alertPrice(call, candles), AtOpen), nil
	case domain.EntryModeDelayed:
		return resolveDelayed(cfg, call, candles)
	case domain.EntryModeDipWait:
		return resolveDip(cfg, call, candles)
	case domain.EntryModeIndicator:
		return resolveIndicator(cfg, candles, p)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, cfg.Mode)
	}
}

// alertPrice is the quoted alert price, or the first open when none was quoted.
func alertPrice(call *domain.Call, candles []domain.Candle) float64 {
	if call != nil && call.AlertPrice > 0 {
		return call.AlertPrice
	}
	return candles[0].Open
}

func at(candles []domain.Candle, i int, price float64, timing Timing) *Result {
	return &Result{Index: i, Price: price, Time: candles[i].Timestamp, Timing: timing}
}

func resolveDelayed(cfg domain.EntryConfig, call *domain.Call, candles []domain.Candle) (*Result, error) {
	start := candles[0].Timestamp
	if call != nil && call.AlertTime > 0 {
		start = call.AlertTime
	}
	target := start + int64(cfg.DelayMinutes)*60

	i := lookup.IndexAtOrAfter(candles, target)
	if i < 0 {
		return nil, &Failed{Reason: domain.EntryFailNeverTriggered}
	}
	return at(candles, i, candles[i].Open, AtOpen), nil
}

func resolveDip(cfg domain.EntryConfig, call *domain.Call, candles []domain.Candle) (*Result, error) {
	dipPrice := alertPrice(call, candles) * (1 - cfg.DipPercent)

	dip := -1
	for i, c := range candles {
		if _, lo := c.EffectiveRange(); lo <= dipPrice {
			dip = i
			break
		}
	}
	if dip < 0 {
		return nil, &Failed{Reason: domain.EntryFailNoDip}
	}

	if cfg.DipConfirmation <= 0 {
		return at(candles, dip, dipPrice, Intrabar), nil
	}

	window := cfg.ConfirmationWindow
	if window <= 0 {
		window = DefaultConfirmationWindow
	}
	level := dipPrice * (1 + cfg.DipConfirmation)
	last := min(dip+window, len(candles)-1)
	for j := dip + 1; j <= last; j++ {
		if hi, _ := candles[j].EffectiveRange(); hi >= level {
			return at(candles, j, level, Intrabar), nil
		}
	}
	return nil, &Failed{Reason: domain.EntryFailNoConfirmation}
}

func resolveIndicator(cfg domain.EntryConfig, candles []domain.Candle, p *indicators.Pipeline) (*Result, error) {
	if p == nil {
		p = indicators.NewPipeline(candles)
	}

	warmup, err := SignalWarmup(cfg.Signal)
	if err != nil {
		return nil, err
	}

	for i := max(warmup, 1); i < len(candles); i++ {
		prev, cur := p.At(i-1), p.At(i)
		if fires(cfg.Signal, prev, cur, candles[i-1].Close, candles[i].Close) {
			return at(candles, i, candles[i].Close, AtClose), nil
		}
	}
	return nil, &Failed{Reason: domain.EntryFailNeverTriggered}
}

// SignalWarmup returns the first candle index at which signal can be evaluated.
func SignalWarmup(signal string) (int, error) {
	switch signal {
	case domain.EntrySignalTenkanKijunCross, domain.EntrySignalCloudCross, domain.EntrySignalPriceAboveCloud:
		return indicators.IchimokuWindow, nil
	case domain.EntrySignalEMAGoldenCross:
		return indicators.EMAMedium, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownSignal, signal)
	}
}

func fires(signal string, prev, cur indicators.Snapshot, prevClose, curClose float64) bool {
	switch signal {
	case domain.EntrySignalTenkanKijunCross:
		return indicators.TenkanCrossUp(prev, cur)
	case domain.EntrySignalCloudCross:
		return indicators.CloudCrossUp(prev, cur, prevClose, curClose)
	case domain.EntrySignalPriceAboveCloud:
		return cur.Ichimoku != nil && cur.Ichimoku.IsBullish
	case domain.EntrySignalEMAGoldenCross:
		return indicators.GoldenCross(prev, cur)
	}
	return false
}
