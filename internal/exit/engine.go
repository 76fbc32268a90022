// Package exit walks a candle series forward from an entry and decides how the
// position is closed: indicator exits, ladder targets, dynamic and trailing stops.
package exit

import (
	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/entry"
	"call-backtest-lab/internal/indicators"
)

// epsilon is the remaining-fraction threshold below which a position is closed.
const epsilon = 1e-9

// Fill is one partial or full sale.
type Fill struct {
	Index    int     // candle index
	Fraction float64 // of the original position
	Multiple float64 // fill price / entry price
	Reason   string
}

// Outcome is the result of one walk.
type Outcome struct {
	ExitIndex     int
	ExitTime      int64
	PnLMultiplier float64 // clamped to the floor
	MaxReached    float64
	Reason        string
	Fills         []Fill
	TargetsHit    int
}

// Engine applies one StrategyParams to candle walks.
// An Engine holds no per-walk state and is safe for concurrent use.
type Engine struct {
	params domain.StrategyParams
	floor  float64
}

// New creates an Engine for params. params must already be validated.
func New(params domain.StrategyParams) *Engine {
	return &Engine{
		params: params,
		floor:  params.FloorFraction(),
	}
}

// walk holds the mutable state of a single position.
type walk struct {
	entryPrice float64
	floorPrice float64
	remaining  float64
	realized   float64
	fired      []bool
	maxReached float64
	highest    float64
	staged     float64 // highest activated staged stop price
	out        *Outcome
}

func (w *walk) sell(i int, fraction, price float64, reason string) {
	multiple := price / w.entryPrice
	w.realized += fraction * multiple
	w.remaining -= fraction
	if w.remaining < epsilon {
		w.remaining = 0
	}
	w.out.Fills = append(w.out.Fills, Fill{Index: i, Fraction: fraction, Multiple: multiple, Reason: reason})
}

// stopFill is the price a stop at level gets on a candle whose first tradable
// price is first: the level when price trades down through it, first when the
// candle is already below it. Never below the floor.
func (w *walk) stopFill(level, first float64) float64 {
	return max(min(level, first), w.floorPrice)
}

// tradable returns the clamped range of candle i and its first tradable price.
// On the entry candle only the part after the entry counts.
func tradable(c domain.Candle, i int, at entry.Result) (hi, lo, first float64) {
	hi, lo = c.EffectiveRange()
	first = min(max(c.Open, lo), hi)
	if i != at.Index {
		return hi, lo, first
	}

	switch at.Timing {
	case entry.Intrabar:
		hi = min(hi, at.Price)
		lo = min(lo, at.Price)
		first = min(max(at.Price, lo), hi)
	case entry.AtClose:
		hi, lo, first = at.Price, at.Price, at.Price
	}
	return hi, lo, first
}

// Run walks candles from the entry to the end of the series.
// p must be built over the same candles; a nil p gets a fresh pipeline.
func (e *Engine) Run(candles []domain.Candle, p *indicators.Pipeline, at entry.Result) *Outcome {
	entryIndex, entryPrice := at.Index, at.Price
	if entryIndex < 0 || entryIndex >= len(candles) || entryPrice <= 0 {
		return &Outcome{ExitIndex: -1, PnLMultiplier: e.floor, MaxReached: 1.0, Reason: domain.ExitReasonEndOfData}
	}

	if p == nil {
		p = indicators.NewPipeline(candles)
	}

	w := &walk{
		entryPrice: entryPrice,
		floorPrice: entryPrice * e.floor,
		remaining:  1.0,
		fired:      make([]bool, len(e.params.Targets)),
		maxReached: 1.0,
		highest:    entryPrice,
		out:        &Outcome{ExitIndex: -1},
	}

	lastStop := entryPrice * (1 - e.params.Stop.LossPercent)

	for i := entryIndex; i < len(candles); i++ {
		hi, lo, first := tradable(candles[i], i, at)

		if m := hi / entryPrice; m > w.maxReached {
			w.maxReached = m
		}
		if hi > w.highest {
			w.highest = hi
		}

		cur := p.At(i)
		var prev indicators.Snapshot
		if i > 0 {
			prev = p.At(i - 1)
		}

		// 1. Indicator exit
		if sig := e.indicatorExit(i, candles, prev, cur); sig != "" {
			w.sell(i, w.remaining, max(lo, w.floorPrice), domain.ExitReasonIndicatorPrefix+sig)
			e.finish(w, candles, i, domain.ExitReasonIndicatorPrefix+sig)
			break
		}

		// 2. Ladder targets
		for k, target := range e.params.Targets {
			if w.fired[k] || w.remaining == 0 {
				continue
			}
			level := entryPrice * target.Multiple
			if hi >= level {
				w.sell(i, min(target.SellFraction, w.remaining), level, "target")
				w.fired[k] = true
				w.out.TargetsHit++
			}
		}
		if w.remaining == 0 {
			e.finish(w, candles, i, domain.ExitReasonTargetsComplete)
			break
		}

		// 3. Dynamic stop
		stop, reason := e.dynamicStop(w, cur)
		lastStop = stop
		if lo <= stop {
			w.sell(i, w.remaining, w.stopFill(stop, first), reason)
			e.finish(w, candles, i, reason)
			break
		}

		// 4. Trailing stop
		if tr := e.params.Trailing; tr != nil && e.trailingArmed(w) {
			trail := max(w.highest*(1-tr.TrailPercent), stop)
			if lo <= trail {
				w.sell(i, w.remaining, w.stopFill(trail, first), domain.ExitReasonTrailingStop)
				e.finish(w, candles, i, domain.ExitReasonTrailingStop)
				break
			}
		}
	}

	// 5. Series exhausted
	if w.out.ExitIndex < 0 {
		last := len(candles) - 1
		w.sell(last, w.remaining, max(candles[last].Close, lastStop), domain.ExitReasonEndOfData)
		e.finish(w, candles, last, domain.ExitReasonEndOfData)
	}

	w.out.MaxReached = w.maxReached
	w.out.PnLMultiplier = max(w.realized, e.floor)
	return w.out
}

func (e *Engine) finish(w *walk, candles []domain.Candle, i int, reason string) {
	w.out.ExitIndex = i
	w.out.ExitTime = candles[i].Timestamp
	w.out.Reason = reason
}

// dynamicStop returns the highest active stop price and the reason naming its source.
func (e *Engine) dynamicStop(w *walk, snap indicators.Snapshot) (float64, string) {
	cfg := e.params.Stop
	stop := w.entryPrice * (1 - cfg.LossPercent)
	reason := domain.ExitReasonStopLoss

	raise := func(level float64, r string) {
		if level > stop {
			stop, reason = level, r
		}
	}

	if snap.Ichimoku != nil {
		if cfg.UseKijun {
			raise(snap.Ichimoku.Kijun, domain.ExitReasonKijunStop)
		}
		if cfg.UseCloudBottom {
			raise(snap.Ichimoku.CloudBottom, domain.ExitReasonCloudStop)
		}
	}
	if cfg.UseSMA20 && snap.HasSMA20() {
		raise(snap.SMA20, domain.ExitReasonSMAStop)
	}

	// Staged stops latch once activated.
	for _, s := range cfg.Staged {
		if w.maxReached >= s.ActivationMultiple {
			w.staged = max(w.staged, w.entryPrice*s.StopFraction)
		}
	}
	raise(w.staged, domain.ExitReasonStagedStop)

	return stop, reason
}

// trailingArmed reports whether the trailing stop is active for this walk.
func (e *Engine) trailingArmed(w *walk) bool {
	tr := e.params.Trailing
	if w.maxReached < tr.ActivationMultiple {
		return false
	}
	if !tr.RequireTargetFill {
		return true
	}
	for _, fired := range w.fired {
		if fired {
			return true
		}
	}
	return false
}

// indicatorExit returns the first configured exit signal firing at candle i.
func (e *Engine) indicatorExit(i int, candles []domain.Candle, prev, cur indicators.Snapshot) string {
	closePrice := candles[i].Close
	for _, sig := range e.params.IndicatorExits {
		var hit bool
		switch sig {
		case domain.ExitSignalCloudCrossDown:
			hit = i > 0 && indicators.CloudCrossDown(prev, cur, candles[i-1].Close, closePrice)
		case domain.ExitSignalTenkanKijunCrossDown:
			hit = i > 0 && indicators.TenkanCrossDown(prev, cur)
		case domain.ExitSignalPriceBelowCloud:
			hit = cur.Ichimoku != nil && cur.Ichimoku.IsBearish
		case domain.ExitSignalPriceBelowSMA20:
			hit = cur.HasSMA20() && closePrice < cur.SMA20
		case domain.ExitSignalPriceBelowEMA20:
			hit = closePrice < cur.EMA20
		case domain.ExitSignalDeathCross:
			hit = i > 0 && indicators.DeathCross(prev, cur)
		}
		if hit {
			return sig
		}
	}
	return ""
}
