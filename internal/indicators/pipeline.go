package indicators

import (
	"iter"

	"call-backtest-lab/internal/domain"
)

// Pipeline produces one Snapshot per candle index, lazily and left to right.
// EMAs are incremental: snapshot i is derived from snapshot i-1.
// A Pipeline is not safe for concurrent use; each simulation owns its own.
type Pipeline struct {
	candles []domain.Candle
	snaps   []Snapshot
}

// NewPipeline creates a pipeline over candles. The slice is read, never modified.
func NewPipeline(candles []domain.Candle) *Pipeline {
	return &Pipeline{
		candles: candles,
		snaps:   make([]Snapshot, 0, len(candles)),
	}
}

// Len returns the number of candles in the series.
func (p *Pipeline) Len() int {
	return len(p.candles)
}

// At returns the snapshot at index i, computing any missing snapshots up to i.
// Returns a zero Snapshot when i is out of range.
func (p *Pipeline) At(i int) Snapshot {
	if i < 0 || i >= len(p.candles) {
		return Snapshot{}
	}
	for len(p.snaps) <= i {
		p.snaps = append(p.snaps, p.compute(len(p.snaps)))
	}
	return p.snaps[i]
}

// Reset discards computed snapshots so the sequence starts over.
func (p *Pipeline) Reset() {
	p.snaps = p.snaps[:0]
}

// All yields (index, snapshot) pairs from the start of the series.
func (p *Pipeline) All() iter.Seq2[int, Snapshot] {
	return func(yield func(int, Snapshot) bool) {
		for i := range p.candles {
			if !yield(i, p.At(i)) {
				return
			}
		}
	}
}

func (p *Pipeline) compute(i int) Snapshot {
	c := p.candles[i]
	var s Snapshot

	if i == 0 {
		s.EMA9, s.EMA20, s.EMA50 = c.Close, c.Close, c.Close
	} else {
		prev := p.snaps[i-1]
		s.EMA9 = emaStep(prev.EMA9, c.Close, EMAFast)
		s.EMA20 = emaStep(prev.EMA20, c.Close, EMAMedium)
		s.EMA50 = emaStep(prev.EMA50, c.Close, EMASlow)
	}

	if i+1 >= SMAWindow {
		s.SMA20 = smaAt(p.candles, i, SMAWindow)
	}

	if i+1 >= IchimokuWindow {
		s.Ichimoku = ichimokuAt(p.candles, i)
	}

	return s
}

// emaStep applies one EMA recurrence step with smoothing 2/(period+1).
func emaStep(prev, value float64, period int) float64 {
	alpha := 2.0 / float64(period+1)
	return alpha*value + (1-alpha)*prev
}

// smaAt returns the mean close over the window ending at end (inclusive).
func smaAt(candles []domain.Candle, end, window int) float64 {
	sum := 0.0
	for j := end - window + 1; j <= end; j++ {
		sum += candles[j].Close
	}
	return sum / float64(window)
}

// midpoint returns (highest high + lowest low) / 2 over the window ending at end.
func midpoint(candles []domain.Candle, end, window int) float64 {
	hi := candles[end].High
	lo := candles[end].Low
	for j := end - window + 1; j < end; j++ {
		if candles[j].High > hi {
			hi = candles[j].High
		}
		if candles[j].Low < lo {
			lo = candles[j].Low
		}
	}
	return (hi + lo) / 2
}

func ichimokuAt(candles []domain.Candle, i int) *Ichimoku {
	ich := &Ichimoku{
		Tenkan: midpoint(candles, i, TenkanWindow),
		Kijun:  midpoint(candles, i, KijunWindow),
		SpanB:  midpoint(candles, i, SpanBWindow),
	}
	ich.SpanA = (ich.Tenkan + ich.Kijun) / 2
	ich.CloudTop = max(ich.SpanA, ich.SpanB)
	ich.CloudBottom = min(ich.SpanA, ich.SpanB)

	closePrice := candles[i].Close
	ich.IsBullish = closePrice > ich.CloudTop
	ich.IsBearish = closePrice < ich.CloudBottom
	return ich
}
