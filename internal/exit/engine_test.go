package exit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/entry"
	"call-backtest-lab/internal/indicators"
)

func bar(ts int64, o, h, l, c float64) domain.Candle {
	return domain.Candle{Timestamp: ts, Open: o, High: h, Low: l, Close: c, Volume: 100}
}

func run(params domain.StrategyParams, candles []domain.Candle) *Outcome {
	return New(params).Run(candles, indicators.NewPipeline(candles), entry.Result{Price: candles[0].Open})
}

// rising closes at 1 + 0.01*i with a 0.005 wick on each side.
func rising(n int) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := range out {
		c := 1 + 0.01*float64(i)
		out[i] = bar(int64(i*60), c, c+0.005, c-0.005, c)
	}
	return out
}

// peaked rises for 60 candles to 1.59 and then falls for 40.
func peaked() []domain.Candle {
	out := rising(100)
	for i := 60; i < len(out); i++ {
		c := 1.59 - 0.01*float64(i-59)
		out[i] = bar(int64(i*60), c, c+0.005, c-0.005, c)
	}
	return out
}

func soldFraction(o *Outcome) float64 {
	total := 0.0
	for _, f := range o.Fills {
		total += f.Fraction
	}
	return total
}

func TestEngine_TargetThenStop(t *testing.T) {
	params := domain.StrategyParams{
		Targets: []domain.LadderTarget{{Multiple: 1.2, SellFraction: 0.5}},
		Stop:    domain.StopConfig{LossPercent: 0.2},
	}
	candles := []domain.Candle{
		bar(0, 1.0, 1.25, 0.95, 1.1),
		bar(60, 1.1, 1.1, 0.75, 0.8),
	}

	out := run(params, candles)

	require.Len(t, out.Fills, 2)
	assert.InDelta(t, 1.2, out.Fills[0].Multiple, 1e-12)
	assert.InDelta(t, 0.5, out.Fills[0].Fraction, 1e-12)
	assert.InDelta(t, 0.8, out.Fills[1].Multiple, 1e-12)
	assert.InDelta(t, 1.0, out.PnLMultiplier, 1e-9)
	assert.InDelta(t, 1.25, out.MaxReached, 1e-12)
	assert.Equal(t, domain.ExitReasonStopLoss, out.Reason)
	assert.Equal(t, 1, out.ExitIndex)
	assert.Equal(t, int64(60), out.ExitTime)
	assert.Equal(t, 1, out.TargetsHit)
}

func TestEngine_SpikeDoesNotFireTargets(t *testing.T) {
	params := domain.StrategyParams{
		Targets: []domain.LadderTarget{{Multiple: 5, SellFraction: 1}},
		Stop:    domain.StopConfig{LossPercent: 0.5},
	}
	candles := []domain.Candle{
		bar(0, 1, 30, 0.95, 1.0),
		bar(60, 1, 1.02, 0.98, 1.0),
	}

	out := run(params, candles)

	assert.Equal(t, 0, out.TargetsHit)
	assert.InDelta(t, 1.05, out.MaxReached, 1e-12)
	assert.Equal(t, domain.ExitReasonEndOfData, out.Reason)
}

func TestEngine_AllTargetsComplete(t *testing.T) {
	params := domain.StrategyParams{
		Targets: []domain.LadderTarget{
			{Multiple: 1.5, SellFraction: 0.5},
			{Multiple: 2.0, SellFraction: 0.5},
		},
		Stop: domain.StopConfig{LossPercent: 0.3},
	}
	candles := []domain.Candle{
		bar(0, 1, 1.6, 0.9, 1.5),
		bar(60, 1.5, 2.2, 1.4, 2.1),
		bar(120, 2.1, 3.0, 2.0, 2.9),
	}

	out := run(params, candles)

	assert.Equal(t, domain.ExitReasonTargetsComplete, out.Reason)
	assert.Equal(t, 1, out.ExitIndex)
	assert.InDelta(t, 1.75, out.PnLMultiplier, 1e-9)
	assert.InDelta(t, 2.2, out.MaxReached, 1e-12, "walk stops at the terminal candle")
	assert.InDelta(t, 1.0, soldFraction(out), 1e-9)
}

func TestEngine_NeverOversells(t *testing.T) {
	params := domain.StrategyParams{
		Targets: []domain.LadderTarget{
			{Multiple: 1.2, SellFraction: 0.7},
			{Multiple: 1.5, SellFraction: 0.7},
			{Multiple: 1.8, SellFraction: 0.7},
		},
		Stop: domain.StopConfig{LossPercent: 0.2},
	}
	candles := []domain.Candle{
		bar(0, 1, 1.3, 0.95, 1.25),
		bar(60, 1.25, 1.6, 1.2, 1.55),
		bar(120, 1.55, 2.0, 1.5, 1.9),
	}

	out := run(params, candles)

	require.Len(t, out.Fills, 2)
	assert.InDelta(t, 0.7, out.Fills[0].Fraction, 1e-12)
	assert.InDelta(t, 0.3, out.Fills[1].Fraction, 1e-12)
	assert.InDelta(t, 1.0, soldFraction(out), 1e-9)
	assert.Equal(t, 2, out.TargetsHit)
	assert.InDelta(t, 0.7*1.2+0.3*1.5, out.PnLMultiplier, 1e-9)
}

func TestEngine_TargetsFireOnce(t *testing.T) {
	params := domain.StrategyParams{
		Targets: []domain.LadderTarget{{Multiple: 1.2, SellFraction: 0.25}},
		Stop:    domain.StopConfig{LossPercent: 0.5},
	}
	candles := []domain.Candle{
		bar(0, 1, 1.3, 0.95, 1.1),
		bar(60, 1.1, 1.3, 1.0, 1.1),
		bar(120, 1.1, 1.4, 1.0, 1.2),
	}

	out := run(params, candles)

	assert.Equal(t, 1, out.TargetsHit)
	require.Len(t, out.Fills, 2)
	assert.Equal(t, domain.ExitReasonEndOfData, out.Fills[1].Reason)
	assert.InDelta(t, 0.25*1.2+0.75*1.2, out.PnLMultiplier, 1e-9)
}

func TestEngine_TrailingStop(t *testing.T) {
	params := domain.StrategyParams{
		Stop:     domain.StopConfig{LossPercent: 0.2},
		Trailing: &domain.TrailingConfig{TrailPercent: 0.2, ActivationMultiple: 1.5},
	}
	candles := []domain.Candle{
		bar(0, 1, 1.4, 0.95, 1.3),
		bar(60, 1.3, 2.0, 1.7, 1.9),
		bar(120, 1.9, 1.95, 1.5, 1.55),
	}

	out := run(params, candles)

	assert.Equal(t, domain.ExitReasonTrailingStop, out.Reason)
	assert.Equal(t, 2, out.ExitIndex)
	assert.InDelta(t, 1.6, out.PnLMultiplier, 1e-9)
	assert.InDelta(t, 2.0, out.MaxReached, 1e-12)
}

func TestEngine_TrailingRequiresTargetFill(t *testing.T) {
	candles := []domain.Candle{
		bar(0, 1, 1.8, 1.5, 1.7),
		bar(60, 1.7, 1.75, 1.3, 1.35),
		bar(120, 1.35, 1.4, 1.3, 1.35),
	}

	base := domain.StrategyParams{
		Targets: []domain.LadderTarget{{Multiple: 2.0, SellFraction: 0.5}},
		Stop:    domain.StopConfig{LossPercent: 0.2},
	}

	t.Run("armed at activation", func(t *testing.T) {
		params := base
		params.Trailing = &domain.TrailingConfig{TrailPercent: 0.2, ActivationMultiple: 1.3}

		out := run(params, candles)

		assert.Equal(t, domain.ExitReasonTrailingStop, out.Reason)
		assert.InDelta(t, 1.44, out.PnLMultiplier, 1e-9)
	})

	t.Run("waits for a fired target", func(t *testing.T) {
		params := base
		params.Trailing = &domain.TrailingConfig{TrailPercent: 0.2, ActivationMultiple: 1.3, RequireTargetFill: true}

		out := run(params, candles)

		assert.Equal(t, domain.ExitReasonEndOfData, out.Reason)
		assert.InDelta(t, 1.35, out.PnLMultiplier, 1e-9)
	})
}

func TestEngine_StagedStopLatches(t *testing.T) {
	params := domain.StrategyParams{
		Stop: domain.StopConfig{
			LossPercent: 0.3,
			Staged:      []domain.StagedStop{{ActivationMultiple: 1.5, StopFraction: 1.2}},
		},
	}
	candles := []domain.Candle{
		bar(0, 1, 1.6, 1.3, 1.5),
		bar(60, 1.5, 1.5, 1.1, 1.15),
	}

	out := run(params, candles)

	assert.Equal(t, domain.ExitReasonStagedStop, out.Reason)
	assert.InDelta(t, 1.2, out.PnLMultiplier, 1e-9)
}

func TestEngine_SMA20Stop(t *testing.T) {
	candles := make([]domain.Candle, 25)
	for i := range candles {
		candles[i] = bar(int64(i*60), 1, 1.01, 0.99, 1)
	}
	params := domain.StrategyParams{
		Stop: domain.StopConfig{LossPercent: 0.2, UseSMA20: true},
	}

	out := run(params, candles)

	assert.Equal(t, domain.ExitReasonSMAStop, out.Reason)
	assert.Equal(t, indicators.SMAWindow-1, out.ExitIndex)
	assert.InDelta(t, 1.0, out.PnLMultiplier, 1e-9)
}

func TestEngine_IndicatorExit(t *testing.T) {
	params := domain.StrategyParams{
		Stop:           domain.StopConfig{LossPercent: 0.2},
		IndicatorExits: []string{domain.ExitSignalPriceBelowEMA20},
	}
	candles := []domain.Candle{
		bar(0, 1, 1.05, 0.95, 1),
		bar(60, 1, 1.3, 1.0, 1.25),
		bar(120, 1.25, 1.26, 0.9, 0.92),
	}

	out := run(params, candles)

	assert.Equal(t, domain.ExitReasonIndicatorPrefix+domain.ExitSignalPriceBelowEMA20, out.Reason)
	assert.Equal(t, 2, out.ExitIndex)
	assert.InDelta(t, 0.9, out.PnLMultiplier, 1e-9)
}

func TestEngine_IndicatorExitFloored(t *testing.T) {
	params := domain.StrategyParams{
		Stop:           domain.StopConfig{LossPercent: 0.5},
		MinExitPrice:   0.85,
		IndicatorExits: []string{domain.ExitSignalPriceBelowEMA20},
	}
	candles := []domain.Candle{
		bar(0, 1, 1.05, 0.95, 1),
		bar(60, 1, 1.02, 0.6, 0.7),
	}

	out := run(params, candles)

	require.Len(t, out.Fills, 1)
	assert.InDelta(t, 0.85, out.Fills[0].Multiple, 1e-12)
	assert.InDelta(t, 0.85, out.PnLMultiplier, 1e-9)
}

func TestEngine_FloorInvariant(t *testing.T) {
	tests := []struct {
		name   string
		params domain.StrategyParams
		floor  float64
	}{
		{
			name:   "stop dominates",
			params: domain.StrategyParams{Stop: domain.StopConfig{LossPercent: 0.2}, MinExitPrice: 0.5},
			floor:  0.8,
		},
		{
			name:   "min exit dominates",
			params: domain.StrategyParams{Stop: domain.StopConfig{LossPercent: 0.6}, MinExitPrice: 0.9},
			floor:  0.9,
		},
	}

	candles := []domain.Candle{
		bar(0, 1, 1.0, 0.98, 0.99),
		bar(60, 0.99, 0.99, 0.3, 0.31),
		bar(120, 0.31, 0.32, 0.2, 0.25),
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := run(tt.params, candles)
			assert.GreaterOrEqual(t, out.PnLMultiplier, tt.floor-1e-12)
			assert.InDelta(t, 1.0, soldFraction(out), 1e-9)
		})
	}
}

func TestEngine_EndOfData(t *testing.T) {
	params := domain.StrategyParams{Stop: domain.StopConfig{LossPercent: 0.5}}
	candles := []domain.Candle{
		bar(0, 1, 1.1, 0.9, 1.0),
		bar(60, 1.0, 1.2, 0.95, 1.15),
	}

	out := run(params, candles)

	assert.Equal(t, domain.ExitReasonEndOfData, out.Reason)
	assert.Equal(t, 1, out.ExitIndex)
	assert.InDelta(t, 1.15, out.PnLMultiplier, 1e-9)
}

func TestEngine_MonotonicPeak(t *testing.T) {
	closes := []float64{1.0, 1.3, 0.9, 1.6, 1.2, 1.1, 1.8, 1.4, 1.0, 1.5}
	candles := make([]domain.Candle, len(closes))
	for i, c := range closes {
		candles[i] = bar(int64(i*60), c, c*1.05, c*0.97, c)
	}
	params := domain.StrategyParams{Stop: domain.StopConfig{LossPercent: 0.9}}

	// Extending the series one candle at a time never lowers the peak.
	prev := 1.0
	for n := 1; n <= len(candles); n++ {
		out := run(params, candles[:n])
		assert.GreaterOrEqual(t, out.MaxReached, prev, "peak decreased at %d candles", n)
		assert.InDelta(t, max(prev, closes[n-1]*1.05), out.MaxReached, 1e-12)
		prev = out.MaxReached
	}
	assert.InDelta(t, 1.8*1.05, prev, 1e-12)
}

func TestEngine_PeakAtLeastOne(t *testing.T) {
	params := domain.StrategyParams{Stop: domain.StopConfig{LossPercent: 0.5}}
	candles := []domain.Candle{
		bar(0, 1, 0.99, 0.9, 0.95),
		bar(60, 0.95, 0.96, 0.8, 0.85),
	}

	out := run(params, candles)

	assert.Equal(t, 1.0, out.MaxReached)
}

func TestEngine_Deterministic(t *testing.T) {
	params := domain.StrategyParams{
		Targets:  []domain.LadderTarget{{Multiple: 1.3, SellFraction: 0.3}, {Multiple: 1.6, SellFraction: 0.3}},
		Stop:     domain.StopConfig{LossPercent: 0.25, Staged: []domain.StagedStop{{ActivationMultiple: 1.4, StopFraction: 1.1}}},
		Trailing: &domain.TrailingConfig{TrailPercent: 0.15, ActivationMultiple: 1.5},
	}
	candles := make([]domain.Candle, 40)
	for i := range candles {
		c := 1 + 0.05*float64(i%11) - 0.02*float64(i%7)
		candles[i] = bar(int64(i*300), c, c*1.04, c*0.96, c)
	}

	first := run(params, candles)
	second := run(params, candles)

	assert.Equal(t, first, second)
}

func TestEngine_EntryOutOfRange(t *testing.T) {
	params := domain.StrategyParams{Stop: domain.StopConfig{LossPercent: 0.2}}

	out := New(params).Run(nil, nil, entry.Result{Price: 1.0})

	assert.Equal(t, -1, out.ExitIndex)
	assert.InDelta(t, 0.8, out.PnLMultiplier, 1e-12)
	assert.Equal(t, 1.0, out.MaxReached)
}

func TestEngine_StopAboveCandleFillsAtOpen(t *testing.T) {
	candles := make([]domain.Candle, 0, 22)
	for i := range 20 {
		candles = append(candles, bar(int64(i*60), 2, 2, 2, 2))
	}
	candles = append(candles,
		bar(1200, 1.0, 1.02, 0.98, 1.0),
		bar(1260, 1.0, 1.01, 0.99, 1.0),
	)
	params := domain.StrategyParams{Stop: domain.StopConfig{LossPercent: 0.2, UseSMA20: true}}

	// SMA20 is 1.95 at the entry candle, far above anything it trades.
	out := New(params).Run(candles, nil, entry.Result{Index: 20, Price: 1.0, Time: 1200})

	assert.Equal(t, domain.ExitReasonSMAStop, out.Reason)
	assert.Equal(t, 20, out.ExitIndex)
	assert.InDelta(t, 1.0, out.PnLMultiplier, 1e-12)
	assert.InDelta(t, 1.02, out.MaxReached, 1e-12)
	assert.LessOrEqual(t, out.PnLMultiplier, out.MaxReached)
}

func TestEngine_TrailingGapFillsAtOpen(t *testing.T) {
	params := domain.StrategyParams{
		Stop:     domain.StopConfig{LossPercent: 0.2},
		Trailing: &domain.TrailingConfig{TrailPercent: 0.2, ActivationMultiple: 1.5},
	}
	candles := []domain.Candle{
		bar(0, 1, 1.1, 0.95, 1.05),
		bar(60, 1.05, 2.0, 1.7, 1.9),
		bar(120, 1.2, 1.25, 1.1, 1.15), // opens below the 1.6 trail
	}

	out := run(params, candles)

	assert.Equal(t, domain.ExitReasonTrailingStop, out.Reason)
	assert.Equal(t, 2, out.ExitIndex)
	assert.InDelta(t, 1.2, out.PnLMultiplier, 1e-9)
}

func TestEngine_EntryCandleAfterEntryOnly(t *testing.T) {
	candles := []domain.Candle{
		bar(0, 1.0, 1.3, 0.65, 0.72), // high printed before the entry
		bar(60, 0.72, 0.73, 0.71, 0.72),
	}
	params := domain.StrategyParams{
		Targets: []domain.LadderTarget{{Multiple: 1.5, SellFraction: 1}},
		Stop:    domain.StopConfig{LossPercent: 0.3},
	}

	tests := []struct {
		name  string
		entry entry.Result
	}{
		{"intrabar dip", entry.Result{Price: 0.7, Timing: entry.Intrabar}},
		{"at close", entry.Result{Price: 0.72, Timing: entry.AtClose}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := New(params).Run(candles, nil, tt.entry)

			assert.Equal(t, 0, out.TargetsHit)
			assert.Equal(t, domain.ExitReasonEndOfData, out.Reason)
			assert.InDelta(t, 0.73/tt.entry.Price, out.MaxReached, 1e-12)
			assert.InDelta(t, 0.72/tt.entry.Price, out.PnLMultiplier, 1e-12)
		})
	}

	t.Run("at open sees the whole candle", func(t *testing.T) {
		out := New(params).Run(candles, nil, entry.Result{Price: 0.7})
		assert.Equal(t, 1, out.TargetsHit)
		assert.Equal(t, domain.ExitReasonTargetsComplete, out.Reason)
	})
}

func TestEngine_IchimokuStops(t *testing.T) {
	tests := []struct {
		name      string
		stop      domain.StopConfig
		drop      domain.Candle
		wantFill  float64
		wantCause string
	}{
		{
			name:      "kijun",
			stop:      domain.StopConfig{LossPercent: 0.5, UseKijun: true},
			drop:      bar(52*60, 1.51, 1.515, 1.30, 1.32),
			wantFill:  1.39, // (1.515 + 1.265) / 2 over candles 27..52
			wantCause: domain.ExitReasonKijunStop,
		},
		{
			name:      "cloud bottom",
			stop:      domain.StopConfig{LossPercent: 0.5, UseCloudBottom: true},
			drop:      bar(52*60, 1.51, 1.515, 1.20, 1.22),
			wantFill:  1.26, // span B (1.515 + 1.005) / 2 under span A 1.3575
			wantCause: domain.ExitReasonCloudStop,
		},
		{
			name:      "highest source wins",
			stop:      domain.StopConfig{LossPercent: 0.5, UseKijun: true, UseCloudBottom: true},
			drop:      bar(52*60, 1.51, 1.515, 1.20, 1.22),
			wantFill:  1.3575,
			wantCause: domain.ExitReasonKijunStop,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candles := append(rising(52), tt.drop)

			out := run(domain.StrategyParams{Stop: tt.stop}, candles)

			assert.Equal(t, tt.wantCause, out.Reason)
			assert.Equal(t, 52, out.ExitIndex)
			require.Len(t, out.Fills, 1)
			assert.InDelta(t, tt.wantFill, out.Fills[0].Multiple, 1e-9)
			assert.InDelta(t, 1.515, out.MaxReached, 1e-9)
		})
	}
}

func TestEngine_IndicatorExitSignals(t *testing.T) {
	candles := peaked()
	p := indicators.NewPipeline(candles)

	tests := []struct {
		signal string
		fires  func(i int) bool
	}{
		{domain.ExitSignalCloudCrossDown, func(i int) bool {
			return i > 0 && indicators.CloudCrossDown(p.At(i-1), p.At(i), candles[i-1].Close, candles[i].Close)
		}},
		{domain.ExitSignalTenkanKijunCrossDown, func(i int) bool {
			return i > 0 && indicators.TenkanCrossDown(p.At(i-1), p.At(i))
		}},
		{domain.ExitSignalPriceBelowCloud, func(i int) bool {
			ich := p.At(i).Ichimoku
			return ich != nil && ich.IsBearish
		}},
		{domain.ExitSignalDeathCross, func(i int) bool {
			return i > 0 && indicators.DeathCross(p.At(i-1), p.At(i))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.signal, func(t *testing.T) {
			want := -1
			for i := range candles {
				if tt.fires(i) {
					want = i
					break
				}
			}
			require.Greater(t, want, 59, "signal must first fire after the peak")

			params := domain.StrategyParams{
				Stop:           domain.StopConfig{LossPercent: 0.5},
				IndicatorExits: []string{tt.signal},
			}
			out := run(params, candles)

			assert.Equal(t, domain.ExitReasonIndicatorPrefix+tt.signal, out.Reason)
			assert.Equal(t, want, out.ExitIndex)
			require.Len(t, out.Fills, 1)
			assert.InDelta(t, candles[want].Low, out.Fills[0].Multiple, 1e-12)
		})
	}
}

func TestEngine_IndicatorExitBeforeTargets(t *testing.T) {
	// Candle 52 spikes through the target and closes below both SMA20 and the cloud.
	candles := append(rising(52), bar(52*60, 1.51, 1.70, 1.20, 1.22))
	targets := []domain.LadderTarget{{Multiple: 1.65, SellFraction: 1}}

	tests := []struct {
		name       string
		exits      []string
		wantReason string
		wantHits   int
		wantPnL    float64
	}{
		{
			name:       "first configured signal wins",
			exits:      []string{domain.ExitSignalPriceBelowSMA20, domain.ExitSignalPriceBelowCloud},
			wantReason: domain.ExitReasonIndicatorPrefix + domain.ExitSignalPriceBelowSMA20,
			wantPnL:    1.20,
		},
		{
			name:       "order follows configuration",
			exits:      []string{domain.ExitSignalPriceBelowCloud, domain.ExitSignalPriceBelowSMA20},
			wantReason: domain.ExitReasonIndicatorPrefix + domain.ExitSignalPriceBelowCloud,
			wantPnL:    1.20,
		},
		{
			name:       "target fires without indicator exits",
			wantReason: domain.ExitReasonTargetsComplete,
			wantHits:   1,
			wantPnL:    1.65,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := domain.StrategyParams{
				Targets:        targets,
				Stop:           domain.StopConfig{LossPercent: 0.5},
				IndicatorExits: tt.exits,
			}

			out := run(params, candles)

			assert.Equal(t, tt.wantReason, out.Reason)
			assert.Equal(t, 52, out.ExitIndex)
			assert.Equal(t, tt.wantHits, out.TargetsHit)
			assert.InDelta(t, tt.wantPnL, out.PnLMultiplier, 1e-9)
		})
	}
}

func TestEngine_PnLNeverExceedsPeak(t *testing.T) {
	params := domain.StrategyParams{
		Targets:  []domain.LadderTarget{{Multiple: 1.3, SellFraction: 0.5}},
		Stop:     domain.StopConfig{LossPercent: 0.3, UseKijun: true, UseCloudBottom: true, UseSMA20: true},
		Trailing: &domain.TrailingConfig{TrailPercent: 0.1, ActivationMultiple: 1.2},
	}
	candles := peaked()

	for start := 0; start < len(candles); start += 7 {
		out := New(params).Run(candles, nil, entry.Result{Index: start, Price: candles[start].Open})
		for _, f := range out.Fills {
			assert.LessOrEqual(t, f.Multiple, out.MaxReached+1e-12, "entry %d", start)
		}
		assert.LessOrEqual(t, out.PnLMultiplier, out.MaxReached+1e-12, "entry %d", start)
	}
}
