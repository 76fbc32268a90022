package metrics

import (
	"math"
	"sort"

	"call-backtest-lab/internal/domain"
)

// ProfitFactorNoLosses is reported when there are wins but no losses.
const ProfitFactorNoLosses = 999.0

const secondsPerYear = 365.25 * 24 * 3600

// computeFromTrades calculates trade statistics from simulated trades.
// Trades are sorted by EntryTime ASC, TradeID ASC before computing
// order-dependent metrics (MaxConsecutiveLosses, annualization span).
// Returns are pnl - 1.
func computeFromTrades(trades []*domain.TradeResult) *domain.StrategyResult {
	n := len(trades)
	if n == 0 {
		return &domain.StrategyResult{}
	}

	// Sort trades deterministically by EntryTime ASC, TradeID ASC
	sortedTrades := make([]*domain.TradeResult, n)
	copy(sortedTrades, trades)
	sort.Slice(sortedTrades, func(i, j int) bool {
		if sortedTrades[i].EntryTime != sortedTrades[j].EntryTime {
			return sortedTrades[i].EntryTime < sortedTrades[j].EntryTime
		}
		return sortedTrades[i].TradeID < sortedTrades[j].TradeID
	})

	returns := make([]float64, n)
	var (
		wins, losses    int
		winSum, lossSum float64
		holdSum         float64
	)
	for i, t := range sortedTrades {
		r := t.PnLMultiplier - 1
		returns[i] = r
		holdSum += t.HoldDurationMinutes
		if t.IsWin() {
			wins++
			winSum += r
		} else {
			losses++
			lossSum += -r
		}
	}

	sortedReturns := make([]float64, n)
	copy(sortedReturns, returns)
	sort.Float64s(sortedReturns)

	mean := computeMean(returns)
	stddev := computeStddev(returns, mean)
	sharpe := computeSharpe(mean, stddev)
	span := sortedTrades[n-1].EntryTime - sortedTrades[0].EntryTime

	return &domain.StrategyResult{
		Wins:         wins,
		Losses:       losses,
		WinRate:      computeWinRate(wins, n),
		AvgWin:       safeDiv(winSum, float64(wins)),
		AvgLoss:      safeDiv(lossSum, float64(losses)),
		ProfitFactor: computeProfitFactor(winSum, lossSum),

		OutcomeMean:   mean,
		OutcomeMedian: computePercentile(sortedReturns, 0.50),
		OutcomeP10:    computePercentile(sortedReturns, 0.10),
		OutcomeP90:    computePercentile(sortedReturns, 0.90),
		OutcomeStddev: stddev,

		Sharpe:               sharpe,
		AnnualizedSharpe:     annualizeSharpe(sharpe, n, span),
		MaxConsecutiveLosses: computeMaxConsecutiveLosses(sortedTrades),
		AvgHoldMinutes:       holdSum / float64(n),
	}
}

// computeWinRate calculates win rate as wins / total.
func computeWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// computeProfitFactor returns Σwins / Σlosses (both positive).
// No losses: ProfitFactorNoLosses if anything was won, else 0.
func computeProfitFactor(winSum, lossSum float64) float64 {
	if lossSum == 0 {
		if winSum > 0 {
			return ProfitFactorNoLosses
		}
		return 0
	}
	return winSum / lossSum
}

// computeMean calculates arithmetic mean of outcomes.
func computeMean(outcomes []float64) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	sum := 0.0
	for _, o := range outcomes {
		sum += o
	}
	return sum / float64(len(outcomes))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(outcomes []float64, mean float64) float64 {
	n := len(outcomes)
	if n < 2 {
		return 0 // Need at least 2 samples for sample stddev
	}
	sumSq := 0.0
	for _, o := range outcomes {
		diff := o - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computeSharpe returns mean / stddev, 0 when stddev is 0.
func computeSharpe(mean, stddev float64) float64 {
	return safeDiv(mean, stddev)
}

// annualizeSharpe scales a per-trade Sharpe by sqrt(trades per year) over the
// observed entry span. Returns 0 when the span is empty.
func annualizeSharpe(sharpe float64, trades int, spanSeconds int64) float64 {
	if spanSeconds <= 0 || trades < 2 {
		return 0
	}
	perYear := float64(trades) / (float64(spanSeconds) / secondsPerYear)
	return sharpe * math.Sqrt(perYear)
}

// computeRiskAdjustedScore returns compoundGrowth / stddev.
// Falls back to compoundGrowth when stddev is 0.
func computeRiskAdjustedScore(compoundGrowth, stddev float64) float64 {
	if stddev == 0 {
		return compoundGrowth
	}
	return compoundGrowth / stddev
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC.
// p is percentile (0.10 = 10th percentile).
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	// Index for percentile (0-based, continuous)
	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// computeMaxConsecutiveLosses finds longest streak of pnl <= 1.
// Trades must be in chronological order.
func computeMaxConsecutiveLosses(trades []*domain.TradeResult) int {
	maxStreak := 0
	currentStreak := 0

	for _, t := range trades {
		if !t.IsWin() {
			currentStreak++
			maxStreak = max(maxStreak, currentStreak)
		} else {
			currentStreak = 0
		}
	}
	return maxStreak
}
