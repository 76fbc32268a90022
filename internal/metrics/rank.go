package metrics

import (
	"errors"
	"fmt"
	"sort"

	"call-backtest-lab/internal/domain"
)

// Ranking metrics
const (
	RankByRiskAdjustedScore = "risk_adjusted_score"
	RankByCompoundGrowth    = "compound_growth"
	RankBySharpe            = "sharpe"
	RankByWinRate           = "win_rate"
	RankByProfitFactor      = "profit_factor"
	RankByMaxDrawdown       = "max_drawdown"
)

// ErrUnknownRankMetric is returned for an unsupported ranking metric.
var ErrUnknownRankMetric = errors.New("unknown ranking metric")

// rankKey extracts the metric and whether larger is better.
func rankKey(metric string) (func(*domain.StrategyResult) float64, bool, error) {
	switch metric {
	case RankByRiskAdjustedScore, "":
		return func(r *domain.StrategyResult) float64 { return r.RiskAdjustedScore }, true, nil
	case RankByCompoundGrowth:
		return func(r *domain.StrategyResult) float64 { return r.CompoundGrowth }, true, nil
	case RankBySharpe:
		return func(r *domain.StrategyResult) float64 { return r.Sharpe }, true, nil
	case RankByWinRate:
		return func(r *domain.StrategyResult) float64 { return r.WinRate }, true, nil
	case RankByProfitFactor:
		return func(r *domain.StrategyResult) float64 { return r.ProfitFactor }, true, nil
	case RankByMaxDrawdown:
		return func(r *domain.StrategyResult) float64 { return r.MaxDrawdown }, false, nil
	default:
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownRankMetric, metric)
	}
}

// ValidateRankMetric checks metric is supported.
func ValidateRankMetric(metric string) error {
	_, _, err := rankKey(metric)
	return err
}

// Rank sorts results in place, best first by metric. Ties break by StrategyID ASC.
func Rank(results []*domain.StrategyResult, metric string) error {
	key, desc, err := rankKey(metric)
	if err != nil {
		return err
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := key(results[i]), key(results[j])
		if a != b {
			if desc {
				return a > b
			}
			return a < b
		}
		return results[i].StrategyID < results[j].StrategyID
	})
	return nil
}
