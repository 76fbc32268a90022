package reporting

import (
	"context"
	"fmt"
	"time"

	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/metrics"
	"call-backtest-lab/internal/storage"
)

// Generator produces reports from stored results.
type Generator struct {
	resultStore storage.StrategyResultStore
	now         func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(resultStore storage.StrategyResultStore) *Generator {
	return &Generator{
		resultStore: resultStore,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate loads every stored result, ranks it by rankBy and keeps the best limit
// results. A limit <= 0 keeps all of them.
func (g *Generator) Generate(ctx context.Context, rankBy string, limit int) (*Report, error) {
	if err := metrics.ValidateRankMetric(rankBy); err != nil {
		return nil, err
	}

	results, err := g.resultStore.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load strategy results: %w", err)
	}

	if err := metrics.Rank(results, rankBy); err != nil {
		return nil, err
	}

	summary := summarize(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return &Report{
		GeneratedAt: g.now(),
		RankBy:      rankBy,
		Summary:     summary,
		Results:     results,
	}, nil
}

func summarize(results []*domain.StrategyResult) Summary {
	s := Summary{Strategies: len(results)}
	if len(results) == 0 {
		return s
	}

	s.TotalCalls = results[0].TotalCalls
	s.BestGrowth = results[0].CompoundGrowth
	s.WorstGrowth = results[0].CompoundGrowth
	for _, r := range results {
		s.Simulated += r.Simulated
		s.FilterRejected += r.FilterRejected
		s.EntryFailed += r.EntryFailed
		s.Insufficient += r.InsufficientData
		s.Invalid += r.InvalidInput
		if r.CompoundGrowth > 1 {
			s.Profitable++
		}
		s.BestGrowth = max(s.BestGrowth, r.CompoundGrowth)
		s.WorstGrowth = min(s.WorstGrowth, r.CompoundGrowth)
	}
	return s
}
