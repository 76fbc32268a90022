package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"call-backtest-lab/internal/config"
	"call-backtest-lab/internal/metrics"
	"call-backtest-lab/internal/portfolio"
	"call-backtest-lab/internal/storage"
	"call-backtest-lab/internal/strategy"
)

// Recompute rebuilds strategy results from persisted trades under cfg.Portfolio
// without re-simulating, and stores them in out. Calls skipped for insufficient
// data or invalid input leave no trade, so those counts are zero in the output.
// Strategies without stored trades are skipped. Returns the number of results stored.
func Recompute(ctx context.Context, cfg *config.Config, trades storage.TradeResultStore, out storage.StrategyResultStore, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	compounder, err := portfolio.New(cfg.Portfolio)
	if err != nil {
		return 0, fmt.Errorf("portfolio config: %w", err)
	}
	agg := metrics.NewAggregator(trades, out, compounder)

	stored := 0
	seen := make(map[string]bool, len(cfg.Strategies))
	for _, params := range cfg.Strategies {
		if err := ctx.Err(); err != nil {
			return stored, err
		}

		strat, err := strategy.FromParams(params)
		if err != nil {
			logger.Warn("skipping invalid strategy", zap.String("strategy", params.Name), zap.Error(err))
			continue
		}
		id := strat.ID()
		if seen[id] {
			continue
		}
		seen[id] = true

		existing, err := trades.GetByStrategy(ctx, id)
		if err != nil {
			return stored, fmt.Errorf("load trades for %s: %w", id, err)
		}
		if len(existing) == 0 {
			logger.Debug("no stored trades", zap.String("strategy_id", id))
			continue
		}

		var tally metrics.Tally
		for _, t := range existing {
			tally.Record(t)
		}

		if _, err := agg.ComputeAndStore(ctx, id, params, tally); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				continue
			}
			return stored, err
		}
		stored++
	}
	return stored, nil
}
