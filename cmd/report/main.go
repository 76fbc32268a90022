// Command report re-ranks stored strategy results and writes a table, CSV or Markdown.
//
// With --recompute, results are first rebuilt from stored trades under the
// config's portfolio settings, so sizing can be compared without re-simulating.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"call-backtest-lab/internal/app"
	"call-backtest-lab/internal/config"
	"call-backtest-lab/internal/logging"
	"call-backtest-lab/internal/reporting"
	"call-backtest-lab/internal/storage"
	"call-backtest-lab/internal/storage/clickhouse"
	"call-backtest-lab/internal/storage/memory"
	"call-backtest-lab/internal/storage/sqlite"
)

func main() {
	_ = godotenv.Load()

	// Parse flags
	sqlitePath := flag.String("sqlite", os.Getenv(config.EnvSQLitePath), "SQLite result file")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv(config.EnvClickHouseDSN), "ClickHouse connection string (used when --sqlite is empty)")
	configPath := flag.String("config", "", "Sweep config, required with --recompute")
	recompute := flag.Bool("recompute", false, "Rebuild results from stored trades under the config's portfolio")
	rankBy := flag.String("rank-by", "", "Ranking metric (default risk_adjusted_score, or the config's rank_by)")
	top := flag.Int("top", 0, "Rows to keep, 0 = all")
	csvPath := flag.String("csv", "", "Write ranked CSV to this file")
	markdownPath := flag.String("markdown", "", "Write Markdown report to this file")
	flag.Parse()

	logger := logging.Must("info", logging.FormatConsole)
	defer logger.Sync()

	ctx := context.Background()

	var (
		results storage.StrategyResultStore
		err     error
	)
	if *recompute {
		var cfgRank string
		results, cfgRank, err = recomputed(ctx, *configPath, logger)
		if *rankBy == "" {
			*rankBy = cfgRank
		}
	} else {
		var closeFn func() error
		results, closeFn, err = openResults(ctx, *sqlitePath, *clickhouseDSN)
		if err == nil {
			defer closeFn()
		}
	}
	if err != nil {
		logger.Fatal("load results", zap.Error(err))
	}

	report, err := reporting.NewGenerator(results).Generate(ctx, *rankBy, *top)
	if err != nil {
		logger.Fatal("generate report", zap.Error(err))
	}

	if err := reporting.RenderTable(os.Stdout, report.Results); err != nil {
		logger.Fatal("render table", zap.Error(err))
	}

	if *csvPath != "" {
		var buf bytes.Buffer
		if err := reporting.RenderCSV(&buf, report.Results); err != nil {
			logger.Fatal("render csv", zap.Error(err))
		}
		if err := os.WriteFile(*csvPath, buf.Bytes(), 0o644); err != nil {
			logger.Fatal("write csv", zap.Error(err))
		}
		fmt.Printf("  - %s\n", *csvPath)
	}
	if *markdownPath != "" {
		if err := os.WriteFile(*markdownPath, []byte(reporting.RenderMarkdown(report)), 0o644); err != nil {
			logger.Fatal("write markdown", zap.Error(err))
		}
		fmt.Printf("  - %s\n", *markdownPath)
	}
}

// openResults opens the SQLite sink when a path is given, otherwise ClickHouse.
func openResults(ctx context.Context, sqlitePath, clickhouseDSN string) (storage.StrategyResultStore, func() error, error) {
	if sqlitePath != "" {
		db, err := sqlite.Open(ctx, sqlitePath)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewStrategyResultStore(db), db.Close, nil
	}
	if clickhouseDSN == "" {
		return nil, nil, fmt.Errorf("--sqlite or --clickhouse-dsn is required")
	}

	conn, err := clickhouse.NewConn(ctx, clickhouseDSN)
	if err != nil {
		return nil, nil, err
	}
	return clickhouse.NewStrategyResultStore(conn), conn.Close, nil
}

// recomputed rebuilds results into memory from the trades in the config's stores.
// It also returns the config's ranking metric.
func recomputed(ctx context.Context, configPath string, logger *zap.Logger) (storage.StrategyResultStore, string, error) {
	if configPath == "" {
		return nil, "", fmt.Errorf("--config is required with --recompute")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, "", err
	}

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return nil, "", err
	}
	defer stores.Close()

	out := memory.NewStrategyResultStore()
	n, err := app.Recompute(ctx, cfg, stores.Trades, out, logger)
	if err != nil {
		return nil, "", err
	}
	logger.Info("recomputed results", zap.Int("strategies", n))
	return out, cfg.RankBy, nil
}
