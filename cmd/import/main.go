// Command import loads calls and candle series from JSON files into PostgreSQL and ClickHouse.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"call-backtest-lab/internal/config"
	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/ingestion"
	"call-backtest-lab/internal/logging"
	"call-backtest-lab/internal/storage/clickhouse"
	"call-backtest-lab/internal/storage/migrations"
	"call-backtest-lab/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	callsFile := flag.String("calls", "", "JSON file with an array of calls")
	candlesFile := flag.String("candles", "", "JSON file with an array of candle series")
	postgresDSN := flag.String("postgres-dsn", os.Getenv(config.EnvPostgresDSN), "PostgreSQL connection string (calls)")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv(config.EnvClickHouseDSN), "ClickHouse connection string (candles)")
	batchSize := flag.Int("batch-size", ingestion.DefaultBatchSize, "Calls per insert batch")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	logger := logging.Must(*logLevel, logging.FormatConsole)
	defer logger.Sync()

	if *callsFile == "" && *candlesFile == "" {
		logger.Fatal("at least one of --calls or --candles is required")
	}
	if *callsFile != "" && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required to import calls")
	}
	if *candlesFile != "" && *clickhouseDSN == "" {
		logger.Fatal("--clickhouse-dsn is required to import candles")
	}

	if err := run(context.Background(), logger, *callsFile, *candlesFile, *postgresDSN, *clickhouseDSN, *batchSize); err != nil {
		logger.Fatal("import failed", zap.Error(err))
	}
}

func run(ctx context.Context, logger *zap.Logger, callsFile, candlesFile, postgresDSN, clickhouseDSN string, batchSize int) error {
	var (
		calls  []*domain.Call
		series []ingestion.CandleSeries
		err    error
	)
	opts := ingestion.ImporterOptions{BatchSize: batchSize, Logger: logger}

	if callsFile != "" {
		if calls, err = ingestion.ReadCallsFile(callsFile); err != nil {
			return err
		}

		pool, err := postgres.NewPool(ctx, postgresDSN, 4)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
		opts.CallStore = postgres.NewCallStore(pool)
	}

	if candlesFile != "" {
		if series, err = ingestion.ReadCandlesFile(candlesFile); err != nil {
			return err
		}

		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		defer conn.Close()
		opts.CandleStore = clickhouse.NewCandleStore(conn)
	}

	stats, err := ingestion.NewImporter(opts).Import(ctx, calls, series)
	if err != nil {
		return err
	}

	fmt.Printf("calls:   %d stored, %d already present\n", stats.CallsStored, stats.CallsDuplicate)
	fmt.Printf("series:  %d stored, %d already present (%d candles)\n", stats.SeriesStored, stats.SeriesDuplicate, stats.CandlesStored)
	return nil
}
