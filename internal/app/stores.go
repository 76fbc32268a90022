// Package app wires configuration into stores, candle loaders and sweeps for the commands.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"call-backtest-lab/internal/candles"
	"call-backtest-lab/internal/config"
	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/ingestion"
	"call-backtest-lab/internal/observability"
	"call-backtest-lab/internal/storage"
	chstore "call-backtest-lab/internal/storage/clickhouse"
	"call-backtest-lab/internal/storage/memory"
	"call-backtest-lab/internal/storage/migrations"
	pgstore "call-backtest-lab/internal/storage/postgres"
	"call-backtest-lab/internal/storage/sqlite"
	"call-backtest-lab/internal/sweep"
)

// Stores groups every store a command may need.
type Stores struct {
	Calls    storage.CallStore
	Candles  storage.CandleStore
	Trades   storage.TradeResultStore
	Results  storage.StrategyResultStore
	Progress storage.SweepProgressStore

	closers []func() error
}

// Close releases connections in reverse open order.
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// OpenStores builds the stores selected by cfg.Storage.
//
// memory:   all stores in process; calls and candles imported from cfg.Input.
// database: calls, trades and progress in PostgreSQL; candles and results in ClickHouse.
//
// A non-empty SQLitePath moves results and progress to a local SQLite file
// on either backend.
func OpenStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stores, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Stores{}

	switch cfg.Storage.Backend {
	case config.BackendMemory:
		if err := s.openMemory(ctx, cfg, logger); err != nil {
			return nil, err
		}
	case config.BackendDatabase:
		if err := s.openDatabase(ctx, cfg); err != nil {
			s.Close()
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Storage.Backend)
	}

	if cfg.Storage.SQLitePath != "" {
		db, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open sqlite sink: %w", err)
		}
		s.closers = append(s.closers, db.Close)
		s.Results = sqlite.NewStrategyResultStore(db)
		s.Progress = sqlite.NewSweepProgressStore(db)
	}

	return s, nil
}

func (s *Stores) openMemory(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	s.Calls = memory.NewCallStore()
	s.Candles = memory.NewCandleStore()
	s.Trades = memory.NewTradeResultStore()
	s.Results = memory.NewStrategyResultStore()
	s.Progress = memory.NewSweepProgressStore()

	calls, err := ingestion.ReadCallsFile(cfg.Input.CallsFile)
	if err != nil {
		return err
	}
	series, err := ingestion.ReadCandlesFile(cfg.Input.CandlesFile)
	if err != nil {
		return err
	}

	im := ingestion.NewImporter(ingestion.ImporterOptions{
		CallStore:   s.Calls,
		CandleStore: s.Candles,
		Logger:      logger,
	})
	if _, err := im.Import(ctx, calls, series); err != nil {
		return fmt.Errorf("import inputs: %w", err)
	}
	return nil
}

func (s *Stores) openDatabase(ctx context.Context, cfg *config.Config) error {
	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN, cfg.Storage.MaxConns)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	s.closers = append(s.closers, func() error { pool.Close(); return nil })

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
	if err != nil {
		return fmt.Errorf("clickhouse migrations: %w", err)
	}
	s.closers = append(s.closers, conn.Close)

	s.Calls = pgstore.NewCallStore(pool)
	s.Trades = pgstore.NewTradeResultStore(pool)
	s.Progress = pgstore.NewSweepProgressStore(pool)
	s.Candles = chstore.NewCandleStore(conn)
	s.Results = chstore.NewStrategyResultStore(conn)
	return nil
}

// NewLoader stacks the candle source: store, rate limiter, LRU cache.
func NewLoader(cfg *config.Config, store storage.CandleStore) *candles.Loader {
	source := candles.NewStoreSource(store, cfg.Candles.RatePerSecond, cfg.Candles.Burst)
	cached := candles.NewCachedSource(source, cfg.Candles.CacheCapacity)
	return candles.NewLoader(cached, cfg.LoaderOptions())
}

// NewSweep builds a sweep over stores using cfg. onResult may be nil.
func NewSweep(cfg *config.Config, stores *Stores, onResult func(*domain.StrategyResult) error, logger *zap.Logger, m *observability.Metrics) *sweep.Sweep {
	return sweep.New(sweep.Options{
		CallStore:           stores.Calls,
		Loader:              NewLoader(cfg, stores.Candles),
		StrategyResultStore: stores.Results,
		TradeResultStore:    stores.Trades,
		ProgressStore:       stores.Progress,
		Strategies:          cfg.Strategies,
		Portfolio:           cfg.Portfolio,
		RankBy:              cfg.RankBy,
		Workers:             cfg.Workers,
		Estimator:           cfg.MarketCapEstimator(),
		TokenOptions:        cfg.TokenOptions(),
		OnResult:            onResult,
		Logger:              logger,
		Metrics:             m,
	})
}
