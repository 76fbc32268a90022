// Package sweep runs every configured strategy over every stored call.
// It coordinates: candle loading → simulation → compounding → ranking
package sweep

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"call-backtest-lab/internal/candles"
	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/filter"
	"call-backtest-lab/internal/metrics"
	"call-backtest-lab/internal/observability"
	"call-backtest-lab/internal/portfolio"
	"call-backtest-lab/internal/simulation"
	"call-backtest-lab/internal/storage"
	"call-backtest-lab/internal/strategy"
	"call-backtest-lab/internal/tokenid"
)

// Skip reasons
const (
	SkipResumed   = "resumed"
	SkipInvalid   = "invalid"
	SkipDuplicate = "duplicate"
)

// Sweep coordinates a full parameter sweep.
// Flow: load calls → load series → per strategy: simulate, compound, persist → rank
type Sweep struct {
	// Stores
	callStore     storage.CallStore
	tradeStore    storage.TradeResultStore
	resultStore   storage.StrategyResultStore
	progressStore storage.SweepProgressStore

	loader *candles.Loader
	runner *simulation.Runner

	// Configs
	strategies []domain.StrategyParams
	portfolio  domain.PortfolioConfig
	rankBy     string
	workers    int

	onResult func(*domain.StrategyResult) error
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// Options for creating a Sweep.
type Options struct {
	// Required
	CallStore           storage.CallStore
	Loader              *candles.Loader
	StrategyResultStore storage.StrategyResultStore

	// Optional stores
	TradeResultStore storage.TradeResultStore   // per-call results are persisted when set
	ProgressStore    storage.SweepProgressStore // resume bookkeeping when set

	Strategies []domain.StrategyParams
	Portfolio  domain.PortfolioConfig
	RankBy     string // metrics.RankBy* value, default risk-adjusted score
	Workers    int    // default runtime.NumCPU()

	Estimator    filter.MarketCapEstimator
	TokenOptions tokenid.Options

	// OnResult is called after each strategy result is persisted, in sweep order.
	OnResult func(*domain.StrategyResult) error

	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// New creates a new Sweep.
func New(opts Options) *Sweep {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Sweep{
		callStore:     opts.CallStore,
		tradeStore:    opts.TradeResultStore,
		resultStore:   opts.StrategyResultStore,
		progressStore: opts.ProgressStore,
		loader:        opts.Loader,
		runner: simulation.NewRunner(simulation.RunnerOptions{
			Estimator:    opts.Estimator,
			TokenOptions: opts.TokenOptions,
		}),
		strategies: opts.Strategies,
		portfolio:  opts.Portfolio,
		rankBy:     opts.RankBy,
		workers:    workers,
		onResult:   opts.OnResult,
		logger:     logger,
		metrics:    opts.Metrics,
		now:        time.Now,
	}
}

// RunResult contains results from sweep execution.
type RunResult struct {
	RunID             string
	CallsLoaded       int
	StrategiesRun     int
	StrategiesResumed int
	StrategiesInvalid int
	TradesCreated     int
	Results           []*domain.StrategyResult // ranked, configured strategies only
	Errors            []string                 // invalid strategies and other non-fatal failures
}

// loaded is one call with its series, or the reason it could not be simulated.
type loaded struct {
	call   *domain.Call
	series *candles.Series
}

// Run executes the full sweep.
// Phases:
//  1. Load calls
//  2. Load each call's candle series once
//  3. Simulate, compound and persist each strategy not already done
//  4. Re-read persisted results and rank them
func (s *Sweep) Run(ctx context.Context) (*RunResult, error) {
	start := s.now()
	result, err := s.run(ctx)

	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordSweepRun(status, s.now().Sub(start).Seconds(), s.now().Unix())
	return result, err
}

func (s *Sweep) run(ctx context.Context) (*RunResult, error) {
	if err := metrics.ValidateRankMetric(s.rankBy); err != nil {
		return nil, err
	}
	compounder, err := portfolio.New(s.portfolio)
	if err != nil {
		return nil, fmt.Errorf("portfolio config: %w", err)
	}

	result := &RunResult{RunID: uuid.NewString()}
	log := s.logger.With(zap.String("run_id", result.RunID))

	if s.progressStore != nil {
		run := &storage.SweepRun{RunID: result.RunID, StartedAt: s.now().Unix(), Strategies: len(s.strategies)}
		if err := s.progressStore.SetLastRun(ctx, run); err != nil {
			return nil, fmt.Errorf("save sweep run: %w", err)
		}
	}

	// Phase 1: Load all calls
	log.Info("phase 1: loading calls")
	calls, err := s.callStore.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("phase 1 (load calls) failed: %w", err)
	}
	result.CallsLoaded = len(calls)
	log.Info("calls loaded", zap.Int("calls", len(calls)))

	// Phase 2: Load candle series
	log.Info("phase 2: loading candles")
	inputs, err := s.loadSeries(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("phase 2 (load candles) failed: %w", err)
	}
	if hits, misses, ok := s.cacheStats(); ok {
		s.metrics.UpdateCacheStats(hits, misses)
	}

	// Phase 3: Strategies
	log.Info("phase 3: running strategies", zap.Int("strategies", len(s.strategies)), zap.Int("workers", s.workers))
	done, err := s.loadDone(ctx)
	if err != nil {
		return nil, fmt.Errorf("phase 3 (load progress) failed: %w", err)
	}

	ids := make([]string, 0, len(s.strategies))
	seen := make(map[string]bool, len(s.strategies))
	for i, params := range s.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		strat, err := strategy.FromParams(params)
		if err != nil {
			result.StrategiesInvalid++
			result.Errors = append(result.Errors, fmt.Sprintf("strategy %d (%s): %v", i, params.Name, err))
			s.metrics.RecordStrategySkipped(SkipInvalid)
			log.Warn("invalid strategy skipped", zap.Int("index", i), zap.String("name", params.Name), zap.Error(err))
			continue
		}

		id := strat.ID()
		if seen[id] {
			s.metrics.RecordStrategySkipped(SkipDuplicate)
			continue
		}
		seen[id] = true
		ids = append(ids, id)

		if done[id] {
			result.StrategiesResumed++
			s.metrics.RecordStrategySkipped(SkipResumed)
			log.Debug("strategy already done", zap.String("strategy_id", id))
			continue
		}

		trades, err := s.runStrategy(ctx, log, strat, compounder, inputs)
		if err != nil {
			return nil, fmt.Errorf("phase 3 (strategy %s) failed: %w", id, err)
		}
		result.StrategiesRun++
		result.TradesCreated += trades
	}

	// Phase 4: Rank
	log.Info("phase 4: ranking results", zap.String("rank_by", s.rankBy))
	ranked, err := s.rank(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("phase 4 (rank) failed: %w", err)
	}
	result.Results = ranked

	log.Info("sweep completed",
		zap.Int("calls", result.CallsLoaded),
		zap.Int("strategies_run", result.StrategiesRun),
		zap.Int("strategies_resumed", result.StrategiesResumed),
		zap.Int("strategies_invalid", result.StrategiesInvalid),
		zap.Int("trades", result.TradesCreated))

	return result, nil
}

// loadSeries loads the candles of every call using the worker pool.
// A call with no candles keeps an empty series and is tallied later.
func (s *Sweep) loadSeries(ctx context.Context, calls []*domain.Call) ([]loaded, error) {
	inputs := make([]loaded, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, call := range calls {
		inputs[i].call = call
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			series, err := s.loader.Load(gctx, call)
			if err != nil {
				return fmt.Errorf("call %s: %w", call.CallID, err)
			}
			inputs[i].series = series
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return inputs, nil
}

// runStrategy simulates one strategy over all calls and persists its result.
// Steps:
//  1. Simulate each call on the worker pool, slotting results by call index
//  2. Tally outcomes in call order
//  3. Persist trade results
//  4. Compound, summarize and persist the strategy result
//  5. Mark the strategy done
//
// Returns the number of trade results created.
func (s *Sweep) runStrategy(ctx context.Context, log *zap.Logger, strat strategy.Strategy, compounder *portfolio.Compounder, inputs []loaded) (int, error) {
	start := s.now()
	id := strat.ID()
	log = log.With(zap.String("strategy_id", id), zap.String("strategy", strat.Params().Name))

	// 1. Simulate
	trades := make([]*domain.TradeResult, len(inputs))
	errs := make([]error, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, in := range inputs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			t0 := time.Now()
			var series candles.Series
			if in.series != nil {
				series = *in.series
			}
			trade, err := s.runner.Simulate(gctx, strat, simulation.Input{Call: in.call, Candles: series.Main, Fine: series.Fine})
			s.metrics.RecordCall(outcome(trade, err), time.Since(t0).Seconds())
			trades[i], errs[i] = trade, err
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	// 2. Tally
	var tally metrics.Tally
	created := make([]*domain.TradeResult, 0, len(inputs))
	for i, err := range errs {
		switch {
		case err == nil:
			tally.Record(trades[i])
			created = append(created, trades[i])
		case errors.Is(err, simulation.ErrInsufficientData):
			tally.RecordInsufficientData()
			log.Debug("call skipped", zap.String("call_id", callID(inputs[i].call)), zap.Error(err))
		case errors.Is(err, simulation.ErrInvalidInput):
			tally.RecordInvalidInput()
			log.Debug("call skipped", zap.String("call_id", callID(inputs[i].call)), zap.Error(err))
		default:
			return 0, fmt.Errorf("simulate %s: %w", callID(inputs[i].call), err)
		}
	}

	// 3. Persist trades
	if s.tradeStore != nil && len(created) > 0 {
		err := s.tradeStore.InsertBulk(ctx, created)
		// Trade IDs are deterministic, so duplicates are left from an interrupted run.
		if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return 0, fmt.Errorf("persist trades: %w", err)
		}
	}

	// 4. Compound and summarize
	pf, err := compounder.Run(created, strat.Params().Stop.LossPercent)
	if err != nil {
		return 0, fmt.Errorf("compound: %w", err)
	}
	res := metrics.Summarize(id, strat.Params(), created, tally, pf, s.now().Unix())

	t0 := time.Now()
	err = s.resultStore.Insert(ctx, res)
	s.metrics.RecordDBQuery("strategy_results", "insert", time.Since(t0).Seconds(), err)
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return 0, fmt.Errorf("persist result: %w", err)
	}

	// 5. Mark done
	if s.progressStore != nil {
		if err := s.progressStore.MarkStrategyDone(ctx, id); err != nil {
			return 0, fmt.Errorf("mark done: %w", err)
		}
	}

	if s.onResult != nil {
		if err := s.onResult(res); err != nil {
			return 0, fmt.Errorf("result sink: %w", err)
		}
	}

	s.metrics.RecordStrategy(s.now().Sub(start).Seconds())
	log.Info("strategy done",
		zap.Int("calls", tally.TotalCalls),
		zap.Int("simulated", tally.Simulated),
		zap.Int("filter_rejected", tally.FilterRejected),
		zap.Int("entry_failed", tally.EntryFailed),
		zap.Int("insufficient_data", tally.InsufficientData),
		zap.Int("invalid_input", tally.InvalidInput),
		zap.Float64("win_rate", res.WinRate),
		zap.Float64("final_balance", res.FinalBalance))

	return len(created), nil
}

// loadDone returns the IDs of strategies a previous run already persisted.
func (s *Sweep) loadDone(ctx context.Context) (map[string]bool, error) {
	done := make(map[string]bool)

	if s.progressStore != nil {
		ids, err := s.progressStore.LoadDoneStrategies(ctx)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			done[id] = true
		}
	}

	existing, err := s.resultStore.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range existing {
		done[r.StrategyID] = true
	}
	return done, nil
}

// rank reads the persisted results of the configured strategies and sorts them.
func (s *Sweep) rank(ctx context.Context, ids []string) ([]*domain.StrategyResult, error) {
	all, err := s.resultStore.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	results := make([]*domain.StrategyResult, 0, len(ids))
	for _, r := range all {
		if wanted[r.StrategyID] {
			results = append(results, r)
		}
	}

	if err := metrics.Rank(results, s.rankBy); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Sweep) cacheStats() (hits, misses int, ok bool) {
	type statser interface{ Stats() (int, int) }
	if s.loader == nil {
		return 0, 0, false
	}
	if c, isCache := s.loader.Source().(statser); isCache {
		hits, misses = c.Stats()
		return hits, misses, true
	}
	return 0, 0, false
}

func outcome(trade *domain.TradeResult, err error) string {
	switch {
	case errors.Is(err, simulation.ErrInsufficientData):
		return observability.OutcomeInsufficientData
	case err != nil:
		return observability.OutcomeInvalidInput
	case trade.Status == domain.TradeStatusFilterRejected:
		return observability.OutcomeFilterRejected
	case trade.Status == domain.TradeStatusEntryFailed:
		return observability.OutcomeEntryFailed
	default:
		return observability.OutcomeSimulated
	}
}

func callID(c *domain.Call) string {
	if c == nil {
		return ""
	}
	return c.CallID
}
