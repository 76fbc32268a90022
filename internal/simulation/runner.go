// Package simulation runs one strategy against one call: validation, the
// filter gate, the warm-up check, then the strategy itself.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"call-backtest-lab/internal/candles"
	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/filter"
	"call-backtest-lab/internal/idhash"
	"call-backtest-lab/internal/storage"
	"call-backtest-lab/internal/strategy"
	"call-backtest-lab/internal/tokenid"
)

// Skip categories. Neither is fatal to a sweep.
var (
	// ErrInsufficientData is returned when the series is shorter than the
	// strategy's indicator warm-up.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidInput is returned for malformed calls or candles.
	ErrInvalidInput = errors.New("invalid input")
)

// Input is one call with its loaded series.
type Input struct {
	Call    *domain.Call
	Candles []domain.Candle
	Fine    []domain.Candle // momentum series, may be nil
}

// Runner executes simulations for calls.
type Runner struct {
	callStore  storage.CallStore
	loader     *candles.Loader
	tradeStore storage.TradeResultStore
	estimator  filter.MarketCapEstimator
	tokenOpts  tokenid.Options

	mu    sync.Mutex
	gates map[string]*filter.Gate // keyed by strategy_id
}

// RunnerOptions contains configuration for creating a Runner.
// Every field is optional; Run needs CallStore and Loader.
type RunnerOptions struct {
	CallStore        storage.CallStore
	Loader           *candles.Loader
	TradeResultStore storage.TradeResultStore // persists results of Run when set
	Estimator        filter.MarketCapEstimator
	TokenOptions     tokenid.Options
}

// NewRunner creates a simulation runner.
func NewRunner(opts RunnerOptions) *Runner {
	return &Runner{
		callStore:  opts.CallStore,
		loader:     opts.Loader,
		tradeStore: opts.TradeResultStore,
		estimator:  opts.Estimator,
		tokenOpts:  opts.TokenOptions,
		gates:      make(map[string]*filter.Gate),
	}
}

// Run loads a call and its candles, simulates it and persists the result.
// Steps:
//  1. Load call by ID
//  2. Load main and fine series
//  3. Simulate
//  4. Persist TradeResult
func (r *Runner) Run(ctx context.Context, callID string, strat strategy.Strategy) (*domain.TradeResult, error) {
	if r.callStore == nil || r.loader == nil {
		return nil, errors.New("runner has no call store or candle loader")
	}

	// 1. Load call by ID
	call, err := r.callStore.GetByID(ctx, callID)
	if err != nil {
		return nil, err // propagates storage.ErrNotFound
	}

	// 2. Load series
	series, err := r.loader.Load(ctx, call)
	if err != nil {
		return nil, err
	}

	// 3. Simulate
	trade, err := r.Simulate(ctx, strat, Input{Call: call, Candles: series.Main, Fine: series.Fine})
	if err != nil {
		return nil, err
	}

	// 4. Persist TradeResult
	if r.tradeStore != nil {
		if err := r.tradeStore.Insert(ctx, trade); err != nil {
			return nil, err
		}
	}

	return trade, nil
}

// Simulate runs strat on prepared data. It performs no I/O.
// Returns an error wrapping ErrInvalidInput or ErrInsufficientData for skipped
// calls; filter rejections and failed entries are results, not errors.
func (r *Runner) Simulate(ctx context.Context, strat strategy.Strategy, in Input) (*domain.TradeResult, error) {
	if err := r.ValidateCall(in.Call); err != nil {
		return nil, err
	}
	if err := ValidateCandles(in.Candles); err != nil {
		return nil, err
	}

	params := strat.Params()

	decision := r.gate(strat).Check(filter.Input{Call: in.Call, Candles: in.Candles, Fine: in.Fine})
	if !decision.Passed {
		return rejected(in.Call, strat.ID(), params.FloorFraction(), decision.Reason), nil
	}

	if need := strategy.RequiredCandles(params); len(in.Candles) < need {
		return nil, fmt.Errorf("%w: %d candles, need %d", ErrInsufficientData, len(in.Candles), need)
	}

	return strat.Execute(ctx, &strategy.Input{Call: in.Call, Candles: in.Candles})
}

func (r *Runner) gate(strat strategy.Strategy) *filter.Gate {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.gates[strat.ID()]
	if !ok {
		g = filter.New(strat.Params(), filter.Options{Estimator: r.estimator})
		r.gates[strat.ID()] = g
	}
	return g
}

// ValidateCall checks the call identifies a token and an alert.
func (r *Runner) ValidateCall(call *domain.Call) error {
	if call == nil {
		return fmt.Errorf("%w: nil call", ErrInvalidInput)
	}
	if call.CallID == "" {
		return fmt.Errorf("%w: missing call id", ErrInvalidInput)
	}
	if strings.TrimSpace(call.TokenAddress) == "" {
		return fmt.Errorf("%w: missing token address", ErrInvalidInput)
	}
	if call.AlertTime <= 0 {
		return fmt.Errorf("%w: alert time %d", ErrInvalidInput, call.AlertTime)
	}
	if call.AlertPrice < 0 {
		return fmt.Errorf("%w: negative alert price", ErrInvalidInput)
	}
	if _, err := tokenid.Normalize(call.Chain, call.TokenAddress, r.tokenOpts); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// ValidateCandles checks a series is usable: non-empty, strictly ascending,
// with positive prices and a consistent range.
func ValidateCandles(series []domain.Candle) error {
	if len(series) == 0 {
		return fmt.Errorf("%w: no candles", ErrInsufficientData)
	}
	for i, c := range series {
		if c.Timestamp <= 0 {
			return fmt.Errorf("%w: candle %d timestamp %d", ErrInvalidInput, i, c.Timestamp)
		}
		if i > 0 && c.Timestamp <= series[i-1].Timestamp {
			return fmt.Errorf("%w: candle %d out of order", ErrInvalidInput, i)
		}
		if c.Open <= 0 || c.Close <= 0 || c.High <= 0 || c.Low <= 0 {
			return fmt.Errorf("%w: candle %d non-positive price", ErrInvalidInput, i)
		}
		if c.High < c.Low {
			return fmt.Errorf("%w: candle %d high below low", ErrInvalidInput, i)
		}
	}
	return nil
}

// rejected is the result of a call the filter gate turned away.
func rejected(call *domain.Call, strategyID string, floor float64, reason string) *domain.TradeResult {
	return &domain.TradeResult{
		TradeID:       idhash.ComputeTradeID(call.CallID, strategyID),
		CallID:        call.CallID,
		StrategyID:    strategyID,
		EntryPrice:    call.AlertPrice,
		EntryTime:     call.AlertTime,
		ExitTime:      call.AlertTime,
		ExitReason:    reason,
		PnLMultiplier: floor,
		MaxReached:    1.0,
		PassedFilters: false,
		Status:        domain.TradeStatusFilterRejected,
	}
}
