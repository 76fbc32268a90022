package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/portfolio"
	"call-backtest-lab/internal/storage"
)

// Tally counts the calls of one strategy per outcome category.
type Tally struct {
	TotalCalls       int
	Simulated        int
	FilterRejected   int
	EntryFailed      int
	InsufficientData int
	InvalidInput     int
}

// Record counts a trade result by its status.
func (t *Tally) Record(tr *domain.TradeResult) {
	t.TotalCalls++
	switch tr.Status {
	case domain.TradeStatusSimulated:
		t.Simulated++
	case domain.TradeStatusFilterRejected:
		t.FilterRejected++
	case domain.TradeStatusEntryFailed:
		t.EntryFailed++
	}
}

// RecordInsufficientData counts a call skipped for too few candles.
func (t *Tally) RecordInsufficientData() {
	t.TotalCalls++
	t.InsufficientData++
}

// RecordInvalidInput counts a call skipped for malformed data.
func (t *Tally) RecordInvalidInput() {
	t.TotalCalls++
	t.InvalidInput++
}

// Summarize builds the StrategyResult of one strategy from its trades and
// compounding pass. Only SIMULATED trades feed trade statistics.
// pf may be nil when no portfolio was configured.
func Summarize(strategyID string, params domain.StrategyParams, trades []*domain.TradeResult, tally Tally, pf *portfolio.Result, completedAt int64) *domain.StrategyResult {
	simulated := make([]*domain.TradeResult, 0, len(trades))
	for _, t := range trades {
		if t.Status == domain.TradeStatusSimulated {
			simulated = append(simulated, t)
		}
	}

	res := computeFromTrades(simulated)

	res.StrategyID = strategyID
	res.StrategyName = params.Name
	if data, err := json.Marshal(params); err == nil {
		res.ParamsJSON = string(data)
	}

	res.TotalCalls = tally.TotalCalls
	res.Simulated = tally.Simulated
	res.FilterRejected = tally.FilterRejected
	res.EntryFailed = tally.EntryFailed
	res.InsufficientData = tally.InsufficientData
	res.InvalidInput = tally.InvalidInput

	if pf != nil {
		res.InitialBalance = pf.InitialBalance
		res.FinalBalance = pf.State.Balance
		res.CompoundGrowth = pf.CompoundGrowth()
		res.MaxDrawdown = pf.State.MaxDrawdownFraction
		res.RiskAdjustedScore = computeRiskAdjustedScore(res.CompoundGrowth, res.OutcomeStddev)
	}

	res.CompletedAt = completedAt
	return res
}

// Aggregator computes strategy results from persisted trade results.
type Aggregator struct {
	tradeStore  storage.TradeResultStore
	resultStore storage.StrategyResultStore
	compounder  *portfolio.Compounder
	now         func() time.Time
}

// NewAggregator creates a new metrics aggregator.
// compounder may be nil, in which case portfolio fields stay zero.
func NewAggregator(tradeStore storage.TradeResultStore, resultStore storage.StrategyResultStore, compounder *portfolio.Compounder) *Aggregator {
	return &Aggregator{
		tradeStore:  tradeStore,
		resultStore: resultStore,
		compounder:  compounder,
		now:         time.Now,
	}
}

// ComputeAggregate loads the strategy's trades, compounds the passed ones in
// time order and summarizes them.
func (a *Aggregator) ComputeAggregate(ctx context.Context, strategyID string, params domain.StrategyParams, tally Tally) (*domain.StrategyResult, error) {
	trades, err := a.tradeStore.GetByStrategy(ctx, strategyID)
	if err != nil {
		return nil, fmt.Errorf("load trades for %s: %w", strategyID, err)
	}

	var pf *portfolio.Result
	if a.compounder != nil {
		pf, err = a.compounder.Run(trades, params.Stop.LossPercent)
		if err != nil {
			return nil, fmt.Errorf("compound %s: %w", strategyID, err)
		}
	}

	return Summarize(strategyID, params, trades, tally, pf, a.now().Unix()), nil
}

// ComputeAndStore computes and persists the result.
// Returns storage.ErrDuplicateKey if the result already exists (append-only).
func (a *Aggregator) ComputeAndStore(ctx context.Context, strategyID string, params domain.StrategyParams, tally Tally) (*domain.StrategyResult, error) {
	res, err := a.ComputeAggregate(ctx, strategyID, params, tally)
	if err != nil {
		return nil, err
	}

	if err := a.resultStore.Insert(ctx, res); err != nil {
		return nil, err
	}

	return res, nil
}
