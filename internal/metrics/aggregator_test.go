package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/portfolio"
	"call-backtest-lab/internal/storage"
	"call-backtest-lab/internal/storage/memory"
)

func testParams() domain.StrategyParams {
	return domain.StrategyParams{
		Name:    "ladder-20",
		Entry:   domain.EntryConfig{Mode: domain.EntryModeImmediate},
		Targets: []domain.LadderTarget{{Multiple: 1.2, SellFraction: 0.5}},
		Stop:    domain.StopConfig{LossPercent: 0.2},
	}
}

func TestTally(t *testing.T) {
	var tally Tally
	tally.Record(&domain.TradeResult{Status: domain.TradeStatusSimulated})
	tally.Record(&domain.TradeResult{Status: domain.TradeStatusFilterRejected})
	tally.Record(&domain.TradeResult{Status: domain.TradeStatusEntryFailed})
	tally.RecordInsufficientData()
	tally.RecordInvalidInput()

	want := Tally{TotalCalls: 5, Simulated: 1, FilterRejected: 1, EntryFailed: 1, InsufficientData: 1, InvalidInput: 1}
	if tally != want {
		t.Errorf("tally = %+v, want %+v", tally, want)
	}
}

func TestSummarize_IgnoresNonSimulated(t *testing.T) {
	rejected := simTrade("t9", 500, 0.8)
	rejected.Status = domain.TradeStatusFilterRejected
	rejected.PassedFilters = false

	trades := []*domain.TradeResult{simTrade("t1", 1000, 1.5), simTrade("t2", 2000, 0.8), rejected}

	res := Summarize("s1", testParams(), trades, Tally{TotalCalls: 3, Simulated: 2, FilterRejected: 1}, nil, 42)

	if res.Wins+res.Losses != 2 {
		t.Errorf("expected 2 trades in statistics, got %d", res.Wins+res.Losses)
	}
	if res.FilterRejected != 1 || res.TotalCalls != 3 {
		t.Errorf("counts not copied from tally: %+v", res)
	}
	if res.StrategyName != "ladder-20" || res.ParamsJSON == "" {
		t.Errorf("expected name and params json, got %q / %q", res.StrategyName, res.ParamsJSON)
	}
	if res.FinalBalance != 0 || res.RiskAdjustedScore != 0 {
		t.Errorf("expected zero portfolio fields without a portfolio, got %+v", res)
	}
	if res.CompletedAt != 42 {
		t.Errorf("expected CompletedAt 42, got %d", res.CompletedAt)
	}
}

func TestComputeAndStore(t *testing.T) {
	ctx := context.Background()
	tradeStore := memory.NewTradeResultStore()
	resultStore := memory.NewStrategyResultStore()

	trades := []*domain.TradeResult{
		simTrade("t1", 1000, 1.5),
		simTrade("t2", 2000, 0.8),
	}
	if err := tradeStore.InsertBulk(ctx, trades); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	compounder, err := portfolio.New(domain.PortfolioConfig{InitialBalance: 1000, MaxRiskPerTrade: 0.02})
	if err != nil {
		t.Fatalf("portfolio.New failed: %v", err)
	}

	aggregator := NewAggregator(tradeStore, resultStore, compounder)
	aggregator.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	var tally Tally
	for _, tr := range trades {
		tally.Record(tr)
	}

	res, err := aggregator.ComputeAndStore(ctx, "s1", testParams(), tally)
	if err != nil {
		t.Fatalf("ComputeAndStore failed: %v", err)
	}

	// 1000 -> 1050 -> 1029 (see the portfolio tests for the arithmetic)
	if !approx(res.FinalBalance, 1029) {
		t.Errorf("expected FinalBalance 1029, got %f", res.FinalBalance)
	}
	if !approx(res.CompoundGrowth, 1.029) {
		t.Errorf("expected CompoundGrowth 1.029, got %f", res.CompoundGrowth)
	}
	if !approx(res.MaxDrawdown, 0.02) {
		t.Errorf("expected MaxDrawdown 0.02, got %f", res.MaxDrawdown)
	}
	if !approx(res.RiskAdjustedScore, res.CompoundGrowth/res.OutcomeStddev) {
		t.Errorf("expected RiskAdjustedScore = growth/stddev, got %f", res.RiskAdjustedScore)
	}
	if res.CompletedAt != 1_700_000_000 {
		t.Errorf("expected CompletedAt from clock, got %d", res.CompletedAt)
	}

	stored, err := resultStore.GetByID(ctx, "s1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.FinalBalance != res.FinalBalance {
		t.Errorf("stored result differs: %f != %f", stored.FinalBalance, res.FinalBalance)
	}

	// Append-only
	_, err = aggregator.ComputeAndStore(ctx, "s1", testParams(), tally)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestComputeAggregate_Deterministic(t *testing.T) {
	ctx := context.Background()

	var first *domain.StrategyResult
	for run := 0; run < 5; run++ {
		tradeStore := memory.NewTradeResultStore()
		trades := []*domain.TradeResult{
			simTrade("t3", 3000, 1.1),
			simTrade("t1", 1000, 1.5),
			simTrade("t2", 2000, 0.8),
		}
		if err := tradeStore.InsertBulk(ctx, trades); err != nil {
			t.Fatalf("InsertBulk failed: %v", err)
		}

		aggregator := NewAggregator(tradeStore, memory.NewStrategyResultStore(), nil)
		aggregator.now = func() time.Time { return time.Unix(0, 0) }

		res, err := aggregator.ComputeAggregate(ctx, "s1", testParams(), Tally{TotalCalls: 3, Simulated: 3})
		if err != nil {
			t.Fatalf("Run %d: ComputeAggregate failed: %v", run, err)
		}
		if first == nil {
			first = res
			continue
		}
		if *res != *first {
			t.Errorf("Run %d: result differs:\n%+v\n%+v", run, res, first)
		}
	}
}
