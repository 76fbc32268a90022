package strategy

import (
	"context"
	"errors"

	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/entry"
	"call-backtest-lab/internal/exit"
	"call-backtest-lab/internal/idhash"
	"call-backtest-lab/internal/indicators"
)

// CallStrategy runs the entry resolver and exit engine described by one StrategyParams.
type CallStrategy struct {
	id     string
	params domain.StrategyParams
	engine *exit.Engine
}

// NewCallStrategy creates a CallStrategy. Use FromParams to validate first.
func NewCallStrategy(params domain.StrategyParams) *CallStrategy {
	return &CallStrategy{
		id:     idhash.ComputeStrategyID(params),
		params: params,
		engine: exit.New(params),
	}
}

// ID returns the strategy identifier.
func (s *CallStrategy) ID() string {
	return s.id
}

// Params returns the strategy parameters.
func (s *CallStrategy) Params() domain.StrategyParams {
	return s.params
}

// Execute resolves the entry and walks the exit engine.
// An entry that never fires yields a result with PassedFilters=false and the floor pnl.
func (s *CallStrategy) Execute(_ context.Context, input *Input) (*domain.TradeResult, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	p := indicators.NewPipeline(input.Candles)

	res, err := entry.Resolve(s.params.Entry, input.Call, input.Candles, p)
	if err != nil {
		var failed *entry.Failed
		if errors.As(err, &failed) {
			return s.entryFailed(input.Call, failed.Reason), nil
		}
		return nil, err
	}

	out := s.engine.Run(input.Candles, p, *res)

	return &domain.TradeResult{
		TradeID:             idhash.ComputeTradeID(input.Call.CallID, s.id),
		CallID:              input.Call.CallID,
		StrategyID:          s.id,
		EntryPrice:          res.Price,
		EntryTime:           res.Time,
		ExitTime:            out.ExitTime,
		ExitReason:          out.Reason,
		TargetsHit:          out.TargetsHit,
		PnLMultiplier:       out.PnLMultiplier,
		MaxReached:          out.MaxReached,
		HoldDurationMinutes: float64(out.ExitTime-res.Time) / 60,
		PassedFilters:       true,
		Status:              domain.TradeStatusSimulated,
	}, nil
}

func (s *CallStrategy) entryFailed(call *domain.Call, reason string) *domain.TradeResult {
	return &domain.TradeResult{
		TradeID:       idhash.ComputeTradeID(call.CallID, s.id),
		CallID:        call.CallID,
		StrategyID:    s.id,
		EntryPrice:    call.AlertPrice,
		EntryTime:     call.AlertTime,
		ExitTime:      call.AlertTime,
		ExitReason:    reason,
		PnLMultiplier: s.params.FloorFraction(),
		MaxReached:    1.0,
		PassedFilters: false,
		Status:        domain.TradeStatusEntryFailed,
	}
}

// Ensure CallStrategy implements Strategy
var _ Strategy = (*CallStrategy)(nil)
