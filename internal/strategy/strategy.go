package strategy

import (
	"context"
	"errors"

	"call-backtest-lab/internal/domain"
)

// Input errors
var (
	ErrNilCall   = errors.New("strategy input has no call")
	ErrNoCandles = errors.New("strategy input has no candles")
)

// Strategy produces a trade result for one call.
type Strategy interface {
	// Execute simulates the call on its candle series.
	// Returns a deterministic trade result.
	Execute(ctx context.Context, input *Input) (*domain.TradeResult, error)

	// ID returns the strategy identifier (hash of its parameters).
	ID() string

	// Params returns the parameters the strategy was built from.
	Params() domain.StrategyParams
}

// Input holds all data needed for strategy execution.
type Input struct {
	Call    *domain.Call
	Candles []domain.Candle // ascending, starting at or near the alert
}

// Validate checks the input is usable.
func (in *Input) Validate() error {
	if in == nil || in.Call == nil {
		return ErrNilCall
	}
	if len(in.Candles) == 0 {
		return ErrNoCandles
	}
	return nil
}
