package storage

import (
	"context"

	"call-backtest-lab/internal/domain"
)

// CallStore provides access to calls storage.
type CallStore interface {
	// Insert adds a new call. Returns ErrDuplicateKey if call_id exists.
	Insert(ctx context.Context, c *domain.Call) error

	// InsertBulk adds multiple calls atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, calls []*domain.Call) error

	// GetByID retrieves a call by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, callID string) (*domain.Call, error)

	// GetByTimeRange retrieves calls alerted within [start, end] (inclusive),
	// ordered by alert_time ASC, call_id ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Call, error)

	// GetAll retrieves all calls ordered by alert_time ASC, call_id ASC.
	GetAll(ctx context.Context) ([]*domain.Call, error)
}

// CandleStore provides access to candles storage.
type CandleStore interface {
	// InsertBulk adds candles for one series. Fails entire batch on duplicate timestamp.
	InsertBulk(ctx context.Context, key domain.CandleKey, candles []domain.Candle) error

	// GetByTimeRange retrieves candles of a series within [start, end] (inclusive),
	// ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, key domain.CandleKey, start, end int64) ([]domain.Candle, error)
}

// TradeResultStore provides access to trade_results storage.
type TradeResultStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, t *domain.TradeResult) error

	// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, trades []*domain.TradeResult) error

	// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.TradeResult, error)

	// GetByCallID retrieves all trades for a call.
	GetByCallID(ctx context.Context, callID string) ([]*domain.TradeResult, error)

	// GetByStrategy retrieves all trades for a strategy, ordered by entry_time ASC, trade_id ASC.
	GetByStrategy(ctx context.Context, strategyID string) ([]*domain.TradeResult, error)
}

// StrategyResultStore provides access to strategy_results storage.
type StrategyResultStore interface {
	// Insert adds a new result. Returns ErrDuplicateKey if strategy_id exists.
	Insert(ctx context.Context, r *domain.StrategyResult) error

	// GetByID retrieves a result by strategy ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, strategyID string) (*domain.StrategyResult, error)

	// GetAll retrieves all results ordered by strategy_id ASC.
	GetAll(ctx context.Context) ([]*domain.StrategyResult, error)
}
