package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/storage"
)

// TradeResultStore implements storage.TradeResultStore using PostgreSQL.
type TradeResultStore struct {
	pool *Pool
}

// NewTradeResultStore creates a new TradeResultStore.
func NewTradeResultStore(pool *Pool) *TradeResultStore {
	return &TradeResultStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeResultStore = (*TradeResultStore)(nil)

const insertTradeResultQuery = `
	INSERT INTO trade_results (
		trade_id, call_id, strategy_id,
		entry_price, entry_time,
		exit_time, exit_reason, targets_hit,
		pnl_multiplier, max_reached, hold_duration_minutes,
		passed_filters, status
	) VALUES (
		$1, $2, $3,
		$4, $5,
		$6, $7, $8,
		$9, $10, $11,
		$12, $13
	)
`

const selectTradeResultColumns = `
	SELECT
		trade_id, call_id, strategy_id,
		entry_price, entry_time,
		exit_time, exit_reason, targets_hit,
		pnl_multiplier, max_reached, hold_duration_minutes,
		passed_filters, status
	FROM trade_results
`

func tradeResultArgs(t *domain.TradeResult) []any {
	return []any{
		t.TradeID, t.CallID, t.StrategyID,
		t.EntryPrice, t.EntryTime,
		t.ExitTime, t.ExitReason, t.TargetsHit,
		t.PnLMultiplier, t.MaxReached, t.HoldDurationMinutes,
		t.PassedFilters, t.Status,
	}
}

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeResultStore) Insert(ctx context.Context, t *domain.TradeResult) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertTradeResultQuery, tradeResultArgs(t)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade result: %w", err)
	}
	return nil
}

// InsertBulk adds multiple trades atomically in one round trip.
// Fails entire batch on any duplicate.
func (s *TradeResultStore) InsertBulk(ctx context.Context, trades []*domain.TradeResult) error {
	if len(trades) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, t := range trades {
		if t == nil || t.TradeID == "" {
			return storage.ErrInvalidInput
		}
		batch.Queue(insertTradeResultQuery, tradeResultArgs(t)...)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	results := tx.SendBatch(ctx, batch)
	for range trades {
		if _, err := results.Exec(); err != nil {
			results.Close()
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert trade result in bulk: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeResultStore) GetByID(ctx context.Context, tradeID string) (*domain.TradeResult, error) {
	row := s.pool.QueryRow(ctx, selectTradeResultColumns+` WHERE trade_id = $1`, tradeID)

	t, err := scanTradeResult(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade result by id: %w", err)
	}
	return t, nil
}

// GetByCallID retrieves all trades for a call.
func (s *TradeResultStore) GetByCallID(ctx context.Context, callID string) ([]*domain.TradeResult, error) {
	rows, err := s.pool.Query(ctx, selectTradeResultColumns+`
		WHERE call_id = $1
		ORDER BY strategy_id ASC, trade_id ASC
	`, callID)
	if err != nil {
		return nil, fmt.Errorf("get trade results by call id: %w", err)
	}
	defer rows.Close()

	return scanTradeResults(rows)
}

// GetByStrategy retrieves all trades for a strategy, ordered by entry_time ASC, trade_id ASC.
func (s *TradeResultStore) GetByStrategy(ctx context.Context, strategyID string) ([]*domain.TradeResult, error) {
	rows, err := s.pool.Query(ctx, selectTradeResultColumns+`
		WHERE strategy_id = $1
		ORDER BY entry_time ASC, trade_id ASC
	`, strategyID)
	if err != nil {
		return nil, fmt.Errorf("get trade results by strategy: %w", err)
	}
	defer rows.Close()

	return scanTradeResults(rows)
}

// scanTradeResult scans a single row into a TradeResult.
func scanTradeResult(row pgx.Row) (*domain.TradeResult, error) {
	var t domain.TradeResult

	err := row.Scan(
		&t.TradeID, &t.CallID, &t.StrategyID,
		&t.EntryPrice, &t.EntryTime,
		&t.ExitTime, &t.ExitReason, &t.TargetsHit,
		&t.PnLMultiplier, &t.MaxReached, &t.HoldDurationMinutes,
		&t.PassedFilters, &t.Status,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanTradeResults(rows pgx.Rows) ([]*domain.TradeResult, error) {
	var trades []*domain.TradeResult

	for rows.Next() {
		t, err := scanTradeResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade result row: %w", err)
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade result rows: %w", err)
	}
	return trades, nil
}
