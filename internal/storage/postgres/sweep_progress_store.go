package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"call-backtest-lab/internal/storage"
)

// SweepProgressStore is a PostgreSQL implementation of storage.SweepProgressStore.
// Uses two tables:
//   - sweep_progress: single row with the last run
//   - sweep_done_strategies: set of persisted strategy IDs
type SweepProgressStore struct {
	pool *Pool
}

// NewSweepProgressStore creates a new PostgreSQL sweep progress store.
func NewSweepProgressStore(pool *Pool) *SweepProgressStore {
	return &SweepProgressStore{pool: pool}
}

var _ storage.SweepProgressStore = (*SweepProgressStore)(nil)

// GetLastRun returns the most recent sweep run.
func (s *SweepProgressStore) GetLastRun(ctx context.Context) (*storage.SweepRun, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT run_id, started_at, strategies
		FROM sweep_progress
		LIMIT 1
	`)

	var run storage.SweepRun
	if err := row.Scan(&run.RunID, &run.StartedAt, &run.Strategies); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

// SetLastRun saves the current sweep run, replacing the previous one.
func (s *SweepProgressStore) SetLastRun(ctx context.Context, run *storage.SweepRun) error {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sweep_progress (id, run_id, started_at, strategies, updated_at)
		VALUES (1, $1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE
		SET run_id = EXCLUDED.run_id,
		    started_at = EXCLUDED.started_at,
		    strategies = EXCLUDED.strategies,
		    updated_at = NOW()
	`, run.RunID, run.StartedAt, run.Strategies)
	return err
}

// IsStrategyDone checks if a strategy's result has been persisted.
func (s *SweepProgressStore) IsStrategyDone(ctx context.Context, strategyID string) (bool, error) {
	if strategyID == "" {
		return false, storage.ErrInvalidInput
	}

	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM sweep_done_strategies WHERE strategy_id = $1)
	`, strategyID).Scan(&exists)
	return exists, err
}

// MarkStrategyDone records that a strategy's result has been persisted.
func (s *SweepProgressStore) MarkStrategyDone(ctx context.Context, strategyID string) error {
	if strategyID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sweep_done_strategies (strategy_id, done_at)
		VALUES ($1, NOW())
		ON CONFLICT (strategy_id) DO NOTHING
	`, strategyID)
	return err
}

// LoadDoneStrategies returns all completed strategy IDs.
func (s *SweepProgressStore) LoadDoneStrategies(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT strategy_id FROM sweep_done_strategies ORDER BY strategy_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, pgx.RowTo[string])
}
