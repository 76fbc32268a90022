package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"call-backtest-lab/internal/storage"
)

// SweepProgressStore implements storage.SweepProgressStore on SQLite.
type SweepProgressStore struct {
	db *DB
}

// NewSweepProgressStore creates a new SweepProgressStore.
func NewSweepProgressStore(db *DB) *SweepProgressStore {
	return &SweepProgressStore{db: db}
}

var _ storage.SweepProgressStore = (*SweepProgressStore)(nil)

// GetLastRun returns the most recent sweep run.
func (s *SweepProgressStore) GetLastRun(ctx context.Context) (*storage.SweepRun, error) {
	var run storage.SweepRun
	err := s.db.QueryRowContext(ctx, `SELECT run_id, started_at, strategies FROM sweep_progress WHERE id = 1`).
		Scan(&run.RunID, &run.StartedAt, &run.Strategies)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sweep_progress (id, run_id, started_at, strategies)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET run_id = excluded.run_id,
		    started_at = excluded.started_at,
		    strategies = excluded.strategies
	`, run.RunID, run.StartedAt, run.Strategies)
	return err
}

// IsStrategyDone checks if a strategy's result has been persisted.
func (s *SweepProgressStore) IsStrategyDone(ctx context.Context, strategyID string) (bool, error) {
	if strategyID == "" {
		return false, storage.ErrInvalidInput
	}

	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM sweep_done_strategies WHERE strategy_id = ?)`, strategyID,
	).Scan(&exists)
	return exists, err
}

// MarkStrategyDone records that a strategy's result has been persisted.
func (s *SweepProgressStore) MarkStrategyDone(ctx context.Context, strategyID string) error {
	if strategyID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sweep_done_strategies (strategy_id) VALUES (?) ON CONFLICT (strategy_id) DO NOTHING`, strategyID)
	return err
}

// LoadDoneStrategies returns all completed strategy IDs.
func (s *SweepProgressStore) LoadDoneStrategies(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT strategy_id FROM sweep_done_strategies ORDER BY strategy_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
