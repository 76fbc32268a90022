package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/storage"
)

// StrategyResultStore implements storage.StrategyResultStore on SQLite.
// Each Insert commits on its own, so every finished strategy survives a crash.
type StrategyResultStore struct {
	db *DB
}

// NewStrategyResultStore creates a new StrategyResultStore.
func NewStrategyResultStore(db *DB) *StrategyResultStore {
	return &StrategyResultStore{db: db}
}

var _ storage.StrategyResultStore = (*StrategyResultStore)(nil)

const strategyResultColumns = `
	strategy_id, strategy_name, params_json,
	total_calls, simulated, filter_rejected, entry_failed, insufficient_data, invalid_input,
	wins, losses, win_rate, avg_win, avg_loss, profit_factor,
	outcome_mean, outcome_median, outcome_p10, outcome_p90, outcome_stddev,
	sharpe, annualized_sharpe, max_consecutive_losses, avg_hold_minutes,
	initial_balance, final_balance, compound_growth, max_drawdown, risk_adjusted_score,
	completed_at
`

// Insert adds a new result. Returns ErrDuplicateKey if strategy_id exists.
func (s *StrategyResultStore) Insert(ctx context.Context, r *domain.StrategyResult) error {
	if r == nil || r.StrategyID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO strategy_results (`+strategyResultColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.StrategyID, r.StrategyName, r.ParamsJSON,
		r.TotalCalls, r.Simulated, r.FilterRejected, r.EntryFailed, r.InsufficientData, r.InvalidInput,
		r.Wins, r.Losses, r.WinRate, r.AvgWin, r.AvgLoss, r.ProfitFactor,
		r.OutcomeMean, r.OutcomeMedian, r.OutcomeP10, r.OutcomeP90, r.OutcomeStddev,
		r.Sharpe, r.AnnualizedSharpe, r.MaxConsecutiveLosses, r.AvgHoldMinutes,
		r.InitialBalance, r.FinalBalance, r.CompoundGrowth, r.MaxDrawdown, r.RiskAdjustedScore,
		r.CompletedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert strategy result: %w", err)
	}
	return nil
}

// GetByID retrieves a result by strategy ID. Returns ErrNotFound if not exists.
func (s *StrategyResultStore) GetByID(ctx context.Context, strategyID string) (*domain.StrategyResult, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+strategyResultColumns+` FROM strategy_results WHERE strategy_id = ?`, strategyID)

	r, err := scanStrategyResult(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get strategy result: %w", err)
	}
	return r, nil
}

// GetAll retrieves all results ordered by strategy_id ASC.
func (s *StrategyResultStore) GetAll(ctx context.Context) ([]*domain.StrategyResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+strategyResultColumns+` FROM strategy_results ORDER BY strategy_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("get all strategy results: %w", err)
	}
	defer rows.Close()

	var results []*domain.StrategyResult
	for rows.Next() {
		r, err := scanStrategyResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan strategy result row: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStrategyResult(row scanner) (*domain.StrategyResult, error) {
	var r domain.StrategyResult
	err := row.Scan(
		&r.StrategyID, &r.StrategyName, &r.ParamsJSON,
		&r.TotalCalls, &r.Simulated, &r.FilterRejected, &r.EntryFailed, &r.InsufficientData, &r.InvalidInput,
		&r.Wins, &r.Losses, &r.WinRate, &r.AvgWin, &r.AvgLoss, &r.ProfitFactor,
		&r.OutcomeMean, &r.OutcomeMedian, &r.OutcomeP10, &r.OutcomeP90, &r.OutcomeStddev,
		&r.Sharpe, &r.AnnualizedSharpe, &r.MaxConsecutiveLosses, &r.AvgHoldMinutes,
		&r.InitialBalance, &r.FinalBalance, &r.CompoundGrowth, &r.MaxDrawdown, &r.RiskAdjustedScore,
		&r.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
