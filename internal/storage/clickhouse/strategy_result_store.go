package clickhouse

import (
	"context"
	"fmt"

	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/storage"
)

// StrategyResultStore implements storage.StrategyResultStore using ClickHouse.
type StrategyResultStore struct {
	conn *Conn
}

// NewStrategyResultStore creates a new StrategyResultStore.
func NewStrategyResultStore(conn *Conn) *StrategyResultStore {
	return &StrategyResultStore{conn: conn}
}

// Compile-time interface check.
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

	// ReplacingMergeTree would replace the row; results are append-only.
	exists, err := s.exists(ctx, r.StrategyID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO strategy_results (`+strategyResultColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		r.StrategyID, r.StrategyName, r.ParamsJSON,
		uint32(r.TotalCalls), uint32(r.Simulated), uint32(r.FilterRejected),
		uint32(r.EntryFailed), uint32(r.InsufficientData), uint32(r.InvalidInput),
		uint32(r.Wins), uint32(r.Losses), r.WinRate, r.AvgWin, r.AvgLoss, r.ProfitFactor,
		r.OutcomeMean, r.OutcomeMedian, r.OutcomeP10, r.OutcomeP90, r.OutcomeStddev,
		r.Sharpe, r.AnnualizedSharpe, uint32(r.MaxConsecutiveLosses), r.AvgHoldMinutes,
		r.InitialBalance, r.FinalBalance, r.CompoundGrowth, r.MaxDrawdown, r.RiskAdjustedScore,
		r.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("insert strategy result: %w", err)
	}
	return nil
}

// GetByID retrieves a result by strategy ID. Returns ErrNotFound if not exists.
func (s *StrategyResultStore) GetByID(ctx context.Context, strategyID string) (*domain.StrategyResult, error) {
	query := `SELECT ` + strategyResultColumns + `
		FROM strategy_results FINAL
		WHERE strategy_id = ?
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query, strategyID)
	if err != nil {
		return nil, fmt.Errorf("query by id: %w", err)
	}
	defer rows.Close()

	results, err := scanStrategyResults(rows)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, storage.ErrNotFound
	}
	return results[0], nil
}

// GetAll retrieves all results ordered by strategy_id ASC.
func (s *StrategyResultStore) GetAll(ctx context.Context) ([]*domain.StrategyResult, error) {
	query := `SELECT ` + strategyResultColumns + `
		FROM strategy_results FINAL
		ORDER BY strategy_id ASC
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query all: %w", err)
	}
	defer rows.Close()

	return scanStrategyResults(rows)
}

// exists checks if a result for strategyID exists.
func (s *StrategyResultStore) exists(ctx context.Context, strategyID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count(*) FROM strategy_results FINAL
		WHERE strategy_id = ?
	`, strategyID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanStrategyResults scans multiple rows. UInt32 columns scan into uint32 first;
// the driver does not convert to int.
func scanStrategyResults(rows chRows) ([]*domain.StrategyResult, error) {
	var results []*domain.StrategyResult

	for rows.Next() {
		var r domain.StrategyResult
		var totalCalls, simulated, filterRejected, entryFailed, insufficient, invalid uint32
		var wins, losses, maxConsecLosses uint32

		err := rows.Scan(
			&r.StrategyID, &r.StrategyName, &r.ParamsJSON,
			&totalCalls, &simulated, &filterRejected, &entryFailed, &insufficient, &invalid,
			&wins, &losses, &r.WinRate, &r.AvgWin, &r.AvgLoss, &r.ProfitFactor,
			&r.OutcomeMean, &r.OutcomeMedian, &r.OutcomeP10, &r.OutcomeP90, &r.OutcomeStddev,
			&r.Sharpe, &r.AnnualizedSharpe, &maxConsecLosses, &r.AvgHoldMinutes,
			&r.InitialBalance, &r.FinalBalance, &r.CompoundGrowth, &r.MaxDrawdown, &r.RiskAdjustedScore,
			&r.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan strategy result row: %w", err)
		}

		r.TotalCalls = int(totalCalls)
		r.Simulated = int(simulated)
		r.FilterRejected = int(filterRejected)
		r.EntryFailed = int(entryFailed)
		r.InsufficientData = int(insufficient)
		r.InvalidInput = int(invalid)
		r.Wins = int(wins)
		r.Losses = int(losses)
		r.MaxConsecutiveLosses = int(maxConsecLosses)
		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate strategy result rows: %w", err)
	}
	return results, nil
}
