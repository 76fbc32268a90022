package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/storage"
)

// CallStore implements storage.CallStore using PostgreSQL.
type CallStore struct {
	pool *Pool
}

// NewCallStore creates a new CallStore.
func NewCallStore(pool *Pool) *CallStore {
	return &CallStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CallStore = (*CallStore)(nil)

const insertCallQuery = `
	INSERT INTO calls (call_id, chain, token_address, caller, alert_time, alert_price)
	VALUES ($1, $2, $3, $4, $5, $6)
`

const selectCallColumns = `
	SELECT call_id, chain, token_address, caller, alert_time, alert_price
	FROM calls
`

// Insert adds a new call. Returns ErrDuplicateKey if call_id exists.
func (s *CallStore) Insert(ctx context.Context, c *domain.Call) error {
	if c == nil || c.CallID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertCallQuery,
		c.CallID, c.Chain, c.TokenAddress, c.Caller, c.AlertTime, c.AlertPrice,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

// InsertBulk adds multiple calls atomically. Fails entire batch on any duplicate.
func (s *CallStore) InsertBulk(ctx context.Context, calls []*domain.Call) error {
	if len(calls) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range calls {
		if c == nil || c.CallID == "" {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, insertCallQuery,
			c.CallID, c.Chain, c.TokenAddress, c.Caller, c.AlertTime, c.AlertPrice,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert call in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID retrieves a call by its ID. Returns ErrNotFound if not exists.
func (s *CallStore) GetByID(ctx context.Context, callID string) (*domain.Call, error) {
	row := s.pool.QueryRow(ctx, selectCallColumns+` WHERE call_id = $1`, callID)

	var c domain.Call
	err := row.Scan(&c.CallID, &c.Chain, &c.TokenAddress, &c.Caller, &c.AlertTime, &c.AlertPrice)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get call by id: %w", err)
	}
	return &c, nil
}

// GetByTimeRange retrieves calls alerted within [start, end] (inclusive).
func (s *CallStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Call, error) {
	rows, err := s.pool.Query(ctx, selectCallColumns+`
		WHERE alert_time >= $1 AND alert_time <= $2
		ORDER BY alert_time ASC, call_id ASC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("get calls by time range: %w", err)
	}
	defer rows.Close()

	return scanCalls(rows)
}

// GetAll retrieves all calls ordered by alert_time ASC, call_id ASC.
func (s *CallStore) GetAll(ctx context.Context) ([]*domain.Call, error) {
	rows, err := s.pool.Query(ctx, selectCallColumns+` ORDER BY alert_time ASC, call_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("get all calls: %w", err)
	}
	defer rows.Close()

	return scanCalls(rows)
}

func scanCalls(rows pgx.Rows) ([]*domain.Call, error) {
	var calls []*domain.Call

	for rows.Next() {
		var c domain.Call
		if err := rows.Scan(&c.CallID, &c.Chain, &c.TokenAddress, &c.Caller, &c.AlertTime, &c.AlertPrice); err != nil {
			return nil, fmt.Errorf("scan call row: %w", err)
		}
		calls = append(calls, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call rows: %w", err)
	}
	return calls, nil
}
