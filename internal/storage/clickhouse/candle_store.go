package clickhouse

import (
	"context"
	"fmt"

	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/storage"
)

// CandleStore implements storage.CandleStore using ClickHouse.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// InsertBulk adds candles for one series.
// Fails entire batch on duplicate (chain, token, interval, timestamp).
// MergeTree does not enforce keys, so duplicates are checked before the insert.
func (s *CandleStore) InsertBulk(ctx context.Context, key domain.CandleKey, candles []domain.Candle) error {
	if key.Token == "" || key.IntervalSeconds <= 0 {
		return storage.ErrInvalidInput
	}
	if len(candles) == 0 {
		return nil
	}

	// Intra-batch duplicates
	seen := make(map[int64]struct{}, len(candles))
	minTS, maxTS := candles[0].Timestamp, candles[0].Timestamp
	for _, c := range candles {
		if _, exists := seen[c.Timestamp]; exists {
			return storage.ErrDuplicateKey
		}
		seen[c.Timestamp] = struct{}{}
		minTS = min(minTS, c.Timestamp)
		maxTS = max(maxTS, c.Timestamp)
	}

	// Duplicates against stored rows, one range query per batch
	existing, err := s.timestamps(ctx, key, minTS, maxTS)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	for _, ts := range existing {
		if _, dup := seen[ts]; dup {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candles (
			chain, token, interval_seconds, timestamp,
			open, high, low, close, volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, c := range candles {
		err = batch.Append(
			key.Chain, key.Token, uint32(key.IntervalSeconds), c.Timestamp,
			c.Open, c.High, c.Low, c.Close, c.Volume,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves candles of a series within [start, end] (inclusive),
// ordered by timestamp ASC.
func (s *CandleStore) GetByTimeRange(ctx context.Context, key domain.CandleKey, start, end int64) ([]domain.Candle, error) {
	query := `
		SELECT timestamp, open, high, low, close, volume
		FROM candles
		WHERE chain = ? AND token = ? AND interval_seconds = ?
		  AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`

	rows, err := s.conn.Query(ctx, query, key.Chain, key.Token, uint32(key.IntervalSeconds), start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// timestamps returns the stored timestamps of a series within [start, end].
func (s *CandleStore) timestamps(ctx context.Context, key domain.CandleKey, start, end int64) ([]int64, error) {
	query := `
		SELECT timestamp FROM candles
		WHERE chain = ? AND token = ? AND interval_seconds = ?
		  AND timestamp >= ? AND timestamp <= ?
	`

	rows, err := s.conn.Query(ctx, query, key.Chain, key.Token, uint32(key.IntervalSeconds), start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

func scanCandles(rows chRows) ([]domain.Candle, error) {
	var candles []domain.Candle

	for rows.Next() {
		var c domain.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		candles = append(candles, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}
	return candles, nil
}
