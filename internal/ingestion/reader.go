// Package ingestion reads calls and candle series from JSON and imports them into stores.
package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/idhash"
)

// ErrMissingSeriesKey is returned for a candle series without token or interval.
var ErrMissingSeriesKey = errors.New("candle series requires token and interval_seconds")

// CandleSeries is one series in a candles file.
type CandleSeries struct {
	Chain           string          `json:"chain"`
	Token           string          `json:"token"`
	IntervalSeconds int             `json:"interval_seconds"`
	Candles         []domain.Candle `json:"candles"`
}

// Key returns the storage key of the series.
func (s CandleSeries) Key() domain.CandleKey {
	return domain.CandleKey{
		Chain:           strings.ToLower(s.Chain),
		Token:           s.Token,
		IntervalSeconds: s.IntervalSeconds,
	}
}

// ReadCalls decodes a JSON array of calls.
// Chains are lower-cased and a missing call_id is derived from the call's identity.
// Addresses are stored as given; validation happens at simulation time so bad
// calls are counted as invalid input rather than dropped here.
func ReadCalls(r io.Reader) ([]*domain.Call, error) {
	var calls []*domain.Call
	if err := json.NewDecoder(r).Decode(&calls); err != nil {
		return nil, fmt.Errorf("decode calls: %w", err)
	}

	for i, c := range calls {
		if c == nil {
			return nil, fmt.Errorf("call %d is null", i)
		}
		c.Chain = strings.ToLower(strings.TrimSpace(c.Chain))
		if c.CallID == "" {
			c.CallID = idhash.ComputeCallID(c.Chain, c.TokenAddress, c.Caller, c.AlertTime)
		}
	}
	return calls, nil
}

// ReadCandleSeries decodes a JSON array of candle series.
func ReadCandleSeries(r io.Reader) ([]CandleSeries, error) {
	var series []CandleSeries
	if err := json.NewDecoder(r).Decode(&series); err != nil {
		return nil, fmt.Errorf("decode candles: %w", err)
	}

	for i, s := range series {
		if s.Token == "" || s.IntervalSeconds <= 0 {
			return nil, fmt.Errorf("%w: series %d", ErrMissingSeriesKey, i)
		}
	}
	return series, nil
}

// ReadCallsFile is ReadCalls on a file.
func ReadCallsFile(path string) ([]*domain.Call, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open calls file: %w", err)
	}
	defer f.Close()
	return ReadCalls(f)
}

// ReadCandlesFile is ReadCandleSeries on a file.
func ReadCandlesFile(path string) ([]CandleSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candles file: %w", err)
	}
	defer f.Close()
	return ReadCandleSeries(f)
}
