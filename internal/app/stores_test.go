package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-backtest-lab/internal/config"
	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/observability"
)

const testCalls = `[
  {"call_id": "c1", "chain": "solana", "token_address": "So11111111111111111111111111111111111111112", "caller": "alpha", "alert_time": 1700000040, "alert_price": 1.0},
  {"call_id": "c2", "chain": "solana", "token_address": "11111111111111111111111111111111", "caller": "beta", "alert_time": 1700000100, "alert_price": 1.0}
]`

const testCandles = `[
  {"chain": "solana", "token": "So11111111111111111111111111111111111111112", "interval_seconds": 60, "candles": [
    {"timestamp": 1700000040, "open": 1.0, "high": 1.25, "low": 0.95, "close": 1.1, "volume": 1000},
    {"timestamp": 1700000100, "open": 1.1, "high": 1.1, "low": 0.75, "close": 0.8, "volume": 1000}
  ]}
]`

const testConfig = `
strategies:
  - name: ladder
    entry: {mode: IMMEDIATE}
    targets: [{multiple: 1.2, sell_fraction: 0.5}]
    stop: {loss_percent: 0.2}
  - name: hold
    entry: {mode: IMMEDIATE}
    stop: {loss_percent: 0.3}
input:
  calls_file: %s
  candles_file: %s
storage:
  sqlite_path: %s
rank_by: compound_growth
workers: 2
`

func writeInputs(t *testing.T) *config.Config {
	t.Helper()
	for _, k := range []string{config.EnvPostgresDSN, config.EnvClickHouseDSN, config.EnvSQLitePath, config.EnvLogLevel, config.EnvWorkers} {
		t.Setenv(k, "")
	}

	dir := t.TempDir()
	callsPath := filepath.Join(dir, "calls.json")
	candlesPath := filepath.Join(dir, "candles.json")
	require.NoError(t, os.WriteFile(callsPath, []byte(testCalls), 0o644))
	require.NoError(t, os.WriteFile(candlesPath, []byte(testCandles), 0o644))

	yaml := fmt.Sprintf(testConfig, callsPath, candlesPath, filepath.Join(dir, "results.db"))
	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	return cfg
}

func TestOpenStores_MemoryWithSQLiteSink(t *testing.T) {
	ctx := context.Background()
	cfg := writeInputs(t)

	stores, err := OpenStores(ctx, cfg, nil)
	require.NoError(t, err)

	calls, err := stores.Calls.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, calls, 2)

	var sunk []*domain.StrategyResult
	sink := func(r *domain.StrategyResult) error {
		sunk = append(sunk, r)
		return nil
	}

	m := observability.NewMetrics("app_test")
	result, err := NewSweep(cfg, stores, sink, nil, m).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.StrategiesRun)
	assert.Len(t, sunk, 2)
	require.Len(t, result.Results, 2)
	assert.Equal(t, "ladder", result.Results[0].StrategyName)

	require.NoError(t, stores.Close())
	require.NoError(t, stores.Close(), "Close is idempotent")

	// A second process sees the persisted results and resumes
	stores, err = OpenStores(ctx, cfg, nil)
	require.NoError(t, err)
	defer stores.Close()

	stored, err := stores.Results.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	result, err = NewSweep(cfg, stores, nil, nil, nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.StrategiesRun)
	assert.Equal(t, 2, result.StrategiesResumed)
	assert.Len(t, result.Results, 2)
}

func TestOpenStores_MissingInput(t *testing.T) {
	cfg := writeInputs(t)
	cfg.Input.CallsFile = filepath.Join(t.TempDir(), "missing.json")

	_, err := OpenStores(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestOpenStores_UnknownBackend(t *testing.T) {
	cfg := writeInputs(t)
	cfg.Storage.Backend = "redis"

	_, err := OpenStores(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, config.ErrUnknownBackend)
}
