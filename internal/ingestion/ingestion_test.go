package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/idhash"
	"call-backtest-lab/internal/storage"
	"call-backtest-lab/internal/storage/memory"
)

const callsJSON = `[
  {"call_id": "c1", "chain": "solana", "token_address": "So11111111111111111111111111111111111111112", "caller": "alpha", "alert_time": 1700000000},
  {"chain": " Base ", "token_address": "0xAbC0000000000000000000000000000000000001", "caller": "beta", "alert_time": 1700000600, "alert_price": 0.0012}
]`

const candlesJSON = `[
  {"chain": "SOLANA", "token": "So11111111111111111111111111111111111111112", "interval_seconds": 60,
   "candles": [
     {"timestamp": 1700000000, "open": 1, "high": 1.1, "low": 0.9, "close": 1.05, "volume": 100},
     {"timestamp": 1700000060, "open": 1.05, "high": 1.2, "low": 1.0, "close": 1.15, "volume": 120}
   ]},
  {"chain": "base", "token": "0xAbC0000000000000000000000000000000000001", "interval_seconds": 300,
   "candles": [
     {"timestamp": 1700000400, "open": 0.001, "high": 0.0015, "low": 0.0009, "close": 0.0012, "volume": 5000}
   ]}
]`

func TestReadCalls(t *testing.T) {
	calls, err := ReadCalls(strings.NewReader(callsJSON))
	if err != nil {
		t.Fatalf("ReadCalls failed: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}

	if calls[0].CallID != "c1" {
		t.Errorf("explicit call_id should be kept, got %s", calls[0].CallID)
	}

	c := calls[1]
	if c.Chain != domain.ChainBase {
		t.Errorf("chain should be normalized, got %q", c.Chain)
	}
	want := idhash.ComputeCallID("base", c.TokenAddress, "beta", 1700000600)
	if c.CallID != want {
		t.Errorf("derived CallID = %s, want %s", c.CallID, want)
	}
	if c.AlertPrice != 0.0012 {
		t.Errorf("AlertPrice = %f, want 0.0012", c.AlertPrice)
	}
}

func TestReadCalls_Invalid(t *testing.T) {
	if _, err := ReadCalls(strings.NewReader(`{"not": "an array"}`)); err == nil {
		t.Error("expected error for non-array input")
	}
	if _, err := ReadCalls(strings.NewReader(`[null]`)); err == nil {
		t.Error("expected error for null call")
	}
}

func TestReadCandleSeries(t *testing.T) {
	series, err := ReadCandleSeries(strings.NewReader(candlesJSON))
	if err != nil {
		t.Fatalf("ReadCandleSeries failed: %v", err)
	}
	if len(series) != 2 || len(series[0].Candles) != 2 {
		t.Fatalf("unexpected series: %+v", series)
	}

	key := series[0].Key()
	if key.Chain != "solana" || key.IntervalSeconds != 60 {
		t.Errorf("unexpected key: %+v", key)
	}

	_, err = ReadCandleSeries(strings.NewReader(`[{"chain": "solana", "token": "x", "candles": []}]`))
	if !errors.Is(err, ErrMissingSeriesKey) {
		t.Errorf("expected ErrMissingSeriesKey, got %v", err)
	}
}

func TestImporter_Import(t *testing.T) {
	ctx := context.Background()
	callStore := memory.NewCallStore()
	candleStore := memory.NewCandleStore()

	calls, err := ReadCalls(strings.NewReader(callsJSON))
	if err != nil {
		t.Fatalf("ReadCalls failed: %v", err)
	}
	series, err := ReadCandleSeries(strings.NewReader(candlesJSON))
	if err != nil {
		t.Fatalf("ReadCandleSeries failed: %v", err)
	}

	im := NewImporter(ImporterOptions{CallStore: callStore, CandleStore: candleStore, BatchSize: 1})

	stats, err := im.Import(ctx, calls, series)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if stats.CallsStored != 2 || stats.SeriesStored != 2 || stats.CandlesStored != 3 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	stored, err := candleStore.GetByTimeRange(ctx, series[0].Key(), 0, 2_000_000_000)
	if err != nil || len(stored) != 2 {
		t.Errorf("expected 2 stored candles, got %d (%v)", len(stored), err)
	}

	// Re-import is idempotent
	stats, err = im.Import(ctx, calls, series)
	if err != nil {
		t.Fatalf("second Import failed: %v", err)
	}
	if stats.CallsStored != 0 || stats.CallsDuplicate != 2 || stats.SeriesDuplicate != 2 {
		t.Errorf("unexpected stats on re-import: %+v", stats)
	}

	all, _ := callStore.GetAll(ctx)
	if len(all) != 2 {
		t.Errorf("expected 2 calls after re-import, got %d", len(all))
	}
}

func TestImporter_PartialDuplicateBatch(t *testing.T) {
	ctx := context.Background()
	callStore := memory.NewCallStore()

	calls, _ := ReadCalls(strings.NewReader(callsJSON))
	if err := callStore.Insert(ctx, calls[0]); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// One batch holding a stored call and a new one falls back to single inserts
	im := NewImporter(ImporterOptions{CallStore: callStore})
	stats, err := im.Import(ctx, calls, nil)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if stats.CallsStored != 1 || stats.CallsDuplicate != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestImporter_InvalidSeries(t *testing.T) {
	im := NewImporter(ImporterOptions{CandleStore: memory.NewCandleStore()})

	_, err := im.Import(context.Background(), nil, []CandleSeries{{Chain: "solana", Candles: []domain.Candle{{Timestamp: 1}}}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestReadFiles(t *testing.T) {
	dir := t.TempDir()
	callsPath := filepath.Join(dir, "calls.json")
	candlesPath := filepath.Join(dir, "candles.json")
	if err := os.WriteFile(callsPath, []byte(callsJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(candlesPath, []byte(candlesJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	calls, err := ReadCallsFile(callsPath)
	if err != nil || len(calls) != 2 {
		t.Errorf("ReadCallsFile = %d calls, %v", len(calls), err)
	}
	series, err := ReadCandlesFile(candlesPath)
	if err != nil || len(series) != 2 {
		t.Errorf("ReadCandlesFile = %d series, %v", len(series), err)
	}

	if _, err := ReadCallsFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
