package reporting

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"call-backtest-lab/internal/domain"
)

var csvHeader = []string{
	"rank", "strategy_id", "strategy_name",
	"total_calls", "simulated", "filter_rejected", "entry_failed", "insufficient_data", "invalid_input",
	"wins", "losses", "win_rate", "avg_win", "avg_loss", "profit_factor",
	"outcome_mean", "outcome_median", "outcome_p10", "outcome_p90", "outcome_stddev",
	"sharpe", "annualized_sharpe", "max_consecutive_losses", "avg_hold_minutes",
	"initial_balance", "final_balance", "compound_growth", "max_drawdown", "risk_adjusted_score",
	"completed_at", "params_json",
}

// ErrSinkClosed is returned when appending to a closed CSVSink.
var ErrSinkClosed = errors.New("csv sink closed")

func csvRecord(rank int, r *domain.StrategyResult) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	d := strconv.Itoa

	rankField := ""
	if rank > 0 {
		rankField = d(rank)
	}

	return []string{
		rankField, r.StrategyID, r.StrategyName,
		d(r.TotalCalls), d(r.Simulated), d(r.FilterRejected), d(r.EntryFailed), d(r.InsufficientData), d(r.InvalidInput),
		d(r.Wins), d(r.Losses), f(r.WinRate), f(r.AvgWin), f(r.AvgLoss), f(r.ProfitFactor),
		f(r.OutcomeMean), f(r.OutcomeMedian), f(r.OutcomeP10), f(r.OutcomeP90), f(r.OutcomeStddev),
		f(r.Sharpe), f(r.AnnualizedSharpe), d(r.MaxConsecutiveLosses), f(r.AvgHoldMinutes),
		f(r.InitialBalance), f(r.FinalBalance), f(r.CompoundGrowth), f(r.MaxDrawdown), f(r.RiskAdjustedScore),
		strconv.FormatInt(r.CompletedAt, 10), r.ParamsJSON,
	}
}

// RenderCSV writes results with a header row. Rows are ranked 1..n in the given order.
func RenderCSV(w io.Writer, results []*domain.StrategyResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range results {
		if err := cw.Write(csvRecord(i+1, r)); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSVSink appends one row per completed strategy so an interrupted sweep
// leaves a usable file. Rows appended during a sweep carry no rank;
// Rewrite replaces the file with the final ranked order.
type CSVSink struct {
	path string

	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVSink opens path for appending, creating it and writing the header if
// it is new or empty. Rows from a previous interrupted run are kept.
func NewCSVSink(path string) (*CSVSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv sink: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat csv sink: %w", err)
	}

	s := &CSVSink{path: path, file: file, writer: csv.NewWriter(file)}
	if info.Size() == 0 {
		if err := s.writeLocked(csvHeader); err != nil {
			file.Close()
			return nil, err
		}
	}
	return s, nil
}

// Path returns the file the sink writes to.
func (s *CSVSink) Path() string { return s.path }

// Append writes one unranked row and flushes it to disk.
// Safe for concurrent use; matches the sweep OnResult signature.
func (s *CSVSink) Append(r *domain.StrategyResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return ErrSinkClosed
	}
	return s.writeLocked(csvRecord(0, r))
}

func (s *CSVSink) writeLocked(record []string) error {
	if err := s.writer.Write(record); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return fmt.Errorf("flush csv row: %w", err)
	}
	return nil
}

// Rewrite replaces the file with results in the given (ranked) order.
// The new content goes to a temp file first and is renamed over the sink,
// so a crash mid-rewrite leaves the appended rows intact.
// Appending after Rewrite continues on the rewritten file.
func (s *CSVSink) Rewrite(results []*domain.StrategyResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return ErrSinkClosed
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := RenderCSV(tmp, results); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := s.file.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close csv sink: %w", err)
	}
	s.file = nil

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace csv sink: %w", err)
	}

	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("reopen csv sink: %w", err)
	}
	s.file = file
	s.writer = csv.NewWriter(file)
	return nil
}

// Close closes the underlying file. Close is idempotent.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
