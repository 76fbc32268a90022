// Package reporting renders ranked strategy results as tables, CSV and Markdown.
package reporting

import (
	"time"

	"call-backtest-lab/internal/domain"
)

// Report is a ranked snapshot of stored strategy results.
type Report struct {
	GeneratedAt time.Time
	RankBy      string

	Summary Summary

	// Results sorted best first by RankBy, truncated to the requested limit
	Results []*domain.StrategyResult
}

// Summary describes the stored sweep as a whole, before truncation.
type Summary struct {
	Strategies     int
	TotalCalls     int // calls seen by the first strategy; every strategy sees the same set
	Simulated      int
	FilterRejected int
	EntryFailed    int
	Insufficient   int
	Invalid        int
	Profitable     int // strategies with compound growth above 1

	BestGrowth  float64
	WorstGrowth float64
}
