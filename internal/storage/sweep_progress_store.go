package storage

import "context"

// SweepRun identifies the most recent sweep over a strategy set.
type SweepRun struct {
	RunID      string // uuid of the sweep invocation
	StartedAt  int64  // unix seconds
	Strategies int    // strategies in the configured set
}

// SweepProgressStore provides persistence for sweep state.
// This enables resumption after a crash without re-simulating completed strategies.
type SweepProgressStore interface {
	// GetLastRun returns the most recent sweep run.
	// Returns ErrNotFound if no run has been saved yet.
	GetLastRun(ctx context.Context) (*SweepRun, error)

	// SetLastRun saves the current sweep run.
	SetLastRun(ctx context.Context, run *SweepRun) error

	// IsStrategyDone checks if a strategy's result has been persisted.
	IsStrategyDone(ctx context.Context, strategyID string) (bool, error)

	// MarkStrategyDone records that a strategy's result has been persisted.
	MarkStrategyDone(ctx context.Context, strategyID string) error

	// LoadDoneStrategies returns all completed strategy IDs (for warming the in-memory set).
	LoadDoneStrategies(ctx context.Context) ([]string, error)
}
