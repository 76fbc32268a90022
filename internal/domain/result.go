package domain

// StrategyResult is the ranked per-strategy summary of a sweep.
// Corresponds to strategy_results table (ClickHouse / SQLite).
type StrategyResult struct {
	StrategyID   string // hash of the canonical params JSON
	StrategyName string
	ParamsJSON   string

	// Counts
	TotalCalls       int
	Simulated        int // passed filters and entered
	FilterRejected   int
	EntryFailed      int
	InsufficientData int
	InvalidInput     int

	// Trade statistics (simulated trades only)
	Wins                 int
	Losses               int
	WinRate              float64
	AvgWin               float64 // mean pnl-1 over winners
	AvgLoss              float64 // mean 1-pnl over losers, positive
	ProfitFactor         float64
	OutcomeMean          float64 // mean pnl-1
	OutcomeMedian        float64
	OutcomeP10           float64
	OutcomeP90           float64
	OutcomeStddev        float64
	Sharpe               float64
	AnnualizedSharpe     float64
	MaxConsecutiveLosses int
	AvgHoldMinutes       float64

	// Portfolio
	InitialBalance    float64
	FinalBalance      float64
	CompoundGrowth    float64 // final / initial
	MaxDrawdown       float64 // from the portfolio trace
	RiskAdjustedScore float64 // compound growth / stddev of returns

	CompletedAt int64 // unix seconds
}
