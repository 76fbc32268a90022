package domain

// TradeResult is the outcome of simulating one call under one strategy.
// Corresponds to trade_results table in PostgreSQL. Never mutated after creation.
type TradeResult struct {
	TradeID    string `json:"trade_id"`    // deterministic hash of call_id|strategy_id
	CallID     string `json:"call_id"`     // simulated call
	StrategyID string `json:"strategy_id"` // strategy identifier

	// Entry
	EntryPrice float64 `json:"entry_price"`
	EntryTime  int64   `json:"entry_time"` // unix seconds

	// Exit
	ExitTime   int64  `json:"exit_time"` // unix seconds
	ExitReason string `json:"exit_reason"`
	TargetsHit int    `json:"targets_hit"` // ladder targets that fired

	// Outcome
	PnLMultiplier       float64 `json:"pnl_multiplier"` // realized multiple, 1.0 = breakeven
	MaxReached          float64 `json:"max_reached"`    // highest multiple seen, >= 1.0
	HoldDurationMinutes float64 `json:"hold_duration_minutes"`

	PassedFilters bool   `json:"passed_filters"`
	Status        string `json:"status"` // TradeStatus* value
}

// IsWin reports whether the trade realized a gain.
func (t *TradeResult) IsWin() bool {
	return t.PnLMultiplier > 1
}

// Trade status constants
const (
	TradeStatusSimulated      = "SIMULATED"
	TradeStatusFilterRejected = "FILTER_REJECTED"
	TradeStatusEntryFailed    = "ENTRY_FAILED"
)

// Exit reasons
const (
	ExitReasonTargetsComplete = "all targets hit"
	ExitReasonStopLoss        = "stop loss"
	ExitReasonStagedStop      = "staged stop"
	ExitReasonKijunStop       = "kijun stop"
	ExitReasonCloudStop       = "cloud bottom stop"
	ExitReasonSMAStop         = "sma20 stop"
	ExitReasonTrailingStop    = "trailing stop"
	ExitReasonEndOfData       = "end of data"
	ExitReasonIndicatorPrefix = "indicator exit: "
)

// Entry failure reasons
const (
	EntryFailNoDip          = "no dip found"
	EntryFailNoConfirmation = "no confirmation"
	EntryFailNeverTriggered = "entry never triggered"
)
