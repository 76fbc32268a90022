package domain

// PortfolioState is the running compounding balance of one strategy.
type PortfolioState struct {
	Balance             float64
	Peak                float64
	MaxDrawdownFraction float64 // worst (peak - balance) / peak seen so far
}

// PortfolioPoint is one entry of the balance trace, recorded after each trade.
type PortfolioPoint struct {
	TradeID      string
	Time         int64   // trade entry time (unix seconds)
	PositionSize float64 // capital allocated to the trade
	Balance      float64 // balance after the trade settled
	Peak         float64
	Drawdown     float64 // (peak - balance) / peak
}

// PortfolioConfig controls risk-parity sizing.
type PortfolioConfig struct {
	InitialBalance      float64 `json:"initial_balance" yaml:"initial_balance"`
	MaxRiskPerTrade     float64 `json:"max_risk_per_trade" yaml:"max_risk_per_trade"`       // fraction of balance lost if stopped out
	Sizing              string  `json:"sizing" yaml:"sizing"`                               // SizingPerTrade | SizingWeekly
	MaxPositionFraction float64 `json:"max_position_fraction" yaml:"max_position_fraction"` // cap on size / balance, 0 = uncapped
}

// Sizing disciplines
const (
	SizingPerTrade = "PER_TRADE"
	SizingWeekly   = "WEEKLY"
)
