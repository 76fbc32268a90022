package domain

// StrategyParams is the immutable description of one strategy under test.
// Every entry/exit family is a data variant of the same engine.
type StrategyParams struct {
	Name           string          `json:"name,omitempty" yaml:"name"`
	Entry          EntryConfig     `json:"entry" yaml:"entry"`
	Targets        []LadderTarget  `json:"targets,omitempty" yaml:"targets"`
	Stop           StopConfig      `json:"stop" yaml:"stop"`
	Trailing       *TrailingConfig `json:"trailing,omitempty" yaml:"trailing"`
	IndicatorExits []string        `json:"indicator_exits,omitempty" yaml:"indicator_exits"` // ExitSignal* values
	MinExitPrice   float64         `json:"min_exit_price" yaml:"min_exit_price"`             // floor as fraction of entry price
	Filter         FilterConfig    `json:"filter" yaml:"filter"`
}

// FloorFraction returns the lowest pnl multiple a trade may realize.
func (p StrategyParams) FloorFraction() float64 {
	floor := p.MinExitPrice
	if p.Stop.LossPercent > 0 && 1-p.Stop.LossPercent > floor {
		floor = 1 - p.Stop.LossPercent
	}
	return floor
}

// EntryConfig selects how a position is opened.
type EntryConfig struct {
	Mode               string  `json:"mode" yaml:"mode"`                                         // EntryMode* value
	DelayMinutes       int     `json:"delay_minutes,omitempty" yaml:"delay_minutes"`             // DELAYED
	DipPercent         float64 `json:"dip_percent,omitempty" yaml:"dip_percent"`                 // DIP_WAIT
	DipConfirmation    float64 `json:"dip_confirmation,omitempty" yaml:"dip_confirmation"`       // DIP_WAIT, 0 = enter on the dip
	ConfirmationWindow int     `json:"confirmation_window,omitempty" yaml:"confirmation_window"` // candles to wait for the bounce
	Signal             string  `json:"signal,omitempty" yaml:"signal"`                           // INDICATOR: EntrySignal* value
}

// Entry mode constants
const (
	EntryModeImmediate = "IMMEDIATE"
	EntryModeDelayed   = "DELAYED"
	EntryModeDipWait   = "DIP_WAIT"
	EntryModeIndicator = "INDICATOR"
)

// Indicator entry signals
const (
	EntrySignalTenkanKijunCross = "TENKAN_KIJUN_CROSS"
	EntrySignalCloudCross       = "CLOUD_CROSS"
	EntrySignalPriceAboveCloud  = "PRICE_ABOVE_CLOUD"
	EntrySignalEMAGoldenCross   = "EMA_GOLDEN_CROSS"
)

// Indicator exit signals
const (
	ExitSignalCloudCrossDown       = "CLOUD_CROSS_DOWN"
	ExitSignalTenkanKijunCrossDown = "TENKAN_KIJUN_CROSS_DOWN"
	ExitSignalPriceBelowCloud      = "PRICE_BELOW_CLOUD"
	ExitSignalPriceBelowSMA20      = "PRICE_BELOW_SMA20"
	ExitSignalPriceBelowEMA20      = "PRICE_BELOW_EMA20"
	ExitSignalDeathCross           = "DEATH_CROSS"
)

// LadderTarget sells SellFraction of the original position once price reaches Multiple × entry.
type LadderTarget struct {
	Multiple     float64 `json:"multiple" yaml:"multiple"`
	SellFraction float64 `json:"sell_fraction" yaml:"sell_fraction"`
}

// StopConfig lists the stop sources. The effective stop is the highest active one.
type StopConfig struct {
	LossPercent    float64      `json:"loss_percent" yaml:"loss_percent"` // fixed stop distance, 0.2 = 20%
	UseKijun       bool         `json:"use_kijun,omitempty" yaml:"use_kijun"`
	UseCloudBottom bool         `json:"use_cloud_bottom,omitempty" yaml:"use_cloud_bottom"`
	UseSMA20       bool         `json:"use_sma20,omitempty" yaml:"use_sma20"`
	Staged         []StagedStop `json:"staged,omitempty" yaml:"staged"`
}

// StagedStop raises the stop to StopFraction × entry once maxReached ≥ ActivationMultiple.
type StagedStop struct {
	ActivationMultiple float64 `json:"activation_multiple" yaml:"activation_multiple"`
	StopFraction       float64 `json:"stop_fraction" yaml:"stop_fraction"`
}

// TrailingConfig describes a trailing stop armed past ActivationMultiple.
type TrailingConfig struct {
	TrailPercent       float64 `json:"trail_percent" yaml:"trail_percent"`
	ActivationMultiple float64 `json:"activation_multiple" yaml:"activation_multiple"`
	RequireTargetFill  bool    `json:"require_target_fill,omitempty" yaml:"require_target_fill"` // arm only after a ladder target has fired
}

// FilterConfig is the pre-simulation gate for one strategy.
type FilterConfig struct {
	AllowChains     []string                   `json:"allow_chains,omitempty" yaml:"allow_chains"`
	DenyChains      []string                   `json:"deny_chains,omitempty" yaml:"deny_chains"`
	AllowCallers    []string                   `json:"allow_callers,omitempty" yaml:"allow_callers"`
	DenyCallers     []string                   `json:"deny_callers,omitempty" yaml:"deny_callers"`
	MinMarketCap    float64                    `json:"min_market_cap,omitempty" yaml:"min_market_cap"` // 0 = unbounded
	MaxMarketCap    float64                    `json:"max_market_cap,omitempty" yaml:"max_market_cap"` // 0 = unbounded
	CallerMarketCap map[string]MarketCapBounds `json:"caller_market_cap,omitempty" yaml:"caller_market_cap"`
	MinStopLoss     float64                    `json:"min_stop_loss,omitempty" yaml:"min_stop_loss"` // bounds on 1 - MinExitPrice
	MaxStopLoss     float64                    `json:"max_stop_loss,omitempty" yaml:"max_stop_loss"`
	Momentum        *MomentumConfig            `json:"momentum,omitempty" yaml:"momentum"`
}

// MarketCapBounds overrides the global market-cap bounds for one caller.
type MarketCapBounds struct {
	Min float64 `json:"min,omitempty" yaml:"min"`
	Max float64 `json:"max,omitempty" yaml:"max"`
}

// MomentumConfig requires a minimum move on the finer series before the alert.
type MomentumConfig struct {
	LookbackMinutes int     `json:"lookback_minutes" yaml:"lookback_minutes"`
	MinMovePercent  float64 `json:"min_move_percent" yaml:"min_move_percent"` // 0.05 = +5%; negative requires a drop
}
