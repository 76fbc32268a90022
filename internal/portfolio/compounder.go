// Package portfolio replays trade outcomes against one compounding balance.
package portfolio

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"call-backtest-lab/internal/domain"
)

// Config errors
var (
	ErrInvalidBalance  = errors.New("initial_balance must be > 0")
	ErrInvalidRisk     = errors.New("max_risk_per_trade must be in (0, 1]")
	ErrInvalidStopLoss = errors.New("stop loss must be in (0, 1)")
	ErrUnknownSizing   = errors.New("unknown sizing discipline")
)

// Result is the outcome of one compounding pass.
type Result struct {
	InitialBalance float64
	State          domain.PortfolioState
	Trace          []domain.PortfolioPoint
}

// CompoundGrowth returns final / initial balance.
func (r *Result) CompoundGrowth() float64 {
	if r.InitialBalance <= 0 {
		return 0
	}
	return r.State.Balance / r.InitialBalance
}

// Compounder sizes each trade as balance × maxRisk / stopLoss and settles it
// against a single balance. Runs are sequential; distinct Compounders are independent.
type Compounder struct {
	cfg     domain.PortfolioConfig
	initial decimal.Decimal
	risk    decimal.Decimal
	capFrac decimal.Decimal
}

// New validates cfg and creates a Compounder. Empty Sizing means PER_TRADE.
func New(cfg domain.PortfolioConfig) (*Compounder, error) {
	if cfg.InitialBalance <= 0 {
		return nil, ErrInvalidBalance
	}
	if cfg.MaxRiskPerTrade <= 0 || cfg.MaxRiskPerTrade > 1 {
		return nil, ErrInvalidRisk
	}
	switch cfg.Sizing {
	case "":
		cfg.Sizing = domain.SizingPerTrade
	case domain.SizingPerTrade, domain.SizingWeekly:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSizing, cfg.Sizing)
	}

	return &Compounder{
		cfg:     cfg,
		initial: decimal.NewFromFloat(cfg.InitialBalance),
		risk:    decimal.NewFromFloat(cfg.MaxRiskPerTrade),
		capFrac: decimal.NewFromFloat(cfg.MaxPositionFraction),
	}, nil
}

// Run compounds the passed trades of one strategy whose fixed stop is stopLoss.
// Trades are replayed by entry time, ties broken by trade ID; trades that did not
// pass filters are ignored. The balance is floored at zero and a ruined
// portfolio takes no further trades.
func (c *Compounder) Run(trades []*domain.TradeResult, stopLoss float64) (*Result, error) {
	if stopLoss <= 0 || stopLoss >= 1 {
		return nil, ErrInvalidStopLoss
	}

	ordered := make([]*domain.TradeResult, 0, len(trades))
	for _, t := range trades {
		if t != nil && t.PassedFilters {
			ordered = append(ordered, t)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].EntryTime != ordered[j].EntryTime {
			return ordered[i].EntryTime < ordered[j].EntryTime
		}
		return ordered[i].TradeID < ordered[j].TradeID
	})

	sizeFactor := c.risk.Div(decimal.NewFromFloat(stopLoss))
	one := decimal.NewFromInt(1)

	balance, peak := c.initial, c.initial
	maxDD := decimal.Zero
	trace := make([]domain.PortfolioPoint, 0, len(ordered))

	var (
		weekSize decimal.Decimal
		weekKey  int
	)

	for i, t := range ordered {
		if balance.IsZero() {
			break
		}

		var size decimal.Decimal
		if c.cfg.Sizing == domain.SizingWeekly {
			if key := isoWeekKey(t.EntryTime); i == 0 || key != weekKey {
				weekKey = key
				weekSize = c.positionSize(balance, sizeFactor)
			}
			size = weekSize
		} else {
			size = c.positionSize(balance, sizeFactor)
		}

		balance = balance.Add(size.Mul(decimal.NewFromFloat(t.PnLMultiplier).Sub(one)))
		if balance.IsNegative() {
			balance = decimal.Zero
		}
		if balance.GreaterThan(peak) {
			peak = balance
		}
		dd := drawdown(peak, balance)
		if dd.GreaterThan(maxDD) {
			maxDD = dd
		}

		trace = append(trace, domain.PortfolioPoint{
			TradeID:      t.TradeID,
			Time:         t.EntryTime,
			PositionSize: size.InexactFloat64(),
			Balance:      balance.InexactFloat64(),
			Peak:         peak.InexactFloat64(),
			Drawdown:     dd.InexactFloat64(),
		})
	}

	return &Result{
		InitialBalance: c.cfg.InitialBalance,
		State: domain.PortfolioState{
			Balance:             balance.InexactFloat64(),
			Peak:                peak.InexactFloat64(),
			MaxDrawdownFraction: maxDD.InexactFloat64(),
		},
		Trace: trace,
	}, nil
}

func (c *Compounder) positionSize(balance, factor decimal.Decimal) decimal.Decimal {
	size := balance.Mul(factor)
	if c.capFrac.IsPositive() {
		size = decimal.Min(size, balance.Mul(c.capFrac))
	}
	return size
}

func drawdown(peak, balance decimal.Decimal) decimal.Decimal {
	if !peak.IsPositive() {
		return decimal.Zero
	}
	return peak.Sub(balance).Div(peak)
}

// isoWeekKey returns year*100+week for the UTC ISO week containing ts.
func isoWeekKey(ts int64) int {
	year, week := time.Unix(ts, 0).UTC().ISOWeek()
	return year*100 + week
}
