// Package filter decides whether a call is simulated at all.
package filter

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/lookup"
)

// Input is everything the gate inspects for one call.
type Input struct {
	Call    *domain.Call
	Candles []domain.Candle // series used for the market cap estimate
	Fine    []domain.Candle // higher-resolution series for the momentum check, may be nil
}

// Decision is the gate's verdict. Reason is empty when Passed.
type Decision struct {
	Passed bool
	Reason string
}

func reject(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Options configures a Gate.
type Options struct {
	Estimator MarketCapEstimator // nil = VolumePriceEstimator{}
}

// Gate evaluates a FilterConfig against calls. Predicates run in a fixed order
// and the first failure short-circuits. A Gate is safe for concurrent use.
type Gate struct {
	cfg          domain.FilterConfig
	minExitPrice float64
	estimator    MarketCapEstimator

	allowChains  []string
	denyChains   []string
	allowCallers []string
	denyCallers  []string
	callerCaps   map[string]domain.MarketCapBounds
}

// New creates a Gate for the filter and floor of one strategy.
func New(params domain.StrategyParams, opts Options) *Gate {
	cfg := params.Filter
	g := &Gate{
		cfg:          cfg,
		minExitPrice: params.MinExitPrice,
		estimator:    opts.Estimator,
		allowChains:  foldAll(cfg.AllowChains),
		denyChains:   foldAll(cfg.DenyChains),
		allowCallers: foldAll(cfg.AllowCallers),
		denyCallers:  foldAll(cfg.DenyCallers),
	}
	if g.estimator == nil {
		g.estimator = VolumePriceEstimator{}
	}
	if len(cfg.CallerMarketCap) > 0 {
		g.callerCaps = make(map[string]domain.MarketCapBounds, len(cfg.CallerMarketCap))
		for caller, b := range cfg.CallerMarketCap {
			g.callerCaps[fold(caller)] = b
		}
	}
	return g
}

// fold returns the Unicode case-folded form of s.
// A Caser holds state, so each call gets its own.
func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

func foldAll(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, s := range list {
		if f := fold(s); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Check runs every configured predicate against in.
func (g *Gate) Check(in Input) Decision {
	chain, caller := fold(in.Call.Chain), fold(in.Call.Caller)

	// 1. Chain lists: exact match
	if len(g.allowChains) > 0 && !slices.Contains(g.allowChains, chain) {
		return reject("chain %q not allowed", in.Call.Chain)
	}
	if slices.Contains(g.denyChains, chain) {
		return reject("chain %q denied", in.Call.Chain)
	}

	// 2. Caller lists: exact or substring match
	if len(g.allowCallers) > 0 && !containsSubstring(g.allowCallers, caller) {
		return reject("caller %q not allowed", in.Call.Caller)
	}
	if containsSubstring(g.denyCallers, caller) {
		return reject("caller %q denied", in.Call.Caller)
	}

	// 3. Stop distance
	if d := g.checkStopDistance(); !d.Passed {
		return d
	}

	// 4. Market cap
	if d := g.checkMarketCap(caller, in.Candles); !d.Passed {
		return d
	}

	// 5. Momentum on the fine series
	if m := g.cfg.Momentum; m != nil {
		if d := checkMomentum(m, in.Call.AlertTime, in.Fine); !d.Passed {
			return d
		}
	}

	return Decision{Passed: true}
}

func (g *Gate) checkStopDistance() Decision {
	dist := 1 - g.minExitPrice
	if g.cfg.MinStopLoss > 0 && dist < g.cfg.MinStopLoss {
		return reject("stop distance %.4f below min %.4f", dist, g.cfg.MinStopLoss)
	}
	if g.cfg.MaxStopLoss > 0 && dist > g.cfg.MaxStopLoss {
		return reject("stop distance %.4f above max %.4f", dist, g.cfg.MaxStopLoss)
	}
	return Decision{Passed: true}
}

func (g *Gate) checkMarketCap(caller string, candles []domain.Candle) Decision {
	lo, hi := g.cfg.MinMarketCap, g.cfg.MaxMarketCap
	perCaller, hasCaller := g.callerCaps[caller]
	if lo <= 0 && hi <= 0 && !hasCaller {
		return Decision{Passed: true}
	}

	capUSD, ok := g.estimator.Estimate(candles)
	if !ok {
		return reject("market cap unavailable")
	}

	if lo > 0 && capUSD < lo {
		return reject("market cap %.0f below min %.0f", capUSD, lo)
	}
	if hi > 0 && capUSD > hi {
		return reject("market cap %.0f above max %.0f", capUSD, hi)
	}
	if hasCaller {
		if perCaller.Min > 0 && capUSD < perCaller.Min {
			return reject("market cap %.0f below caller min %.0f", capUSD, perCaller.Min)
		}
		if perCaller.Max > 0 && capUSD > perCaller.Max {
			return reject("market cap %.0f above caller max %.0f", capUSD, perCaller.Max)
		}
	}
	return Decision{Passed: true}
}

// checkMomentum requires the fine series to have moved at least MinMovePercent
// over the LookbackMinutes ending at the alert.
func checkMomentum(m *domain.MomentumConfig, alertTime int64, fine []domain.Candle) Decision {
	end := lookup.IndexAtOrBefore(fine, alertTime)
	if end < 0 {
		return reject("momentum series unavailable")
	}
	start := lookup.IndexAtOrAfter(fine, alertTime-int64(m.LookbackMinutes)*60)
	if start < 0 || start >= end || fine[start].Open <= 0 {
		return reject("momentum series too short")
	}

	move := fine[end].Close/fine[start].Open - 1
	if move < m.MinMovePercent {
		return reject("momentum %.4f below min %.4f", move, m.MinMovePercent)
	}
	return Decision{Passed: true}
}

func containsSubstring(list []string, s string) bool {
	for _, v := range list {
		if strings.Contains(s, v) {
			return true
		}
	}
	return false
}
