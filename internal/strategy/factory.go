package strategy

import (
	"errors"
	"fmt"

	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/entry"
	"call-backtest-lab/internal/indicators"
)

// Factory errors
var (
	ErrMissingStopLoss      = errors.New("stop.loss_percent must be in (0, 1)")
	ErrInvalidMinExitPrice  = errors.New("min_exit_price must be in [0, 1)")
	ErrUnknownEntryMode     = errors.New("unknown entry mode")
	ErrNegativeDelay        = errors.New("DELAYED requires delay_minutes >= 0")
	ErrMissingDipPercent    = errors.New("DIP_WAIT requires dip_percent in (0, 1)")
	ErrInvalidConfirmation  = errors.New("dip_confirmation and confirmation_window must be >= 0")
	ErrUnknownEntrySignal   = errors.New("INDICATOR requires a known entry signal")
	ErrInvalidTarget        = errors.New("targets require multiple > 1 and sell_fraction in (0, 1]")
	ErrInvalidStagedStop    = errors.New("staged stops require activation_multiple > 1 and stop_fraction > 0")
	ErrInvalidTrailing      = errors.New("trailing requires trail_percent in (0, 1) and activation_multiple >= 1")
	ErrTrailingNeedsTargets = errors.New("trailing.require_target_fill needs at least one target")
	ErrUnknownExitSignal    = errors.New("unknown indicator exit signal")
	ErrInvalidFilter        = errors.New("invalid filter bounds")
)

// FromParams validates params and creates the Strategy that executes them.
// Returns clear errors for missing/invalid params.
func FromParams(params domain.StrategyParams) (Strategy, error) {
	if err := Validate(params); err != nil {
		return nil, err
	}
	return NewCallStrategy(params), nil
}

// Validate checks params for internal consistency.
func Validate(params domain.StrategyParams) error {
	if params.Stop.LossPercent <= 0 || params.Stop.LossPercent >= 1 {
		return ErrMissingStopLoss
	}
	if params.MinExitPrice < 0 || params.MinExitPrice >= 1 {
		return ErrInvalidMinExitPrice
	}
	if err := validateEntry(params.Entry); err != nil {
		return err
	}

	for i, t := range params.Targets {
		if t.Multiple <= 1 || t.SellFraction <= 0 || t.SellFraction > 1 {
			return fmt.Errorf("%w: target %d", ErrInvalidTarget, i)
		}
	}
	for i, s := range params.Stop.Staged {
		if s.ActivationMultiple <= 1 || s.StopFraction <= 0 {
			return fmt.Errorf("%w: staged stop %d", ErrInvalidStagedStop, i)
		}
	}

	if tr := params.Trailing; tr != nil {
		if tr.TrailPercent <= 0 || tr.TrailPercent >= 1 || tr.ActivationMultiple < 1 {
			return ErrInvalidTrailing
		}
		if tr.RequireTargetFill && len(params.Targets) == 0 {
			return ErrTrailingNeedsTargets
		}
	}

	for _, sig := range params.IndicatorExits {
		if _, ok := exitSignalWarmup[sig]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownExitSignal, sig)
		}
	}

	return validateFilter(params.Filter)
}

func validateEntry(cfg domain.EntryConfig) error {
	switch cfg.Mode {
	case domain.EntryModeImmediate, "":
		return nil
	case domain.EntryModeDelayed:
		if cfg.DelayMinutes < 0 {
			return ErrNegativeDelay
		}
		return nil
	case domain.EntryModeDipWait:
		if cfg.DipPercent <= 0 || cfg.DipPercent >= 1 {
			return ErrMissingDipPercent
		}
		if cfg.DipConfirmation < 0 || cfg.ConfirmationWindow < 0 {
			return ErrInvalidConfirmation
		}
		return nil
	case domain.EntryModeIndicator:
		if _, err := entry.SignalWarmup(cfg.Signal); err != nil {
			return fmt.Errorf("%w: %q", ErrUnknownEntrySignal, cfg.Signal)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEntryMode, cfg.Mode)
	}
}

func validateFilter(f domain.FilterConfig) error {
	if f.MaxMarketCap > 0 && f.MinMarketCap > f.MaxMarketCap {
		return fmt.Errorf("%w: min_market_cap > max_market_cap", ErrInvalidFilter)
	}
	for caller, b := range f.CallerMarketCap {
		if b.Max > 0 && b.Min > b.Max {
			return fmt.Errorf("%w: caller %q market cap min > max", ErrInvalidFilter, caller)
		}
	}
	if f.MaxStopLoss > 0 && f.MinStopLoss > f.MaxStopLoss {
		return fmt.Errorf("%w: min_stop_loss > max_stop_loss", ErrInvalidFilter)
	}
	if f.Momentum != nil && f.Momentum.LookbackMinutes <= 0 {
		return fmt.Errorf("%w: momentum lookback_minutes must be > 0", ErrInvalidFilter)
	}
	return nil
}

// exitSignalWarmup maps each indicator exit to the candles it needs.
var exitSignalWarmup = map[string]int{
	domain.ExitSignalCloudCrossDown:       indicators.IchimokuWindow,
	domain.ExitSignalTenkanKijunCrossDown: indicators.IchimokuWindow,
	domain.ExitSignalPriceBelowCloud:      indicators.IchimokuWindow,
	domain.ExitSignalPriceBelowSMA20:      indicators.SMAWindow,
	domain.ExitSignalPriceBelowEMA20:      indicators.EMAMedium,
	domain.ExitSignalDeathCross:           indicators.EMAMedium,
}

// RequiredCandles returns the minimum series length params can be simulated on.
// Shorter series are insufficient data, never simulated with partial indicators.
func RequiredCandles(params domain.StrategyParams) int {
	need := 1

	if params.Entry.Mode == domain.EntryModeIndicator {
		if w, err := entry.SignalWarmup(params.Entry.Signal); err == nil {
			need = max(need, w+1)
		}
	}
	if params.Stop.UseKijun || params.Stop.UseCloudBottom {
		need = max(need, indicators.IchimokuWindow)
	}
	if params.Stop.UseSMA20 {
		need = max(need, indicators.SMAWindow)
	}
	for _, sig := range params.IndicatorExits {
		need = max(need, exitSignalWarmup[sig])
	}

	return need
}
