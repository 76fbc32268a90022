package candles

import (
	"context"
	"errors"
	"strings"

	"call-backtest-lab/internal/domain"
)

// Loader defaults
const (
	DefaultIntervalSeconds = domain.CandleInterval1Min
	DefaultHorizonMinutes  = 7 * 24 * 60
	DefaultLookbackMinutes = 60
)

// ErrNilCall is returned when Load is called without a call.
var ErrNilCall = errors.New("nil call")

// Options controls which windows are loaded for a call.
type Options struct {
	IntervalSeconds     int // main series bar width, 0 = 60
	HorizonMinutes      int // main series length after the alert, 0 = 7 days
	FineIntervalSeconds int // momentum series bar width, 0 = no fine series
	LookbackMinutes     int // fine series history before the alert, 0 = 60
}

func (o Options) withDefaults() Options {
	if o.IntervalSeconds <= 0 {
		o.IntervalSeconds = DefaultIntervalSeconds
	}
	if o.HorizonMinutes <= 0 {
		o.HorizonMinutes = DefaultHorizonMinutes
	}
	if o.LookbackMinutes <= 0 {
		o.LookbackMinutes = DefaultLookbackMinutes
	}
	return o
}

// Series is everything loaded for one call.
type Series struct {
	Main []domain.Candle // starts at the bar containing the alert
	Fine []domain.Candle // nil unless a fine interval is configured
}

// Loader resolves the windows of a call against a Source.
type Loader struct {
	source Source
	opts   Options
}

// NewLoader creates a Loader.
func NewLoader(source Source, opts Options) *Loader {
	return &Loader{source: source, opts: opts.withDefaults()}
}

// Options returns the effective options.
func (l *Loader) Options() Options {
	return l.opts
}

// Source returns the underlying source.
func (l *Loader) Source() Source {
	return l.source
}

// Load fetches the main series and, when configured, the fine series.
func (l *Loader) Load(ctx context.Context, call *domain.Call) (*Series, error) {
	if call == nil {
		return nil, ErrNilCall
	}

	chain := strings.ToLower(call.Chain)
	interval := int64(l.opts.IntervalSeconds)
	start := call.AlertTime - call.AlertTime%interval
	end := call.AlertTime + int64(l.opts.HorizonMinutes)*60

	mainKey := domain.CandleKey{Chain: chain, Token: call.TokenAddress, IntervalSeconds: l.opts.IntervalSeconds}
	main, err := l.source.Series(ctx, mainKey, start, end)
	if err != nil {
		return nil, err
	}

	out := &Series{Main: main}
	if l.opts.FineIntervalSeconds > 0 {
		fineKey := domain.CandleKey{Chain: chain, Token: call.TokenAddress, IntervalSeconds: l.opts.FineIntervalSeconds}
		out.Fine, err = l.source.Series(ctx, fineKey, call.AlertTime-int64(l.opts.LookbackMinutes)*60, call.AlertTime)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
