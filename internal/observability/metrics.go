// Package observability provides Prometheus metrics for monitoring sweeps.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Call outcome labels
const (
	OutcomeSimulated        = "simulated"
	OutcomeFilterRejected   = "filter_rejected"
	OutcomeEntryFailed      = "entry_failed"
	OutcomeInsufficientData = "insufficient_data"
	OutcomeInvalidInput     = "invalid_input"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Sweep metrics
	SweepRunsTotal      *prometheus.CounterVec
	SweepDuration       prometheus.Histogram
	StrategiesCompleted prometheus.Counter
	StrategiesSkipped   *prometheus.CounterVec
	StrategyDuration    prometheus.Histogram

	// Simulation metrics
	CallsProcessed     *prometheus.CounterVec
	SimulationDuration prometheus.Histogram

	// Candle source metrics
	CandleCacheHits   prometheus.Gauge
	CandleCacheMisses prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulSweep prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "call_backtest_lab"
	}

	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Sweep metrics
		SweepRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Total number of sweep runs by status",
		}, []string{"status"}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Sweep run duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		StrategiesCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "strategies_completed_total",
			Help:      "Total number of strategies simulated and persisted",
		}),
		StrategiesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "strategies_skipped_total",
			Help:      "Total number of strategies skipped by reason",
		}, []string{"reason"}),
		StrategyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "strategy_duration_seconds",
			Help:      "Time to simulate and summarize one strategy over all calls",
			Buckets:   prometheus.DefBuckets,
		}),

		// Simulation metrics
		CallsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "calls_processed_total",
			Help:      "Total number of (call, strategy) simulations by outcome",
		}, []string{"outcome"}),
		SimulationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "duration_seconds",
			Help:      "Single simulation latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),

		// Candle source metrics
		CandleCacheHits: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "candles",
			Name:      "cache_hits",
			Help:      "Candle cache hits since start",
		}),
		CandleCacheMisses: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "candles",
			Name:      "cache_misses",
			Help:      "Candle cache misses since start",
		}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"store", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"store", "operation"}),

		// Health metrics
		LastSuccessfulSweep: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_sweep_timestamp",
			Help:      "Unix timestamp of last successful sweep",
		}),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordCall counts one simulation outcome and its latency.
func (m *Metrics) RecordCall(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.CallsProcessed.WithLabelValues(outcome).Inc()
	m.SimulationDuration.Observe(seconds)
}

// RecordStrategy records a completed strategy.
func (m *Metrics) RecordStrategy(seconds float64) {
	if m == nil {
		return
	}
	m.StrategiesCompleted.Inc()
	m.StrategyDuration.Observe(seconds)
}

// RecordStrategySkipped counts a strategy the sweep did not run.
func (m *Metrics) RecordStrategySkipped(reason string) {
	if m == nil {
		return
	}
	m.StrategiesSkipped.WithLabelValues(reason).Inc()
}

// RecordSweepRun records a finished sweep.
func (m *Metrics) RecordSweepRun(status string, seconds float64, finishedAt int64) {
	if m == nil {
		return
	}
	m.SweepRunsTotal.WithLabelValues(status).Inc()
	m.SweepDuration.Observe(seconds)
	if status == "success" {
		m.LastSuccessfulSweep.Set(float64(finishedAt))
	}
}

// UpdateCacheStats copies the candle cache counters.
func (m *Metrics) UpdateCacheStats(hits, misses int) {
	if m == nil {
		return
	}
	m.CandleCacheHits.Set(float64(hits))
	m.CandleCacheMisses.Set(float64(misses))
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(store, operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(store, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(store, operation).Inc()
	}
}
