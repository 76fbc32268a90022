// Package config loads the sweep configuration from YAML, .env and environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"call-backtest-lab/internal/candles"
	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/filter"
	"call-backtest-lab/internal/logging"
	"call-backtest-lab/internal/metrics"
	"call-backtest-lab/internal/tokenid"
)

// Environment overrides
const (
	EnvPostgresDSN   = "BACKTEST_POSTGRES_DSN"
	EnvClickHouseDSN = "BACKTEST_CLICKHOUSE_DSN"
	EnvSQLitePath    = "BACKTEST_SQLITE_PATH"
	EnvLogLevel      = "BACKTEST_LOG_LEVEL"
	EnvWorkers       = "BACKTEST_WORKERS"
)

// Storage backends
const (
	BackendMemory   = "memory"   // everything in process, inputs from JSON files
	BackendDatabase = "database" // postgres for calls and trades, clickhouse for candles and results
)

// Validation errors
var (
	ErrNoStrategies   = errors.New("at least one strategy is required")
	ErrUnknownBackend = errors.New("unknown storage backend")
	ErrMissingDSN     = errors.New("database backend requires postgres_dsn and clickhouse_dsn")
	ErrMissingInput   = errors.New("memory backend requires input.calls_file and input.candles_file")
	ErrInvalidCandles = errors.New("invalid candle options")
)

// Config is the complete sweep configuration.
type Config struct {
	Strategies []domain.StrategyParams `yaml:"strategies"`
	Portfolio  domain.PortfolioConfig  `yaml:"portfolio"`
	Candles    CandlesConfig           `yaml:"candles"`
	Estimator  EstimatorConfig         `yaml:"estimator"`
	Calls      CallsConfig             `yaml:"calls"`
	Input      InputConfig             `yaml:"input"`
	Storage    StorageConfig           `yaml:"storage"`
	Log        LogConfig               `yaml:"log"`
	Output     OutputConfig            `yaml:"output"`

	RankBy      string `yaml:"rank_by"`
	Workers     int    `yaml:"workers"`      // 0 = one per CPU
	MetricsAddr string `yaml:"metrics_addr"` // empty disables the /metrics listener
}

// CandlesConfig controls candle windows and the source in front of the store.
type CandlesConfig struct {
	IntervalSeconds     int     `yaml:"interval_seconds"`
	HorizonMinutes      int     `yaml:"horizon_minutes"`
	FineIntervalSeconds int     `yaml:"fine_interval_seconds"`
	LookbackMinutes     int     `yaml:"lookback_minutes"`
	CacheCapacity       int     `yaml:"cache_capacity"`  // series kept in the LRU
	RatePerSecond       float64 `yaml:"rate_per_second"` // store reads per second, 0 = unlimited
	Burst               int     `yaml:"burst"`
}

// EstimatorConfig tunes the volume × price market-cap proxy.
type EstimatorConfig struct {
	Window     int     `yaml:"window"`
	Multiplier float64 `yaml:"multiplier"`
}

// CallsConfig controls call validation.
type CallsConfig struct {
	RejectOffCurveTokens bool `yaml:"reject_off_curve_tokens"`
}

// InputConfig names the JSON files the memory backend reads.
type InputConfig struct {
	CallsFile   string `yaml:"calls_file"`
	CandlesFile string `yaml:"candles_file"`
}

// StorageConfig selects where calls, candles and results live.
type StorageConfig struct {
	Backend       string `yaml:"backend"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
	MaxConns      int32  `yaml:"max_conns"`
	SQLitePath    string `yaml:"sqlite_path"` // local result sink, empty disables it
}

// LogConfig controls the format and level of logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | console
}

// OutputConfig controls the report files written after a sweep.
type OutputConfig struct {
	CSVPath      string `yaml:"csv_path"`
	MarkdownPath string `yaml:"markdown_path"`
	Top          int    `yaml:"top"` // rows printed to the console, 0 = all
}

// Load reads the YAML file at path. A .env file in the working directory is
// loaded first when present; BACKTEST_* variables override the file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies environment overrides and defaults, then validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(EnvPostgresDSN); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv(EnvClickHouseDSN); v != "" {
		cfg.Storage.ClickHouseDSN = v
	}
	if v := os.Getenv(EnvSQLitePath); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWorkers, err)
		}
		cfg.Workers = n
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Storage.Backend == "" {
		if cfg.Storage.PostgresDSN != "" && cfg.Storage.ClickHouseDSN != "" {
			cfg.Storage.Backend = BackendDatabase
		} else {
			cfg.Storage.Backend = BackendMemory
		}
	}
	cfg.Storage.Backend = strings.ToLower(cfg.Storage.Backend)
	if cfg.Storage.MaxConns <= 0 {
		cfg.Storage.MaxConns = 8
	}

	if cfg.Portfolio.InitialBalance <= 0 {
		cfg.Portfolio.InitialBalance = 1000
	}
	if cfg.Portfolio.MaxRiskPerTrade <= 0 {
		cfg.Portfolio.MaxRiskPerTrade = 0.02
	}
	if cfg.Portfolio.Sizing == "" {
		cfg.Portfolio.Sizing = domain.SizingPerTrade
	}

	if cfg.Candles.IntervalSeconds <= 0 {
		cfg.Candles.IntervalSeconds = candles.DefaultIntervalSeconds
	}
	if cfg.Candles.HorizonMinutes <= 0 {
		cfg.Candles.HorizonMinutes = candles.DefaultHorizonMinutes
	}
	if cfg.Candles.LookbackMinutes <= 0 {
		cfg.Candles.LookbackMinutes = candles.DefaultLookbackMinutes
	}
	if cfg.Candles.CacheCapacity <= 0 {
		cfg.Candles.CacheCapacity = 4096
	}
	if cfg.Candles.Burst <= 0 {
		cfg.Candles.Burst = 1
	}

	if cfg.Estimator.Window <= 0 {
		cfg.Estimator.Window = filter.DefaultEstimatorWindow
	}
	if cfg.Estimator.Multiplier <= 0 {
		cfg.Estimator.Multiplier = filter.DefaultEstimatorMultiplier
	}

	if cfg.RankBy == "" {
		cfg.RankBy = metrics.RankByRiskAdjustedScore
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = logging.FormatJSON
	}
}

// Validate checks the configuration after defaults are applied.
// Strategy parameters are validated per strategy during the sweep, so a bad
// strategy is reported without rejecting the whole file.
func (c *Config) Validate() error {
	if len(c.Strategies) == 0 {
		return ErrNoStrategies
	}
	if err := metrics.ValidateRankMetric(c.RankBy); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}

	switch c.Storage.Backend {
	case BackendMemory:
		if c.Input.CallsFile == "" || c.Input.CandlesFile == "" {
			return ErrMissingInput
		}
	case BackendDatabase:
		if c.Storage.PostgresDSN == "" || c.Storage.ClickHouseDSN == "" {
			return ErrMissingDSN
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Storage.Backend)
	}

	if c.Candles.FineIntervalSeconds < 0 || c.Candles.RatePerSecond < 0 {
		return ErrInvalidCandles
	}
	if c.Candles.FineIntervalSeconds > c.Candles.IntervalSeconds {
		return fmt.Errorf("%w: fine interval %ds is coarser than main interval %ds",
			ErrInvalidCandles, c.Candles.FineIntervalSeconds, c.Candles.IntervalSeconds)
	}
	return nil
}

// LoaderOptions returns the candle windows for candles.NewLoader.
func (c *Config) LoaderOptions() candles.Options {
	return candles.Options{
		IntervalSeconds:     c.Candles.IntervalSeconds,
		HorizonMinutes:      c.Candles.HorizonMinutes,
		FineIntervalSeconds: c.Candles.FineIntervalSeconds,
		LookbackMinutes:     c.Candles.LookbackMinutes,
	}
}

// MarketCapEstimator returns the configured estimator.
func (c *Config) MarketCapEstimator() filter.MarketCapEstimator {
	return filter.VolumePriceEstimator{Window: c.Estimator.Window, Multiplier: c.Estimator.Multiplier}
}

// TokenOptions returns the call validation options.
func (c *Config) TokenOptions() tokenid.Options {
	return tokenid.Options{RejectOffCurve: c.Calls.RejectOffCurveTokens}
}
