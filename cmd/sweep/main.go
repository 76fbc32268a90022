// Command sweep runs every configured strategy over every stored call and ranks the results.
//
// Results are persisted one strategy at a time, so an interrupted sweep can be
// re-run with the same config and resumes after the last completed strategy.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"call-backtest-lab/internal/app"
	"call-backtest-lab/internal/config"
	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/logging"
	"call-backtest-lab/internal/observability"
	"call-backtest-lab/internal/reporting"
)

func main() {
	configPath := flag.String("config", "sweep.yaml", "Path to YAML sweep config")
	csvPath := flag.String("csv", "", "CSV result file (overrides output.csv_path)")
	markdownPath := flag.String("markdown", "", "Markdown report file (overrides output.markdown_path)")
	top := flag.Int("top", -1, "Rows printed to the console, 0 = all (overrides output.top)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *csvPath != "" {
		cfg.Output.CSVPath = *csvPath
	}
	if *markdownPath != "" {
		cfg.Output.MarkdownPath = *markdownPath
	}
	if *top >= 0 {
		cfg.Output.Top = *top
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("sweep failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals; a second signal exits immediately
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Warn("received signal, finishing in-flight strategy", zap.Stringer("signal", sig))
		cancel()
		sig = <-sigCh
		logger.Error("received second signal, exiting", zap.Stringer("signal", sig))
		os.Exit(1)
	}()

	m := observability.NewMetrics("")
	if cfg.MetricsAddr != "" {
		srv := startHTTPServer(cfg.MetricsAddr, m, logger)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			srv.Shutdown(shutdownCtx)
		}()
	}

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	var onResult func(*domain.StrategyResult) error
	var sink *reporting.CSVSink
	if cfg.Output.CSVPath != "" {
		sink, err = reporting.NewCSVSink(cfg.Output.CSVPath)
		if err != nil {
			return err
		}
		defer sink.Close()
		onResult = sink.Append
	}

	start := time.Now()
	result, err := app.NewSweep(cfg, stores, onResult, logger, m).Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("sweep interrupted; completed strategies are persisted, re-run to resume")
		}
		return err
	}

	logger.Info("sweep complete",
		zap.String("run_id", result.RunID),
		zap.Int("calls", result.CallsLoaded),
		zap.Int("strategies_run", result.StrategiesRun),
		zap.Int("strategies_resumed", result.StrategiesResumed),
		zap.Int("strategies_invalid", result.StrategiesInvalid),
		zap.Int("trades", result.TradesCreated),
		zap.Duration("elapsed", time.Since(start)),
	)
	for _, msg := range result.Errors {
		logger.Warn("strategy skipped", zap.String("reason", msg))
	}

	// Final pass: the appended rows are replaced by the ranked order
	if sink != nil {
		if err := sink.Rewrite(result.Results); err != nil {
			return fmt.Errorf("rewrite csv: %w", err)
		}
		logger.Info("csv written", zap.String("path", sink.Path()))
	}

	if cfg.Output.MarkdownPath != "" {
		report, err := reporting.NewGenerator(stores.Results).Generate(ctx, cfg.RankBy, 0)
		if err != nil {
			return fmt.Errorf("generate report: %w", err)
		}
		if err := os.WriteFile(cfg.Output.MarkdownPath, []byte(reporting.RenderMarkdown(report)), 0o644); err != nil {
			return fmt.Errorf("write markdown: %w", err)
		}
		logger.Info("markdown written", zap.String("path", cfg.Output.MarkdownPath))
	}

	rows := result.Results
	if cfg.Output.Top > 0 && len(rows) > cfg.Output.Top {
		rows = rows[:cfg.Output.Top]
	}
	fmt.Printf("\nRanked by %s (%d strategies, %d calls)\n", cfg.RankBy, len(result.Results), result.CallsLoaded)
	return reporting.RenderTable(os.Stdout, rows)
}

// startHTTPServer serves /health and /metrics until shut down.
func startHTTPServer(addr string, m *observability.Metrics, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return srv
}
