// Command backtest simulates one call under one configured strategy and prints the trade.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"call-backtest-lab/internal/app"
	"call-backtest-lab/internal/config"
	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/logging"
	"call-backtest-lab/internal/simulation"
	"call-backtest-lab/internal/storage"
	"call-backtest-lab/internal/strategy"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "sweep.yaml", "Path to YAML config (strategies, storage, candles)")
	callID := flag.String("call-id", "", "Call ID to backtest (required)")
	strategyName := flag.String("strategy", "", "Strategy name from the config, default the first one")
	outputJSON := flag.Bool("json", false, "Output as JSON")
	persistResult := flag.Bool("persist", false, "Persist trade result to storage")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Must(cfg.Log.Level, logging.FormatConsole)
	defer logger.Sync()

	// Validate required flags
	if *callID == "" {
		logger.Fatal("--call-id is required")
	}

	params, err := pickStrategy(cfg.Strategies, *strategyName)
	if err != nil {
		logger.Fatal("select strategy", zap.Error(err))
	}
	strat, err := strategy.FromParams(params)
	if err != nil {
		logger.Fatal("invalid strategy", zap.String("strategy", params.Name), zap.Error(err))
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", zap.Stringer("signal", sig))
		cancel()
	}()

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open stores", zap.Error(err))
	}
	defer stores.Close()

	var tradeStore storage.TradeResultStore
	if *persistResult {
		tradeStore = stores.Trades
	}

	runner := simulation.NewRunner(simulation.RunnerOptions{
		CallStore:        stores.Calls,
		Loader:           app.NewLoader(cfg, stores.Candles),
		TradeResultStore: tradeStore,
		Estimator:        cfg.MarketCapEstimator(),
		TokenOptions:     cfg.TokenOptions(),
	})

	logger.Info("running backtest", zap.String("call_id", *callID), zap.String("strategy", params.Name), zap.String("strategy_id", strat.ID()))

	trade, err := runner.Run(ctx, *callID, strat)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logger.Fatal("call not found", zap.String("call_id", *callID))
		}
		logger.Fatal("backtest failed", zap.Error(err))
	}

	// Output result
	if *outputJSON {
		output, _ := json.MarshalIndent(trade, "", "  ")
		fmt.Println(string(output))
	} else {
		printTradeResult(trade, params.Name)
	}
}

// pickStrategy returns the named strategy, or the first one when name is empty.
func pickStrategy(strategies []domain.StrategyParams, name string) (domain.StrategyParams, error) {
	if name == "" {
		return strategies[0], nil
	}
	for _, p := range strategies {
		if p.Name == name {
			return p, nil
		}
	}
	return domain.StrategyParams{}, fmt.Errorf("strategy %q not in config", name)
}

// printTradeResult outputs a human-readable trade result.
func printTradeResult(t *domain.TradeResult, name string) {
	fmt.Println()
	fmt.Println("=== Backtest Result ===")
	fmt.Printf("Trade ID:           %s\n", t.TradeID)
	fmt.Printf("Call ID:            %s\n", t.CallID)
	fmt.Printf("Strategy:           %s (%s)\n", name, t.StrategyID)
	fmt.Printf("Status:             %s\n", t.Status)
	fmt.Println()

	if t.Status != domain.TradeStatusSimulated {
		fmt.Printf("Reason:             %s\n", t.ExitReason)
		fmt.Printf("PnL Multiplier:     %.4f\n", t.PnLMultiplier)
		return
	}

	fmt.Println("Entry:")
	fmt.Printf("  Time:             %s\n", time.Unix(t.EntryTime, 0).UTC().Format(time.RFC3339))
	fmt.Printf("  Price:            %.10g\n", t.EntryPrice)
	fmt.Println()

	fmt.Println("Exit:")
	fmt.Printf("  Time:             %s\n", time.Unix(t.ExitTime, 0).UTC().Format(time.RFC3339))
	fmt.Printf("  Reason:           %s\n", t.ExitReason)
	fmt.Printf("  Targets Hit:      %d\n", t.TargetsHit)
	fmt.Println()

	fmt.Println("Result:")
	fmt.Printf("  PnL Multiplier:   %.4f (%+.2f%%)\n", t.PnLMultiplier, (t.PnLMultiplier-1)*100)
	fmt.Printf("  Max Reached:      %.4fx\n", t.MaxReached)
	fmt.Printf("  Hold Duration:    %v\n", time.Duration(t.HoldDurationMinutes*float64(time.Minute)).Round(time.Second))
}
