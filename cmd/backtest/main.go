package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ducminhle1904/equity-backtest/internal/backtest"
	"github.com/ducminhle1904/equity-backtest/internal/config"
	"github.com/ducminhle1904/equity-backtest/internal/logging"
	"github.com/ducminhle1904/equity-backtest/internal/marketdata"
	"github.com/ducminhle1904/equity-backtest/internal/monitoring"
	"github.com/ducminhle1904/equity-backtest/internal/orchestrator"
	"github.com/ducminhle1904/equity-backtest/internal/store"
	"github.com/ducminhle1904/equity-backtest/pkg/reporting"
)

const (
	AppName    = "Equity Backtest"
	AppVersion = "1.0.0"
)

func main() {
	flags := NewBacktestFlags()
	flag.Parse()

	if *flags.ShowVersion {
		fmt.Printf("%s v%s\n", AppName, AppVersion)
		return
	}

	if err := ValidateBacktestFlags(flags); err != nil {
		fatal(err)
	}

	// Missing .env is fine; environment variables still apply.
	if err := godotenv.Load(*flags.EnvFile); err != nil && !os.IsNotExist(err) {
		fatal(fmt.Errorf("load env file %s: %w", *flags.EnvFile, err))
	}

	cfg := config.Load()
	logger := logging.New(cfg)
	log := logger.WithComponent("main")

	if cfg.Monitoring.Enabled {
		go func() {
			if err := monitoring.StartMetricsServer(cfg.Monitoring.PrometheusPort); err != nil {
				log.WithError(err).Warn("Metrics server stopped")
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	req, err := buildRequest(flags)
	if err != nil {
		fatal(err)
	}

	fetcher := buildFetcher(cfg, logger)

	var index store.ExperimentStore
	if cfg.Results.DBPath != "" {
		idx, err := store.NewSQLiteStore(cfg.Results.DBPath)
		if err != nil {
			log.WithError(err).Warn("Experiment index unavailable, continuing without it")
		} else {
			index = idx
			defer idx.Close()
		}
	}

	orch := orchestrator.New(cfg, logger, fetcher, index)
	report, err := orch.Run(ctx, req)
	if err != nil {
		fatal(err)
	}

	console := reporting.NewConsoleReporter(os.Stderr)
	run := &reporting.RunReport{
		ExperimentID: report.ExperimentID,
		Strategy:     report.Strategy,
		Symbols:      report.Symbols,
		Trades:       report.Trades,
		EquityCurve:  report.PortfolioValue,
		Performance:  report.Performance,
		Validation:   report.Validation.ValidationReport,
	}
	if report.Robustness != nil {
		run.WalkForward = report.Robustness.WalkForward
		run.MonteCarlo = report.Robustness.MonteCarlo
	}
	console.Render(run)

	if !*flags.ConsoleOnly {
		payload, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fatal(fmt.Errorf("marshal report: %w", err))
		}
		fmt.Println(string(payload))
	}
}

// buildRequest translates flags into an orchestrator run request.
func buildRequest(flags *BacktestFlags) (*orchestrator.RunRequest, error) {
	start, _ := time.Parse("2006-01-02", *flags.Start)
	end, _ := time.Parse("2006-01-02", *flags.End)

	params, err := ParseStrategyParams(*flags.StrategyParams)
	if err != nil {
		return nil, err
	}

	sim := backtest.SimParams{
		InitialCapital:       *flags.InitialCapital,
		Commission:           *flags.Commission,
		Slippage:             *flags.Slippage,
		PositionSizeFraction: *flags.PositionSize,
		MaxPositions:         *flags.MaxPositions,
		StopLoss:             *flags.StopLoss,
		TakeProfit:           *flags.TakeProfit,
		HoldingPeriodDays:    *flags.HoldingDays,
	}

	mc := backtest.DefaultMonteCarloConfig()
	mc.NumSimulations = *flags.MCSims
	mc.Seed = *flags.MCSeed

	return &orchestrator.RunRequest{
		Strategy:       *flags.Strategy,
		Symbols:        ParseSymbols(*flags.Symbols),
		Start:          start,
		End:            end,
		SimParams:      sim,
		StrategyParams: params,
		RunWalkForward: *flags.WFEnable,
		WalkForward: backtest.WalkForwardConfig{
			TrainWindow: *flags.WFTrain,
			TestWindow:  *flags.WFTest,
			Step:        *flags.WFStep,
		},
		RunMonteCarlo: *flags.MCEnable,
		MonteCarlo:    mc,
		WriteExcel:    *flags.Excel,
	}, nil
}

// buildFetcher assembles the ordered data source chain: local CSV
// first when configured, then Polygon when an API key is present.
func buildFetcher(cfg *config.Config, logger *logging.Logger) *marketdata.Fetcher {
	var sources []marketdata.Source
	if cfg.Data.CSVDataRoot != "" {
		sources = append(sources, marketdata.NewCSVSource(cfg.Data.CSVDataRoot))
	}
	if cfg.Data.PolygonAPIKey != "" {
		limiter := marketdata.NewRateLimiter(cfg.Data.RateLimitPerMinute, time.Minute)
		sources = append(sources, marketdata.NewPolygonSource(cfg.Data.PolygonAPIKey, cfg.Data.PolygonBaseURL, limiter))
	}
	return marketdata.NewFetcher(
		logger.WithComponent("marketdata"),
		sources,
		marketdata.WithBatchSize(cfg.Data.BatchSize),
		marketdata.WithRetry(cfg.Data.MaxRetries, cfg.Data.RetryBaseDelay),
	)
}

// fatal reports a fatal error as JSON on stdout and exits non-zero.
func fatal(err error) {
	payload, _ := json.Marshal(map[string]interface{}{
		"success": false,
		"error":   err.Error(),
	})
	fmt.Println(string(payload))
	os.Exit(1)
}
