package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ducminhle1904/equity-backtest/internal/backtest"
	"github.com/ducminhle1904/equity-backtest/internal/strategy"
)

// BacktestFlags holds all command line flags for the backtest command
type BacktestFlags struct {
	// Run definition
	Strategy       *string
	Symbols        *string
	Start          *string
	End            *string
	StrategyParams *string // Comma-separated key=value pairs

	// Simulation parameters
	InitialCapital *float64
	Commission     *float64
	Slippage       *float64
	PositionSize   *float64
	MaxPositions   *int
	StopLoss       *float64
	TakeProfit     *float64
	HoldingDays    *int

	// Walk-forward analysis
	WFEnable *bool
	WFTrain  *int
	WFTest   *int
	WFStep   *int

	// Monte Carlo analysis
	MCEnable *bool
	MCSims   *int
	MCSeed   *int64

	// Output options
	Excel       *bool
	ConsoleOnly *bool
	EnvFile     *string

	// Help and version
	ShowVersion *bool
}

// NewBacktestFlags creates and registers all command line flags
func NewBacktestFlags() *BacktestFlags {
	defaults := backtest.DefaultSimParams()
	wf := backtest.DefaultWalkForwardConfig()
	mc := backtest.DefaultMonteCarloConfig()

	return &BacktestFlags{
		// Run definition
		Strategy:       flag.String("strategy", "momentum", fmt.Sprintf("Strategy name (%s)", strings.Join(strategy.Names(), ", "))),
		Symbols:        flag.String("symbols", "", "Comma-separated symbols (e.g., AAPL,MSFT)"),
		Start:          flag.String("start", "", "Start date (YYYY-MM-DD)"),
		End:            flag.String("end", "", "End date (YYYY-MM-DD)"),
		StrategyParams: flag.String("params", "", "Strategy parameter overrides (e.g., lookback_period=20,momentum_threshold=0.02)"),

		// Simulation parameters
		InitialCapital: flag.Float64("capital", defaults.InitialCapital, "Initial capital"),
		Commission:     flag.Float64("commission", defaults.Commission, "Commission rate (0.001 = 0.1%)"),
		Slippage:       flag.Float64("slippage", defaults.Slippage, "Slippage rate (0.0005 = 0.05%)"),
		PositionSize:   flag.Float64("position-size", defaults.PositionSizeFraction, "Cash fraction per entry"),
		MaxPositions:   flag.Int("max-positions", defaults.MaxPositions, "Maximum concurrent positions"),
		StopLoss:       flag.Float64("stop-loss", defaults.StopLoss, "Stop loss fraction (0.05 = 5%)"),
		TakeProfit:     flag.Float64("take-profit", defaults.TakeProfit, "Take profit fraction (0.15 = 15%)"),
		HoldingDays:    flag.Int("holding-days", defaults.HoldingPeriodDays, "Maximum holding period in days"),

		// Walk-forward analysis
		WFEnable: flag.Bool("wf-enable", false, "Enable walk-forward analysis"),
		WFTrain:  flag.Int("wf-train", wf.TrainWindow, "Training window (bars)"),
		WFTest:   flag.Int("wf-test", wf.TestWindow, "Test window (bars)"),
		WFStep:   flag.Int("wf-step", wf.Step, "Roll step (bars)"),

		// Monte Carlo analysis
		MCEnable: flag.Bool("mc-enable", false, "Enable Monte Carlo analysis"),
		MCSims:   flag.Int("mc-sims", mc.NumSimulations, "Number of Monte Carlo simulations"),
		MCSeed:   flag.Int64("mc-seed", mc.Seed, "Monte Carlo random seed"),

		// Output options
		Excel:       flag.Bool("excel", false, "Write Excel workbook alongside the JSON report"),
		ConsoleOnly: flag.Bool("console-only", false, "Skip JSON output on stdout, tables only"),
		EnvFile:     flag.String("env", ".env", "Environment file path"),

		// Help and version
		ShowVersion: flag.Bool("version", false, "Show version information"),
	}
}

// ValidateBacktestFlags performs validation on flag combinations
func ValidateBacktestFlags(flags *BacktestFlags) error {
	if *flags.Symbols == "" {
		return fmt.Errorf("at least one symbol is required (-symbols AAPL,MSFT)")
	}
	if *flags.Start == "" || *flags.End == "" {
		return fmt.Errorf("both -start and -end dates are required")
	}
	if _, err := time.Parse("2006-01-02", *flags.Start); err != nil {
		return fmt.Errorf("invalid start date %q: use YYYY-MM-DD", *flags.Start)
	}
	if _, err := time.Parse("2006-01-02", *flags.End); err != nil {
		return fmt.Errorf("invalid end date %q: use YYYY-MM-DD", *flags.End)
	}
	if *flags.WFEnable {
		if *flags.WFTrain <= 0 || *flags.WFTest <= 0 || *flags.WFStep <= 0 {
			return fmt.Errorf("walk-forward windows must be positive")
		}
		if *flags.WFTrain <= *flags.WFTest {
			return fmt.Errorf("training window (%d) should exceed test window (%d)", *flags.WFTrain, *flags.WFTest)
		}
	}
	if *flags.MCEnable && *flags.MCSims <= 0 {
		return fmt.Errorf("monte carlo simulations must be positive, got %d", *flags.MCSims)
	}
	return nil
}

// ParseSymbols splits and normalizes the symbols list
func ParseSymbols(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ParseStrategyParams parses key=value pairs into parameter overrides
func ParseStrategyParams(raw string) (map[string]float64, error) {
	if raw == "" {
		return nil, nil
	}
	params := make(map[string]float64)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid parameter %q: expected key=value", pair)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for parameter %s: %w", key, err)
		}
		params[strings.TrimSpace(key)] = v
	}
	return params, nil
}
