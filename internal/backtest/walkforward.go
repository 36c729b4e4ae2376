package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/ducminhle1904/equity-backtest/pkg/types"
)

// WalkForwardConfig sizes the rolling train/test windows, in bars.
type WalkForwardConfig struct {
	TrainWindow int `json:"train_window"`
	TestWindow  int `json:"test_window"`
	Step        int `json:"step"`
}

// DefaultWalkForwardConfig is one year of training, one quarter of
// testing, rolling forward one month at a time.
func DefaultWalkForwardConfig() WalkForwardConfig {
	return WalkForwardConfig{TrainWindow: TradingDaysPerYear, TestWindow: 63, Step: 21}
}

// WindowCount reports how many folds fit into n bars:
// floor((n - train - test) / step) + 1, zero when nothing fits.
func (c WalkForwardConfig) WindowCount(n int) int {
	remaining := n - c.TrainWindow - c.TestWindow
	if remaining < 0 {
		return 0
	}
	return remaining/c.Step + 1
}

// WindowResult is one fold's out-of-sample outcome.
type WindowResult struct {
	Window      int                `json:"window"`
	TrainStart  time.Time          `json:"train_start"`
	TrainEnd    time.Time          `json:"train_end"`
	TestStart   time.Time          `json:"test_start"`
	TestEnd     time.Time          `json:"test_end"`
	TotalReturn float64            `json:"total_return"`
	Metrics     PerformanceMetrics `json:"metrics"`
}

// WalkForwardSummary aggregates per-window out-of-sample returns.
type WalkForwardSummary struct {
	Windows         []WindowResult `json:"windows"`
	TotalWindows    int            `json:"total_windows"`
	MeanTestReturn  float64        `json:"mean_test_return"`
	StdTestReturn   float64        `json:"std_test_return"`
	MinTestReturn   float64        `json:"min_test_return"`
	MaxTestReturn   float64        `json:"max_test_return"`
	PositiveWindows int            `json:"positive_windows"`
	NegativeWindows int            `json:"negative_windows"`
}

// Calibrator re-fits adaptive strategy parameters on a training slice.
type Calibrator func(train []types.Bar)

// WindowBacktester runs a full simulate-and-analyze pass over a test
// slice and returns its metrics.
type WindowBacktester func(ctx context.Context, test []types.Bar) (PerformanceMetrics, error)

// WalkForwardAnalyzer re-runs the simulator over rolling train/test
// windows. Folds run sequentially because an adaptive strategy's later
// calibrations may depend on earlier ones.
type WalkForwardAnalyzer struct {
	cfg       WalkForwardConfig
	calibrate Calibrator
	backtest  WindowBacktester
}

// NewWalkForwardAnalyzer wires a calibration step and a window
// backtester. calibrate may be nil for non-adaptive strategies.
func NewWalkForwardAnalyzer(cfg WalkForwardConfig, calibrate Calibrator, backtest WindowBacktester) *WalkForwardAnalyzer {
	if cfg.TrainWindow <= 0 || cfg.TestWindow <= 0 || cfg.Step <= 0 {
		cfg = DefaultWalkForwardConfig()
	}
	return &WalkForwardAnalyzer{cfg: cfg, calibrate: calibrate, backtest: backtest}
}

// Run walks the windows over data. Train and test ranges of one fold
// never overlap: the test slice starts exactly where training ends.
func (w *WalkForwardAnalyzer) Run(ctx context.Context, data []types.Bar) (*WalkForwardSummary, error) {
	expected := w.cfg.WindowCount(len(data))
	if expected == 0 {
		return nil, fmt.Errorf("walk-forward: need at least %d bars, have %d",
			w.cfg.TrainWindow+w.cfg.TestWindow, len(data))
	}

	summary := &WalkForwardSummary{}
	var testReturns []float64

	for start := 0; start+w.cfg.TrainWindow+w.cfg.TestWindow <= len(data); start += w.cfg.Step {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		trainEnd := start + w.cfg.TrainWindow
		testEnd := trainEnd + w.cfg.TestWindow
		train := data[start:trainEnd]
		test := data[trainEnd:testEnd]

		if w.calibrate != nil {
			w.calibrate(train)
		}

		metrics, err := w.backtest(ctx, test)
		if err != nil {
			return nil, fmt.Errorf("walk-forward window %d: %w", len(summary.Windows)+1, err)
		}

		summary.Windows = append(summary.Windows, WindowResult{
			Window:      len(summary.Windows) + 1,
			TrainStart:  train[0].Date,
			TrainEnd:    train[len(train)-1].Date,
			TestStart:   test[0].Date,
			TestEnd:     test[len(test)-1].Date,
			TotalReturn: metrics.TotalReturn,
			Metrics:     metrics,
		})
		testReturns = append(testReturns, metrics.TotalReturn)
	}

	summary.TotalWindows = len(summary.Windows)
	summary.MeanTestReturn = mean(testReturns)
	summary.StdTestReturn = std(testReturns)
	summary.MinTestReturn = minOf(testReturns)
	summary.MaxTestReturn = maxOf(testReturns)
	for _, r := range testReturns {
		if r > 0 {
			summary.PositiveWindows++
		} else if r < 0 {
			summary.NegativeWindows++
		}
	}

	return summary, nil
}

func minOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
