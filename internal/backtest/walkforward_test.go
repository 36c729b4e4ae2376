package backtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/equity-backtest/pkg/types"
)

func makeBars(n int) []types.Bar {
	bars := make([]types.Bar, n)
	price := 100.0
	for i := range bars {
		price *= 1 + 0.001*float64(i%7-3)
		bars[i] = flatBar("WF", testDate(i), price)
	}
	return bars
}

// TestWindowCount checks the fold arithmetic for a range of lengths.
func TestWindowCount(t *testing.T) {
	cfg := WalkForwardConfig{TrainWindow: 252, TestWindow: 63, Step: 21}

	assert.Equal(t, 0, cfg.WindowCount(100))
	assert.Equal(t, 0, cfg.WindowCount(314))
	assert.Equal(t, 1, cfg.WindowCount(315))
	assert.Equal(t, 1, cfg.WindowCount(335))
	assert.Equal(t, 2, cfg.WindowCount(336))
	assert.Equal(t, 5, cfg.WindowCount(252+63+4*21))
}

// TestWalkForward_WindowsDoNotOverlap runs the analyzer over synthetic
// bars and checks fold boundaries: test starts exactly where training
// ends, and the count matches the formula.
func TestWalkForward_WindowsDoNotOverlap(t *testing.T) {
	cfg := WalkForwardConfig{TrainWindow: 50, TestWindow: 20, Step: 10}
	bars := makeBars(100)

	var calibrations int
	wf := NewWalkForwardAnalyzer(cfg,
		func(train []types.Bar) {
			calibrations++
			assert.Len(t, train, 50)
		},
		func(_ context.Context, test []types.Bar) (PerformanceMetrics, error) {
			assert.Len(t, test, 20)
			return PerformanceMetrics{TotalReturn: 0.01}, nil
		},
	)

	summary, err := wf.Run(context.Background(), bars)
	require.NoError(t, err)

	expected := cfg.WindowCount(len(bars))
	assert.Equal(t, expected, summary.TotalWindows)
	assert.Equal(t, expected, calibrations)

	for _, w := range summary.Windows {
		assert.True(t, w.TestStart.After(w.TrainEnd),
			"window %d: test range overlaps train range", w.Window)
	}
}

// TestWalkForward_TooFewBars verifies a series shorter than one fold is
// rejected.
func TestWalkForward_TooFewBars(t *testing.T) {
	wf := NewWalkForwardAnalyzer(
		WalkForwardConfig{TrainWindow: 252, TestWindow: 63, Step: 21},
		nil,
		func(_ context.Context, _ []types.Bar) (PerformanceMetrics, error) {
			t.Fatal("backtester must not run")
			return PerformanceMetrics{}, nil
		},
	)

	_, err := wf.Run(context.Background(), makeBars(100))
	assert.Error(t, err)
}

// TestWalkForward_SummaryStats checks aggregation over known returns.
func TestWalkForward_SummaryStats(t *testing.T) {
	cfg := WalkForwardConfig{TrainWindow: 30, TestWindow: 10, Step: 10}
	bars := makeBars(70)

	returns := []float64{0.05, -0.02, 0.03}
	i := 0
	wf := NewWalkForwardAnalyzer(cfg, nil,
		func(_ context.Context, _ []types.Bar) (PerformanceMetrics, error) {
			r := returns[i]
			i++
			return PerformanceMetrics{TotalReturn: r}, nil
		},
	)

	summary, err := wf.Run(context.Background(), bars)
	require.NoError(t, err)
	require.Equal(t, 3, summary.TotalWindows)

	assert.InDelta(t, 0.02, summary.MeanTestReturn, 1e-9)
	assert.InDelta(t, -0.02, summary.MinTestReturn, 1e-9)
	assert.InDelta(t, 0.05, summary.MaxTestReturn, 1e-9)
	assert.Equal(t, 2, summary.PositiveWindows)
	assert.Equal(t, 1, summary.NegativeWindows)
}

// TestWalkForward_Cancellation verifies the per-window context check.
func TestWalkForward_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	wf := NewWalkForwardAnalyzer(
		WalkForwardConfig{TrainWindow: 30, TestWindow: 10, Step: 10},
		nil,
		func(_ context.Context, _ []types.Bar) (PerformanceMetrics, error) {
			return PerformanceMetrics{}, nil
		},
	)

	_, err := wf.Run(ctx, makeBars(70))
	assert.ErrorIs(t, err, context.Canceled)
}
