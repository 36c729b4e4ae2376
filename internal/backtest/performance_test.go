package backtest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/equity-backtest/pkg/types"
)

func curveFromValues(values []float64) []types.PortfolioSnapshot {
	curve := make([]types.PortfolioSnapshot, len(values))
	for i, v := range values {
		curve[i] = types.PortfolioSnapshot{Date: testDate(i), Cash: v, TotalValue: v}
	}
	return curve
}

// TestAnalyze_TotalReturn checks the compounded total return matches
// first-to-last value growth.
func TestAnalyze_TotalReturn(t *testing.T) {
	analyzer := NewPerformanceAnalyzer()
	m := analyzer.Analyze(curveFromValues([]float64{10000, 10500, 11550}), nil, nil)

	assert.InDelta(t, 0.155, m.TotalReturn, 1e-9)
	assert.Equal(t, 10000.0, m.InitialCapital)
	assert.Equal(t, 11550.0, m.FinalValue)
}

// TestAnalyze_FlatCurveZeroRatios verifies a zero-variance curve yields
// zero Sharpe, Sortino, and Calmar rather than NaN.
func TestAnalyze_FlatCurveZeroRatios(t *testing.T) {
	analyzer := NewPerformanceAnalyzer()
	m := analyzer.Analyze(curveFromValues([]float64{10000, 10000, 10000, 10000}), nil, nil)

	assert.Zero(t, m.Sharpe)
	assert.Zero(t, m.Sortino)
	assert.Zero(t, m.Calmar)
	assert.Zero(t, m.MaxDrawdown)
	assert.False(t, math.IsNaN(m.Volatility))
}

// TestAnalyze_ProfitFactorNoLosses verifies the profit factor is +Inf
// when every trade wins.
func TestAnalyze_ProfitFactorNoLosses(t *testing.T) {
	trades := []types.Trade{
		{Symbol: "A", EntryDate: testDate(0), ExitDate: testDate(2), NetPnL: 120},
		{Symbol: "B", EntryDate: testDate(1), ExitDate: testDate(4), NetPnL: 80},
	}
	analyzer := NewPerformanceAnalyzer()
	m := analyzer.Analyze(curveFromValues([]float64{10000, 10200}), trades, nil)

	assert.True(t, math.IsInf(m.ProfitFactor, 1))
	assert.Equal(t, 2, m.TotalTrades)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 1.0, m.WinRate)
	assert.InDelta(t, 200, m.TotalPnL, 1e-9)
}

// TestAnalyze_MaxDrawdown verifies drawdown against a hand-computed
// peak-to-trough path.
func TestAnalyze_MaxDrawdown(t *testing.T) {
	// Peak 12000, trough 9000: drawdown -25%.
	analyzer := NewPerformanceAnalyzer()
	m := analyzer.Analyze(curveFromValues([]float64{10000, 12000, 9000, 11000}), nil, nil)

	assert.InDelta(t, -0.25, m.MaxDrawdown, 1e-9)
}

// TestAnalyze_SortinoDownsideDeviation checks Sortino against a
// hand-computed downside deviation: the sample std of the negative
// returns about their own mean, not their second moment about zero.
func TestAnalyze_SortinoDownsideDeviation(t *testing.T) {
	returns := []float64{0.01, -0.02, 0.005, -0.01, 0.02, -0.03, 0.015}
	values := []float64{10000}
	for _, r := range returns {
		values = append(values, values[len(values)-1]*(1+r))
	}

	analyzer := NewPerformanceAnalyzer()
	m := analyzer.Analyze(curveFromValues(values), nil, nil)

	// Negatives {-0.02, -0.01, -0.03}: mean -0.02, sample std 0.01.
	rfDaily := DefaultRiskFreeRate / TradingDaysPerYear
	want := (mean(returns) - rfDaily) / 0.01 * math.Sqrt(TradingDaysPerYear)
	assert.InDelta(t, want, m.Sortino, 1e-8)
	assert.InDelta(t, -2.393775, m.Sortino, 1e-4)
}

// TestMaxDrawdown_ConsistentAcrossCallers verifies the shared drawdown
// helper produces the same value the analyzer reports for the same
// equity curve.
func TestMaxDrawdown_ConsistentAcrossCallers(t *testing.T) {
	values := []float64{10000, 10800, 10100, 11500, 9700, 12100}
	curve := curveFromValues(values)

	analyzer := NewPerformanceAnalyzer()
	m := analyzer.Analyze(curve, nil, nil)

	direct := MaxDrawdownFromReturns(ReturnsFromCurve(curve))
	assert.InDelta(t, direct, m.MaxDrawdown, 1e-12)
}

// TestVaR_Percentile checks VaR95 against the 5th percentile of daily
// returns and CVaR95 against the mean of the tail.
func TestVaR_Percentile(t *testing.T) {
	values := []float64{100, 99, 101, 98, 102, 97, 103, 96, 104, 95, 105}
	curve := curveFromValues(values)
	returns := ReturnsFromCurve(curve)

	analyzer := NewPerformanceAnalyzer()
	m := analyzer.Analyze(curve, nil, nil)

	require.NotEmpty(t, returns)
	assert.InDelta(t, percentile(returns, 5), m.VaR95, 1e-12)
	assert.LessOrEqual(t, m.CVaR95, m.VaR95)
}

// TestPercentile_Interpolation checks linear interpolation between
// sorted sample points.
func TestPercentile_Interpolation(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	assert.InDelta(t, 1.0, percentile(values, 0), 1e-12)
	assert.InDelta(t, 3.0, percentile(values, 50), 1e-12)
	assert.InDelta(t, 5.0, percentile(values, 100), 1e-12)
	assert.InDelta(t, 1.2, percentile(values, 5), 1e-12)
}
