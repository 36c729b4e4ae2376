package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/equity-backtest/pkg/types"
)

func featureBars(closes []float64) []types.Bar {
	bars := make([]types.Bar, len(closes))
	for i, c := range closes {
		bars[i] = types.Bar{
			Symbol: "FEAT",
			Date:   time.Date(2023, time.April, 3, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Open:   c,
			High:   c * 1.02,
			Low:    c * 0.98,
			Close:  c,
			Volume: 2_000_000,
		}
	}
	return bars
}

// TestCompute_SeriesAligned verifies every derived series matches the
// input length.
func TestCompute_SeriesAligned(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i%10)
	}
	set := Compute(featureBars(closes))

	n := len(closes)
	for name, series := range map[string][]float64{
		"returns":      set.Returns,
		"log_returns":  set.LogReturns,
		"sma20":        set.SMA20,
		"sma50":        set.SMA50,
		"ema12":        set.EMA12,
		"ema26":        set.EMA26,
		"rsi":          set.RSI,
		"macd":         set.MACD,
		"macd_signal":  set.MACDSignal,
		"macd_hist":    set.MACDHist,
		"atr":          set.ATR,
		"volatility":   set.Volatility,
		"volume_sma":   set.VolumeSMA,
		"volume_ratio": set.VolumeRatio,
		"bb_upper":     set.BBUpper,
		"bb_middle":    set.BBMiddle,
		"bb_lower":     set.BBLower,
		"bb_position":  set.BBPosition,
	} {
		assert.Len(t, series, n, name)
	}
}

// TestCompute_Returns checks simple and log returns on a known series.
func TestCompute_Returns(t *testing.T) {
	set := Compute(featureBars([]float64{100, 110, 99}))

	assert.Zero(t, set.Returns[0])
	assert.InDelta(t, 0.10, set.Returns[1], 1e-9)
	assert.InDelta(t, -0.10, set.Returns[2], 1e-9)
	assert.InDelta(t, math.Log(1.10), set.LogReturns[1], 1e-9)
}

// TestCompute_ConstantSeries verifies a flat market produces a flat
// SMA, unit volume ratio, and zero volatility.
func TestCompute_ConstantSeries(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 250
	}
	set := Compute(featureBars(closes))

	assert.InDelta(t, 250, set.SMA20[39], 1e-9)
	assert.InDelta(t, 1.0, set.VolumeRatio[39], 1e-9)
	assert.InDelta(t, 0.0, set.Volatility[39], 1e-12)
	assert.GreaterOrEqual(t, set.BBUpper[39], set.BBLower[39])
}

// TestRSI_KnownSeries checks the RSI math and the NaN warm-up mask.
func TestRSI_KnownSeries(t *testing.T) {
	rsi := RSI(3, []float64{100, 97, 94, 95, 91, 88})
	for i := 0; i < 3; i++ {
		assert.True(t, math.IsNaN(rsi[i]), "warm-up bar %d", i)
	}
	// Window gains average 1/3, losses 7/3: rs = 1/7, rsi = 12.5.
	assert.InDelta(t, 12.5, rsi[5], 1e-9)

	rising := RSI(3, []float64{100, 103, 106, 109, 112})
	assert.InDelta(t, 100, rising[4], 1e-9)
}

// TestCompute_Empty verifies empty input does not panic.
func TestCompute_Empty(t *testing.T) {
	set := Compute(nil)
	require.NotNil(t, set)
	assert.Empty(t, set.Returns)
}
