// Package features derives the technical indicator series that signal
// generators consume. All series are aligned index-for-index with the
// input bars; positions before an indicator's warm-up hold zero values,
// except RSI which holds NaN there.
package features

import (
	"math"

	"github.com/cinar/indicator"

	"github.com/ducminhle1904/equity-backtest/pkg/types"
)

// DefaultRSIPeriod is the window behind Set.RSI.
const DefaultRSIPeriod = 14

// Set holds the derived series for one symbol's bar history.
type Set struct {
	Returns     []float64
	LogReturns  []float64
	SMA20       []float64
	SMA50       []float64
	EMA12       []float64
	EMA26       []float64
	RSI         []float64
	MACD        []float64
	MACDSignal  []float64
	MACDHist    []float64
	ATR         []float64
	Volatility  []float64
	VolumeSMA   []float64
	VolumeRatio []float64
	BBUpper     []float64
	BBMiddle    []float64
	BBLower     []float64
	BBPosition  []float64
}

// Compute derives all feature series from the bar history.
func Compute(bars []types.Bar) *Set {
	n := len(bars)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
		volumes[i] = b.Volume
	}

	set := &Set{
		Returns:    make([]float64, n),
		LogReturns: make([]float64, n),
	}
	for i := 1; i < n; i++ {
		if closes[i-1] > 0 {
			set.Returns[i] = closes[i]/closes[i-1] - 1
			set.LogReturns[i] = math.Log(closes[i] / closes[i-1])
		}
	}

	if n == 0 {
		return set
	}

	set.SMA20 = indicator.Sma(20, closes)
	set.SMA50 = indicator.Sma(50, closes)
	set.EMA12 = indicator.Ema(12, closes)
	set.EMA26 = indicator.Ema(26, closes)

	set.RSI = RSI(DefaultRSIPeriod, closes)
	set.MACD, set.MACDSignal = indicator.Macd(closes)
	set.MACDHist = make([]float64, n)
	for i := range set.MACDHist {
		set.MACDHist[i] = set.MACD[i] - set.MACDSignal[i]
	}

	_, set.ATR = indicator.Atr(14, highs, lows, closes)
	set.Volatility = rollingStd(set.Returns, 20)

	set.VolumeSMA = indicator.Sma(20, volumes)
	set.VolumeRatio = make([]float64, n)
	for i := range set.VolumeRatio {
		if set.VolumeSMA[i] > 0 {
			set.VolumeRatio[i] = volumes[i] / set.VolumeSMA[i]
		}
	}

	set.BBMiddle, set.BBUpper, set.BBLower = indicator.BollingerBands(closes)
	set.BBPosition = make([]float64, n)
	for i := range set.BBPosition {
		width := set.BBUpper[i] - set.BBLower[i]
		if width > 0 {
			set.BBPosition[i] = (closes[i] - set.BBLower[i]) / width
		}
	}

	return set
}

// RSI computes the relative strength index over the given period.
// Positions before the warm-up window are NaN, as are stretches with
// neither gains nor losses.
func RSI(period int, closes []float64) []float64 {
	_, rsi := indicator.RsiPeriod(period, closes)
	for i := 0; i < len(rsi) && i < period; i++ {
		rsi[i] = math.NaN()
	}
	return rsi
}

// rollingStd computes a trailing population standard deviation over the
// previous window values, zero before warm-up.
func rollingStd(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := window; i < len(values); i++ {
		slice := values[i-window+1 : i+1]
		mean := 0.0
		for _, v := range slice {
			mean += v
		}
		mean /= float64(len(slice))

		variance := 0.0
		for _, v := range slice {
			variance += (v - mean) * (v - mean)
		}
		out[i] = math.Sqrt(variance / float64(len(slice)))
	}
	return out
}
