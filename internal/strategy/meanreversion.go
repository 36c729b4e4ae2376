package strategy

import (
	"math"

	"github.com/ducminhle1904/equity-backtest/internal/features"
	"github.com/ducminhle1904/equity-backtest/pkg/types"
)

// MeanReversion buys oversold symbols and exits overbought ones using a
// rolling-average RSI. Strength scales with how deep below the oversold
// threshold the RSI sits.
type MeanReversion struct {
	RSIPeriod  int
	Oversold   float64
	Overbought float64
}

// NewMeanReversion builds a mean-reversion generator. Recognized
// parameters: rsi_period (14), oversold_threshold (30),
// overbought_threshold (70).
func NewMeanReversion(params map[string]float64) *MeanReversion {
	return &MeanReversion{
		RSIPeriod:  int(paramOr(params, "rsi_period", 14)),
		Oversold:   paramOr(params, "oversold_threshold", 30),
		Overbought: paramOr(params, "overbought_threshold", 70),
	}
}

func (m *MeanReversion) Name() string { return "mean_reversion" }

func (m *MeanReversion) Params() map[string]float64 {
	return map[string]float64{
		"rsi_period":           float64(m.RSIPeriod),
		"oversold_threshold":   m.Oversold,
		"overbought_threshold": m.Overbought,
	}
}

// Signals emits enter_long below the oversold threshold and exit above
// the overbought threshold.
func (m *MeanReversion) Signals(bars []types.Bar, feats *features.Set) []types.Signal {
	rsi := m.rsiSeries(bars, feats)

	signals := make([]types.Signal, len(bars))
	for i, bar := range bars {
		signals[i] = types.Signal{
			Symbol:    bar.Symbol,
			Date:      bar.Date,
			Direction: types.SignalHold,
		}
		if math.IsNaN(rsi[i]) {
			continue // warm-up, or no gains and no losses in the window
		}
		switch {
		case rsi[i] < m.Oversold:
			signals[i].Direction = types.SignalEnterLong
			signals[i].Strength = (m.Oversold - rsi[i]) / m.Oversold
		case rsi[i] > m.Overbought:
			signals[i].Direction = types.SignalExit
		}
	}
	return signals
}

// Calibrate is a no-op: the thresholds are fixed policy, not fitted.
func (m *MeanReversion) Calibrate([]types.Bar, *features.Set) {}

// rsiSeries prefers the precomputed feature series. A non-default
// period or a missing feature set recomputes through the same
// indicator.
func (m *MeanReversion) rsiSeries(bars []types.Bar, feats *features.Set) []float64 {
	if feats != nil && m.RSIPeriod == features.DefaultRSIPeriod && len(feats.RSI) == len(bars) {
		return feats.RSI
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return features.RSI(m.RSIPeriod, closes)
}
