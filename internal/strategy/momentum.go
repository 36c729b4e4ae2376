package strategy

import (
	"github.com/ducminhle1904/equity-backtest/internal/features"
	"github.com/ducminhle1904/equity-backtest/pkg/types"
)

// Momentum buys symbols whose trailing lookback return exceeds a
// threshold. Signal strength is the momentum itself, so stronger movers
// win entry slots under capacity pressure. Exits are left to the
// simulator's holding period and stop rules.
type Momentum struct {
	Lookback  int
	Threshold float64
}

// NewMomentum builds a momentum generator. Recognized parameters:
// lookback_period (default 20), momentum_threshold (default 0.02).
func NewMomentum(params map[string]float64) *Momentum {
	return &Momentum{
		Lookback:  int(paramOr(params, "lookback_period", 20)),
		Threshold: paramOr(params, "momentum_threshold", 0.02),
	}
}

func (m *Momentum) Name() string { return "momentum" }

func (m *Momentum) Params() map[string]float64 {
	return map[string]float64{
		"lookback_period":    float64(m.Lookback),
		"momentum_threshold": m.Threshold,
	}
}

// Signals emits enter_long when the lookback return clears the
// threshold, hold otherwise.
func (m *Momentum) Signals(bars []types.Bar, _ *features.Set) []types.Signal {
	signals := make([]types.Signal, len(bars))
	for i, bar := range bars {
		signals[i] = types.Signal{
			Symbol:    bar.Symbol,
			Date:      bar.Date,
			Direction: types.SignalHold,
		}

		if i < m.Lookback {
			continue
		}
		base := bars[i-m.Lookback].Close
		if base <= 0 {
			continue
		}
		momentum := (bar.Close - base) / base
		if momentum > m.Threshold {
			signals[i].Direction = types.SignalEnterLong
			signals[i].Strength = momentum
		}
	}
	return signals
}

// Calibrate tightens the entry threshold toward the median positive
// lookback return of the training window, keeping the generator from
// firing on noise in quiet regimes.
func (m *Momentum) Calibrate(bars []types.Bar, _ *features.Set) {
	if len(bars) <= m.Lookback {
		return
	}

	var positives []float64
	for i := m.Lookback; i < len(bars); i++ {
		base := bars[i-m.Lookback].Close
		if base <= 0 {
			continue
		}
		momentum := (bars[i].Close - base) / base
		if momentum > 0 {
			positives = append(positives, momentum)
		}
	}
	if len(positives) == 0 {
		return
	}

	mean := 0.0
	for _, v := range positives {
		mean += v
	}
	mean /= float64(len(positives))

	// Never loosen below the configured floor.
	if mean > m.Threshold {
		m.Threshold = mean
	}
}
