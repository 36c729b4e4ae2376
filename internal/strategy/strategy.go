// Package strategy turns bar history plus derived features into per-date
// trading signals. Generators are deterministic: the same history always
// produces the same signal sequence.
package strategy

import (
	"fmt"

	"github.com/ducminhle1904/equity-backtest/internal/features"
	"github.com/ducminhle1904/equity-backtest/pkg/types"
)

// SignalGenerator produces one signal per bar of a single symbol's
// history. Strength ranks entry candidates when the simulator is at
// position capacity.
type SignalGenerator interface {
	// Name returns the registered strategy name.
	Name() string

	// Signals emits one signal per input bar, aligned by index.
	Signals(bars []types.Bar, feats *features.Set) []types.Signal

	// Calibrate re-fits adaptive parameters on a training window.
	// Non-adaptive strategies treat this as a no-op.
	Calibrate(bars []types.Bar, feats *features.Set)

	// Params reports the effective parameters, for the run report.
	Params() map[string]float64
}

// New constructs a registered signal generator with the given parameter
// overrides. An unknown name is a fatal configuration error.
func New(name string, params map[string]float64) (SignalGenerator, error) {
	switch name {
	case "momentum":
		return NewMomentum(params), nil
	case "mean_reversion":
		return NewMeanReversion(params), nil
	default:
		return nil, fmt.Errorf("unknown strategy: %s", name)
	}
}

// Names lists the registered strategies.
func Names() []string {
	return []string{"momentum", "mean_reversion"}
}

func paramOr(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}
