package backtest

import (
	"math"
	"sort"

	"github.com/ducminhle1904/equity-backtest/pkg/types"
)

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// std is the population standard deviation.
func std(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	variance := 0.0
	for _, v := range values {
		variance += (v - m) * (v - m)
	}
	return math.Sqrt(variance / float64(len(values)))
}

// percentile computes the p-th percentile (0..100) with linear
// interpolation between closest ranks.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// ReturnsFromCurve converts an equity curve into per-period simple
// returns.
func ReturnsFromCurve(curve []types.PortfolioSnapshot) []float64 {
	if len(curve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].TotalValue
		if prev <= 0 {
			continue
		}
		returns = append(returns, curve[i].TotalValue/prev-1)
	}
	return returns
}

// MaxDrawdownFromReturns compounds the returns and reports the deepest
// peak-to-trough decline as a negative fraction. Every component that
// needs a drawdown (performance, walk-forward, Monte Carlo) goes through
// this one implementation so the values agree.
func MaxDrawdownFromReturns(returns []float64) float64 {
	cumulative := 1.0
	runningMax := 1.0
	maxDrawdown := 0.0

	for _, r := range returns {
		cumulative *= 1 + r
		if cumulative > runningMax {
			runningMax = cumulative
		}
		drawdown := (cumulative - runningMax) / runningMax
		if drawdown < maxDrawdown {
			maxDrawdown = drawdown
		}
	}
	return maxDrawdown
}
