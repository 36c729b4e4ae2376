package backtest

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"

	"github.com/ducminhle1904/equity-backtest/internal/monitoring"
)

// MonteCarloConfig controls the bootstrap resampling run.
type MonteCarloConfig struct {
	NumSimulations int   `json:"num_simulations"`
	Seed           int64 `json:"seed"`
	Workers        int   `json:"workers"`
}

// DefaultMonteCarloConfig resamples 1000 times with a fixed seed.
func DefaultMonteCarloConfig() MonteCarloConfig {
	return MonteCarloConfig{NumSimulations: 1000, Seed: 42, Workers: runtime.NumCPU()}
}

// TrialResult is one resampled path's outcome.
type TrialResult struct {
	FinalValue  float64 `json:"final_value"`
	TotalReturn float64 `json:"total_return"`
	MaxDrawdown float64 `json:"max_drawdown"`
}

// MonteCarloSummary aggregates the trial distribution.
type MonteCarloSummary struct {
	NumSimulations  int     `json:"num_simulations"`
	Seed            int64   `json:"seed"`
	MeanFinalValue  float64 `json:"mean_final_value"`
	StdFinalValue   float64 `json:"std_final_value"`
	MinFinalValue   float64 `json:"min_final_value"`
	MaxFinalValue   float64 `json:"max_final_value"`
	FinalValueCI    [2]float64 `json:"final_value_ci_95"`
	MeanTotalReturn float64 `json:"mean_total_return"`
	StdTotalReturn  float64 `json:"std_total_return"`
	TotalReturnCI   [2]float64 `json:"total_return_ci_95"`
	MeanMaxDrawdown float64 `json:"mean_max_drawdown"`
	WorstDrawdown   float64 `json:"worst_drawdown"`
	ProbProfit      float64 `json:"prob_profit"`
}

// MonteCarloSimulator bootstraps daily returns with replacement to
// estimate the distribution of outcomes around the realized path.
type MonteCarloSimulator struct {
	cfg MonteCarloConfig
}

func NewMonteCarloSimulator(cfg MonteCarloConfig) *MonteCarloSimulator {
	if cfg.NumSimulations <= 0 {
		cfg.NumSimulations = 1000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &MonteCarloSimulator{cfg: cfg}
}

// Run resamples returns into cfg.NumSimulations alternate paths, each
// compounded from initialCapital. Every trial seeds its own generator
// from Seed plus the trial index, so results are identical no matter
// how trials land on workers.
func (m *MonteCarloSimulator) Run(ctx context.Context, returns []float64, initialCapital float64) (*MonteCarloSummary, error) {
	if len(returns) == 0 {
		return nil, fmt.Errorf("monte carlo: empty return series")
	}
	if initialCapital <= 0 {
		return nil, fmt.Errorf("monte carlo: initial capital must be positive, got %.2f", initialCapital)
	}

	trials := make([]TrialResult, m.cfg.NumSimulations)
	indexes := make(chan int, m.cfg.NumSimulations)
	for i := 0; i < m.cfg.NumSimulations; i++ {
		indexes <- i
	}
	close(indexes)

	errCh := make(chan error, m.cfg.Workers)
	var wg sync.WaitGroup
	for w := 0; w < m.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				if err := ctx.Err(); err != nil {
					select {
					case errCh <- err:
					default:
					}
					return
				}
				trials[i] = m.runTrial(i, returns, initialCapital)
			}
		}()
	}
	wg.Wait()

	select {
	case err := <-errCh:
		return nil, err
	default:
	}

	monitoring.RecordMonteCarloTrials(m.cfg.NumSimulations)
	return m.summarize(trials), nil
}

func (m *MonteCarloSimulator) runTrial(i int, returns []float64, initialCapital float64) TrialResult {
	rng := rand.New(rand.NewSource(m.cfg.Seed + int64(i)))

	resampled := make([]float64, len(returns))
	for j := range resampled {
		resampled[j] = returns[rng.Intn(len(returns))]
	}

	value := initialCapital
	for _, r := range resampled {
		value *= 1 + r
	}

	return TrialResult{
		FinalValue:  value,
		TotalReturn: value/initialCapital - 1,
		MaxDrawdown: MaxDrawdownFromReturns(resampled),
	}
}

func (m *MonteCarloSimulator) summarize(trials []TrialResult) *MonteCarloSummary {
	finals := make([]float64, len(trials))
	rets := make([]float64, len(trials))
	dds := make([]float64, len(trials))
	profitable := 0
	for i, t := range trials {
		finals[i] = t.FinalValue
		rets[i] = t.TotalReturn
		dds[i] = t.MaxDrawdown
		if t.TotalReturn > 0 {
			profitable++
		}
	}

	sortedFinals := append([]float64(nil), finals...)
	sort.Float64s(sortedFinals)
	sortedRets := append([]float64(nil), rets...)
	sort.Float64s(sortedRets)

	worst := dds[0]
	for _, d := range dds[1:] {
		if d < worst {
			worst = d
		}
	}

	return &MonteCarloSummary{
		NumSimulations:  len(trials),
		Seed:            m.cfg.Seed,
		MeanFinalValue:  mean(finals),
		StdFinalValue:   std(finals),
		MinFinalValue:   sortedFinals[0],
		MaxFinalValue:   sortedFinals[len(sortedFinals)-1],
		FinalValueCI:    [2]float64{percentile(sortedFinals, 2.5), percentile(sortedFinals, 97.5)},
		MeanTotalReturn: mean(rets),
		StdTotalReturn:  std(rets),
		TotalReturnCI:   [2]float64{percentile(sortedRets, 2.5), percentile(sortedRets, 97.5)},
		MeanMaxDrawdown: mean(dds),
		WorstDrawdown:   worst,
		ProbProfit:      float64(profitable) / float64(len(trials)),
	}
}
