// Package orchestrator wires data fetching, signal generation, the
// portfolio simulator, robustness analysis and result validation into
// one reproducible backtest run, then persists the artifacts.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ducminhle1904/equity-backtest/internal/backtest"
	"github.com/ducminhle1904/equity-backtest/internal/config"
	"github.com/ducminhle1904/equity-backtest/internal/features"
	"github.com/ducminhle1904/equity-backtest/internal/logging"
	"github.com/ducminhle1904/equity-backtest/internal/marketdata"
	"github.com/ducminhle1904/equity-backtest/internal/monitoring"
	"github.com/ducminhle1904/equity-backtest/internal/store"
	"github.com/ducminhle1904/equity-backtest/internal/strategy"
	"github.com/ducminhle1904/equity-backtest/internal/validation"
	"github.com/ducminhle1904/equity-backtest/pkg/reporting"
	"github.com/ducminhle1904/equity-backtest/pkg/types"
)

// RunRequest is everything needed to execute one backtest.
type RunRequest struct {
	Strategy       string             `json:"strategy"`
	Symbols        []string           `json:"symbols"`
	Start          time.Time          `json:"start"`
	End            time.Time          `json:"end"`
	SimParams      backtest.SimParams `json:"sim_params"`
	StrategyParams map[string]float64 `json:"strategy_params,omitempty"`

	RunWalkForward bool                       `json:"run_walk_forward"`
	WalkForward    backtest.WalkForwardConfig `json:"walk_forward_config"`
	RunMonteCarlo  bool                       `json:"run_monte_carlo"`
	MonteCarlo     backtest.MonteCarloConfig  `json:"monte_carlo_config"`

	WriteExcel bool `json:"write_excel"`
}

// Validate rejects malformed requests before any work starts.
func (r *RunRequest) Validate() error {
	if r.Strategy == "" {
		return fmt.Errorf("strategy is required")
	}
	if len(r.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("start and end dates are required")
	}
	if !r.End.After(r.Start) {
		return fmt.Errorf("end date %s must be after start date %s",
			r.End.Format("2006-01-02"), r.Start.Format("2006-01-02"))
	}
	return r.SimParams.Validate()
}

// Robustness holds the optional out-of-sample analyses.
type Robustness struct {
	WalkForward *backtest.WalkForwardSummary `json:"walk_forward,omitempty"`
	MonteCarlo  *backtest.MonteCarloSummary  `json:"monte_carlo,omitempty"`
}

// ValidationSection wraps the validation report in the persisted shape.
type ValidationSection struct {
	ValidationReport *validation.Report `json:"validation_report"`
}

// SymbolPnL aggregates realized results for one symbol.
type SymbolPnL struct {
	Symbol string  `json:"symbol"`
	Trades int     `json:"trades"`
	NetPnL float64 `json:"net_pnl"`
}

// TradesSummary highlights standout trades for the report.
type TradesSummary struct {
	BestTrade       *types.Trade `json:"best_trade,omitempty"`
	WorstTrade      *types.Trade `json:"worst_trade,omitempty"`
	AvgDurationDays float64      `json:"avg_duration_days"`
	TopSymbols      []SymbolPnL  `json:"top_symbols,omitempty"`
}

// Report is the persisted output of one run.
type Report struct {
	ExperimentID   string                      `json:"experiment_id"`
	Strategy       string                      `json:"strategy"`
	Symbols        []string                    `json:"symbols"`
	Start          time.Time                   `json:"start"`
	End            time.Time                   `json:"end"`
	StrategyParams map[string]float64          `json:"strategy_params,omitempty"`
	Trades         []types.Trade               `json:"trades"`
	PortfolioValue []types.PortfolioSnapshot   `json:"portfolio_value"`
	Performance    backtest.PerformanceMetrics `json:"performance"`
	TradesSummary  *TradesSummary              `json:"trades_summary,omitempty"`
	Robustness     *Robustness                 `json:"robustness,omitempty"`
	Validation     ValidationSection           `json:"validation"`
	Diagnostics    []string                    `json:"diagnostics,omitempty"`
}

// Orchestrator runs backtests end to end.
type Orchestrator struct {
	cfg     *config.Config
	log     *logrus.Entry
	logger  *logging.Logger
	fetcher *marketdata.Fetcher
	index   store.ExperimentStore
}

// New assembles an orchestrator. index may be nil to skip the
// experiment database.
func New(cfg *config.Config, logger *logging.Logger, fetcher *marketdata.Fetcher, index store.ExperimentStore) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		log:     logger.WithComponent("orchestrator"),
		logger:  logger,
		fetcher: fetcher,
		index:   index,
	}
}

// Run executes the full pipeline. A single symbol's data failure is
// recorded in diagnostics and the run continues; an unknown strategy,
// a malformed request, or an empty dataset after fetching is fatal.
func (o *Orchestrator) Run(ctx context.Context, req *RunRequest) (*Report, error) {
	started := time.Now()

	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	gen, err := strategy.New(req.Strategy, req.StrategyParams)
	if err != nil {
		return nil, err
	}

	report := &Report{
		ExperimentID:   experimentID(req.Strategy, started),
		Strategy:       req.Strategy,
		Symbols:        req.Symbols,
		Start:          req.Start,
		End:            req.End,
		StrategyParams: gen.Params(),
	}

	data, fetchErrs := o.fetcher.GetMany(ctx, req.Symbols, req.Start, req.End)
	for _, symbol := range sortedKeys(fetchErrs) {
		report.Diagnostics = append(report.Diagnostics,
			fmt.Sprintf("data unavailable for %s: %v", symbol, fetchErrs[symbol]))
	}
	if len(data) == 0 {
		monitoring.RecordRun(req.Strategy, "failed", time.Since(started))
		return nil, fmt.Errorf("no market data available for any requested symbol")
	}

	signals := o.generateSignals(gen, data)
	results := o.simulate(ctx, req, data, signals)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report.Trades = results.Trades
	report.PortfolioValue = results.EquityCurve
	report.Diagnostics = append(report.Diagnostics, results.Diagnostics...)

	analyzer := backtest.NewPerformanceAnalyzer()
	report.Performance = analyzer.Analyze(results.EquityCurve, results.Trades, nil)
	report.TradesSummary = summarizeTrades(results.Trades)

	if req.RunWalkForward || req.RunMonteCarlo {
		report.Robustness = &Robustness{}
	}
	if req.RunWalkForward {
		wf, err := o.walkForward(ctx, req, gen, data)
		if err != nil {
			report.Diagnostics = append(report.Diagnostics,
				fmt.Sprintf("walk-forward skipped: %v", err))
		} else {
			report.Robustness.WalkForward = wf
		}
	}
	if req.RunMonteCarlo {
		mc, err := o.monteCarlo(ctx, req, results)
		if err != nil {
			report.Diagnostics = append(report.Diagnostics,
				fmt.Sprintf("monte carlo skipped: %v", err))
		} else {
			report.Robustness.MonteCarlo = mc
		}
	}

	validator := validation.NewValidator(o.logger)
	report.Validation.ValidationReport = validator.Validate(validation.Input{
		Data:           data,
		Trades:         results.Trades,
		EquityCurve:    results.EquityCurve,
		Metrics:        report.Performance,
		InitialCapital: req.SimParams.InitialCapital,
		Commission:     req.SimParams.Commission,
	})

	if err := o.persist(ctx, req, report); err != nil {
		report.Diagnostics = append(report.Diagnostics,
			fmt.Sprintf("artifact persistence failed: %v", err))
	}

	monitoring.RecordRun(req.Strategy, "completed", time.Since(started))
	o.log.WithFields(logrus.Fields{
		"experiment_id": report.ExperimentID,
		"trades":        len(report.Trades),
		"total_return":  report.Performance.TotalReturn,
		"duration":      time.Since(started).String(),
	}).Info("Backtest completed")

	return report, nil
}

// generateSignals computes features and signals per symbol, keyed by
// date for the simulation loop.
func (o *Orchestrator) generateSignals(gen strategy.SignalGenerator, data map[string][]types.Bar) map[string]map[int64]types.Signal {
	out := make(map[string]map[int64]types.Signal, len(data))
	for symbol, bars := range data {
		feats := features.Compute(bars)
		byDate := make(map[int64]types.Signal, len(bars))
		for _, sig := range gen.Signals(bars, feats) {
			byDate[sig.Date.Unix()] = sig
		}
		out[symbol] = byDate
	}
	return out
}

// simulate steps the portfolio across the union of all symbols' dates,
// strictly chronologically. Cancellation is checked once per date.
func (o *Orchestrator) simulate(ctx context.Context, req *RunRequest, data map[string][]types.Bar, signals map[string]map[int64]types.Signal) *backtest.Results {
	barsByDate := make(map[int64]map[string]types.Bar)
	for symbol, bars := range data {
		for _, b := range bars {
			key := b.Date.Unix()
			if barsByDate[key] == nil {
				barsByDate[key] = make(map[string]types.Bar)
			}
			barsByDate[key][symbol] = b
		}
	}

	dates := make([]int64, 0, len(barsByDate))
	for d := range barsByDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i] < dates[j] })

	sim := backtest.NewPortfolioSimulator(req.SimParams)
	for _, key := range dates {
		if ctx.Err() != nil {
			break
		}
		date := time.Unix(key, 0).UTC()
		dayBars := barsByDate[key]
		daySignals := make(map[string]types.Signal, len(dayBars))
		for symbol := range dayBars {
			if sig, ok := signals[symbol][key]; ok {
				daySignals[symbol] = sig
			}
		}
		sim.Step(date, dayBars, daySignals)
	}
	return sim.Results()
}

// walkForward runs the rolling analysis on the primary symbol, the
// first in sorted order that has data.
func (o *Orchestrator) walkForward(ctx context.Context, req *RunRequest, gen strategy.SignalGenerator, data map[string][]types.Bar) (*backtest.WalkForwardSummary, error) {
	primary := sortedKeys(data)[0]
	bars := data[primary]

	calibrate := func(train []types.Bar) {
		gen.Calibrate(train, features.Compute(train))
	}
	runWindow := func(ctx context.Context, test []types.Bar) (backtest.PerformanceMetrics, error) {
		feats := features.Compute(test)
		byDate := make(map[int64]types.Signal, len(test))
		for _, sig := range gen.Signals(test, feats) {
			byDate[sig.Date.Unix()] = sig
		}

		sim := backtest.NewPortfolioSimulator(req.SimParams)
		for _, b := range test {
			if err := ctx.Err(); err != nil {
				return backtest.PerformanceMetrics{}, err
			}
			daySignals := map[string]types.Signal{}
			if sig, ok := byDate[b.Date.Unix()]; ok {
				daySignals[primary] = sig
			}
			sim.Step(b.Date, map[string]types.Bar{primary: b}, daySignals)
		}
		res := sim.Results()
		analyzer := backtest.NewPerformanceAnalyzer()
		return analyzer.Analyze(res.EquityCurve, res.Trades, nil), nil
	}

	wf := backtest.NewWalkForwardAnalyzer(req.WalkForward, calibrate, runWindow)
	return wf.Run(ctx, bars)
}

func (o *Orchestrator) monteCarlo(ctx context.Context, req *RunRequest, results *backtest.Results) (*backtest.MonteCarloSummary, error) {
	returns := backtest.ReturnsFromCurve(results.EquityCurve)
	mc := backtest.NewMonteCarloSimulator(req.MonteCarlo)
	return mc.Run(ctx, returns, req.SimParams.InitialCapital)
}

// persist writes the report JSON (and optionally an Excel workbook)
// under the results directory and indexes the run in the experiment
// database.
func (o *Orchestrator) persist(ctx context.Context, req *RunRequest, report *Report) error {
	dir := filepath.Join(o.cfg.Results.Dir, report.ExperimentID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create results directory: %w", err)
	}

	reportPath := filepath.Join(dir, "report.json")
	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(reportPath, payload, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if req.WriteExcel {
		excel := reporting.NewExcelReporter()
		run := &reporting.RunReport{
			ExperimentID: report.ExperimentID,
			Strategy:     report.Strategy,
			Symbols:      report.Symbols,
			Trades:       report.Trades,
			EquityCurve:  report.PortfolioValue,
			Performance:  report.Performance,
			Validation:   report.Validation.ValidationReport,
		}
		if report.Robustness != nil {
			run.WalkForward = report.Robustness.WalkForward
			run.MonteCarlo = report.Robustness.MonteCarlo
		}
		if err := excel.Write(run, filepath.Join(dir, "report.xlsx")); err != nil {
			return fmt.Errorf("write excel workbook: %w", err)
		}
	}

	if o.index == nil {
		return nil
	}
	v := report.Validation.ValidationReport
	exp := &store.Experiment{
		ID:              report.ExperimentID,
		Strategy:        report.Strategy,
		Symbols:         strings.Join(report.Symbols, ","),
		StartDate:       report.Start,
		EndDate:         report.End,
		InitialCapital:  req.SimParams.InitialCapital,
		FinalValue:      report.Performance.FinalValue,
		TotalReturn:     report.Performance.TotalReturn,
		SharpeRatio:     report.Performance.Sharpe,
		MaxDrawdown:     report.Performance.MaxDrawdown,
		TotalTrades:     report.Performance.TotalTrades,
		ValidationGrade: v.Grade,
		ValidationScore: v.AccuracyMetrics.ValidationScore,
		ReportPath:      reportPath,
	}
	if err := o.index.SaveExperiment(ctx, exp); err != nil {
		return fmt.Errorf("index experiment: %w", err)
	}
	return nil
}

// summarizeTrades picks the best and worst trades by net PnL and the
// top three symbols by realized PnL. Nil when no trades closed.
func summarizeTrades(trades []types.Trade) *TradesSummary {
	if len(trades) == 0 {
		return nil
	}

	best, worst := trades[0], trades[0]
	var totalDays int
	bySymbol := make(map[string]*SymbolPnL)
	for _, t := range trades {
		if t.NetPnL > best.NetPnL {
			best = t
		}
		if t.NetPnL < worst.NetPnL {
			worst = t
		}
		totalDays += t.HoldingDays()
		agg := bySymbol[t.Symbol]
		if agg == nil {
			agg = &SymbolPnL{Symbol: t.Symbol}
			bySymbol[t.Symbol] = agg
		}
		agg.Trades++
		agg.NetPnL += t.NetPnL
	}

	top := make([]SymbolPnL, 0, len(bySymbol))
	for _, agg := range bySymbol {
		top = append(top, *agg)
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].NetPnL != top[j].NetPnL {
			return top[i].NetPnL > top[j].NetPnL
		}
		return top[i].Symbol < top[j].Symbol
	})
	if len(top) > 3 {
		top = top[:3]
	}

	return &TradesSummary{
		BestTrade:       &best,
		WorstTrade:      &worst,
		AvgDurationDays: float64(totalDays) / float64(len(trades)),
		TopSymbols:      top,
	}
}

func experimentID(strategyName string, at time.Time) string {
	return fmt.Sprintf("%s_%s", strategyName, at.UTC().Format("20060102_150405"))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

