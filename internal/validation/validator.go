package validation

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/ducminhle1904/equity-backtest/internal/backtest"
	"github.com/ducminhle1904/equity-backtest/internal/logging"
	"github.com/ducminhle1904/equity-backtest/internal/monitoring"
	"github.com/ducminhle1904/equity-backtest/pkg/types"
)

// ValidationResult is the outcome of one check category.
type ValidationResult struct {
	TestName        string             `json:"test_name"`
	Passed          bool               `json:"passed"`
	Score           float64            `json:"score"`
	Details         map[string]float64 `json:"details"`
	Recommendations []string           `json:"recommendations,omitempty"`
}

// AccuracyMetrics blends the category scores into a single verdict.
type AccuracyMetrics struct {
	DataAccuracy        float64 `json:"data_accuracy"`
	CalculationAccuracy float64 `json:"calculation_accuracy"`
	StrategyAccuracy    float64 `json:"strategy_accuracy"`
	OverallAccuracy     float64 `json:"overall_accuracy"`
	ConfidenceLevel     float64 `json:"confidence_level"`
	ValidationScore     float64 `json:"validation_score"`
}

// Thresholds are the minimum passing scores per category. Data quality
// tolerates more noise than calculation checks, which recompute exact
// arithmetic and should rarely miss.
type Thresholds struct {
	Data        float64 `json:"data"`
	Calculation float64 `json:"calculation"`
	Strategy    float64 `json:"strategy"`
	Overall     float64 `json:"overall"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Data: 0.70, Calculation: 0.60, Strategy: 0.80, Overall: 0.75}
}

// Report is the persisted validation verdict for one backtest run.
type Report struct {
	OverallStatus       string             `json:"overall_status"`
	Grade               string             `json:"grade"`
	AccuracyMetrics     AccuracyMetrics    `json:"accuracy_metrics"`
	Results             []ValidationResult `json:"results"`
	ThresholdCompliance map[string]bool    `json:"threshold_compliance"`
	Recommendations     []string           `json:"recommendations"`
	Summary             string             `json:"summary"`
}

// Input bundles everything a run produced that the validator re-derives
// independently.
type Input struct {
	Data           map[string][]types.Bar
	Trades         []types.Trade
	EquityCurve    []types.PortfolioSnapshot
	Metrics        backtest.PerformanceMetrics
	InitialCapital float64
	Commission     float64
}

// Validator independently recomputes a run's trades and metrics and
// grades how well the engine's reported numbers hold up.
type Validator struct {
	thresholds Thresholds
	priceTol   float64
	volumeTol  float64
	pnlTol     float64
	weights    [3]float64
	log        *logrus.Entry
}

func NewValidator(log *logging.Logger) *Validator {
	return &Validator{
		thresholds: DefaultThresholds(),
		priceTol:   0.001,
		volumeTol:  0.10,
		pnlTol:     0.001,
		weights:    [3]float64{0.30, 0.40, 0.30},
		log:        log.WithComponent("validator"),
	}
}

// WithThresholds overrides the default passing scores.
func (v *Validator) WithThresholds(t Thresholds) *Validator {
	v.thresholds = t
	return v
}

// Validate runs all three categories and assembles the report.
func (v *Validator) Validate(in Input) *Report {
	dataRes := v.validateData(in.Data)
	calcRes := v.validateCalculations(in)
	stratRes := v.validateStrategy(in.Trades)

	metrics := AccuracyMetrics{
		DataAccuracy:        dataRes.Score,
		CalculationAccuracy: calcRes.Score,
		StrategyAccuracy:    stratRes.Score,
	}
	metrics.OverallAccuracy = (metrics.DataAccuracy + metrics.CalculationAccuracy + metrics.StrategyAccuracy) / 3
	metrics.ValidationScore = v.weights[0]*metrics.DataAccuracy +
		v.weights[1]*metrics.CalculationAccuracy +
		v.weights[2]*metrics.StrategyAccuracy
	metrics.ConfidenceLevel = math.Min(1.0, metrics.OverallAccuracy*1.1)

	compliance := map[string]bool{
		"data_accuracy":        dataRes.Passed,
		"calculation_accuracy": calcRes.Passed,
		"strategy_accuracy":    stratRes.Passed,
		"overall_accuracy":     metrics.OverallAccuracy >= v.thresholds.Overall,
	}

	status := "PASSED"
	for _, ok := range compliance {
		if !ok {
			status = "FAILED"
			break
		}
	}

	var recs []string
	for _, r := range []ValidationResult{dataRes, calcRes, stratRes} {
		recs = append(recs, r.Recommendations...)
	}
	if len(recs) == 0 {
		recs = append(recs, "All validation checks passed; results are reliable")
	}

	grade := Grade(metrics.ValidationScore)
	report := &Report{
		OverallStatus:       status,
		Grade:               grade,
		AccuracyMetrics:     metrics,
		Results:             []ValidationResult{dataRes, calcRes, stratRes},
		ThresholdCompliance: compliance,
		Recommendations:     recs,
		Summary: fmt.Sprintf("Validation %s with grade %s (score %.3f, confidence %.3f)",
			status, grade, metrics.ValidationScore, metrics.ConfidenceLevel),
	}

	monitoring.SetValidationScore("data", metrics.DataAccuracy)
	monitoring.SetValidationScore("calculation", metrics.CalculationAccuracy)
	monitoring.SetValidationScore("strategy", metrics.StrategyAccuracy)
	monitoring.SetValidationScore("overall", metrics.OverallAccuracy)

	v.log.WithFields(logrus.Fields{
		"status": status,
		"grade":  grade,
		"score":  metrics.ValidationScore,
	}).Info("Validation completed")

	return report
}

// Grade maps a validation score onto a letter band.
func Grade(score float64) string {
	switch {
	case score >= 0.95:
		return "A+"
	case score >= 0.90:
		return "A"
	case score >= 0.85:
		return "B+"
	case score >= 0.80:
		return "B"
	case score >= 0.75:
		return "C+"
	case score >= 0.70:
		return "C"
	default:
		return "F"
	}
}

// validateData scores each symbol on completeness, integrity, quality
// and agreement with known reference bars, then averages across symbols.
func (v *Validator) validateData(data map[string][]types.Bar) ValidationResult {
	res := ValidationResult{TestName: "data_validation", Details: map[string]float64{}}
	if len(data) == 0 {
		res.Recommendations = append(res.Recommendations, "No market data was available to validate")
		return res
	}

	symbols := make([]string, 0, len(data))
	for s := range data {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	total := 0.0
	for _, symbol := range symbols {
		bars := data[symbol]
		completeness := v.scoreCompleteness(bars)
		integrity := v.scoreIntegrity(bars)
		quality := v.scoreQuality(bars)
		known := v.scoreKnownPoints(symbol, bars)
		score := (completeness + integrity + quality + known) / 4

		res.Details[symbol+".completeness"] = completeness
		res.Details[symbol+".integrity"] = integrity
		res.Details[symbol+".quality"] = quality
		res.Details[symbol+".known_points"] = known
		total += score

		if integrity < 1 || quality < 1 {
			res.Recommendations = append(res.Recommendations,
				fmt.Sprintf("Review data quality for %s; anomalies detected", symbol))
		}
	}

	res.Score = total / float64(len(symbols))
	res.Passed = res.Score >= v.thresholds.Data
	return res
}

func (v *Validator) scoreCompleteness(bars []types.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	if len(bars) == 1 {
		return 1
	}
	// A weekday cadence leaves gaps of up to 3 calendar days; anything
	// longer counts as a hole in the series.
	gaps := 0
	for i := 1; i < len(bars); i++ {
		if bars[i].Date.Sub(bars[i-1].Date).Hours() > 24*4 {
			gaps++
		}
	}
	gapRatio := float64(gaps) / float64(len(bars)-1)
	score := 1 - gapRatio
	if gapRatio > 0.05 {
		score *= 0.8
	}
	return math.Max(0, score)
}

func (v *Validator) scoreIntegrity(bars []types.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	score := 1.0

	badPrices, badVolumes := 0, 0
	for _, b := range bars {
		if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
			badPrices++
		}
		if b.Volume < 0 {
			badVolumes++
		}
	}
	if badPrices > 0 {
		score *= 0.5
	}
	if badVolumes > 0 {
		score *= 0.8
	}

	extreme := 0
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev <= 0 {
			continue
		}
		if math.Abs(bars[i].Close-prev)/prev > 10 {
			extreme++
		}
	}
	if len(bars) > 1 && float64(extreme)/float64(len(bars)-1) > 0.01 {
		score *= 0.7
	}

	return score
}

func (v *Validator) scoreQuality(bars []types.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	score := 1.0

	inconsistent := 0
	for _, b := range bars {
		if b.Validate() != nil {
			inconsistent++
		}
	}
	if inconsistent > 0 {
		score *= 0.5
	}

	seen := make(map[int64]bool, len(bars))
	duplicates := 0
	for _, b := range bars {
		key := b.Date.Unix()
		if seen[key] {
			duplicates++
		}
		seen[key] = true
	}
	if duplicates > 0 {
		score *= 0.7
	}

	lo, hi := bars[0].Close, bars[0].Close
	for _, b := range bars[1:] {
		if b.Close < lo {
			lo = b.Close
		}
		if b.Close > hi {
			hi = b.Close
		}
	}
	if lo > 0 && hi/lo > 100 {
		score *= 0.8
	}

	return score
}

func (v *Validator) scoreKnownPoints(symbol string, bars []types.Bar) float64 {
	refs := referencesFor(symbol)
	if len(refs) == 0 {
		return 1
	}

	byDate := make(map[int64]types.Bar, len(bars))
	for _, b := range bars {
		byDate[b.Date.Unix()] = b
	}

	checked, correct := 0, 0
	for _, ref := range refs {
		bar, ok := byDate[ref.Date.Unix()]
		if !ok {
			continue
		}
		checked++
		if withinTol(bar.Open, ref.Open, v.priceTol) &&
			withinTol(bar.Close, ref.Close, v.priceTol) &&
			withinTol(bar.Volume, ref.Volume, v.volumeTol) {
			correct++
		}
	}
	if checked == 0 {
		return 1
	}
	return float64(correct) / float64(checked)
}

// validateCalculations recomputes the trade log arithmetic and the
// realized equity path from first principles.
func (v *Validator) validateCalculations(in Input) ValidationResult {
	res := ValidationResult{TestName: "calculation_validation", Details: map[string]float64{}}

	pnlScore := v.scoreTradePnL(in)
	equityScore := v.scoreEquityCurve(in)
	aggScore := v.scoreAggregates(in.Trades, in.Metrics)

	res.Details["trade_pnl"] = pnlScore
	res.Details["equity_curve"] = equityScore
	res.Details["aggregates"] = aggScore
	res.Score = (pnlScore + equityScore + aggScore) / 3
	res.Passed = res.Score >= v.thresholds.Calculation

	if pnlScore < 1 {
		res.Recommendations = append(res.Recommendations,
			"Trade PnL values do not match recomputation; check commission and slippage handling")
	}
	if equityScore < 1 {
		res.Recommendations = append(res.Recommendations,
			"Equity curve diverges from the realized trade log; check mark-to-market accounting")
	}
	if aggScore < 1 {
		res.Recommendations = append(res.Recommendations,
			"Aggregate trade statistics disagree with the trade log")
	}
	return res
}

// scoreTradePnL recomputes each trade's net PnL from its prices and,
// when the commission rate is known, the commission charge itself: the
// engine charges the rate on both the entry and exit notional.
func (v *Validator) scoreTradePnL(in Input) float64 {
	if len(in.Trades) == 0 {
		return 1
	}
	matching := 0
	for _, t := range in.Trades {
		gross := (t.ExitPrice - t.EntryPrice) * t.Quantity
		if !withinTol(t.NetPnL, gross-t.Commission, v.pnlTol) {
			continue
		}
		if in.Commission > 0 {
			fees := in.Commission * t.Quantity * (t.EntryPrice + t.ExitPrice)
			if !withinTol(t.Commission, fees, v.pnlTol) {
				continue
			}
		}
		matching++
	}
	return float64(matching) / float64(len(in.Trades))
}

// scoreEquityCurve checks realized equity on dates with no open
// positions, where reported value must equal initial capital plus the
// net PnL of every trade closed so far. Marked-to-market dates carry
// unrealized PnL the trade log cannot see, so they are skipped.
func (v *Validator) scoreEquityCurve(in Input) float64 {
	if len(in.EquityCurve) == 0 {
		return 1
	}
	checked, matching := 0, 0
	for _, snap := range in.EquityCurve {
		if snap.OpenPositions != 0 {
			continue
		}
		realized := in.InitialCapital
		for _, t := range in.Trades {
			if !t.ExitDate.After(snap.Date) {
				realized += t.NetPnL
			}
		}
		checked++
		if withinTol(snap.TotalValue, realized, v.pnlTol) {
			matching++
		}
	}
	if checked == 0 {
		v.log.Debug("No flat snapshots to cross-check equity curve against")
		return 1
	}
	return float64(matching) / float64(checked)
}

func (v *Validator) scoreAggregates(trades []types.Trade, m backtest.PerformanceMetrics) float64 {
	winning := 0
	totalPnL := 0.0
	for _, t := range trades {
		totalPnL += t.NetPnL
		if t.NetPnL > 0 {
			winning++
		}
	}

	checks, passed := 3, 0
	if m.TotalTrades == len(trades) {
		passed++
	}
	if m.WinningTrades == winning {
		passed++
	}
	if withinTol(m.TotalPnL, totalPnL, v.pnlTol) {
		passed++
	}
	return float64(passed) / float64(checks)
}

// validateStrategy sanity-checks every trade record for structural
// consistency with a long-only strategy.
func (v *Validator) validateStrategy(trades []types.Trade) ValidationResult {
	res := ValidationResult{TestName: "strategy_validation", Details: map[string]float64{}}
	if len(trades) == 0 {
		res.Score = 1
		res.Passed = true
		res.Details["trades_checked"] = 0
		return res
	}

	n := float64(len(trades))
	entries, exits, positions, risk := 0, 0, 0, 0
	for _, t := range trades {
		if t.EntryPrice > 0 {
			entries++
		}
		if t.ExitPrice > 0 && t.ExitDate.After(t.EntryDate) {
			exits++
		}
		if t.Quantity > 0 {
			positions++
		}
		if t.ReturnPct >= -0.5 {
			risk++
		}
	}

	res.Details["entry_consistency"] = float64(entries) / n
	res.Details["exit_consistency"] = float64(exits) / n
	res.Details["position_consistency"] = float64(positions) / n
	res.Details["risk_consistency"] = float64(risk) / n
	res.Details["trades_checked"] = n
	res.Score = (res.Details["entry_consistency"] + res.Details["exit_consistency"] +
		res.Details["position_consistency"] + res.Details["risk_consistency"]) / 4
	res.Passed = res.Score >= v.thresholds.Strategy

	if risk < len(trades) {
		res.Recommendations = append(res.Recommendations,
			"Some trades lost more than 50% of cost basis; review stop loss configuration")
	}
	return res
}

// withinTol compares with relative tolerance, falling back to a small
// absolute tolerance near zero.
func withinTol(got, want, tol float64) bool {
	if math.Abs(want) < 1e-9 {
		return math.Abs(got) <= 0.01
	}
	return math.Abs(got-want)/math.Abs(want) <= tol
}
