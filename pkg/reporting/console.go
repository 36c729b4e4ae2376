package reporting

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ducminhle1904/equity-backtest/internal/backtest"
	"github.com/ducminhle1904/equity-backtest/internal/validation"
	"github.com/ducminhle1904/equity-backtest/pkg/types"
)

// RunReport bundles everything one backtest run produced, for output.
type RunReport struct {
	ExperimentID string
	Strategy     string
	Symbols      []string
	Trades       []types.Trade
	EquityCurve  []types.PortfolioSnapshot
	Performance  backtest.PerformanceMetrics
	WalkForward  *backtest.WalkForwardSummary
	MonteCarlo   *backtest.MonteCarloSummary
	Validation   *validation.Report
}

// ConsoleReporter renders run results as tables. Output goes to the
// given writer so stdout can stay reserved for machine-readable JSON.
type ConsoleReporter struct {
	out io.Writer
}

func NewConsoleReporter(out io.Writer) *ConsoleReporter {
	return &ConsoleReporter{out: out}
}

// Render prints the full report: performance, robustness, validation.
func (r *ConsoleReporter) Render(report *RunReport) {
	r.renderPerformance(report)
	if report.WalkForward != nil {
		r.renderWalkForward(report.WalkForward)
	}
	if report.MonteCarlo != nil {
		r.renderMonteCarlo(report.MonteCarlo)
	}
	if report.Validation != nil {
		r.renderValidation(report.Validation)
	}
}

func (r *ConsoleReporter) renderPerformance(report *RunReport) {
	m := report.Performance

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle(fmt.Sprintf("BACKTEST RESULTS  %s", report.ExperimentID))
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"📊 Strategy", report.Strategy},
		{"📊 Symbols", strings.Join(report.Symbols, ", ")},
		{"💰 Initial Capital", fmt.Sprintf("$%.2f", m.InitialCapital)},
		{"💰 Final Value", fmt.Sprintf("$%.2f", m.FinalValue)},
		{"📈 Total Return", fmt.Sprintf("%.2f%%", m.TotalReturn*100)},
		{"📈 Annualized Return", fmt.Sprintf("%.2f%%", m.AnnualizedReturn*100)},
		{"📉 Max Drawdown", fmt.Sprintf("%.2f%%", m.MaxDrawdown*100)},
		{"📉 Volatility", fmt.Sprintf("%.2f%%", m.Volatility*100)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"📊 Sharpe Ratio", fmt.Sprintf("%.2f", m.Sharpe)},
		{"📊 Sortino Ratio", fmt.Sprintf("%.2f", m.Sortino)},
		{"📊 Calmar Ratio", fmt.Sprintf("%.2f", m.Calmar)},
		{"📊 VaR 95%", fmt.Sprintf("%.2f%%", m.VaR95*100)},
		{"📊 CVaR 95%", fmt.Sprintf("%.2f%%", m.CVaR95*100)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"🔄 Total Trades", fmt.Sprintf("%d", m.TotalTrades)},
		{"✅ Winning Trades", fmt.Sprintf("%d (%.1f%%)", m.WinningTrades, m.WinRate*100)},
		{"❌ Losing Trades", fmt.Sprintf("%d", m.LosingTrades)},
		{"💹 Profit Factor", fmt.Sprintf("%.2f", m.ProfitFactor)},
		{"💵 Total PnL", fmt.Sprintf("$%.2f", m.TotalPnL)},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 20, WidthMax: 20, Align: text.AlignLeft},
		{Number: 2, WidthMin: 25, WidthMax: 40, Align: text.AlignLeft},
	})
	t.Render()
	fmt.Fprintln(r.out)
}

func (r *ConsoleReporter) renderWalkForward(wf *backtest.WalkForwardSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("WALK-FORWARD ANALYSIS")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Window", "Test Start", "Test End", "Return", "Sharpe", "Max DD"})
	for _, w := range wf.Windows {
		t.AppendRow(table.Row{
			w.Window,
			w.TestStart.Format("2006-01-02"),
			w.TestEnd.Format("2006-01-02"),
			fmt.Sprintf("%.2f%%", w.TotalReturn*100),
			fmt.Sprintf("%.2f", w.Metrics.Sharpe),
			fmt.Sprintf("%.2f%%", w.Metrics.MaxDrawdown*100),
		})
	}
	t.AppendFooter(table.Row{
		"", "", "Mean",
		fmt.Sprintf("%.2f%% ± %.2f%%", wf.MeanTestReturn*100, wf.StdTestReturn*100),
		"", fmt.Sprintf("%d+/%d-", wf.PositiveWindows, wf.NegativeWindows),
	})
	t.Render()
	fmt.Fprintln(r.out)
}

func (r *ConsoleReporter) renderMonteCarlo(mc *backtest.MonteCarloSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle(fmt.Sprintf("MONTE CARLO  %d simulations", mc.NumSimulations))
	t.SetStyle(table.StyleRounded)
	t.AppendRows([]table.Row{
		{"💰 Mean Final Value", fmt.Sprintf("$%.2f ± $%.2f", mc.MeanFinalValue, mc.StdFinalValue)},
		{"💰 95% CI Final Value", fmt.Sprintf("$%.2f to $%.2f", mc.FinalValueCI[0], mc.FinalValueCI[1])},
		{"📈 Mean Return", fmt.Sprintf("%.2f%%", mc.MeanTotalReturn*100)},
		{"📉 Mean Max Drawdown", fmt.Sprintf("%.2f%%", mc.MeanMaxDrawdown*100)},
		{"📉 Worst Drawdown", fmt.Sprintf("%.2f%%", mc.WorstDrawdown*100)},
		{"🎯 Prob. of Profit", fmt.Sprintf("%.1f%%", mc.ProbProfit*100)},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 22, WidthMax: 22, Align: text.AlignLeft},
	})
	t.Render()
	fmt.Fprintln(r.out)
}

func (r *ConsoleReporter) renderValidation(v *validation.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("RESULT VALIDATION")
	t.SetStyle(table.StyleRounded)

	statusIcon := "✅"
	if v.OverallStatus != "PASSED" {
		statusIcon = "❌"
	}
	t.AppendRows([]table.Row{
		{statusIcon + " Status", v.OverallStatus},
		{"🎓 Grade", v.Grade},
		{"📊 Data Accuracy", fmt.Sprintf("%.3f", v.AccuracyMetrics.DataAccuracy)},
		{"📊 Calculation Accuracy", fmt.Sprintf("%.3f", v.AccuracyMetrics.CalculationAccuracy)},
		{"📊 Strategy Accuracy", fmt.Sprintf("%.3f", v.AccuracyMetrics.StrategyAccuracy)},
		{"📊 Validation Score", fmt.Sprintf("%.3f", v.AccuracyMetrics.ValidationScore)},
		{"📊 Confidence", fmt.Sprintf("%.3f", v.AccuracyMetrics.ConfidenceLevel)},
	})
	t.Render()

	for _, rec := range v.Recommendations {
		fmt.Fprintf(r.out, "  💡 %s\n", rec)
	}
	fmt.Fprintln(r.out)
}
