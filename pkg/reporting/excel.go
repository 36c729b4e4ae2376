package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// ExcelReporter writes a run's full results to a multi-sheet workbook.
type ExcelReporter struct{}

func NewExcelReporter() *ExcelReporter {
	return &ExcelReporter{}
}

type excelStyles struct {
	header   int
	currency int
	percent  int
	date     int
}

// Write saves the workbook to path, creating parent directories.
func (r *ExcelReporter) Write(report *RunReport, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const (
		summarySheet    = "Summary"
		tradesSheet     = "Trades"
		equitySheet     = "Equity Curve"
		validationSheet = "Validation"
	)

	fx.SetSheetName(fx.GetSheetName(0), summarySheet)
	fx.NewSheet(tradesSheet)
	fx.NewSheet(equitySheet)
	fx.NewSheet(validationSheet)

	styles, err := r.createStyles(fx)
	if err != nil {
		return err
	}

	if err := r.writeSummarySheet(fx, summarySheet, report, styles); err != nil {
		return err
	}
	if err := r.writeTradesSheet(fx, tradesSheet, report, styles); err != nil {
		return err
	}
	if err := r.writeEquitySheet(fx, equitySheet, report, styles); err != nil {
		return err
	}
	if err := r.writeValidationSheet(fx, validationSheet, report, styles); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func (r *ExcelReporter) createStyles(fx *excelize.File) (excelStyles, error) {
	var s excelStyles
	var err error

	s.header, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF", Family: "Calibri"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return s, err
	}

	s.currency, err = fx.NewStyle(&excelize.Style{
		NumFmt:    7,
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	if err != nil {
		return s, err
	}

	s.percent, err = fx.NewStyle(&excelize.Style{
		NumFmt:    10,
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	if err != nil {
		return s, err
	}

	s.date, err = fx.NewStyle(&excelize.Style{
		NumFmt:    14,
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	return s, err
}

func (r *ExcelReporter) writeSummarySheet(fx *excelize.File, sheet string, report *RunReport, styles excelStyles) error {
	m := report.Performance

	rows := []struct {
		label string
		value interface{}
		style int
	}{
		{"Experiment ID", report.ExperimentID, 0},
		{"Strategy", report.Strategy, 0},
		{"Initial Capital", m.InitialCapital, styles.currency},
		{"Final Value", m.FinalValue, styles.currency},
		{"Total Return", m.TotalReturn, styles.percent},
		{"Annualized Return", m.AnnualizedReturn, styles.percent},
		{"Volatility", m.Volatility, styles.percent},
		{"Sharpe Ratio", m.Sharpe, 0},
		{"Sortino Ratio", m.Sortino, 0},
		{"Calmar Ratio", m.Calmar, 0},
		{"Max Drawdown", m.MaxDrawdown, styles.percent},
		{"VaR 95%", m.VaR95, styles.percent},
		{"CVaR 95%", m.CVaR95, styles.percent},
		{"Total Trades", m.TotalTrades, 0},
		{"Winning Trades", m.WinningTrades, 0},
		{"Losing Trades", m.LosingTrades, 0},
		{"Win Rate", m.WinRate, styles.percent},
		{"Profit Factor", m.ProfitFactor, 0},
		{"Total PnL", m.TotalPnL, styles.currency},
	}

	fx.SetCellValue(sheet, "A1", "Metric")
	fx.SetCellValue(sheet, "B1", "Value")
	fx.SetCellStyle(sheet, "A1", "B1", styles.header)

	for i, row := range rows {
		cellA := fmt.Sprintf("A%d", i+2)
		cellB := fmt.Sprintf("B%d", i+2)
		fx.SetCellValue(sheet, cellA, row.label)
		fx.SetCellValue(sheet, cellB, row.value)
		if row.style != 0 {
			fx.SetCellStyle(sheet, cellB, cellB, row.style)
		}
	}

	fx.SetColWidth(sheet, "A", "A", 22)
	fx.SetColWidth(sheet, "B", "B", 18)
	return nil
}

func (r *ExcelReporter) writeTradesSheet(fx *excelize.File, sheet string, report *RunReport, styles excelStyles) error {
	headers := []string{
		"Symbol", "Entry Date", "Exit Date", "Entry Price", "Exit Price",
		"Quantity", "Gross PnL", "Commission", "Net PnL", "Return %", "Exit Reason",
	}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, styles.header)
	}

	for i, t := range report.Trades {
		row := i + 2
		fx.SetCellValue(sheet, fmt.Sprintf("A%d", row), t.Symbol)
		fx.SetCellValue(sheet, fmt.Sprintf("B%d", row), t.EntryDate)
		fx.SetCellValue(sheet, fmt.Sprintf("C%d", row), t.ExitDate)
		fx.SetCellValue(sheet, fmt.Sprintf("D%d", row), t.EntryPrice)
		fx.SetCellValue(sheet, fmt.Sprintf("E%d", row), t.ExitPrice)
		fx.SetCellValue(sheet, fmt.Sprintf("F%d", row), t.Quantity)
		fx.SetCellValue(sheet, fmt.Sprintf("G%d", row), t.GrossPnL)
		fx.SetCellValue(sheet, fmt.Sprintf("H%d", row), t.Commission)
		fx.SetCellValue(sheet, fmt.Sprintf("I%d", row), t.NetPnL)
		fx.SetCellValue(sheet, fmt.Sprintf("J%d", row), t.ReturnPct)
		fx.SetCellValue(sheet, fmt.Sprintf("K%d", row), t.ExitReason)

		fx.SetCellStyle(sheet, fmt.Sprintf("B%d", row), fmt.Sprintf("C%d", row), styles.date)
		fx.SetCellStyle(sheet, fmt.Sprintf("D%d", row), fmt.Sprintf("E%d", row), styles.currency)
		fx.SetCellStyle(sheet, fmt.Sprintf("G%d", row), fmt.Sprintf("I%d", row), styles.currency)
		fx.SetCellStyle(sheet, fmt.Sprintf("J%d", row), fmt.Sprintf("J%d", row), styles.percent)
	}

	fx.SetColWidth(sheet, "A", "K", 14)
	return nil
}

func (r *ExcelReporter) writeEquitySheet(fx *excelize.File, sheet string, report *RunReport, styles excelStyles) error {
	headers := []string{"Date", "Cash", "Total Value", "Open Positions"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, styles.header)
	}

	for i, snap := range report.EquityCurve {
		row := i + 2
		fx.SetCellValue(sheet, fmt.Sprintf("A%d", row), snap.Date)
		fx.SetCellValue(sheet, fmt.Sprintf("B%d", row), snap.Cash)
		fx.SetCellValue(sheet, fmt.Sprintf("C%d", row), snap.TotalValue)
		fx.SetCellValue(sheet, fmt.Sprintf("D%d", row), snap.OpenPositions)

		fx.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), styles.date)
		fx.SetCellStyle(sheet, fmt.Sprintf("B%d", row), fmt.Sprintf("C%d", row), styles.currency)
	}

	fx.SetColWidth(sheet, "A", "D", 16)
	return nil
}

func (r *ExcelReporter) writeValidationSheet(fx *excelize.File, sheet string, report *RunReport, styles excelStyles) error {
	if report.Validation == nil {
		fx.SetCellValue(sheet, "A1", "Validation was not run")
		return nil
	}
	v := report.Validation

	fx.SetCellValue(sheet, "A1", "Check")
	fx.SetCellValue(sheet, "B1", "Score")
	fx.SetCellValue(sheet, "C1", "Passed")
	fx.SetCellStyle(sheet, "A1", "C1", styles.header)

	row := 2
	for _, res := range v.Results {
		fx.SetCellValue(sheet, fmt.Sprintf("A%d", row), res.TestName)
		fx.SetCellValue(sheet, fmt.Sprintf("B%d", row), res.Score)
		fx.SetCellValue(sheet, fmt.Sprintf("C%d", row), res.Passed)
		row++
	}

	row++
	fx.SetCellValue(sheet, fmt.Sprintf("A%d", row), "Overall Status")
	fx.SetCellValue(sheet, fmt.Sprintf("B%d", row), v.OverallStatus)
	row++
	fx.SetCellValue(sheet, fmt.Sprintf("A%d", row), "Grade")
	fx.SetCellValue(sheet, fmt.Sprintf("B%d", row), v.Grade)
	row++
	fx.SetCellValue(sheet, fmt.Sprintf("A%d", row), "Validation Score")
	fx.SetCellValue(sheet, fmt.Sprintf("B%d", row), v.AccuracyMetrics.ValidationScore)
	row++
	fx.SetCellValue(sheet, fmt.Sprintf("A%d", row), "Confidence")
	fx.SetCellValue(sheet, fmt.Sprintf("B%d", row), v.AccuracyMetrics.ConfidenceLevel)

	fx.SetColWidth(sheet, "A", "A", 24)
	fx.SetColWidth(sheet, "B", "C", 14)
	return nil
}
