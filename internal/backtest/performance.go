package backtest

import (
	"math"

	"github.com/ducminhle1904/equity-backtest/pkg/types"
)

// TradingDaysPerYear is the annualization base for every ratio.
const TradingDaysPerYear = 252

// DefaultRiskFreeRate is the annual risk-free rate used by Sharpe and
// Sortino when the caller does not override it.
const DefaultRiskFreeRate = 0.02

// PerformanceMetrics is a value object: computed once from the equity
// curve and trade log, never mutated afterwards.
type PerformanceMetrics struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Volatility       float64 `json:"volatility"`
	Sharpe           float64 `json:"sharpe_ratio"`
	Sortino          float64 `json:"sortino_ratio"`
	Calmar           float64 `json:"calmar_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	VaR95            float64 `json:"var_95"`
	CVaR95           float64 `json:"cvar_95"`
	WinRate          float64 `json:"win_rate"`
	ProfitFactor     float64 `json:"profit_factor"`
	AvgTradeDuration float64 `json:"avg_trade_duration"`
	Beta             float64 `json:"beta"`
	Alpha            float64 `json:"alpha"`

	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	TotalPnL      float64 `json:"total_pnl"`
	AvgWin        float64 `json:"avg_win"`
	AvgLoss       float64 `json:"avg_loss"`

	InitialCapital float64 `json:"initial_capital"`
	FinalValue     float64 `json:"final_portfolio_value"`
}

// PerformanceAnalyzer computes risk/return ratios from an equity curve
// and trade log. It is a pure function of its inputs.
type PerformanceAnalyzer struct {
	RiskFreeRate float64
}

// NewPerformanceAnalyzer uses the default risk-free rate.
func NewPerformanceAnalyzer() *PerformanceAnalyzer {
	return &PerformanceAnalyzer{RiskFreeRate: DefaultRiskFreeRate}
}

// Analyze computes the full metric set. benchmark is an optional series
// of per-period benchmark returns aligned with the curve's returns; when
// nil, beta is 1 and alpha 0.
func (a *PerformanceAnalyzer) Analyze(curve []types.PortfolioSnapshot, trades []types.Trade, benchmark []float64) PerformanceMetrics {
	returns := ReturnsFromCurve(curve)

	m := PerformanceMetrics{Beta: 1}
	if len(curve) > 0 {
		m.InitialCapital = curve[0].TotalValue
		m.FinalValue = curve[len(curve)-1].TotalValue
	}

	m.TotalReturn = totalReturn(returns)
	if n := len(returns); n > 0 {
		m.AnnualizedReturn = math.Pow(1+m.TotalReturn, TradingDaysPerYear/float64(n)) - 1
	}

	sd := std(returns)
	m.Volatility = sd * math.Sqrt(TradingDaysPerYear)

	rfDaily := a.RiskFreeRate / TradingDaysPerYear
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - rfDaily
	}

	if sd > 0 {
		m.Sharpe = mean(excess) / sd * math.Sqrt(TradingDaysPerYear)
	}

	if dd := downsideStd(returns); dd > 0 {
		m.Sortino = mean(excess) / dd * math.Sqrt(TradingDaysPerYear)
	}

	m.MaxDrawdown = MaxDrawdownFromReturns(returns)
	if m.MaxDrawdown != 0 {
		m.Calmar = m.AnnualizedReturn / math.Abs(m.MaxDrawdown)
	}

	if len(returns) > 0 {
		m.VaR95 = percentile(returns, 5)
		m.CVaR95 = tailMean(returns, m.VaR95)
	}

	a.tradeStats(&m, trades)

	if benchmark != nil {
		m.Beta, m.Alpha = a.capm(returns, benchmark)
	}

	return m
}

func (a *PerformanceAnalyzer) tradeStats(m *PerformanceMetrics, trades []types.Trade) {
	m.TotalTrades = len(trades)
	if len(trades) == 0 {
		return
	}

	var winSum, lossSum, durationSum float64
	for _, t := range trades {
		m.TotalPnL += t.NetPnL
		durationSum += float64(t.HoldingDays())
		if t.NetPnL > 0 {
			m.WinningTrades++
			winSum += t.NetPnL
		} else {
			m.LosingTrades++
			lossSum += t.NetPnL
		}
	}

	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	m.AvgTradeDuration = durationSum / float64(m.TotalTrades)
	if m.WinningTrades > 0 {
		m.AvgWin = winSum / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = lossSum / float64(m.LosingTrades)
	}

	if lossSum == 0 {
		if winSum > 0 {
			m.ProfitFactor = math.Inf(1)
		}
	} else {
		m.ProfitFactor = winSum / math.Abs(lossSum)
	}
}

// capm computes beta and annualized alpha against a benchmark return
// series. Length mismatches truncate to the shorter series.
func (a *PerformanceAnalyzer) capm(returns, benchmark []float64) (beta, alpha float64) {
	n := len(returns)
	if len(benchmark) < n {
		n = len(benchmark)
	}
	if n < 2 {
		return 1, 0
	}
	r := returns[:n]
	b := benchmark[:n]

	meanR := mean(r)
	meanB := mean(b)

	var cov, varB float64
	for i := 0; i < n; i++ {
		cov += (r[i] - meanR) * (b[i] - meanB)
		varB += (b[i] - meanB) * (b[i] - meanB)
	}
	if varB == 0 {
		return 1, 0
	}
	beta = cov / varB

	annR := math.Pow(1+totalReturn(r), TradingDaysPerYear/float64(n)) - 1
	annB := math.Pow(1+totalReturn(b), TradingDaysPerYear/float64(n)) - 1
	alpha = annR - (a.RiskFreeRate + beta*(annB-a.RiskFreeRate))
	return beta, alpha
}

func totalReturn(returns []float64) float64 {
	compounded := 1.0
	for _, r := range returns {
		compounded *= 1 + r
	}
	return compounded - 1
}

// downsideStd is the sample standard deviation of the negative returns
// about their own mean, zero when fewer than two exist.
func downsideStd(returns []float64) float64 {
	var negatives []float64
	for _, r := range returns {
		if r < 0 {
			negatives = append(negatives, r)
		}
	}
	if len(negatives) < 2 {
		return 0
	}

	m := mean(negatives)
	var variance float64
	for _, r := range negatives {
		variance += (r - m) * (r - m)
	}
	return math.Sqrt(variance / float64(len(negatives)-1))
}

// tailMean averages the returns at or below the VaR cut.
func tailMean(returns []float64, cut float64) float64 {
	var sum float64
	count := 0
	for _, r := range returns {
		if r <= cut {
			sum += r
			count++
		}
	}
	if count == 0 {
		return cut
	}
	return sum / float64(count)
}
