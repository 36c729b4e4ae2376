// Package backtest contains the deterministic trade simulator, the
// performance analytics, and the walk-forward and Monte Carlo robustness
// testers.
package backtest

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ducminhle1904/equity-backtest/internal/monitoring"
	"github.com/ducminhle1904/equity-backtest/pkg/types"
)

// SimParams holds the trading frictions and sizing rules applied by the
// simulator.
type SimParams struct {
	InitialCapital       float64 `json:"initial_capital"`
	Commission           float64 `json:"commission"`
	Slippage             float64 `json:"slippage"`
	PositionSizeFraction float64 `json:"position_size"`
	MaxPositions         int     `json:"max_positions"`
	StopLoss             float64 `json:"stop_loss"`
	TakeProfit           float64 `json:"take_profit"`
	HoldingPeriodDays    int     `json:"holding_period"`
}

// DefaultSimParams mirrors a realistic retail setup: 0.1% commission,
// 0.05% slippage, 10% of cash per position, at most 10 concurrent
// positions, 5% stop, 15% target, 5-day holding period.
func DefaultSimParams() SimParams {
	return SimParams{
		InitialCapital:       100000,
		Commission:           0.001,
		Slippage:             0.0005,
		PositionSizeFraction: 0.1,
		MaxPositions:         10,
		StopLoss:             0.05,
		TakeProfit:           0.15,
		HoldingPeriodDays:    5,
	}
}

// Validate rejects parameter combinations the simulator cannot honor.
func (p SimParams) Validate() error {
	if p.InitialCapital <= 0 {
		return fmt.Errorf("initial capital must be positive, got %.2f", p.InitialCapital)
	}
	if p.Commission < 0 || p.Slippage < 0 {
		return fmt.Errorf("commission and slippage must be non-negative")
	}
	if p.PositionSizeFraction <= 0 || p.PositionSizeFraction > 1 {
		return fmt.Errorf("position size fraction must be in (0, 1], got %.4f", p.PositionSizeFraction)
	}
	if p.MaxPositions <= 0 {
		return fmt.Errorf("max positions must be positive, got %d", p.MaxPositions)
	}
	return nil
}

// Results accumulates everything a simulation run produces.
type Results struct {
	Trades      []types.Trade             `json:"trades"`
	EquityCurve []types.PortfolioSnapshot `json:"portfolio_value"`
	Diagnostics []string                  `json:"diagnostics,omitempty"`
	FinalCash   float64                   `json:"final_cash"`
	FinalValue  float64                   `json:"final_value"`
	OpenCount   int                       `json:"open_positions"`
}

// PortfolioSimulator applies signals to a cash/positions ledger one date
// at a time, strictly chronologically. It is single-threaded: entry
// ranking and capacity tie-breaks are order-dependent and must be
// reproducible.
type PortfolioSimulator struct {
	params SimParams

	cash        float64
	positions   map[string]*types.Position
	entryFees   map[string]float64
	lastClose   map[string]float64
	lastDate    time.Time
	trades      []types.Trade
	curve       []types.PortfolioSnapshot
	diagnostics []string
}

// NewPortfolioSimulator starts a fresh ledger at params.InitialCapital.
func NewPortfolioSimulator(params SimParams) *PortfolioSimulator {
	return &PortfolioSimulator{
		params:    params,
		cash:      params.InitialCapital,
		positions: make(map[string]*types.Position),
		entryFees: make(map[string]float64),
		lastClose: make(map[string]float64),
	}
}

// Step advances the simulation by one date. Exits run strictly before
// entries so capital freed today is never deployed at stale prices, and
// newly opened positions are never closed on their entry date. Symbols
// with no bar today are skipped without error.
func (s *PortfolioSimulator) Step(date time.Time, bars map[string]types.Bar, signals map[string]types.Signal) (types.PortfolioSnapshot, []types.Trade) {
	if !s.lastDate.IsZero() && !date.After(s.lastDate) {
		s.diagnose("out-of-order step ignored: %s", date.Format("2006-01-02"))
		return s.snapshot(date), nil
	}
	s.lastDate = date

	for symbol, bar := range bars {
		s.lastClose[symbol] = bar.Close
	}

	closed := s.processExits(date, bars, signals)
	s.processEntries(date, bars, signals)

	snap := s.snapshot(date)
	s.curve = append(s.curve, snap)
	return snap, closed
}

// processExits closes positions in deterministic symbol order.
func (s *PortfolioSimulator) processExits(date time.Time, bars map[string]types.Bar, signals map[string]types.Signal) []types.Trade {
	symbols := make([]string, 0, len(s.positions))
	for symbol := range s.positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	var closed []types.Trade
	for _, symbol := range symbols {
		bar, ok := bars[symbol]
		if !ok {
			continue // no bar today, position carries over
		}
		pos := s.positions[symbol]

		reason := s.exitReason(date, pos, bar, signals[symbol])
		if reason == "" {
			continue
		}

		trade := s.closePosition(date, pos, bar, reason)
		closed = append(closed, trade)
	}
	return closed
}

func (s *PortfolioSimulator) exitReason(date time.Time, pos *types.Position, bar types.Bar, sig types.Signal) string {
	if daysBetween(pos.EntryDate, date) >= s.params.HoldingPeriodDays {
		return "holding_period"
	}
	if sig.Direction == types.SignalExit {
		return "signal"
	}
	if s.params.StopLoss > 0 && bar.Close <= pos.EntryPrice*(1-s.params.StopLoss) {
		return "stop_loss"
	}
	if s.params.TakeProfit > 0 && bar.Close >= pos.EntryPrice*(1+s.params.TakeProfit) {
		return "take_profit"
	}
	return ""
}

func (s *PortfolioSimulator) closePosition(date time.Time, pos *types.Position, bar types.Bar, reason string) types.Trade {
	exitPrice := bar.Close * (1 - s.params.Slippage)
	exitCommission := exitPrice * pos.Quantity * s.params.Commission
	entryCommission := s.entryFees[pos.Symbol]

	proceeds := exitPrice*pos.Quantity - exitCommission
	s.cash += proceeds

	gross := (exitPrice - pos.EntryPrice) * pos.Quantity
	net := gross - entryCommission - exitCommission

	trade := types.Trade{
		Symbol:     pos.Symbol,
		EntryDate:  pos.EntryDate,
		ExitDate:   date,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		Quantity:   pos.Quantity,
		GrossPnL:   gross,
		Commission: entryCommission + exitCommission,
		NetPnL:     net,
		ReturnPct:  net / pos.CostBasis,
		ExitReason: reason,
	}

	delete(s.positions, pos.Symbol)
	delete(s.entryFees, pos.Symbol)
	s.trades = append(s.trades, trade)
	monitoring.RecordTrade(pos.Symbol)

	return trade
}

// processEntries ranks enter_long candidates by strength, breaking ties
// alphabetically, and opens the top slots that capacity and cash allow.
func (s *PortfolioSimulator) processEntries(date time.Time, bars map[string]types.Bar, signals map[string]types.Signal) {
	capacity := s.params.MaxPositions - len(s.positions)
	if capacity <= 0 {
		return
	}

	type candidate struct {
		symbol   string
		strength float64
		bar      types.Bar
	}
	var candidates []candidate
	for symbol, sig := range signals {
		if sig.Direction != types.SignalEnterLong {
			continue
		}
		if _, open := s.positions[symbol]; open {
			continue
		}
		bar, ok := bars[symbol]
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{symbol: symbol, strength: sig.Strength, bar: bar})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].strength != candidates[j].strength {
			return candidates[i].strength > candidates[j].strength
		}
		return candidates[i].symbol < candidates[j].symbol
	})

	if len(candidates) > capacity {
		candidates = candidates[:capacity]
	}

	for _, c := range candidates {
		s.openPosition(date, c.symbol, c.bar)
	}
}

func (s *PortfolioSimulator) openPosition(date time.Time, symbol string, bar types.Bar) {
	entryPrice := bar.Close * (1 + s.params.Slippage)
	if entryPrice <= 0 {
		return
	}

	quantity := math.Floor(s.cash * s.params.PositionSizeFraction / entryPrice)
	if quantity <= 0 {
		s.diagnose("%s %s: position size rounds to zero shares", symbol, date.Format("2006-01-02"))
		return
	}

	cost := entryPrice * quantity
	commission := cost * s.params.Commission
	total := cost + commission
	if total > s.cash {
		s.diagnose("%s %s: insufficient cash for entry (need %.2f, have %.2f)", symbol, date.Format("2006-01-02"), total, s.cash)
		return
	}

	s.cash -= total
	s.positions[symbol] = &types.Position{
		Symbol:     symbol,
		Quantity:   quantity,
		EntryPrice: entryPrice,
		EntryDate:  date,
		CostBasis:  total,
	}
	s.entryFees[symbol] = commission
}

// snapshot marks open positions at the latest known close.
func (s *PortfolioSimulator) snapshot(date time.Time) types.PortfolioSnapshot {
	value := s.cash
	for symbol, pos := range s.positions {
		value += pos.Quantity * s.lastClose[symbol]
	}
	return types.PortfolioSnapshot{
		Date:          date,
		Cash:          s.cash,
		TotalValue:    value,
		OpenPositions: len(s.positions),
	}
}

// Cash exposes the current cash balance.
func (s *PortfolioSimulator) Cash() float64 { return s.cash }

// OpenPositions returns a copy of the open position map.
func (s *PortfolioSimulator) OpenPositions() map[string]types.Position {
	out := make(map[string]types.Position, len(s.positions))
	for symbol, pos := range s.positions {
		out[symbol] = *pos
	}
	return out
}

// Results collects the accumulated trades, equity curve, and diagnostics.
func (s *PortfolioSimulator) Results() *Results {
	res := &Results{
		Trades:      append([]types.Trade(nil), s.trades...),
		EquityCurve: append([]types.PortfolioSnapshot(nil), s.curve...),
		Diagnostics: append([]string(nil), s.diagnostics...),
		FinalCash:   s.cash,
		OpenCount:   len(s.positions),
	}
	if len(res.EquityCurve) > 0 {
		res.FinalValue = res.EquityCurve[len(res.EquityCurve)-1].TotalValue
	} else {
		res.FinalValue = s.params.InitialCapital
	}
	return res
}

func (s *PortfolioSimulator) diagnose(format string, args ...interface{}) {
	s.diagnostics = append(s.diagnostics, fmt.Sprintf(format, args...))
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
