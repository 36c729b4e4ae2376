package types

import (
	"fmt"
	"time"
)

// Bar is a single daily OHLCV record for one symbol. Prices carry
// adjusted-close semantics (splits and dividends applied). Bars are
// immutable once loaded.
type Bar struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Validate checks the OHLC invariants: high >= low and open/close within
// [low, high].
func (b Bar) Validate() error {
	if b.High < b.Low {
		return fmt.Errorf("bar %s %s: high %.4f below low %.4f", b.Symbol, b.Date.Format("2006-01-02"), b.High, b.Low)
	}
	if b.Open > b.High || b.Open < b.Low {
		return fmt.Errorf("bar %s %s: open %.4f outside [%.4f, %.4f]", b.Symbol, b.Date.Format("2006-01-02"), b.Open, b.Low, b.High)
	}
	if b.Close > b.High || b.Close < b.Low {
		return fmt.Errorf("bar %s %s: close %.4f outside [%.4f, %.4f]", b.Symbol, b.Date.Format("2006-01-02"), b.Close, b.Low, b.High)
	}
	return nil
}

// SignalDirection is the action a strategy requests for a symbol on a date.
type SignalDirection int

const (
	SignalHold SignalDirection = iota
	SignalEnterLong
	SignalExit
)

func (d SignalDirection) String() string {
	switch d {
	case SignalEnterLong:
		return "ENTER_LONG"
	case SignalExit:
		return "EXIT"
	default:
		return "HOLD"
	}
}

// Signal is a per-date, per-symbol trading signal. Strength ranks entry
// candidates when position capacity is constrained.
type Signal struct {
	Symbol    string
	Date      time.Time
	Direction SignalDirection
	Strength  float64
}

// Position is an open long position. One open position per symbol at a
// time; owned exclusively by the simulator.
type Position struct {
	Symbol     string    `json:"symbol"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	EntryDate  time.Time `json:"entry_date"`
	CostBasis  float64   `json:"cost_basis"`
}

// Trade is a completed round trip, created only when a position is closed.
// Trades are append-only and immutable after creation.
type Trade struct {
	Symbol     string    `json:"symbol"`
	EntryDate  time.Time `json:"entry_date"`
	ExitDate   time.Time `json:"exit_date"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Quantity   float64   `json:"quantity"`
	GrossPnL   float64   `json:"gross_pnl"`
	Commission float64   `json:"commission"`
	NetPnL     float64   `json:"net_pnl"`
	ReturnPct  float64   `json:"return_pct"`
	ExitReason string    `json:"exit_reason,omitempty"`
}

// HoldingDays returns the calendar days between entry and exit.
func (t Trade) HoldingDays() int {
	return int(t.ExitDate.Sub(t.EntryDate).Hours() / 24)
}

// PortfolioSnapshot captures the ledger at the end of one simulated date.
type PortfolioSnapshot struct {
	Date          time.Time `json:"date"`
	Cash          float64   `json:"cash"`
	TotalValue    float64   `json:"total_value"`
	OpenPositions int       `json:"open_positions"`
}
