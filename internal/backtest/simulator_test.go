package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/equity-backtest/internal/strategy"
	"github.com/ducminhle1904/equity-backtest/pkg/types"
)

func testDate(offset int) time.Time {
	return time.Date(2023, time.March, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func flatBar(symbol string, date time.Time, close float64) types.Bar {
	return types.Bar{
		Symbol: symbol,
		Date:   date,
		Open:   close,
		High:   close,
		Low:    close,
		Close:  close,
		Volume: 1_000_000,
	}
}

func frictionlessParams() SimParams {
	p := DefaultSimParams()
	p.Commission = 0
	p.Slippage = 0
	return p
}

// TestSimulator_MomentumScenario runs the canonical 3-bar momentum
// scenario: closes [100, 110, 121], lookback 1, threshold 5%, half of
// capital per entry. The 10% move on bar 2 triggers a buy of exactly
// floor(10000*0.5/110) = 45 shares, and the forced exit on bar 3 books
// (exit-110)*45 with no frictions.
func TestSimulator_MomentumScenario(t *testing.T) {
	closes := []float64{100, 110, 121}
	bars := make([]types.Bar, len(closes))
	for i, c := range closes {
		bars[i] = flatBar("TEST", testDate(i), c)
	}

	gen := strategy.NewMomentum(map[string]float64{
		"lookback_period":    1,
		"momentum_threshold": 0.05,
	})
	signals := gen.Signals(bars, nil)
	require.Equal(t, types.SignalHold, signals[0].Direction)
	require.Equal(t, types.SignalEnterLong, signals[1].Direction)
	require.Equal(t, types.SignalEnterLong, signals[2].Direction)

	params := frictionlessParams()
	params.InitialCapital = 10000
	params.PositionSizeFraction = 0.5
	params.HoldingPeriodDays = 1
	params.StopLoss = 0
	params.TakeProfit = 0

	sim := NewPortfolioSimulator(params)
	for i, bar := range bars {
		sim.Step(bar.Date, map[string]types.Bar{"TEST": bar}, map[string]types.Signal{"TEST": signals[i]})
	}

	res := sim.Results()
	require.Len(t, res.Trades, 1)

	trade := res.Trades[0]
	assert.Equal(t, "TEST", trade.Symbol)
	assert.Equal(t, 110.0, trade.EntryPrice)
	assert.Equal(t, 45.0, trade.Quantity)
	assert.InDelta(t, (trade.ExitPrice-110)*45, trade.NetPnL, 1e-6)
	assert.InDelta(t, (121-110)*45.0, trade.NetPnL, 1e-6)
}

// TestSimulator_PortfolioValueIdentity checks that every snapshot's
// total value equals cash plus positions marked at the latest close.
func TestSimulator_PortfolioValueIdentity(t *testing.T) {
	params := DefaultSimParams()
	sim := NewPortfolioSimulator(params)

	closes := []float64{100, 103, 101, 108, 112}
	for i, c := range closes {
		bar := flatBar("AAPL", testDate(i), c)
		sig := types.Signal{Symbol: "AAPL", Date: bar.Date, Direction: types.SignalHold}
		if i == 1 {
			sig.Direction = types.SignalEnterLong
			sig.Strength = 0.03
		}
		snap, _ := sim.Step(bar.Date, map[string]types.Bar{"AAPL": bar}, map[string]types.Signal{"AAPL": sig})

		expected := snap.Cash
		for _, pos := range sim.OpenPositions() {
			expected += pos.Quantity * c
		}
		assert.InDelta(t, expected, snap.TotalValue, 1e-9, "date %d", i)
		assert.GreaterOrEqual(t, snap.Cash, 0.0)
	}
}

// TestSimulator_ExitsBeforeEntries verifies that capital freed by an
// exit on a date funds an entry on the same date.
func TestSimulator_ExitsBeforeEntries(t *testing.T) {
	params := frictionlessParams()
	params.InitialCapital = 1000
	params.PositionSizeFraction = 1.0
	params.MaxPositions = 1
	params.HoldingPeriodDays = 100
	params.StopLoss = 0
	params.TakeProfit = 0

	sim := NewPortfolioSimulator(params)

	// Day 0: enter AAA with all cash.
	barsDay0 := map[string]types.Bar{
		"AAA": flatBar("AAA", testDate(0), 10),
		"BBB": flatBar("BBB", testDate(0), 20),
	}
	sim.Step(testDate(0), barsDay0, map[string]types.Signal{
		"AAA": {Symbol: "AAA", Date: testDate(0), Direction: types.SignalEnterLong, Strength: 1},
	})
	require.Contains(t, sim.OpenPositions(), "AAA")
	require.InDelta(t, 0.0, sim.Cash(), 1e-9)

	// Day 1: exit AAA and enter BBB on the same date. The BBB entry is
	// only affordable with the AAA proceeds.
	barsDay1 := map[string]types.Bar{
		"AAA": flatBar("AAA", testDate(1), 10),
		"BBB": flatBar("BBB", testDate(1), 20),
	}
	_, closed := sim.Step(testDate(1), barsDay1, map[string]types.Signal{
		"AAA": {Symbol: "AAA", Date: testDate(1), Direction: types.SignalExit},
		"BBB": {Symbol: "BBB", Date: testDate(1), Direction: types.SignalEnterLong, Strength: 1},
	})

	require.Len(t, closed, 1)
	assert.Equal(t, "AAA", closed[0].Symbol)
	assert.Equal(t, "signal", closed[0].ExitReason)
	assert.Contains(t, sim.OpenPositions(), "BBB")
}

// TestSimulator_EntryRanking verifies strength-descending ranking with
// an alphabetical tie-break when capacity is constrained.
func TestSimulator_EntryRanking(t *testing.T) {
	params := frictionlessParams()
	params.InitialCapital = 100000
	params.PositionSizeFraction = 0.1
	params.MaxPositions = 2

	sim := NewPortfolioSimulator(params)
	bars := map[string]types.Bar{
		"AAA": flatBar("AAA", testDate(0), 50),
		"BBB": flatBar("BBB", testDate(0), 50),
		"CCC": flatBar("CCC", testDate(0), 50),
	}
	signals := map[string]types.Signal{
		"AAA": {Symbol: "AAA", Date: testDate(0), Direction: types.SignalEnterLong, Strength: 0.05},
		"BBB": {Symbol: "BBB", Date: testDate(0), Direction: types.SignalEnterLong, Strength: 0.10},
		"CCC": {Symbol: "CCC", Date: testDate(0), Direction: types.SignalEnterLong, Strength: 0.05},
	}

	sim.Step(testDate(0), bars, signals)

	open := sim.OpenPositions()
	require.Len(t, open, 2)
	assert.Contains(t, open, "BBB", "strongest signal wins a slot")
	assert.Contains(t, open, "AAA", "tie broken alphabetically over CCC")
	assert.NotContains(t, open, "CCC")
}

// TestSimulator_InsufficientCashSkips checks that an unaffordable entry
// is skipped with a diagnostic instead of going negative.
func TestSimulator_InsufficientCashSkips(t *testing.T) {
	params := frictionlessParams()
	params.InitialCapital = 100
	params.PositionSizeFraction = 0.5

	sim := NewPortfolioSimulator(params)
	bar := flatBar("EXPX", testDate(0), 500)
	sim.Step(testDate(0), map[string]types.Bar{"EXPX": bar}, map[string]types.Signal{
		"EXPX": {Symbol: "EXPX", Date: testDate(0), Direction: types.SignalEnterLong, Strength: 1},
	})

	res := sim.Results()
	assert.Empty(t, sim.OpenPositions())
	assert.GreaterOrEqual(t, sim.Cash(), 0.0)
	assert.NotEmpty(t, res.Diagnostics)
}

// TestSimulator_StopLossExit verifies a stop loss fires when the close
// drops through the configured floor.
func TestSimulator_StopLossExit(t *testing.T) {
	params := frictionlessParams()
	params.InitialCapital = 10000
	params.PositionSizeFraction = 0.5
	params.StopLoss = 0.05
	params.TakeProfit = 0
	params.HoldingPeriodDays = 100

	sim := NewPortfolioSimulator(params)
	sim.Step(testDate(0), map[string]types.Bar{"XYZ": flatBar("XYZ", testDate(0), 100)}, map[string]types.Signal{
		"XYZ": {Symbol: "XYZ", Date: testDate(0), Direction: types.SignalEnterLong, Strength: 1},
	})
	require.Contains(t, sim.OpenPositions(), "XYZ")

	_, closed := sim.Step(testDate(1), map[string]types.Bar{"XYZ": flatBar("XYZ", testDate(1), 94)}, nil)
	require.Len(t, closed, 1)
	assert.Equal(t, "stop_loss", closed[0].ExitReason)
	assert.Negative(t, closed[0].NetPnL)
}

// TestSimulator_TradePnLIdentity verifies the net PnL identity with
// commissions and slippage enabled.
func TestSimulator_TradePnLIdentity(t *testing.T) {
	params := DefaultSimParams()
	params.InitialCapital = 50000
	params.HoldingPeriodDays = 1
	params.StopLoss = 0
	params.TakeProfit = 0

	sim := NewPortfolioSimulator(params)
	sim.Step(testDate(0), map[string]types.Bar{"MSFT": flatBar("MSFT", testDate(0), 300)}, map[string]types.Signal{
		"MSFT": {Symbol: "MSFT", Date: testDate(0), Direction: types.SignalEnterLong, Strength: 1},
	})
	_, closed := sim.Step(testDate(1), map[string]types.Bar{"MSFT": flatBar("MSFT", testDate(1), 310)}, nil)

	require.Len(t, closed, 1)
	trade := closed[0]
	gross := (trade.ExitPrice - trade.EntryPrice) * trade.Quantity
	assert.InDelta(t, gross-trade.Commission, trade.NetPnL, 1e-6)
}

// TestSimulator_OutOfOrderDateIgnored ensures a stale step cannot
// rewind the ledger.
func TestSimulator_OutOfOrderDateIgnored(t *testing.T) {
	sim := NewPortfolioSimulator(DefaultSimParams())
	sim.Step(testDate(5), map[string]types.Bar{"AAPL": flatBar("AAPL", testDate(5), 100)}, nil)
	sim.Step(testDate(3), map[string]types.Bar{"AAPL": flatBar("AAPL", testDate(3), 90)}, nil)

	res := sim.Results()
	assert.Len(t, res.EquityCurve, 1)
	assert.NotEmpty(t, res.Diagnostics)
}
