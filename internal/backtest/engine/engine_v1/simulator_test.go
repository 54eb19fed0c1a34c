package engine

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-equity/internal/log"
	"github.com/rxtech-lab/argo-equity/internal/logger"
	"github.com/rxtech-lab/argo-equity/internal/types"
	"github.com/rxtech-lab/argo-equity/mocks"
	"github.com/rxtech-lab/argo-equity/pkg/errors"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type memoryLog struct {
	entries []log.LogEntry
}

func (m *memoryLog) Log(entry log.LogEntry) error {
	m.entries = append(m.entries, entry)

	return nil
}

func (m *memoryLog) GetLogs() ([]log.LogEntry, error) {
	return m.entries, nil
}

func (m *memoryLog) byEvent(event log.Event) []log.LogEntry {
	var out []log.LogEntry

	for _, entry := range m.entries {
		if entry.Event == event {
			out = append(out, entry)
		}
	}

	return out
}

type SimulatorTestSuite struct {
	suite.Suite
	logger    *logger.Logger
	decisions *memoryLog
}

func TestSimulatorSuite(t *testing.T) {
	suite.Run(t, new(SimulatorTestSuite))
}

func (suite *SimulatorTestSuite) SetupTest() {
	suite.logger = logger.NewNopLogger()
	suite.decisions = &memoryLog{}
}

func day(n int) time.Time {
	return time.Date(2024, 3, 3+n, 0, 0, 0, 0, time.UTC)
}

type barFixture struct {
	open, high, low, close float64
	buy, sell              bool
	target                 float64
	metric                 float64
}

func makeBar(symbol string, date time.Time, fixture barFixture) types.Bar {
	bar := types.Bar{
		Symbol:        symbol,
		Time:          date,
		Open:          fixture.open,
		High:          fixture.high,
		Low:           fixture.low,
		Close:         fixture.close,
		Volume:        1_000_000,
		Buy:           fixture.buy,
		Sell:          fixture.sell,
		TargetPrice:   optional.None[float64](),
		SortingMetric: fixture.metric,
		ADR:           optional.Some(3.0),
	}

	if fixture.target > 0 {
		bar.TargetPrice = optional.Some(fixture.target)
	}

	return bar
}

func universeOf(series map[string][]types.Bar) types.Universe {
	all := make([]types.InstrumentSeries, 0, len(series))
	for symbol, bars := range series {
		all = append(all, types.NewInstrumentSeries(symbol, bars))
	}

	return types.NewUniverse(all)
}

// entry is a breakout bar that opens a position at 100.
var entry = barFixture{open: 99, high: 101, low: 98.5, close: 100, buy: true, target: 100, metric: 50}

func (suite *SimulatorTestSuite) newSimulator(capital float64, config SimConfig) *PortfolioSimulator {
	simulator, err := NewPortfolioSimulator(capital, config, nil, suite.logger, suite.decisions)
	suite.Require().NoError(err)

	return simulator
}

func (suite *SimulatorTestSuite) run(simulator *PortfolioSimulator, universe types.Universe) SimulationResult {
	result, err := simulator.Run(context.Background(), universe, nil)
	suite.Require().NoError(err)

	return result
}

func (suite *SimulatorTestSuite) TestSizingExample() {
	config := DefaultSimConfig()
	config.InitialMarketCondition = types.MarketConditionGood

	universe := universeOf(map[string][]types.Bar{
		"AAPL": {makeBar("AAPL", day(1), barFixture{open: 149, high: 151, low: 148.5, close: 150, buy: true, target: 148, metric: 80})},
	})

	result := suite.run(suite.newSimulator(100_000_000, config), universe)

	suite.Require().Len(result.Trades, 1)
	trade := result.Trades[0]
	suite.Equal(types.PurchaseTypeBuy, trade.Side)
	suite.Equal(types.TradeReasonEntry, trade.Reason)
	suite.Equal(150.0, trade.Price)
	// floor(20,000,000 / (150 * 1.003))
	suite.Equal(int64(132934), trade.Shares)
	suite.InDelta(19_940_100, trade.Amount, 1e-6)
	suite.InDelta(39_880.2, trade.Commission, 1e-6)
	suite.InDelta(19_940.1, trade.Slippage, 1e-6)
	suite.Equal(0.0, trade.RealizedPnL)
	suite.NotEmpty(trade.ID)

	position := result.Positions["AAPL"]
	suite.Equal(int64(132934), position.Shares)
	suite.Equal(150.0, position.AvgPrice)
	suite.InDelta(145.5, position.StopPrice, 1e-9)

	suite.Require().Len(result.NAV, 1)
	snapshot := result.NAV[0]
	suite.InDelta(80_000_079.7, snapshot.Cash, 1e-6)
	suite.InDelta(19_940_100, snapshot.PositionsValue, 1e-6)
	suite.InDelta(99_940_179.7, snapshot.TotalValue, 1e-6)
	suite.Equal(1, snapshot.OpenPositions)
}

func (suite *SimulatorTestSuite) TestConfigurationFaults() {
	config := DefaultSimConfig()
	config.MaxStockList = 0

	_, err := NewPortfolioSimulator(1_000_000, config, nil, suite.logger, nil)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
	suite.Contains(err.Error(), "max_stock_list")

	_, err = NewPortfolioSimulator(0, DefaultSimConfig(), nil, suite.logger, nil)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
	suite.Contains(err.Error(), "initial_capital")
}

func (suite *SimulatorTestSuite) TestStopHitPreemptsSellSignal() {
	universe := universeOf(map[string][]types.Bar{
		"AAPL": {
			makeBar("AAPL", day(1), entry),
			makeBar("AAPL", day(2), barFixture{open: 99, high: 100, low: 96, close: 97.5, sell: true}),
		},
	})

	result := suite.run(suite.newSimulator(1_000_000, DefaultSimConfig()), universe)

	suite.Require().Len(result.Trades, 2)
	suite.Equal(int64(1994), result.Trades[0].Shares)

	exit := result.Trades[1]
	suite.Equal(types.PurchaseTypeSell, exit.Side)
	suite.Equal(types.TradeReasonStopLoss, exit.Reason)
	suite.Equal(97.0, exit.Price)
	suite.Equal(int64(1994), exit.Shares)
	suite.InDelta(1994*97*0.997-199_400, exit.RealizedPnL, 1e-6)
	suite.Empty(result.Positions)
}

func (suite *SimulatorTestSuite) TestStopGapExitsAtOpen() {
	universe := universeOf(map[string][]types.Bar{
		"AAPL": {
			makeBar("AAPL", day(1), entry),
			makeBar("AAPL", day(2), barFixture{open: 95, high: 96, low: 94, close: 95.5}),
		},
	})

	result := suite.run(suite.newSimulator(1_000_000, DefaultSimConfig()), universe)

	suite.Require().Len(result.Trades, 2)
	suite.Equal(95.0, result.Trades[1].Price)
	suite.Equal(types.TradeReasonStopLoss, result.Trades[1].Reason)
}

func (suite *SimulatorTestSuite) TestSellSignalExitsAtClose() {
	universe := universeOf(map[string][]types.Bar{
		"AAPL": {
			makeBar("AAPL", day(1), entry),
			makeBar("AAPL", day(2), barFixture{open: 101, high: 105, low: 100.5, close: 104, sell: true}),
		},
	})

	simulator := suite.newSimulator(1_000_000, DefaultSimConfig())
	result := suite.run(simulator, universe)

	suite.Require().Len(result.Trades, 2)
	exit := result.Trades[1]
	suite.Equal(types.TradeReasonSellSignal, exit.Reason)
	suite.Equal(104.0, exit.Price)
	suite.InDelta(414.752, exit.Commission, 1e-6)
	suite.InDelta(207.376, exit.Slippage, 1e-6)
	suite.InDelta(7_353.872, exit.RealizedPnL, 1e-6)

	// 1,000,000 - 199,998.2 + 206,753.872
	suite.InDelta(1_006_755.672, simulator.Cash(), 1e-6)
	suite.InDelta(1_006_755.672, result.NAV[1].TotalValue, 1e-6)
	suite.Equal(0, result.NAV[1].OpenPositions)
}

// minimumCommission has no proportional rate to report but charges at least minimum per fill.
type minimumCommission struct {
	rate    float64
	minimum float64
}

func (c minimumCommission) Rate() float64 {
	return 0
}

func (c minimumCommission) Calculate(quantity float64, price float64) float64 {
	return math.Max(c.minimum, quantity*price*c.rate)
}

func (suite *SimulatorTestSuite) TestFillsUseBrokerCommission() {
	fee := minimumCommission{rate: 0.0001, minimum: 50}

	simulator, err := NewPortfolioSimulator(1_000_000, DefaultSimConfig(), fee, suite.logger, suite.decisions)
	suite.Require().NoError(err)

	universe := universeOf(map[string][]types.Bar{
		"AAPL": {
			makeBar("AAPL", day(1), entry),
			makeBar("AAPL", day(2), barFixture{open: 101, high: 105, low: 100.5, close: 104, sell: true}),
		},
	})

	result := suite.run(simulator, universe)
	suite.Require().Len(result.Trades, 2)

	// 1998 shares would leave no room for the 50 minimum within the 200,000 target
	buy := result.Trades[0]
	suite.Equal(int64(1997), buy.Shares)
	suite.InDelta(50.0, buy.Commission, 1e-9)
	suite.InDelta(199.7, buy.Slippage, 1e-6)
	suite.InDelta(800_050.3, result.NAV[0].Cash, 1e-6)

	sell := result.Trades[1]
	suite.Equal(types.TradeReasonSellSignal, sell.Reason)
	suite.InDelta(fee.Calculate(1997, 104), sell.Commission, 1e-9)
	suite.InDelta(207_688*0.999-50-199_700, sell.RealizedPnL, 1e-6)
	suite.InDelta(1_007_480.612, simulator.Cash(), 1e-6)
}

func (suite *SimulatorTestSuite) TestMissingQuoteIsSkipped() {
	series := map[string][]types.Bar{
		"AAPL": {makeBar("AAPL", day(1), entry)},
		"MSFT": {
			makeBar("MSFT", day(1), barFixture{open: 300, high: 301, low: 299, close: 300}),
			makeBar("MSFT", day(2), barFixture{open: 300, high: 301, low: 299, close: 300}),
		},
	}

	result := suite.run(suite.newSimulator(1_000_000, DefaultSimConfig()), universeOf(series))

	suite.Require().Len(result.NAV, 2)
	suite.Equal(0.0, result.NAV[1].PositionsValue)
	suite.InDelta(result.NAV[1].Cash, result.NAV[1].TotalValue, 1e-9)
	suite.Contains(result.Positions, "AAPL")

	missing := suite.decisions.byEvent(log.EventMissingQuote)
	suite.Require().Len(missing, 1)
	suite.Equal("AAPL", missing[0].Symbol)
	suite.Equal("no quote for AAPL on 2024-03-05", missing[0].Message)
}

func (suite *SimulatorTestSuite) TestMarkStalePositions() {
	config := DefaultSimConfig()
	config.MarkStalePositions = true

	series := map[string][]types.Bar{
		"AAPL": {makeBar("AAPL", day(1), entry)},
		"MSFT": {
			makeBar("MSFT", day(1), barFixture{open: 300, high: 301, low: 299, close: 300}),
			makeBar("MSFT", day(2), barFixture{open: 300, high: 301, low: 299, close: 300}),
		},
	}

	result := suite.run(suite.newSimulator(1_000_000, config), universeOf(series))

	suite.InDelta(199_400, result.NAV[1].PositionsValue, 1e-9)
	suite.InDelta(result.NAV[0].TotalValue, result.NAV[1].TotalValue, 1e-9)
}

func (suite *SimulatorTestSuite) TestSlotCapAndRanking() {
	config := DefaultSimConfig()
	config.MaxStockList = 2

	series := map[string][]types.Bar{
		"AAA": {makeBar("AAA", day(1), barFixture{open: 49, high: 51, low: 48, close: 50, buy: true, target: 50, metric: 10})},
		"BBB": {makeBar("BBB", day(1), barFixture{open: 49, high: 51, low: 48, close: 50, buy: true, target: 50, metric: 90})},
		"CCC": {makeBar("CCC", day(1), barFixture{open: 49, high: 51, low: 48, close: 50, buy: true, target: 50, metric: 70})},
		"DDD": {makeBar("DDD", day(1), barFixture{open: 49, high: 51, low: 48, close: 50, buy: true, target: 52, metric: 99})},
	}

	result := suite.run(suite.newSimulator(10_000_000, config), universeOf(series))

	suite.Require().Len(result.Trades, 2)
	suite.Equal("BBB", result.Trades[0].Symbol)
	suite.Equal("CCC", result.Trades[1].Symbol)
	suite.Len(result.Positions, 2)
}

func (suite *SimulatorTestSuite) TestNoDuplicateHoldings() {
	universe := universeOf(map[string][]types.Bar{
		"AAPL": {
			makeBar("AAPL", day(1), entry),
			makeBar("AAPL", day(2), barFixture{open: 100, high: 102, low: 99.5, close: 101, buy: true, target: 100, metric: 50}),
		},
	})

	result := suite.run(suite.newSimulator(1_000_000, DefaultSimConfig()), universe)

	suite.Len(result.Trades, 1)
	suite.Equal(int64(1994), result.Positions["AAPL"].Shares)
}

func (suite *SimulatorTestSuite) TestLotTooSmall() {
	universe := universeOf(map[string][]types.Bar{
		"AAPL": {makeBar("AAPL", day(1), barFixture{open: 149, high: 151, low: 148.5, close: 150, buy: true, target: 148})},
	})

	result := suite.run(suite.newSimulator(10_000, DefaultSimConfig()), universe)

	suite.Empty(result.Trades)
	suite.Len(suite.decisions.byEvent(log.EventLotTooSmall), 1)
	suite.Equal(10_000.0, result.NAV[0].TotalValue)
}

func (suite *SimulatorTestSuite) TestSizingFallbackIsLogged() {
	bar := makeBar("AAPL", day(1), entry)
	bar.ADR = optional.Some(-1.0)

	universe := universeOf(map[string][]types.Bar{"AAPL": {bar}})

	result := suite.run(suite.newSimulator(1_000_000, DefaultSimConfig()), universe)

	// the fallback allocation is 10% of NAV: floor(100,000 / 100.3)
	suite.Require().Len(result.Trades, 1)
	suite.Equal(int64(997), result.Trades[0].Shares)

	fallbacks := suite.decisions.byEvent(log.EventSizingFallback)
	suite.Require().Len(fallbacks, 1)
	suite.Equal("0.1", fallbacks[0].Fields["fraction"])
}

func (suite *SimulatorTestSuite) TestPyramiding() {
	config := DefaultSimConfig()
	config.EnablePyramiding = true

	universe := universeOf(map[string][]types.Bar{
		"AAPL": {
			makeBar("AAPL", day(1), entry),
			makeBar("AAPL", day(2), barFixture{open: 106, high: 111, low: 105, close: 110, buy: true}),
		},
	})

	result := suite.run(suite.newSimulator(1_000_000, config), universe)

	suite.Require().Len(result.Trades, 2)
	add := result.Trades[1]
	suite.Equal(types.TradeReasonPyramid, add.Reason)
	suite.Equal(types.PurchaseTypeBuy, add.Side)
	suite.Equal(110.0, add.Price)
	// floor(1,019,341.8 * 0.1 / 110)
	suite.Equal(int64(926), add.Shares)

	position := result.Positions["AAPL"]
	suite.Equal(1, position.PyramidCount)
	suite.Equal(int64(2920), position.Shares)
	suite.InDelta(301_260.0/2920.0, position.AvgPrice, 1e-9)
	suite.Equal(97.0, position.StopPrice)

	suite.GreaterOrEqual(result.NAV[1].Cash, 0.0)
	suite.Empty(suite.decisions.byEvent(log.EventExposureTrimmed))
}

func (suite *SimulatorTestSuite) TestPyramidAddIsTrimmedToExposureCap() {
	config := DefaultSimConfig()
	config.EnablePyramiding = true
	config.MaxSingleStockRatio = 0.25
	config.PyramidingRatio = 0.2

	universe := universeOf(map[string][]types.Bar{
		"AAPL": {
			makeBar("AAPL", day(1), entry),
			makeBar("AAPL", day(2), barFixture{open: 106, high: 111, low: 105, close: 110, buy: true}),
		},
	})

	result := suite.run(suite.newSimulator(1_000_000, config), universe)

	suite.Require().Len(result.Trades, 2)
	suite.Len(suite.decisions.byEvent(log.EventExposureTrimmed), 1)

	position := result.Positions["AAPL"]
	snapshot := result.NAV[1]
	suite.LessOrEqual(position.MarketValue(110)/snapshot.TotalValue, 0.25)
}

func (suite *SimulatorTestSuite) TestPyramidCountIsCapped() {
	config := DefaultSimConfig()
	config.EnablePyramiding = true
	config.MaxPyramidCount = 1

	bars := []types.Bar{makeBar("AAPL", day(1), entry)}
	for i := 2; i <= 6; i++ {
		price := 100 + float64(i)*10
		bars = append(bars, makeBar("AAPL", day(i), barFixture{open: price - 2, high: price + 1, low: price - 3, close: price, buy: true}))
	}

	result := suite.run(suite.newSimulator(1_000_000, config), universeOf(map[string][]types.Bar{"AAPL": bars}))

	pyramids := 0

	for _, trade := range result.Trades {
		if trade.Reason == types.TradeReasonPyramid {
			pyramids++
		}
	}

	suite.Equal(1, pyramids)
	suite.Equal(1, result.Positions["AAPL"].PyramidCount)
}

func (suite *SimulatorTestSuite) TestHalfSell() {
	config := DefaultSimConfig()
	config.EnableHalfSell = true

	universe := universeOf(map[string][]types.Bar{
		"AAPL": {
			makeBar("AAPL", day(1), entry),
			makeBar("AAPL", day(2), barFixture{open: 120, high: 126, low: 119, close: 125}),
			makeBar("AAPL", day(3), barFixture{open: 125, high: 131, low: 124, close: 130}),
		},
	})

	result := suite.run(suite.newSimulator(1_000_000, config), universe)

	suite.Require().Len(result.Trades, 2)
	half := result.Trades[1]
	suite.Equal(types.TradeReasonHalfSell, half.Reason)
	suite.Equal(int64(997), half.Shares)
	suite.Equal(125.0, half.Price)
	suite.InDelta(997*125*0.997-99_700, half.RealizedPnL, 1e-6)
	// cash grows by the net fill, commission included
	suite.InDelta(997*125*0.997, result.NAV[1].Cash-result.NAV[0].Cash, 1e-6)

	position := result.Positions["AAPL"]
	suite.True(position.HalfSold)
	suite.Equal(int64(997), position.Shares)
	suite.Equal(100.0, position.AvgPrice)
}

func (suite *SimulatorTestSuite) TestRegimeChangesAfterClosedTrades() {
	config := DefaultSimConfig()
	config.RegimeMinTrades = 1

	universe := universeOf(map[string][]types.Bar{
		"AAPL": {
			makeBar("AAPL", day(1), entry),
			makeBar("AAPL", day(2), barFixture{open: 99.5, high: 100, low: 98, close: 99, sell: true}),
		},
	})

	result := suite.run(suite.newSimulator(1_000_000, config), universe)

	suite.Require().Len(result.Trades, 2)
	suite.Less(result.Trades[1].RealizedPnL, 0.0)
	suite.Equal(types.MarketConditionPoor, result.MarketCondition)
	suite.Len(suite.decisions.byEvent(log.EventRegimeChange), 1)
}

func (suite *SimulatorTestSuite) TestRegimeAdjustsSizing() {
	config := DefaultSimConfig()
	config.InitialMarketCondition = types.MarketConditionPoor

	universe := universeOf(map[string][]types.Bar{"AAPL": {makeBar("AAPL", day(1), entry)}})

	result := suite.run(suite.newSimulator(1_000_000, config), universe)

	// 0.20 * 0.5 of NAV: floor(100,000 / 100.3)
	suite.Require().Len(result.Trades, 1)
	suite.Equal(int64(997), result.Trades[0].Shares)
}

func (suite *SimulatorTestSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	universe := universeOf(map[string][]types.Bar{"AAPL": {makeBar("AAPL", day(1), entry)}})

	_, err := suite.newSimulator(1_000_000, DefaultSimConfig()).Run(ctx, universe, nil)
	suite.Error(err)
}

func (suite *SimulatorTestSuite) TestDayCallback() {
	universe := universeOf(map[string][]types.Bar{
		"AAPL": {makeBar("AAPL", day(1), entry), makeBar("AAPL", day(2), entry)},
	})

	var calls [][2]int

	_, err := suite.newSimulator(1_000_000, DefaultSimConfig()).Run(context.Background(), universe, func(current, total int) error {
		calls = append(calls, [2]int{current, total})

		return nil
	})
	suite.Require().NoError(err)
	suite.Equal([][2]int{{1, 2}, {2, 2}}, calls)
}

func generatedUniverse(seed int64) types.Universe {
	config := mocks.DefaultConfig()
	config.Count = 200
	config.BuyProbability = 0.3
	config.SellProbability = 0.05
	config.GapProbability = 0.05

	symbols := []string{"AAPL", "AMZN", "GOOG", "META", "MSFT", "NFLX", "NVDA", "ORCL", "TSLA", "INTC", "AMD", "CSCO"}

	return mocks.NewDataGenerator(seed).GenerateUniverse(symbols, config)
}

func propertyConfig() SimConfig {
	config := DefaultSimConfig()
	config.MaxStockList = 5
	config.MaxSingleStockRatio = 0.25
	config.EnablePyramiding = true
	config.EnableHalfSell = true
	config.RegimeMinTrades = 3

	return config
}

func (suite *SimulatorTestSuite) TestPortfolioInvariants() {
	config := propertyConfig()
	universe := generatedUniverse(42)
	simulator := suite.newSimulator(10_000_000, config)

	stops := make(map[string]float64)
	entries := make(map[string]time.Time)
	tradeCount := 0

	for _, date := range universe.Calendar {
		simulator.Step(universe, date)
		result := simulator.Result()
		snapshot := result.NAV[len(result.NAV)-1]

		// conservation and non-negativity
		suite.InDelta(snapshot.TotalValue, snapshot.Cash+snapshot.PositionsValue, 1e-6)
		suite.GreaterOrEqual(snapshot.Cash, 0.0)
		suite.GreaterOrEqual(snapshot.TotalValue, 0.0)

		// slot cap
		suite.LessOrEqual(len(result.Positions), config.MaxStockList)

		for symbol, position := range result.Positions {
			suite.Greater(position.Shares, int64(0))

			// stops never move down while the same position is held
			if entry, ok := entries[symbol]; ok && entry.Equal(position.EntryDate) {
				suite.GreaterOrEqual(position.StopPrice, stops[symbol], "stop moved down for %s on %s", symbol, date)
			}

			entries[symbol] = position.EntryDate
			stops[symbol] = position.StopPrice
		}

		// exposure cap at fill time
		for _, trade := range result.Trades[tradeCount:] {
			if trade.Side != types.PurchaseTypeBuy {
				continue
			}

			position := result.Positions[trade.Symbol]
			suite.LessOrEqual(position.MarketValue(trade.Price)/snapshot.TotalValue, config.MaxSingleStockRatio+1e-3,
				"exposure cap exceeded for %s on %s", trade.Symbol, date)
		}

		tradeCount = len(result.Trades)
	}

	result := simulator.Result()
	suite.NotEmpty(result.Trades)
	suite.Len(result.NAV, len(universe.Calendar))
}

func (suite *SimulatorTestSuite) TestDeterminism() {
	universe := generatedUniverse(7)

	first := suite.run(suite.newSimulator(10_000_000, propertyConfig()), universe)
	second := suite.run(suite.newSimulator(10_000_000, propertyConfig()), generatedUniverse(7))

	suite.NotEmpty(first.Trades)
	suite.Equal(first.Trades, second.Trades)
	suite.Equal(first.NAV, second.NAV)
	suite.Equal(first.Positions, second.Positions)
}

func (suite *SimulatorTestSuite) TestDecisionLogFailureDoesNotStopTheRun() {
	ctrl := gomock.NewController(suite.T())
	decisions := mocks.NewMockLog(ctrl)
	decisions.EXPECT().Log(gomock.Any()).Return(fmt.Errorf("disk full")).Times(1)

	simulator, err := NewPortfolioSimulator(10_000, DefaultSimConfig(), nil, suite.logger, decisions)
	suite.Require().NoError(err)

	universe := universeOf(map[string][]types.Bar{
		"AAPL": {makeBar("AAPL", day(1), barFixture{open: 149, high: 151, low: 148.5, close: 150, buy: true, target: 148})},
	})

	result, err := simulator.Run(context.Background(), universe, nil)
	suite.Require().NoError(err)
	suite.Empty(result.Trades)
	suite.Len(result.NAV, 1)
}
