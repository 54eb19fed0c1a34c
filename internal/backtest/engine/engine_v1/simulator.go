package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-equity/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/rxtech-lab/argo-equity/internal/log"
	"github.com/rxtech-lab/argo-equity/internal/logger"
	"github.com/rxtech-lab/argo-equity/internal/risk"
	"github.com/rxtech-lab/argo-equity/internal/selector"
	"github.com/rxtech-lab/argo-equity/internal/types"
	"github.com/rxtech-lab/argo-equity/internal/utils"
	"github.com/rxtech-lab/argo-equity/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// tradeNamespace seeds the name-based trade ids so identical runs produce identical ids.
var tradeNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("argo-equity/trade"))

// SimulationResult is the terminal state of a run. Open positions are not liquidated.
type SimulationResult struct {
	Trades          []types.Trade
	NAV             []types.PortfolioSnapshot
	Positions       map[string]types.Position
	MarketCondition types.MarketCondition
}

// OnDayCallback is invoked after every simulated date.
type OnDayCallback func(current int, total int) error

// PortfolioSimulator replays a universe day by day against a long-only cash portfolio.
// A simulator owns its state exclusively and must not be shared between goroutines.
type PortfolioSimulator struct {
	config         SimConfig
	initialCapital float64
	fee            commission_fee.CommissionFee
	logger         *logger.Logger
	decisions      log.Log

	regime   *risk.MarketRegimeClassifier
	sizer    *risk.PositionSizer
	stops    *risk.StopEngine
	pyramid  *risk.PyramidEngine
	selector *selector.CandidateSelector

	cash      decimal.Decimal
	positions map[string]*types.Position
	trades    []types.Trade
	nav       []types.PortfolioSnapshot
}

// NewPortfolioSimulator validates the configuration and returns a simulator ready to run.
// A nil fee model charges config.CommissionRate; decisions may be nil.
func NewPortfolioSimulator(initialCapital float64, config SimConfig, fee commission_fee.CommissionFee, lg *logger.Logger, decisions log.Log) (*PortfolioSimulator, error) {
	if math.IsNaN(initialCapital) || math.IsInf(initialCapital, 0) || initialCapital <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration,
			"invalid configuration: initial_capital must satisfy gt=0 (got %v)", initialCapital)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if fee == nil {
		fee = commission_fee.NewPercentageCommissionFee(config.CommissionRate)
	}

	if lg == nil {
		lg = logger.NewNopLogger()
	}

	if fee.Rate()+config.Slippage >= 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration,
			"invalid configuration: commission rate %v plus slippage %v must be below 1", fee.Rate(), config.Slippage)
	}

	regime := risk.NewMarketRegimeClassifier(config.InitialMarketCondition)

	return &PortfolioSimulator{
		config:         config,
		initialCapital: initialCapital,
		fee:            fee,
		logger:         lg,
		decisions:      decisions,
		regime:         regime,
		sizer:          risk.NewPositionSizer(config.MaxSingleStockRatio, regime),
		stops:          risk.NewStopEngine(config.StdRisk, config.MinLossCutPercentage),
		pyramid:        risk.NewPyramidEngine(config.EnablePyramiding, config.EnableHalfSell, config.PyramidingRatio, config.Slippage),
		selector:       selector.NewCandidateSelector(config.RankingMode, config.MaxStockList),
		cash:           decimal.NewFromFloat(initialCapital),
		positions:      make(map[string]*types.Position),
		trades:         nil,
		nav:            nil,
	}, nil
}

// Run visits every date of the universe calendar in order. The loop is sequential:
// each day's snapshot depends on the fills of the days before it.
func (s *PortfolioSimulator) Run(ctx context.Context, universe types.Universe, onDay OnDayCallback) (SimulationResult, error) {
	total := len(universe.Calendar)

	for i, date := range universe.Calendar {
		if err := ctx.Err(); err != nil {
			return SimulationResult{}, fmt.Errorf("simulation cancelled on %s: %w", date.Format(time.DateOnly), err)
		}

		s.Step(universe, date)

		if onDay != nil {
			if err := onDay(i+1, total); err != nil {
				return SimulationResult{}, errors.Wrap(errors.ErrCodeCallbackFailed, "day callback failed", err)
			}
		}
	}

	return s.Result(), nil
}

// Step simulates a single date: sell pass, buy pass, then the end-of-day snapshot.
func (s *PortfolioSimulator) Step(universe types.Universe, date time.Time) {
	s.sellPass(universe, date)
	s.buyPass(universe, date)
	s.snapshot(universe, date)
}

// Result returns a copy of the current ledger, NAV history and open positions.
func (s *PortfolioSimulator) Result() SimulationResult {
	positions := make(map[string]types.Position, len(s.positions))
	for symbol, position := range s.positions {
		positions[symbol] = *position
	}

	trades := make([]types.Trade, len(s.trades))
	copy(trades, s.trades)

	nav := make([]types.PortfolioSnapshot, len(s.nav))
	copy(nav, s.nav)

	return SimulationResult{
		Trades:          trades,
		NAV:             nav,
		Positions:       positions,
		MarketCondition: s.regime.Current(),
	}
}

// Cash returns the uninvested cash.
func (s *PortfolioSimulator) Cash() float64 {
	return s.cash.InexactFloat64()
}

func (s *PortfolioSimulator) sellPass(universe types.Universe, date time.Time) {
	for _, symbol := range s.heldSymbols() {
		position := s.positions[symbol]

		bar, ok := s.quote(universe, symbol, date)
		if !ok {
			missing := errors.NewMissingQuoteError(symbol, date)
			s.record(date, symbol, types.LogLevelDebug, log.EventMissingQuote, missing.Error(), nil)

			continue
		}

		// stop-hit pre-empts a same-day sell signal
		if position.StopPrice > 0 && bar.Low <= position.StopPrice {
			exitPrice := position.StopPrice
			if bar.Open > 0 && bar.Open < exitPrice {
				exitPrice = bar.Open
			}

			s.sell(position, date, exitPrice, position.Shares, types.TradeReasonStopLoss)

			continue
		}

		if bar.Sell {
			s.sell(position, date, bar.Close, position.Shares, types.TradeReasonSellSignal)

			continue
		}

		if s.config.EnableHalfSell && !position.HalfSold && position.Gain(bar.Close) >= 1+s.config.HalfSellGain {
			// the plan only sizes the sale, sell books the fill with the broker's costs
			plan := s.pyramid.HalfSell(position.MarketValue(bar.Close))
			shares := int64(math.Floor(float64(position.Shares) * plan.SellRatio))

			if plan.CanHalfSell && shares > 0 {
				s.sell(position, date, bar.Close, shares, types.TradeReasonHalfSell)
				position.HalfSold = true
			}
		}

		s.ratchetStop(position, bar, date)
	}
}

func (s *PortfolioSimulator) ratchetStop(position *types.Position, bar types.Bar, date time.Time) {
	decision := s.stops.Compute(position.Gain(bar.Close), position.StopPrice, position.AvgPrice, s.config.StdRisk)
	if decision.Fallback {
		s.record(date, position.Symbol, types.LogLevelWarn, log.EventStopFallback, decision.Reason, map[string]string{
			"stop_price": formatFloat(decision.Value),
		})
	}

	position.StopPrice = decision.Value
}

func (s *PortfolioSimulator) buyPass(universe types.Universe, date time.Time) {
	s.updateRegime(date)

	// positions opened today are not pyramided on the same day
	heldBefore := s.heldSymbols()

	bars := make([]types.Bar, 0, len(universe.Symbols))

	for _, symbol := range universe.Symbols {
		if bar, ok := s.quote(universe, symbol, date); ok {
			bars = append(bars, bar)
		}
	}

	held := func(symbol string) bool {
		_, ok := s.positions[symbol]

		return ok
	}

	for _, candidate := range s.selector.Select(bars, held, len(s.positions)) {
		if len(s.positions) >= s.config.MaxStockList {
			break
		}

		s.enter(universe, candidate, date)
	}

	if !s.config.EnablePyramiding {
		return
	}

	for _, symbol := range heldBefore {
		position, ok := s.positions[symbol]
		if !ok {
			continue
		}

		bar, ok := s.quote(universe, symbol, date)
		if !ok || !bar.Buy {
			continue
		}

		s.addToPosition(universe, position, bar, date)
	}
}

func (s *PortfolioSimulator) enter(universe types.Universe, candidate selector.Candidate, date time.Time) {
	symbol := candidate.Symbol
	price := candidate.Bar.Close

	if price <= 0 {
		s.record(date, symbol, types.LogLevelDebug, log.EventMissingQuote, "non-positive close "+formatFloat(price), nil)

		return
	}

	adr, ok := universe.Series[symbol].ADRAt(date, s.config.ADRWindow)
	if !ok {
		adr = math.NaN()
	}

	sizing := s.sizer.Size(adr, optional.None[types.MarketCondition]())
	if sizing.Fallback {
		s.record(date, symbol, types.LogLevelWarn, log.EventSizingFallback, sizing.Reason, map[string]string{
			"fraction": formatFloat(sizing.Value),
		})
	}

	cash := s.cash.InexactFloat64()
	portfolioValue := cash + s.positionsValue(universe, date)
	targetValue := math.Min(portfolioValue*sizing.Value, cash*s.config.MaxCashPerEntry)

	if targetValue < price*float64(s.config.MinLotShares) {
		s.record(date, symbol, types.LogLevelDebug, log.EventLotTooSmall,
			errors.Newf(errors.ErrCodeLotTooSmall, "target value %.2f is below %d shares at %.2f",
				targetValue, s.config.MinLotShares, price).Error(), nil)

		return
	}

	shares := utils.CalculateMaxShares(targetValue, price, s.fee, s.config.Slippage)
	if !s.canAfford(shares, price) {
		s.record(date, symbol, types.LogLevelDebug, log.EventInsufficientFunds,
			errors.Newf(errors.ErrCodeInsufficientFunds, "cannot fund %d shares at %.2f with cash %.2f",
				shares, price, cash).Error(), nil)

		return
	}

	position := &types.Position{
		Symbol:       symbol,
		Shares:       0,
		AvgPrice:     price,
		EntryDate:    date,
		StopPrice:    0,
		LastPrice:    price,
		PyramidCount: 0,
		HalfSold:     false,
	}

	s.buy(position, date, price, shares, types.TradeReasonEntry)
	s.positions[symbol] = position

	stop := s.stops.Compute(1, 0, price, s.config.StdRisk)
	if stop.Fallback {
		s.record(date, symbol, types.LogLevelWarn, log.EventStopFallback, stop.Reason, nil)
	}

	position.StopPrice = stop.Value

	s.logger.Debug("Opened position",
		zap.String("symbol", symbol),
		zap.Time("date", date),
		zap.Int64("shares", shares),
		zap.Float64("price", price),
		zap.Float64("stop", position.StopPrice),
	)
}

func (s *PortfolioSimulator) addToPosition(universe types.Universe, position *types.Position, bar types.Bar, date time.Time) {
	if position.PyramidCount >= s.config.MaxPyramidCount || bar.Close <= 0 {
		return
	}

	gain := position.Gain(bar.Close)
	if gain < 1+s.config.StdRisk {
		return
	}

	cash := s.cash.InexactFloat64()
	portfolioValue := cash + s.positionsValue(universe, date)

	plan := s.pyramid.AddToPosition(portfolioValue, position.AvgPrice, gain, position.MarketValue(bar.Close))
	if !plan.CanPyramid {
		return
	}

	// only the share count is taken from the plan, buy folds the actual fill into avg_price
	shares := int64(math.Floor(plan.AdditionalShares))

	maxByExposure := s.maxExposureShares(position, bar.Close, portfolioValue)
	maxByCash := utils.CalculateMaxShares(cash*s.config.MaxCashPerEntry, bar.Close, s.fee, s.config.Slippage)

	limit := min(maxByExposure, maxByCash)
	if shares > limit {
		s.record(date, position.Symbol, types.LogLevelDebug, log.EventExposureTrimmed,
			fmt.Sprintf("pyramid add trimmed from %d to %d shares", shares, max(limit, 0)), nil)

		shares = limit
	}

	if !s.canAfford(shares, bar.Close) {
		return
	}

	s.buy(position, date, bar.Close, shares, types.TradeReasonPyramid)
	position.PyramidCount++
}

// canAfford reports whether shares at price plus costs fit in cash.
func (s *PortfolioSimulator) canAfford(shares int64, price float64) bool {
	if shares <= 0 {
		return false
	}

	amount, commission, slippage := s.fillCosts(shares, price)

	return amount.Add(commission).Add(slippage).LessThanOrEqual(s.cash)
}

// fillCosts returns the notional of a fill with the broker commission and the slippage charged on it.
func (s *PortfolioSimulator) fillCosts(shares int64, price float64) (amount, commission, slippage decimal.Decimal) {
	amount = decimal.NewFromInt(shares).Mul(decimal.NewFromFloat(price))
	commission = decimal.NewFromFloat(s.fee.Calculate(float64(shares), price))
	slippage = amount.Mul(decimal.NewFromFloat(s.config.Slippage))

	return amount, commission, slippage
}

// maxExposureShares returns the largest add that keeps the position within
// max_single_stock_ratio of NAV once the fill's costs are paid.
func (s *PortfolioSimulator) maxExposureShares(position *types.Position, price float64, portfolioValue float64) int64 {
	ratio := s.config.MaxSingleStockRatio
	held := position.MarketValue(price)

	room := (ratio*portfolioValue - held) / (1 + ratio*(s.fee.Rate()+s.config.Slippage))
	if room <= 0 || price <= 0 {
		return 0
	}

	exceeds := func(shares int64) bool {
		amount, commission, slippage := s.fillCosts(shares, price)
		costs := commission.Add(slippage).InexactFloat64()

		return held+amount.InexactFloat64() > ratio*(portfolioValue-costs)
	}

	// the rate estimate misses fixed charges such as a minimum commission
	shares := int64(math.Floor(room / price))
	for shares > 0 && exceeds(shares) {
		shares--
	}

	return shares
}

// buy debits cash and folds the fill into the position's average price.
func (s *PortfolioSimulator) buy(position *types.Position, date time.Time, price float64, shares int64, reason types.TradeReason) {
	amount, commission, slippage := s.fillCosts(shares, price)

	s.cash = s.cash.Sub(amount).Sub(commission).Sub(slippage)

	totalShares := position.Shares + shares
	costBasis := decimal.NewFromInt(position.Shares).Mul(decimal.NewFromFloat(position.AvgPrice)).Add(amount)
	position.AvgPrice = costBasis.Div(decimal.NewFromInt(totalShares)).InexactFloat64()
	position.Shares = totalShares

	s.appendTrade(types.Trade{
		Symbol:      position.Symbol,
		Side:        types.PurchaseTypeBuy,
		Date:        date,
		Price:       price,
		Shares:      shares,
		Amount:      amount.InexactFloat64(),
		RealizedPnL: 0,
		Commission:  commission.InexactFloat64(),
		Slippage:    slippage.InexactFloat64(),
		Reason:      reason,
	})
}

// sell credits net proceeds and removes the position once no shares remain.
func (s *PortfolioSimulator) sell(position *types.Position, date time.Time, price float64, shares int64, reason types.TradeReason) {
	amount, commission, slippage := s.fillCosts(shares, price)
	proceeds := amount.Sub(commission).Sub(slippage)
	realized := proceeds.Sub(decimal.NewFromInt(shares).Mul(decimal.NewFromFloat(position.AvgPrice)))

	s.cash = s.cash.Add(proceeds)
	position.Shares -= shares

	s.appendTrade(types.Trade{
		Symbol:      position.Symbol,
		Side:        types.PurchaseTypeSell,
		Date:        date,
		Price:       price,
		Shares:      shares,
		Amount:      amount.InexactFloat64(),
		RealizedPnL: realized.InexactFloat64(),
		Commission:  commission.InexactFloat64(),
		Slippage:    slippage.InexactFloat64(),
		Reason:      reason,
	})

	if position.Shares <= 0 {
		delete(s.positions, position.Symbol)
	}

	s.logger.Debug("Sold position",
		zap.String("symbol", position.Symbol),
		zap.Time("date", date),
		zap.String("reason", string(reason)),
		zap.Int64("shares", shares),
		zap.Float64("price", price),
		zap.String("realized_pnl", realized.StringFixed(2)),
	)
}

func (s *PortfolioSimulator) appendTrade(trade types.Trade) {
	name := fmt.Sprintf("%d/%s/%s/%s", len(s.trades), trade.Symbol, trade.Side, trade.Date.Format(time.DateOnly))
	trade.ID = uuid.NewSHA1(tradeNamespace, []byte(name)).String()
	s.trades = append(s.trades, trade)
}

func (s *PortfolioSimulator) updateRegime(date time.Time) {
	closed := risk.NewPerformance(s.trades).ClosedTrades()
	if closed < s.config.RegimeMinTrades {
		return
	}

	recent := risk.RecentPerformance(s.trades, s.config.RegimeLookbackTrades)
	previous := s.regime.Current()

	current := s.regime.Classify(len(s.positions), recent.WinRate())
	if current != previous {
		s.record(date, "", types.LogLevelInfo, log.EventRegimeChange,
			fmt.Sprintf("market condition %s -> %s", previous, current), map[string]string{
				"win_rate":  formatFloat(recent.WinRate()),
				"positions": strconv.Itoa(len(s.positions)),
			})
	}
}

func (s *PortfolioSimulator) snapshot(universe types.Universe, date time.Time) {
	positionsValue := decimal.Zero

	for _, symbol := range s.heldSymbols() {
		position := s.positions[symbol]

		if bar, ok := s.quote(universe, symbol, date); ok {
			position.LastPrice = bar.Close
			positionsValue = positionsValue.Add(decimal.NewFromInt(position.Shares).Mul(decimal.NewFromFloat(bar.Close)))

			continue
		}

		if s.config.MarkStalePositions {
			positionsValue = positionsValue.Add(decimal.NewFromInt(position.Shares).Mul(decimal.NewFromFloat(position.LastPrice)))
		}
	}

	s.nav = append(s.nav, types.PortfolioSnapshot{
		Date:           date,
		Cash:           s.cash.InexactFloat64(),
		PositionsValue: positionsValue.InexactFloat64(),
		TotalValue:     s.cash.Add(positionsValue).InexactFloat64(),
		OpenPositions:  len(s.positions),
	})
}

// positionsValue marks open positions the same way the snapshot does.
func (s *PortfolioSimulator) positionsValue(universe types.Universe, date time.Time) float64 {
	var value float64

	for _, symbol := range s.heldSymbols() {
		position := s.positions[symbol]

		if bar, ok := s.quote(universe, position.Symbol, date); ok {
			value += position.MarketValue(bar.Close)
		} else if s.config.MarkStalePositions {
			value += position.MarketValue(position.LastPrice)
		}
	}

	return value
}

func (s *PortfolioSimulator) quote(universe types.Universe, symbol string, date time.Time) (types.Bar, bool) {
	series, ok := universe.Series[symbol]
	if !ok {
		return types.Bar{}, false
	}

	return series.BarAt(date)
}

func (s *PortfolioSimulator) heldSymbols() []string {
	symbols := make([]string, 0, len(s.positions))
	for symbol := range s.positions {
		symbols = append(symbols, symbol)
	}

	sort.Strings(symbols)

	return symbols
}

func (s *PortfolioSimulator) record(date time.Time, symbol string, level types.LogLevel, event log.Event, message string, fields map[string]string) {
	s.logger.Debug(message,
		zap.String("event", string(event)),
		zap.String("symbol", symbol),
		zap.Time("date", date),
	)

	if s.decisions == nil {
		return
	}

	err := s.decisions.Log(log.LogEntry{
		Timestamp: date,
		Symbol:    symbol,
		Level:     level,
		Event:     event,
		Message:   message,
		Fields:    fields,
	})
	if err != nil {
		s.logger.Warn("Failed to record decision", zap.String("event", string(event)), zap.Error(err))
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
