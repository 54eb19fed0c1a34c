package engine

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-equity/internal/logger"
	"github.com/rxtech-lab/argo-equity/internal/risk"
	"github.com/rxtech-lab/argo-equity/internal/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// insertBatchSize bounds the rows of a single multi-row INSERT.
const insertBatchSize = 500

// BacktestState holds the ledger of a finished simulation in DuckDB so it can be
// summarised with SQL and exported to parquet.
type BacktestState struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

func NewBacktestState(logger *logger.Logger) (*BacktestState, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		logger.Error("Failed to open database", zap.Error(err))

		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &BacktestState{
		logger: logger,
		db:     db,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}, nil
}

// Initialize creates the trades, nav and positions tables.
func (b *BacktestState) Initialize() error {
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			seq BIGINT,
			id TEXT,
			symbol TEXT,
			side TEXT,
			date TIMESTAMP,
			price DOUBLE,
			shares BIGINT,
			amount DOUBLE,
			realized_pnl DOUBLE,
			commission DOUBLE,
			slippage DOUBLE,
			reason TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create trades table: %w", err)
	}

	_, err = b.db.Exec(`
		CREATE TABLE IF NOT EXISTS nav (
			date TIMESTAMP PRIMARY KEY,
			cash DOUBLE,
			positions_value DOUBLE,
			total_value DOUBLE,
			open_positions INTEGER
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create nav table: %w", err)
	}

	_, err = b.db.Exec(`
		CREATE TABLE IF NOT EXISTS positions (
			symbol TEXT PRIMARY KEY,
			shares BIGINT,
			avg_price DOUBLE,
			entry_date TIMESTAMP,
			stop_price DOUBLE,
			last_price DOUBLE,
			pyramid_count INTEGER,
			half_sold BOOLEAN
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create positions table: %w", err)
	}

	return nil
}

// Load replaces the stored ledger with the result of a simulation.
func (b *BacktestState) Load(result SimulationResult) error {
	if err := b.Cleanup(); err != nil {
		return err
	}

	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := b.insertTrades(tx, result.Trades); err != nil {
		tx.Rollback()

		return err
	}

	if err := b.insertNAV(tx, result.NAV); err != nil {
		tx.Rollback()

		return err
	}

	if err := b.insertPositions(tx, result.Positions); err != nil {
		tx.Rollback()

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	b.logger.Debug("Loaded simulation result",
		zap.Int("trades", len(result.Trades)),
		zap.Int("nav", len(result.NAV)),
		zap.Int("positions", len(result.Positions)),
	)

	return nil
}

func (b *BacktestState) insertTrades(tx *sql.Tx, trades []types.Trade) error {
	for start := 0; start < len(trades); start += insertBatchSize {
		end := min(start+insertBatchSize, len(trades))

		insert := b.sq.Insert("trades").Columns(
			"seq", "id", "symbol", "side", "date", "price", "shares",
			"amount", "realized_pnl", "commission", "slippage", "reason",
		)

		for i, trade := range trades[start:end] {
			insert = insert.Values(
				start+i, trade.ID, trade.Symbol, string(trade.Side), trade.Date, trade.Price, trade.Shares,
				trade.Amount, trade.RealizedPnL, trade.Commission, trade.Slippage, string(trade.Reason),
			)
		}

		if _, err := insert.RunWith(tx).Exec(); err != nil {
			return fmt.Errorf("failed to insert trades: %w", err)
		}
	}

	return nil
}

func (b *BacktestState) insertNAV(tx *sql.Tx, nav []types.PortfolioSnapshot) error {
	for start := 0; start < len(nav); start += insertBatchSize {
		end := min(start+insertBatchSize, len(nav))

		insert := b.sq.Insert("nav").Columns("date", "cash", "positions_value", "total_value", "open_positions")

		for _, snapshot := range nav[start:end] {
			insert = insert.Values(snapshot.Date, snapshot.Cash, snapshot.PositionsValue, snapshot.TotalValue, snapshot.OpenPositions)
		}

		if _, err := insert.RunWith(tx).Exec(); err != nil {
			return fmt.Errorf("failed to insert nav: %w", err)
		}
	}

	return nil
}

func (b *BacktestState) insertPositions(tx *sql.Tx, positions map[string]types.Position) error {
	if len(positions) == 0 {
		return nil
	}

	insert := b.sq.Insert("positions").Columns(
		"symbol", "shares", "avg_price", "entry_date", "stop_price", "last_price", "pyramid_count", "half_sold",
	)

	for _, position := range positions {
		insert = insert.Values(
			position.Symbol, position.Shares, position.AvgPrice, position.EntryDate,
			position.StopPrice, position.LastPrice, position.PyramidCount, position.HalfSold,
		)
	}

	if _, err := insert.RunWith(tx).Exec(); err != nil {
		return fmt.Errorf("failed to insert positions: %w", err)
	}

	return nil
}

// GetAllTrades returns the ledger in fill order.
func (b *BacktestState) GetAllTrades() ([]types.Trade, error) {
	rows, err := b.sq.
		Select("id", "symbol", "side", "date", "price", "shares", "amount", "realized_pnl", "commission", "slippage", "reason").
		From("trades").
		OrderBy("seq ASC").
		RunWith(b.db).
		Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []types.Trade

	for rows.Next() {
		var trade types.Trade

		var side, reason string

		err := rows.Scan(
			&trade.ID,
			&trade.Symbol,
			&side,
			&trade.Date,
			&trade.Price,
			&trade.Shares,
			&trade.Amount,
			&trade.RealizedPnL,
			&trade.Commission,
			&trade.Slippage,
			&reason,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}

		trade.Side = types.PurchaseType(side)
		trade.Reason = types.TradeReason(reason)
		trades = append(trades, trade)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}

	return trades, nil
}

// GetNAV returns the end-of-day snapshots in date order.
func (b *BacktestState) GetNAV() ([]types.PortfolioSnapshot, error) {
	rows, err := b.sq.
		Select("date", "cash", "positions_value", "total_value", "open_positions").
		From("nav").
		OrderBy("date ASC").
		RunWith(b.db).
		Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query nav: %w", err)
	}
	defer rows.Close()

	var nav []types.PortfolioSnapshot

	for rows.Next() {
		var snapshot types.PortfolioSnapshot

		err := rows.Scan(&snapshot.Date, &snapshot.Cash, &snapshot.PositionsValue, &snapshot.TotalValue, &snapshot.OpenPositions)
		if err != nil {
			return nil, fmt.Errorf("failed to scan nav: %w", err)
		}

		nav = append(nav, snapshot)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nav: %w", err)
	}

	return nav, nil
}

// GetAllPositions returns the positions still open at the end of the run, by symbol.
func (b *BacktestState) GetAllPositions() ([]types.Position, error) {
	return b.queryPositions(b.sq.Select(positionColumns...).From("positions").OrderBy("symbol ASC"))
}

// GetPosition returns the open position of a symbol, if any.
func (b *BacktestState) GetPosition(symbol string) (optional.Option[types.Position], error) {
	positions, err := b.queryPositions(b.sq.Select(positionColumns...).From("positions").Where(squirrel.Eq{"symbol": symbol}))
	if err != nil {
		return optional.None[types.Position](), err
	}

	if len(positions) == 0 {
		return optional.None[types.Position](), nil
	}

	return optional.Some(positions[0]), nil
}

var positionColumns = []string{
	"symbol", "shares", "avg_price", "entry_date", "stop_price", "last_price", "pyramid_count", "half_sold",
}

func (b *BacktestState) queryPositions(builder squirrel.SelectBuilder) ([]types.Position, error) {
	rows, err := builder.RunWith(b.db).Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []types.Position

	for rows.Next() {
		var position types.Position

		err := rows.Scan(
			&position.Symbol,
			&position.Shares,
			&position.AvgPrice,
			&position.EntryDate,
			&position.StopPrice,
			&position.LastPrice,
			&position.PyramidCount,
			&position.HalfSold,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}

		positions = append(positions, position)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

// symbolTally is the SQL aggregate of one symbol's fills.
type symbolTally struct {
	symbol      string
	fills       int
	performance risk.Performance
	fees        float64
	minPnL      float64
	maxPnL      float64
}

func (b *BacktestState) tallyBySymbol() ([]symbolTally, error) {
	// Using raw SQL for the conditional aggregates
	query := `
		SELECT
			symbol,
			COUNT(*) AS fills,
			COUNT(CASE WHEN side = ? AND realized_pnl > 0 THEN 1 END) AS wins,
			COUNT(CASE WHEN side = ? AND realized_pnl <= 0 THEN 1 END) AS losses,
			COALESCE(SUM(CASE WHEN side = ? AND realized_pnl > 0 THEN realized_pnl END), 0) AS win_gain,
			COALESCE(SUM(CASE WHEN side = ? AND realized_pnl <= 0 THEN realized_pnl END), 0) AS loss_gain,
			COALESCE(SUM(commission + slippage), 0) AS fees,
			COALESCE(MIN(CASE WHEN side = ? THEN realized_pnl END), 0) AS min_pnl,
			COALESCE(MAX(CASE WHEN side = ? THEN realized_pnl END), 0) AS max_pnl
		FROM trades
		GROUP BY symbol
		ORDER BY symbol
	`

	sell := string(types.PurchaseTypeSell)

	rows, err := b.db.Query(query, sell, sell, sell, sell, sell, sell)
	if err != nil {
		return nil, fmt.Errorf("failed to tally trades: %w", err)
	}
	defer rows.Close()

	var tallies []symbolTally

	for rows.Next() {
		var t symbolTally

		err := rows.Scan(
			&t.symbol,
			&t.fills,
			&t.performance.WinCount,
			&t.performance.LossCount,
			&t.performance.TotalWinGain,
			&t.performance.TotalLossGain,
			&t.fees,
			&t.minPnL,
			&t.maxPnL,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade tally: %w", err)
		}

		tallies = append(tallies, t)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade tallies: %w", err)
	}

	return tallies, nil
}

// maxDrawdown returns the largest peak-to-trough decline of total_value as a fraction of the peak.
func (b *BacktestState) maxDrawdown() (float64, error) {
	query := `
		SELECT COALESCE(MAX(CASE WHEN peak > 0 THEN 1 - total_value / peak ELSE 0 END), 0)
		FROM (
			SELECT
				total_value,
				MAX(total_value) OVER (ORDER BY date ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW) AS peak
			FROM nav
		)
	`

	var drawdown float64
	if err := b.db.QueryRow(query).Scan(&drawdown); err != nil {
		return 0, fmt.Errorf("failed to calculate max drawdown: %w", err)
	}

	return drawdown, nil
}

func (b *BacktestState) finalValue(initialCapital float64) (float64, error) {
	var value float64

	err := b.sq.Select("total_value").
		From("nav").
		OrderBy("date DESC").
		Limit(1).
		RunWith(b.db).
		QueryRow().
		Scan(&value)
	if err == sql.ErrNoRows {
		return initialCapital, nil
	}

	if err != nil {
		return 0, fmt.Errorf("failed to get final value: %w", err)
	}

	return value, nil
}

// GetStats summarises the stored ledger per symbol and for the whole portfolio.
// Open positions are valued at their last mark for the unrealized pnl.
func (b *BacktestState) GetStats(initialCapital float64, condition types.MarketCondition) (types.PortfolioStats, []types.SymbolStats, error) {
	tallies, err := b.tallyBySymbol()
	if err != nil {
		return types.PortfolioStats{}, nil, err
	}

	positions, err := b.GetAllPositions()
	if err != nil {
		return types.PortfolioStats{}, nil, err
	}

	unrealized := make(map[string]decimal.Decimal, len(positions))

	for _, position := range positions {
		shares := decimal.NewFromInt(position.Shares)
		unrealized[position.Symbol] = shares.Mul(decimal.NewFromFloat(position.LastPrice)).
			Sub(shares.Mul(decimal.NewFromFloat(position.AvgPrice)))
	}

	var (
		portfolio  risk.Performance
		fills      int
		totalFees  = decimal.Zero
		symbolStat = make([]types.SymbolStats, 0, len(tallies))
	)

	for _, t := range tallies {
		realized := decimal.NewFromFloat(t.performance.TotalWinGain).Add(decimal.NewFromFloat(t.performance.TotalLossGain))
		open := unrealized[t.symbol]

		symbolStat = append(symbolStat, types.SymbolStats{
			Symbol: t.symbol,
			TradeResult: types.TradeResult{
				NumberOfTrades:        t.fills,
				NumberOfWinningTrades: t.performance.WinCount,
				NumberOfLosingTrades:  t.performance.LossCount,
				WinRate:               t.performance.WinRate(),
			},
			TotalFees: t.fees,
			TradePnl: types.TradePnl{
				RealizedPnL:   realized.InexactFloat64(),
				UnrealizedPnL: open.InexactFloat64(),
				TotalPnL:      realized.Add(open).InexactFloat64(),
				MaximumLoss:   t.minPnL,
				MaximumProfit: t.maxPnL,
			},
		})

		fills += t.fills
		totalFees = totalFees.Add(decimal.NewFromFloat(t.fees))
		portfolio.WinCount += t.performance.WinCount
		portfolio.LossCount += t.performance.LossCount
		portfolio.TotalWinGain += t.performance.TotalWinGain
		portfolio.TotalLossGain += t.performance.TotalLossGain
	}

	final, err := b.finalValue(initialCapital)
	if err != nil {
		return types.PortfolioStats{}, nil, err
	}

	drawdown, err := b.maxDrawdown()
	if err != nil {
		return types.PortfolioStats{}, nil, err
	}

	totalReturn := decimal.Zero
	if initialCapital > 0 {
		capital := decimal.NewFromFloat(initialCapital)
		totalReturn = decimal.NewFromFloat(final).Sub(capital).Div(capital)
	}

	stats := types.PortfolioStats{
		InitialCapital: initialCapital,
		FinalValue:     final,
		TotalReturn:    totalReturn.InexactFloat64(),
		MaxDrawdown:    drawdown,
		TradeResult: types.TradeResult{
			NumberOfTrades:        fills,
			NumberOfWinningTrades: portfolio.WinCount,
			NumberOfLosingTrades:  portfolio.LossCount,
			WinRate:               portfolio.WinRate(),
		},
		WinLossGainRatio: portfolio.WinLossGainRatio(),
		TotalFees:        totalFees.InexactFloat64(),
		OpenPositions:    len(positions),
		MarketCondition:  condition,
	}

	return stats, symbolStat, nil
}

// Cleanup drops and recreates every table.
func (b *BacktestState) Cleanup() error {
	// Use raw SQL for dropping tables - Squirrel doesn't have DROP syntax
	_, err := b.db.Exec(`
		DROP TABLE IF EXISTS trades;
		DROP TABLE IF EXISTS nav;
		DROP TABLE IF EXISTS positions;
	`)
	if err != nil {
		return fmt.Errorf("failed to cleanup tables: %w", err)
	}

	return b.Initialize()
}

// Write exports trades.parquet, nav.parquet and positions.parquet to path.
func (b *BacktestState) Write(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	exports := []struct {
		file  string
		query string
	}{
		{TradesFileName, `SELECT id, symbol, side, date, price, shares, amount, realized_pnl, commission, slippage, reason FROM trades ORDER BY seq`},
		{NAVFileName, `SELECT * FROM nav ORDER BY date`},
		{PositionsFileName, `SELECT * FROM positions ORDER BY symbol`},
	}

	for _, export := range exports {
		target := filepath.Join(path, export.file)

		// Squirrel doesn't support COPY
		_, err := b.db.Exec(fmt.Sprintf(`COPY (%s) TO '%s' (FORMAT PARQUET)`, export.query, quotePath(target)))
		if err != nil {
			return fmt.Errorf("failed to export %s: %w", export.file, err)
		}
	}

	b.logger.Info("Successfully exported backtest results to Parquet files",
		zap.String("path", path),
	)

	return nil
}

// Close closes the database connection.
func (b *BacktestState) Close() error {
	if b == nil || b.db == nil {
		return nil
	}

	return b.db.Close()
}
