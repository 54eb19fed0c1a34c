package testhelper

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/squirrel"
	"github.com/rxtech-lab/argo-equity/internal/backtest/engine"
	v1 "github.com/rxtech-lab/argo-equity/internal/backtest/engine/engine_v1"
	"github.com/rxtech-lab/argo-equity/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-equity/internal/logger"
	"github.com/rxtech-lab/argo-equity/internal/types"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// E2ETestSuite is a base test suite for E2E tests
type E2ETestSuite struct {
	suite.Suite
	Backtest engine.Engine
	Logger   *logger.Logger
}

// SetupTest initializes the backtest engine
func (s *E2ETestSuite) SetupTest(engineConfig string) {
	s.Logger = logger.NewNopLogger()

	backtest := v1.NewBacktestEngineV1WithLogger(s.Logger)
	err := backtest.Initialize(engineConfig)
	s.Require().NoError(err)

	dataSource, err := datasource.NewDataSource(":memory:", s.Logger)
	s.Require().NoError(err)

	err = backtest.SetDataSource(dataSource)
	s.Require().NoError(err)

	s.Backtest = backtest
}

// RunBacktest runs the engine over the data matched by dataPattern and returns the results folder.
func RunBacktest(s *E2ETestSuite, dataPattern string, callbacks engine.LifecycleCallbacks) (resultPath string) {
	resultPath = filepath.Join(s.T().TempDir(), "results")

	err := s.Backtest.SetDataPath(dataPattern)
	require.NoError(s.T(), err)

	err = s.Backtest.SetResultsFolder(resultPath)
	require.NoError(s.T(), err)

	err = s.Backtest.Run(context.Background(), callbacks)
	require.NoError(s.T(), err)

	return resultPath
}

// findFile returns the first file named name below folder.
func findFile(s *E2ETestSuite, folder string, name string) string {
	var paths []string

	err := filepath.Walk(folder, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && filepath.Base(path) == name {
			paths = append(paths, path)
		}

		return nil
	})

	require.NoError(s.T(), err)
	require.NotEmpty(s.T(), paths, "no %s below %s", name, folder)

	return paths[0]
}

// ReadStats reads the stats from the results folder
func ReadStats(s *E2ETestSuite, resultPath string) types.BacktestStats {
	stats, err := types.ReadStats(findFile(s, resultPath, v1.StatsFileName))
	require.NoError(s.T(), err)

	return stats
}

// openParquet returns an in-memory DuckDB connection with a view named view over file.
func openParquet(file string, view string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB connection: %w", err)
	}

	// using raw SQL as Squirrel doesn't support CREATE VIEW
	_, err = db.Exec(fmt.Sprintf(`CREATE VIEW %s AS SELECT * FROM read_parquet('%s');`, view, file))
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create view from parquet file: %w", err)
	}

	return db, nil
}

// ReadTrades reads the trades from the results folder in ledger order
func ReadTrades(s *E2ETestSuite, resultPath string) []types.Trade {
	db, err := openParquet(findFile(s, resultPath, v1.TradesFileName), "trades_view")
	require.NoError(s.T(), err)
	defer db.Close()

	query, args, err := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select("id", "symbol", "side", "date", "price", "shares", "amount",
			"realized_pnl", "commission", "slippage", "reason").
		From("trades_view").
		ToSql()
	require.NoError(s.T(), err)

	rows, err := db.Query(query, args...)
	require.NoError(s.T(), err)
	defer rows.Close()

	trades := []types.Trade{}

	for rows.Next() {
		var trade types.Trade

		err := rows.Scan(
			&trade.ID, &trade.Symbol, &trade.Side, &trade.Date, &trade.Price, &trade.Shares, &trade.Amount,
			&trade.RealizedPnL, &trade.Commission, &trade.Slippage, &trade.Reason,
		)
		require.NoError(s.T(), err)

		trades = append(trades, trade)
	}

	require.NoError(s.T(), rows.Err())

	return trades
}

// ReadNAV reads the daily snapshots from the results folder
func ReadNAV(s *E2ETestSuite, resultPath string) []types.PortfolioSnapshot {
	db, err := openParquet(findFile(s, resultPath, v1.NAVFileName), "nav_view")
	require.NoError(s.T(), err)
	defer db.Close()

	rows, err := db.Query(`SELECT date, cash, positions_value, total_value, open_positions FROM nav_view ORDER BY date`)
	require.NoError(s.T(), err)
	defer rows.Close()

	nav := []types.PortfolioSnapshot{}

	for rows.Next() {
		var snapshot types.PortfolioSnapshot

		err := rows.Scan(&snapshot.Date, &snapshot.Cash, &snapshot.PositionsValue, &snapshot.TotalValue, &snapshot.OpenPositions)
		require.NoError(s.T(), err)

		nav = append(nav, snapshot)
	}

	require.NoError(s.T(), rows.Err())

	return nav
}

// CountLogEvents counts the decision log entries of the results folder by event
func CountLogEvents(s *E2ETestSuite, resultPath string) map[string]int {
	db, err := openParquet(findFile(s, resultPath, v1.LogsFileName), "logs_view")
	require.NoError(s.T(), err)
	defer db.Close()

	rows, err := db.Query(`SELECT event, COUNT(*) FROM logs_view GROUP BY event`)
	require.NoError(s.T(), err)
	defer rows.Close()

	counts := make(map[string]int)

	for rows.Next() {
		var (
			event string
			count int
		)

		require.NoError(s.T(), rows.Scan(&event, &count))
		counts[event] = count
	}

	require.NoError(s.T(), rows.Err())

	return counts
}
