package universe

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/rxtech-lab/argo-equity/e2e/backtest/testhelper"
	"github.com/rxtech-lab/argo-equity/internal/backtest/engine"
	"github.com/rxtech-lab/argo-equity/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-equity/internal/log"
	"github.com/rxtech-lab/argo-equity/internal/types"
	"github.com/rxtech-lab/argo-equity/mocks"
	"github.com/stretchr/testify/suite"
)

// UniverseTestSuite checks how the engine narrows and names the tradable universe
type UniverseTestSuite struct {
	testhelper.E2ETestSuite
}

func TestUniverseTestSuite(t *testing.T) {
	suite.Run(t, new(UniverseTestSuite))
}

func (s *UniverseTestSuite) SetupTest() {
	s.E2ETestSuite.SetupTest(`
initial_capital: 500000000
market: KRX
workers: 2
fetch_timeout: 30s
max_stock_list: 4
`)
}

// TestKRXUniverseIsIntersected writes KRX codes in mixed formats and a listing that only
// carries two of them. Only those two may be traded, under their canonical names.
func (s *UniverseTestSuite) TestKRXUniverseIsIntersected() {
	config := mocks.DefaultConfig()
	config.Count = 120
	config.BuyProbability = 0.5
	config.InitialPrice = 50_000

	series := mocks.NewDataGenerator(11).GenerateSeries([]string{"5930", "660", "35420", "BADCODE"}, config)

	dataDir := filepath.Join(s.T().TempDir(), "kospi")
	pattern, err := testhelper.WriteSeriesParquet(dataDir, series)
	s.Require().NoError(err)

	listingPath := filepath.Join(s.T().TempDir(), "listing.parquet")
	listing := []types.Bar{
		{Symbol: "A005930", Time: config.StartTime, Open: 1, High: 1, Low: 1, Close: 1},
		{Symbol: "000660", Time: config.StartTime, Open: 1, High: 1, Low: 1, Close: 1},
	}
	s.Require().NoError(testhelper.WriteBarsParquet(listingPath, listing))

	listingSource, err := datasource.NewDataSource(":memory:", s.Logger)
	s.Require().NoError(err)
	defer listingSource.Close()

	s.Require().NoError(listingSource.Initialize(listingPath))
	s.Require().NoError(s.Backtest.AddDataSource(listingSource))

	var symbols int

	onRunStart := engine.OnRunStartCallback(func(runID string, dataPath string, totalSymbols int, totalDays int) error {
		symbols = totalSymbols

		return nil
	})

	resultPath := testhelper.RunBacktest(&s.E2ETestSuite, pattern, engine.LifecycleCallbacks{OnRunStart: &onRunStart})
	s.Equal(2, symbols)
	s.Contains(resultPath, "results")

	trades := testhelper.ReadTrades(&s.E2ETestSuite, resultPath)
	s.NotEmpty(trades)

	for _, trade := range trades {
		s.Contains([]string{"A000660", "A005930"}, trade.Symbol)
	}

	stats := testhelper.ReadStats(&s.E2ETestSuite, resultPath)
	s.Require().Len(stats.Warnings, 1)
	s.True(strings.HasPrefix(stats.Warnings[0], `skipped "BADCODE"`), stats.Warnings[0])
	s.Contains(stats.TradesFilePath, filepath.Join("KRX", "kospi"))

	events := testhelper.CountLogEvents(&s.E2ETestSuite, resultPath)
	s.Equal(1, events[string(log.EventSeriesDropped)])
}
