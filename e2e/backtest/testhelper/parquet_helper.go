package testhelper

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-equity/internal/types"
)

const insertBatchSize = 250

// WriteBarsParquet writes bars to a Parquet file with the column layout the
// DuckDB data source reads.
//
// Parameters:
//   - outputPath: Path of the Parquet file to create
//   - bars: The bars to write, in any order
//
// Returns:
//   - error: Any error encountered during the process
func WriteBarsParquet(outputPath string, bars []types.Bar) error {
	// Create directory for output file if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return fmt.Errorf("failed to open DuckDB connection: %w", err)
	}
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE market_data (
			time TIMESTAMP,
			symbol VARCHAR,
			open DOUBLE,
			high DOUBLE,
			low DOUBLE,
			close DOUBLE,
			volume DOUBLE,
			buy_signal BOOLEAN,
			sell_signal BOOLEAN,
			target_price DOUBLE,
			sorting_metric DOUBLE,
			rev_growth DOUBLE,
			eps_growth DOUBLE,
			adr DOUBLE
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create market data table: %w", err)
	}

	sq := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	for start := 0; start < len(bars); start += insertBatchSize {
		end := min(start+insertBatchSize, len(bars))

		insert := sq.Insert("market_data").Columns(
			"time", "symbol", "open", "high", "low", "close", "volume",
			"buy_signal", "sell_signal", "target_price", "sorting_metric", "rev_growth", "eps_growth", "adr",
		)

		for _, bar := range bars[start:end] {
			var target, adr sql.NullFloat64

			if bar.TargetPrice.IsSome() {
				target = sql.NullFloat64{Float64: bar.TargetPrice.Unwrap(), Valid: true}
			}

			if bar.ADR.IsSome() {
				adr = sql.NullFloat64{Float64: bar.ADR.Unwrap(), Valid: true}
			}

			insert = insert.Values(
				bar.Time, bar.Symbol, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume,
				bar.Buy, bar.Sell, target, bar.SortingMetric, bar.RevGrowth, bar.EpsGrowth, adr,
			)
		}

		query, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("failed to build insert: %w", err)
		}

		if _, err := db.Exec(query, args...); err != nil {
			return fmt.Errorf("failed to insert bars: %w", err)
		}
	}

	_, err = db.Exec(fmt.Sprintf(`COPY (SELECT * FROM market_data ORDER BY symbol, time) TO '%s' (FORMAT PARQUET);`, outputPath))
	if err != nil {
		return fmt.Errorf("failed to export to Parquet: %w", err)
	}

	return nil
}

// WriteSeriesParquet writes one Parquet file per series into outputDir, named after
// the symbol, and returns the glob matching all of them.
func WriteSeriesParquet(outputDir string, series []types.InstrumentSeries) (string, error) {
	for _, s := range series {
		outputFile := filepath.Join(outputDir, s.Symbol+".parquet")

		if err := WriteBarsParquet(outputFile, s.Bars); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", s.Symbol, err)
		}
	}

	return filepath.Join(outputDir, "*.parquet"), nil
}
