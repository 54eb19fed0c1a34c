package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-equity/internal/logger"
	"github.com/rxtech-lab/argo-equity/internal/types"
	"github.com/rxtech-lab/argo-equity/pkg/errors"
	"go.uber.org/zap"
)

// requiredColumns must exist in every data file.
var requiredColumns = []string{"time", "symbol", "open", "high", "low", "close"}

// signalColumns are read into dedicated Bar fields when present.
var signalColumns = []string{
	"volume", "buy_signal", "sell_signal", "target_price", "sorting_metric", "rev_growth", "eps_growth", "adr",
}

var numericTypePrefixes = []string{
	"DOUBLE", "FLOAT", "REAL", "DECIMAL", "NUMERIC",
	"TINYINT", "SMALLINT", "INTEGER", "BIGINT", "HUGEINT",
	"UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT",
}

type DuckDBDataSource struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType

	// columns present in the current view, by name
	columns map[string]bool
	// indicators are the extra numeric columns, sorted
	indicators []string
}

// NewDataSource creates a new DuckDB data source backed by the database at path.
// Use ":memory:" for a throwaway database; Initialize loads the market data.
func NewDataSource(path string, logger *logger.Logger) (*DuckDBDataSource, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()

		return nil, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to connect to duckdb", err)
	}

	return &DuckDBDataSource{
		db:         db,
		logger:     logger,
		sq:         squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		columns:    nil,
		indicators: nil,
	}, nil
}

// Initialize implements DataSource.
func (d *DuckDBDataSource) Initialize(path string) error {
	d.logger.Debug("Initializing DuckDB data source", zap.String("path", path))

	_, err := d.db.Exec(`DROP VIEW IF EXISTS market_data;`)
	if err != nil {
		return fmt.Errorf("failed to drop existing view: %w", err)
	}

	reader := "read_parquet"
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		reader = "read_csv_auto"
	}

	// Using raw SQL as Squirrel doesn't support CREATE VIEW. Files of one glob may carry
	// different indicator columns, so columns are matched by name.
	query := fmt.Sprintf(`
		CREATE VIEW market_data AS
		SELECT * FROM %s('%s', union_by_name = true);
	`, reader, strings.ReplaceAll(path, "'", "''"))

	if _, err := d.db.Exec(query); err != nil {
		return errors.Wrapf(errors.ErrCodeDataNotFound, err, "failed to load market data from %s", path)
	}

	return d.describe()
}

// describe records the columns of the view and checks the required ones.
func (d *DuckDBDataSource) describe() error {
	rows, err := d.ExecuteSQL("DESCRIBE market_data")
	if err != nil {
		return err
	}

	columns := make(map[string]bool, len(rows))
	numeric := make(map[string]bool, len(rows))

	for _, row := range rows {
		name, _ := row.Values["column_name"].(string)
		columnType, _ := row.Values["column_type"].(string)

		columns[name] = true
		numeric[name] = isNumericType(columnType)
	}

	for _, required := range requiredColumns {
		if !columns[required] {
			return errors.Newf(errors.ErrCodeDataNotFound, "market data is missing required column %q", required)
		}
	}

	known := make(map[string]bool, len(requiredColumns)+len(signalColumns))
	for _, name := range append(append([]string{}, requiredColumns...), signalColumns...) {
		known[name] = true
	}

	indicators := make([]string, 0)

	for name := range columns {
		if !known[name] && numeric[name] {
			indicators = append(indicators, name)
		}
	}

	sort.Strings(indicators)

	d.columns = columns
	d.indicators = indicators

	d.logger.Debug("Market data columns",
		zap.Int("columns", len(columns)),
		zap.Strings("indicators", indicators),
	)

	return nil
}

func isNumericType(columnType string) bool {
	upper := strings.ToUpper(columnType)
	for _, prefix := range numericTypePrefixes {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}

	return false
}

// GetAllSymbols implements DataSource.
func (d *DuckDBDataSource) GetAllSymbols(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT DISTINCT CAST(symbol AS VARCHAR) FROM market_data ORDER BY 1")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to get symbols", err)
	}
	defer rows.Close()

	var symbols []string

	for rows.Next() {
		var symbol sql.NullString
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}

		if symbol.Valid {
			symbols = append(symbols, symbol.String)
		}
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbols: %w", err)
	}

	return symbols, nil
}

// column returns the select expression of an optional column, or fallback when it is absent.
func (d *DuckDBDataSource) column(name string, cast string, fallback string) string {
	if !d.columns[name] {
		return fmt.Sprintf("%s AS %s", fallback, name)
	}

	return fmt.Sprintf("CAST(%q AS %s) AS %s", name, cast, name)
}

func (d *DuckDBDataSource) selectColumns() []string {
	columns := []string{
		"CAST(time AS TIMESTAMP) AS time",
		"CAST(symbol AS VARCHAR) AS symbol",
		"CAST(open AS DOUBLE) AS open",
		"CAST(high AS DOUBLE) AS high",
		"CAST(low AS DOUBLE) AS low",
		"CAST(close AS DOUBLE) AS close",
		d.column("volume", "DOUBLE", "CAST(0 AS DOUBLE)"),
		d.column("buy_signal", "BOOLEAN", "false"),
		d.column("sell_signal", "BOOLEAN", "false"),
		d.column("target_price", "DOUBLE", "CAST(NULL AS DOUBLE)"),
		d.column("sorting_metric", "DOUBLE", "CAST(0 AS DOUBLE)"),
		d.column("rev_growth", "DOUBLE", "CAST(0 AS DOUBLE)"),
		d.column("eps_growth", "DOUBLE", "CAST(0 AS DOUBLE)"),
		d.column("adr", "DOUBLE", "CAST(NULL AS DOUBLE)"),
	}

	for _, indicator := range d.indicators {
		columns = append(columns, fmt.Sprintf("CAST(%q AS DOUBLE)", indicator))
	}

	return columns
}

// ReadSeries implements DataSource.
func (d *DuckDBDataSource) ReadSeries(ctx context.Context, symbol string, start optional.Option[time.Time], end optional.Option[time.Time]) ([]types.Bar, error) {
	if d.columns == nil {
		return nil, errors.New(errors.ErrCodeDataSourceUnavailable, "data source is not initialized")
	}

	conditions := squirrel.And{squirrel.Eq{"CAST(symbol AS VARCHAR)": symbol}}

	if start.IsSome() {
		conditions = append(conditions, squirrel.GtOrEq{"CAST(time AS TIMESTAMP)": start.Unwrap()})
	}

	if end.IsSome() {
		conditions = append(conditions, squirrel.LtOrEq{"CAST(time AS TIMESTAMP)": end.Unwrap()})
	}

	query, args, err := d.sq.
		Select(d.selectColumns()...).
		From("market_data").
		Where(conditions).
		OrderBy("1 ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrapf(errors.ErrCodeFetchTimeout, ctx.Err(), "read of %s interrupted", symbol)
		}

		return nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to read series for %s", symbol)
	}
	defer rows.Close()

	var bars []types.Bar

	for rows.Next() {
		bar, err := d.scanBar(rows)
		if err != nil {
			return nil, err
		}

		bars = append(bars, bar)
	}

	if err = rows.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrapf(errors.ErrCodeFetchTimeout, ctx.Err(), "read of %s interrupted", symbol)
		}

		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return bars, nil
}

func (d *DuckDBDataSource) scanBar(rows *sql.Rows) (types.Bar, error) {
	var (
		bar                             types.Bar
		volume, sortingMetric, rev, eps sql.NullFloat64
		targetPrice, adr                sql.NullFloat64
		buy, sell                       sql.NullBool
	)

	indicatorValues := make([]sql.NullFloat64, len(d.indicators))

	dest := []any{
		&bar.Time, &bar.Symbol, &bar.Open, &bar.High, &bar.Low, &bar.Close,
		&volume, &buy, &sell, &targetPrice, &sortingMetric, &rev, &eps, &adr,
	}
	for i := range indicatorValues {
		dest = append(dest, &indicatorValues[i])
	}

	if err := rows.Scan(dest...); err != nil {
		return types.Bar{}, fmt.Errorf("failed to scan row: %w", err)
	}

	bar.Volume = volume.Float64
	bar.Buy = buy.Valid && buy.Bool
	bar.Sell = sell.Valid && sell.Bool
	bar.SortingMetric = sortingMetric.Float64
	bar.RevGrowth = rev.Float64
	bar.EpsGrowth = eps.Float64
	bar.TargetPrice = optional.None[float64]()
	bar.ADR = optional.None[float64]()

	if targetPrice.Valid {
		bar.TargetPrice = optional.Some(targetPrice.Float64)
	}

	if adr.Valid {
		bar.ADR = optional.Some(adr.Float64)
	}

	if len(d.indicators) > 0 {
		bar.Indicators = make(map[string]float64, len(d.indicators))

		for i, name := range d.indicators {
			if indicatorValues[i].Valid {
				bar.Indicators[name] = indicatorValues[i].Float64
			}
		}
	}

	return bar, nil
}

// Indicators returns the extra numeric columns carried into Bar.Indicators.
func (d *DuckDBDataSource) Indicators() []string {
	return append([]string(nil), d.indicators...)
}

// Count implements DataSource.
func (d *DuckDBDataSource) Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error) {
	builder := d.sq.Select("COUNT(*)").From("market_data")

	if start.IsSome() {
		builder = builder.Where(squirrel.GtOrEq{"CAST(time AS TIMESTAMP)": start.Unwrap()})
	}

	if end.IsSome() {
		builder = builder.Where(squirrel.LtOrEq{"CAST(time AS TIMESTAMP)": end.Unwrap()})
	}

	var count int
	if err := builder.RunWith(d.db).QueryRow().Scan(&count); err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to count market data", err)
	}

	return count, nil
}

// ExecuteSQL implements DataSource.
func (d *DuckDBDataSource) ExecuteSQL(query string, params ...any) ([]SQLResult, error) {
	d.logger.Debug("Executing SQL query", zap.String("query", query))

	rows, err := d.db.Query(query, params...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to execute query", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	var result []SQLResult

	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))

		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col] = values[i]
		}

		result = append(result, SQLResult{Values: rowMap})
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, nil
}

// Close implements DataSource.
func (d *DuckDBDataSource) Close() error {
	if d.db != nil {
		return d.db.Close()
	}

	return nil
}
