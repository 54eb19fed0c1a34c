package datasource

import (
	"context"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-equity/internal/types"
)

// SQLResult represents a row of data from a SQL query
type SQLResult struct {
	Values map[string]any
}

type DataSource interface {
	// Initialize points the data source at a parquet or csv file. Glob patterns load every match.
	Initialize(path string) error
	// GetAllSymbols returns the distinct raw symbols in the data, sorted.
	GetAllSymbols(ctx context.Context) ([]string, error)
	// ReadSeries returns the bars of one symbol within the optional bounds, ascending by time.
	ReadSeries(ctx context.Context, symbol string, start optional.Option[time.Time], end optional.Option[time.Time]) ([]types.Bar, error)
	// Count returns the number of rows in the data source
	Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error)
	// ExecuteSQL executes a raw SQL query and returns the results as SQLResult
	ExecuteSQL(query string, params ...any) ([]SQLResult, error)
	// Close closes the data source and releases any resources
	Close() error
}
