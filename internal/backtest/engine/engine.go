package engine

import (
	"context"

	"github.com/rxtech-lab/argo-equity/internal/backtest/engine/engine_v1/datasource"
)

// Lifecycle callback types for backtest phases
// All callbacks with error return can abort execution if they return an error

// OnBacktestStartCallback is called when the backtest begins, before any data is loaded.
type OnBacktestStartCallback func(totalDataFiles int) error

// OnBacktestEndCallback is called when the backtest completes (always called via defer).
type OnBacktestEndCallback func(err error)

// OnRunStartCallback is called once the universe is prepared and the simulation is about to start.
// runID is a unique identifier for this run, generated before processing starts.
type OnRunStartCallback func(runID string, dataPath string, totalSymbols int, totalDays int) error

// OnRunEndCallback is called after the results of a run have been written.
type OnRunEndCallback func(runID string, resultFolderPath string)

// OnProcessDataCallback is called after each simulated trading day.
type OnProcessDataCallback func(current int, total int) error

// LifecycleCallbacks holds all lifecycle callback functions for the backtest engine.
// All fields are pointers - nil means no callback will be invoked.
type LifecycleCallbacks struct {
	OnBacktestStart *OnBacktestStartCallback
	OnBacktestEnd   *OnBacktestEndCallback
	OnRunStart      *OnRunStartCallback
	OnRunEnd        *OnRunEndCallback
	OnProcessData   *OnProcessDataCallback
}

type Engine interface {
	// Initialize the engine with the given YAML configuration.
	Initialize(config string) error
	// SetDataPath sets the market data to simulate. Accepts a single parquet or csv file
	// or a glob pattern (e.g., "data/*.parquet") whose files together form the universe.
	SetDataPath(path string) error
	// SetResultsFolder sets the output directory for saving backtest results.
	// Results are written to <folder>/<market>/<data name>[/<start>_<end>].
	SetResultsFolder(folder string) error
	// SetDataSource sets the data source the series are read from.
	SetDataSource(dataSource datasource.DataSource) error
	// AddDataSource adds an initialized data source that only narrows the universe:
	// a symbol is tradable when every data source lists it.
	AddDataSource(dataSource datasource.DataSource) error
	// Run prepares the universe, simulates it and writes the results.
	// The context can be used to cancel the backtest operation.
	// Use LifecycleCallbacks to receive notifications at different phases of the backtest.
	Run(ctx context.Context, callbacks LifecycleCallbacks) error
	// GetConfigSchema returns the schema of the engine configuration
	GetConfigSchema() (string, error)
}
