package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-equity/internal/backtest/engine"
	"github.com/rxtech-lab/argo-equity/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/rxtech-lab/argo-equity/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-equity/internal/log"
	"github.com/rxtech-lab/argo-equity/internal/logger"
	"github.com/rxtech-lab/argo-equity/internal/naming"
	"github.com/rxtech-lab/argo-equity/internal/types"
	"github.com/rxtech-lab/argo-equity/internal/version"
	"github.com/rxtech-lab/argo-equity/pkg/errors"
	"go.uber.org/zap"
)

type BacktestEngineV1 struct {
	config        BacktestEngineV1Config
	dataPath      string
	dataFiles     []string
	resultsFolder string
	log           *logger.Logger
	state         *BacktestState
	decisions     *BacktestLog
	datasource    datasource.DataSource
	extraSources  []datasource.DataSource
}

// NewBacktestEngineV1 returns an engine that logs at info level.
func NewBacktestEngineV1() engine.Engine {
	return NewBacktestEngineV1WithLogger(nil)
}

// NewBacktestEngineV1WithLogger returns an engine using lg. A nil logger is replaced by
// an info level logger when the engine is initialized.
func NewBacktestEngineV1WithLogger(lg *logger.Logger) engine.Engine {
	return &BacktestEngineV1{
		config:        EmptyConfig(),
		dataPath:      "",
		dataFiles:     nil,
		resultsFolder: "",
		log:           lg,
		state:         nil,
		decisions:     nil,
		datasource:    nil,
		extraSources:  nil,
	}
}

// Initialize implements engine.Engine.
func (b *BacktestEngineV1) Initialize(config string) error {
	if b.log == nil {
		var loggerError error

		b.log, loggerError = logger.NewLogger()
		if loggerError != nil {
			return loggerError
		}
	}

	parsed, err := ParseConfig(config)
	if err != nil {
		b.log.Error("Invalid backtest configuration", zap.Error(err))

		return err
	}

	b.config = parsed

	b.log.Debug("Backtest engine initialized",
		zap.String("config", b.config.String()),
	)

	if b.state == nil {
		b.state, err = NewBacktestState(b.log)
		if err != nil {
			return errors.Wrap(errors.ErrCodeBacktestInitFailed, "failed to create backtest state", err)
		}
	}

	if err := b.state.Initialize(); err != nil {
		return errors.Wrap(errors.ErrCodeBacktestInitFailed, "failed to initialize state", err)
	}

	if b.decisions == nil {
		b.decisions, err = NewBacktestLog(b.log)
		if err != nil {
			return errors.Wrap(errors.ErrCodeBacktestInitFailed, "failed to create decision log", err)
		}
	}

	return nil
}

// SetDataPath implements engine.Engine.
func (b *BacktestEngineV1) SetDataPath(path string) error {
	// use glob to get all the files that match the path
	files, err := filepath.Glob(path)
	if err != nil {
		b.logError("Failed to set data path",
			zap.String("path", path),
			zap.Error(err),
		)

		return errors.Wrapf(errors.ErrCodeBacktestDataPathError, err, "invalid data path %s", path)
	}

	// Convert all paths to absolute paths
	absolutePaths := make([]string, len(files))

	for i, file := range files {
		absPath, err := filepath.Abs(file)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeBacktestDataPathError, err, "invalid data file %s", file)
		}

		absolutePaths[i] = absPath
	}

	b.dataPath = path
	b.dataFiles = absolutePaths

	if b.log != nil {
		b.log.Debug("Data paths set",
			zap.String("pattern", path),
			zap.Strings("files", absolutePaths),
		)
	}

	return nil
}

// SetResultsFolder implements engine.Engine.
func (b *BacktestEngineV1) SetResultsFolder(folder string) error {
	b.resultsFolder = folder

	return nil
}

// SetDataSource implements engine.Engine.
func (b *BacktestEngineV1) SetDataSource(datasource datasource.DataSource) error {
	b.datasource = datasource

	return nil
}

// AddDataSource implements engine.Engine.
func (b *BacktestEngineV1) AddDataSource(datasource datasource.DataSource) error {
	if datasource == nil {
		return errors.New(errors.ErrCodeMissingParameter, "data source is nil")
	}

	b.extraSources = append(b.extraSources, datasource)

	return nil
}

// GetConfigSchema implements engine.Engine.
func (b *BacktestEngineV1) GetConfigSchema() (string, error) {
	config := b.config

	schema, err := config.GenerateSchemaJSON()
	if err != nil {
		return "", fmt.Errorf("failed to generate schema: %w", err)
	}

	return schema, nil
}

// Run implements engine.Engine.
func (b *BacktestEngineV1) Run(ctx context.Context, callbacks engine.LifecycleCallbacks) (err error) {
	if callbacks.OnBacktestEnd != nil {
		defer func() {
			(*callbacks.OnBacktestEnd)(err)
		}()
	}

	if err := b.preRunCheck(); err != nil {
		return err
	}

	if callbacks.OnBacktestStart != nil {
		if err := (*callbacks.OnBacktestStart)(len(b.dataFiles)); err != nil {
			return errors.Wrap(errors.ErrCodeCallbackFailed, "backtest start callback failed", err)
		}
	}

	runID := uuid.New().String()

	if err := b.datasource.Initialize(b.dataPath); err != nil {
		return fmt.Errorf("failed to initialize data source: %w", err)
	}

	strategy, err := naming.ForMarket(b.config.Market)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid configuration: market", err)
	}

	sources := append([]datasource.DataSource{b.datasource}, b.extraSources...)
	loader := datasource.NewLoader(strategy, b.config.Workers, b.config.FetchTimeout, b.log, sources...)

	universe, err := loader.Load(ctx, b.config.StartTime, b.config.EndTime)
	if err != nil {
		return err
	}

	resultFolderPath := getResultFolder(b.resultsFolder, b.dataPath, b.config)

	b.log.Info("Running backtest",
		zap.String("run_id", runID),
		zap.String("data", b.dataPath),
		zap.Int("symbols", len(universe.Symbols)),
		zap.Int("days", len(universe.Calendar)),
		zap.String("result", resultFolderPath),
	)

	if callbacks.OnRunStart != nil {
		if err := (*callbacks.OnRunStart)(runID, b.dataPath, len(universe.Symbols), len(universe.Calendar)); err != nil {
			return errors.Wrap(errors.ErrCodeCallbackFailed, "run start callback failed", err)
		}
	}

	if err := b.cleanUpRun(); err != nil {
		return fmt.Errorf("failed to cleanup run: %w", err)
	}

	b.recordWarnings(universe)

	fee := commission_fee.GetCommissionFeeHandler(b.config.Broker, b.config.CommissionRate)

	simulator, err := NewPortfolioSimulator(b.config.InitialCapital, b.config.SimConfig, fee, b.log, b.decisions)
	if err != nil {
		return err
	}

	var onDay OnDayCallback
	if callbacks.OnProcessData != nil {
		onDay = OnDayCallback(*callbacks.OnProcessData)
	}

	result, err := simulator.Run(ctx, universe, onDay)
	if err != nil {
		return err
	}

	if err := b.writeResults(runID, result, universe, resultFolderPath); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	if callbacks.OnRunEnd != nil {
		(*callbacks.OnRunEnd)(runID, resultFolderPath)
	}

	return nil
}

// recordWarnings stores the universe warnings in the decision log, dated at the first trading day.
func (b *BacktestEngineV1) recordWarnings(universe types.Universe) {
	var date time.Time
	if len(universe.Calendar) > 0 {
		date = universe.Calendar[0]
	}

	for _, warning := range universe.Warnings {
		if err := b.decisions.Record(date, "", types.LogLevelWarn, log.EventSeriesDropped, warning, nil); err != nil {
			b.log.Warn("Failed to record universe warning", zap.String("warning", warning), zap.Error(err))
		}
	}
}

func (b *BacktestEngineV1) writeResults(runID string, result SimulationResult, universe types.Universe, resultFolderPath string) error {
	if b.state == nil {
		return errors.New(errors.ErrCodeBacktestStateNil, "backtest state is nil")
	}

	// a rerun replaces the previous results of the same data and period
	if err := os.RemoveAll(resultFolderPath); err != nil {
		return fmt.Errorf("failed to clear result folder: %w", err)
	}

	if err := os.MkdirAll(resultFolderPath, 0755); err != nil {
		return fmt.Errorf("failed to create result folder: %w", err)
	}

	if err := b.state.Load(result); err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}

	if err := b.state.Write(resultFolderPath); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	if err := b.decisions.Write(resultFolderPath); err != nil {
		return fmt.Errorf("failed to write decision log: %w", err)
	}

	portfolio, symbols, err := b.state.GetStats(b.config.InitialCapital, result.MarketCondition)
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	stats := types.BacktestStats{
		ID:                runID,
		Timestamp:         time.Now().UTC(),
		EngineVersion:     version.GetVersion(),
		Portfolio:         portfolio,
		Symbols:           symbols,
		Warnings:          universe.Warnings,
		TradesFilePath:    filepath.Join(resultFolderPath, TradesFileName),
		NavFilePath:       filepath.Join(resultFolderPath, NAVFileName),
		PositionsFilePath: filepath.Join(resultFolderPath, PositionsFileName),
		LogsFilePath:      filepath.Join(resultFolderPath, LogsFileName),
		DataPath:          b.dataPath,
	}

	if err := types.WriteStats(filepath.Join(resultFolderPath, StatsFileName), stats); err != nil {
		return fmt.Errorf("failed to write stats: %w", err)
	}

	b.log.Info("Backtest finished",
		zap.String("run_id", runID),
		zap.Float64("final_value", portfolio.FinalValue),
		zap.Float64("total_return", portfolio.TotalReturn),
		zap.Int("trades", portfolio.TradeResult.NumberOfTrades),
	)

	return nil
}

func (b *BacktestEngineV1) cleanUpRun() error {
	if b.state == nil {
		return errors.New(errors.ErrCodeBacktestStateNil, "backtest state is nil")
	}

	if err := b.state.Cleanup(); err != nil {
		return fmt.Errorf("failed to cleanup state: %w", err)
	}

	if err := b.decisions.Cleanup(); err != nil {
		return fmt.Errorf("failed to cleanup decision log: %w", err)
	}

	return nil
}

func (b *BacktestEngineV1) preRunCheck() error {
	if b.log == nil || b.state == nil || b.decisions == nil {
		return errors.New(errors.ErrCodeBacktestStateNil, "engine is not initialized")
	}

	if len(b.dataFiles) == 0 {
		b.log.Error("No data paths loaded")

		return errors.New(errors.ErrCodeBacktestNoDataPaths, "no data paths loaded")
	}

	if b.resultsFolder == "" {
		b.log.Error("No results folder set")

		return errors.New(errors.ErrCodeBacktestNoResultsDir, "no results folder set")
	}

	if b.datasource == nil {
		b.log.Error("No datasource set")

		return errors.New(errors.ErrCodeBacktestNoDatasource, "no datasource set")
	}

	return nil
}

func (b *BacktestEngineV1) logError(msg string, fields ...zap.Field) {
	if b.log != nil {
		b.log.Error(msg, fields...)
	}
}

// Close releases the ledger and decision log databases.
func (b *BacktestEngineV1) Close() error {
	if b.decisions != nil {
		if err := b.decisions.Close(); err != nil {
			return err
		}
	}

	if b.state == nil {
		return nil
	}

	return b.state.Close()
}
