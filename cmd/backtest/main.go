package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/rxtech-lab/argo-equity/internal/backtest/engine"
	v1 "github.com/rxtech-lab/argo-equity/internal/backtest/engine/engine_v1"
	"github.com/rxtech-lab/argo-equity/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-equity/internal/logger"
	"github.com/rxtech-lab/argo-equity/internal/types"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
)

// backtestAction is the core logic executed by the CLI command.
// It wires the engine to the data files, runs it and prints the summary.
func backtestAction(ctx context.Context, cmd *cli.Command) error {
	lg, err := logger.NewLoggerWithLevel(cmd.String("log-level"))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer lg.Sync()

	backtest := v1.NewBacktestEngineV1WithLogger(lg)

	if cmd.Bool("schema") {
		schema, err := backtest.GetConfigSchema()
		if err != nil {
			return err
		}

		fmt.Println(schema)

		return nil
	}

	configPath := cmd.String("config")
	if configPath == "" {
		return fmt.Errorf("--config is required")
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := backtest.Initialize(string(content)); err != nil {
		return err
	}

	dataSource, err := datasource.NewDataSource(":memory:", lg)
	if err != nil {
		return err
	}
	defer dataSource.Close()

	if err := backtest.SetDataSource(dataSource); err != nil {
		return err
	}

	for _, listing := range cmd.StringSlice("listing") {
		listingSource, err := datasource.NewDataSource(":memory:", lg)
		if err != nil {
			return err
		}
		defer listingSource.Close()

		if err := listingSource.Initialize(listing); err != nil {
			return fmt.Errorf("failed to load listing %s: %w", listing, err)
		}

		if err := backtest.AddDataSource(listingSource); err != nil {
			return err
		}
	}

	if err := backtest.SetDataPath(cmd.String("data")); err != nil {
		return err
	}

	if err := backtest.SetResultsFolder(cmd.String("results")); err != nil {
		return err
	}

	var (
		bar          *progressbar.ProgressBar
		resultFolder string
	)

	onRunStart := engine.OnRunStartCallback(func(runID string, dataPath string, totalSymbols int, totalDays int) error {
		log.Printf("Run %s: %d symbols over %d trading days from %s", runID, totalSymbols, totalDays, dataPath)

		bar = progressbar.Default(int64(totalDays), "simulating")

		return nil
	})
	onProcessData := engine.OnProcessDataCallback(func(current int, total int) error {
		if bar == nil {
			return nil
		}

		return bar.Set(current)
	})
	onRunEnd := engine.OnRunEndCallback(func(runID string, resultFolderPath string) {
		resultFolder = resultFolderPath
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	err = backtest.Run(ctx, engine.LifecycleCallbacks{
		OnRunStart:    &onRunStart,
		OnProcessData: &onProcessData,
		OnRunEnd:      &onRunEnd,
	})
	if err != nil {
		return err
	}

	stats, err := types.ReadStats(filepath.Join(resultFolder, v1.StatsFileName))
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(RenderSummary(stats))

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "backtest",
		Usage: "Simulate a long-only equity portfolio over daily bars with precomputed signals",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the engine configuration `FILE` (YAML)",
			},
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "Parquet or csv file, or a glob such as data/*.parquet",
				Value:   "data/*.parquet",
			},
			&cli.StringSliceFlag{
				Name:    "listing",
				Aliases: []string{"l"},
				Usage:   "Extra data file whose symbols narrow the universe (repeatable)",
			},
			&cli.StringFlag{
				Name:    "results",
				Aliases: []string{"r"},
				Usage:   "Directory the results are written to",
				Value:   "results",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
				Value: "info",
			},
			&cli.BoolFlag{
				Name:  "schema",
				Usage: "Print the configuration JSON schema and exit",
			},
		},
		Action: backtestAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
