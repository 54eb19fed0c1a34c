package engine

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Files written to every result folder.
const (
	TradesFileName    = "trades.parquet"
	NAVFileName       = "nav.parquet"
	PositionsFileName = "positions.parquet"
	LogsFileName      = "logs.parquet"
	StatsFileName     = "stats.yaml"
)

func getResultFolder(resultsFolder string, dataPath string, config BacktestEngineV1Config) string {
	marketFolder := filepath.Join(resultsFolder, string(config.Market))

	// a glob names its directory, a single file names itself
	dataName := strings.TrimSuffix(filepath.Base(dataPath), filepath.Ext(dataPath))
	if strings.ContainsAny(dataName, "*?[") {
		dataName = filepath.Base(filepath.Dir(dataPath))
	}

	dataFolder := filepath.Join(marketFolder, dataName)

	if config.StartTime.IsNone() && config.EndTime.IsNone() {
		return dataFolder
	}

	startTimeStr := "all"
	endTimeStr := "all"

	if config.StartTime.IsSome() {
		startTimeStr = config.StartTime.Unwrap().Format("20060102")
	}

	if config.EndTime.IsSome() {
		endTimeStr = config.EndTime.Unwrap().Format("20060102")
	}

	return filepath.Join(dataFolder, fmt.Sprintf("%s_%s", startTimeStr, endTimeStr))
}

// quotePath escapes path for use inside a single-quoted DuckDB string literal.
func quotePath(path string) string {
	return strings.ReplaceAll(path, "'", "''")
}
