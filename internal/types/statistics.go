package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type TradePnl struct {
	// Realized PnL. By adding all the sell trades' pnl.
	RealizedPnL float64 `yaml:"realized_pnl"`
	// Unrealized PnL of the open position marked at the last close.
	UnrealizedPnL float64 `yaml:"unrealized_pnl"`
	// Total PnL. By adding RealizedPnL and UnrealizedPnL.
	TotalPnL float64 `yaml:"total_pnl"`
	// Maximum loss. The smallest realized pnl of a single sell.
	MaximumLoss float64 `yaml:"maximum_loss"`
	// Maximum profit. The largest realized pnl of a single sell.
	MaximumProfit float64 `yaml:"maximum_profit"`
}

type TradeResult struct {
	// Count of all fills.
	NumberOfTrades int `yaml:"number_of_trades"`
	// Count of sells with positive pnl.
	NumberOfWinningTrades int `yaml:"number_of_winning_trades"`
	// Count of sells with zero or negative pnl.
	NumberOfLosingTrades int `yaml:"number_of_losing_trades"`
	// Win rate in percent, rounded to one decimal.
	WinRate float64 `yaml:"win_rate"`
}

// SymbolStats summarises the fills of one symbol.
type SymbolStats struct {
	Symbol      string      `yaml:"symbol"`
	TradeResult TradeResult `yaml:"trade_result"`
	TotalFees   float64     `yaml:"total_fees"`
	TradePnl    TradePnl    `yaml:"trade_pnl"`
}

// PortfolioStats summarises a whole run.
type PortfolioStats struct {
	InitialCapital   float64         `yaml:"initial_capital"`
	FinalValue       float64         `yaml:"final_value"`
	TotalReturn      float64         `yaml:"total_return"`
	MaxDrawdown      float64         `yaml:"max_drawdown"`
	TradeResult      TradeResult     `yaml:"trade_result"`
	WinLossGainRatio float64         `yaml:"win_loss_gain_ratio"`
	TotalFees        float64         `yaml:"total_fees"`
	OpenPositions    int             `yaml:"open_positions"`
	MarketCondition  MarketCondition `yaml:"market_condition"`
}

type BacktestStats struct {
	// ID is the unique identifier for this backtest run.
	ID string `yaml:"id" json:"id"`
	// Timestamp is when this backtest run was executed.
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
	// EngineVersion is the engine version that produced the run.
	EngineVersion string         `yaml:"engine_version" json:"engine_version"`
	Portfolio     PortfolioStats `yaml:"portfolio" json:"portfolio"`
	Symbols       []SymbolStats  `yaml:"symbols" json:"symbols"`
	// Warnings collected while preparing the universe.
	Warnings []string `yaml:"warnings,omitempty" json:"warnings,omitempty"`
	// TradesFilePath is the path to the trades parquet file.
	TradesFilePath string `yaml:"trades_file_path" json:"trades_file_path"`
	// NavFilePath is the path to the NAV parquet file.
	NavFilePath string `yaml:"nav_file_path" json:"nav_file_path"`
	// PositionsFilePath is the path to the open positions parquet file.
	PositionsFilePath string `yaml:"positions_file_path" json:"positions_file_path"`
	// LogsFilePath is the path to the decision log parquet file.
	LogsFilePath string `yaml:"logs_file_path" json:"logs_file_path"`
	// DataPath is the glob of market data files used for this backtest.
	DataPath string `yaml:"data_path" json:"data_path"`
}

func WriteStats(path string, stats BacktestStats) error {
	data, err := yaml.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal backtest stats to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write backtest stats to file: %w", err)
	}

	return nil
}

// ReadStats reads a stats file written by WriteStats.
func ReadStats(path string) (BacktestStats, error) {
	var stats BacktestStats

	data, err := os.ReadFile(path)
	if err != nil {
		return stats, fmt.Errorf("failed to read backtest stats: %w", err)
	}

	if err := yaml.Unmarshal(data, &stats); err != nil {
		return stats, fmt.Errorf("failed to unmarshal backtest stats: %w", err)
	}

	return stats, nil
}
