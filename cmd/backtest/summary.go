package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rxtech-lab/argo-equity/internal/types"
)

// Style definitions.
var (
	// TitleStyle for headers.
	TitleStyle = lipgloss.NewStyle().Bold(true)

	// LabelStyle for the left column of the summary.
	LabelStyle = lipgloss.NewStyle().Faint(true).Width(20)

	// BoxStyle frames the summary.
	BoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// FormatPercent formats a fraction as a signed percentage with an indicator.
func FormatPercent(fraction float64) string {
	text := fmt.Sprintf("%+.2f%%", fraction*100)

	if fraction > 0 {
		return text + " ▲"
	} else if fraction < 0 {
		return text + " ▼"
	}

	return text
}

// RenderSummary renders the portfolio statistics of a run.
func RenderSummary(stats types.BacktestStats) string {
	portfolio := stats.Portfolio

	rows := [][2]string{
		{"Run", stats.ID},
		{"Initial capital", fmt.Sprintf("%.2f", portfolio.InitialCapital)},
		{"Final value", fmt.Sprintf("%.2f", portfolio.FinalValue)},
		{"Total return", FormatPercent(portfolio.TotalReturn)},
		{"Max drawdown", fmt.Sprintf("%.2f%%", portfolio.MaxDrawdown*100)},
		{"Trades", fmt.Sprintf("%d", portfolio.TradeResult.NumberOfTrades)},
		{"Win rate", fmt.Sprintf("%.1f%%", portfolio.TradeResult.WinRate)},
		{"Win/loss gain ratio", fmt.Sprintf("%.2f", portfolio.WinLossGainRatio)},
		{"Fees", fmt.Sprintf("%.2f", portfolio.TotalFees)},
		{"Open positions", fmt.Sprintf("%d", portfolio.OpenPositions)},
		{"Market condition", string(portfolio.MarketCondition)},
	}

	lines := make([]string, 0, len(rows)+3)
	lines = append(lines, TitleStyle.Render("Backtest summary"))

	for _, row := range rows {
		lines = append(lines, LabelStyle.Render(row[0])+row[1])
	}

	if len(stats.Warnings) > 0 {
		lines = append(lines, "", TitleStyle.Render(fmt.Sprintf("%d warnings", len(stats.Warnings))))
		lines = append(lines, stats.Warnings...)
	}

	return BoxStyle.Render(strings.Join(lines, "\n"))
}
