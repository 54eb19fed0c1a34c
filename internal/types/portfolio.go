package types

import (
	"fmt"
	"strings"
	"time"
)

// PortfolioSnapshot is the end-of-day NAV record.
type PortfolioSnapshot struct {
	Date           time.Time `csv:"date" yaml:"date"`
	Cash           float64   `csv:"cash" yaml:"cash"`
	PositionsValue float64   `csv:"positions_value" yaml:"positions_value"`
	TotalValue     float64   `csv:"total_value" yaml:"total_value"`
	OpenPositions  int       `csv:"open_positions" yaml:"open_positions"`
}

// MarketCondition is the coarse regime used to scale position sizes.
type MarketCondition string

const (
	MarketConditionPoor     MarketCondition = "POOR"
	MarketConditionModerate MarketCondition = "MODERATE"
	MarketConditionGood     MarketCondition = "GOOD"
)

// ParseMarketCondition parses a condition name case-insensitively.
func ParseMarketCondition(s string) (MarketCondition, error) {
	switch MarketCondition(strings.ToUpper(strings.TrimSpace(s))) {
	case MarketConditionPoor:
		return MarketConditionPoor, nil
	case MarketConditionModerate:
		return MarketConditionModerate, nil
	case MarketConditionGood:
		return MarketConditionGood, nil
	default:
		return "", fmt.Errorf("unknown market condition: %q", s)
	}
}
