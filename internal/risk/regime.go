package risk

import (
	"github.com/rxtech-lab/argo-equity/internal/types"
)

const (
	poorWinRateThreshold     = 30.0
	moderateWinRateThreshold = 50.0
)

// ClassifyMarket maps the open position count and the recent win rate (0-100) to a condition.
func ClassifyMarket(positionCount int, winRate float64) types.MarketCondition {
	switch {
	case winRate < poorWinRateThreshold || positionCount == 0:
		return types.MarketConditionPoor
	case winRate < moderateWinRateThreshold:
		return types.MarketConditionModerate
	default:
		return types.MarketConditionGood
	}
}

// MarketRegimeClassifier keeps the condition of a single simulation run.
// It is owned by the run and never shared between runs.
type MarketRegimeClassifier struct {
	current types.MarketCondition
}

func NewMarketRegimeClassifier(initial types.MarketCondition) *MarketRegimeClassifier {
	if initial == "" {
		initial = types.MarketConditionModerate
	}

	return &MarketRegimeClassifier{current: initial}
}

// Classify evaluates the rule and stores the result as the current condition.
func (c *MarketRegimeClassifier) Classify(positionCount int, winRate float64) types.MarketCondition {
	c.current = ClassifyMarket(positionCount, winRate)

	return c.current
}

// Current returns the last classified condition.
func (c *MarketRegimeClassifier) Current() types.MarketCondition {
	return c.current
}
