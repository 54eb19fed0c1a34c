package risk

import (
	"testing"

	"github.com/rxtech-lab/argo-equity/internal/types"
	"github.com/stretchr/testify/suite"
)

type RegimeTestSuite struct {
	suite.Suite
}

func TestRegimeSuite(t *testing.T) {
	suite.Run(t, new(RegimeTestSuite))
}

func (suite *RegimeTestSuite) TestClassifyMarket() {
	tests := []struct {
		name          string
		positionCount int
		winRate       float64
		expected      types.MarketCondition
	}{
		{"low win rate", 5, 29.9, types.MarketConditionPoor},
		{"empty book beats a good win rate", 0, 80, types.MarketConditionPoor},
		{"no closed trades", 3, 0, types.MarketConditionPoor},
		{"lower bound of moderate", 2, 30, types.MarketConditionModerate},
		{"upper moderate", 2, 49.9, types.MarketConditionModerate},
		{"lower bound of good", 2, 50, types.MarketConditionGood},
		{"strong", 10, 75, types.MarketConditionGood},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			suite.Equal(tc.expected, ClassifyMarket(tc.positionCount, tc.winRate))
		})
	}
}

func (suite *RegimeTestSuite) TestClassifierStoresCondition() {
	classifier := NewMarketRegimeClassifier("")
	suite.Equal(types.MarketConditionModerate, classifier.Current())

	suite.Equal(types.MarketConditionGood, classifier.Classify(3, 60))
	suite.Equal(types.MarketConditionGood, classifier.Current())

	suite.Equal(types.MarketConditionPoor, classifier.Classify(0, 60))
	suite.Equal(types.MarketConditionPoor, classifier.Current())
}

func (suite *RegimeTestSuite) TestClassifiersAreIndependent() {
	first := NewMarketRegimeClassifier(types.MarketConditionGood)
	second := NewMarketRegimeClassifier(types.MarketConditionGood)

	first.Classify(0, 0)

	suite.Equal(types.MarketConditionPoor, first.Current())
	suite.Equal(types.MarketConditionGood, second.Current())
}
