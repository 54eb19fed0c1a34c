package risk

// PyramidPlan is the outcome of an add-to-position evaluation.
type PyramidPlan struct {
	CanPyramid       bool
	AdditionalAmount float64
	AdditionalShares float64
	NewAvgPrice      float64
	TotalShares      float64
	CurrentPrice     float64
}

// HalfSellPlan is the outcome of a half-sell evaluation.
type HalfSellPlan struct {
	CanHalfSell            bool
	SellAmount             float64
	CashIncrease           float64
	RemainingPositionValue float64
	SellRatio              float64
}

const halfSellRatio = 0.5

// PyramidEngine computes incremental buys and partial sells of existing positions.
type PyramidEngine struct {
	enablePyramiding bool
	enableHalfSell   bool
	pyramidingRatio  float64
	slippage         float64
}

func NewPyramidEngine(enablePyramiding bool, enableHalfSell bool, pyramidingRatio float64, slippage float64) *PyramidEngine {
	return &PyramidEngine{
		enablePyramiding: enablePyramiding,
		enableHalfSell:   enableHalfSell,
		pyramidingRatio:  pyramidingRatio,
		slippage:         slippage,
	}
}

// AddToPosition sizes an add of total_balance*pyramiding_ratio at avg_price*current_gain and
// recomputes the weighted average cost. existingPositionValue/currentGain is taken as the
// existing share count.
func (p *PyramidEngine) AddToPosition(totalBalance, avgPrice, currentGain, existingPositionValue float64) PyramidPlan {
	if !p.enablePyramiding {
		return PyramidPlan{}
	}

	additionalCash := totalBalance * p.pyramidingRatio
	currentPrice := avgPrice * currentGain

	additionalShares := 0.0
	if currentPrice > 0 {
		additionalShares = additionalCash / currentPrice
	}

	existingShares := 0.0
	if currentGain > 0 {
		existingShares = existingPositionValue / currentGain
	}

	totalShares := existingShares + additionalShares

	newAvgPrice := avgPrice
	if totalShares > 0 {
		newAvgPrice = (existingShares*avgPrice + additionalShares*currentPrice) / totalShares
	}

	return PyramidPlan{
		CanPyramid:       isFinite(additionalCash, additionalShares, newAvgPrice) && additionalShares > 0,
		AdditionalAmount: additionalCash,
		AdditionalShares: additionalShares,
		NewAvgPrice:      newAvgPrice,
		TotalShares:      totalShares,
		CurrentPrice:     currentPrice,
	}
}

// HalfSell splits the current position value in two and nets slippage off the sold half.
func (p *PyramidEngine) HalfSell(currentPositionValue float64) HalfSellPlan {
	if !p.enableHalfSell {
		return HalfSellPlan{}
	}

	sellAmount := currentPositionValue * halfSellRatio

	return HalfSellPlan{
		CanHalfSell:            sellAmount > 0,
		SellAmount:             sellAmount,
		CashIncrease:           sellAmount * (1 - p.slippage),
		RemainingPositionValue: currentPositionValue - sellAmount,
		SellRatio:              halfSellRatio,
	}
}
