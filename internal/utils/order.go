package utils

import (
	"math"

	"github.com/rxtech-lab/argo-equity/internal/backtest/engine/engine_v1/commission_fee"
)

// CalculateMaxShares returns the whole number of shares that targetValue can buy at price
// once the broker commission and slippage are paid on top.
func CalculateMaxShares(targetValue float64, price float64, commissionFee commission_fee.CommissionFee, slippage float64) int64 {
	if price <= 0 || targetValue <= 0 {
		return 0
	}

	unitCost := price * (1 + commissionFee.Rate() + slippage)
	if unitCost <= 0 || math.IsNaN(unitCost) || math.IsInf(unitCost, 0) {
		return 0
	}

	totalCost := func(shares int64) float64 {
		quantity := float64(shares)

		return quantity*price*(1+slippage) + commissionFee.Calculate(quantity, price)
	}

	// Initial estimate from the proportional rate
	shares := int64(math.Floor(targetValue / unitCost))

	// Refine against the broker's own fee, which may carry fixed charges
	for i := 0; i < 10 && shares > 0; i++ {
		cost := totalCost(shares)
		if cost <= targetValue {
			break
		}

		shares = int64(math.Floor(float64(shares) * targetValue / cost))
	}

	for shares > 0 && totalCost(shares) > targetValue {
		shares--
	}

	return shares
}

// RoundHalfEven rounds value to places decimals, sending ties to the even neighbour.
func RoundHalfEven(value float64, places int) float64 {
	multiplier := math.Pow10(places)

	return math.RoundToEven(value*multiplier) / multiplier
}
