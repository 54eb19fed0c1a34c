package risk

import (
	"math"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-equity/internal/types"
)

const (
	// BaseAllocation is the fraction of capital a normal-volatility name receives.
	BaseAllocation = 0.20
	// HighVolatilityADR is the ADR (percent) at or above which the allocation is halved.
	HighVolatilityADR = 5.0
	// FallbackAllocation is returned when the inputs cannot be sized.
	FallbackAllocation = 0.10
)

var regimeMultiplier = map[types.MarketCondition]float64{
	types.MarketConditionPoor:     0.5,
	types.MarketConditionModerate: 1.0,
	types.MarketConditionGood:     1.2,
}

// RegimeSource supplies the condition used when the caller passes none.
type RegimeSource interface {
	Current() types.MarketCondition
}

// PositionSizer converts volatility and regime into a target allocation fraction.
type PositionSizer struct {
	maxSingleStockRatio float64
	regime              RegimeSource
}

func NewPositionSizer(maxSingleStockRatio float64, regime RegimeSource) *PositionSizer {
	return &PositionSizer{
		maxSingleStockRatio: maxSingleStockRatio,
		regime:              regime,
	}
}

// Size returns the allocation fraction in [0, max_single_stock_ratio] for a name with the given ADR.
func (p *PositionSizer) Size(adrRange float64, condition optional.Option[types.MarketCondition]) Decision {
	if !isFinite(p.maxSingleStockRatio) || p.maxSingleStockRatio <= 0 {
		return Fallback(FallbackAllocation, "invalid max single stock ratio %v", p.maxSingleStockRatio)
	}

	fallback := math.Min(FallbackAllocation, p.maxSingleStockRatio)

	if !isFinite(adrRange) || adrRange < 0 {
		return Fallback(fallback, "invalid adr range %v", adrRange)
	}

	resolved := condition.TakeOr("")
	if resolved == "" && p.regime != nil {
		resolved = p.regime.Current()
	}

	multiplier, ok := regimeMultiplier[resolved]
	if !ok {
		return Fallback(fallback, "unknown market condition %q", resolved)
	}

	ratio := BaseAllocation
	if adrRange >= HighVolatilityADR {
		ratio = BaseAllocation / 2
	}

	ratio *= multiplier

	return Ok(math.Min(ratio, p.maxSingleStockRatio))
}
