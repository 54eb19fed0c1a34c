package risk

import (
	"github.com/rxtech-lab/argo-equity/internal/utils"
)

// StopEngine computes the trailing loss-cut price of an open long position.
//
// Below one risk unit of profit the stop sits at avg*(1-std_risk). Beyond it the
// stop steps up in whole risk units, one unit behind the gain:
//
//	steps    = round((gain-1)/risk)
//	cut_line = 1 - (steps-1)*risk
//
// The result never goes below avg*(1-min_loss_cut) and never below the previous stop.
type StopEngine struct {
	stdRisk              float64
	minLossCutPercentage float64
}

func NewStopEngine(stdRisk float64, minLossCutPercentage float64) *StopEngine {
	return &StopEngine{
		stdRisk:              stdRisk,
		minLossCutPercentage: minLossCutPercentage,
	}
}

// Compute returns the stop to hold after observing currentGain (price/avg price).
func (s *StopEngine) Compute(currentGain float64, previousStop float64, avgPrice float64, risk float64) Decision {
	if !isFinite(currentGain, previousStop, avgPrice, risk, s.stdRisk, s.minLossCutPercentage) {
		return Fallback(previousStop, "non-finite stop input")
	}

	if avgPrice <= 0 {
		return Fallback(previousStop, "average price %v is not positive", avgPrice)
	}

	var cutLine float64

	if currentGain < 1+s.stdRisk {
		cutLine = 1 - s.stdRisk
	} else {
		if risk <= 0 {
			return Fallback(previousStop, "risk %v is not positive", risk)
		}

		steps := utils.RoundHalfEven((currentGain-1)/risk, 0)
		cutLine = 1 - (steps-1)*risk
	}

	candidate := avgPrice * cutLine

	minStop := avgPrice * (1 - s.minLossCutPercentage)
	if candidate < minStop {
		candidate = minStop
	}

	if candidate > previousStop {
		return Ok(candidate)
	}

	return Ok(previousStop)
}
