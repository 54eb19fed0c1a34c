// Package risk holds the per-decision services the portfolio simulator consults:
// regime classification, position sizing, trailing stops, pyramiding and the
// win-rate bookkeeping that feeds the regime.
//
// Sizing and stop computations never fail. They return a Decision that is either
// a normal value or a tagged fallback with the reason, and the caller decides how
// to log it.
package risk

import (
	"fmt"
	"math"
)

// Decision is the tagged result of a sizing or stop computation.
type Decision struct {
	Value    float64
	Fallback bool
	Reason   string
}

// Ok returns a normal decision.
func Ok(value float64) Decision {
	return Decision{Value: value, Fallback: false, Reason: ""}
}

// Fallback returns a conservative default together with why it was used.
func Fallback(value float64, format string, args ...any) Decision {
	return Decision{Value: value, Fallback: true, Reason: fmt.Sprintf(format, args...)}
}

func isFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}

	return true
}
