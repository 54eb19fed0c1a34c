package risk

import (
	"math"

	"github.com/rxtech-lab/argo-equity/internal/types"
	"github.com/rxtech-lab/argo-equity/internal/utils"
)

// NoLossGainRatio is reported when there are winning trades but no losing ones.
const NoLossGainRatio = 999.0

// Performance is the win/loss tally of closed trades.
type Performance struct {
	WinCount      int
	LossCount     int
	TotalWinGain  float64
	TotalLossGain float64
}

// NewPerformance tallies the sells among trades. A sell with positive pnl is a win,
// anything else a loss.
func NewPerformance(trades []types.Trade) Performance {
	var p Performance

	for _, trade := range trades {
		if !trade.IsClosing() {
			continue
		}

		if trade.RealizedPnL > 0 {
			p.WinCount++
			p.TotalWinGain += trade.RealizedPnL
		} else {
			p.LossCount++
			p.TotalLossGain += trade.RealizedPnL
		}
	}

	return p
}

// ClosedTrades returns wins plus losses.
func (p Performance) ClosedTrades() int {
	return p.WinCount + p.LossCount
}

// WinRate returns wins*100/(wins+losses) rounded to one decimal, or 0 without closed trades.
func (p Performance) WinRate() float64 {
	total := p.ClosedTrades()
	if total == 0 {
		return 0
	}

	return utils.RoundHalfEven(float64(p.WinCount)*100/float64(total), 1)
}

// WinLossGainRatio returns average win over average loss, NoLossGainRatio when only wins
// exist and 0 when there are no wins.
func (p Performance) WinLossGainRatio() float64 {
	switch {
	case p.WinCount > 0 && p.LossCount > 0:
		avgLoss := math.Abs(p.TotalLossGain) / float64(p.LossCount)
		if avgLoss == 0 {
			return NoLossGainRatio
		}

		return (p.TotalWinGain / float64(p.WinCount)) / avgLoss
	case p.WinCount > 0:
		return NoLossGainRatio
	default:
		return 0.0
	}
}

// RecentPerformance tallies only the last lookback closing trades. lookback <= 0 means all of them.
func RecentPerformance(trades []types.Trade, lookback int) Performance {
	closing := make([]types.Trade, 0, len(trades))

	for _, trade := range trades {
		if trade.IsClosing() {
			closing = append(closing, trade)
		}
	}

	if lookback > 0 && len(closing) > lookback {
		closing = closing[len(closing)-lookback:]
	}

	return NewPerformance(closing)
}
