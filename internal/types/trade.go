package types

import (
	"time"
)

type PurchaseType string

const (
	PurchaseTypeBuy  PurchaseType = "BUY"
	PurchaseTypeSell PurchaseType = "SELL"
)

type TradeReason string

const (
	TradeReasonEntry      TradeReason = "entry"
	TradeReasonPyramid    TradeReason = "pyramid"
	TradeReasonSellSignal TradeReason = "sell_signal"
	TradeReasonStopLoss   TradeReason = "stop_loss"
	TradeReasonHalfSell   TradeReason = "half_sell"
)

// Trade is one fill in the append-only ledger.
type Trade struct {
	ID     string       `csv:"id" yaml:"id"`
	Symbol string       `csv:"symbol" yaml:"symbol"`
	Side   PurchaseType `csv:"side" yaml:"side"`
	Date   time.Time    `csv:"date" yaml:"date"`
	Price  float64      `csv:"price" yaml:"price"`
	Shares int64        `csv:"shares" yaml:"shares"`
	// Amount is shares * price, before costs.
	Amount float64 `csv:"amount" yaml:"amount"`
	// RealizedPnL is proceeds net of costs minus shares * average price.
	// For example, selling 100 shares bought at 100.0 for 110.0 with 0.3% total costs
	// realizes 110.0*100*0.997 - 100.0*100 = 967.
	// It is always 0 for buys.
	RealizedPnL float64     `csv:"realized_pnl" yaml:"realized_pnl"`
	Commission  float64     `csv:"commission" yaml:"commission"`
	Slippage    float64     `csv:"slippage" yaml:"slippage"`
	Reason      TradeReason `csv:"reason" yaml:"reason"`
}

// IsClosing reports whether the trade realized profit or loss.
func (t Trade) IsClosing() bool {
	return t.Side == PurchaseTypeSell
}
