package types

import (
	"time"
)

// Position is the single open holding of a symbol.
type Position struct {
	Symbol    string    `csv:"symbol" yaml:"symbol"`
	Shares    int64     `csv:"shares" yaml:"shares"`
	AvgPrice  float64   `csv:"avg_price" yaml:"avg_price"`
	EntryDate time.Time `csv:"entry_date" yaml:"entry_date"`
	StopPrice float64   `csv:"stop_price" yaml:"stop_price"`
	// LastPrice is the most recent close the position was marked at.
	LastPrice    float64 `csv:"last_price" yaml:"last_price"`
	PyramidCount int     `csv:"pyramid_count" yaml:"pyramid_count"`
	HalfSold     bool    `csv:"half_sold" yaml:"half_sold"`
}

// MarketValue returns the value of the position at price.
func (p Position) MarketValue(price float64) float64 {
	return float64(p.Shares) * price
}

// Gain returns price / avg price, where 1.0 is break-even.
func (p Position) Gain(price float64) float64 {
	if p.AvgPrice <= 0 {
		return 0
	}

	return price / p.AvgPrice
}
