// Package naming normalises raw ticker strings into the symbols a market uses.
// It is applied once when series are loaded and never inside the simulation.
package naming

import (
	"fmt"
	"strings"
)

type Market string

const (
	MarketUS  Market = "US"
	MarketKRX Market = "KRX"
)

// AllMarkets lists the markets with a naming strategy.
var AllMarkets = []Market{MarketUS, MarketKRX}

// MarketNamingStrategy turns a raw ticker into the canonical symbol of its market.
type MarketNamingStrategy interface {
	Market() Market
	Normalize(raw string) (string, error)
}

// ForMarket returns the naming strategy of a market. An empty market selects US.
func ForMarket(market Market) (MarketNamingStrategy, error) {
	switch Market(strings.ToUpper(strings.TrimSpace(string(market)))) {
	case "", MarketUS:
		return USNaming{}, nil
	case MarketKRX:
		return KRXNaming{}, nil
	default:
		return nil, fmt.Errorf("unknown market: %q", market)
	}
}

// USNaming upper-cases tickers ("brk.b" -> "BRK.B").
type USNaming struct{}

func (USNaming) Market() Market {
	return MarketUS
}

func (USNaming) Normalize(raw string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(raw))
	if symbol == "" {
		return "", fmt.Errorf("empty ticker")
	}

	return symbol, nil
}

const krxCodeLength = 6

// KRXNaming zero-pads numeric KRX codes to six digits and prefixes them with "A"
// ("5930" -> "A005930"). Already prefixed codes are accepted as is.
type KRXNaming struct{}

func (KRXNaming) Market() Market {
	return MarketKRX
}

func (KRXNaming) Normalize(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	code = strings.TrimPrefix(code, "A")

	if code == "" || len(code) > krxCodeLength {
		return "", fmt.Errorf("invalid KRX code: %q", raw)
	}

	for _, r := range code {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("invalid KRX code: %q", raw)
		}
	}

	return "A" + strings.Repeat("0", krxCodeLength-len(code)) + code, nil
}
