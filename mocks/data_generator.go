package mocks

import (
	"math"
	"math/rand"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-equity/internal/types"
)

// DataGenerator generates daily bars with buy/sell signals for tests.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator creates a new DataGenerator with the given seed.
// Use a fixed seed for reproducible results in tests.
func NewDataGenerator(seed int64) *DataGenerator {
	return &DataGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// GeneratorConfig configures how market data is generated.
type GeneratorConfig struct {
	// Symbol is the ticker (e.g., "AAPL", "005930")
	Symbol string
	// StartTime is the first trading day. Weekends are skipped.
	StartTime time.Time
	// Count is the number of bars to generate
	Count int
	// InitialPrice is the starting price
	InitialPrice float64
	// Volatility controls price movement (0.02 = 2% typical daily move)
	Volatility float64
	// Trend is the drift per bar (-0.002 to 0.002 for bearish to bullish)
	Trend float64
	// VolumeBase is the average volume per bar
	VolumeBase float64
	// VolumeVariance is the variance in volume (0.0 to 1.0)
	VolumeVariance float64
	// BuyProbability is the chance of a buy signal on a bar
	BuyProbability float64
	// SellProbability is the chance of a sell signal on a bar
	SellProbability float64
	// GapProbability is the chance a trading day has no bar at all
	GapProbability float64
	// WithADR fills the adr column instead of leaving it to be derived
	WithADR bool
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Symbol:          "TEST",
		StartTime:       time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Count:           250,
		InitialPrice:    100.0,
		Volatility:      0.02,
		Trend:           0.0005,
		VolumeBase:      1_000_000,
		VolumeVariance:  0.3,
		BuyProbability:  0.15,
		SellProbability: 0.05,
		GapProbability:  0.0,
		WithADR:         false,
	}
}

// Generate creates a series of daily bars following a geometric Brownian motion.
func (g *DataGenerator) Generate(config GeneratorConfig) []types.Bar {
	bars := make([]types.Bar, 0, config.Count)
	currentPrice := config.InitialPrice
	currentTime := config.StartTime

	for len(bars) < config.Count {
		currentTime = nextWeekday(currentTime)
		day := currentTime
		currentTime = currentTime.AddDate(0, 0, 1)

		open := currentPrice

		// Box-Muller transform for a normal draw
		u1 := g.rng.Float64()
		u2 := g.rng.Float64()
		z := math.Sqrt(-2*math.Log(1-u1)) * math.Cos(2*math.Pi*u2)

		close := open * (1 + config.Volatility*z + config.Trend)
		if close <= 0 {
			close = open * 0.99
		}

		highExtension := g.rng.Float64() * config.Volatility * open * 0.5
		lowExtension := g.rng.Float64() * config.Volatility * open * 0.5

		high := math.Max(open, close) + highExtension

		low := math.Min(open, close) - lowExtension
		if low <= 0 {
			low = math.Min(open, close) * 0.99
		}

		volume := config.VolumeBase * (1.0 + (g.rng.Float64()*2-1)*config.VolumeVariance)
		if volume < 0 {
			volume = config.VolumeBase * 0.1
		}

		// the target sits around the open so roughly half the buy signals break out
		target := open * (1 + (g.rng.Float64()-0.25)*config.Volatility)
		buy := g.rng.Float64() < config.BuyProbability
		sell := g.rng.Float64() < config.SellProbability
		metric := roundToDecimals(g.rng.Float64()*100, 2)
		revGrowth := roundToDecimals(g.rng.Float64()-0.2, 4)
		epsGrowth := roundToDecimals(g.rng.Float64()-0.2, 4)
		gap := g.rng.Float64() < config.GapProbability

		currentPrice = close

		if gap {
			continue
		}

		bar := types.Bar{
			Symbol:        config.Symbol,
			Time:          day,
			Open:          roundToDecimals(open, 4),
			High:          roundToDecimals(high, 4),
			Low:           roundToDecimals(low, 4),
			Close:         roundToDecimals(close, 4),
			Volume:        roundToDecimals(volume, 0),
			Buy:           buy,
			Sell:          sell,
			TargetPrice:   optional.Some(roundToDecimals(target, 4)),
			SortingMetric: metric,
			RevGrowth:     revGrowth,
			EpsGrowth:     epsGrowth,
			ADR:           optional.None[float64](),
		}

		if config.WithADR {
			bar.ADR = optional.Some(roundToDecimals((high-low)/close*100, 4))
		}

		bars = append(bars, bar)
	}

	return bars
}

// GenerateSeries generates one instrument series per symbol. Initial price and
// volatility vary slightly per symbol.
func (g *DataGenerator) GenerateSeries(symbols []string, baseConfig GeneratorConfig) []types.InstrumentSeries {
	series := make([]types.InstrumentSeries, 0, len(symbols))

	for _, symbol := range symbols {
		config := baseConfig
		config.Symbol = symbol
		config.InitialPrice = baseConfig.InitialPrice * (0.8 + g.rng.Float64()*0.4)
		config.Volatility = baseConfig.Volatility * (0.8 + g.rng.Float64()*0.4)

		series = append(series, types.NewInstrumentSeries(symbol, g.Generate(config)))
	}

	return series
}

// GenerateUniverse is GenerateSeries wrapped into a universe.
func (g *DataGenerator) GenerateUniverse(symbols []string, baseConfig GeneratorConfig) types.Universe {
	return types.NewUniverse(g.GenerateSeries(symbols, baseConfig))
}

func nextWeekday(t time.Time) time.Time {
	for t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		t = t.AddDate(0, 0, 1)
	}

	return t
}

// roundToDecimals rounds a float64 to the specified number of decimal places.
func roundToDecimals(val float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))

	return math.Round(val*pow) / pow
}
