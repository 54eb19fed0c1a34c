package types

import (
	"sort"
	"time"

	"github.com/moznion/go-optional"
)

// Bar is one daily row of an instrument series, including the signal columns
// evaluated upstream and any extra indicator columns found in the source file.
type Bar struct {
	Symbol string    `csv:"symbol"`
	Time   time.Time `csv:"time"`
	Open   float64   `csv:"open"`
	High   float64   `csv:"high"`
	Low    float64   `csv:"low"`
	Close  float64   `csv:"close"`
	Volume float64   `csv:"volume"`

	// Buy and Sell are the per-day signals.
	Buy  bool `csv:"buy_signal"`
	Sell bool `csv:"sell_signal"`
	// TargetPrice is the breakout level the day's high must reach to confirm a buy.
	TargetPrice optional.Option[float64] `csv:"target_price"`
	// SortingMetric ranks candidates in single-metric mode (e.g. relative strength).
	SortingMetric float64 `csv:"sorting_metric"`
	// RevGrowth and EpsGrowth rank candidates in multi-metric mode.
	RevGrowth float64 `csv:"rev_growth"`
	EpsGrowth float64 `csv:"eps_growth"`
	// ADR is the average daily range in percent, when precomputed.
	ADR optional.Option[float64] `csv:"adr"`

	Indicators map[string]float64 `csv:"-"`
}

// InstrumentSeries is the date-ordered, immutable bar history of one symbol.
type InstrumentSeries struct {
	Symbol string
	Bars   []Bar
	index  map[int64]int
}

// NewInstrumentSeries sorts the bars by time and indexes them by calendar day.
// When two bars fall on the same day the later one wins.
func NewInstrumentSeries(symbol string, bars []Bar) InstrumentSeries {
	sorted := make([]Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})

	index := make(map[int64]int, len(sorted))
	for i, bar := range sorted {
		index[DayKey(bar.Time)] = i
	}

	return InstrumentSeries{
		Symbol: symbol,
		Bars:   sorted,
		index:  index,
	}
}

// DayKey truncates a timestamp to its UTC calendar day.
func DayKey(t time.Time) int64 {
	y, m, d := t.UTC().Date()

	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
}

// Len returns the number of bars.
func (s InstrumentSeries) Len() int {
	return len(s.Bars)
}

// IndexOf returns the position of the bar for the given day.
func (s InstrumentSeries) IndexOf(date time.Time) (int, bool) {
	i, ok := s.index[DayKey(date)]

	return i, ok
}

// BarAt returns the bar quoted on the given day.
func (s InstrumentSeries) BarAt(date time.Time) (Bar, bool) {
	i, ok := s.IndexOf(date)
	if !ok {
		return Bar{}, false
	}

	return s.Bars[i], true
}

// ADRAt returns the average daily range in percent at the bar for date.
// A precomputed adr column wins; otherwise it is the mean of (high-low)/close
// over the trailing window bars ending at date.
func (s InstrumentSeries) ADRAt(date time.Time, window int) (float64, bool) {
	i, ok := s.IndexOf(date)
	if !ok {
		return 0, false
	}

	if s.Bars[i].ADR.IsSome() {
		return s.Bars[i].ADR.Unwrap(), true
	}

	if window <= 0 {
		window = 1
	}

	start := i - window + 1
	if start < 0 {
		start = 0
	}

	var sum float64

	n := 0

	for _, bar := range s.Bars[start : i+1] {
		if bar.Close <= 0 {
			continue
		}

		sum += (bar.High - bar.Low) / bar.Close
		n++
	}

	if n == 0 {
		return 0, false
	}

	return sum / float64(n) * 100, true
}

// Universe is the prepared input of a simulation: the series of every tradable
// symbol plus the union trading calendar.
type Universe struct {
	Series   map[string]InstrumentSeries
	Symbols  []string
	Calendar []time.Time
	Warnings []string
}

// NewUniverse builds a universe with sorted symbols and the ascending union of all bar days.
func NewUniverse(series []InstrumentSeries) Universe {
	universe := Universe{
		Series:   make(map[string]InstrumentSeries, len(series)),
		Symbols:  make([]string, 0, len(series)),
		Calendar: nil,
		Warnings: nil,
	}

	days := make(map[int64]time.Time)

	for _, s := range series {
		universe.Series[s.Symbol] = s
		universe.Symbols = append(universe.Symbols, s.Symbol)

		for _, bar := range s.Bars {
			key := DayKey(bar.Time)
			if _, ok := days[key]; !ok {
				days[key] = time.Unix(key, 0).UTC()
			}
		}
	}

	sort.Strings(universe.Symbols)

	universe.Calendar = make([]time.Time, 0, len(days))
	for _, day := range days {
		universe.Calendar = append(universe.Calendar, day)
	}

	sort.Slice(universe.Calendar, func(i, j int) bool {
		return universe.Calendar[i].Before(universe.Calendar[j])
	})

	return universe
}
