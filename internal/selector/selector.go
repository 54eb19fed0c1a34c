// Package selector ranks the day's buy-signaled instruments into an ordered
// list of entry candidates.
package selector

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rxtech-lab/argo-equity/internal/types"
)

// RankingMode chooses how candidates are ordered.
type RankingMode string

const (
	// RankingModeSingle requires a confirmed breakout and orders by sorting_metric.
	RankingModeSingle RankingMode = "single"
	// RankingModeMulti orders by the sum of the revenue-growth and EPS-growth ranks.
	RankingModeMulti RankingMode = "multi"
)

// AllRankingModes lists the supported ranking modes.
var AllRankingModes = []RankingMode{RankingModeSingle, RankingModeMulti}

// ParseRankingMode parses a ranking mode name. An empty name selects single-metric ranking.
func ParseRankingMode(s string) (RankingMode, error) {
	switch RankingMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", RankingModeSingle:
		return RankingModeSingle, nil
	case RankingModeMulti:
		return RankingModeMulti, nil
	default:
		return "", fmt.Errorf("unknown ranking mode: %q", s)
	}
}

// Candidate is one ranked entry candidate.
type Candidate struct {
	Symbol string
	Bar    types.Bar
	// Score is sorting_metric in single mode and total_rank in multi mode.
	Score   float64
	RevRank int
	EpsRank int
}

// CandidateSelector picks the instruments to enter on a day.
type CandidateSelector struct {
	mode         RankingMode
	maxStockList int
}

func NewCandidateSelector(mode RankingMode, maxStockList int) *CandidateSelector {
	if mode == "" {
		mode = RankingModeSingle
	}

	return &CandidateSelector{
		mode:         mode,
		maxStockList: maxStockList,
	}
}

// Select returns at most max_stock_list - positionCount candidates in ranked order.
// bars is the day's quote of every instrument in input order; held tickers are never returned.
func (s *CandidateSelector) Select(bars []types.Bar, held func(symbol string) bool, positionCount int) []Candidate {
	slots := s.maxStockList - positionCount
	if slots <= 0 {
		return nil
	}

	var candidates []Candidate

	switch s.mode {
	case RankingModeMulti:
		candidates = s.rankMulti(bars, held)
	default:
		candidates = s.rankSingle(bars, held)
	}

	if len(candidates) > slots {
		candidates = candidates[:slots]
	}

	return candidates
}

func (s *CandidateSelector) rankSingle(bars []types.Bar, held func(string) bool) []Candidate {
	candidates := make([]Candidate, 0, len(bars))

	for _, bar := range bars {
		if !bar.Buy || isHeld(held, bar.Symbol) {
			continue
		}

		// a buy signal alone is not enough, the day's high must reach the target
		target, err := bar.TargetPrice.Take()
		if err != nil || bar.High < target {
			continue
		}

		candidates = append(candidates, Candidate{
			Symbol: bar.Symbol,
			Bar:    bar,
			Score:  bar.SortingMetric,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	return candidates
}

func (s *CandidateSelector) rankMulti(bars []types.Bar, held func(string) bool) []Candidate {
	candidates := make([]Candidate, 0, len(bars))

	for _, bar := range bars {
		if !bar.Buy || isHeld(held, bar.Symbol) {
			continue
		}

		candidates = append(candidates, Candidate{
			Symbol: bar.Symbol,
			Bar:    bar,
		})
	}

	revRanks := descendingRanks(candidates, func(c Candidate) float64 { return c.Bar.RevGrowth })
	epsRanks := descendingRanks(candidates, func(c Candidate) float64 { return c.Bar.EpsGrowth })

	for i := range candidates {
		candidates[i].RevRank = revRanks[i]
		candidates[i].EpsRank = epsRanks[i]
		candidates[i].Score = float64(revRanks[i] + epsRanks[i])
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score < candidates[j].Score
	})

	return candidates
}

// descendingRanks assigns rank 1 to the largest value. Equal values share the best rank
// of their group and the next distinct value skips ahead (1, 2, 2, 4).
func descendingRanks(candidates []Candidate, value func(Candidate) float64) []int {
	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(a, b int) bool {
		return value(candidates[order[a]]) > value(candidates[order[b]])
	})

	ranks := make([]int, len(candidates))

	for pos, idx := range order {
		if pos > 0 && value(candidates[idx]) == value(candidates[order[pos-1]]) {
			ranks[idx] = ranks[order[pos-1]]

			continue
		}

		ranks[idx] = pos + 1
	}

	return ranks
}

func isHeld(held func(string) bool, symbol string) bool {
	return held != nil && held(symbol)
}
