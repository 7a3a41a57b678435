package annotate

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// RankOrder selects how results are ordered by score.
type RankOrder string

// Rank orders.
const (
	// RankNumeric sorts scores as numbers, highest first. Scores that do not
	// parse as numbers come after all numeric ones.
	RankNumeric RankOrder = "numeric"
	// RankLexical sorts scores as strings, highest first.
	RankLexical RankOrder = "lexical"
)

// ParseRankOrder parses a rank order name. The empty string means numeric.
func ParseRankOrder(s string) (RankOrder, error) {
	switch RankOrder(s) {
	case "", RankNumeric:
		return RankNumeric, nil
	case RankLexical:
		return RankLexical, nil
	}
	return "", fmt.Errorf("unknown rank order %q (want %q or %q)", s, RankNumeric, RankLexical)
}

// Rank sorts results by descending score. Equal scores keep their order.
func Rank(results []RankedResult, order RankOrder) {
	if order == RankLexical {
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Score > results[j].Score
		})
		return
	}

	keys := make([]float64, len(results))
	numeric := make([]bool, len(results))
	for i, r := range results {
		keys[i], numeric[i] = ParseScore(r.Score)
	}
	idx := make([]int, len(results))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		i, j := idx[a], idx[b]
		if numeric[i] != numeric[j] {
			return numeric[i]
		}
		return numeric[i] && keys[i] > keys[j]
	})

	sorted := make([]RankedResult, len(results))
	for k, i := range idx {
		sorted[k] = results[i]
	}
	copy(results, sorted)
}

// ParseScore parses a score value, reporting false for anything that is not
// a finite number.
func ParseScore(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
