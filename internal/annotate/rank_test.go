package annotate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scored(scores ...string) []RankedResult {
	out := make([]RankedResult, len(scores))
	for i, s := range scores {
		out[i] = RankedResult{Score: s, ID: s}
	}
	return out
}

func scoresOf(rs []RankedResult) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Score
	}
	return out
}

func TestRank_NumericDescending(t *testing.T) {
	rs := scored("9.8", "10.2", "0.7", "1e-3")
	Rank(rs, RankNumeric)
	assert.Equal(t, []string{"10.2", "9.8", "0.7", "1e-3"}, scoresOf(rs))
}

func TestRank_LexicalDescending(t *testing.T) {
	rs := scored("10.2", "9.8", "0.7")
	Rank(rs, RankLexical)
	// String comparison puts "9.8" above "10.2".
	assert.Equal(t, []string{"9.8", "10.2", "0.7"}, scoresOf(rs))
}

func TestRank_NonNumericLast(t *testing.T) {
	rs := scored("NA", "0.1", ".", "0.5", "NaN")
	Rank(rs, RankNumeric)
	assert.Equal(t, []string{"0.5", "0.1", "NA", ".", "NaN"}, scoresOf(rs))
}

func TestRank_StableTies(t *testing.T) {
	rs := []RankedResult{
		{Score: "0.5", ID: "first"},
		{Score: "0.9", ID: "top"},
		{Score: "0.50", ID: "second"},
		{Score: "0.5", ID: "third"},
	}
	Rank(rs, RankNumeric)

	ids := make([]string, len(rs))
	for i, r := range rs {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"top", "first", "second", "third"}, ids)
}

func TestParseRankOrder(t *testing.T) {
	o, err := ParseRankOrder("")
	require.NoError(t, err)
	assert.Equal(t, RankNumeric, o)

	o, err = ParseRankOrder("lexical")
	require.NoError(t, err)
	assert.Equal(t, RankLexical, o)

	_, err = ParseRankOrder("alphabetical")
	assert.Error(t, err)
}

func TestParseScore(t *testing.T) {
	v, ok := ParseScore("0.7")
	assert.True(t, ok)
	assert.InDelta(t, 0.7, v, 1e-12)

	_, ok = ParseScore("Inf")
	assert.False(t, ok)
	_, ok = ParseScore("")
	assert.False(t, ok)
}
