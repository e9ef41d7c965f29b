package tools

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCapAndMergeScenario(t *testing.T) {
	ranges := []rawRange{
		{Start: 10, End: 12},
		{Start: 18, End: 20},
		{Start: 40, End: 42},
	}
	got := capAndMerge(ranges)
	require.Equal(t, []rawRange{{Start: 10, End: 20}, {Start: 40, End: 42}}, got)
}

func TestCapAndMergeTakesLaterEndOfContainedRange(t *testing.T) {
	ranges := []rawRange{
		{Start: 5, End: 25},
		{Start: 6, End: 8},
	}
	got := capAndMerge(ranges)
	require.Equal(t, []rawRange{{Start: 5, End: 8}}, got)
}

func TestCapAndMergeCapsOversizedRange(t *testing.T) {
	ranges := []rawRange{{Start: 5, End: 100}}
	got := capAndMerge(ranges)
	require.Equal(t, []rawRange{{Start: 5, End: 25}}, got)
}

func TestParseRangesFiltersNonPositive(t *testing.T) {
	text := `here you go: [{"start": 0, "end": 5}, {"start": 3, "end": -1}, {"start": 3, "end": 8}]`
	got, err := parseRanges(text)
	require.NoError(t, err)
	require.Equal(t, []rawRange{{Start: 3, End: 8}}, got)
}
