package canon

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vantage-labs/codescout/pkg/exchange"
	"github.com/vantage-labs/codescout/pkg/tokens"
)

func TestMergeOverlapping(t *testing.T) {
	cases := []struct {
		name      string
		a, b      span
		want      span
		wantMerge bool
	}{
		{"contained", span{10, 30}, span{15, 20}, span{10, 30}, true},
		{"extends", span{10, 20}, span{15, 25}, span{10, 25}, true},
		{"disjoint", span{10, 12}, span{40, 42}, span{40, 42}, false},
		{"touching", span{10, 20}, span{20, 25}, span{10, 25}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, merged := MergeOverlapping(tc.a, tc.b)
			require.Equal(t, tc.wantMerge, merged)
			require.Equal(t, tc.want, got)
		})
	}
}

func fileOf(n int, prefix string) FileLines {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = prefix
	}
	return lines
}

func TestCanonicaliseIdempotent(t *testing.T) {
	counter := tokens.NewCounter("gpt-4")
	files := map[string]FileLines{"a.go": fileOf(200, "line of code")}

	chunks := []exchange.CodeChunk{
		{Path: "a.go", Alias: 0, StartLine: 10, EndLine: 12},
		{Path: "a.go", Alias: 0, StartLine: 11, EndLine: 20},
	}

	first := Canonicalise(counter, 8000, chunks, files)
	second := Canonicalise(counter, 8000, first, files)

	require.ElementsMatch(t, first, second)
}

func TestCanonicaliseMergesOverlaps(t *testing.T) {
	counter := tokens.NewCounter("gpt-4")
	files := map[string]FileLines{"a.go": fileOf(100, "x")}

	chunks := []exchange.CodeChunk{
		{Path: "a.go", Alias: 0, StartLine: 10, EndLine: 12},
		{Path: "a.go", Alias: 0, StartLine: 11, EndLine: 20},
	}
	out := Canonicalise(counter, 0, chunks, files) // contextSize 0 disables growth
	require.Len(t, out, 1)
	require.Equal(t, 10, out[0].StartLine)
	require.Equal(t, 20, out[0].EndLine)
}
