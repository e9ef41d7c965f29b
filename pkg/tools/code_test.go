package tools

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vantage-labs/codescout/pkg/index"
)

func TestExtractCodeBlocks(t *testing.T) {
	md := "Here you go:\n```go\nfunc main() {}\n```\nand also\n```\nplain text\n```\n"
	got := extractCodeBlocks(md)
	require.Equal(t, []string{"func main() {}", "plain text"}, got)
}

func TestExtractCodeBlocksNoFence(t *testing.T) {
	require.Empty(t, extractCodeBlocks("no fences here"))
}

func TestHitsToChunksConvertsToOneBased(t *testing.T) {
	conv, ex := newConv()
	hits := []index.SearchHit{
		{RelativePath: "pkg/a.go", Snippet: "func A() {}", StartLine: 0, EndLine: 3},
		{RelativePath: "pkg/b.go", Snippet: "func B() {}", StartLine: 10, EndLine: 12},
	}
	chunks := hitsToChunks(conv, ex, hits)
	require.Len(t, chunks, 2)
	require.Equal(t, 1, chunks[0].StartLine)
	require.Equal(t, 4, chunks[0].EndLine)
	require.Equal(t, 0, chunks[0].Alias)
	require.Equal(t, 11, chunks[1].StartLine)
	require.Equal(t, 13, chunks[1].EndLine)
	require.Equal(t, 1, chunks[1].Alias)
	require.Equal(t, []string{"pkg/a.go", "pkg/b.go"}, ex.Paths)
}

func TestRestampNumbersLines(t *testing.T) {
	chunks := []procChunk{{Start: 5, End: 7, Code: "alpha\nbeta\n"}}
	got := restamp(chunks)
	require.Equal(t, "5 alpha\n6 beta\n", got[0].Code)
	require.Equal(t, 5, got[0].Start)
	require.Equal(t, 7, got[0].End)
}
