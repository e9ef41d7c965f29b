package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrimHistoryRegression(t *testing.T) {
	c := NewCounter("gpt-4")
	long := strings.Repeat("long string ", 2000)

	msgs := []Message{
		{Role: RoleSystem, Content: "foo"},
		{Role: RoleUser, Content: "bar"},
		{Role: RoleAssistant, Content: "baz"},
		{Role: RoleUser, Content: long},
		{Role: RoleAssistant, Content: "quux"},
		{Role: RoleUser, Content: "fred"},
		{Role: RoleAssistant, Content: "thud"},
		{Role: RoleUser, Content: long},
		{Role: RoleUser, Content: "corge"},
	}

	// contextLimit sits a little over the headroom above what the history
	// would cost without one long message, so trimming must hide the
	// oldest messages up to and including the first long one, and stops
	// there: once that long message is hidden the freed tokens put the
	// budget back over the 2048 headroom.
	contextLimit := c.CountMessages(msgs) - c.Count(long) + 2300
	out, err := c.TrimHistory(msgs, contextLimit, 2048)
	require.NoError(t, err)
	require.Len(t, out, len(msgs))

	require.Equal(t, "foo", out[0].Content) // system preserved
	require.Equal(t, Hidden, out[1].Content)
	require.Equal(t, Hidden, out[2].Content)
	require.Equal(t, Hidden, out[3].Content)
	require.Equal(t, "quux", out[4].Content)
	require.Equal(t, "fred", out[5].Content)
	require.Equal(t, "thud", out[6].Content)
	require.Equal(t, long, out[7].Content)
	require.Equal(t, "corge", out[8].Content)
}

func TestTrimHistoryFailsWhenNothingLeftToTrim(t *testing.T) {
	c := NewCounter("gpt-4")
	msgs := []Message{{Role: RoleSystem, Content: "foo"}}
	_, err := c.TrimHistory(msgs, 0, 1_000_000)
	require.Error(t, err)
}

func TestTrimLinesByTokens(t *testing.T) {
	c := NewCounter("gpt-4")
	lines := []string{
		"fn main() {",
		"    one();",
		"    two();",
		"    three();",
		"    four();",
		"    five();",
		"    six();",
		"}",
	}
	out := c.TrimLinesByTokens(lines, 15)
	require.Equal(t, lines[:5], out)
}

func TestTrimLinesByTokensKeepsWholeListUnderBudget(t *testing.T) {
	c := NewCounter("gpt-4")
	lines := []string{"a", "b"}
	require.Equal(t, lines, c.TrimLinesByTokens(lines, 10_000))
}

func TestLimitTokensUTF8Boundary(t *testing.T) {
	c := NewCounter("gpt-4")
	text := "fn 🚨() {}"

	cases := []struct {
		max  int
		want string
	}{
		{1, "fn"},
		{2, "fn"},
		{3, "fn"},
		{4, "fn 🚨"},
		{6, "fn 🚨() {}"},
	}
	for _, tc := range cases {
		got := c.LimitTokens(text, tc.max)
		require.Equal(t, tc.want, got, "max=%d", tc.max)
	}
}
