package exchange

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestAppendChunkSkipsEmpty(t *testing.T) {
	e := NewExchange(ParsedQuery{Target: "find the parser"})
	e.AppendChunk(CodeChunk{Path: "a.go", Snippet: "   \n\t"})
	require.Empty(t, e.Chunks)

	e.AppendChunk(CodeChunk{Path: "a.go", Snippet: "func main() {}"})
	require.Len(t, e.Chunks, 1)
}

func TestGetPathAliasStableAcrossConversation(t *testing.T) {
	conv := &Conversation{}
	ex1 := NewExchange(ParsedQuery{Target: "q1"})
	conv.Exchanges = append(conv.Exchanges, ex1)

	a1 := conv.GetPathAlias(ex1, "pkg/a.go")
	a2 := conv.GetPathAlias(ex1, "pkg/b.go")
	require.Equal(t, 0, a1)
	require.Equal(t, 1, a2)

	// Same path discovered again in the same exchange returns the same alias.
	require.Equal(t, a1, conv.GetPathAlias(ex1, "pkg/a.go"))

	ex2 := NewExchange(ParsedQuery{Target: "q2"})
	conv.Exchanges = append(conv.Exchanges, ex2)

	// Previously discovered path is found across turns without reassignment.
	require.Equal(t, a1, conv.GetPathAlias(ex2, "pkg/a.go"))

	// A genuinely new path in the second turn gets the next index.
	a3 := conv.GetPathAlias(ex2, "pkg/c.go")
	require.Equal(t, 2, a3)

	for i, p := range []string{"pkg/a.go", "pkg/b.go", "pkg/c.go"} {
		got, ok := conv.PathAt(i)
		require.True(t, ok)
		require.Equal(t, p, got)
	}
}

func TestTruncate(t *testing.T) {
	conv := &Conversation{}
	ex1 := NewExchange(ParsedQuery{Target: "q1"})
	ex2 := NewExchange(ParsedQuery{Target: "q2"})
	conv.Exchanges = []*Exchange{ex1, ex2}

	require.True(t, conv.Truncate(nil))
	require.Empty(t, conv.Exchanges)

	// The all-zeros UUID value also means "start over".
	conv.Exchanges = []*Exchange{ex1, ex2}
	nilID := uuid.Nil
	require.True(t, conv.Truncate(&nilID))
	require.Empty(t, conv.Exchanges)

	conv.Exchanges = []*Exchange{ex1, ex2}
	require.True(t, conv.Truncate(&ex1.ID))
	require.Equal(t, []*Exchange{ex1}, conv.Exchanges)

	unknown := uuid.New()
	require.False(t, conv.Truncate(&unknown))
}

func TestActionWireRoundTrip(t *testing.T) {
	cases := []Action{
		{Kind: ActionPath, Query: "find the lexer"},
		{Kind: ActionCode, Query: "token budgeting"},
		{Kind: ActionProc, Query: "summarize", Paths: []int{0, 2}},
		{Kind: ActionAnswer, Paths: []int{1}},
	}
	for _, a := range cases {
		raw, err := a.MarshalJSON()
		require.NoError(t, err)

		var wire map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(raw, &wire))
		require.Len(t, wire, 1)

		var name string
		for k := range wire {
			name = k
		}
		argsRaw := wire[name]

		got, err := FromFunctionCall(name, string(argsRaw))
		require.NoError(t, err)
		require.Equal(t, a.Kind, got.Kind)
		require.Equal(t, a.Query, got.Query)
		require.Equal(t, a.Paths, got.Paths)
	}
}

func TestFromFunctionCallUnknownTool(t *testing.T) {
	_, err := FromFunctionCall("delete_everything", "{}")
	require.Error(t, err)
}
