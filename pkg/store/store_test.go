package store

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vantage-labs/codescout/pkg/exchange"
)

func TestWireRoundTripPreservesConversation(t *testing.T) {
	userID := "user-1"
	threadID := uuid.New()

	conv := &exchange.Conversation{UserID: userID, ThreadID: threadID, RepoRef: "org/repo"}
	ex := exchange.NewExchange(exchange.ParsedQuery{Target: "find the parser", RepoRef: "org/repo"})
	ex.Steps = append(ex.Steps, &exchange.SearchStep{Kind: exchange.StepPath, Query: "find the parser", Response: "found 2 files"})
	ex.Paths = []string{"pkg/parser/parser.go"}
	ex.Chunks = []exchange.CodeChunk{{Path: "pkg/parser/parser.go", Snippet: "func Parse() {}"}}
	ex.Article = "The parser lives in pkg/parser."
	ex.Summary = "parser overview"
	ex.Complete = true
	conv.Exchanges = append(conv.Exchanges, ex)

	wire := toWire(conv)
	require.Equal(t, "org/repo", wire.RepoRef)
	require.Len(t, wire.Exchanges, 1)
	require.Len(t, wire.Exchanges[0].Steps, 1)

	back := fromWire(userID, threadID, wire)
	require.Equal(t, userID, back.UserID)
	require.Equal(t, threadID, back.ThreadID)
	require.Equal(t, conv.RepoRef, back.RepoRef)
	require.Len(t, back.Exchanges, 1)

	gotEx := back.Exchanges[0]
	require.Equal(t, ex.ID, gotEx.ID)
	require.Equal(t, ex.Paths, gotEx.Paths)
	require.Equal(t, ex.Chunks, gotEx.Chunks)
	require.Equal(t, ex.Article, gotEx.Article)
	require.Equal(t, ex.Summary, gotEx.Summary)
	require.True(t, gotEx.Complete)
	require.Len(t, gotEx.Steps, 1)
	require.Equal(t, ex.Steps[0].Query, gotEx.Steps[0].Query)
	require.Equal(t, ex.Steps[0].Response, gotEx.Steps[0].Response)
}

func TestFromWireMarksIncompleteWhenNoArticleOrSummary(t *testing.T) {
	threadID := uuid.New()
	w := wireConversation{
		RepoRef: "org/repo",
		Exchanges: []*wireExchange{
			{ID: uuid.New(), Query: exchange.ParsedQuery{Target: "x"}},
		},
	}
	conv := fromWire("user-1", threadID, w)
	require.False(t, conv.Exchanges[0].Complete)
}

func TestErrNotFoundIsDistinctSentinel(t *testing.T) {
	require.ErrorIs(t, ErrNotFound, ErrNotFound)
	require.NotEqual(t, "", ErrNotFound.Error())
}
