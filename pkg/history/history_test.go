package history

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vantage-labs/codescout/pkg/exchange"
)

func TestBuildIncludesFunctionCallReturnPairs(t *testing.T) {
	conv := &exchange.Conversation{}
	ex := exchange.NewExchange(exchange.ParsedQuery{Target: "where is the lexer"})
	step := ex.AppendStep(exchange.StepPath, "lexer", nil)
	step.Response = "found pkg/lexer/lexer.go"
	ex.Summary = "The lexer lives in pkg/lexer."
	conv.Exchanges = append(conv.Exchanges, ex)

	msgs := Build(conv)
	require.Len(t, msgs, 4) // user, function_call, function_return, assistant
	require.Contains(t, msgs[0].Content, "Call a function. Do not answer.")
	require.Contains(t, msgs[1].Content, `"name":"path"`)
	require.Contains(t, msgs[1].Content, "lexer")
	require.Contains(t, msgs[2].Content, "found pkg/lexer/lexer.go")
	require.Equal(t, "The lexer lives in pkg/lexer.", msgs[3].Content)
}

func TestBuildUtterLimitsToLastFive(t *testing.T) {
	conv := &exchange.Conversation{}
	for i := 0; i < 7; i++ {
		ex := exchange.NewExchange(exchange.ParsedQuery{Target: "q"})
		ex.Article = "a"
		conv.Exchanges = append(conv.Exchanges, ex)
	}
	utter := BuildUtter(conv)
	require.Len(t, utter, 5)
}
