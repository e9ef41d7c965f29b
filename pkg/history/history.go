// Package history reconstructs the LLM-visible dialogue from a
// conversation's exchange list: the full function-calling history used by
// the planner, and the reduced "utter history" used for final answer
// synthesis.
package history

import (
	"encoding/json"
	"fmt"

	"github.com/vantage-labs/codescout/pkg/exchange"
	"github.com/vantage-labs/codescout/pkg/tokens"
)

const callToAction = "Call a function. Do not answer."

// maxUtterExchanges bounds the utter history to the last N exchanges.
const maxUtterExchanges = 5

// Build reconstructs the full dialogue: for each exchange, a user message
// with the call-to-action suffix, then one function_call/function_return
// pair per search step (paths re-encoded as alias indices), then an
// assistant message if the exchange completed with a summary.
func Build(conv *exchange.Conversation) []tokens.Message {
	var out []tokens.Message
	for _, ex := range conv.Exchanges {
		out = append(out, tokens.Message{
			Role:    tokens.RoleUser,
			Content: fmt.Sprintf("%s\n%s", ex.Query.Target, callToAction),
		})

		for _, step := range ex.Steps {
			out = append(out, tokens.Message{
				Role:    tokens.RoleFunctionCall,
				Content: stepCall(step),
			})
			out = append(out, tokens.Message{
				Role:    tokens.RoleFunctionReturn,
				Content: fmt.Sprintf("%s\n%s", step.Response, callToAction),
			})
		}

		if ex.Summary != "" {
			out = append(out, tokens.Message{Role: tokens.RoleAssistant, Content: ex.Summary})
		}
	}
	return out
}

// stepCall renders the function-call message content as the {name,
// arguments} pair the gateway's function-calling wire format uses, with
// proc paths re-encoded as alias indices.
func stepCall(step *exchange.SearchStep) string {
	var args any
	switch step.Kind {
	case exchange.StepProc:
		args = map[string]any{"query": step.Query, "paths": step.Paths}
	default:
		args = map[string]any{"query": step.Query}
	}
	argsRaw, _ := json.Marshal(args)
	raw, _ := json.Marshal(map[string]string{"name": string(step.Kind), "arguments": string(argsRaw)})
	return string(raw)
}

// UtterExchange is one (query, answer) pair from the utter history.
type UtterExchange struct {
	Query  string
	Answer string
}

// BuildUtter returns the user/assistant-only subset of the dialogue used
// for final answer synthesis: at most the last maxUtterExchanges
// exchanges, in chronological order, each paired with its completed
// article (the exchange's Article field once streaming finished).
func BuildUtter(conv *exchange.Conversation) []UtterExchange {
	exchanges := conv.Exchanges
	if len(exchanges) > maxUtterExchanges {
		exchanges = exchanges[len(exchanges)-maxUtterExchanges:]
	}

	out := make([]UtterExchange, 0, len(exchanges))
	for _, ex := range exchanges {
		out = append(out, UtterExchange{Query: ex.Query.Target, Answer: ex.Article})
	}
	return out
}

// ToMessages renders a utter history as plain user/assistant messages,
// suitable for appending to the answer model's prompt.
func ToMessages(utter []UtterExchange) []tokens.Message {
	out := make([]tokens.Message, 0, len(utter)*2)
	for _, u := range utter {
		out = append(out, tokens.Message{Role: tokens.RoleUser, Content: u.Query})
		if u.Answer != "" {
			out = append(out, tokens.Message{Role: tokens.RoleAssistant, Content: u.Answer})
		}
	}
	return out
}
