package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/vantage-labs/codescout/pkg/analytics"
	"github.com/vantage-labs/codescout/pkg/exchange"
	"github.com/vantage-labs/codescout/pkg/index"
	"github.com/vantage-labs/codescout/pkg/llmgateway"
	"github.com/vantage-labs/codescout/pkg/tokens"
)

const (
	codeDirectLimit = 10
	codeHydeLimit   = 10
)

// hydePrompt is the small templated prompt used to generate a hypothetical
// document that would answer the query, grounded on
// pkg/context/hyde.go's generateHypotheticalDocument.
const hydePrompt = `Write a concise, hypothetical code snippet that would be highly relevant to answer the following query: %q

Respond with a single fenced code block and nothing else.`

// CodeTool implements spec.md §4.4: a direct semantic search plus a HyDE
// pass, concatenated direct-first.
type CodeTool struct {
	Index   index.Index
	Gateway *llmgateway.Client
	HydeLLM string
	Sink    analytics.Sink
}

// Run performs both retrievals, appends non-empty chunks to current, and
// returns the JSON array of all chunks (including empty ones filtered at
// storage time but present in the LLM-visible response) for the planner
// to feed back to the model.
func (t *CodeTool) Run(ctx context.Context, conv *exchange.Conversation, current *exchange.Exchange, query string) (string, error) {
	var chunks []exchange.CodeChunk

	directHits, err := t.Index.Search(ctx, query, codeDirectLimit, 0)
	if err != nil {
		return "", fmt.Errorf("tools: code direct search: %w", err)
	}
	chunks = append(chunks, hitsToChunks(conv, current, directHits)...)

	hydeDoc, err := t.generateHypotheticalDocument(ctx, query)
	if err != nil {
		hydeDoc = "" // HyDE failure degrades to direct-only results, never fatal
	}
	if hydeDoc != "" {
		hydeHits, err := t.Index.Search(ctx, hydeDoc, codeHydeLimit, 0)
		if err == nil {
			chunks = append(chunks, hitsToChunks(conv, current, hydeHits)...)
		}
	}

	for _, c := range chunks {
		current.AppendChunk(c)
	}

	if t.Sink != nil {
		t.Sink.Record(analytics.Event{Name: "code_search", Fields: map[string]any{
			"query":   query,
			"results": len(chunks),
			"hyde":    hydeDoc != "",
		}})
	}

	raw, err := json.Marshal(chunks)
	if err != nil {
		return "", fmt.Errorf("tools: encoding code chunks: %w", err)
	}
	return string(raw), nil
}

// hitsToChunks converts 0-based search hits into 1-based CodeChunks,
// assigning each hit's path a stable alias.
func hitsToChunks(conv *exchange.Conversation, current *exchange.Exchange, hits []index.SearchHit) []exchange.CodeChunk {
	out := make([]exchange.CodeChunk, 0, len(hits))
	for _, h := range hits {
		alias := conv.GetPathAlias(current, h.RelativePath)
		out = append(out, exchange.CodeChunk{
			Path:      h.RelativePath,
			Alias:     alias,
			Snippet:   h.Snippet,
			StartLine: h.StartLine + 1,
			EndLine:   h.EndLine + 1,
		})
	}
	return out
}

var codeFenceRE = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\\n(.*?)```")

func (t *CodeTool) generateHypotheticalDocument(ctx context.Context, query string) (string, error) {
	if t.Gateway == nil || t.HydeLLM == "" {
		return "", fmt.Errorf("tools: HyDE requires a configured gateway and model")
	}

	var text strings.Builder
	err := t.Gateway.Stream(ctx, llmgateway.ChatRequest{
		Messages: []tokens.Message{
			{Role: tokens.RoleSystem, Content: "You are an expert document writer. Generate a hypothetical code snippet that directly answers a given query."},
			{Role: tokens.RoleUser, Content: fmt.Sprintf(hydePrompt, query)},
		},
		Model: t.HydeLLM,
	}, func(f llmgateway.Fragment) bool {
		text.WriteString(f.Text)
		return true
	})
	if err != nil {
		return "", fmt.Errorf("tools: generating hypothetical document: %w", err)
	}

	docs := extractCodeBlocks(text.String())
	if len(docs) == 0 {
		return "", nil
	}
	return docs[0], nil
}

// extractCodeBlocks pulls every fenced code block's inner text out of a
// markdown response, in order.
func extractCodeBlocks(markdown string) []string {
	matches := codeFenceRE.FindAllStringSubmatch(markdown, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}
