// Package tools implements the retrieval tool executors the planner
// dispatches to: path, code (with HyDE), and proc, which share alias
// allocation via exchange.Conversation. The answer action is handled by
// pkg/planner.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vantage-labs/codescout/pkg/analytics"
	"github.com/vantage-labs/codescout/pkg/exchange"
	"github.com/vantage-labs/codescout/pkg/index"
)

const (
	pathFuzzyLimit    = 50
	pathSemanticLimit = 30
)

// PathTool implements spec.md §4.3: lexical fuzzy path match first,
// falling back to semantic search only when the lexical pass is empty.
type PathTool struct {
	Index index.Index
	Sink  analytics.Sink
}

type pathResult struct {
	Path  string `json:"path"`
	Alias int    `json:"alias"`
}

// Run resolves query to a deduplicated list of (path, alias) pairs,
// assigning a fresh alias to every newly discovered path via
// conv.GetPathAlias, and returns the JSON response fed back to the LLM.
func (t *PathTool) Run(ctx context.Context, conv *exchange.Conversation, current *exchange.Exchange, query string) (string, error) {
	isSemantic := false

	paths, err := t.Index.FuzzyMatch(ctx, query, pathFuzzyLimit)
	if err != nil {
		return "", fmt.Errorf("tools: path fuzzy match: %w", err)
	}
	paths = dedupe(paths)

	if len(paths) == 0 {
		isSemantic = true
		hits, err := t.Index.Search(ctx, query, pathSemanticLimit, 0)
		if err != nil {
			return "", fmt.Errorf("tools: path semantic fallback: %w", err)
		}
		var semPaths []string
		for _, h := range hits {
			semPaths = append(semPaths, h.RelativePath)
		}
		paths = dedupe(semPaths)
	}

	results := make([]pathResult, 0, len(paths))
	for _, p := range paths {
		alias := conv.GetPathAlias(current, p)
		results = append(results, pathResult{Path: p, Alias: alias})
	}

	if t.Sink != nil {
		t.Sink.Record(analytics.Event{Name: "path_search", Fields: map[string]any{
			"query":       query,
			"is_semantic": isSemantic,
			"results":     len(results),
		}})
	}

	raw, err := json.Marshal(results)
	if err != nil {
		return "", fmt.Errorf("tools: encoding path results: %w", err)
	}
	return string(raw), nil
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
