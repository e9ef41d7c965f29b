package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vantage-labs/codescout/pkg/analytics"
	"github.com/vantage-labs/codescout/pkg/exchange"
	"github.com/vantage-labs/codescout/pkg/index"
	"github.com/vantage-labs/codescout/pkg/llmgateway"
	"github.com/vantage-labs/codescout/pkg/tokens"
)

const (
	procLineTokenBudget   = 15_400
	procMaxChunkLen       = 20 // max-chunk-line-length rule
	procMergeDistance     = 10 // chunk-merge-distance rule
	procMaxConcurrentRead = 10
	procMaxConcurrentLLM  = 5

	defaultProcModel     = "gpt-3.5-turbo-16k"
	procFrequencyPenalty = 0.1
)

// ProcTool implements spec.md §4.5: per-file relevance extraction. Model
// defaults to the lower-cost 16k-context chat model when unset.
type ProcTool struct {
	Index   index.Index
	Gateway *llmgateway.Client
	Counter *tokens.Counter
	Model   string
	Sink    analytics.Sink
}

func (t *ProcTool) model() string {
	if t.Model != "" {
		return t.Model
	}
	return defaultProcModel
}

type procFileResult struct {
	Alias  int         `json:"alias"`
	Chunks []procChunk `json:"chunks"`
}

type procChunk struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Code  string `json:"code"`
}

// Run resolves every alias to a path (failing the turn if any is out of
// range), reads and processes up to procMaxConcurrentRead files
// concurrently with up to procMaxConcurrentLLM concurrent LLM calls,
// silently drops per-file failures, appends non-empty chunks to current,
// and returns the JSON response pairing each file's chunks with its alias.
func (t *ProcTool) Run(ctx context.Context, conv *exchange.Conversation, current *exchange.Exchange, query string, aliases []int) (string, error) {
	paths := make([]string, len(aliases))
	for i, alias := range aliases {
		p, ok := conv.PathAt(alias)
		if !ok {
			return "", fmt.Errorf("tools: proc alias %d out of range", alias)
		}
		paths[i] = p
	}

	readSem := make(chan struct{}, procMaxConcurrentRead)
	llmSem := make(chan struct{}, procMaxConcurrentLLM)

	var mu sync.Mutex
	var results []procFileResult

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		path, alias := path, aliases[i]
		g.Go(func() error {
			readSem <- struct{}{}
			content, err := t.Index.GetFileContent(gctx, path)
			<-readSem
			if err != nil {
				return nil // per-file failures are silently dropped
			}

			llmSem <- struct{}{}
			chunks, err := t.processFile(gctx, query, content)
			<-llmSem
			if err != nil {
				return nil
			}

			mu.Lock()
			results = append(results, procFileResult{Alias: alias, Chunks: restamp(chunks)})
			for _, c := range chunks {
				current.AppendChunk(exchange.CodeChunk{
					Path:      path,
					Alias:     alias,
					Snippet:   c.Code,
					StartLine: c.Start,
					EndLine:   c.End,
				})
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", fmt.Errorf("tools: proc: %w", err)
	}

	sort.Slice(results, func(a, b int) bool { return results[a].Alias < results[b].Alias })

	if t.Sink != nil {
		t.Sink.Record(analytics.Event{Name: "proc", Fields: map[string]any{
			"query": query,
			"files": len(paths),
		}})
	}

	raw, err := json.Marshal(results)
	if err != nil {
		return "", fmt.Errorf("tools: encoding proc results: %w", err)
	}
	return string(raw), nil
}

func (t *ProcTool) processFile(ctx context.Context, query, content string) ([]procChunk, error) {
	lines := strings.Split(content, "\n")
	numbered := make([]string, len(lines))
	for i, l := range lines {
		numbered[i] = fmt.Sprintf("%d %s", i+1, l)
	}
	numbered = t.Counter.TrimLinesByTokens(numbered, procLineTokenBudget)

	prompt := fmt.Sprintf(procPromptTemplate, query, strings.Join(numbered, "\n"))
	if t.Sink != nil {
		t.Sink.Record(analytics.Event{Name: "proc_file", Fields: map[string]any{
			"query":      query,
			"raw_prompt": analytics.TruncatePrompt(prompt),
		}})
	}

	var text strings.Builder
	err := t.Gateway.Stream(ctx, llmgateway.ChatRequest{
		Messages:         []tokens.Message{{Role: tokens.RoleUser, Content: prompt}},
		Model:            t.model(),
		FrequencyPenalty: procFrequencyPenalty,
	}, func(f llmgateway.Fragment) bool {
		text.WriteString(f.Text)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("tools: proc LLM call: %w", err)
	}

	ranges, err := parseRanges(text.String())
	if err != nil {
		return nil, err
	}
	ranges = capAndMerge(ranges)

	return materialise(ranges, lines), nil
}

const procPromptTemplate = `A user is searching a codebase for: %q

Below is the file content with 1-based line numbers. Reply with a JSON
array of the line ranges most relevant to the query, as
[{"start": N, "end": M}, ...]. Reply with JSON only.

%s`

type rawRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func parseRanges(text string) ([]rawRange, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("tools: proc response has no JSON array: %s", truncate(text, 200))
	}

	var ranges []rawRange
	if err := json.Unmarshal([]byte(text[start:end+1]), &ranges); err != nil {
		return nil, fmt.Errorf("tools: proc response is not valid JSON: %w", err)
	}

	out := ranges[:0]
	for _, r := range ranges {
		if r.Start > 0 && r.End > 0 {
			out = append(out, r)
		}
	}
	return out, nil
}

// capAndMerge caps each range's end to start+procMaxChunkLen, sorts and
// deduplicates, then merges ranges whose gap is within procMergeDistance.
func capAndMerge(ranges []rawRange) []rawRange {
	for i := range ranges {
		if ranges[i].End > ranges[i].Start+procMaxChunkLen {
			ranges[i].End = ranges[i].Start + procMaxChunkLen
		}
	}

	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })

	seen := make(map[rawRange]bool)
	deduped := ranges[:0]
	for _, r := range ranges {
		if seen[r] {
			continue
		}
		seen[r] = true
		deduped = append(deduped, r)
	}
	ranges = deduped

	if len(ranges) == 0 {
		return ranges
	}

	out := []rawRange{ranges[0]}
	for _, next := range ranges[1:] {
		last := &out[len(out)-1]
		if last.End+procMergeDistance >= next.Start {
			// The merged range always takes the later end, even when the
			// later range is fully contained in the earlier one.
			last.End = next.End
			continue
		}
		out = append(out, next)
	}
	return out
}

func materialise(ranges []rawRange, lines []string) []procChunk {
	out := make([]procChunk, 0, len(ranges))
	for _, r := range ranges {
		lo, hi := r.Start, r.End
		if lo < 1 {
			lo = 1
		}
		if hi > len(lines) {
			hi = len(lines)
		}
		if lo > hi {
			continue
		}
		out = append(out, procChunk{Start: lo, End: hi, Code: strings.Join(lines[lo-1:hi-1], "\n")})
	}
	return out
}

// restamp re-numbers each chunk's lines for the planner-visible JSON
// response; the exchange keeps the unnumbered snippet.
func restamp(chunks []procChunk) []procChunk {
	out := make([]procChunk, len(chunks))
	for i, c := range chunks {
		lines := strings.Split(strings.TrimRight(c.Code, "\n"), "\n")
		var b strings.Builder
		for j, l := range lines {
			fmt.Fprintf(&b, "%d %s\n", c.Start+j, l)
		}
		out[i] = procChunk{Start: c.Start, End: c.End, Code: b.String()}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
