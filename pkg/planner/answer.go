package planner

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/vantage-labs/codescout/pkg/canon"
	"github.com/vantage-labs/codescout/pkg/exchange"
	"github.com/vantage-labs/codescout/pkg/history"
	"github.com/vantage-labs/codescout/pkg/index"
	"github.com/vantage-labs/codescout/pkg/llmgateway"
	"github.com/vantage-labs/codescout/pkg/markdown"
	"github.com/vantage-labs/codescout/pkg/tokens"
)

// answerPromptHeadroom is the additional headroom answer_context reserves
// on top of trim_history's headroom, per spec.md §4.9 step 4 / §9.
const answerPromptHeadroom = 2500

// answerSystemTemplate wraps the assembled context document with the
// answer model's instructions. The closing footnote is what Split parses
// the streamed response against.
const answerSystemTemplate = `You are a code-search assistant. Answer the user's question about their
codebase in grounded markdown prose, citing the file paths and line
numbers from the context below. Do not invent code that is not shown.

End your response with a single markdown footnote of the form:

[^summary]: <a one-sentence follow-up prompt summarising your answer>

%s`

// ArticleUpdate is one incremental streamed update during answer synthesis.
type ArticleUpdate struct {
	Article  string
	Complete bool
	Summary  string // set only once Complete
}

// AnswerSynthesizer implements spec.md §4.9: the tool bound to the Answer
// action. It filters and canonicalises the cited paths' evidence, builds
// the context document, and streams the final prose answer.
type AnswerSynthesizer struct {
	Gateway      *llmgateway.Client
	Counter      *tokens.Counter
	Files        index.FileStore
	Model        string
	ContextLimit int
	AliasPolicy  AliasPolicy
	RandomIndex  func(n int) int // injected for deterministic fallback-summary selection in tests
}

// Synthesize runs the full answer pipeline and calls yield for every
// incremental update, in order. The final yield has Complete=true and a
// non-empty Summary (from the footnote split, or a fallback phrase).
func (a *AnswerSynthesizer) Synthesize(ctx context.Context, conv *exchange.Conversation, current *exchange.Exchange, requestedAliases []int, yield func(ArticleUpdate)) error {
	allPaths := conv.AllPaths()
	aliases := FilterAliases(requestedAliases, allPaths, a.AliasPolicy)

	files, err := a.loadFiles(ctx, aliases, allPaths)
	if err != nil {
		return err
	}

	chunksByAlias := chunksForAliases(conv, aliases)
	canonical := canon.Canonicalise(a.Counter, a.ContextLimit, chunksByAlias, files)

	contextDoc := buildContextDocument(aliases, allPaths, canonical, a.Counter, a.ContextLimit)

	utter := history.ToMessages(history.BuildUtter(conv))
	sys := tokens.Message{Role: tokens.RoleSystem, Content: fmt.Sprintf(answerSystemTemplate, contextDoc)}
	msgs := append([]tokens.Message{sys}, utter...)

	var full strings.Builder
	err = a.Gateway.Stream(ctx, llmgateway.ChatRequest{Messages: msgs, Model: a.Model}, func(f llmgateway.Fragment) bool {
		full.WriteString(f.Text)
		if article, _, ok := markdown.Split(full.String()); ok {
			yield(ArticleUpdate{Article: article})
		} else {
			yield(ArticleUpdate{Article: full.String()})
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("planner: answer synthesis: %w", err)
	}

	article, summary, ok := markdown.Split(full.String())
	if !ok {
		article = full.String()
		idx := 0
		if a.RandomIndex != nil {
			idx = a.RandomIndex(len(markdown.FallbackSummaries))
		}
		summary = markdown.FallbackSummaries[idx]
	}

	current.Article = article
	current.Summary = summary
	yield(ArticleUpdate{Article: article, Complete: true, Summary: summary})
	return nil
}

func (a *AnswerSynthesizer) loadFiles(ctx context.Context, aliases []int, allPaths []string) (map[string]canon.FileLines, error) {
	out := make(map[string]canon.FileLines)
	for _, alias := range aliases {
		if alias < 0 || alias >= len(allPaths) {
			continue
		}
		path := allPaths[alias]
		if _, ok := out[path]; ok {
			continue
		}
		content, err := a.Files.GetFileContent(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("planner: loading %q for answer context: %w", path, err)
		}
		out[path] = strings.Split(content, "\n")
	}
	return out, nil
}

func chunksForAliases(conv *exchange.Conversation, aliases []int) []exchange.CodeChunk {
	wanted := make(map[int]bool, len(aliases))
	for _, a := range aliases {
		wanted[a] = true
	}

	var out []exchange.CodeChunk
	for _, ex := range conv.Exchanges {
		for _, c := range ex.Chunks {
			if wanted[c.Alias] {
				out = append(out, c)
			}
		}
	}
	return out
}

// buildContextDocument assembles spec.md §4.9 step 3's document: a PATHS
// section, then a CODE CHUNKS section admitting chunks most-recent-first
// until the per-chunk token cost would cross the answer-prompt headroom.
func buildContextDocument(aliases []int, allPaths []string, chunks []exchange.CodeChunk, counter *tokens.Counter, contextLimit int) string {
	var b strings.Builder
	b.WriteString("##### PATHS #####\n")
	for _, alias := range aliases {
		if alias < 0 || alias >= len(allPaths) {
			continue
		}
		fmt.Fprintf(&b, "%d: %s\n", alias, allPaths[alias])
	}

	admitted := admitMostRecentFirst(chunks, counter, contextLimit-answerPromptHeadroom)
	if len(admitted) == 0 {
		return b.String()
	}

	sort.SliceStable(admitted, func(i, j int) bool {
		if admitted[i].Alias != admitted[j].Alias {
			return admitted[i].Alias < admitted[j].Alias
		}
		return admitted[i].StartLine < admitted[j].StartLine
	})

	b.WriteString("\n##### CODE CHUNKS #####\n")
	for _, c := range admitted {
		fmt.Fprintf(&b, "### path alias: %d ###\n", c.Alias)
		writeNumberedSnippet(&b, c)
	}
	return b.String()
}

func writeNumberedSnippet(b *strings.Builder, c exchange.CodeChunk) {
	lines := strings.Split(c.Snippet, "\n")
	for i, l := range lines {
		fmt.Fprintf(b, "%d %s\n", c.StartLine+i, l)
	}
}

// admitMostRecentFirst walks chunks from the end (most recently appended)
// and keeps admitting until the running token total would cross budget.
func admitMostRecentFirst(chunks []exchange.CodeChunk, counter *tokens.Counter, budget int) []exchange.CodeChunk {
	var admitted []exchange.CodeChunk
	total := 0
	for i := len(chunks) - 1; i >= 0; i-- {
		cost := counter.Count(chunks[i].Snippet)
		if total+cost >= budget {
			break
		}
		total += cost
		admitted = append(admitted, chunks[i])
	}
	return admitted
}
