// Package canon implements span canonicalisation: growing and merging the
// per-file line ranges collected as evidence during a turn into the final,
// deduplicated set of code chunks presented to the answer model.
package canon

import (
	"sort"
	"strings"

	"github.com/vantage-labs/codescout/pkg/exchange"
	"github.com/vantage-labs/codescout/pkg/tokens"
)

// FileLines is the full text of one file, split into 1-based-addressable
// lines (FileLines[0] is line 1).
type FileLines []string

// span is a [start, end) line range, 1-based inclusive-exclusive.
type span struct {
	start, end int
}

func (s span) tokenText(lines FileLines) string {
	lo, hi := clamp(s.start, s.end, len(lines))
	if lo >= hi {
		return ""
	}
	return strings.Join(lines[lo-1:hi-1], "\n")
}

func clamp(start, end, lineCount int) (int, int) {
	if start < 1 {
		start = 1
	}
	if end > lineCount+1 {
		end = lineCount + 1
	}
	return start, end
}

// Canonicalise grows and merges the spans found in chunks (already filtered
// to the aliases of interest by the caller) against each path's full file
// text, bounded by contextSize: while the total token cost of all current
// spans is under contextSize*0.5, every span grows symmetrically by
// range_step = max(1, 50/totalSpanCount) lines on each side, then
// overlapping/adjacent spans are merged; this repeats until a fixpoint.
func Canonicalise(counter *tokens.Counter, contextSize int, chunks []exchange.CodeChunk, files map[string]FileLines) []exchange.CodeChunk {
	byPath := make(map[string][]span)
	aliasOf := make(map[string]int)
	for _, c := range chunks {
		byPath[c.Path] = append(byPath[c.Path], span{start: c.StartLine, end: c.EndLine})
		aliasOf[c.Path] = c.Alias
	}

	for path, spans := range byPath {
		byPath[path] = mergeAll(spans)
	}

	for {
		total := totalSpans(byPath)
		if total == 0 {
			break
		}

		totalTokens := 0
		for path, spans := range byPath {
			lines := files[path]
			for _, s := range spans {
				totalTokens += counter.Count(s.tokenText(lines))
			}
		}

		changed := false

		if totalTokens < int(float64(contextSize)*0.5) {
			step := 50 / total
			if step < 1 {
				step = 1
			}
			for path, spans := range byPath {
				lineCount := len(files[path])
				grown := make([]span, len(spans))
				for i, s := range spans {
					start, end := s.start-step, s.end+step
					start, end = clamp(start, end, lineCount)
					grown[i] = span{start: start, end: end}
					if grown[i] != s {
						changed = true
					}
				}
				byPath[path] = grown
			}
		}

		for path, spans := range byPath {
			merged := mergeAll(spans)
			if len(merged) != len(spans) {
				changed = true
			}
			byPath[path] = merged
		}

		if !changed {
			break
		}
	}

	var out []exchange.CodeChunk
	for path, spans := range byPath {
		lines := files[path]
		for _, s := range spans {
			snippet := s.tokenText(lines)
			out = append(out, exchange.CodeChunk{
				Path:      path,
				Alias:     aliasOf[path],
				Snippet:   snippet,
				StartLine: s.start,
				EndLine:   s.end,
			})
		}
	}
	return out
}

func totalSpans(byPath map[string][]span) int {
	n := 0
	for _, spans := range byPath {
		n += len(spans)
	}
	return n
}

func mergeAll(spans []span) []span {
	if len(spans) == 0 {
		return spans
	}
	sorted := make([]span, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start < sorted[j].start })

	out := []span{sorted[0]}
	for _, next := range sorted[1:] {
		last := out[len(out)-1]
		if merged, ok := MergeOverlapping(last, next); ok {
			out[len(out)-1] = merged
		} else {
			out = append(out, next)
		}
	}
	return out
}

// MergeOverlapping merges a and b if they overlap or touch, assuming a
// starts no later than b. Two ranges merge iff a.end >= b.start; the merged
// range's end is max(a.end, b.end) so a fully contained b is discarded. ok
// is false if the ranges do not overlap and b is returned unchanged by the
// caller.
func MergeOverlapping(a, b span) (span, bool) {
	if a.end >= b.start {
		end := a.end
		if b.end > end {
			end = b.end
		}
		return span{start: a.start, end: end}, true
	}
	return b, false
}
