package index

import (
	"context"
	"sort"
	"strings"
)

// FuzzyPathIndex is a minimal in-memory lexical path matcher: a character
// subsequence scorer over a fixed path list, in the spirit of the source
// system's own fuzzy_path_search. No fuzzy-matching library appears
// anywhere in this project's reference corpus, so this is implemented
// directly rather than reaching for an unvetted ecosystem dependency; see
// DESIGN.md.
type FuzzyPathIndex struct {
	paths []string
}

// NewFuzzyPathIndex builds a matcher over a fixed path list.
func NewFuzzyPathIndex(paths []string) *FuzzyPathIndex {
	return &FuzzyPathIndex{paths: paths}
}

// FuzzyMatch scores every indexed path as a case-insensitive subsequence
// match against query and returns up to limit paths, best score first.
// A path that does not contain query as a subsequence scores zero and is
// excluded.
func (f *FuzzyPathIndex) FuzzyMatch(_ context.Context, query string, limit int) ([]string, error) {
	type scored struct {
		path  string
		score int
	}

	q := strings.ToLower(query)
	var results []scored
	for _, p := range f.paths {
		if score, ok := subsequenceScore(strings.ToLower(p), q); ok {
			results = append(results, scored{path: p, score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.path
	}
	return out, nil
}

// subsequenceScore reports whether query appears as a subsequence of text
// and, if so, a score that rewards contiguous runs and an early first
// match (closer to how a fuzzy path matcher prioritizes likely intent).
func subsequenceScore(text, query string) (int, bool) {
	if query == "" {
		return 0, false
	}

	score := 0
	ti := 0
	run := 0
	firstMatch := -1
	for qi := 0; qi < len(query); qi++ {
		found := false
		for ; ti < len(text); ti++ {
			if text[ti] == query[qi] {
				if firstMatch == -1 {
					firstMatch = ti
				}
				run++
				score += run
				ti++
				found = true
				break
			}
			run = 0
		}
		if !found {
			return 0, false
		}
	}
	if firstMatch > 0 {
		score -= firstMatch / 4
	}
	return score, true
}
