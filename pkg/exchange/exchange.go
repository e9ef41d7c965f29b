// Package exchange defines the append-only conversation state: one
// Exchange per user turn, its search steps, discovered paths, collected
// code chunks, and the streaming article/summary pair, plus the Action
// variant the planner emits and the stable path-alias allocation rule.
package exchange

import (
	"strings"

	"github.com/google/uuid"
)

// ParsedQuery is the semantic query extracted from the user's raw input:
// a plain-text target plus scoping filters.
type ParsedQuery struct {
	Target  string
	RepoRef string
	Branch  string
}

// StepKind tags the variant of a SearchStep.
type StepKind string

const (
	StepPath StepKind = "path"
	StepCode StepKind = "code"
	StepProc StepKind = "proc"
)

// SearchStep is one tool invocation within a turn. It starts with an empty
// Response (state "started") and is mutated in place to fill Response
// (state "replaced"); steps are otherwise append-only.
type SearchStep struct {
	Kind     StepKind
	Query    string
	Paths    []int // proc only: path aliases the step was asked to read
	Response string
}

// Started reports whether the step has not yet received its response.
func (s SearchStep) Started() bool { return s.Response == "" }

// CodeChunk is one contiguous evidence span. Lines are 1-based,
// inclusive-exclusive: [StartLine, EndLine).
type CodeChunk struct {
	Path      string
	Alias     int
	Snippet   string
	StartLine int
	EndLine   int
}

// Empty reports whether the chunk's snippet is blank once trimmed of
// whitespace; such chunks must never be stored.
func (c CodeChunk) Empty() bool {
	return strings.TrimSpace(c.Snippet) == ""
}

// Exchange is everything associated with a single user turn.
type Exchange struct {
	ID       uuid.UUID
	Query    ParsedQuery
	Steps    []*SearchStep
	Paths    []string // ordered by first discovery; index is the alias
	Chunks   []CodeChunk
	Article  string
	Summary  string
	Complete bool
}

// NewExchange creates an empty exchange for the given parsed query.
func NewExchange(q ParsedQuery) *Exchange {
	return &Exchange{ID: uuid.New(), Query: q}
}

// AppendStep appends a new started step and returns it for later mutation.
func (e *Exchange) AppendStep(kind StepKind, query string, paths []int) *SearchStep {
	step := &SearchStep{Kind: kind, Query: query, Paths: paths}
	e.Steps = append(e.Steps, step)
	return step
}

// AppendChunk appends chunk unless it is empty, per the invariant that
// code_chunks never contains an empty chunk. Duplicates are permitted.
func (e *Exchange) AppendChunk(c CodeChunk) {
	if c.Empty() {
		return
	}
	e.Chunks = append(e.Chunks, c)
}

// Conversation is the full path/exchange history for one (user, thread).
type Conversation struct {
	UserID    string
	ThreadID  uuid.UUID
	RepoRef   string
	Exchanges []*Exchange
}

// AllPaths returns the full, conversation-scoped path list in discovery
// order, concatenating every exchange's Paths.
func (c *Conversation) AllPaths() []string {
	var out []string
	for _, ex := range c.Exchanges {
		out = append(out, ex.Paths...)
	}
	return out
}

// GetPathAlias returns the existing alias for p if it has been discovered
// anywhere in the conversation's history (searched in insertion order),
// otherwise appends p to the current (last) exchange's path list and
// returns the new alias. Aliases are thus stable for the lifetime of the
// conversation, never renumbered by subsequent turns.
func (c *Conversation) GetPathAlias(current *Exchange, p string) int {
	idx := 0
	for _, ex := range c.Exchanges {
		for _, path := range ex.Paths {
			if path == p {
				return idx
			}
			idx++
		}
	}
	current.Paths = append(current.Paths, p)
	return idx
}

// PathAt resolves an alias back to its path, searching the full
// conversation-scoped path list. ok is false if alias is out of range.
func (c *Conversation) PathAt(alias int) (string, bool) {
	paths := c.AllPaths()
	if alias < 0 || alias >= len(paths) {
		return "", false
	}
	return paths[alias], true
}

// Truncate removes every exchange after parentID. A nil pointer or the
// all-zeros UUID value both mean "start over": truncate to empty. An
// unknown parentID is a caller error (ok=false). Callers that received no
// parent id at all should skip the call rather than pass nil.
func (c *Conversation) Truncate(parentID *uuid.UUID) bool {
	if parentID == nil || *parentID == uuid.Nil {
		c.Exchanges = nil
		return true
	}
	for i, ex := range c.Exchanges {
		if ex.ID == *parentID {
			c.Exchanges = c.Exchanges[:i+1]
			return true
		}
	}
	return false
}
