// Package markdown splits a streamed LLM response into its prose article
// and a trailing summary footnote, and supplies the fallback summary
// phrases used when no such footnote is present.
package markdown

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// FallbackSummaries are the phrases chosen uniformly at random when the
// model's response contains no [^summary] footnote by the time streaming
// completes.
var FallbackSummaries = []string{
	"A summary of the code above.",
	"Here's what the referenced code does.",
	"An overview of the relevant code.",
}

var md = goldmark.New(goldmark.WithExtensions(extension.Footnote))

// sentinelRef is prepended to the body so a bare "[^summary]: ..." footnote
// definition becomes addressable: goldmark's footnote extension only
// renders (and exposes) definitions that have at least one reference.
const sentinelRef = "[^summary]\n\n"

// Split attempts to separate body into (article, summary) using the
// markdown footnote named "summary". ok is false if no such footnote is
// present, in which case article/summary are empty and the caller should
// fall back to FallbackSummaries.
func Split(body string) (article, summary string, ok bool) {
	source := []byte(sentinelRef + body)
	doc := md.Parser().Parse(text.NewReader(source))

	var footnoteDef *east.FootnoteList
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if list, isList := n.(*east.FootnoteList); isList {
			footnoteDef = list
		}
		return ast.WalkContinue, nil
	})
	if footnoteDef == nil {
		return "", "", false
	}

	var summaryNode *east.Footnote
	for c := footnoteDef.FirstChild(); c != nil; c = c.NextSibling() {
		fn, isFn := c.(*east.Footnote)
		if !isFn {
			continue
		}
		if string(fn.Ref) == "summary" {
			summaryNode = fn
			break
		}
	}
	if summaryNode == nil {
		return "", "", false
	}

	first := summaryNode.FirstChild()
	if first == nil {
		return "", "", false
	}
	var buf bytes.Buffer
	extractText(first, source, &buf)
	summary = string(bytes.TrimRight(buf.Bytes(), "\n"))

	// The article is the original body cut at the model's own
	// "[^summary]:" definition, with trailing whitespace trimmed; the
	// definition and anything after it are not part of the prose.
	article = stripFootnoteDefinitionLine(body)

	return article, summary, true
}

// extractText re-slices the original source bytes spanned by n's block
// lines, rather than walking only *ast.Text leaves — inline markup such as
// "**bold text**" is represented structurally (e.g. an ast.Emphasis node
// wrapping a bare Text child), so concatenating Text segments alone would
// silently strip the delimiters. Re-rendering from the block's raw Lines
// mirrors the original's comrak_to_string re-render and preserves the
// literal markup. Used only for the single-paragraph footnote body this
// system expects; nested block structure inside a footnote is not
// supported, in which case it falls back to walking Text leaves.
func extractText(n ast.Node, source []byte, buf *bytes.Buffer) {
	if lined, ok := n.(interface{ Lines() *text.Segments }); ok {
		lines := lined.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(source))
		}
		return
	}
	ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, isText := c.(*ast.Text); isText {
			buf.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
}

func stripFootnoteDefinitionLine(body string) string {
	idx := bytes.Index([]byte(body), []byte("[^summary]:"))
	if idx == -1 {
		return body
	}
	trimmed := bytes.TrimRight([]byte(body[:idx]), "\n \t")
	return string(trimmed)
}

// ParseFailure wraps an unexpected goldmark AST shape encountered while
// extracting the summary footnote; surfaced only for diagnostics, never
// returned from Split (Split degrades to ok=false instead).
type ParseFailure struct{ Reason string }

func (e ParseFailure) Error() string { return fmt.Sprintf("markdown: %s", e.Reason) }
