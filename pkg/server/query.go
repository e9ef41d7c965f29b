package server

import (
	"strings"

	"github.com/vantage-labs/codescout/pkg/exchange"
)

// DefaultQueryParser extracts repo/branch filter tokens of the form
// "repo:value" / "branch:value" from the raw query text, treating the
// remaining words as the plain-text target. This is the minimal parser
// spec.md §3/§7 requires ("a target string plus filters such as
// repository reference and optional branch"); a production deployment
// would typically replace this with a richer query-understanding model.
type DefaultQueryParser struct{}

func (DefaultQueryParser) Parse(raw string) (exchange.ParsedQuery, error) {
	var target []string
	var q exchange.ParsedQuery

	for _, field := range strings.Fields(raw) {
		switch {
		case strings.HasPrefix(field, "repo:"):
			q.RepoRef = strings.TrimPrefix(field, "repo:")
		case strings.HasPrefix(field, "branch:"):
			q.Branch = strings.TrimPrefix(field, "branch:")
		default:
			target = append(target, field)
		}
	}

	q.Target = strings.TrimSpace(strings.Join(target, " "))
	return q, nil
}
