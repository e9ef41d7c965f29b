package index

import (
	"context"
	"fmt"

	"github.com/philippgille/chromem-go"
)

// ChromemConfig configures the default in-process semantic index backend.
type ChromemConfig struct {
	PersistPath string
	Collection  string
	Compress    bool
}

// ChromemIndex adapts a chromem-go collection to the SemanticIndex
// interface. Grounded on pkg/vector/chromem.go's ChromemProvider: this
// adapter keeps the same embedded, persisted-to-disk vector store idiom
// but narrows the surface to the single read-path this spec's tools need.
type ChromemIndex struct {
	collection *chromem.Collection
}

// NewChromemIndex opens (or creates) a persisted chromem database and
// returns a SemanticIndex backed by the named collection.
func NewChromemIndex(cfg ChromemConfig) (*ChromemIndex, error) {
	var db *chromem.DB
	var err error
	if cfg.PersistPath != "" {
		db, err = chromem.NewPersistentDB(cfg.PersistPath, cfg.Compress)
	} else {
		db = chromem.NewDB()
	}
	if err != nil {
		return nil, fmt.Errorf("index: opening chromem db: %w", err)
	}

	coll, err := db.GetOrCreateCollection(cfg.Collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("index: creating collection %q: %w", cfg.Collection, err)
	}

	return &ChromemIndex{collection: coll}, nil
}

// Search performs a nearest-neighbour query against the collection. offset
// is applied by over-fetching and slicing, since chromem-go has no native
// offset parameter.
func (c *ChromemIndex) Search(ctx context.Context, query string, limit, offset int) ([]SearchHit, error) {
	n := limit + offset
	if n <= 0 {
		n = 1
	}
	if n > c.collection.Count() {
		n = c.collection.Count()
	}
	if n == 0 {
		return nil, nil
	}

	results, err := c.collection.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("index: chromem query: %w", err)
	}

	if offset >= len(results) {
		return nil, nil
	}
	results = results[offset:]
	if len(results) > limit {
		results = results[:limit]
	}

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, SearchHit{
			RelativePath: r.Metadata["path"],
			Snippet:      r.Content,
			StartLine:    atoi(r.Metadata["start_line"]),
			EndLine:      atoi(r.Metadata["end_line"]),
		})
	}
	return hits, nil
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
