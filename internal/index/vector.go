package index

import (
	"context"

	"github.com/dthille/corpusqa/pkg/types"
)

// Vector is a brute-force cosine nearest-neighbor index over passage
// embeddings. Immutable once built. Passages without a precomputed embedding
// are excluded at build time.
type Vector struct {
	passages []*types.PassageRecord
}

// NewVector builds the index over the given passages.
func NewVector(passages []*types.PassageRecord) *Vector {
	withEmbeddings := make([]*types.PassageRecord, 0, len(passages))
	for _, p := range passages {
		if len(p.Embedding) > 0 {
			withEmbeddings = append(withEmbeddings, p)
		}
	}
	return &Vector{passages: withEmbeddings}
}

// Search returns up to limit passages nearest to the query embedding, ordered
// by cosine similarity descending, ties by passage id ascending. A nil query
// embedding returns no hits.
func (v *Vector) Search(ctx context.Context, query types.EmbeddingVector, limit int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 || len(query) == 0 {
		return nil, nil
	}

	hits := make([]Hit, 0, len(v.passages))
	for _, p := range v.passages {
		if score := query.Cosine(p.Embedding); score > 0 {
			hits = append(hits, Hit{Passage: p, Score: score})
		}
	}

	sortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Len returns the number of indexed passages.
func (v *Vector) Len() int { return len(v.passages) }
