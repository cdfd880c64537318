package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dthille/corpusqa/pkg/types"
)

func embeddedPassages() []*types.PassageRecord {
	return []*types.PassageRecord{
		{ID: "p1", Text: "remote work", Embedding: types.EmbeddingVector{1, 0, 0}},
		{ID: "p2", Text: "merge requests", Embedding: types.EmbeddingVector{0, 1, 0}},
		{ID: "p3", Text: "pipelines", Embedding: types.EmbeddingVector{0.7, 0.7, 0}},
		{ID: "p4", Text: "no embedding"},
	}
}

func TestVectorSearchNearestFirst(t *testing.T) {
	idx := NewVector(embeddedPassages())

	hits, err := idx.Search(context.Background(), types.EmbeddingVector{1, 0, 0}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	assert.Equal(t, "p1", hits[0].Passage.ID)
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i].Score, hits[i-1].Score)
	}
}

func TestVectorSkipsPassagesWithoutEmbedding(t *testing.T) {
	idx := NewVector(embeddedPassages())
	assert.Equal(t, 3, idx.Len())
}

func TestVectorSearchLimit(t *testing.T) {
	idx := NewVector(embeddedPassages())

	hits, err := idx.Search(context.Background(), types.EmbeddingVector{0.5, 0.5, 0}, 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
	assert.Equal(t, "p3", hits[0].Passage.ID)
}

func TestVectorSearchNilQuery(t *testing.T) {
	idx := NewVector(embeddedPassages())

	hits, err := idx.Search(context.Background(), nil, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestVectorSearchEmptyIndex(t *testing.T) {
	idx := NewVector(nil)

	hits, err := idx.Search(context.Background(), types.EmbeddingVector{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
