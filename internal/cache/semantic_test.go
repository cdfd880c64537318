package cache

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dthille/corpusqa/pkg/types"
)

// vecAtCosine builds a unit vector whose cosine similarity to the reference
// unit vector [1, 0, 0, ...] is exactly cos.
func vecAtCosine(dim int, cos float64) types.EmbeddingVector {
	v := make(types.EmbeddingVector, dim)
	v[0] = float32(cos)
	v[1] = float32(math.Sqrt(1 - cos*cos))
	return v
}

func refVec(dim int) types.EmbeddingVector {
	v := make(types.EmbeddingVector, dim)
	v[0] = 1
	return v
}

func TestSemanticHitAboveThreshold(t *testing.T) {
	c := NewSemantic(10, 0.85, time.Hour, nil)
	c.Store(refVec(8), "cached answer", []types.Citation{{PassageID: "p1"}})

	got, sim, ok := c.Lookup(vecAtCosine(8, 0.90))
	require.True(t, ok)
	assert.Equal(t, "cached answer", got.Answer)
	assert.InDelta(t, 0.90, sim, 0.001)
	assert.GreaterOrEqual(t, sim, 0.85)
}

func TestSemanticMissBelowThreshold(t *testing.T) {
	c := NewSemantic(10, 0.85, time.Hour, nil)
	c.Store(refVec(8), "cached answer", nil)

	_, _, ok := c.Lookup(vecAtCosine(8, 0.70))
	assert.False(t, ok, "similarity 0.70 must miss at threshold 0.85")
}

func TestSemanticNeverReturnsBelowThreshold(t *testing.T) {
	c := NewSemantic(50, 0.85, time.Hour, nil)
	for i := 0; i < 20; i++ {
		c.Store(vecAtCosine(8, float64(i)/20.0), fmt.Sprintf("answer %d", i), nil)
	}

	for _, q := range []float64{0.0, 0.3, 0.5, 0.82, 0.9, 1.0} {
		_, sim, ok := c.Lookup(vecAtCosine(8, q))
		if ok {
			assert.GreaterOrEqual(t, sim, 0.85)
		}
	}
}

func TestSemanticBestMatchWins(t *testing.T) {
	c := NewSemantic(10, 0.85, time.Hour, nil)
	c.Store(vecAtCosine(8, 0.88), "close", nil)
	c.Store(refVec(8), "closest", nil)

	got, sim, ok := c.Lookup(refVec(8))
	require.True(t, ok)
	assert.Equal(t, "closest", got.Answer)
	assert.InDelta(t, 1.0, sim, 1e-9)
}

func TestSemanticTieBreaksByMostRecentCreation(t *testing.T) {
	clock := newFakeClock()
	c := NewSemantic(10, 0.5, time.Hour, nil, WithSemanticClock(clock.Now))

	// Both stored vectors sit at the same cosine distance from the query.
	query := refVec(4)
	older := types.EmbeddingVector{1, 1, 0, 0}
	newer := types.EmbeddingVector{1, -1, 0, 0}

	c.Store(older, "older answer", nil)
	clock.Advance(time.Minute)
	c.Store(newer, "newer answer", nil)

	got, _, ok := c.Lookup(query)
	require.True(t, ok)
	assert.Equal(t, "newer answer", got.Answer)
}

func TestSemanticIdenticalEmbeddingOverwrites(t *testing.T) {
	c := NewSemantic(10, 0.85, time.Hour, nil)
	vec := refVec(8)

	c.Store(vec, "first", nil)
	c.Store(vec, "second", nil)

	assert.Equal(t, 1, c.Len())
	got, _, ok := c.Lookup(vec)
	require.True(t, ok)
	assert.Equal(t, "second", got.Answer)
}

func TestSemanticCapacityNeverExceeded(t *testing.T) {
	const capacity = 5
	c := NewSemantic(capacity, 0.85, time.Hour, nil)

	for i := 0; i < 30; i++ {
		c.Store(vecAtCosine(8, float64(i)/30.0), "answer", nil)
		assert.LessOrEqual(t, c.Len(), capacity)
	}
	assert.Equal(t, capacity, c.Len())
}

func TestSemanticTTLExpiry(t *testing.T) {
	clock := newFakeClock()
	c := NewSemantic(10, 0.85, time.Hour, nil, WithSemanticClock(clock.Now))

	c.Store(refVec(8), "answer", nil)

	clock.Advance(2 * time.Hour)
	_, _, ok := c.Lookup(refVec(8))
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}
