package types

import (
	"crypto/sha256"
	"math"
	"time"
)

// Query is a raw user question as received. Immutable once constructed.
type Query struct {
	Text       string
	ReceivedAt time.Time
}

// NormalizedQuery is the canonical form of a query used for cache keying.
// It is a pure function of the query text: two paraphrases that normalize to
// the same text share a fingerprint and therefore a cache entry.
type NormalizedQuery struct {
	Text string
}

// Fingerprint is a fixed-length digest of normalized query text, used as the
// exact-cache key.
type Fingerprint [32]byte

// FingerprintOf computes the fingerprint of a normalized query.
func FingerprintOf(nq NormalizedQuery) Fingerprint {
	return sha256.Sum256([]byte(nq.Text))
}

// EmbeddingVector is a fixed-dimension embedding produced by the embedding
// service for a query or passage. Never mutated after creation.
type EmbeddingVector []float32

// Clone returns an independent copy of the vector.
func (v EmbeddingVector) Clone() EmbeddingVector {
	if v == nil {
		return nil
	}
	out := make(EmbeddingVector, len(v))
	copy(out, v)
	return out
}

// Cosine returns the cosine similarity between two vectors. Mismatched
// dimensions or zero-magnitude vectors yield 0.
func (v EmbeddingVector) Cosine(o EmbeddingVector) float64 {
	if len(v) != len(o) || len(v) == 0 {
		return 0
	}

	var dot, normV, normO float64
	for i := range v {
		dot += float64(v[i]) * float64(o[i])
		normV += float64(v[i]) * float64(v[i])
		normO += float64(o[i]) * float64(o[i])
	}
	if normV == 0 || normO == 0 {
		return 0
	}
	return dot / (math.Sqrt(normV) * math.Sqrt(normO))
}

// PassageRecord is a single corpus passage with its precomputed embedding.
// Records are produced at ingestion time and are read-only to this engine.
type PassageRecord struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	SourceURL string            `json:"source_url,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Embedding EmbeddingVector   `json:"embedding,omitempty"`
}

// Citation points at a passage that supports an answer.
type Citation struct {
	PassageID string  `json:"passage_id"`
	SourceURL string  `json:"source_url,omitempty"`
	Score     float64 `json:"score"`
}

// SearchResult is a scored passage produced by retrieval. Transient; created
// per query and discarded after response assembly.
type SearchResult struct {
	Passage      *PassageRecord
	LexicalScore float64
	VectorScore  float64
	FusedScore   float64
	Rank         int // 1-based position in the final result set
}

// Validate checks basic result integrity.
func (sr *SearchResult) Validate() error {
	if sr.Passage == nil {
		return ErrMissingPassage
	}
	if sr.Rank < 1 {
		return ErrInvalidRank
	}
	if sr.FusedScore < 0 {
		return ErrInvalidScore
	}
	return nil
}

// ConfidenceLevel buckets an overall confidence score.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// ConfidenceFactor is one component of a confidence report.
type ConfidenceFactor struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Score  float64 `json:"score"` // unweighted, in [0,1]
}

// ConfidenceReport is the trust estimate attached to every answer.
// Overall is always in [0,1]; Level is a monotonic function of Overall.
type ConfidenceReport struct {
	Overall float64            `json:"overall"`
	Level   ConfidenceLevel    `json:"level"`
	Factors []ConfidenceFactor `json:"factors"`
}

// Answer is the assembled response to a query.
type Answer struct {
	Text       string           `json:"text"`
	Citations  []Citation       `json:"citations,omitempty"`
	Confidence ConfidenceReport `json:"confidence"`
	CacheTier  string           `json:"cache_tier,omitempty"` // "exact", "semantic", or "" on a miss
	Duration   time.Duration    `json:"-"`
}
