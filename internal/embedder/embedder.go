// Package embedder provides the embedding service boundary: converting text
// to fixed-length vectors via an external HTTP provider, with content-hash
// caching and bounded retry. Provider failures surface as
// types.ErrEncodingUnavailable so callers can fall back to lexical-only
// retrieval.
package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dthille/corpusqa/pkg/types"
)

var ErrEmptyText = errors.New("text cannot be empty")

// Client encodes text into embedding vectors. Implementations must honor
// context cancellation and deadlines.
type Client interface {
	// Encode returns the embedding for text. Fails with an error wrapping
	// types.ErrEncodingUnavailable when the provider cannot be reached.
	Encode(ctx context.Context, text string) (types.EmbeddingVector, error)

	// Dimension returns the embedding dimension for this provider.
	Dimension() int

	// Close releases any resources held by the client.
	Close() error
}

// Cache is an in-memory LRU of embeddings keyed by content hash.
type Cache struct {
	entries *lru.Cache[string, types.EmbeddingVector]
}

// NewCache creates an embedding cache bounded to maxLen entries.
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000
	}
	entries, err := lru.New[string, types.EmbeddingVector](maxLen)
	if err != nil {
		entries, _ = lru.New[string, types.EmbeddingVector](10000)
	}
	return &Cache{entries: entries}
}

// Get returns a copy of the cached vector so caller mutations cannot pollute
// the cache.
func (c *Cache) Get(hash string) (types.EmbeddingVector, bool) {
	vec, ok := c.entries.Get(hash)
	if !ok {
		return nil, false
	}
	return vec.Clone(), true
}

// Set stores a vector; LRU eviction is automatic at capacity.
func (c *Cache) Set(hash string, vec types.EmbeddingVector) {
	c.entries.Add(hash, vec.Clone())
}

// Len returns the current cache size.
func (c *Cache) Len() int { return c.entries.Len() }

// ComputeHash returns the SHA-256 hex digest of text, the cache key.
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
