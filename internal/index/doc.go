// Package index holds the in-memory corpus and the two retrieval indexes
// built over it.
//
// The lexical index is a TF-IDF inverted index over passage text: exact-term
// matching with cosine scoring between sparse term vectors. The vector index
// is a brute-force cosine nearest-neighbor scan over precomputed passage
// embeddings; corpora here are small enough that an approximate structure
// would not pay for itself.
//
// Both indexes are immutable once built. The Corpus owns the current pair and
// swaps in freshly built ones when the backing JSONL file changes, so
// searches never observe a half-built index.
package index
