// Package cache implements the two answer cache tiers that sit in front of
// retrieval and generation.
//
// The exact tier maps a fingerprint of the normalized query to a previously
// computed answer. Lookups are O(1); entries are bounded by capacity with LRU
// eviction and expire on an absolute TTL from creation (sliding TTL is
// configurable). The key space is sharded so that concurrent queries for
// unrelated fingerprints never contend on the same lock.
//
// The semantic tier maps a stored query's embedding to its answer. Lookup is
// nearest-neighbor under cosine similarity rather than exact match: the best
// stored entry wins if its similarity reaches the configured threshold
// (default 0.85). Ties break by similarity, then by most recent creation.
//
// Both tiers may be backed by a durable SQLite store. The store is strictly a
// performance optimization: any I/O failure degrades the tier to in-memory
// operation and is logged, never returned to the caller.
package cache
