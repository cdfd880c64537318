// Package types defines the shared data model for the question answering
// engine: queries and their normalized form, corpus passages, search results,
// answers, and confidence reports.
//
// Types in this package are plain data carriers. Values that cross component
// boundaries (EmbeddingVector, PassageRecord) are treated as immutable after
// creation; components that need to retain them must copy.
package types
