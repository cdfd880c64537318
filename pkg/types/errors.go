package types

import "errors"

// Failure taxonomy for external collaborators and the request lifecycle.
var (
	// ErrEncodingUnavailable indicates the embedding service could not be
	// reached. Callers fall back to lexical-only retrieval.
	ErrEncodingUnavailable = errors.New("embedding service unavailable")

	// ErrGenerationUnavailable indicates the generative service could not be
	// reached. Callers return fallback answer text instead of propagating.
	ErrGenerationUnavailable = errors.New("generation service unavailable")

	// ErrRetrievalTimeout indicates the request timed out before an answer
	// was produced.
	ErrRetrievalTimeout = errors.New("retrieval timed out")

	// ErrCacheUnavailable indicates a durable cache store failure. Always
	// absorbed locally; the engine degrades to in-memory caching.
	ErrCacheUnavailable = errors.New("durable cache store unavailable")
)

// Validation errors for shared types.
var (
	ErrMissingPassage = errors.New("search result has no passage")
	ErrInvalidRank    = errors.New("rank must be >= 1")
	ErrInvalidScore   = errors.New("score must be non-negative")
)
