package types

import "errors"

// Domain errors shared across packages
var (
	// Unit validation errors
	ErrEmptyContent     = errors.New("content cannot be empty")
	ErrInvalidChunkType = errors.New("invalid chunk type")
	ErrChunkTooLarge    = errors.New("chunk exceeds token limit")

	// Candidate errors
	ErrMissingFilePath       = errors.New("file path is required")
	ErrInvalidRelevanceScore = errors.New("relevance score must be between 0 and 1")

	// Pipeline failure kinds
	ErrParseFailure         = errors.New("structural parse failed")
	ErrCacheCorrupt         = errors.New("cache entry unreadable")
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	ErrInjectionFailed      = errors.New("injection pipeline failed")
)
