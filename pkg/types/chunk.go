package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// ChunkType represents the kind of semantic unit a chunk covers
type ChunkType string

const (
	ChunkFunction  ChunkType = "function"
	ChunkMethod    ChunkType = "method"
	ChunkClass     ChunkType = "class"
	ChunkImports   ChunkType = "imports"
	ChunkConstants ChunkType = "constants"
	ChunkBlock     ChunkType = "block"
)

// SourceUnit is a semantically meaningful slice of a source file.
// Units are immutable once produced by the chunker; cached slices are shared
// between callers.
type SourceUnit struct {
	// Identification
	ID        string // "<path>:<start>-<end>[#part]"
	ChunkType ChunkType
	Name      string

	// Location. Lines are 1-based and inclusive. Units of one file do not
	// share lines, with one exception: a single line too long for the token
	// limit is cut into several pieces that all carry that line's number.
	// Such pieces always have PartIndex > 0.
	FilePath  string
	StartLine int
	EndLine   int

	// Content
	Content     string
	ContentHash string // hex SHA-256 of Content
	TokenCount  int

	// Oversize splitting. PartIndex is 1-based; 0 means the unit was not split.
	PartIndex int
	PartCount int
}

// HashContent returns the hex encoded SHA-256 of content.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// UnitID builds the stable identifier of a unit from its location.
func UnitID(filePath string, start, end, part int) string {
	if part > 0 {
		return fmt.Sprintf("%s:%d-%d#%d", filePath, start, end, part)
	}
	return fmt.Sprintf("%s:%d-%d", filePath, start, end)
}

// IsPartial reports whether the unit is a piece of an oversize split
func (u *SourceUnit) IsPartial() bool {
	return u.PartIndex > 0
}

// ValidateChunkType checks if the chunk type is valid
func (u *SourceUnit) ValidateChunkType() error {
	switch u.ChunkType {
	case ChunkFunction, ChunkMethod, ChunkClass, ChunkImports, ChunkConstants, ChunkBlock:
		return nil
	default:
		return ErrInvalidChunkType
	}
}

// Validate checks structural invariants of the unit against the token limit.
// A maxTokens of zero disables the size check.
func (u *SourceUnit) Validate(maxTokens int) error {
	if u.Content == "" {
		return ErrEmptyContent
	}
	if u.StartLine <= 0 || u.EndLine <= 0 {
		return errors.New("line numbers must be positive")
	}
	if u.StartLine > u.EndLine {
		return errors.New("start line must be before or equal to end line")
	}
	if err := u.ValidateChunkType(); err != nil {
		return err
	}
	if maxTokens > 0 && u.TokenCount > maxTokens {
		return fmt.Errorf("%w: %d > %d", ErrChunkTooLarge, u.TokenCount, maxTokens)
	}
	if u.ContentHash != HashContent(u.Content) {
		return errors.New("content hash does not match content")
	}
	return nil
}
