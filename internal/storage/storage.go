package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dshills/afterimage-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entry doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidEntry is returned when an entry cannot be stored
	ErrInvalidEntry = errors.New("invalid memory entry")
	// ErrEmptyQuery is returned when a text query has no searchable terms
	ErrEmptyQuery = errors.New("empty search query")
)

// Storage persists code memories: the code written or edited in earlier
// sessions, with optional embeddings for semantic search.
type Storage interface {
	// Entry operations
	Store(ctx context.Context, entry *MemoryEntry) (string, error)
	StoreBatch(ctx context.Context, entries []*MemoryEntry) ([]string, error)
	Get(ctx context.Context, id string) (*MemoryEntry, error)
	Delete(ctx context.Context, id string) error
	UpdateEmbedding(ctx context.Context, id string, vector []float32, model string) error

	// Search operations
	SearchText(ctx context.Context, query string, limit int) ([]TextHit, error)
	SearchByPath(ctx context.Context, pattern string, limit int) ([]*MemoryEntry, error)
	ByPath(ctx context.Context, filePath string, limit int) ([]*MemoryEntry, error)
	Recent(ctx context.Context, limit int) ([]*MemoryEntry, error)
	BySession(ctx context.Context, sessionID string, limit int) ([]*MemoryEntry, error)
	EmbeddedEntries(ctx context.Context, limit int) ([]*MemoryEntry, error)

	// Maintenance
	Stats(ctx context.Context) (*Stats, error)
	Export(ctx context.Context) ([]*MemoryEntry, error)
	Clear(ctx context.Context) (int, error)
	Close() error
}

// MemoryEntry is one remembered Write or Edit. A Write has only NewCode; an
// Edit also records the replaced OldCode.
type MemoryEntry struct {
	ID        string
	FilePath  string
	OldCode   string
	NewCode   string
	Context   string
	Timestamp time.Time
	SessionID string

	Embedding      []float32
	EmbeddingModel string
}

// Validate checks if the entry can be stored
func (e *MemoryEntry) Validate() error {
	if e == nil {
		return ErrInvalidEntry
	}
	if e.FilePath == "" {
		return errors.Join(ErrInvalidEntry, types.ErrMissingFilePath)
	}
	if e.NewCode == "" && e.OldCode == "" {
		return errors.Join(ErrInvalidEntry, types.ErrEmptyContent)
	}
	return nil
}

// Candidate converts the entry into an injection candidate
func (e *MemoryEntry) Candidate() types.Candidate {
	return types.Candidate{
		ID:        e.ID,
		FilePath:  e.FilePath,
		NewCode:   e.NewCode,
		OldCode:   e.OldCode,
		Context:   e.Context,
		Timestamp: e.Timestamp,
		SessionID: e.SessionID,
		Embedding: e.Embedding,
	}
}

// TextHit is a full-text match. Rank is the raw BM25 value: negative, and
// closer to zero is a weaker match.
type TextHit struct {
	Entry *MemoryEntry
	Rank  float64
}

// Stats summarizes the knowledge base
type Stats struct {
	TotalEntries   int        `json:"total_entries"`
	WithEmbeddings int        `json:"entries_with_embeddings"`
	UniqueFiles    int        `json:"unique_files"`
	UniqueSessions int        `json:"unique_sessions"`
	OldestEntry    *time.Time `json:"oldest_entry,omitempty"`
	NewestEntry    *time.Time `json:"newest_entry,omitempty"`
	DBSizeBytes    int64      `json:"db_size_bytes"`
	SchemaVersion  string     `json:"schema_version"`
	BuildMode      string     `json:"build_mode"`
}
