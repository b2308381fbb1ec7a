package types

import "time"

// Candidate is one record handed to the injection engine by the knowledge-base
// search. NewCode/OldCode mirror the Write/Edit origin of the record: a Write
// stores only NewCode, an Edit stores both sides of the replacement.
type Candidate struct {
	ID        string
	FilePath  string
	NewCode   string
	OldCode   string
	Context   string
	Timestamp time.Time
	SessionID string

	// Optional
	Embedding    []float32
	BackendScore *float64
}

// Content returns the code the candidate contributes
func (c *Candidate) Content() string {
	if c.NewCode != "" {
		return c.NewCode
	}
	return c.OldCode
}

// IsFullContent reports whether the candidate holds a whole file body rather
// than an edit fragment.
func (c *Candidate) IsFullContent() bool {
	return c.OldCode == ""
}

// HasEmbedding reports whether a usable embedding vector is attached
func (c *Candidate) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// Validate checks if the candidate is usable
func (c *Candidate) Validate() error {
	if c.FilePath == "" {
		return ErrMissingFilePath
	}
	if c.Content() == "" {
		return ErrEmptyContent
	}
	return nil
}
