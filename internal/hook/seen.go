package hook

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultSeenWindow is how many recent write attempts are remembered
const DefaultSeenWindow = 100

// contentPrefix bounds how much of the content identifies an attempt
const contentPrefix = 500

// SeenWrites remembers which write attempts were already shown context, so
// the retry after a deny goes through. It is a newline-separated file of
// hashes, newest last, trimmed to the window.
type SeenWrites struct {
	path   string
	window int
}

// NewSeenWrites creates a store backed by path
func NewSeenWrites(path string, window int) *SeenWrites {
	if window <= 0 {
		window = DefaultSeenWindow
	}
	return &SeenWrites{path: path, window: window}
}

// AttemptHash identifies a write attempt by path and the start of its content
func AttemptHash(filePath, content string) string {
	if len(content) > contentPrefix {
		content = content[:contentPrefix]
	}
	sum := sha256.Sum256([]byte(filePath + ":" + content))
	return hex.EncodeToString(sum[:16])
}

// Seen reports whether hash is among the recent attempts. A missing or
// unreadable file counts as not seen.
func (s *SeenWrites) Seen(hash string) bool {
	return slices.Contains(s.load(), hash)
}

// Mark records hash as shown
func (s *SeenWrites) Mark(hash string) error {
	hashes := append(s.load(), hash)
	if len(hashes) > s.window {
		hashes = hashes[len(hashes)-s.window:]
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create seen-writes directory: %w", err)
	}

	// Write then rename so a concurrent hook never reads a partial file
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".seen-*")
	if err != nil {
		return fmt.Errorf("failed to write seen-writes: %w", err)
	}
	_, werr := tmp.WriteString(strings.Join(hashes, "\n") + "\n")
	if err := errors.Join(werr, tmp.Close()); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write seen-writes: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace seen-writes: %w", err)
	}
	return nil
}

func (s *SeenWrites) load() []string {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	lines := strings.Fields(string(data))
	if len(lines) > s.window {
		lines = lines[len(lines)-s.window:]
	}
	return lines
}
