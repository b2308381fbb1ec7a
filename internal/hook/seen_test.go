package hook

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttemptHash(t *testing.T) {
	a := AttemptHash("/p/a.go", "package a")
	assert.Len(t, a, 32)
	assert.Equal(t, a, AttemptHash("/p/a.go", "package a"))
	assert.NotEqual(t, a, AttemptHash("/p/b.go", "package a"))

	// only the first 500 bytes identify an attempt
	prefix := strings.Repeat("x", 500)
	assert.Equal(t, AttemptHash("/p/a.go", prefix+"tail one"), AttemptHash("/p/a.go", prefix+"tail two"))
}

func TestSeenWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ".seen_writes")
	s := NewSeenWrites(path, 3)

	assert.False(t, s.Seen("h1"), "missing file is not seen")

	for i := 1; i <= 4; i++ {
		require.NoError(t, s.Mark(fmt.Sprintf("h%d", i)))
	}
	assert.False(t, s.Seen("h1"), "evicted beyond the window")
	assert.True(t, s.Seen("h2"))
	assert.True(t, s.Seen("h4"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "h2\nh3\nh4\n", string(data))

	// another process sharing the file sees the same marks
	assert.True(t, NewSeenWrites(path, 3).Seen("h3"))
}

func TestSeenWrites_DefaultWindow(t *testing.T) {
	s := NewSeenWrites(filepath.Join(t.TempDir(), "seen"), 0)
	assert.Equal(t, DefaultSeenWindow, s.window)
}
