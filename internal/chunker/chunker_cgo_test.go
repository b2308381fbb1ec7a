//go:build cgo

package chunker

import (
	"context"
	"testing"

	"github.com/dshills/afterimage-mcp/internal/language"
	"github.com/dshills/afterimage-mcp/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pythonClass = `class Store:
    """Keeps items."""

    def add(self, item):
        self.items.append(item)
        return item

    def size(self):
        return len(self.items)
`

func TestChunk_PythonClassFits(t *testing.T) {
	units, err := New().Chunk(context.Background(), "store.py", pythonClass, language.Python)
	require.NoError(t, err)
	assert.Equal(t, []unitShape{{types.ChunkClass, "Store", 1, 9}}, shapes(units))
}

func TestChunk_PythonClassSplitIntoMethods(t *testing.T) {
	units, err := New(WithMaxChunkTokens(30)).Chunk(context.Background(), "store.py", pythonClass, language.Python)
	require.NoError(t, err)

	assert.Equal(t, []unitShape{
		{types.ChunkClass, "Store", 1, 2},
		{types.ChunkMethod, "Store.add", 4, 6},
		{types.ChunkMethod, "Store.size", 8, 9},
	}, shapes(units))
	assertWellFormed(t, units, 30)
}
