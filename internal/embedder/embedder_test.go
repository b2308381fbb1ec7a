package embedder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/afterimage-mcp/internal/vector"
)

func TestCache_CopiesOnRead(t *testing.T) {
	cache := NewCache(2)
	cache.Set("m", "h1", &Embedding{Vector: []float32{1, 2, 3}, Dimension: 3})

	got, ok := cache.Get("m", "h1")
	require.True(t, ok)
	got.Vector[0] = 99

	again, ok := cache.Get("m", "h1")
	require.True(t, ok)
	assert.Equal(t, float32(1), again.Vector[0])

	_, ok = cache.Get("other-model", "h1")
	assert.False(t, ok, "entries are scoped by model")
}

func TestCache_Evicts(t *testing.T) {
	cache := NewCache(2)
	cache.Set("m", "a", &Embedding{})
	cache.Set("m", "b", &Embedding{})
	cache.Set("m", "c", &Embedding{})

	assert.Equal(t, 2, cache.Size())
	_, ok := cache.Get("m", "a")
	assert.False(t, ok)

	cache.Clear()
	assert.Equal(t, 0, cache.Size())
}

func TestCache_Nil(t *testing.T) {
	var cache *Cache
	cache.Set("m", "a", &Embedding{})
	_, ok := cache.Get("m", "a")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Size())
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, ValidateRequest(EmbeddingRequest{}), ErrEmptyText)
	assert.NoError(t, ValidateRequest(EmbeddingRequest{Text: "x"}))
	assert.ErrorIs(t, ValidateBatchRequest(BatchEmbeddingRequest{}), ErrInvalidInput)
	assert.ErrorIs(t, ValidateBatchRequest(BatchEmbeddingRequest{Texts: []string{"a", ""}}), ErrInvalidInput)
}

func TestComputeHash(t *testing.T) {
	assert.Equal(t, ComputeHash("abc"), ComputeHash("abc"))
	assert.NotEqual(t, ComputeHash("abc"), ComputeHash("abd"))
	assert.Len(t, ComputeHash("abc"), 64)
}

func TestCodeText(t *testing.T) {
	assert.Equal(t, "File: a.go\n\nfunc A() {}", CodeText("a.go", "func A() {}"))
	assert.Equal(t, "func A() {}", CodeText("", "func A() {}"))
}

func TestLocalProvider_Deterministic(t *testing.T) {
	ctx := context.Background()
	p := NewLocalProvider(nil)

	a, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "func parseConfig(path string) error"})
	require.NoError(t, err)
	b, err := NewLocalProvider(NewCache(10)).GenerateEmbedding(ctx, EmbeddingRequest{Text: "func parseConfig(path string) error"})
	require.NoError(t, err)

	assert.Equal(t, a.Vector, b.Vector)
	assert.Len(t, a.Vector, LocalDimension)
	assert.Equal(t, ProviderLocal, a.Provider)
	assert.Equal(t, LocalModel, a.Model)

	sim, ok := vector.Cosine(a.Vector, a.Vector)
	require.True(t, ok)
	assert.InDelta(t, 1.0, sim, 1e-5, "vectors are unit length")
}

func TestLocalProvider_SharedVocabularyIsCloser(t *testing.T) {
	ctx := context.Background()
	p := NewLocalProvider(nil)

	embed := func(text string) []float32 {
		emb, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: text})
		require.NoError(t, err)
		return emb.Vector
	}

	query := embed("def load_user_config(path): return parse_yaml(path)")
	near := embed("func LoadUserConfig(path string) (*Config, error) { return parseYAML(path) }")
	far := embed("SELECT count(*) FROM orders WHERE shipped_at IS NULL")

	simNear, _ := vector.Cosine(query, near)
	simFar, _ := vector.Cosine(query, far)
	assert.Greater(t, simNear, simFar)
}

func TestLocalProvider_PunctuationOnly(t *testing.T) {
	emb, err := NewLocalProvider(nil).GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "{ } ;"})
	require.NoError(t, err)

	var nonZero bool
	for _, x := range emb.Vector {
		if x != 0 {
			nonZero = true
		}
	}
	assert.True(t, nonZero)
}

func TestLocalProvider_Batch(t *testing.T) {
	p := NewLocalProvider(NewCache(10))
	resp, err := p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"alpha", "beta"}})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 2)
	assert.NotEqual(t, resp.Embeddings[0].Vector, resp.Embeddings[1].Vector)

	_, err = p.GenerateBatch(context.Background(), BatchEmbeddingRequest{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLocalProvider_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLocalProvider(nil).GenerateEmbedding(ctx, EmbeddingRequest{Text: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSplitIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"parseConfigFile", []string{"parse", "config", "file"}},
		{"parse_config_file", []string{"parse", "config", "file"}},
		{"HTTPServer", []string{"http", "server"}},
		{"ID", []string{"id"}},
		{"load2Files", []string{"load2", "files"}},
		{"__init__", []string{"init"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, splitIdentifier(tt.in))
		})
	}
}

func BenchmarkLocalProvider(b *testing.B) {
	p := NewLocalProvider(nil)
	text := "func (s *Server) handleInject(ctx context.Context, req Request) (*Result, error) { return s.injector.Inject(ctx, req), nil }"
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: text}); err != nil {
			b.Fatal(err)
		}
	}
}
