package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/afterimage-mcp/internal/embedder"
	"github.com/dshills/afterimage-mcp/internal/filter"
	"github.com/dshills/afterimage-mcp/internal/storage"
)

// mockEmbedder implements embedder.Embedder for testing
type mockEmbedder struct {
	dimension int
	batchErr  error
	calls     int
	mu        sync.Mutex
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{dimension: 8}
}

func (m *mockEmbedder) vector() []float32 {
	v := make([]float32, m.dimension)
	for i := range v {
		v[i] = 0.5
	}
	return v
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	return &embedder.Embedding{Vector: m.vector(), Dimension: m.dimension, Provider: "mock", Model: "test-v1"}, nil
}

func (m *mockEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.batchErr != nil {
		return nil, m.batchErr
	}
	resp := &embedder.BatchEmbeddingResponse{Provider: "mock", Model: "test-v1"}
	for range req.Texts {
		resp.Embeddings = append(resp.Embeddings, &embedder.Embedding{
			Vector: m.vector(), Dimension: m.dimension, Provider: "mock", Model: "test-v1",
		})
	}
	return resp, nil
}

func (m *mockEmbedder) Dimension() int   { return m.dimension }
func (m *mockEmbedder) Provider() string { return "mock" }
func (m *mockEmbedder) Model() string    { return "test-v1" }
func (m *mockEmbedder) Close() error     { return nil }

func setupIngester(t *testing.T, emb embedder.Embedder) (*Ingester, *storage.SQLiteStorage) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(storage.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	codeFilter, err := filter.New(filter.DefaultConfig())
	require.NoError(t, err)
	return New(store, emb, codeFilter), store
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func sampleTree(t *testing.T) string {
	return writeTree(t, map[string]string{
		"main.go":                   "package main\n\nfunc main() {}\n",
		"pkg/util.py":               "def helper():\n    return 1\n",
		"README.md":                 "# Project\n\nSome prose.\n",
		"config.yaml":               "key: value\n",
		"node_modules/lib/index.js": "module.exports = {}\n",
		".git/hooks/pre-commit.sh":  "#!/bin/sh\necho hi\n",
		"empty.go":                  "",
		"web/app.min.js":            "function a(){}",
	})
}

func TestIngestDirectory(t *testing.T) {
	emb := newMockEmbedder()
	in, store := setupIngester(t, emb)
	root := sampleTree(t)
	ctx := context.Background()

	res, err := in.IngestDirectory(ctx, root, &Config{SessionID: "ingest-1"})
	require.NoError(t, err)

	// hidden and skip-path directories are pruned from the walk
	assert.Equal(t, 6, res.Seen)
	assert.Equal(t, 2, res.Stored, "main.go and util.py")
	assert.Equal(t, 4, res.Skipped)
	assert.Zero(t, res.Failed)
	assert.Zero(t, res.EmbedFailures)
	assert.Greater(t, res.Duration.Nanoseconds(), int64(0))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalEntries)
	assert.Equal(t, 2, stats.WithEmbeddings)

	entries, err := store.BySession(ctx, "ingest-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.True(t, filepath.IsAbs(e.FilePath))
		assert.Empty(t, e.OldCode, "ingested files are Write-style memories")
		assert.Equal(t, "test-v1", e.EmbeddingModel)
	}
}

func TestIngestDirectory_Incremental(t *testing.T) {
	in, _ := setupIngester(t, newMockEmbedder())
	root := writeTree(t, map[string]string{
		"a.go": "package a\n\nfunc A() {}\n",
		"b.go": "package a\n\nfunc B() {}\n",
	})
	ctx := context.Background()

	res, err := in.IngestDirectory(ctx, root, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stored)

	require.NoError(t, os.WriteFile(filepath.Join(root, "b.go"), []byte("package a\n\nfunc B2() {}\n"), 0o644))

	res, err = in.IngestDirectory(ctx, root, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stored)
	assert.Equal(t, 1, res.Unchanged)
}

// Newer memories whose paths merely contain the file's path must not hide
// the file's own latest memory.
func TestIngestDirectory_UnchangedUsesExactPath(t *testing.T) {
	in, store := setupIngester(t, newMockEmbedder())
	root := writeTree(t, map[string]string{"a.go": "package a\n\nfunc A() {}\n"})
	ctx := context.Background()

	res, err := in.IngestDirectory(ctx, root, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.Stored)

	path := filepath.Join(root, "a.go")
	for i := 0; i < 12; i++ {
		_, err := store.Store(ctx, &storage.MemoryEntry{
			FilePath:  fmt.Sprintf("/mirror%d%s", i, path),
			NewCode:   "package a\n\nfunc Other() {}\n",
			Timestamp: time.Now().Add(time.Duration(i+1) * time.Hour),
		})
		require.NoError(t, err)
	}

	res, err = in.IngestDirectory(ctx, root, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Stored)
	assert.Equal(t, 1, res.Unchanged)
}

func TestIngestDirectory_Batches(t *testing.T) {
	emb := newMockEmbedder()
	in, store := setupIngester(t, emb)
	files := make(map[string]string)
	for i := 0; i < 25; i++ {
		files[fmt.Sprintf("f%02d.go", i)] = fmt.Sprintf("package p\n\nfunc F%d() {}\n", i)
	}
	root := writeTree(t, files)

	res, err := in.IngestDirectory(context.Background(), root, &Config{Workers: 3, BatchSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 25, res.Stored)
	assert.Equal(t, 3, emb.calls, "one embedding call per batch")

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, stats.UniqueFiles)
}

func TestIngestDirectory_EmbeddingFailureStillStores(t *testing.T) {
	emb := newMockEmbedder()
	emb.batchErr = errors.New("provider down")
	in, store := setupIngester(t, emb)
	root := writeTree(t, map[string]string{"a.go": "package a\n"})

	res, err := in.IngestDirectory(context.Background(), root, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stored)
	assert.Equal(t, 1, res.EmbedFailures)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.WithEmbeddings)
}

func TestIngestDirectory_SkipEmbeddings(t *testing.T) {
	emb := newMockEmbedder()
	in, _ := setupIngester(t, emb)
	root := writeTree(t, map[string]string{"a.go": "package a\n"})

	res, err := in.IngestDirectory(context.Background(), root, &Config{SkipEmbeddings: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stored)
	assert.Zero(t, emb.calls)
}

func TestIngestDirectory_MaxFileBytes(t *testing.T) {
	in, _ := setupIngester(t, nil)
	root := writeTree(t, map[string]string{
		"small.go": "package a\n",
		"large.go": "package a\n\n// " + strings.Repeat("x", 200) + "\n",
	})

	res, err := in.IngestDirectory(context.Background(), root, &Config{MaxFileBytes: 100})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stored)
	assert.Equal(t, 1, res.Skipped)
}

func TestIngestDirectory_BadRoot(t *testing.T) {
	in, _ := setupIngester(t, nil)

	_, err := in.IngestDirectory(context.Background(), filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "f.go")
	require.NoError(t, os.WriteFile(file, []byte("package f"), 0o644))
	_, err = in.IngestDirectory(context.Background(), file, nil)
	assert.Error(t, err)
}

func TestIngestDirectory_Locked(t *testing.T) {
	in, _ := setupIngester(t, nil)
	require.True(t, in.lock.TryAcquire())

	_, err := in.IngestDirectory(context.Background(), t.TempDir(), nil)
	assert.ErrorIs(t, err, ErrInProgress)

	in.lock.Release()
	_, err = in.IngestDirectory(context.Background(), t.TempDir(), nil)
	assert.NoError(t, err)
}

func TestIngestDirectory_Cancelled(t *testing.T) {
	in, _ := setupIngester(t, nil)
	root := writeTree(t, map[string]string{"a.go": "package a\n"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := in.IngestDirectory(ctx, root, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLock(t *testing.T) {
	var l Lock
	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
	l.Release()
	assert.True(t, l.TryAcquire())
}
