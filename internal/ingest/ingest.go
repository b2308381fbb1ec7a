package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/afterimage-mcp/internal/embedder"
	"github.com/dshills/afterimage-mcp/internal/filter"
	"github.com/dshills/afterimage-mcp/internal/storage"
)

// ErrInProgress is returned when another ingest holds the lock
var ErrInProgress = errors.New("ingest already in progress")

// DefaultMaxFileBytes skips generated blobs and data files posing as code
const DefaultMaxFileBytes = 256 * 1024

// Config contains configuration for the ingester
type Config struct {
	Workers        int   // Concurrent batches (default: runtime.NumCPU())
	BatchSize      int   // Files stored per transaction (default: 20)
	MaxFileBytes   int64 // Larger files are skipped (default: 256 KiB)
	SkipEmbeddings bool  // Store without vectors
	SessionID      string
}

// Result contains statistics about an ingest run
type Result struct {
	Seen          int // files visited by the walk
	Stored        int
	Unchanged     int // identical content already remembered
	Skipped       int // not code, too large or not text
	Failed        int
	EmbedFailures int // stored without a vector
	Duration      time.Duration
	ErrorMessages []string
}

// Ingester walks a directory and remembers every code file as a
// Write-style memory: read -> filter -> embed -> store
type Ingester struct {
	storage  storage.Storage
	embedder embedder.Embedder // nil stores without vectors
	filter   *filter.CodeFilter
	lock     Lock
}

// New creates an Ingester
func New(store storage.Storage, emb embedder.Embedder, codeFilter *filter.CodeFilter) *Ingester {
	return &Ingester{storage: store, embedder: emb, filter: codeFilter}
}

// IngestDirectory ingests every code file below root. Per-file failures are
// counted and reported in the result; only walk and storage errors abort.
func (in *Ingester) IngestDirectory(ctx context.Context, root string, cfg *Config) (*Result, error) {
	if !in.lock.TryAcquire() {
		return nil, ErrInProgress
	}
	defer in.lock.Release()

	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = DefaultMaxFileBytes
	}

	start := time.Now()
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	files, err := in.discoverFiles(root)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	run := &run{ingester: in, cfg: cfg}
	if err := run.ingestFiles(ctx, files); err != nil {
		return nil, err
	}

	res := run.result()
	res.Seen = len(files)
	res.Duration = time.Since(start)
	return res, nil
}

// discoverFiles lists regular files below root, pruning hidden and skipped
// directories
func (in *Ingester) discoverFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), ".") || in.filter.SkipsDir(path)) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// run holds the counters of one IngestDirectory call
type run struct {
	ingester *Ingester
	cfg      *Config

	stored, unchanged, skipped, failed, embedFailures atomic.Int32

	mu     sync.Mutex
	errors []string
}

func (r *run) result() *Result {
	return &Result{
		Stored:        int(r.stored.Load()),
		Unchanged:     int(r.unchanged.Load()),
		Skipped:       int(r.skipped.Load()),
		Failed:        int(r.failed.Load()),
		EmbedFailures: int(r.embedFailures.Load()),
		ErrorMessages: r.errors,
	}
}

func (r *run) fail(path string, err error) {
	r.failed.Add(1)
	r.mu.Lock()
	r.errors = append(r.errors, fmt.Sprintf("%s: %v", path, err))
	r.mu.Unlock()
}

// ingestFiles processes files in batches on a bounded errgroup
func (r *run) ingestFiles(ctx context.Context, files []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	for i := 0; i < len(files); i += r.cfg.BatchSize {
		batch := files[i:min(i+r.cfg.BatchSize, len(files))]
		g.Go(func() error {
			return r.ingestBatch(gctx, batch)
		})
	}
	return g.Wait()
}

// ingestBatch reads and embeds a batch, then stores it in one transaction
func (r *run) ingestBatch(ctx context.Context, files []string) error {
	entries := make([]*storage.MemoryEntry, 0, len(files))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, err := r.prepare(ctx, path)
		if err != nil {
			r.fail(path, err)
			continue
		}
		if entry != nil {
			entries = append(entries, entry)
		}
	}
	if len(entries) == 0 {
		return nil
	}

	r.embed(ctx, entries)

	if _, err := r.ingester.storage.StoreBatch(ctx, entries); err != nil {
		return fmt.Errorf("failed to store batch: %w", err)
	}
	r.stored.Add(int32(len(entries)))
	return nil
}

// prepare reads one file and returns nil when it should not be stored
func (r *run) prepare(ctx context.Context, path string) (*storage.MemoryEntry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 || info.Size() > r.cfg.MaxFileBytes {
		r.skipped.Add(1)
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	content := string(data)
	if !utf8.ValidString(content) || !r.ingester.filter.IsCode(path, content) {
		r.skipped.Add(1)
		return nil, nil
	}

	same, err := r.alreadyStored(ctx, path, content)
	if err != nil {
		return nil, err
	}
	if same {
		r.unchanged.Add(1)
		return nil, nil
	}

	return &storage.MemoryEntry{
		FilePath:  path,
		NewCode:   content,
		Context:   "ingested from " + filepath.Dir(path),
		Timestamp: info.ModTime(),
		SessionID: r.cfg.SessionID,
	}, nil
}

// alreadyStored reports whether the latest memory of path holds content
func (r *run) alreadyStored(ctx context.Context, path, content string) (bool, error) {
	latest, err := r.ingester.storage.ByPath(ctx, path, 1)
	if err != nil || len(latest) == 0 {
		return false, err
	}
	return latest[0].NewCode == content && latest[0].OldCode == "", nil
}

// embed attaches vectors to entries. A failed batch leaves the entries
// without vectors; they are still stored and searchable by keyword.
func (r *run) embed(ctx context.Context, entries []*storage.MemoryEntry) {
	if r.cfg.SkipEmbeddings || r.ingester.embedder == nil {
		return
	}

	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = embedder.CodeText(e.FilePath, e.NewCode)
	}
	resp, err := r.ingester.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
	if err != nil || len(resp.Embeddings) != len(entries) {
		r.embedFailures.Add(int32(len(entries)))
		return
	}
	for i, emb := range resp.Embeddings {
		if emb == nil {
			r.embedFailures.Add(1)
			continue
		}
		entries[i].Embedding = emb.Vector
		entries[i].EmbeddingModel = emb.Model
	}
}
