package engine

import (
	"context"
	"errors"
	"fmt"

	charmlog "github.com/charmbracelet/log"

	"github.com/dshills/afterimage-mcp/internal/chunkcache"
	"github.com/dshills/afterimage-mcp/internal/chunker"
	"github.com/dshills/afterimage-mcp/internal/config"
	"github.com/dshills/afterimage-mcp/internal/embedder"
	"github.com/dshills/afterimage-mcp/internal/filter"
	"github.com/dshills/afterimage-mcp/internal/ingest"
	"github.com/dshills/afterimage-mcp/internal/injector"
	"github.com/dshills/afterimage-mcp/internal/logging"
	"github.com/dshills/afterimage-mcp/internal/project"
	"github.com/dshills/afterimage-mcp/internal/scorer"
	"github.com/dshills/afterimage-mcp/internal/searcher"
	"github.com/dshills/afterimage-mcp/internal/storage"
	"github.com/dshills/afterimage-mcp/internal/summarizer"
	"github.com/dshills/afterimage-mcp/internal/tokens"
	"github.com/dshills/afterimage-mcp/pkg/types"
)

// ErrNotCode is returned when a file is rejected by the code filter
var ErrNotCode = errors.New("not a code file")

// Engine wires the knowledge base, search and injection pipeline from one
// configuration. It is shared by the hook, the MCP server and the CLI.
type Engine struct {
	Config    *config.Config
	Logger    *charmlog.Logger
	Storage   storage.Storage
	Embedder  embedder.Embedder
	Searcher  *searcher.Searcher
	Injector  *injector.Injector
	Filter    *filter.CodeFilter
	Ingester  *ingest.Ingester
	Estimator tokens.Estimator

	// Cache memoizes chunk breakdowns; nil when disabled
	Cache *chunkcache.Cache
}

// Option configures an Engine
type Option func(*options)

type options struct {
	store storage.Storage
	emb   embedder.Embedder
}

// WithStorage uses store instead of opening storage.path. The engine takes
// ownership and closes it.
func WithStorage(store storage.Storage) Option {
	return func(o *options) { o.store = store }
}

// WithEmbedder uses emb instead of the configured provider
func WithEmbedder(emb embedder.Embedder) Option {
	return func(o *options) { o.emb = emb }
}

// New builds an Engine. The caller owns the returned value and must Close it.
func New(cfg *config.Config, logger *charmlog.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{Config: cfg, Logger: logger}

	est, err := tokens.NewWithFallback(cfg.Tokens.Estimator, cfg.Tokens.Encoding)
	if err != nil {
		logger.Warn("token estimator unavailable, using heuristic", "estimator", cfg.Tokens.Estimator, "err", err)
	}
	e.Estimator = est

	e.Filter, err = filter.New(cfg.FilterConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to build code filter: %w", err)
	}

	e.Storage = o.store
	if e.Storage == nil {
		e.Storage, err = storage.NewSQLiteStorage(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
	}

	e.Embedder = o.emb
	if e.Embedder == nil {
		e.Embedder, err = embedder.NewFromConfig(cfg.EmbedderConfig())
		if err != nil {
			_ = e.Storage.Close()
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
	}

	if cfg.Injection.Cache.Enabled {
		e.Cache, err = chunkcache.New(cfg.ChunkCacheConfig())
		if err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("failed to create chunk cache: %w", err)
		}
	}

	e.Injector, err = e.buildInjector()
	if err != nil {
		_ = e.Close()
		return nil, err
	}

	e.Searcher = searcher.New(e.Storage, e.Embedder, cfg.SearcherConfig())
	e.Ingester = ingest.New(e.Storage, e.Embedder, e.Filter)
	return e, nil
}

// onDemandEmbedder returns the embedder the scorer may call for candidates
// stored without a vector. Only the local provider qualifies: the hook has a
// hard deadline and a remote provider would cost one round trip per
// candidate.
func onDemandEmbedder(emb embedder.Embedder) scorer.Embedder {
	if emb == nil || emb.Provider() != embedder.ProviderLocal {
		return nil
	}
	return emb
}

func (e *Engine) buildInjector() (*injector.Injector, error) {
	var scoreOpts []scorer.Option
	if emb := onDemandEmbedder(e.Embedder); emb != nil {
		scoreOpts = append(scoreOpts, scorer.WithEmbedder(emb))
	}
	sc, err := scorer.New(e.Config.ScorerConfig(), scoreOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build scorer: %w", err)
	}
	sum, err := summarizer.New(e.Config.SummarizerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to build summarizer: %w", err)
	}

	chunkOpts := append(e.Config.ChunkerOptions(), chunker.WithEstimator(e.Estimator))
	if e.Cache != nil {
		chunkOpts = append(chunkOpts, chunker.WithCache(e.Cache))
	}

	inj, err := injector.New(e.Config.InjectorConfig(), sc, sum,
		injector.WithChunker(chunker.New(chunkOpts...)),
		injector.WithEstimator(e.Estimator),
		injector.WithDiagnostics(logging.NewDiagnosticsSink(e.Logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build injector: %w", err)
	}
	return inj, nil
}

// Close releases the embedder and storage
func (e *Engine) Close() error {
	var errs []error
	if e.Embedder != nil {
		errs = append(errs, e.Embedder.Close())
	}
	if e.Storage != nil {
		errs = append(errs, e.Storage.Close())
	}
	return errors.Join(errs...)
}

// ContextRequest describes code about to be written
type ContextRequest struct {
	FilePath    string
	Content     string // new content (Write) or replacement (Edit)
	ToolType    injector.ToolType
	ProjectRoot string // detected from FilePath when empty
	Limit       int    // search limit, 0 uses the search config
	Threshold   float64
}

// ContextResult is an injection plus the search that fed it
type ContextResult struct {
	types.InjectionResult
	Query      string
	Candidates int
}

// BuildContext searches the knowledge base for code related to req and
// renders the injection. Non-code files and empty queries produce an empty
// result, not an error.
func (e *Engine) BuildContext(ctx context.Context, req ContextRequest) (*ContextResult, error) {
	if req.FilePath == "" {
		return nil, types.ErrMissingFilePath
	}
	if req.ToolType == "" {
		req.ToolType = injector.ToolWrite
	}
	if !e.Filter.IsCode(req.FilePath, req.Content) {
		return &ContextResult{}, nil
	}

	query := searcher.ExtractTerms(req.Content, req.FilePath)
	res := &ContextResult{Query: query}
	if query == "" {
		return res, nil
	}

	resp, err := e.Searcher.Search(ctx, searcher.Request{
		Query:        query,
		Limit:        req.Limit,
		Threshold:    req.Threshold,
		KeepTextHits: true,
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	if resp.SemanticError != nil {
		e.Logger.Warn("semantic search degraded", "err", resp.SemanticError)
	}
	candidates := resp.Candidates()
	res.Candidates = len(candidates)
	if len(candidates) == 0 {
		return res, nil
	}

	root := req.ProjectRoot
	if root == "" {
		root = project.Root(req.FilePath)
	}

	injReq := injector.Request{
		Candidates:  candidates,
		FilePath:    req.FilePath,
		ProjectRoot: root,
		ToolType:    req.ToolType,
		ContextText: embedder.CodeText(req.FilePath, req.Content),
	}
	res.InjectionResult = e.Injector.Inject(ctx, injReq)
	if res.Degraded {
		e.Logger.Warn("injection degraded", "file", req.FilePath, "err", res.Cause)
	}
	return res, nil
}

// Memory is one code change to remember
type Memory struct {
	FilePath  string
	NewCode   string
	OldCode   string
	Context   string
	SessionID string
}

// Remember stores m with an embedding of its new code. Files rejected by the
// code filter return ErrNotCode. An embedding failure is logged and the
// memory is stored without a vector.
func (e *Engine) Remember(ctx context.Context, m Memory) (string, error) {
	if m.FilePath == "" {
		return "", types.ErrMissingFilePath
	}
	if !e.Filter.IsCode(m.FilePath, m.NewCode) {
		return "", ErrNotCode
	}

	entry := &storage.MemoryEntry{
		FilePath:  m.FilePath,
		NewCode:   m.NewCode,
		OldCode:   m.OldCode,
		Context:   m.Context,
		SessionID: m.SessionID,
	}
	if m.NewCode != "" {
		emb, err := e.Embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
			Text: embedder.CodeText(m.FilePath, m.NewCode),
		})
		if err != nil {
			e.Logger.Warn("embedding failed, storing without vector", "file", m.FilePath, "err", err)
		} else {
			entry.Embedding = emb.Vector
			entry.EmbeddingModel = emb.Model
		}
	}

	id, err := e.Storage.Store(ctx, entry)
	if err != nil {
		return "", err
	}
	e.Searcher.InvalidateCache()
	return id, nil
}

// Ingest seeds the knowledge base from a directory
func (e *Engine) Ingest(ctx context.Context, dir string, cfg *ingest.Config) (*ingest.Result, error) {
	res, err := e.Ingester.IngestDirectory(ctx, dir, cfg)
	if err != nil {
		return nil, err
	}
	if res.Stored > 0 {
		e.Searcher.InvalidateCache()
	}
	return res, nil
}
