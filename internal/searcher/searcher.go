package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/afterimage-mcp/internal/embedder"
	"github.com/dshills/afterimage-mcp/internal/storage"
	"github.com/dshills/afterimage-mcp/internal/vector"
	"github.com/dshills/afterimage-mcp/pkg/types"
)

// SearchMode defines how search is performed
type SearchMode string

const (
	SearchModeHybrid  SearchMode = "hybrid"  // Weighted FTS + semantic
	SearchModeVector  SearchMode = "vector"  // Semantic similarity only
	SearchModeKeyword SearchMode = "keyword" // BM25 text search only
)

// Defaults, matching the knowledge-base search of the hook
const (
	DefaultLimit          = 20
	DefaultThreshold      = 0.1
	DefaultFTSWeight      = 0.4
	DefaultSemanticWeight = 0.6
	DefaultScanLimit      = 1000
	DefaultCacheSize      = 1000
	DefaultCacheTTL       = time.Minute

	maxLimit = 100
)

// ErrEmptyQuery is returned when a request has no searchable text
var ErrEmptyQuery = errors.New("query cannot be empty")

// Config holds the searcher tuning knobs
type Config struct {
	Limit          int
	Threshold      float64
	FTSWeight      float64
	SemanticWeight float64
	ScanLimit      int // stored embeddings compared per semantic pass
	CacheSize      int // 0 disables the query cache
	CacheTTL       time.Duration
}

// DefaultConfig returns the default search configuration
func DefaultConfig() Config {
	return Config{
		Limit:          DefaultLimit,
		Threshold:      DefaultThreshold,
		FTSWeight:      DefaultFTSWeight,
		SemanticWeight: DefaultSemanticWeight,
		ScanLimit:      DefaultScanLimit,
		CacheSize:      DefaultCacheSize,
		CacheTTL:       DefaultCacheTTL,
	}
}

// Request contains parameters for a search operation
type Request struct {
	Query string
	Limit int // 0 uses Config.Limit
	// Threshold is the minimum combined score. Zero uses Config.Threshold;
	// a negative value keeps every hit.
	Threshold  float64
	PathFilter string // substring the file path must contain
	Mode       SearchMode
	// KeepTextHits keeps keyword matches that score below the threshold
	KeepTextHits bool
}

// Result is one scored knowledge-base entry
type Result struct {
	Entry         *storage.MemoryEntry
	Score         float64
	FTSScore      float64
	SemanticScore float64
}

// Candidate converts the result into an injection candidate carrying the
// combined score as its backend score.
func (r Result) Candidate() types.Candidate {
	c := r.Entry.Candidate()
	score := r.Score
	c.BackendScore = &score
	return c
}

// Response contains search results and metadata
type Response struct {
	Results       []Result
	Mode          SearchMode
	Duration      time.Duration
	CacheHit      bool
	TextHits      int
	SemanticHits  int
	SemanticError error // set when the semantic pass failed and hybrid degraded
}

// Candidates returns the results as injection candidates, best first
func (r *Response) Candidates() []types.Candidate {
	out := make([]types.Candidate, len(r.Results))
	for i, res := range r.Results {
		out[i] = res.Candidate()
	}
	return out
}

type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// Searcher runs hybrid searches over the knowledge base
type Searcher struct {
	storage  storage.Storage
	embedder embedder.Embedder
	cfg      Config

	cache   *lru.Cache[[32]byte, *cacheEntry]
	cacheMu sync.RWMutex
}

// New creates a Searcher. emb may be nil, in which case every search runs
// in keyword mode.
func New(store storage.Storage, emb embedder.Embedder, cfg Config) *Searcher {
	cfg = withDefaults(cfg)
	s := &Searcher{storage: store, embedder: emb, cfg: cfg}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[[32]byte, *cacheEntry](cfg.CacheSize)
		if err != nil {
			panic(fmt.Sprintf("failed to create LRU cache: %v", err))
		}
		s.cache = cache
	}
	return s
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.FTSWeight == 0 && cfg.SemanticWeight == 0 {
		cfg.FTSWeight, cfg.SemanticWeight = def.FTSWeight, def.SemanticWeight
	}
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = def.ScanLimit
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	return cfg
}

// Config returns the effective configuration
func (s *Searcher) Config() Config {
	return s.cfg
}

// Search performs a search based on the request parameters
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if err := s.normalize(&req); err != nil {
		return nil, err
	}

	key := computeQueryHash(req)
	if cached := s.checkCache(key); cached != nil {
		cached.CacheHit = true
		cached.Duration = time.Since(start)
		return cached, nil
	}

	var (
		resp *Response
		err  error
	)
	switch req.Mode {
	case SearchModeHybrid:
		resp, err = s.hybridSearch(ctx, req)
	case SearchModeVector:
		resp, err = s.vectorSearch(ctx, req)
	case SearchModeKeyword:
		resp, err = s.keywordSearch(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported search mode: %s", req.Mode)
	}
	if err != nil {
		return nil, err
	}

	resp.Mode = req.Mode
	resp.Duration = time.Since(start)
	if len(resp.Results) > 0 {
		s.storeInCache(key, resp)
	}
	return resp, nil
}

// SearchCandidates runs Search and returns injection candidates
func (s *Searcher) SearchCandidates(ctx context.Context, req Request) ([]types.Candidate, error) {
	resp, err := s.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Candidates(), nil
}

func (s *Searcher) normalize(req *Request) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return ErrEmptyQuery
	}
	if req.Limit <= 0 {
		req.Limit = s.cfg.Limit
	}
	if req.Limit > maxLimit {
		req.Limit = maxLimit
	}
	if req.Threshold == 0 {
		req.Threshold = s.cfg.Threshold
	}
	if req.Mode == "" {
		req.Mode = SearchModeHybrid
	}
	if s.embedder == nil && req.Mode == SearchModeHybrid {
		req.Mode = SearchModeKeyword
	}
	if s.embedder == nil && req.Mode == SearchModeVector {
		return fmt.Errorf("vector search: %w", types.ErrEmbeddingUnavailable)
	}
	return nil
}

type scored struct {
	entry *storage.MemoryEntry
	score float64
}

type passResult struct {
	hits []scored
	err  error
}

func (s *Searcher) runTextSearch(ctx context.Context, req Request, out chan<- passResult) {
	var res passResult
	res.hits, res.err = s.textPass(ctx, req)
	select {
	case out <- res:
	case <-ctx.Done():
	}
}

func (s *Searcher) runVectorSearch(ctx context.Context, req Request, out chan<- passResult) {
	var res passResult
	res.hits, res.err = s.semanticPass(ctx, req)
	select {
	case out <- res:
	case <-ctx.Done():
	}
}

// hybridSearch runs both passes concurrently and combines them. Either pass
// may fail on its own; the search fails only when both do.
func (s *Searcher) hybridSearch(ctx context.Context, req Request) (*Response, error) {
	textChan := make(chan passResult, 1)
	vectorChan := make(chan passResult, 1)

	go s.runTextSearch(ctx, req, textChan)
	go s.runVectorSearch(ctx, req, vectorChan)

	var textRes, vectorRes passResult
	var textDone, vectorDone bool
	for !textDone || !vectorDone {
		select {
		case textRes = <-textChan:
			textDone = true
		case vectorRes = <-vectorChan:
			vectorDone = true
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if textRes.err != nil && vectorRes.err != nil {
		return nil, fmt.Errorf("both searches failed: text=%w, semantic=%v", textRes.err, vectorRes.err)
	}

	return &Response{
		Results:       s.combine(textRes.hits, vectorRes.hits, req),
		TextHits:      len(textRes.hits),
		SemanticHits:  len(vectorRes.hits),
		SemanticError: vectorRes.err,
	}, nil
}

func (s *Searcher) keywordSearch(ctx context.Context, req Request) (*Response, error) {
	hits, err := s.textPass(ctx, req)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{Entry: h.entry, Score: h.score, FTSScore: h.score})
	}
	return &Response{Results: finish(results, req), TextHits: len(hits)}, nil
}

func (s *Searcher) vectorSearch(ctx context.Context, req Request) (*Response, error) {
	hits, err := s.semanticPass(ctx, req)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{Entry: h.entry, Score: h.score, SemanticScore: h.score})
	}
	return &Response{Results: finish(results, req), SemanticHits: len(hits)}, nil
}

// textPass returns FTS hits with BM25 ranks normalized to (0,1]. bm25() is
// negative and more negative is a stronger match, so the strongest hit maps
// to 1 and weaker hits fall toward 1/(max+1).
func (s *Searcher) textPass(ctx context.Context, req Request) ([]scored, error) {
	hits, err := s.storage.SearchText(ctx, req.Query, req.Limit*2)
	if errors.Is(err, storage.ErrEmptyQuery) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if req.PathFilter != "" {
		kept := hits[:0]
		for _, h := range hits {
			if strings.Contains(h.Entry.FilePath, req.PathFilter) {
				kept = append(kept, h)
			}
		}
		hits = kept
	}
	if len(hits) == 0 {
		return nil, nil
	}

	maxAbs := 0.0
	for _, h := range hits {
		maxAbs = math.Max(maxAbs, math.Abs(h.Rank))
	}

	out := make([]scored, len(hits))
	for i, h := range hits {
		norm := 0.5
		if maxAbs > 0 {
			norm = 1 - (maxAbs-math.Abs(h.Rank))/(maxAbs+1)
		}
		out[i] = scored{entry: h.Entry, score: norm}
	}
	return out, nil
}

// semanticPass embeds the query and compares it against stored vectors of
// the same model and dimension.
func (s *Searcher) semanticPass(ctx context.Context, req Request) ([]scored, error) {
	emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: req.Query})
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	entries, err := s.storage.EmbeddedEntries(ctx, s.cfg.ScanLimit)
	if err != nil {
		return nil, err
	}

	var out []scored
	for _, e := range entries {
		if req.PathFilter != "" && !strings.Contains(e.FilePath, req.PathFilter) {
			continue
		}
		if e.EmbeddingModel != "" && e.EmbeddingModel != emb.Model {
			continue
		}
		sim, ok := vector.Cosine(emb.Vector, e.Embedding)
		if !ok {
			continue
		}
		out = append(out, scored{entry: e, score: math.Max(sim, 0)})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	if len(out) > req.Limit*2 {
		out = out[:req.Limit*2]
	}
	return out, nil
}

// combine merges both passes by entry ID into weighted scores
func (s *Searcher) combine(text, semantic []scored, req Request) []Result {
	byID := make(map[string]*Result, len(text)+len(semantic))
	var order []string

	get := func(e *storage.MemoryEntry) *Result {
		if r, ok := byID[e.ID]; ok {
			return r
		}
		r := &Result{Entry: e}
		byID[e.ID] = r
		order = append(order, e.ID)
		return r
	}
	for _, h := range text {
		get(h.entry).FTSScore = h.score
	}
	for _, h := range semantic {
		get(h.entry).SemanticScore = h.score
	}

	results := make([]Result, 0, len(order))
	for _, id := range order {
		r := byID[id]
		r.Score = s.cfg.FTSWeight*r.FTSScore + s.cfg.SemanticWeight*r.SemanticScore
		results = append(results, *r)
	}
	return finish(results, req)
}

// finish applies the threshold, sorts best first and truncates to the limit
func finish(results []Result, req Request) []Result {
	kept := results[:0]
	for _, r := range results {
		if r.Score >= req.Threshold || (req.KeepTextHits && r.FTSScore > 0) {
			kept = append(kept, r)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].Entry.Timestamp.After(kept[j].Entry.Timestamp)
	})
	if len(kept) > req.Limit {
		kept = kept[:req.Limit]
	}
	return kept
}

func (s *Searcher) checkCache(key [32]byte) *Response {
	if s.cache == nil {
		return nil
	}

	s.cacheMu.RLock()
	entry, found := s.cache.Get(key)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		s.cacheMu.RUnlock()
		s.cacheMu.Lock()
		s.cache.Remove(key)
		s.cacheMu.Unlock()
		return nil
	}
	resp := copyResponse(entry.response)
	s.cacheMu.RUnlock()
	return resp
}

func (s *Searcher) storeInCache(key [32]byte, resp *Response) {
	if s.cache == nil {
		return
	}
	entry := &cacheEntry{
		response:  copyResponse(resp),
		expiresAt: time.Now().Add(s.cfg.CacheTTL),
	}
	s.cacheMu.Lock()
	s.cache.Add(key, entry)
	s.cacheMu.Unlock()
}

// InvalidateCache drops every cached response. Call it after the knowledge
// base changes.
func (s *Searcher) InvalidateCache() {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// copyResponse copies the result slice; entries are shared and treated as
// read-only.
func copyResponse(src *Response) *Response {
	dst := *src
	dst.Results = append([]Result(nil), src.Results...)
	return &dst
}

func computeQueryHash(req Request) [32]byte {
	var b strings.Builder
	b.WriteString(req.Query)
	fmt.Fprintf(&b, "|%s|%d|%.4f|%s|%t", req.Mode, req.Limit, req.Threshold, req.PathFilter, req.KeepTextHits)
	return sha256.Sum256([]byte(b.String()))
}
