package scorer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dshills/afterimage-mcp/internal/embedder"
	"github.com/dshills/afterimage-mcp/internal/vector"
	"github.com/dshills/afterimage-mcp/pkg/types"
)

const (
	// DefaultHalfLife is the age at which the recency factor reaches 0.5
	DefaultHalfLife = 168 * time.Hour

	// DefaultMaxCandidates bounds the work of one Score call
	DefaultMaxCandidates = 50

	// DefaultMinRelevance drops candidates scoring below it
	DefaultMinRelevance = 0.1
)

// Embedder computes embeddings on demand for candidates that arrive without
// one. embedder.Embedder satisfies it.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error)
}

// Config holds the scoring parameters
type Config struct {
	Weights       Weights
	MinRelevance  float64
	HalfLife      time.Duration
	MaxCandidates int
}

// DefaultConfig returns the default scoring configuration
func DefaultConfig() Config {
	return Config{
		Weights:       DefaultWeights(),
		MinRelevance:  DefaultMinRelevance,
		HalfLife:      DefaultHalfLife,
		MaxCandidates: DefaultMaxCandidates,
	}
}

// Request is one ranking call
type Request struct {
	Candidates  []types.Candidate
	FilePath    string
	ProjectRoot string

	// ContextEmbedding is the embedding of the code being written. When
	// empty and an Embedder is configured, ContextText is embedded instead.
	ContextEmbedding []float32
	ContextText      string
}

// Result holds the ranked survivors and bookkeeping about the call
type Result struct {
	Snippets []types.ScoredSnippet

	Considered int // candidates scored after the cap
	Filtered   int // dropped below the minimum relevance
	Degraded   int // scored without the semantic factor

	// Warnings wrap types.ErrEmbeddingUnavailable
	Warnings []error
}

// Scorer ranks candidates by a weighted composite of recency, proximity,
// semantic similarity and project membership.
type Scorer struct {
	cfg      Config
	embedder Embedder
	now      func() time.Time
}

// Option configures a Scorer
type Option func(*Scorer)

// WithEmbedder enables on-demand embedding of candidates and context
func WithEmbedder(e Embedder) Option {
	return func(s *Scorer) { s.embedder = e }
}

// WithClock overrides the time source used for recency
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

// New creates a scorer. Invalid weights are rejected here so that a bad
// configuration fails before any request is served.
func New(cfg Config, opts ...Option) (*Scorer, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if cfg.MinRelevance < 0 || cfg.MinRelevance > 1 {
		return nil, fmt.Errorf("%w: min relevance %v outside [0,1]", ErrInvalidWeights, cfg.MinRelevance)
	}
	if cfg.HalfLife <= 0 {
		cfg.HalfLife = DefaultHalfLife
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultMaxCandidates
	}

	s := &Scorer{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Score computes the factors and composite of each candidate, drops those
// below the minimum relevance and sorts the rest by composite, then
// recency, then input order.
func (s *Scorer) Score(ctx context.Context, req Request) *Result {
	candidates := req.Candidates
	if len(candidates) > s.cfg.MaxCandidates {
		candidates = candidates[:s.cfg.MaxCandidates]
	}

	res := &Result{Considered: len(candidates)}
	if len(candidates) == 0 {
		return res
	}

	now := s.now()
	ctxVec := s.contextEmbedding(ctx, req, res)
	degradedWeights := s.cfg.Weights.WithoutSemantic()

	res.Snippets = make([]types.ScoredSnippet, 0, len(candidates))
	for i, c := range candidates {
		f := types.Factors{
			Recency:   Recency(c.Timestamp, now, s.cfg.HalfLife),
			Proximity: Proximity(c.FilePath, req.FilePath, req.ProjectRoot),
			Project:   Project(c.FilePath, req.ProjectRoot),
		}

		if len(ctxVec) > 0 {
			if emb := s.candidateEmbedding(ctx, &c, res); emb != nil {
				if _, ok := vector.Cosine(emb, ctxVec); ok {
					f.Semantic = vector.Similarity(emb, ctxVec)
					f.SemanticUsed = true
				} else {
					res.Warnings = append(res.Warnings, fmt.Errorf("%w: candidate %s: dimension %d, context %d",
						types.ErrEmbeddingUnavailable, c.ID, len(emb), len(ctxVec)))
				}
			}
		}

		w := s.cfg.Weights
		if !f.SemanticUsed {
			w = degradedWeights
			res.Degraded++
		}

		snippet := types.ScoredSnippet{
			Candidate: c,
			Factors:   f,
			Composite: composite(f, w),
			Index:     i,
		}
		if snippet.Composite < s.cfg.MinRelevance {
			res.Filtered++
			continue
		}
		res.Snippets = append(res.Snippets, snippet)
	}

	sort.SliceStable(res.Snippets, func(i, j int) bool {
		a, b := res.Snippets[i], res.Snippets[j]
		if a.Composite != b.Composite {
			return a.Composite > b.Composite
		}
		return a.Factors.Recency > b.Factors.Recency
	})

	return res
}

func (s *Scorer) contextEmbedding(ctx context.Context, req Request, res *Result) []float32 {
	if len(req.ContextEmbedding) > 0 {
		return req.ContextEmbedding
	}
	if s.embedder == nil || req.ContextText == "" || ctx.Err() != nil {
		res.Warnings = append(res.Warnings, fmt.Errorf("%w: no context embedding", types.ErrEmbeddingUnavailable))
		return nil
	}

	emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: req.ContextText})
	if err != nil || emb == nil || len(emb.Vector) == 0 {
		res.Warnings = append(res.Warnings, fmt.Errorf("%w: context: %v", types.ErrEmbeddingUnavailable, err))
		return nil
	}
	return emb.Vector
}

// candidateEmbedding returns the candidate's vector, computing and
// attaching it when missing.
func (s *Scorer) candidateEmbedding(ctx context.Context, c *types.Candidate, res *Result) []float32 {
	if c.HasEmbedding() {
		return c.Embedding
	}
	if s.embedder == nil || ctx.Err() != nil {
		res.Warnings = append(res.Warnings, fmt.Errorf("%w: candidate %s has no embedding", types.ErrEmbeddingUnavailable, c.ID))
		return nil
	}

	emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: embedder.CodeText(c.FilePath, c.Content())})
	if err != nil || emb == nil || len(emb.Vector) == 0 {
		res.Warnings = append(res.Warnings, fmt.Errorf("%w: candidate %s: %v", types.ErrEmbeddingUnavailable, c.ID, err))
		return nil
	}
	c.Embedding = emb.Vector
	return c.Embedding
}

func composite(f types.Factors, w Weights) float64 {
	score := w.Recency*f.Recency + w.Proximity*f.Proximity + w.Project*f.Project
	if f.SemanticUsed {
		score += w.Semantic * f.Semantic
	}
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	}
	return score
}
