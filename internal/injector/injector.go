package injector

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/afterimage-mcp/internal/budget"
	"github.com/dshills/afterimage-mcp/internal/language"
	"github.com/dshills/afterimage-mcp/internal/scorer"
	"github.com/dshills/afterimage-mcp/internal/summarizer"
	"github.com/dshills/afterimage-mcp/internal/tokens"
	"github.com/dshills/afterimage-mcp/pkg/types"
)

// ToolType is the assistant tool being augmented
type ToolType string

const (
	ToolWrite ToolType = "Write"
	ToolEdit  ToolType = "Edit"
)

// Defaults
const (
	DefaultMaxTokens    = 2000
	DefaultFallbackTopN = 3
)

// Chunker breaks full-content candidates into units. *chunker.Chunker
// satisfies it.
type Chunker interface {
	Chunk(ctx context.Context, filePath, content string, lang language.Language) ([]types.SourceUnit, error)
}

// Config controls the injection pipeline
type Config struct {
	Enabled         bool
	MaxTokens       int
	MaxCandidates   int
	ChunkingEnabled bool
	FallbackOnError bool
	LogErrors       bool
	FallbackTopN    int
}

// DefaultConfig returns the default injection configuration
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		MaxTokens:       DefaultMaxTokens,
		MaxCandidates:   scorer.DefaultMaxCandidates,
		ChunkingEnabled: true,
		FallbackOnError: true,
		LogErrors:       true,
		FallbackTopN:    DefaultFallbackTopN,
	}
}

// Request is one injection call
type Request struct {
	Candidates  []types.Candidate
	FilePath    string
	ProjectRoot string
	ToolType    ToolType

	// ContextEmbedding embeds the code being written; ContextText is
	// embedded on demand when it is missing.
	ContextEmbedding []float32
	ContextText      string
}

// Injector turns search candidates into one token-bounded text block
type Injector struct {
	cfg        Config
	scorer     *scorer.Scorer
	summarizer *summarizer.Summarizer
	chunker    Chunker
	budget     *budget.Manager
	estimator  tokens.Estimator
	diag       Diagnostics
}

// Option configures an Injector
type Option func(*Injector)

// WithChunker supplies the structural breakdown of full-content candidates
func WithChunker(c Chunker) Option {
	return func(inj *Injector) { inj.chunker = c }
}

// WithEstimator sets the token estimator shared with the budget manager
func WithEstimator(est tokens.Estimator) Option {
	return func(inj *Injector) { inj.estimator = est }
}

// WithDiagnostics sets the sink for failure and warning events
func WithDiagnostics(d Diagnostics) Option {
	return func(inj *Injector) { inj.diag = d }
}

// New creates an injector around a scorer and a summarizer
func New(cfg Config, sc *scorer.Scorer, sum *summarizer.Summarizer, opts ...Option) (*Injector, error) {
	if sc == nil || sum == nil {
		return nil, fmt.Errorf("injector requires a scorer and a summarizer")
	}
	if cfg.MaxTokens <= 0 {
		return nil, fmt.Errorf("injector max tokens must be positive, got %d", cfg.MaxTokens)
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = scorer.DefaultMaxCandidates
	}
	if cfg.FallbackTopN <= 0 {
		cfg.FallbackTopN = DefaultFallbackTopN
	}

	inj := &Injector{
		cfg:        cfg,
		scorer:     sc,
		summarizer: sum,
		estimator:  tokens.Heuristic{},
		diag:       nopDiagnostics{},
	}
	for _, opt := range opts {
		opt(inj)
	}
	inj.budget = budget.New(inj.estimator, cfg.MaxTokens)
	return inj, nil
}

// Inject renders the injection for req. It never panics and never returns
// an error: a pipeline failure degrades to the top raw candidates (when
// fallback is enabled) or to an empty result, with Degraded and Cause set.
func (inj *Injector) Inject(ctx context.Context, req Request) types.InjectionResult {
	if !inj.cfg.Enabled || len(req.Candidates) == 0 {
		return types.InjectionResult{}
	}

	res, err := guard(func() (types.InjectionResult, error) {
		return inj.inject(ctx, req)
	})
	if err == nil {
		return res
	}

	cause := fmt.Errorf("%w: %w", types.ErrInjectionFailed, err)
	inj.report(Event{Level: LevelFailure, Kind: KindInjectionFailure, Err: cause,
		Fields: map[string]any{"file": req.FilePath, "candidates": len(req.Candidates)}})

	degraded := types.InjectionResult{Degraded: true, Cause: cause}
	if !inj.cfg.FallbackOnError {
		return degraded
	}

	fb, err := guard(func() (types.InjectionResult, error) {
		return inj.fallback(req)
	})
	if err != nil {
		inj.report(Event{Level: LevelFailure, Kind: KindFallbackFailure, Err: err,
			Fields: map[string]any{"file": req.FilePath}})
		return degraded
	}
	fb.Degraded = true
	fb.Cause = cause
	return fb
}

// guard runs fn and converts a panic into an error
func guard(fn func() (types.InjectionResult, error)) (res types.InjectionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = types.InjectionResult{}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func (inj *Injector) inject(ctx context.Context, req Request) (types.InjectionResult, error) {
	candidates := make([]types.Candidate, 0, min(len(req.Candidates), inj.cfg.MaxCandidates))
	for _, c := range req.Candidates {
		if len(candidates) == inj.cfg.MaxCandidates {
			break
		}
		if c.Validate() == nil {
			candidates = append(candidates, c)
		}
	}

	scored := inj.scorer.Score(ctx, scorer.Request{
		Candidates:       candidates,
		FilePath:         req.FilePath,
		ProjectRoot:      req.ProjectRoot,
		ContextEmbedding: req.ContextEmbedding,
		ContextText:      req.ContextText,
	})
	if len(scored.Warnings) > 0 {
		inj.report(Event{Level: LevelWarning, Kind: KindScoringDegraded, Err: scored.Warnings[0],
			Fields: map[string]any{"degraded": scored.Degraded, "warnings": len(scored.Warnings)}})
	}
	if len(scored.Snippets) == 0 {
		return types.InjectionResult{}, nil
	}

	summary := inj.summarizer.Summarize(scored.Snippets)

	entries := make([]entry, 0, len(summary.Entries))
	for _, e := range summary.Entries {
		rendered, err := inj.renderEntry(ctx, e, req)
		if err != nil {
			return types.InjectionResult{}, err
		}
		entries = append(entries, rendered)
	}

	return inj.assemble(entries), nil
}

// fallback renders the first few valid candidates in input order with no
// scoring or chunking.
func (inj *Injector) fallback(req Request) (types.InjectionResult, error) {
	var entries []entry
	for _, c := range req.Candidates {
		if len(entries) >= inj.cfg.FallbackTopN {
			break
		}
		if c.Validate() != nil {
			continue
		}
		entries = append(entries, inj.renderRaw(c, req.ProjectRoot))
	}
	return inj.assemble(entries), nil
}

func (inj *Injector) report(e Event) {
	if inj.cfg.LogErrors {
		inj.diag.Report(e)
	}
}

// assemble allocates the budget over the rendered entries and joins the
// survivors under a header. A final check trims entries until the whole
// text fits MaxTokens.
func (inj *Injector) assemble(entries []entry) types.InjectionResult {
	if len(entries) == 0 {
		return types.InjectionResult{}
	}

	// The header for the largest possible count costs at least as much as
	// the final one.
	reserve := inj.estimator.Estimate(header(len(entries)))
	items := make([]budget.Item, len(entries))
	byKey := make(map[string]entry, len(entries))
	for i, e := range entries {
		key := fmt.Sprint(i)
		items[i] = budget.Item{
			Key:      key,
			Score:    e.score,
			Overhead: inj.estimator.Estimate(e.prefix) + inj.estimator.Estimate(e.suffix),
			Text:     e.body,
		}
		byKey[key] = e
	}

	alloc := inj.budget.Allocate(items, inj.cfg.MaxTokens-reserve)
	included := make([]entry, 0, len(alloc.Items))
	for _, it := range alloc.Items {
		included = append(included, byKey[it.Key].withBody(it.Text))
	}

	truncated := alloc.Truncated
	var text string
	for len(included) > 0 {
		text = render(included)
		over := inj.estimator.Estimate(text) - inj.cfg.MaxTokens
		if over <= 0 {
			break
		}
		if len(included) > 1 {
			included = included[:len(included)-1]
			continue
		}
		body := inj.budget.Truncate(included[0].body, inj.estimator.Estimate(included[0].body)-over)
		if body == "" || body == included[0].body {
			included = nil
			break
		}
		included[0] = included[0].withBody(body)
		truncated = true
	}
	if len(included) == 0 {
		return types.InjectionResult{}
	}

	members := 0
	for _, e := range included {
		members += e.members
	}
	return types.InjectionResult{
		Text:             text,
		TokensUsed:       inj.estimator.Estimate(text),
		SnippetsIncluded: members,
		Truncated:        truncated,
	}
}

func render(entries []entry) string {
	var b strings.Builder
	b.WriteString(header(len(entries)))
	for _, e := range entries {
		b.WriteString(e.prefix)
		b.WriteString(e.body)
		b.WriteString(e.suffix)
	}
	return b.String()
}
