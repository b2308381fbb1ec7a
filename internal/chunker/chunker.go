package chunker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/afterimage-mcp/internal/chunkcache"
	"github.com/dshills/afterimage-mcp/internal/language"
	"github.com/dshills/afterimage-mcp/internal/parser"
	"github.com/dshills/afterimage-mcp/internal/tokens"
	"github.com/dshills/afterimage-mcp/pkg/types"
)

const (
	// DefaultMaxChunkTokens is the per-unit token ceiling
	DefaultMaxChunkTokens = 500

	// DefaultBlockLines is the size of fixed line blocks used when no
	// declarations can be found
	DefaultBlockLines = 40
)

// Chunker splits source files into semantic units. It is safe for concurrent
// use when its cache is.
type Chunker struct {
	estimator      tokens.Estimator
	maxChunkTokens int
	blockLines     int
	strategies     map[language.Language]Strategy
	cache          *chunkcache.Cache
}

// Option configures a Chunker
type Option func(*Chunker)

// WithEstimator sets the token estimator
func WithEstimator(est tokens.Estimator) Option {
	return func(c *Chunker) {
		if est != nil {
			c.estimator = est
		}
	}
}

// WithMaxChunkTokens sets the per-unit token ceiling
func WithMaxChunkTokens(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxChunkTokens = n
		}
	}
}

// WithBlockLines sets the line count of fallback blocks
func WithBlockLines(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.blockLines = n
		}
	}
}

// WithCache memoizes results in cache
func WithCache(cache *chunkcache.Cache) Option {
	return func(c *Chunker) {
		c.cache = cache
	}
}

// WithStrategy overrides the strategy for one language
func WithStrategy(lang language.Language, s Strategy) Option {
	return func(c *Chunker) {
		c.strategies[lang] = s
	}
}

// New creates a new Chunker instance
func New(opts ...Option) *Chunker {
	c := &Chunker{
		estimator:      tokens.Heuristic{},
		maxChunkTokens: DefaultMaxChunkTokens,
		blockLines:     DefaultBlockLines,
		strategies:     defaultStrategies(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxChunkTokens returns the configured per-unit token ceiling
func (c *Chunker) MaxChunkTokens() int {
	return c.maxChunkTokens
}

// Chunk splits content into units ordered by start line. When lang is
// Unknown it is detected from the path and content. Chunking itself never
// fails; an error is only returned when the cache fill does.
func (c *Chunker) Chunk(ctx context.Context, filePath, content string, lang language.Language) ([]types.SourceUnit, error) {
	if content == "" {
		return nil, nil
	}
	if lang == language.Unknown {
		lang = language.Detect(filePath, content)
	}

	if c.cache == nil {
		return c.chunk(ctx, filePath, content, lang), nil
	}

	key := chunkcache.Key{
		FilePath:       filePath,
		ContentHash:    types.HashContent(content),
		MaxChunkTokens: c.maxChunkTokens,
	}
	return c.cache.GetOrCompute(key, func() ([]types.SourceUnit, error) {
		return c.chunk(ctx, filePath, content, lang), nil
	})
}

// span is a line range that becomes one unit before size splitting
type span struct {
	start, end int // 1-based inclusive
	kind       types.ChunkType
	name       string
}

func (c *Chunker) chunk(ctx context.Context, filePath, content string, lang language.Language) []types.SourceUnit {
	lines := splitLines(content)
	strategy := c.strategyFor(lang)

	spans, err := c.structuralSpans(ctx, strategy, filePath, content, lines)
	ok := err == nil && len(spans) > 0
	if !ok {
		spans, ok = c.heuristicSpans(strategy, content, lines, language.FamilyOf(lang))
	}
	if !ok {
		spans = []span{{start: 1, end: len(lines), kind: types.ChunkBlock, name: "file"}}
	}

	spans = normalizeSpans(spans, len(lines))
	return c.buildUnits(filePath, lines, spans)
}

// structuralSpans runs the structural parser. A strategy without one yields
// no spans. A parser error, recorded syntax error, panic or a result without
// declarations is reported as types.ErrParseFailure.
func (c *Chunker) structuralSpans(ctx context.Context, s Strategy, filePath, content string, lines []string) (spans []span, err error) {
	if s.Structural == nil {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			spans, err = nil, fmt.Errorf("%w: %s: panic: %v", types.ErrParseFailure, filePath, r)
		}
	}()

	result, err := s.Structural(ctx, filePath, []byte(content))
	switch {
	case err != nil:
		return nil, fmt.Errorf("%w: %s: %w", types.ErrParseFailure, filePath, err)
	case result == nil:
		return nil, fmt.Errorf("%w: %s: no result", types.ErrParseFailure, filePath)
	case result.HasErrors():
		first := result.Errors[0]
		return nil, fmt.Errorf("%w: %s:%d: %s", types.ErrParseFailure, filePath, first.Line, first.Message)
	}

	spans = c.spansFromSymbols(result.Symbols, lines)
	if len(spans) == 0 {
		return nil, fmt.Errorf("%w: %s: no declarations", types.ErrParseFailure, filePath)
	}
	return spans, nil
}

// heuristicSpans runs signature matching. With no markers the file is cut
// into fixed line blocks. A panic reports ok=false.
func (c *Chunker) heuristicSpans(s Strategy, content string, lines []string, family language.Family) (spans []span, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			spans, ok = nil, false
		}
	}()

	markers := s.Heuristic(content)
	if len(markers) == 0 {
		return c.blockSpans(lines), true
	}
	return spansFromMarkers(markers, lines, family), true
}

func (c *Chunker) spansFromSymbols(symbols []types.Symbol, lines []string) []span {
	sorted := make([]types.Symbol, len(symbols))
	copy(sorted, symbols)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Line < sorted[j].Start.Line
	})

	var classes []types.Symbol
	for _, sym := range sorted {
		if sym.Kind == types.KindClass {
			classes = append(classes, sym)
		}
	}

	var spans []span
	for _, sym := range sorted {
		if sym.Kind == types.KindMethod && enclosingClass(sym, classes) != nil {
			continue
		}

		switch sym.Kind {
		case types.KindImport, types.KindConst:
			kind := sym.ChunkType()
			if n := len(spans); n > 0 && spans[n-1].kind == kind {
				spans[n-1].end = max(spans[n-1].end, sym.End.Line)
				spans[n-1].name = joinName(spans[n-1].name, sym.Name)
				continue
			}
			name := sym.Name
			if kind == types.ChunkImports {
				name = "imports"
			}
			spans = append(spans, span{start: sym.Start.Line, end: sym.End.Line, kind: kind, name: name})
		case types.KindClass:
			spans = append(spans, c.classSpans(sym, methodsOf(sym, sorted), lines)...)
		default:
			spans = append(spans, span{
				start: sym.Start.Line,
				end:   sym.End.Line,
				kind:  sym.ChunkType(),
				name:  sym.QualifiedName(),
			})
		}
	}
	return spans
}

// classSpans keeps a class whole when it fits, otherwise emits a header unit
// and one unit per method. Lines between methods go to the following method
// and trailing lines to the last one, so the class range stays covered.
func (c *Chunker) classSpans(class types.Symbol, methods []types.Symbol, lines []string) []span {
	whole := span{start: class.Start.Line, end: class.End.Line, kind: types.ChunkClass, name: class.Name}
	if len(methods) == 0 || c.estimator.Estimate(joinLines(lines, whole.start, whole.end)) <= c.maxChunkTokens {
		return []span{whole}
	}

	var spans []span
	if methods[0].Start.Line > class.Start.Line {
		spans = append(spans, span{
			start: class.Start.Line,
			end:   methods[0].Start.Line - 1,
			kind:  types.ChunkClass,
			name:  class.Name,
		})
	}
	for i, m := range methods {
		s := span{start: m.Start.Line, end: m.End.Line, kind: types.ChunkMethod, name: m.QualifiedName()}
		if i > 0 {
			s.start = methods[i-1].End.Line + 1
		}
		if i == len(methods)-1 {
			s.end = class.End.Line
		}
		spans = append(spans, s)
	}
	return spans
}

func enclosingClass(method types.Symbol, classes []types.Symbol) *types.Symbol {
	for i := range classes {
		cl := &classes[i]
		if cl.Name == method.Parent && cl.Start.Line <= method.Start.Line && method.End.Line <= cl.End.Line {
			return cl
		}
	}
	return nil
}

func methodsOf(class types.Symbol, symbols []types.Symbol) []types.Symbol {
	var methods []types.Symbol
	for _, sym := range symbols {
		if sym.Kind == types.KindMethod && sym.Parent == class.Name &&
			class.Start.Line <= sym.Start.Line && sym.End.Line <= class.End.Line {
			methods = append(methods, sym)
		}
	}
	return methods
}

// spansFromMarkers cuts the file at the shallowest signature lines. Comment
// and decorator lines directly above a signature belong to it.
func spansFromMarkers(markers []parser.Marker, lines []string, family language.Family) []span {
	minIndent := markers[0].Indent
	for _, m := range markers {
		minIndent = min(minIndent, m.Indent)
	}

	var top []parser.Marker
	for _, m := range markers {
		if m.Indent == minIndent {
			top = append(top, m)
		}
	}

	starts := make([]int, len(top))
	floor := 0
	for i, m := range top {
		start := m.Line
		for start-1 > floor && isAttachedLine(lines[start-2]) {
			start--
		}
		starts[i] = start
		floor = m.Line
	}

	var spans []span
	if imp, ok := importSpan(lines, starts[0]-1, family); ok {
		spans = append(spans, imp)
	}
	for i, m := range top {
		end := len(lines)
		if i+1 < len(top) {
			end = starts[i+1] - 1
		}
		name := m.Name
		kind := types.ChunkFunction
		switch m.Kind {
		case types.KindClass:
			kind = types.ChunkClass
		case types.KindMethod:
			kind = types.ChunkMethod
			name = m.Parent + "." + m.Name
		}
		spans = append(spans, span{start: starts[i], end: end, kind: kind, name: name})
	}
	return spans
}

// importSpan finds the leading run of import lines within the first limit
// lines. Blank, comment and continuation lines inside the run are kept.
func importSpan(lines []string, limit int, family language.Family) (span, bool) {
	first := -1
	last := -1
	for i := 0; i < limit && i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if parser.IsImportLine(line, family) {
			if first < 0 {
				first = i
			}
			last = i
			continue
		}
		if first < 0 {
			continue
		}
		continuation := trimmed == "" || parser.IsCommentLine(trimmed) ||
			strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") ||
			trimmed == ")" || trimmed == "}" || strings.HasPrefix(trimmed, ")") || strings.HasPrefix(trimmed, "}")
		if !continuation {
			break
		}
		if trimmed != "" && !parser.IsCommentLine(trimmed) {
			last = i
		}
	}
	if first < 0 {
		return span{}, false
	}
	return span{start: first + 1, end: last + 1, kind: types.ChunkImports, name: "imports"}, true
}

func isAttachedLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed != "" && parser.IsCommentLine(trimmed)
}

func (c *Chunker) blockSpans(lines []string) []span {
	var spans []span
	for start := 1; start <= len(lines); start += c.blockLines {
		end := min(start+c.blockLines-1, len(lines))
		spans = append(spans, span{
			start: start,
			end:   end,
			kind:  types.ChunkBlock,
			name:  fmt.Sprintf("lines %d-%d", start, end),
		})
	}
	return spans
}

// normalizeSpans clamps spans to the file, trims blank edges and removes
// overlap so that units come out ordered and disjoint.
func normalizeSpans(spans []span, lineCount int) []span {
	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].start < spans[j].start
	})

	out := spans[:0]
	prevEnd := 0
	for _, s := range spans {
		s.start = max(s.start, prevEnd+1, 1)
		s.end = min(s.end, lineCount)
		if s.start > s.end {
			continue
		}
		out = append(out, s)
		prevEnd = s.end
	}
	return out
}

func (c *Chunker) buildUnits(filePath string, lines []string, spans []span) []types.SourceUnit {
	units := make([]types.SourceUnit, 0, len(spans))
	for _, s := range spans {
		start, end := trimBlankEdges(lines, s.start, s.end)
		if start > end {
			continue
		}
		content := joinLines(lines, start, end)
		count := c.estimator.Estimate(content)
		if count <= c.maxChunkTokens {
			units = append(units, newUnit(filePath, s.kind, s.name, start, end, content, count, 0, 0))
			continue
		}
		units = append(units, c.split(filePath, s.kind, s.name, lines, start, end)...)
	}
	return units
}

func newUnit(filePath string, kind types.ChunkType, name string, start, end int, content string, count, part, parts int) types.SourceUnit {
	return types.SourceUnit{
		ID:          types.UnitID(filePath, start, end, part),
		ChunkType:   kind,
		Name:        name,
		FilePath:    filePath,
		StartLine:   start,
		EndLine:     end,
		Content:     content,
		ContentHash: types.HashContent(content),
		TokenCount:  count,
		PartIndex:   part,
		PartCount:   parts,
	}
}

// splitLines splits content into lines, ignoring a single trailing newline
func splitLines(content string) []string {
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}

// joinLines joins the 1-based inclusive line range
func joinLines(lines []string, start, end int) string {
	return strings.Join(lines[start-1:end], "\n")
}

func trimBlankEdges(lines []string, start, end int) (int, int) {
	for start <= end && strings.TrimSpace(lines[start-1]) == "" {
		start++
	}
	for end >= start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return start, end
}

func joinName(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "" || a == b:
		return a
	default:
		return a + ", " + b
	}
}
