package chunker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dshills/afterimage-mcp/internal/chunkcache"
	"github.com/dshills/afterimage-mcp/internal/language"
	"github.com/dshills/afterimage-mcp/internal/parser"
	"github.com/dshills/afterimage-mcp/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goSource = `package testpkg

import (
	"fmt"
	"strings"
)

const MaxUsers = 10

var prefix = "u-"

// User is a user
type User struct {
	Name string
}

// GetName returns the upper-cased name
func (u *User) GetName() string {
	return strings.ToUpper(u.Name)
}

func Greet(name string) {
	fmt.Println(prefix + name)
}
`

type unitShape struct {
	kind       types.ChunkType
	name       string
	start, end int
}

func shapes(units []types.SourceUnit) []unitShape {
	out := make([]unitShape, len(units))
	for i, u := range units {
		out[i] = unitShape{u.ChunkType, u.Name, u.StartLine, u.EndLine}
	}
	return out
}

// assertWellFormed checks ordering, disjointness and the token ceiling
func assertWellFormed(t *testing.T, units []types.SourceUnit, maxTokens int) {
	t.Helper()
	for i, u := range units {
		require.NoError(t, u.Validate(maxTokens), u.ID)
		if i == 0 {
			continue
		}
		prev := units[i-1]
		sameLineCut := prev.StartLine == prev.EndLine && u.StartLine == prev.EndLine && u.IsPartial()
		if !sameLineCut {
			assert.Greater(t, u.StartLine, prev.EndLine, "units must not overlap: %s / %s", prev.ID, u.ID)
		}
	}
}

func TestNew(t *testing.T) {
	c := New()
	assert.NotNil(t, c)
	assert.Equal(t, DefaultMaxChunkTokens, c.MaxChunkTokens())
}

func TestChunk_GoStructural(t *testing.T) {
	units, err := New().Chunk(context.Background(), "user.go", goSource, language.Go)
	require.NoError(t, err)

	assert.Equal(t, []unitShape{
		{types.ChunkImports, "imports", 3, 6},
		{types.ChunkConstants, "MaxUsers, prefix", 8, 10},
		{types.ChunkClass, "User", 12, 15},
		{types.ChunkMethod, "User.GetName", 17, 20},
		{types.ChunkFunction, "Greet", 22, 24},
	}, shapes(units))
	assertWellFormed(t, units, DefaultMaxChunkTokens)

	assert.Contains(t, units[3].Content, "// GetName returns")
	assert.Equal(t, "user.go:22-24", units[4].ID)
}

func TestChunk_DetectsLanguage(t *testing.T) {
	units, err := New().Chunk(context.Background(), "user.go", goSource, language.Unknown)
	require.NoError(t, err)
	require.Len(t, units, 5)
	assert.Equal(t, types.ChunkImports, units[0].ChunkType)
}

func TestChunk_SyntaxErrorFallsBackToHeuristic(t *testing.T) {
	src := `package broken

import "fmt"

func Good() {
	fmt.Println("ok")
}

func Bad( {
`
	units, err := New().Chunk(context.Background(), "broken.go", src, language.Go)
	require.NoError(t, err)

	assert.Equal(t, []unitShape{
		{types.ChunkImports, "imports", 1, 3},
		{types.ChunkFunction, "Good", 5, 7},
		{types.ChunkFunction, "Bad", 9, 9},
	}, shapes(units))
	assertWellFormed(t, units, DefaultMaxChunkTokens)
}

func TestChunk_HeuristicAttachesComments(t *testing.T) {
	src := `require 'json'

# Parses input
def parse(x)
  JSON.parse(x)
end

def dump(x)
  x.to_json
end
`
	units, err := New().Chunk(context.Background(), "codec.rb", src, language.Ruby)
	require.NoError(t, err)

	assert.Equal(t, []unitShape{
		{types.ChunkImports, "imports", 1, 1},
		{types.ChunkFunction, "parse", 3, 6},
		{types.ChunkFunction, "dump", 8, 10},
	}, shapes(units))
}

func TestChunk_NoMarkersUsesBlocks(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 100; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}

	units, err := New(WithBlockLines(40)).Chunk(context.Background(), "notes.txt", b.String(), language.Unknown)
	require.NoError(t, err)

	assert.Equal(t, []unitShape{
		{types.ChunkBlock, "lines 1-40", 1, 40},
		{types.ChunkBlock, "lines 41-80", 41, 80},
		{types.ChunkBlock, "lines 81-100", 81, 100},
	}, shapes(units))
}

func TestChunk_OversizeSplit(t *testing.T) {
	var b strings.Builder
	b.WriteString("package big\n\nfunc Big() {\n")
	for i := 0; i < 60; i++ {
		b.WriteString("\tx := 1234567890 // padding\n")
	}
	b.WriteString("}\n")

	const limit = 50
	units, err := New(WithMaxChunkTokens(limit)).Chunk(context.Background(), "big.go", b.String(), language.Go)
	require.NoError(t, err)
	require.Greater(t, len(units), 1)
	assertWellFormed(t, units, limit)

	n := len(units)
	for i, u := range units {
		assert.Equal(t, i+1, u.PartIndex)
		assert.Equal(t, n, u.PartCount)
		assert.Equal(t, fmt.Sprintf("Big (part %d/%d)", i+1, n), u.Name)
		assert.Equal(t, types.ChunkFunction, u.ChunkType)
	}
	assert.Equal(t, 3, units[0].StartLine)
	assert.Equal(t, 64, units[n-1].EndLine)
	for i := 1; i < n; i++ {
		assert.Equal(t, units[i-1].EndLine+1, units[i].StartLine, "pieces are sequential")
	}
}

func TestChunk_LongLineIsCut(t *testing.T) {
	line := strings.Repeat("abcdefghij", 100)

	units, err := New(WithMaxChunkTokens(50)).Chunk(context.Background(), "blob.txt", line, language.Unknown)
	require.NoError(t, err)
	require.Len(t, units, 5)
	assertWellFormed(t, units, 50)

	var joined strings.Builder
	for _, u := range units {
		assert.Equal(t, 1, u.StartLine)
		assert.Equal(t, 1, u.EndLine)
		joined.WriteString(u.Content)
	}
	assert.Equal(t, line, joined.String())
}

// Only the pieces of a hard-cut line may share a line number with another
// unit, and those pieces are always parts of a split unit.
func TestChunk_SharedLinesOnlyBetweenParts(t *testing.T) {
	src := "package x\n\nfunc A() {}\n\nfunc B() {\n\ts := \"" + strings.Repeat("0123456789", 80) + "\"\n\t_ = s\n}\n"

	units, err := New(WithMaxChunkTokens(50)).Chunk(context.Background(), "x.go", src, language.Go)
	require.NoError(t, err)
	assertWellFormed(t, units, 50)

	shared := 0
	for i, u := range units {
		for j, other := range units {
			if i == j || u.EndLine < other.StartLine || other.EndLine < u.StartLine {
				continue
			}
			shared++
			assert.Greater(t, u.PartIndex, 0, "%s shares lines with %s", u.ID, other.ID)
			assert.Equal(t, u.StartLine, u.EndLine, u.ID)
		}
	}
	assert.Greater(t, shared, 0, "the long line is cut into pieces")

	for _, u := range units {
		if u.Name == "A" {
			assert.Zero(t, u.PartIndex)
			assert.Equal(t, 3, u.StartLine)
		}
		if u.StartLine == 6 {
			assert.Equal(t, 6, u.EndLine)
			assert.True(t, strings.HasPrefix(u.Name, "B (part "), u.Name)
		}
	}
}

func TestChunk_Deterministic(t *testing.T) {
	c := New(WithMaxChunkTokens(20))
	first, err := c.Chunk(context.Background(), "user.go", goSource, language.Go)
	require.NoError(t, err)
	second, err := c.Chunk(context.Background(), "user.go", goSource, language.Go)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestChunk_Empty(t *testing.T) {
	units, err := New().Chunk(context.Background(), "empty.go", "", language.Go)
	require.NoError(t, err)
	assert.Empty(t, units)

	units, err = New().Chunk(context.Background(), "blank.txt", "\n\n  \n", language.Unknown)
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestChunk_StructuralPanicFallsBack(t *testing.T) {
	c := New(WithStrategy(language.Go, Strategy{
		Structural: func(context.Context, string, []byte) (*types.ParseResult, error) {
			panic("parser bug")
		},
	}))

	units, err := c.Chunk(context.Background(), "user.go", goSource, language.Go)
	require.NoError(t, err)
	require.NotEmpty(t, units)
	assertWellFormed(t, units, DefaultMaxChunkTokens)
	assert.Equal(t, "User.GetName", units[len(units)-2].Name)
}

func TestStructuralSpans_ParseFailure(t *testing.T) {
	tests := []struct {
		name  string
		parse StructuralFunc
	}{
		{"parser error", func(context.Context, string, []byte) (*types.ParseResult, error) {
			return nil, errors.New("grammar unavailable")
		}},
		{"nil result", func(context.Context, string, []byte) (*types.ParseResult, error) {
			return nil, nil
		}},
		{"syntax error", func(context.Context, string, []byte) (*types.ParseResult, error) {
			return &types.ParseResult{Errors: []types.ParseError{{Line: 3, Message: "expected ')'"}}}, nil
		}},
		{"no declarations", func(context.Context, string, []byte) (*types.ParseResult, error) {
			return &types.ParseResult{}, nil
		}},
		{"panic", func(context.Context, string, []byte) (*types.ParseResult, error) {
			panic("parser bug")
		}},
	}

	c := New()
	lines := splitLines(goSource)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spans, err := c.structuralSpans(context.Background(), Strategy{Structural: tt.parse}, "user.go", goSource, lines)
			assert.ErrorIs(t, err, types.ErrParseFailure)
			assert.Contains(t, err.Error(), "user.go")
			assert.Empty(t, spans)
		})
	}

	spans, err := c.structuralSpans(context.Background(), Strategy{}, "user.go", goSource, lines)
	assert.NoError(t, err, "no structural parser is not a failure")
	assert.Empty(t, spans)

	spans, err = c.structuralSpans(context.Background(), c.strategyFor(language.Go), "user.go", goSource, lines)
	require.NoError(t, err)
	assert.NotEmpty(t, spans)
}

func TestChunk_HeuristicPanicYieldsWholeFile(t *testing.T) {
	c := New(WithStrategy(language.Ruby, Strategy{
		Heuristic: func(string) []parser.Marker {
			panic("regex bug")
		},
	}))

	src := "def a\nend\n\ndef b\nend\n"
	units, err := c.Chunk(context.Background(), "x.rb", src, language.Ruby)
	require.NoError(t, err)
	assert.Equal(t, []unitShape{{types.ChunkBlock, "file", 1, 5}}, shapes(units))
}

func TestChunk_UsesCache(t *testing.T) {
	cache, err := chunkcache.New(chunkcache.Config{MaxEntries: 8, TTL: time.Minute})
	require.NoError(t, err)

	c := New(WithCache(cache))
	first, err := c.Chunk(context.Background(), "user.go", goSource, language.Go)
	require.NoError(t, err)
	second, err := c.Chunk(context.Background(), "user.go", goSource, language.Go)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, 1, stats.Size)

	// Changed content is a new key
	_, err = c.Chunk(context.Background(), "user.go", goSource+"\nfunc Extra() {}\n", language.Go)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Stats().Size)
}

func BenchmarkChunk_Go(b *testing.B) {
	c := New()
	for i := 0; i < b.N; i++ {
		_, _ = c.Chunk(context.Background(), "user.go", goSource, language.Go)
	}
}
