package injector

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/afterimage-mcp/internal/chunker"
	"github.com/dshills/afterimage-mcp/internal/embedder"
	"github.com/dshills/afterimage-mcp/internal/language"
	"github.com/dshills/afterimage-mcp/internal/scorer"
	"github.com/dshills/afterimage-mcp/internal/summarizer"
	"github.com/dshills/afterimage-mcp/internal/tokens"
	"github.com/dshills/afterimage-mcp/pkg/types"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type recordingDiagnostics struct {
	events []Event
}

func (r *recordingDiagnostics) Report(e Event) {
	r.events = append(r.events, e)
}

func (r *recordingDiagnostics) kinds() []string {
	var out []string
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

type panickingChunker struct{}

func (panickingChunker) Chunk(context.Context, string, string, language.Language) ([]types.SourceUnit, error) {
	panic("malformed input")
}

type failingChunker struct{}

func (failingChunker) Chunk(context.Context, string, string, language.Language) ([]types.SourceUnit, error) {
	return nil, errors.New("cache fill failed")
}

type offlineEmbedder struct{}

func (offlineEmbedder) GenerateEmbedding(context.Context, embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	return nil, errors.New("provider offline")
}

type fixture struct {
	cfg        Config
	scorerOpts []scorer.Option
	sumCfg     summarizer.Config
	opts       []Option
	diag       *recordingDiagnostics
}

func newFixture() *fixture {
	return &fixture{
		cfg:    DefaultConfig(),
		sumCfg: summarizer.DefaultConfig(),
		diag:   &recordingDiagnostics{},
	}
}

func (f *fixture) build(t *testing.T) *Injector {
	t.Helper()
	sc, err := scorer.New(scorer.DefaultConfig(),
		append([]scorer.Option{scorer.WithClock(func() time.Time { return fixedNow })}, f.scorerOpts...)...)
	require.NoError(t, err)
	sum, err := summarizer.New(f.sumCfg)
	require.NoError(t, err)

	opts := append([]Option{WithDiagnostics(f.diag)}, f.opts...)
	inj, err := New(f.cfg, sc, sum, opts...)
	require.NoError(t, err)
	return inj
}

const goFoo = `package pkg

// Foo does foo
func Foo() int {
	return 1
}
`

func bigGoSource() string {
	var b strings.Builder
	b.WriteString("package big\n\nfunc Big() {\n")
	for i := 0; i < 130; i++ {
		fmt.Fprintf(&b, "\tvalue%03d := compute(%d) // keeps the function long\n", i, i)
	}
	b.WriteString("}\n")
	return b.String()
}

func TestInject_DisabledOrEmpty(t *testing.T) {
	f := newFixture()
	f.cfg.Enabled = false
	inj := f.build(t)

	res := inj.Inject(context.Background(), Request{
		Candidates: []types.Candidate{{ID: "1", FilePath: "/p/a.go", NewCode: goFoo, Timestamp: fixedNow}},
		FilePath:   "/p/a.go",
		ToolType:   ToolWrite,
	})
	assert.True(t, res.IsEmpty())

	inj = newFixture().build(t)
	res = inj.Inject(context.Background(), Request{FilePath: "/p/a.go", ToolType: ToolWrite})
	assert.True(t, res.IsEmpty())
	assert.False(t, res.Degraded)
}

func TestInject_WriteFraming(t *testing.T) {
	f := newFixture()
	f.opts = append(f.opts, WithChunker(chunker.New()))
	inj := f.build(t)

	res := inj.Inject(context.Background(), Request{
		FilePath:    "/proj/pkg/b.go",
		ProjectRoot: "/proj",
		ToolType:    ToolWrite,
		Candidates: []types.Candidate{
			{ID: "1", FilePath: "/proj/pkg/a.go", NewCode: goFoo, Timestamp: fixedNow.Add(-time.Hour)},
			{ID: "2", FilePath: "/proj/pkg/c.py", NewCode: "def bar():\n    return 2\n", Timestamp: fixedNow.Add(-2 * time.Hour)},
		},
	})

	require.False(t, res.IsEmpty())
	assert.False(t, res.Degraded)
	assert.False(t, res.Truncated)
	assert.Equal(t, 2, res.SnippetsIncluded)
	assert.True(t, strings.HasPrefix(res.Text, "[AfterImage] 2 related snippet(s)"))
	assert.Contains(t, res.Text, "### pkg/a.go:3-6 defines Foo (relevance")
	assert.Contains(t, res.Text, "```go\n// Foo does foo\nfunc Foo() int {\n\treturn 1\n}\n```")
	assert.NotContains(t, res.Text, "package pkg", "lines outside the units are not rendered")
	assert.Contains(t, res.Text, "### pkg/c.py:1-2 defines bar (relevance")
	assert.Contains(t, res.Text, "```python\n")
	assert.Less(t, strings.Index(res.Text, "pkg/a.go"), strings.Index(res.Text, "pkg/c.py"))
	assert.Equal(t, tokens.Heuristic{}.Estimate(res.Text), res.TokensUsed)
	assert.LessOrEqual(t, res.TokensUsed, DefaultMaxTokens)
}

func TestInject_EditFraming(t *testing.T) {
	inj := newFixture().build(t)

	res := inj.Inject(context.Background(), Request{
		FilePath: "/p/a.go",
		ToolType: ToolEdit,
		Candidates: []types.Candidate{
			{ID: "1", FilePath: "/p/a.go", OldCode: "limit := 10\nretry := 1", NewCode: "limit := 20\nretry := 3", Timestamp: fixedNow},
		},
	})

	require.False(t, res.IsEmpty())
	assert.Contains(t, res.Text, "### /p/a.go (edit, relevance")
	assert.Contains(t, res.Text, "```diff\n-limit := 10\n-retry := 1\n+limit := 20\n+retry := 3\n```")
}

func TestInject_EditWithoutOldCodeUsesWriteFraming(t *testing.T) {
	inj := newFixture().build(t)

	res := inj.Inject(context.Background(), Request{
		FilePath:   "/p/a.go",
		ToolType:   ToolEdit,
		Candidates: []types.Candidate{{ID: "1", FilePath: "/p/a.go", NewCode: goFoo, Timestamp: fixedNow}},
	})

	require.False(t, res.IsEmpty())
	assert.NotContains(t, res.Text, "```diff")
	assert.Contains(t, res.Text, "### /p/a.go:1-6 (relevance")
	assert.Contains(t, res.Text, "```go\n")
}

// One candidate far larger than the budget yields exactly one truncated
// entry within max tokens.
func TestInject_OversizeCandidateIsTruncated(t *testing.T) {
	f := newFixture()
	f.cfg.MaxTokens = 500
	f.opts = append(f.opts, WithChunker(chunker.New(chunker.WithMaxChunkTokens(500))))
	inj := f.build(t)

	src := bigGoSource()
	require.Greater(t, tokens.Heuristic{}.Estimate(src), 1200)

	res := inj.Inject(context.Background(), Request{
		FilePath:    "/proj/big.go",
		ProjectRoot: "/proj",
		ToolType:    ToolWrite,
		Candidates:  []types.Candidate{{ID: "big", FilePath: "/proj/big.go", NewCode: src, Timestamp: fixedNow}},
	})

	require.False(t, res.IsEmpty())
	assert.True(t, res.Truncated)
	assert.False(t, res.Degraded)
	assert.Equal(t, 1, res.SnippetsIncluded)
	assert.LessOrEqual(t, res.TokensUsed, 500)
	assert.Greater(t, res.TokensUsed, 400)
	assert.Regexp(t, `### big\.go:3-\d+ defines Big`, res.Text)
	assert.NotContains(t, res.Text, "### big.go:3-134", "the range ends where the truncated body ends")
	assert.True(t, strings.HasSuffix(res.Text, "\n```\n"))
	assertSpansMatchSource(t, res.Text, src)
}

var spanHeader = regexp.MustCompile("(?m)^### \\S+:(\\d+)-(\\d+).*\n```\\w*\n")

// assertSpansMatchSource checks that every line-range descriptor in text
// names exactly the source lines rendered beneath it.
func assertSpansMatchSource(t *testing.T, text, src string) {
	t.Helper()
	srcLines := strings.Split(src, "\n")
	matches := spanHeader.FindAllStringSubmatchIndex(text, -1)
	require.NotEmpty(t, matches)
	for _, m := range matches {
		start, err := strconv.Atoi(text[m[2]:m[3]])
		require.NoError(t, err)
		end, err := strconv.Atoi(text[m[4]:m[5]])
		require.NoError(t, err)

		body := text[m[1]:]
		body = body[:strings.Index(body, "\n```\n")]
		lines := strings.Split(body, "\n")

		require.Equal(t, end-start+1, len(lines), "descriptor %d-%d over %d body lines", start, end, len(lines))
		for i, line := range lines {
			assert.Equal(t, srcLines[start-1+i], line, "line %d", start+i)
		}
	}
}

func TestInject_DescriptorMatchesRenderedLines(t *testing.T) {
	tests := []struct {
		name      string
		maxTokens int
		chunking  bool
		truncated bool
	}{
		{"chunked", DefaultMaxTokens, true, false},
		{"chunked and truncated", 300, true, true},
		{"whole file", DefaultMaxTokens, false, false},
		{"whole file truncated", 300, false, true},
	}
	src := bigGoSource()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.cfg.MaxTokens = tt.maxTokens
			f.cfg.ChunkingEnabled = tt.chunking
			f.opts = append(f.opts, WithChunker(chunker.New(chunker.WithMaxChunkTokens(500))))
			inj := f.build(t)

			res := inj.Inject(context.Background(), Request{
				FilePath:    "/proj/other.go",
				ProjectRoot: "/proj",
				ToolType:    ToolWrite,
				Candidates:  []types.Candidate{{ID: "big", FilePath: "/proj/big.go", NewCode: src, Timestamp: fixedNow}},
			})

			require.False(t, res.IsEmpty())
			assert.Equal(t, tt.truncated, res.Truncated)
			assertSpansMatchSource(t, res.Text, src)
		})
	}
}

// A chunker that panics on malformed input degrades to the raw fallback
// and the panic never escapes Inject.
func TestInject_ChunkerPanicFallsBack(t *testing.T) {
	f := newFixture()
	f.cfg.MaxTokens = 300
	f.opts = append(f.opts, WithChunker(panickingChunker{}))
	inj := f.build(t)

	var res types.InjectionResult
	require.NotPanics(t, func() {
		res = inj.Inject(context.Background(), Request{
			FilePath:   "/p/a.go",
			ToolType:   ToolWrite,
			Candidates: []types.Candidate{{ID: "1", FilePath: "/p/a.go", NewCode: goFoo, Timestamp: fixedNow}},
		})
	})

	assert.True(t, res.Degraded)
	assert.ErrorIs(t, res.Cause, types.ErrInjectionFailed)
	assert.Contains(t, res.Cause.Error(), "malformed input")
	require.False(t, res.IsEmpty())
	assert.Contains(t, res.Text, "### /p/a.go\n```go\n")
	assert.LessOrEqual(t, res.TokensUsed, 300)
	assert.Contains(t, f.diag.kinds(), KindInjectionFailure)
}

func TestInject_FailureWithoutFallbackIsEmpty(t *testing.T) {
	f := newFixture()
	f.cfg.FallbackOnError = false
	f.opts = append(f.opts, WithChunker(failingChunker{}))
	inj := f.build(t)

	res := inj.Inject(context.Background(), Request{
		FilePath:   "/p/a.go",
		ToolType:   ToolWrite,
		Candidates: []types.Candidate{{ID: "1", FilePath: "/p/a.go", NewCode: goFoo, Timestamp: fixedNow}},
	})

	assert.True(t, res.IsEmpty())
	assert.True(t, res.Degraded)
	assert.ErrorIs(t, res.Cause, types.ErrInjectionFailed)
}

func TestInject_FallbackTakesTopNInInputOrder(t *testing.T) {
	f := newFixture()
	f.cfg.FallbackTopN = 2
	f.opts = append(f.opts, WithChunker(failingChunker{}))
	inj := f.build(t)

	res := inj.Inject(context.Background(), Request{
		FilePath: "/p/a.go",
		ToolType: ToolWrite,
		Candidates: []types.Candidate{
			{ID: "empty", FilePath: "/p/skip.go"},
			{ID: "1", FilePath: "/p/one.go", NewCode: "one()", Timestamp: fixedNow},
			{ID: "2", FilePath: "/p/two.go", NewCode: "two()", Timestamp: fixedNow},
			{ID: "3", FilePath: "/p/three.go", NewCode: "three()", Timestamp: fixedNow},
		},
	})

	require.False(t, res.IsEmpty())
	assert.True(t, res.Degraded)
	assert.Equal(t, 2, res.SnippetsIncluded)
	assert.NotContains(t, res.Text, "skip.go")
	assert.NotContains(t, res.Text, "three.go")
	assert.Less(t, strings.Index(res.Text, "one.go"), strings.Index(res.Text, "two.go"))
}

// With the embedding provider down the injection still happens and a
// warning is reported.
func TestInject_EmbeddingOutageDegradesScoringOnly(t *testing.T) {
	f := newFixture()
	f.scorerOpts = append(f.scorerOpts, scorer.WithEmbedder(offlineEmbedder{}))
	inj := f.build(t)

	res := inj.Inject(context.Background(), Request{
		FilePath:    "/p/a.go",
		ToolType:    ToolWrite,
		ContextText: "package p",
		Candidates:  []types.Candidate{{ID: "1", FilePath: "/p/a.go", NewCode: goFoo, Timestamp: fixedNow}},
	})

	require.False(t, res.IsEmpty())
	assert.False(t, res.Degraded)
	require.NotEmpty(t, f.diag.events)
	assert.Equal(t, KindScoringDegraded, f.diag.events[0].Kind)
	assert.Equal(t, LevelWarning, f.diag.events[0].Level)
	assert.ErrorIs(t, f.diag.events[0].Err, types.ErrEmbeddingUnavailable)
}

func TestInject_LogErrorsOff(t *testing.T) {
	f := newFixture()
	f.cfg.LogErrors = false
	f.opts = append(f.opts, WithChunker(failingChunker{}))
	inj := f.build(t)

	res := inj.Inject(context.Background(), Request{
		FilePath:   "/p/a.go",
		ToolType:   ToolWrite,
		Candidates: []types.Candidate{{ID: "1", FilePath: "/p/a.go", NewCode: goFoo, Timestamp: fixedNow}},
	})

	assert.True(t, res.Degraded)
	assert.Empty(t, f.diag.events)
}

func TestInject_SummarizesNearDuplicates(t *testing.T) {
	inj := newFixture().build(t)

	var cands []types.Candidate
	for i := 0; i < 3; i++ {
		cands = append(cands, types.Candidate{
			ID:        fmt.Sprint(i),
			FilePath:  fmt.Sprintf("/p/handler%d.go", i),
			NewCode:   goFoo,
			Timestamp: fixedNow.Add(-time.Duration(i) * time.Hour),
		})
	}

	res := inj.Inject(context.Background(), Request{FilePath: "/p/main.go", ToolType: ToolWrite, Candidates: cands})

	require.False(t, res.IsEmpty())
	assert.Equal(t, 3, res.SnippetsIncluded)
	assert.Contains(t, res.Text, "### summary of 3 snippets (relevance")
	assert.Contains(t, res.Text, "3 similar snippets: func Foo() int")
	assert.Contains(t, res.Text, "files: handler0.go, handler1.go, handler2.go")
	assert.True(t, strings.HasPrefix(res.Text, "[AfterImage] 1 related snippet(s)"))
}

func TestInject_NeverExceedsMaxTokens(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	for round := 0; round < 40; round++ {
		f := newFixture()
		f.cfg.MaxTokens = rng.Intn(600) + 20
		f.opts = append(f.opts, WithChunker(chunker.New(chunker.WithMaxChunkTokens(100))))
		inj := f.build(t)

		var cands []types.Candidate
		for i := 0; i < rng.Intn(8)+1; i++ {
			var b strings.Builder
			for l := 0; l < rng.Intn(80)+1; l++ {
				fmt.Fprintf(&b, "func f%d_%d() { return %d }\n", i, l, rng.Intn(1000))
			}
			c := types.Candidate{
				ID:        fmt.Sprint(i),
				FilePath:  fmt.Sprintf("/p/f%d.go", i),
				NewCode:   b.String(),
				Timestamp: fixedNow.Add(-time.Duration(rng.Intn(100)) * time.Hour),
			}
			if rng.Intn(2) == 0 {
				c.OldCode = "old()"
			}
			cands = append(cands, c)
		}
		tool := ToolWrite
		if rng.Intn(2) == 0 {
			tool = ToolEdit
		}

		res := inj.Inject(context.Background(), Request{FilePath: "/p/main.go", ToolType: tool, Candidates: cands})

		assert.LessOrEqual(t, res.TokensUsed, f.cfg.MaxTokens, "round %d", round)
		assert.Equal(t, tokens.Heuristic{}.Estimate(res.Text), res.TokensUsed, "round %d", round)
		assert.False(t, res.Degraded, "round %d", round)
	}
}

func TestNew_Validates(t *testing.T) {
	sc, err := scorer.New(scorer.DefaultConfig())
	require.NoError(t, err)
	sum, err := summarizer.New(summarizer.DefaultConfig())
	require.NoError(t, err)

	_, err = New(DefaultConfig(), nil, sum)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.MaxTokens = 0
	_, err = New(cfg, sc, sum)
	assert.Error(t, err)
}

func TestDiffBody(t *testing.T) {
	assert.Equal(t, "-a\n-b\n+c", diffBody("a\nb\n", "c\n"))
}

func TestDisplayPath(t *testing.T) {
	assert.Equal(t, "pkg/a.go", displayPath("/proj/pkg/a.go", "/proj"))
	assert.Equal(t, "/other/a.go", displayPath("/other/a.go", "/proj"))
	assert.Equal(t, "/x/a.go", displayPath("/x/a.go", ""))
}
