package summarizer

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/afterimage-mcp/pkg/types"
)

const parseConfigA = `func parseConfig(path string) (*Config, error) {
	data := readFile(path)
	return decodeConfig(data)
}`

const parseConfigB = `func parseConfig(path string) (*Config, error) {
	data := readFile(path)
	log(path)
	return decodeConfig(data)
}`

func snippet(id, path, content string, composite float64) types.ScoredSnippet {
	return types.ScoredSnippet{
		Candidate: types.Candidate{ID: id, FilePath: path, NewCode: content},
		Composite: composite,
	}
}

func distinct(i int, composite float64) types.ScoredSnippet {
	return snippet(fmt.Sprintf("d%d", i), fmt.Sprintf("/p/d%d.go", i),
		fmt.Sprintf("func handler%d() { process%d(input%d) }", i, i, i), composite)
}

func newTestSummarizer(t *testing.T, mutate func(*Config)) *Summarizer {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func memberTotal(res *Result) int {
	total := res.Dropped
	for _, e := range res.Entries {
		total += e.MemberCount()
	}
	return total
}

// Four candidates, two of them near-duplicates, summary threshold 3: one
// summary for the pair plus the other two individually.
func TestSummarize_PairCollapsesInSummaryMode(t *testing.T) {
	s := newTestSummarizer(t, func(c *Config) { c.SummaryModeThreshold = 3 })

	res := s.Summarize([]types.ScoredSnippet{
		snippet("a", "/p/a.go", parseConfigA, 0.9),
		snippet("b", "/p/b.go", parseConfigB, 0.85),
		snippet("c", "/p/store.py", "class UserStore:\n    def save(self, user):\n        self.db.insert(user)", 0.8),
		snippet("d", "/p/q.sql", "SELECT name FROM users WHERE id = 1", 0.7),
	})

	require.Len(t, res.Entries, 3)
	assert.True(t, res.SummaryMode)
	assert.Equal(t, 3, res.Clusters)
	assert.Zero(t, res.Dropped)

	group := res.Entries[0]
	require.True(t, group.IsSummary())
	assert.Equal(t, 2, group.Group.MemberCount)
	assert.Equal(t, "a", group.Group.Representative.Candidate.ID)
	assert.Contains(t, group.Group.SummaryText, "2 similar snippets: func parseConfig(path string) (*Config, error)")
	assert.Contains(t, group.Group.SummaryText, "files: a.go, b.go")
	assert.Contains(t, group.Group.SummaryText, "functions: parseConfig")

	assert.False(t, res.Entries[1].IsSummary())
	assert.Equal(t, "c", res.Entries[1].Snippet.Candidate.ID)
	assert.Equal(t, "d", res.Entries[2].Snippet.Candidate.ID)
	assert.Equal(t, 4, memberTotal(res))
}

func TestSummarize_BelowThresholdStaysIndividual(t *testing.T) {
	s := newTestSummarizer(t, func(c *Config) { c.SummaryModeThreshold = 5 })

	res := s.Summarize([]types.ScoredSnippet{
		snippet("a", "/p/a.go", parseConfigA, 0.9),
		snippet("c", "/p/c.go", "func other() {}", 0.88),
		snippet("b", "/p/b.go", parseConfigB, 0.85),
	})

	assert.False(t, res.SummaryMode)
	require.Len(t, res.Entries, 3)
	for _, e := range res.Entries {
		assert.False(t, e.IsSummary())
	}
	assert.Equal(t, []string{"a", "c", "b"}, []string{
		res.Entries[0].Snippet.Candidate.ID,
		res.Entries[1].Snippet.Candidate.ID,
		res.Entries[2].Snippet.Candidate.ID,
	})
}

func TestSummarize_PerGroupCap(t *testing.T) {
	s := newTestSummarizer(t, func(c *Config) {
		c.SummaryModeThreshold = 10
		c.MaxIndividualSnippets = 2
	})

	var in []types.ScoredSnippet
	for i := 0; i < 5; i++ {
		in = append(in, snippet(fmt.Sprint(i), "/p/a.go", parseConfigA, 0.9-float64(i)*0.01))
	}
	res := s.Summarize(in)

	require.Len(t, res.Entries, 2)
	assert.Equal(t, 3, res.Dropped)
	assert.Equal(t, 1, res.Clusters)
	assert.Equal(t, 5, memberTotal(res))
}

func TestSummarize_MaxResultsCap(t *testing.T) {
	s := newTestSummarizer(t, func(c *Config) { c.MaxResults = 4 })

	var in []types.ScoredSnippet
	for i := 0; i < 6; i++ {
		in = append(in, distinct(i, 0.9-float64(i)*0.05))
	}
	res := s.Summarize(in)

	require.Len(t, res.Entries, 4)
	assert.Equal(t, 2, res.Dropped)
	assert.Equal(t, "d0", res.Entries[0].Lead().Candidate.ID)
	assert.Equal(t, 6, memberTotal(res))
}

func TestSummarize_Disabled(t *testing.T) {
	s := newTestSummarizer(t, func(c *Config) {
		c.Enabled = false
		c.MaxResults = 2
	})

	res := s.Summarize([]types.ScoredSnippet{
		snippet("a", "/p/a.go", parseConfigA, 0.9),
		snippet("b", "/p/b.go", parseConfigA, 0.8),
		snippet("c", "/p/c.go", parseConfigA, 0.7),
	})

	require.Len(t, res.Entries, 2)
	assert.False(t, res.Entries[0].IsSummary())
	assert.Equal(t, 1, res.Dropped)
	assert.Zero(t, res.Clusters)
}

func TestSummarize_PrefersEmbeddings(t *testing.T) {
	s := newTestSummarizer(t, func(c *Config) { c.SummaryModeThreshold = 2 })

	same := snippet("x", "/p/x.go", "alpha beta gamma", 0.9)
	same.Candidate.Embedding = []float32{1, 0}
	alike := snippet("y", "/p/y.go", "delta epsilon zeta", 0.8)
	alike.Candidate.Embedding = []float32{1, 0.01}
	textTwin := snippet("z", "/p/z.go", "alpha beta gamma", 0.7)
	textTwin.Candidate.Embedding = []float32{0, 1}

	res := s.Summarize([]types.ScoredSnippet{same, alike, textTwin})

	require.Len(t, res.Entries, 2)
	require.True(t, res.Entries[0].IsSummary())
	assert.Equal(t, []string{"x", "y"}, []string{
		res.Entries[0].Group.Members[0].Candidate.ID,
		res.Entries[0].Group.Members[1].Candidate.ID,
	})
	assert.Equal(t, "z", res.Entries[1].Snippet.Candidate.ID)
}

func TestSummarize_DeterministicOrder(t *testing.T) {
	s := newTestSummarizer(t, func(c *Config) {
		c.DeterministicOrder = true
		c.SummaryModeThreshold = 2
	})

	a := snippet("a", "/p/a.go", parseConfigA, 0.5)
	b := snippet("b", "/p/b.go", parseConfigB, 0.5)

	first := s.Summarize([]types.ScoredSnippet{a, b})
	second := s.Summarize([]types.ScoredSnippet{b, a})

	require.Len(t, first.Entries, 1)
	require.Len(t, second.Entries, 1)
	assert.Equal(t, "a", first.Entries[0].Group.Representative.Candidate.ID)
	assert.Equal(t, first.Entries[0].Group.SummaryText, second.Entries[0].Group.SummaryText)
}

func TestSummarize_ConservesMembers(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	templates := []string{parseConfigA, parseConfigB, "func other() {}", "class Thing:\n    pass", "x = compute(y)"}

	for round := 0; round < 100; round++ {
		cfg := DefaultConfig()
		cfg.SummaryModeThreshold = rng.Intn(6) + 1
		cfg.MaxIndividualSnippets = rng.Intn(3) + 1
		cfg.MaxResults = rng.Intn(5) + 1
		cfg.Enabled = rng.Intn(4) != 0
		s, err := New(cfg)
		require.NoError(t, err)

		n := rng.Intn(12)
		in := make([]types.ScoredSnippet, n)
		for i := range in {
			in[i] = snippet(fmt.Sprint(i), "/p/f.go", templates[rng.Intn(len(templates))], rng.Float64())
		}

		res := s.Summarize(in)

		assert.Equal(t, n, memberTotal(res), "round %d", round)
		assert.LessOrEqual(t, len(res.Entries), cfg.MaxResults, "round %d", round)
		for i := 1; i < len(res.Entries); i++ {
			assert.GreaterOrEqual(t, res.Entries[i-1].Score(), res.Entries[i].Score(), "round %d", round)
		}
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := newTestSummarizer(t, nil)
	res := s.Summarize(nil)
	assert.Empty(t, res.Entries)
	assert.Zero(t, res.Dropped)
}

func TestNew_Validates(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold above one", func(c *Config) { c.SimilarityThreshold = 1.5 }},
		{"zero max results", func(c *Config) { c.MaxResults = 0 }},
		{"zero individual", func(c *Config) { c.MaxIndividualSnippets = 0 }},
		{"zero summary threshold", func(c *Config) { c.SummaryModeThreshold = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestJaccard(t *testing.T) {
	a := Identifiers("foo bar baz")
	b := Identifiers("foo bar qux")

	assert.InDelta(t, 0.5, Jaccard(a, b), 1e-9)
	assert.Equal(t, 1.0, Jaccard(a, a))
	assert.Equal(t, 1.0, Jaccard(Identifiers(""), Identifiers("")))
	assert.Equal(t, 0.0, Jaccard(a, Identifiers("zzz")))
}

func TestIdentifiers_SkipsSingleLetters(t *testing.T) {
	set := Identifiers("x := y + value_1")
	assert.Len(t, set, 1)
	assert.Contains(t, set, "value_1")
}
