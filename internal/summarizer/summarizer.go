package summarizer

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dshills/afterimage-mcp/internal/language"
	"github.com/dshills/afterimage-mcp/internal/parser"
	"github.com/dshills/afterimage-mcp/pkg/types"
)

// Defaults
const (
	DefaultSimilarityThreshold   = 0.7
	DefaultMaxIndividualSnippets = 3
	DefaultMaxResults            = 10
	DefaultSummaryModeThreshold  = 3
)

// ErrInvalidConfig is returned for out-of-range settings
var ErrInvalidConfig = errors.New("invalid summarizer config")

// Config controls clustering and output caps
type Config struct {
	Enabled               bool
	SimilarityThreshold   float64
	MaxIndividualSnippets int
	MaxResults            int
	SummaryModeThreshold  int

	// DeterministicOrder sorts by (composite desc, ID asc) before
	// clustering so that grouping does not depend on input permutation.
	DeterministicOrder bool
}

// DefaultConfig returns the default summarizer configuration
func DefaultConfig() Config {
	return Config{
		Enabled:               true,
		SimilarityThreshold:   DefaultSimilarityThreshold,
		MaxIndividualSnippets: DefaultMaxIndividualSnippets,
		MaxResults:            DefaultMaxResults,
		SummaryModeThreshold:  DefaultSummaryModeThreshold,
	}
}

// Validate checks the configuration ranges
func (c Config) Validate() error {
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity threshold %v outside [0,1]", ErrInvalidConfig, c.SimilarityThreshold)
	}
	if c.MaxIndividualSnippets < 1 {
		return fmt.Errorf("%w: max individual snippets must be at least 1", ErrInvalidConfig)
	}
	if c.MaxResults < 1 {
		return fmt.Errorf("%w: max results must be at least 1", ErrInvalidConfig)
	}
	if c.SummaryModeThreshold < 1 {
		return fmt.Errorf("%w: summary mode threshold must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// Entry is one output item: either a single snippet or a summary group
type Entry struct {
	Snippet *types.ScoredSnippet
	Group   *types.SnippetGroup
}

// IsSummary reports whether the entry is a collapsed group
func (e Entry) IsSummary() bool {
	return e.Group != nil
}

// Score is the ordering key: the snippet's composite or the group
// representative's.
func (e Entry) Score() float64 {
	if e.Group != nil {
		return e.Group.Representative.Composite
	}
	return e.Snippet.Composite
}

// MemberCount is the number of snippets the entry accounts for
func (e Entry) MemberCount() int {
	if e.Group != nil {
		return e.Group.MemberCount
	}
	return 1
}

// Lead returns the snippet that represents the entry
func (e Entry) Lead() *types.ScoredSnippet {
	if e.Group != nil {
		return &e.Group.Representative
	}
	return e.Snippet
}

// Result is the summarized output
type Result struct {
	Entries     []Entry
	Clusters    int
	SummaryMode bool

	// Dropped counts snippets removed by the per-group and total caps, so
	// that the entries' member counts plus Dropped equal the input size.
	Dropped int
}

// Summarizer clusters near-duplicate snippets
type Summarizer struct {
	cfg Config
}

// New creates a summarizer
func New(cfg Config) (*Summarizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Summarizer{cfg: cfg}, nil
}

type cluster struct {
	members []*types.ScoredSnippet
	tokens  TokenSet // representative's identifiers
}

// Summarize groups ranked snippets. Clustering is a greedy single pass: a
// snippet joins the first cluster whose representative is at least
// SimilarityThreshold similar, otherwise it starts a new one. When the
// number of snippets reaches SummaryModeThreshold, every cluster with more
// than one member collapses into a summary entry.
func (s *Summarizer) Summarize(snippets []types.ScoredSnippet) *Result {
	res := &Result{}
	if len(snippets) == 0 {
		return res
	}

	ranked := make([]types.ScoredSnippet, len(snippets))
	copy(ranked, snippets)
	if s.cfg.DeterministicOrder {
		sort.SliceStable(ranked, func(i, j int) bool {
			if ranked[i].Composite != ranked[j].Composite {
				return ranked[i].Composite > ranked[j].Composite
			}
			return ranked[i].Candidate.ID < ranked[j].Candidate.ID
		})
	}

	if s.cfg.Enabled {
		s.group(ranked, res)
	} else {
		for i := range ranked {
			res.Entries = append(res.Entries, Entry{Snippet: &ranked[i]})
		}
	}

	sort.SliceStable(res.Entries, func(i, j int) bool {
		return res.Entries[i].Score() > res.Entries[j].Score()
	})
	s.capResults(res)
	return res
}

func (s *Summarizer) group(ranked []types.ScoredSnippet, res *Result) {
	clusters := s.cluster(ranked)
	res.Clusters = len(clusters)
	res.SummaryMode = len(ranked) >= s.cfg.SummaryModeThreshold

	for _, c := range clusters {
		if res.SummaryMode && len(c.members) > 1 {
			res.Entries = append(res.Entries, Entry{Group: buildGroup(c.members)})
			continue
		}
		for i, m := range c.members {
			if i >= s.cfg.MaxIndividualSnippets {
				res.Dropped += len(c.members) - i
				break
			}
			res.Entries = append(res.Entries, Entry{Snippet: m})
		}
	}
}

func (s *Summarizer) cluster(ranked []types.ScoredSnippet) []*cluster {
	var clusters []*cluster
	for i := range ranked {
		sn := &ranked[i]
		toks := Identifiers(sn.Candidate.Content())

		var home *cluster
		for _, c := range clusters {
			if similarity(c.members[0], sn, c.tokens, toks) >= s.cfg.SimilarityThreshold {
				home = c
				break
			}
		}
		if home == nil {
			clusters = append(clusters, &cluster{members: []*types.ScoredSnippet{sn}, tokens: toks})
			continue
		}
		home.members = append(home.members, sn)
	}
	return clusters
}

func (s *Summarizer) capResults(res *Result) {
	if len(res.Entries) <= s.cfg.MaxResults {
		return
	}
	for _, e := range res.Entries[s.cfg.MaxResults:] {
		res.Dropped += e.MemberCount()
	}
	res.Entries = res.Entries[:s.cfg.MaxResults]
}

func buildGroup(members []*types.ScoredSnippet) *types.SnippetGroup {
	g := &types.SnippetGroup{
		Representative: *members[0],
		MemberCount:    len(members),
		Members:        make([]types.ScoredSnippet, len(members)),
	}
	for i, m := range members {
		g.Members[i] = *m
	}
	g.SummaryText = summaryText(g)
	return g
}

// summaryText describes a group: the count, the representative signature,
// and the distinct files and declared names across members.
func summaryText(g *types.SnippetGroup) string {
	var files, names []string
	seenFile := make(map[string]bool)
	seenName := make(map[string]bool)

	for _, m := range g.Members {
		path := m.Candidate.FilePath
		if !seenFile[path] {
			seenFile[path] = true
			files = append(files, filepath.Base(path))
		}
		content := m.Candidate.Content()
		family := language.FamilyOf(language.Detect(path, content))
		for _, n := range parser.DeclaredNames(content, family) {
			if !seenName[n] {
				seenName[n] = true
				names = append(names, n)
			}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d similar snippets: %s", g.MemberCount, representativeSignature(g.Representative.Candidate.Content()))
	fmt.Fprintf(&b, "\nfiles: %s", strings.Join(files, ", "))
	if len(names) > 0 {
		fmt.Fprintf(&b, "\nfunctions: %s", strings.Join(names, ", "))
	}
	return b.String()
}

func representativeSignature(content string) string {
	if m, ok := parser.FirstSignature(content); ok {
		return m.Signature
	}
	for _, line := range strings.Split(content, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return "(empty)"
}
