package types

// Factors holds the per-candidate relevance factor scores, each in [0,1]
type Factors struct {
	Recency   float64
	Proximity float64
	Semantic  float64
	Project   float64

	// SemanticUsed is false when no embedding was available and the semantic
	// weight was redistributed over the other factors.
	SemanticUsed bool
}

// ScoredSnippet wraps a candidate with its relevance scores
type ScoredSnippet struct {
	Candidate Candidate
	Factors   Factors
	Composite float64

	// Index is the candidate's position in the original search results
	Index int
}

// Validate checks that the composite score is normalized
func (s *ScoredSnippet) Validate() error {
	if s.Composite < 0 || s.Composite > 1 {
		return ErrInvalidRelevanceScore
	}
	return s.Candidate.Validate()
}

// SnippetGroup is a cluster of near-duplicate snippets collapsed into one
// summary entry.
type SnippetGroup struct {
	Representative ScoredSnippet
	MemberCount    int
	Members        []ScoredSnippet
	SummaryText    string
}

// InjectionResult is the rendered outcome of one injection request
type InjectionResult struct {
	Text             string
	TokensUsed       int
	SnippetsIncluded int
	Truncated        bool

	// Degraded is set when the full pipeline failed and the text came from
	// the fallback path (or is empty). Cause holds the failure.
	Degraded bool
	Cause    error
}

// IsEmpty reports whether nothing should be injected
func (r *InjectionResult) IsEmpty() bool {
	return r.Text == ""
}
