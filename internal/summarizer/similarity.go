package summarizer

import (
	"regexp"

	"github.com/dshills/afterimage-mcp/internal/vector"
	"github.com/dshills/afterimage-mcp/pkg/types"
)

var identifierPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// TokenSet is the set of identifiers appearing in a snippet
type TokenSet map[string]struct{}

// Identifiers extracts the identifier tokens of content. Single-letter
// names are ignored.
func Identifiers(content string) TokenSet {
	set := make(TokenSet)
	for _, tok := range identifierPattern.FindAllString(content, -1) {
		if len(tok) > 1 {
			set[tok] = struct{}{}
		}
	}
	return set
}

// Jaccard returns |a∩b| / |a∪b|. Two empty sets are identical.
func Jaccard(a, b TokenSet) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// similarity compares two snippets by embedding cosine when both carry
// comparable vectors, and by identifier overlap otherwise.
func similarity(a, b *types.ScoredSnippet, ta, tb TokenSet) float64 {
	if _, ok := vector.Cosine(a.Candidate.Embedding, b.Candidate.Embedding); ok {
		return vector.Similarity(a.Candidate.Embedding, b.Candidate.Embedding)
	}
	return Jaccard(ta, tb)
}
