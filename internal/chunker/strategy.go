package chunker

import (
	"context"

	"github.com/dshills/afterimage-mcp/internal/language"
	"github.com/dshills/afterimage-mcp/internal/parser"
	"github.com/dshills/afterimage-mcp/pkg/types"
)

// StructuralFunc parses source into declarations. A returned error or a
// result with errors sends the file to the heuristic path.
type StructuralFunc func(ctx context.Context, filePath string, src []byte) (*types.ParseResult, error)

// HeuristicFunc finds signature lines by pattern matching
type HeuristicFunc func(content string) []parser.Marker

// Strategy is the chunking recipe for one language. Structural may be nil;
// Heuristic defaults to the language family's patterns.
type Strategy struct {
	Structural StructuralFunc
	Heuristic  HeuristicFunc
}

// treeSitterLanguages are parsed structurally when cgo grammars are available
var treeSitterLanguages = []language.Language{
	language.Python,
	language.JavaScript,
	language.TypeScript,
	language.TSX,
	language.Rust,
	language.Java,
	language.Kotlin,
}

func defaultStrategies() map[language.Language]Strategy {
	goParser := parser.New()
	strategies := map[language.Language]Strategy{
		language.Go: {
			Structural: func(_ context.Context, filePath string, src []byte) (*types.ParseResult, error) {
				return goParser.ParseSource(filePath, src)
			},
		},
	}

	ts := parser.NewTreeSitter()
	for _, lang := range treeSitterLanguages {
		if !ts.Supports(lang) {
			continue
		}
		strategies[lang] = Strategy{
			Structural: func(ctx context.Context, filePath string, src []byte) (*types.ParseResult, error) {
				return ts.Parse(ctx, filePath, src, lang)
			},
		}
	}

	return strategies
}

// familyHeuristic returns the pattern-matching heuristic for a language family
func familyHeuristic(family language.Family) HeuristicFunc {
	return func(content string) []parser.Marker {
		return parser.FindMarkers(content, family)
	}
}

// strategyFor resolves the strategy for lang, filling in the default heuristic
func (c *Chunker) strategyFor(lang language.Language) Strategy {
	s := c.strategies[lang]
	if s.Heuristic == nil {
		s.Heuristic = familyHeuristic(language.FamilyOf(lang))
	}
	return s
}
