//go:build !cgo

package parser

import (
	"context"
	"fmt"

	"github.com/dshills/afterimage-mcp/internal/language"
	"github.com/dshills/afterimage-mcp/pkg/types"
)

// TreeSitter is unavailable without cgo; every language reports unsupported
// and callers fall back to heuristic chunking.
type TreeSitter struct{}

// NewTreeSitter creates the no-op parser
func NewTreeSitter() *TreeSitter {
	return &TreeSitter{}
}

// Supports always reports false without cgo
func (ts *TreeSitter) Supports(lang language.Language) bool {
	return false
}

// Parse always fails with ErrUnsupportedLanguage without cgo
func (ts *TreeSitter) Parse(ctx context.Context, filePath string, src []byte, lang language.Language) (*types.ParseResult, error) {
	return nil, fmt.Errorf("%w: %s (built without cgo)", ErrUnsupportedLanguage, lang)
}
