package searcher

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dshills/afterimage-mcp/internal/language"
	"github.com/dshills/afterimage-mcp/internal/parser"
)

// MaxTerms bounds the query built by ExtractTerms
const MaxTerms = 8

var (
	importTerm    = regexp.MustCompile(`(?m)^\s*(?:from\s+([\w.]+)|import\s+(?:\(\s*)?"?([\w./-]+)|use\s+([\w:]+)|#include\s+[<"]([\w./]+))`)
	decoratorTerm = regexp.MustCompile(`(?m)^\s*@([A-Za-z_]\w*)`)
)

// ExtractTerms builds a keyword query for code about to be written: imported
// modules, declared names, decorators and the file stem, deduplicated in
// that order. Terms shorter than three characters are dropped and duplicates
// are matched case-insensitively, as the FTS index is.
func ExtractTerms(content, filePath string) string {
	var terms []string

	for _, m := range importTerm.FindAllStringSubmatch(content, -1) {
		for _, g := range m[1:] {
			if g != "" {
				terms = append(terms, lastSegment(g))
				break
			}
		}
	}

	family := language.FamilyOf(language.Detect(filePath, content))
	for _, name := range parser.DeclaredNames(content, family) {
		// Methods are reported as Type.method; both halves are useful
		terms = append(terms, strings.Split(name, ".")...)
	}

	for _, m := range decoratorTerm.FindAllStringSubmatch(content, -1) {
		terms = append(terms, m[1])
	}

	base := filepath.Base(filePath)
	terms = append(terms, strings.TrimSuffix(base, filepath.Ext(base)))

	seen := make(map[string]bool, len(terms))
	unique := make([]string, 0, MaxTerms)
	for _, t := range terms {
		key := strings.ToLower(t)
		if len(t) <= 2 || seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, t)
		if len(unique) == MaxTerms {
			break
		}
	}
	return strings.Join(unique, " ")
}

// lastSegment reduces a module path to its final component
func lastSegment(module string) string {
	module = strings.TrimRight(module, "/.:")
	if i := strings.LastIndexAny(module, "/.:"); i >= 0 {
		return module[i+1:]
	}
	return module
}
