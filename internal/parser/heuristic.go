package parser

import (
	"regexp"
	"strings"

	"github.com/dshills/afterimage-mcp/internal/language"
	"github.com/dshills/afterimage-mcp/pkg/types"
)

// Marker is a signature line found by pattern matching
type Marker struct {
	Line      int // 1-based
	Indent    int
	Kind      types.SymbolKind
	Name      string
	Parent    string
	Signature string
}

type signaturePattern struct {
	re   *regexp.Regexp
	kind types.SymbolKind
}

// Each pattern captures the indentation in group 1 and the name in group 2.
var (
	pythonPatterns = []signaturePattern{
		{regexp.MustCompile(`^(\s*)(?:async\s+)?def\s+([A-Za-z_]\w*)\s*\(`), types.KindFunction},
		{regexp.MustCompile(`^(\s*)class\s+([A-Za-z_]\w*)`), types.KindClass},
	}

	clikePatterns = []signaturePattern{
		{regexp.MustCompile(`^(\s*)func\s+\(\s*(?:\w+\s+)?\*?\s*(\w+)[^)]*\)\s*([A-Za-z_]\w*)\s*[(\[]`), types.KindMethod},
		{regexp.MustCompile(`^(\s*)func\s+([A-Za-z_]\w*)\s*[(\[]`), types.KindFunction},
		{regexp.MustCompile(`^(\s*)type\s+([A-Za-z_]\w*)(?:\[[^\]]*\])?\s+(?:struct|interface)\b`), types.KindClass},
		{regexp.MustCompile(`^(\s*)(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)\s*[(<]`), types.KindFunction},
		{regexp.MustCompile(`^(\s*)(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*(?::[^=]+)?=\s*(?:async\s+)?(?:\([^)]*\)|[A-Za-z_$][\w$]*)\s*(?::[^=]+)?=>`), types.KindFunction},
		{regexp.MustCompile(`^(\s*)(?:pub(?:\([^)]*\))?\s+)?(?:const\s+)?(?:async\s+)?(?:unsafe\s+)?(?:extern\s+"[^"]*"\s+)?fn\s+([A-Za-z_]\w*)`), types.KindFunction},
		{regexp.MustCompile(`^(\s*)(?:(?:public|private|protected|internal|open|override|suspend|inline)\s+)*fun\s+(?:<[^>]*>\s*)?(?:[\w.]+\.)?([A-Za-z_]\w*)\s*\(`), types.KindFunction},
		{regexp.MustCompile(`^(\s*)(?:export\s+)?(?:default\s+)?(?:pub(?:\([^)]*\))?\s+)?(?:(?:public|private|protected|internal|abstract|final|sealed|static|data|open|partial)\s+)*(?:class|interface|struct|enum|trait|object|record|impl(?:<[^>]*>)?)\s+([A-Za-z_]\w*)`), types.KindClass},
		{regexp.MustCompile(`^(\s*)(?:(?:public|private|protected|internal|static|final|abstract|synchronized|override|async|virtual|extern|unsafe)\s+)+[\w<>\[\],.?\s]*?\b([A-Za-z_]\w*)\s*\([^;]*$`), types.KindFunction},
		{regexp.MustCompile(`^(\s*)(?:private\s+|protected\s+|override\s+)*def\s+([A-Za-z_]\w*)`), types.KindFunction},
		{regexp.MustCompile(`^()(?:[A-Za-z_][\w\s\*&:<>,]*?[\s\*&])([A-Za-z_]\w*)\s*\([^;]*\)\s*(?:const\s*)?\{?\s*$`), types.KindFunction},
	}

	rubyPatterns = []signaturePattern{
		{regexp.MustCompile(`^(\s*)def\s+(?:self\.)?([A-Za-z_]\w*[?!=]?)`), types.KindFunction},
		{regexp.MustCompile(`^(\s*)(?:class|module)\s+([A-Z]\w*(?:::\w+)*)`), types.KindClass},
	}

	scriptPatterns = []signaturePattern{
		{regexp.MustCompile(`^(\s*)(?:function\s+)?([A-Za-z_][\w-]*)\s*\(\)\s*\{`), types.KindFunction},
		{regexp.MustCompile(`^(\s*)(?:local\s+)?function\s+([\w.:]+)\s*\(`), types.KindFunction},
	}

	genericPatterns = concatPatterns(pythonPatterns, clikePatterns, rubyPatterns, scriptPatterns)
)

var importLine = map[language.Family]*regexp.Regexp{
	language.FamilyPython:  regexp.MustCompile(`^\s*(?:import\s+\S|from\s+\S+\s+import\s)`),
	language.FamilyCLike:   regexp.MustCompile(`^\s*(?:import\b|package\s|use\s|#include\b|using\s+[\w.]+\s*;|extern\s+crate\b|const\s+\w+\s*=\s*require\(|require\()`),
	language.FamilyRuby:    regexp.MustCompile(`^\s*(?:require|require_relative|load)\b`),
	language.FamilyGeneric: regexp.MustCompile(`^\s*(?:import\b|from\s+\S+\s+import\s|use\s|#include\b|require\b|source\s|\.\s+\S)`),
}

// Keywords that the loose C-style pattern would otherwise read as a call
var controlKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "return": true, "sizeof": true,
	"catch": true, "else": true, "do": true, "case": true, "new": true, "throw": true,
}

func concatPatterns(groups ...[]signaturePattern) []signaturePattern {
	var all []signaturePattern
	for _, g := range groups {
		all = append(all, g...)
	}
	return all
}

func patternsFor(family language.Family) []signaturePattern {
	switch family {
	case language.FamilyPython:
		return pythonPatterns
	case language.FamilyCLike:
		return clikePatterns
	case language.FamilyRuby:
		return rubyPatterns
	default:
		return genericPatterns
	}
}

// FindMarkers returns every signature line of content in line order
func FindMarkers(content string, family language.Family) []Marker {
	patterns := patternsFor(family)
	lines := strings.Split(content, "\n")

	var markers []Marker
	for i, line := range lines {
		if m, ok := matchLine(line, patterns); ok {
			m.Line = i + 1
			markers = append(markers, m)
		}
	}
	return markers
}

func matchLine(line string, patterns []signaturePattern) (Marker, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || isCommentLine(trimmed) {
		return Marker{}, false
	}
	for _, p := range patterns {
		groups := p.re.FindStringSubmatch(line)
		if groups == nil {
			continue
		}
		m := Marker{
			Indent:    indentWidth(groups[1]),
			Kind:      p.kind,
			Name:      groups[2],
			Signature: strings.TrimRight(trimmed, " {:"),
		}
		if p.kind == types.KindMethod && len(groups) > 3 {
			m.Parent, m.Name = groups[2], groups[3]
		}
		if controlKeywords[m.Name] {
			continue
		}
		return m, true
	}
	return Marker{}, false
}

// IsImportLine reports whether line is an import/use statement for the family
func IsImportLine(line string, family language.Family) bool {
	re, ok := importLine[family]
	if !ok {
		re = importLine[language.FamilyGeneric]
	}
	return re.MatchString(line)
}

// FirstSignature returns the first declaration found in content using every
// known pattern family.
func FirstSignature(content string) (Marker, bool) {
	for i, line := range strings.Split(content, "\n") {
		if m, ok := matchLine(line, genericPatterns); ok {
			m.Line = i + 1
			return m, true
		}
	}
	return Marker{}, false
}

// DeclaredNames returns the distinct names declared in content, in order
func DeclaredNames(content string, family language.Family) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range FindMarkers(content, family) {
		name := m.Name
		if m.Parent != "" {
			name = m.Parent + "." + m.Name
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// IsCommentLine reports whether a trimmed line is a comment or decorator
func IsCommentLine(trimmed string) bool {
	return isCommentLine(trimmed) || strings.HasPrefix(trimmed, "@")
}

func isCommentLine(trimmed string) bool {
	for _, prefix := range []string{"//", "#", "/*", "*", "--", ";;"} {
		if strings.HasPrefix(trimmed, prefix) {
			// #include and #[derive] are code, not comments
			return !(strings.HasPrefix(trimmed, "#include") || strings.HasPrefix(trimmed, "#["))
		}
	}
	return false
}

func indentWidth(prefix string) int {
	width := 0
	for _, r := range prefix {
		if r == '\t' {
			width += 4
		} else {
			width++
		}
	}
	return width
}
