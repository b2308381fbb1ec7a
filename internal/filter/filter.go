package filter

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultCodeExtensions are always treated as code
var DefaultCodeExtensions = []string{
	".py", ".pyw", ".js", ".mjs", ".cjs", ".ts", ".tsx", ".jsx", ".rs", ".go", ".java",
	".c", ".cpp", ".cc", ".cxx", ".h", ".hpp", ".hxx", ".cs", ".rb", ".rake", ".php",
	".swift", ".kt", ".kts", ".scala", ".clj", ".cljs", ".ex", ".exs", ".erl", ".hrl",
	".hs", ".lhs", ".ml", ".mli", ".fs", ".fsx", ".fsi", ".pl", ".pm", ".lua", ".r",
	".jl", ".nim", ".zig", ".v", ".d", ".dart", ".vue", ".svelte", ".elm", ".sol",
	".sql", ".sh", ".bash", ".zsh", ".ps1", ".psm1",
}

// DefaultSkipExtensions are never treated as code
var DefaultSkipExtensions = []string{
	".md", ".markdown", ".rst", ".txt", ".json", ".yaml", ".yml", ".toml", ".xml",
	".html", ".htm", ".css", ".scss", ".sass", ".less", ".log", ".out", ".env",
	".lock", ".sum", ".map", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico",
	".woff", ".woff2", ".ttf", ".eot", ".pdf", ".doc", ".docx", ".csv", ".tsv",
}

// DefaultSkipPaths are doublestar globs for generated or vendored trees
var DefaultSkipPaths = []string{
	"**/artifacts/**", "**/docs/**", "**/documentation/**", "**/research/**",
	"**/test_data/**", "**/__pycache__/**", "**/.git/**", "**/.venv/**", "**/venv/**",
	"**/node_modules/**", "**/.mypy_cache/**", "**/.pytest_cache/**", "**/dist/**",
	"**/build/**", "**/*.egg-info/**", "**/migrations/**", "**/vendor/**",
}

// Extensions whose content may still be code
var softSkip = map[string]bool{".txt": true}

// Test and story suffixes that hide the real extension
var compoundSuffixes = map[string]bool{
	".test.js": true, ".test.ts": true, ".spec.js": true, ".spec.ts": true,
	".test.py": true, ".spec.py": true, ".stories.js": true, ".stories.tsx": true,
}

// Config lists the extension and path rules
type Config struct {
	CodeExtensions []string
	SkipExtensions []string
	SkipPaths      []string
}

// DefaultConfig returns the built-in rules
func DefaultConfig() Config {
	return Config{
		CodeExtensions: append([]string(nil), DefaultCodeExtensions...),
		SkipExtensions: append([]string(nil), DefaultSkipExtensions...),
		SkipPaths:      append([]string(nil), DefaultSkipPaths...),
	}
}

// CodeFilter decides whether a file is source code worth remembering
type CodeFilter struct {
	code      map[string]bool
	skip      map[string]bool
	skipPaths []string
}

// New creates a filter. Empty lists fall back to the defaults. Invalid
// globs are rejected.
func New(cfg Config) (*CodeFilter, error) {
	if len(cfg.CodeExtensions) == 0 {
		cfg.CodeExtensions = DefaultCodeExtensions
	}
	if len(cfg.SkipExtensions) == 0 {
		cfg.SkipExtensions = DefaultSkipExtensions
	}
	if cfg.SkipPaths == nil {
		cfg.SkipPaths = DefaultSkipPaths
	}

	for _, p := range cfg.SkipPaths {
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: p}
		}
	}

	return &CodeFilter{
		code:      extensionSet(cfg.CodeExtensions),
		skip:      extensionSet(cfg.SkipExtensions),
		skipPaths: cfg.SkipPaths,
	}, nil
}

// PatternError reports an invalid skip-path glob
type PatternError struct {
	Pattern string
}

func (e *PatternError) Error() string {
	return "invalid skip path pattern: " + e.Pattern
}

// IsCode reports whether path (with optional content) should be treated as
// code. Skip paths win, then minified files and skip extensions, then the
// code whitelist; unknown extensions are judged by content.
func (f *CodeFilter) IsCode(path, content string) bool {
	slashed := strings.TrimPrefix(filepath.ToSlash(path), "/")
	for _, pattern := range f.skipPaths {
		if ok, _ := doublestar.Match(pattern, slashed); ok {
			return false
		}
	}

	name := filepath.Base(path)
	if strings.Contains(name, ".min.") {
		return false
	}

	ext := Extension(name)
	if f.skip[ext] {
		if content != "" && softSkip[ext] {
			return LooksLikeCode(content)
		}
		return false
	}
	if f.code[ext] {
		return true
	}
	if content != "" {
		return LooksLikeCode(content)
	}
	return false
}

// SkipsDir reports whether a directory (and everything below it) is
// excluded, so tree walks can prune it.
func (f *CodeFilter) SkipsDir(dir string) bool {
	probe := strings.TrimPrefix(filepath.ToSlash(filepath.Join(dir, "x")), "/")
	for _, pattern := range f.skipPaths {
		if ok, _ := doublestar.Match(pattern, probe); ok {
			return true
		}
	}
	return false
}

// Extension returns the lower-cased extension of a file name. Dotfiles
// return their whole name and test/story compounds their last part.
func Extension(name string) string {
	if !strings.Contains(name, ".") {
		return ""
	}
	if strings.HasPrefix(name, ".") && strings.Count(name, ".") == 1 {
		return name
	}
	parts := strings.Split(name, ".")
	if len(parts) >= 3 && compoundSuffixes["."+parts[len(parts)-2]+"."+parts[len(parts)-1]] {
		return "." + strings.ToLower(parts[len(parts)-1])
	}
	return strings.ToLower(filepath.Ext(name))
}

var (
	definitionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bdef\s+\w+\s*\(`),
		regexp.MustCompile(`\bfunction\s+\w*\s*\(`),
		regexp.MustCompile(`\bfn\s+\w+\s*\(`),
		regexp.MustCompile(`\bfunc\s+\w+\s*\(`),
		regexp.MustCompile(`\bclass\s+\w+`),
	}
	importPattern     = regexp.MustCompile(`\b(import|from|require|use|include)\b`)
	controlPattern    = regexp.MustCompile(`\b(if|else|for|while|return|try|catch)\b`)
	declarePattern    = regexp.MustCompile(`\b(const|let|var|val)\s+\w+\s*=`)
	semicolonLineEnds = regexp.MustCompile(`(?m);\s*$`)
)

// LooksLikeCode scores content by code indicators: definitions weigh 2,
// other constructs 1, and a score of 2 or more counts as code.
func LooksLikeCode(content string) bool {
	if len(strings.TrimSpace(content)) < 20 {
		return false
	}

	score := 0
	for _, re := range definitionPatterns {
		if re.MatchString(content) {
			score += 2
		}
	}
	for _, re := range []*regexp.Regexp{importPattern, controlPattern, declarePattern, semicolonLineEnds} {
		if re.MatchString(content) {
			score++
		}
	}

	brackets := strings.Count(content, "{") + strings.Count(content, "}") +
		strings.Count(content, "[") + strings.Count(content, "]")
	if float64(brackets)/float64(len(content)) > 0.02 {
		score++
	}
	if strings.Contains(content, "=>") || strings.Contains(content, "lambda") {
		score++
	}

	return score >= 2
}

func extensionSet(exts []string) map[string]bool {
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = true
	}
	return set
}
