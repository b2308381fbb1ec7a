package injector

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dshills/afterimage-mcp/internal/language"
	"github.com/dshills/afterimage-mcp/internal/summarizer"
	"github.com/dshills/afterimage-mcp/pkg/types"
)

// maxDefinedNames caps the names listed in an entry descriptor
const maxDefinedNames = 6

// entry is a rendered output item. Only body may be truncated by the
// budget; prefix and suffix carry the descriptor and fences.
type entry struct {
	prefix  string
	body    string
	suffix  string
	score   float64
	members int

	// span is set when the descriptor names a line range of body
	span *lineSpan
}

// lineSpan describes a body cut from consecutive source lines starting at
// start. The end line is derived from the body that is finally rendered.
type lineSpan struct {
	path  string
	start int
	names []string
	score float64
	fence string
}

func (s *lineSpan) prefix(body string) string {
	end := s.start + strings.Count(body, "\n")
	desc := fmt.Sprintf("%s:%d-%d", s.path, s.start, end)
	if len(s.names) > 0 {
		desc += " defines " + strings.Join(s.names, ", ")
	}
	return fmt.Sprintf("\n### %s (relevance %.2f)\n```%s\n", desc, s.score, s.fence)
}

// withBody replaces the body and keeps the descriptor in step with it
func (e entry) withBody(body string) entry {
	e.body = body
	if e.span != nil {
		e.prefix = e.span.prefix(body)
	}
	return e
}

func header(n int) string {
	return fmt.Sprintf("[AfterImage] %d related snippet(s) from earlier edits\n", n)
}

func (inj *Injector) renderEntry(ctx context.Context, e summarizer.Entry, req Request) (entry, error) {
	if e.IsSummary() {
		g := e.Group
		return entry{
			prefix:  fmt.Sprintf("\n### summary of %d snippets (relevance %.2f)\n", g.MemberCount, g.Representative.Composite),
			body:    g.SummaryText,
			suffix:  "\n",
			score:   e.Score(),
			members: g.MemberCount,
		}, nil
	}

	sn := e.Snippet
	c := sn.Candidate
	path := displayPath(c.FilePath, req.ProjectRoot)

	if req.ToolType == ToolEdit && c.OldCode != "" && c.NewCode != "" {
		return entry{
			prefix:  fmt.Sprintf("\n### %s (edit, relevance %.2f)\n```diff\n", path, sn.Composite),
			body:    diffBody(c.OldCode, c.NewCode),
			suffix:  "\n```\n",
			score:   sn.Composite,
			members: 1,
		}, nil
	}

	content := c.Content()
	lang := language.Detect(c.FilePath, content)

	if !c.IsFullContent() {
		return entry{
			prefix:  fmt.Sprintf("\n### %s (edited fragment) (relevance %.2f)\n```%s\n", path, sn.Composite, language.FenceTag(lang)),
			body:    content,
			suffix:  "\n```\n",
			score:   sn.Composite,
			members: 1,
		}, nil
	}

	start, end, names, err := inj.locate(ctx, c.FilePath, content, lang)
	if err != nil {
		return entry{}, err
	}
	span := &lineSpan{path: path, start: start, names: names, score: sn.Composite, fence: language.FenceTag(lang)}
	out := entry{
		suffix:  "\n```\n",
		score:   sn.Composite,
		members: 1,
		span:    span,
	}
	return out.withBody(sourceLines(content, start, end)), nil
}

// renderRaw frames a candidate for the fallback path
func (inj *Injector) renderRaw(c types.Candidate, root string) entry {
	content := c.Content()
	return entry{
		prefix:  fmt.Sprintf("\n### %s\n```%s\n", displayPath(c.FilePath, root), language.FenceTag(language.Detect(c.FilePath, content))),
		body:    content,
		suffix:  "\n```\n",
		members: 1,
	}
}

// locate returns the line range of content worth rendering and the names
// it defines. With chunking enabled the range spans the chunker's units;
// otherwise it is the whole content.
func (inj *Injector) locate(ctx context.Context, path, content string, lang language.Language) (start, end int, names []string, err error) {
	start, end = 1, lineCount(content)
	if !inj.cfg.ChunkingEnabled || inj.chunker == nil {
		return start, end, nil, nil
	}

	units, err := inj.chunker.Chunk(ctx, path, content, lang)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("chunk %s: %w", path, err)
	}
	if len(units) == 0 {
		return start, end, nil, nil
	}

	start, end = units[0].StartLine, units[0].EndLine
	seen := make(map[string]bool)
	for _, u := range units {
		start, end = min(start, u.StartLine), max(end, u.EndLine)
		switch u.ChunkType {
		case types.ChunkFunction, types.ChunkMethod, types.ChunkClass:
		default:
			continue
		}
		name, _, _ := strings.Cut(u.Name, " (part ")
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if len(names) < maxDefinedNames {
			names = append(names, name)
		}
	}
	return start, end, names, nil
}

// sourceLines returns lines start through end (1-based, inclusive) of
// content, clamped to the lines it has.
func sourceLines(content string, start, end int) string {
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	start = max(start, 1)
	end = min(end, len(lines))
	if start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}

// diffBody renders an edit as removed and added lines
func diffBody(oldCode, newCode string) string {
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimSuffix(oldCode, "\n"), "\n") {
		b.WriteString("-")
		b.WriteString(line)
		b.WriteString("\n")
	}
	lines := strings.Split(strings.TrimSuffix(newCode, "\n"), "\n")
	for i, line := range lines {
		b.WriteString("+")
		b.WriteString(line)
		if i < len(lines)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func displayPath(path, root string) string {
	if root == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return filepath.ToSlash(rel)
}

func lineCount(content string) int {
	return strings.Count(strings.TrimSuffix(content, "\n"), "\n") + 1
}
