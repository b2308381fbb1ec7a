package chunker

import (
	"fmt"
	"strings"

	"github.com/dshills/afterimage-mcp/pkg/types"
)

// piece is a line range (or a cut of one long line) of an oversize unit
type piece struct {
	start, end int
	content    string
}

// split cuts an oversize line range into sequential pieces that each fit
// maxChunkTokens. Lines are packed greedily; a single line that is too long
// on its own is cut on rune boundaries.
func (c *Chunker) split(filePath string, kind types.ChunkType, name string, lines []string, start, end int) []types.SourceUnit {
	var pieces []piece

	cur := piece{start: start}
	var buf []string
	budget := 0

	flush := func() {
		if len(buf) == 0 {
			return
		}
		pieces = append(pieces, c.fitPiece(cur.start, buf)...)
		buf = buf[:0]
		budget = 0
	}

	for ln := start; ln <= end; ln++ {
		line := lines[ln-1]
		cost := c.estimator.Estimate(line + "\n")

		if cost > c.maxChunkTokens {
			flush()
			for _, cut := range c.cutLine(line) {
				pieces = append(pieces, piece{start: ln, end: ln, content: cut})
			}
			cur.start = ln + 1
			continue
		}
		if budget+cost > c.maxChunkTokens {
			flush()
			cur.start = ln
		}
		if len(buf) == 0 {
			cur.start = ln
		}
		buf = append(buf, line)
		budget += cost
	}
	flush()

	units := make([]types.SourceUnit, 0, len(pieces))
	for i, p := range pieces {
		partName := fmt.Sprintf("%s (part %d/%d)", name, i+1, len(pieces))
		units = append(units, newUnit(filePath, kind, partName, p.start, p.end, p.content,
			c.estimator.Estimate(p.content), i+1, len(pieces)))
	}
	return units
}

// fitPiece verifies a packed run of lines against the real estimate and
// moves trailing lines into further pieces when the estimator is not
// additive.
func (c *Chunker) fitPiece(start int, buf []string) []piece {
	var out []piece
	for len(buf) > 0 {
		n := len(buf)
		content := strings.Join(buf[:n], "\n")
		for n > 1 && c.estimator.Estimate(content) > c.maxChunkTokens {
			n--
			content = strings.Join(buf[:n], "\n")
		}
		out = append(out, piece{start: start, end: start + n - 1, content: content})
		start += n
		buf = buf[n:]
	}
	return out
}

// cutLine splits one line into rune-aligned segments within the limit
func (c *Chunker) cutLine(line string) []string {
	runes := []rune(line)
	var cuts []string
	for len(runes) > 0 {
		// Largest prefix that fits, found by binary search
		lo, hi := 1, len(runes)
		for lo < hi {
			mid := (lo + hi + 1) / 2
			if c.estimator.Estimate(string(runes[:mid])) <= c.maxChunkTokens {
				lo = mid
			} else {
				hi = mid - 1
			}
		}
		cuts = append(cuts, string(runes[:lo]))
		runes = runes[lo:]
	}
	return cuts
}
