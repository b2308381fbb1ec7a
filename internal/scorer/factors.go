package scorer

import (
	"math"
	"path/filepath"
	"strings"
	"time"
)

// Proximity grades
const (
	ProximitySameFile    = 1.0
	ProximitySameDir     = 0.7
	ProximitySameProject = 0.4
	ProximityUnrelated   = 0.1
)

// Recency decays exponentially with the candidate's age: a record one
// half-life old scores 0.5. Timestamps in the future score 1 and a zero
// timestamp scores 0.
func Recency(ts, now time.Time, halfLife time.Duration) float64 {
	if ts.IsZero() {
		return 0
	}
	age := now.Sub(ts)
	if age <= 0 {
		return 1
	}
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	return math.Pow(0.5, float64(age)/float64(halfLife))
}

// Proximity grades how close candidatePath is to the file being edited
func Proximity(candidatePath, filePath, projectRoot string) float64 {
	if candidatePath == "" || filePath == "" {
		return ProximityUnrelated
	}
	c, f := filepath.Clean(candidatePath), filepath.Clean(filePath)
	switch {
	case c == f:
		return ProximitySameFile
	case filepath.Dir(c) == filepath.Dir(f):
		return ProximitySameDir
	case projectRoot != "" && isUnder(c, projectRoot) && isUnder(f, projectRoot):
		return ProximitySameProject
	default:
		return ProximityUnrelated
	}
}

// Project scores 1 for a candidate inside root and otherwise the fraction of
// root's path components the candidate shares. An unknown root scores 0.
func Project(candidatePath, root string) float64 {
	if root == "" || candidatePath == "" {
		return 0
	}
	if isUnder(candidatePath, root) {
		return 1
	}

	rootParts := pathParts(root)
	if len(rootParts) == 0 {
		return 0
	}
	candParts := pathParts(candidatePath)

	shared := 0
	for shared < len(rootParts) && shared < len(candParts) && rootParts[shared] == candParts[shared] {
		shared++
	}
	return float64(shared) / float64(len(rootParts))
}

func isUnder(path, root string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	return rel != ".." && !strings.HasPrefix(rel, "../")
}

func pathParts(path string) []string {
	var parts []string
	for _, p := range strings.Split(filepath.ToSlash(filepath.Clean(path)), "/") {
		if p != "" && p != "." {
			parts = append(parts, p)
		}
	}
	return parts
}
