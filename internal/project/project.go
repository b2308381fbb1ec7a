// Package project locates the root directory of the project a file belongs
// to, which the scorer uses for its project factor.
package project

import (
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
)

// Markers are files whose presence identifies a project root when the file
// is not inside a git worktree.
var Markers = []string{"go.mod", "package.json", "pyproject.toml", "Cargo.toml", "setup.py", "pom.xml"}

// Root returns the project root for path. The enclosing git worktree wins;
// otherwise the nearest ancestor holding a marker file; otherwise the
// directory of path itself. path need not exist yet.
func Root(path string) string {
	if path == "" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}

	start := existingDir(abs)
	if root, ok := GitRoot(start); ok {
		return root
	}
	if root, ok := markerRoot(start); ok {
		return root
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return abs
	}
	return filepath.Dir(abs)
}

// GitRoot returns the worktree root of the git repository containing dir
func GitRoot(dir string) (string, bool) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		return "", false
	}
	// bare repositories have no worktree
	wt, err := repo.Worktree()
	if err != nil {
		return "", false
	}
	return wt.Filesystem.Root(), true
}

func markerRoot(dir string) (string, bool) {
	current := dir
	for {
		for _, m := range Markers {
			if _, err := os.Stat(filepath.Join(current, m)); err == nil {
				return current, true
			}
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", false
		}
		current = parent
	}
}

// existingDir returns the nearest ancestor of path (or path itself) that is
// an existing directory.
func existingDir(path string) string {
	current := path
	for {
		if info, err := os.Stat(current); err == nil && info.IsDir() {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			return current
		}
		current = parent
	}
}
