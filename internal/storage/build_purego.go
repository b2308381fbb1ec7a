//go:build !sqlite_vec

package storage

// Default build: pure Go SQLite with FTS5 compiled in. No C toolchain is
// needed, which keeps the hook binary cross-compilable.
//
// Driver used: modernc.org/sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
