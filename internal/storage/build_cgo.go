//go:build sqlite_vec

package storage

// Compiled with the sqlite_vec tag: the cgo driver, which needs the
// sqlite_fts5 tag as well for the full-text index.
//
//   CGO_ENABLED=1 go build -tags "sqlite_vec,sqlite_fts5" ./...
//
// Driver used: github.com/mattn/go-sqlite3

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)
