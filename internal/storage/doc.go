// Package storage is the AfterImage knowledge base: a SQLite database of
// code memories, one row per Write or Edit the assistant performed.
//
// # Database Schema
//
// Tables:
//   - code_memory: file path, old and new code, surrounding context,
//     timestamp, session, and an optional little-endian float32 embedding
//     with its dimension and model
//   - code_memory_fts: external-content FTS5 index over file_path, new_code
//     and context, kept in sync by triggers
//   - schema_version: applied migrations, compared as semantic versions
//
// Timestamps are stored as fixed-width UTC text so that ORDER BY timestamp
// is chronological.
//
// # Basic Usage
//
//	kb, err := storage.NewSQLiteStorage(path)
//	if err != nil {
//	    return err
//	}
//	defer kb.Close()
//
//	id, err := kb.Store(ctx, &storage.MemoryEntry{
//	    FilePath: "/repo/pkg/config.go",
//	    NewCode:  src,
//	})
//
//	hits, err := kb.SearchText(ctx, "parse config", 10)
//
// # Drivers
//
// The default build uses modernc.org/sqlite (pure Go). Building with the
// sqlite_vec tag switches to github.com/mattn/go-sqlite3.
//
// # Concurrency
//
// The hook and the MCP server may open the same file concurrently. The
// database runs in WAL mode with a busy timeout, and each handle keeps a
// single connection.
package storage
