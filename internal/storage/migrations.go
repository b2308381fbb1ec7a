package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// CurrentSchemaVersion tracks the database schema version
	CurrentSchemaVersion = "1.1.0"
)

// Migration represents a database schema migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: "1.0.0",
		Up:      migrationV1Up,
		Down:    migrationV1Down,
	},
	{
		Version: "1.1.0",
		Up:      migrationV11Up,
		Down:    migrationV11Down,
	},
}

const migrationV1Up = `
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS code_memory (
    id TEXT PRIMARY KEY,
    file_path TEXT NOT NULL,
    old_code TEXT,
    new_code TEXT NOT NULL,
    context TEXT,
    timestamp TEXT NOT NULL,
    session_id TEXT,
    embedding BLOB
);

CREATE INDEX IF NOT EXISTS idx_code_memory_file_path ON code_memory(file_path);
CREATE INDEX IF NOT EXISTS idx_code_memory_timestamp ON code_memory(timestamp);
CREATE INDEX IF NOT EXISTS idx_code_memory_session ON code_memory(session_id);

-- External-content FTS index over the searchable columns
CREATE VIRTUAL TABLE IF NOT EXISTS code_memory_fts USING fts5(
    file_path, new_code, context,
    content='code_memory',
    content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS code_memory_ai AFTER INSERT ON code_memory BEGIN
    INSERT INTO code_memory_fts(rowid, file_path, new_code, context)
    VALUES (new.rowid, new.file_path, new.new_code, new.context);
END;

CREATE TRIGGER IF NOT EXISTS code_memory_ad AFTER DELETE ON code_memory BEGIN
    INSERT INTO code_memory_fts(code_memory_fts, rowid, file_path, new_code, context)
    VALUES ('delete', old.rowid, old.file_path, old.new_code, old.context);
END;

CREATE TRIGGER IF NOT EXISTS code_memory_au AFTER UPDATE OF file_path, new_code, context ON code_memory BEGIN
    INSERT INTO code_memory_fts(code_memory_fts, rowid, file_path, new_code, context)
    VALUES ('delete', old.rowid, old.file_path, old.new_code, old.context);
    INSERT INTO code_memory_fts(rowid, file_path, new_code, context)
    VALUES (new.rowid, new.file_path, new.new_code, new.context);
END;
`

const migrationV1Down = `
DROP TRIGGER IF EXISTS code_memory_au;
DROP TRIGGER IF EXISTS code_memory_ad;
DROP TRIGGER IF EXISTS code_memory_ai;
DROP TABLE IF EXISTS code_memory_fts;
DROP TABLE IF EXISTS code_memory;
DROP TABLE IF EXISTS schema_version;
`

// 1.1.0 records which model produced each vector so that vectors of
// different widths or schemes are never compared.
const migrationV11Up = `
ALTER TABLE code_memory ADD COLUMN embedding_dim INTEGER NOT NULL DEFAULT 0;
ALTER TABLE code_memory ADD COLUMN embedding_model TEXT NOT NULL DEFAULT '';
UPDATE code_memory SET embedding_dim = length(embedding) / 4 WHERE embedding IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_code_memory_embedded ON code_memory(embedding_dim, timestamp);
`

const migrationV11Down = `
DROP INDEX IF EXISTS idx_code_memory_embedded;
ALTER TABLE code_memory DROP COLUMN embedding_model;
ALTER TABLE code_memory DROP COLUMN embedding_dim;
`

// appliedVersion returns the highest recorded schema version, 0.0.0 when
// none has been applied.
func appliedVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	current := semver.MustParse("0.0.0")

	var tableName string
	err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)
	if err == sql.ErrNoRows {
		return current, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check schema_version table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	defer func() { _ = rows.Close() }()

	// applied_at has second resolution, so order by semver rather than time
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		v, err := semver.NewVersion(s)
		if err != nil {
			return nil, fmt.Errorf("invalid schema version %s: %w", s, err)
		}
		if v.GreaterThan(current) {
			current = v
		}
	}
	return current, rows.Err()
}

// ApplyMigrations runs all pending migrations, each in its own transaction
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	current, err := appliedVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range AllMigrations {
		version, err := semver.NewVersion(migration.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}
		if !current.LessThan(version) {
			continue
		}

		if err := runMigration(ctx, db, migration.Up, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", migration.Version)
			return err
		}); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
		current = version
	}

	return nil
}

// RollbackMigration rolls back the most recent migration
func RollbackMigration(ctx context.Context, db *sql.DB) error {
	current, err := appliedVersion(ctx, db)
	if err != nil {
		return err
	}
	if current.Equal(semver.MustParse("0.0.0")) {
		return fmt.Errorf("no migrations to rollback")
	}

	var migration *Migration
	for i := range AllMigrations {
		v, err := semver.NewVersion(AllMigrations[i].Version)
		if err == nil && v.Equal(current) {
			migration = &AllMigrations[i]
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("migration %s not found", current)
	}

	// the first migration drops schema_version itself
	last := migration == &AllMigrations[0]
	return runMigration(ctx, db, migration.Down, func(tx *sql.Tx) error {
		if last {
			return nil
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM schema_version WHERE version = ?", migration.Version)
		return err
	})
}

func runMigration(ctx context.Context, db *sql.DB, script string, record func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return err
	}
	if err := record(tx); err != nil {
		return err
	}
	return tx.Commit()
}
