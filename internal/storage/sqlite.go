package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/afterimage-mcp/internal/vector"
)

// timeLayout is fixed width so that text ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// MemoryDSN opens a private in-memory database
const MemoryDSN = ":memory:"

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

var _ Storage = (*SQLiteStorage)(nil)

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath != MemoryDSN {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// A single connection serializes writers; the hook and the server may
	// open the same file from separate processes, hence WAL and busy_timeout.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set %q: %w", pragma, err)
		}
	}

	return db, nil
}

// NewSQLiteStorage opens (creating if needed) the knowledge base at dbPath
// and brings its schema up to date.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db, path: dbPath}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const entryColumns = `id, file_path, old_code, new_code, context, timestamp, session_id,
	embedding, embedding_dim, embedding_model`

// Entry operations

func (s *SQLiteStorage) storeWithQuerier(ctx context.Context, q querier, entry *MemoryEntry) (string, error) {
	if err := entry.Validate(); err != nil {
		return "", err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	var blob []byte
	if len(entry.Embedding) > 0 {
		blob = vector.Serialize(entry.Embedding)
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO code_memory (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.FilePath, nullString(entry.OldCode), entry.NewCode, nullString(entry.Context),
		formatTime(entry.Timestamp), nullString(entry.SessionID),
		blob, len(entry.Embedding), entry.EmbeddingModel)
	if err != nil {
		return "", fmt.Errorf("failed to store entry: %w", err)
	}
	return entry.ID, nil
}

// Store inserts entry, assigning a UUID and timestamp when unset
func (s *SQLiteStorage) Store(ctx context.Context, entry *MemoryEntry) (string, error) {
	return s.storeWithQuerier(ctx, s.db, entry)
}

// StoreBatch inserts entries in a single transaction. Nothing is stored if
// any entry fails.
func (s *SQLiteStorage) StoreBatch(ctx context.Context, entries []*MemoryEntry) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		id, err := s.storeWithQuerier(ctx, tx, entry)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return ids, nil
}

// Get returns the entry with id
func (s *SQLiteStorage) Get(ctx context.Context, id string) (*MemoryEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM code_memory WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return entry, err
}

// Delete removes the entry with id
func (s *SQLiteStorage) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM code_memory WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateEmbedding replaces the vector of an existing entry
func (s *SQLiteStorage) UpdateEmbedding(ctx context.Context, id string, vec []float32, model string) error {
	var blob []byte
	if len(vec) > 0 {
		blob = vector.Serialize(vec)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE code_memory SET embedding = ?, embedding_dim = ?, embedding_model = ? WHERE id = ?
	`, blob, len(vec), model, id)
	if err != nil {
		return fmt.Errorf("failed to update embedding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Search operations

// SearchText runs a BM25-ranked FTS5 query. Free text is reduced to quoted
// terms joined by OR, so user input can never be read as FTS syntax.
func (s *SQLiteStorage) SearchText(ctx context.Context, query string, limit int) ([]TextHit, error) {
	match := sanitizeFTSQuery(query)
	if match == "" {
		return nil, ErrEmptyQuery
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+prefixed("cm", entryColumns)+`, bm25(code_memory_fts) AS score
		FROM code_memory_fts
		JOIN code_memory cm ON cm.rowid = code_memory_fts.rowid
		WHERE code_memory_fts MATCH ?
		ORDER BY score
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []TextHit
	for rows.Next() {
		var rank float64
		entry, err := scanEntry(rows, &rank)
		if err != nil {
			return nil, err
		}
		hits = append(hits, TextHit{Entry: entry, Rank: rank})
	}
	return hits, rows.Err()
}

// SearchByPath returns the newest entries whose path contains pattern
func (s *SQLiteStorage) SearchByPath(ctx context.Context, pattern string, limit int) ([]*MemoryEntry, error) {
	return s.list(ctx, `WHERE file_path LIKE ? ESCAPE '\' ORDER BY timestamp DESC LIMIT ?`,
		"%"+escapeLike(pattern)+"%", limit)
}

// ByPath returns the entries stored under exactly filePath, newest first
func (s *SQLiteStorage) ByPath(ctx context.Context, filePath string, limit int) ([]*MemoryEntry, error) {
	return s.list(ctx, `WHERE file_path = ? ORDER BY timestamp DESC LIMIT ?`, filePath, limit)
}

// Recent returns the newest entries
func (s *SQLiteStorage) Recent(ctx context.Context, limit int) ([]*MemoryEntry, error) {
	return s.list(ctx, `ORDER BY timestamp DESC LIMIT ?`, limit)
}

// BySession returns a session's entries, newest first
func (s *SQLiteStorage) BySession(ctx context.Context, sessionID string, limit int) ([]*MemoryEntry, error) {
	return s.list(ctx, `WHERE session_id = ? ORDER BY timestamp DESC LIMIT ?`, sessionID, limit)
}

// EmbeddedEntries returns the newest entries that carry an embedding
func (s *SQLiteStorage) EmbeddedEntries(ctx context.Context, limit int) ([]*MemoryEntry, error) {
	return s.list(ctx, `WHERE embedding_dim > 0 ORDER BY timestamp DESC LIMIT ?`, limit)
}

// Export returns every entry, oldest first, without embeddings
func (s *SQLiteStorage) Export(ctx context.Context) ([]*MemoryEntry, error) {
	entries, err := s.list(ctx, `ORDER BY timestamp ASC`)
	for _, e := range entries {
		e.Embedding = nil
	}
	return entries, err
}

func (s *SQLiteStorage) list(ctx context.Context, clause string, args ...any) ([]*MemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM code_memory `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*MemoryEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Maintenance

// Stats summarizes the knowledge base
func (s *SQLiteStorage) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{BuildMode: BuildMode}

	var oldest, newest sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(CASE WHEN embedding_dim > 0 THEN 1 END),
			COUNT(DISTINCT file_path),
			COUNT(DISTINCT session_id),
			MIN(timestamp),
			MAX(timestamp)
		FROM code_memory
	`).Scan(&stats.TotalEntries, &stats.WithEmbeddings, &stats.UniqueFiles, &stats.UniqueSessions, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}

	if t, ok := parseNullTime(oldest); ok {
		stats.OldestEntry = &t
	}
	if t, ok := parseNullTime(newest); ok {
		stats.NewestEntry = &t
	}

	if v, err := appliedVersion(ctx, s.db); err == nil {
		stats.SchemaVersion = v.String()
	}
	if s.path != MemoryDSN {
		if info, err := os.Stat(s.path); err == nil {
			stats.DBSizeBytes = info.Size()
		}
	}
	return stats, nil
}

// Clear deletes every entry and returns how many were removed
func (s *SQLiteStorage) Clear(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM code_memory`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear entries: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Helpers

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner, extra ...any) (*MemoryEntry, error) {
	var (
		entry                       MemoryEntry
		oldCode, ctxText, sessionID sql.NullString
		timestamp                   string
		blob                        []byte
		dim                         int
	)
	dest := append([]any{
		&entry.ID, &entry.FilePath, &oldCode, &entry.NewCode, &ctxText, &timestamp, &sessionID,
		&blob, &dim, &entry.EmbeddingModel,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	entry.OldCode = oldCode.String
	entry.Context = ctxText.String
	entry.SessionID = sessionID.String

	ts, err := parseTime(timestamp)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", entry.ID, err)
	}
	entry.Timestamp = ts

	if dim > 0 && len(blob) == dim*4 {
		entry.Embedding = vector.Deserialize(blob)
	}
	return &entry, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime accepts the storage layout and any RFC 3339 timestamp written
// by other tools.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseNullTime(s sql.NullString) (time.Time, bool) {
	if !s.Valid {
		return time.Time{}, false
	}
	t, err := parseTime(s.String)
	return t, err == nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var ftsTermPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// maxFTSTerms bounds the OR-expansion of long queries
const maxFTSTerms = 32

// sanitizeFTSQuery reduces free text to a disjunction of quoted terms.
// Quoting makes FTS5 treat operators (AND, NEAR, *, ^, column filters) as
// plain words.
func sanitizeFTSQuery(query string) string {
	terms := ftsTermPattern.FindAllString(query, -1)
	if len(terms) == 0 {
		return ""
	}

	seen := make(map[string]bool, len(terms))
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		quoted = append(quoted, `"`+t+`"`)
		if len(quoted) == maxFTSTerms {
			break
		}
	}
	return strings.Join(quoted, " OR ")
}
