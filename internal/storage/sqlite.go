package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout stamps rows with a fixed-width fraction so timestamp
// strings order lexicographically; reads still parse as RFC3339.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite-backed store.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS slices (
		key        TEXT PRIMARY KEY,
		category   TEXT NOT NULL DEFAULT '',
		value      BLOB NOT NULL,
		metadata   TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_slices_category ON slices(category);
	CREATE VIRTUAL TABLE IF NOT EXISTS slice_fts USING fts5(
		key, value, content='slices', content_rowid='rowid'
	);
	CREATE TRIGGER IF NOT EXISTS slices_ai AFTER INSERT ON slices BEGIN
		INSERT INTO slice_fts(rowid, key, value) VALUES (new.rowid, new.key, new.value);
	END;
	CREATE TRIGGER IF NOT EXISTS slices_ad AFTER DELETE ON slices BEGIN
		INSERT INTO slice_fts(slice_fts, rowid, key, value) VALUES ('delete', old.rowid, old.key, old.value);
	END;
	CREATE TRIGGER IF NOT EXISTS slices_au AFTER UPDATE ON slices BEGIN
		INSERT INTO slice_fts(slice_fts, rowid, key, value) VALUES ('delete', old.rowid, old.key, old.value);
		INSERT INTO slice_fts(rowid, key, value) VALUES (new.rowid, new.key, new.value);
	END;`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Get retrieves a record by key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec Record
	var metaJSON sql.NullString
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT key, category, value, metadata, created_at, updated_at FROM slices WHERE key = ?",
		key,
	).Scan(&rec.Key, &rec.Category, &rec.Value, &metaJSON, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}

	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if metaJSON.Valid && metaJSON.String != "" {
		json.Unmarshal([]byte(metaJSON.String), &rec.Metadata)
	}

	return &rec, nil
}

// Put stores or updates a record.
func (s *SQLiteStore) Put(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(timeLayout)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var metaJSON *string
	if len(rec.Metadata) > 0 {
		data, _ := json.Marshal(rec.Metadata)
		s := string(data)
		metaJSON = &s
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO slices (key, category, value, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			category = excluded.category,
			value = excluded.value,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		rec.Key, rec.Category, rec.Value, metaJSON,
		rec.CreatedAt.UTC().Format(timeLayout), now,
	)
	if err != nil {
		return fmt.Errorf("put %q: %w", rec.Key, err)
	}
	return nil
}

// Delete removes a record by key.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM slices WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// List returns records in a category, most recently updated first. Ties
// fall back to key order so the result is stable.
func (s *SQLiteStore) List(ctx context.Context, category string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT key, category, value, metadata, created_at, updated_at FROM slices WHERE category = ? ORDER BY updated_at DESC, key LIMIT ?",
		category, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list category %q: %w", category, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Search performs full-text search within a category.
func (s *SQLiteStore) Search(ctx context.Context, category, query string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	// Sanitize query for FTS5.
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return nil, nil
	}
	ftsQuery := strings.Join(terms, " OR ")

	q := `
		SELECT s.key, s.category, s.value, s.metadata, s.created_at, s.updated_at
		FROM slice_fts f
		JOIN slices s ON s.rowid = f.rowid
		WHERE slice_fts MATCH ?`
	args := []any{ftsQuery}
	if category != "" {
		q += " AND s.category = ?"
		args = append(args, category)
	}
	q += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Count returns the number of records in a category.
func (s *SQLiteStore) Count(ctx context.Context, category string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	var err error
	if category == "" {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM slices").Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM slices WHERE category = ?", category).Scan(&count)
	}
	return count, err
}

// Close shuts down the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var rec Record
		var metaJSON sql.NullString
		var createdAt, updatedAt string

		if err := rows.Scan(&rec.Key, &rec.Category, &rec.Value, &metaJSON, &createdAt, &updatedAt); err != nil {
			return nil, err
		}

		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		if metaJSON.Valid && metaJSON.String != "" {
			json.Unmarshal([]byte(metaJSON.String), &rec.Metadata)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
