// Package storage provides persistent slice storage for session state.
//
// The Store interface is the primary abstraction. SQLiteStore is the default
// implementation using pure-Go SQLite (modernc.org/sqlite).
//
// Session slices, vault items, and the experience log all persist through
// this layer as JSON-valued records.
package storage

import (
	"context"
	"time"
)

// Record is a stored document. Category groups records for listing
// (e.g. "slice", "vault", "experience").
type Record struct {
	Key       string            `json:"key"`
	Category  string            `json:"category"`
	Value     []byte            `json:"value"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Store is the persistent storage interface.
type Store interface {
	// Get retrieves a record by key. Returns nil if not found.
	Get(ctx context.Context, key string) (*Record, error)

	// Put stores a record (upsert).
	Put(ctx context.Context, rec Record) error

	// Delete removes a record by key.
	Delete(ctx context.Context, key string) error

	// List returns records in a category, ordered by key.
	List(ctx context.Context, category string, limit int) ([]Record, error)

	// Search performs full-text search on values within a category.
	// Empty category searches all records.
	Search(ctx context.Context, category, query string, limit int) ([]Record, error)

	// Count returns the number of records in a category.
	// Empty category counts all records.
	Count(ctx context.Context, category string) (int, error)

	// Close shuts down the store.
	Close() error
}
