// Package session persists desktop state between runs.
//
// Each slice (profile, windows, ledger, vault index, code files,
// experience log, social feed, theme) saves independently as a JSON
// document in the storage layer. A slice that fails to load falls back
// to its own default without disturbing the others.
package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloneos/cloneos/internal/observability"
	"github.com/cloneos/cloneos/internal/storage"
)

// Slice keys.
const (
	KeyProfile    = "profile"
	KeyWindows    = "windows"
	KeyLedger     = "ledger"
	KeyVault      = "vault"
	KeyCodeFiles  = "codefiles"
	KeyExperience = "experience"
	KeySocial     = "social"
	KeyTheme      = "theme"
)

const category = "slice"

// Store saves and loads session slices.
type Store struct {
	store  storage.Store
	logger *observability.Logger
}

// NewStore creates a session store.
func NewStore(store storage.Store, logger *observability.Logger) *Store {
	return &Store{store: store, logger: logger}
}

// Save serializes value as JSON under the slice key.
func (s *Store) Save(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal slice %q: %w", key, err)
	}
	rec := storage.Record{
		Key:      category + ":" + key,
		Category: category,
		Value:    data,
	}
	if err := s.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("save slice %q: %w", key, err)
	}
	return nil
}

// Load deserializes the slice into out. A missing slice or one that
// fails to parse leaves out untouched and returns false; a corrupted
// slice additionally logs a warning. Storage errors are returned.
func (s *Store) Load(ctx context.Context, key string, out any) (bool, error) {
	rec, err := s.store.Get(ctx, category+":"+key)
	if err != nil {
		return false, fmt.Errorf("load slice %q: %w", key, err)
	}
	if rec == nil {
		return false, nil
	}
	if err := json.Unmarshal(rec.Value, out); err != nil {
		s.logger.Warn("session slice corrupted, using default",
			"slice", key, "error", err.Error())
		return false, nil
	}
	return true, nil
}

// Delete removes a slice.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.store.Delete(ctx, category+":"+key)
}
