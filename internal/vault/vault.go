// Package vault is the knowledge vault: durable notes, links, and
// distilled findings the clone accumulates. Items persist through the
// storage layer and are discoverable by full-text search, which also
// serves the SEARCH_VAULT tool action.
package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cloneos/cloneos/internal/storage"
)

const category = "vault"

// Item kinds.
const (
	KindNote    = "note"
	KindLink    = "link"
	KindFinding = "finding"
)

// Item is one vault entry.
type Item struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	URL        string    `json:"url,omitempty"`
	Kind       string    `json:"kind"`
	Importance int       `json:"importance"` // 1 (low) to 5 (critical)
	Timestamp  time.Time `json:"timestamp"`
}

// Vault provides access to the knowledge vault.
type Vault struct {
	store storage.Store
}

// New creates a vault over the given store.
func New(store storage.Store) *Vault {
	return &Vault{store: store}
}

// Save stores an item, assigning ID and timestamp if missing.
func (v *Vault) Save(ctx context.Context, item Item) (Item, error) {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now().UTC()
	}
	if item.Kind == "" {
		item.Kind = KindNote
	}

	data, err := json.Marshal(item)
	if err != nil {
		return Item{}, fmt.Errorf("marshal vault item: %w", err)
	}
	rec := storage.Record{
		Key:      category + ":" + item.ID,
		Category: category,
		Value:    data,
		Metadata: map[string]string{"kind": item.Kind},
	}
	if err := v.store.Put(ctx, rec); err != nil {
		return Item{}, fmt.Errorf("save vault item: %w", err)
	}
	return item, nil
}

// Get retrieves an item by ID. Returns nil if not found.
func (v *Vault) Get(ctx context.Context, id string) (*Item, error) {
	rec, err := v.store.Get(ctx, category+":"+id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	var item Item
	if err := json.Unmarshal(rec.Value, &item); err != nil {
		return nil, fmt.Errorf("decode vault item %q: %w", id, err)
	}
	return &item, nil
}

// List returns up to limit items, most recent first.
func (v *Vault) List(ctx context.Context, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 50
	}
	recs, err := v.store.List(ctx, category, limit)
	if err != nil {
		return nil, err
	}
	items := decodeItems(recs)
	sort.Slice(items, func(i, j int) bool { return items[i].Timestamp.After(items[j].Timestamp) })
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Search performs full-text search over vault items.
func (v *Vault) Search(ctx context.Context, query string, limit int) ([]Item, error) {
	recs, err := v.store.Search(ctx, category, query, limit)
	if err != nil {
		return nil, fmt.Errorf("vault search: %w", err)
	}
	return decodeItems(recs), nil
}

// Delete removes an item by ID.
func (v *Vault) Delete(ctx context.Context, id string) error {
	return v.store.Delete(ctx, category+":"+id)
}

func decodeItems(recs []storage.Record) []Item {
	var items []Item
	for _, rec := range recs {
		var item Item
		if err := json.Unmarshal(rec.Value, &item); err != nil {
			continue // skip undecodable rows
		}
		items = append(items, item)
	}
	return items
}
