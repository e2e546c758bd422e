package storage

import (
	"context"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_PutGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := Record{
		Key:      "slice:windows",
		Category: "slice",
		Value:    []byte(`[{"id":"agent"}]`),
		Metadata: map[string]string{"format": "json"},
	}
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "slice:windows")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("Get returned nil for existing key")
	}
	if string(got.Value) != `[{"id":"agent"}]` {
		t.Errorf("Value = %s", got.Value)
	}
	if got.Category != "slice" {
		t.Errorf("Category = %q", got.Category)
	}
	if got.Metadata["format"] != "json" {
		t.Errorf("Metadata = %v", got.Metadata)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("Get missing key = %+v, want nil", got)
	}
}

func TestSQLiteStore_Upsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, Record{Key: "k", Category: "slice", Value: []byte("v1")})
	if err := s.Put(ctx, Record{Key: "k", Category: "slice", Value: []byte("v2")}); err != nil {
		t.Fatalf("Put upsert: %v", err)
	}

	got, _ := s.Get(ctx, "k")
	if string(got.Value) != "v2" {
		t.Errorf("Value after upsert = %s, want v2", got.Value)
	}
	n, _ := s.Count(ctx, "slice")
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestSQLiteStore_ListByCategory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, Record{Key: "vault:a", Category: "vault", Value: []byte("x")})
	s.Put(ctx, Record{Key: "vault:b", Category: "vault", Value: []byte("y")})
	s.Put(ctx, Record{Key: "slice:theme", Category: "slice", Value: []byte("z")})

	recs, err := s.List(ctx, "vault", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("List returned %d records, want 2", len(recs))
	}
	if recs[0].Key != "vault:b" || recs[1].Key != "vault:a" {
		t.Errorf("keys = %q, %q, want most recent first", recs[0].Key, recs[1].Key)
	}
}

func TestSQLiteStore_ListOrdersByRecencyNotKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Keys deliberately sort against insertion order.
	s.Put(ctx, Record{Key: "vault:c", Category: "vault", Value: []byte("oldest")})
	s.Put(ctx, Record{Key: "vault:b", Category: "vault", Value: []byte("middle")})
	s.Put(ctx, Record{Key: "vault:a", Category: "vault", Value: []byte("newest")})

	recs, err := s.List(ctx, "vault", 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("List returned %d records, want 2", len(recs))
	}
	if recs[0].Key != "vault:a" || recs[1].Key != "vault:b" {
		t.Errorf("limited list kept %q, %q, want the two newest", recs[0].Key, recs[1].Key)
	}

	// An upsert bumps the record back to the front.
	s.Put(ctx, Record{Key: "vault:c", Category: "vault", Value: []byte("touched")})
	recs, err = s.List(ctx, "vault", 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 1 || recs[0].Key != "vault:c" {
		t.Errorf("list after upsert = %+v, want vault:c first", recs)
	}
}

func TestSQLiteStore_Search(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, Record{Key: "vault:1", Category: "vault", Value: []byte("deploy pipeline checklist")})
	s.Put(ctx, Record{Key: "vault:2", Category: "vault", Value: []byte("grocery list")})
	s.Put(ctx, Record{Key: "exp:1", Category: "experience", Value: []byte("deploy failed once")})

	recs, err := s.Search(ctx, "vault", "deploy", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Search returned %d records, want 1", len(recs))
	}
	if recs[0].Key != "vault:1" {
		t.Errorf("key = %q", recs[0].Key)
	}

	// Empty category searches everything.
	all, err := s.Search(ctx, "", "deploy", 10)
	if err != nil {
		t.Fatalf("Search all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Search all returned %d records, want 2", len(all))
	}
}

func TestSQLiteStore_SearchEmptyQuery(t *testing.T) {
	s := newTestStore(t)

	recs, err := s.Search(context.Background(), "vault", "   ", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if recs != nil {
		t.Errorf("blank query returned %d records", len(recs))
	}
}

func TestSQLiteStore_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, Record{Key: "k", Category: "slice", Value: []byte("v")})
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, _ := s.Get(ctx, "k")
	if got != nil {
		t.Error("record still present after delete")
	}
}
