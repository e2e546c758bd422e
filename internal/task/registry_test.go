package task

import (
	"errors"
	"testing"
)

func TestRegistry_BeginAndActive(t *testing.T) {
	r := NewRegistry(5)

	if r.Active() != nil {
		t.Fatal("Active on empty registry not nil")
	}

	tk := &Task{ID: "t1", Goal: "do a thing", Status: StatusPlanning}
	if err := r.Begin(tk); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	got := r.Active()
	if got == nil || got.ID != "t1" {
		t.Fatalf("Active = %+v", got)
	}

	// Mutating the snapshot must not touch registry state.
	got.Goal = "mutated"
	if r.Active().Goal != "do a thing" {
		t.Error("snapshot mutation leaked into registry")
	}
}

func TestRegistry_BeginRejectsInFlight(t *testing.T) {
	r := NewRegistry(5)
	r.Begin(&Task{ID: "t1", Status: StatusExecuting})

	err := r.Begin(&Task{ID: "t2", Status: StatusPlanning})
	if !errors.Is(err, ErrTaskInFlight) {
		t.Errorf("Begin during in-flight task: %v", err)
	}
}

func TestRegistry_BeginArchivesTerminal(t *testing.T) {
	r := NewRegistry(5)
	r.Begin(&Task{ID: "t1", Status: StatusCompleted})

	if err := r.Begin(&Task{ID: "t2", Status: StatusPlanning}); err != nil {
		t.Fatalf("Begin after terminal: %v", err)
	}

	if r.Active().ID != "t2" {
		t.Errorf("active = %q", r.Active().ID)
	}
	hist := r.History()
	if len(hist) != 1 || hist[0].ID != "t1" {
		t.Errorf("history = %+v", hist)
	}
	if r.Get("t1") == nil {
		t.Error("archived task not reachable via Get")
	}
}

func TestRegistry_UpdateStaleWriteGuard(t *testing.T) {
	r := NewRegistry(5)
	r.Begin(&Task{ID: "t1", Status: StatusCompleted})
	r.Begin(&Task{ID: "t2", Status: StatusPlanning})

	// A late write from an engine still holding t1 must be rejected.
	err := r.Update(&Task{ID: "t1", Status: StatusExecuting})
	if !errors.Is(err, ErrStaleWrite) {
		t.Errorf("stale update: %v", err)
	}

	if err := r.Update(&Task{ID: "t2", Status: StatusExecuting, Goal: "g"}); err != nil {
		t.Fatalf("fresh update: %v", err)
	}
	if r.Active().Status != StatusExecuting {
		t.Errorf("active status = %q", r.Active().Status)
	}
}

func TestRegistry_HistoryBounded(t *testing.T) {
	r := NewRegistry(2)
	for i := 0; i < 4; i++ {
		r.Begin(&Task{ID: string(rune('a' + i)), Status: StatusCompleted})
	}

	hist := r.History()
	if len(hist) != 2 {
		t.Fatalf("history length = %d, want 2", len(hist))
	}
	// Most recent first.
	if hist[0].ID != "c" || hist[1].ID != "b" {
		t.Errorf("history order = %q, %q", hist[0].ID, hist[1].ID)
	}
}
