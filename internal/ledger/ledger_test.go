package ledger

import (
	"fmt"
	"testing"
)

func TestLedger_AppendAndRecent(t *testing.T) {
	l := New(10)

	l.Append(CategoryThought, "analyzing request")
	l.Append(CategoryAction, "opened window")
	l.Append(CategoryLearning, "lesson recorded")

	if l.Len() != 3 {
		t.Fatalf("Len = %d, want 3", l.Len())
	}

	recent := l.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("Recent(2) returned %d entries", len(recent))
	}
	if recent[0].Content != "opened window" || recent[1].Content != "lesson recorded" {
		t.Errorf("Recent order wrong: %q, %q", recent[0].Content, recent[1].Content)
	}
	if recent[0].ID == "" {
		t.Error("entry ID not assigned")
	}
	if recent[0].Timestamp.IsZero() {
		t.Error("entry timestamp not set")
	}
}

func TestLedger_EvictsOldestAtCap(t *testing.T) {
	l := New(100)

	for i := 0; i < 105; i++ {
		l.Append(CategoryAction, fmt.Sprintf("entry %d", i))
	}

	if l.Len() != 100 {
		t.Fatalf("Len = %d, want 100", l.Len())
	}

	all := l.All()
	if all[0].Content != "entry 5" {
		t.Errorf("oldest surviving entry = %q, want entry 5", all[0].Content)
	}
	if all[len(all)-1].Content != "entry 104" {
		t.Errorf("newest entry = %q, want entry 104", all[len(all)-1].Content)
	}
}

func TestLedger_RecentMoreThanStored(t *testing.T) {
	l := New(10)
	l.Append(CategoryThought, "only one")

	recent := l.Recent(5)
	if len(recent) != 1 {
		t.Errorf("Recent(5) with 1 entry returned %d", len(recent))
	}
}

func TestLedger_Restore(t *testing.T) {
	l := New(3)

	entries := []Entry{
		{ID: "1", Category: CategoryAction, Content: "a"},
		{ID: "2", Category: CategoryAction, Content: "b"},
		{ID: "3", Category: CategoryAction, Content: "c"},
		{ID: "4", Category: CategoryAction, Content: "d"},
	}
	l.Restore(entries)

	if l.Len() != 3 {
		t.Fatalf("Len after restore = %d, want 3", l.Len())
	}
	all := l.All()
	if all[0].Content != "b" || all[2].Content != "d" {
		t.Errorf("restored entries = %q..%q, want b..d", all[0].Content, all[2].Content)
	}

	// Appending after restore keeps FIFO behavior.
	l.Append(CategoryAction, "e")
	all = l.All()
	if all[0].Content != "c" || all[2].Content != "e" {
		t.Errorf("after append = %q..%q, want c..e", all[0].Content, all[2].Content)
	}
}

func TestLedger_Clear(t *testing.T) {
	l := New(10)
	l.Append(CategoryThought, "x")
	l.Clear()

	if l.Len() != 0 {
		t.Errorf("Len after clear = %d", l.Len())
	}
	if len(l.All()) != 0 {
		t.Error("All not empty after clear")
	}
}
