package windows

import "testing"

func TestOpenAssignsMonotonicZOrder(t *testing.T) {
	r := NewRegistry()

	a := r.Open("agent")
	b := r.Open("vault")

	if !a.Open || a.Minimized {
		t.Errorf("open state = %+v", a)
	}
	if b.ZOrder <= a.ZOrder {
		t.Errorf("z-order not monotonic: %d then %d", a.ZOrder, b.ZOrder)
	}

	// Re-opening brings to front with a fresh value, never a reused one.
	a2 := r.Open("agent")
	if a2.ZOrder <= b.ZOrder {
		t.Errorf("reopen z-order %d not above %d", a2.ZOrder, b.ZOrder)
	}
}

func TestFocusRestoresMinimized(t *testing.T) {
	r := NewRegistry()
	r.Open("agent")
	r.Minimize("agent")

	w := r.Focus("agent")
	if w.Minimized {
		t.Error("focus did not restore minimized window")
	}
}

func TestFocusClosedIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Open("agent")
	r.Close("agent")
	before, _ := r.Get("agent")

	w := r.Focus("agent")
	if w.Open {
		t.Error("focus opened a closed window")
	}
	if w.ZOrder != before.ZOrder {
		t.Error("focus on closed window consumed a z-order value")
	}
}

func TestCloseClearsMaximized(t *testing.T) {
	r := NewRegistry()
	r.Open("agent")
	r.ToggleMaximize("agent")

	w := r.Close("agent")
	if w.Maximized {
		t.Error("maximization survived close")
	}

	w = r.Open("agent")
	if w.Maximized {
		t.Error("maximization survived reopen")
	}
}

func TestToggleMaximize(t *testing.T) {
	r := NewRegistry()
	r.Open("agent")

	if w := r.ToggleMaximize("agent"); !w.Maximized {
		t.Error("first toggle did not maximize")
	}
	if w := r.ToggleMaximize("agent"); w.Maximized {
		t.Error("second toggle did not restore")
	}
}

func TestArrangeResetsMaximization(t *testing.T) {
	r := NewRegistry()
	r.Open("agent")
	r.ToggleMaximize("agent")
	r.Open("vault")
	r.Minimize("vault")

	r.Arrange()

	agent, _ := r.Get("agent")
	if agent.Maximized {
		t.Error("visible window still maximized after arrange")
	}
	vault, _ := r.Get("vault")
	if !vault.Minimized {
		t.Error("arrange touched a minimized window")
	}
}

func TestMinimizeAll(t *testing.T) {
	r := NewRegistry()
	r.Open("agent")
	r.Open("vault")
	r.Close("vault")

	r.MinimizeAll()

	agent, _ := r.Get("agent")
	if !agent.Minimized {
		t.Error("open window not minimized")
	}
	vault, _ := r.Get("vault")
	if vault.Minimized {
		t.Error("closed window marked minimized")
	}
}

func TestVisibleOrdering(t *testing.T) {
	r := NewRegistry()
	r.Open("a")
	r.Open("b")
	r.Open("c")
	r.Focus("a")
	r.Minimize("b")

	vis := r.Visible()
	if len(vis) != 2 {
		t.Fatalf("visible = %d windows, want 2", len(vis))
	}
	if vis[0].ID != "c" || vis[1].ID != "a" {
		t.Errorf("back-to-front order = %q, %q", vis[0].ID, vis[1].ID)
	}
}

func TestSnapshotRestoreKeepsCounter(t *testing.T) {
	r := NewRegistry()
	r.Open("agent")
	r.Open("vault")
	snap := r.Snapshot()

	r2 := Restore(snap)
	w := r2.Open("browser")

	if w.ZOrder <= snap.Counter {
		t.Errorf("restored counter regressed: new z-order %d, saved counter %d", w.ZOrder, snap.Counter)
	}
	agent, ok := r2.Get("agent")
	if !ok || !agent.Open {
		t.Errorf("restored window state = %+v ok=%v", agent, ok)
	}
}
