// Package windows tracks open surfaces and their stacking order.
//
// Each window carries a z-order value assigned from a monotonic counter
// that is never reused, so focus history is unambiguous even after
// closes. The counter persists with the session so ordering survives
// restarts.
package windows

import (
	"sort"
	"sync"
)

// State describes one window.
type State struct {
	ID        string `json:"id"`
	Open      bool   `json:"open"`
	Minimized bool   `json:"minimized"`
	Maximized bool   `json:"maximized"`
	ZOrder    int64  `json:"z_order"`
}

// Snapshot is the persistable form of the registry.
type Snapshot struct {
	Windows []State `json:"windows"`
	Counter int64   `json:"counter"`
}

// Registry is a thread-safe window table.
type Registry struct {
	mu      sync.RWMutex
	windows map[string]*State
	counter int64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{windows: make(map[string]*State)}
}

// Restore rebuilds the registry from a snapshot. The counter is clamped
// up to the highest restored z-order so it never regresses.
func Restore(snap Snapshot) *Registry {
	r := NewRegistry()
	r.counter = snap.Counter
	for _, w := range snap.Windows {
		cp := w
		r.windows[w.ID] = &cp
		if w.ZOrder > r.counter {
			r.counter = w.ZOrder
		}
	}
	return r
}

// Open opens a window (creating it if unknown), clears minimization, and
// brings it to the front.
func (r *Registry) Open(id string) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := r.ensureLocked(id)
	w.Open = true
	w.Minimized = false
	r.counter++
	w.ZOrder = r.counter
	return *w
}

// Close closes a window. Maximization does not survive a close.
func (r *Registry) Close(id string) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := r.ensureLocked(id)
	w.Open = false
	w.Maximized = false
	return *w
}

// Focus brings an open window to the front and restores it if minimized.
func (r *Registry) Focus(id string) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := r.ensureLocked(id)
	if w.Open {
		w.Minimized = false
		r.counter++
		w.ZOrder = r.counter
	}
	return *w
}

// Minimize hides an open window without closing it.
func (r *Registry) Minimize(id string) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := r.ensureLocked(id)
	if w.Open {
		w.Minimized = true
	}
	return *w
}

// ToggleMaximize flips maximization on an open window and focuses it.
func (r *Registry) ToggleMaximize(id string) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := r.ensureLocked(id)
	if w.Open {
		w.Maximized = !w.Maximized
		r.counter++
		w.ZOrder = r.counter
	}
	return *w
}

// Arrange tidies the desktop: every visible window loses maximization so
// the layout returns to the default tiling.
func (r *Registry) Arrange() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range r.windows {
		if w.Open && !w.Minimized {
			w.Maximized = false
		}
	}
}

// MinimizeAll minimizes every open window.
func (r *Registry) MinimizeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range r.windows {
		if w.Open {
			w.Minimized = true
		}
	}
}

// Get returns the state of a window and whether it exists.
func (r *Registry) Get(id string) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.windows[id]
	if !ok {
		return State{}, false
	}
	return *w, true
}

// Visible returns open, non-minimized windows ordered back to front.
func (r *Registry) Visible() []State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []State
	for _, w := range r.windows {
		if w.Open && !w.Minimized {
			result = append(result, *w)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ZOrder < result[j].ZOrder })
	return result
}

// Snapshot returns the persistable state of the registry.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{Counter: r.counter}
	for _, w := range r.windows {
		snap.Windows = append(snap.Windows, *w)
	}
	sort.Slice(snap.Windows, func(i, j int) bool { return snap.Windows[i].ID < snap.Windows[j].ID })
	return snap
}

func (r *Registry) ensureLocked(id string) *State {
	w, ok := r.windows[id]
	if !ok {
		w = &State{ID: id}
		r.windows[id] = w
	}
	return w
}
