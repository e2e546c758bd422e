package task

import (
	"fmt"
	"sync"
)

// ErrTaskInFlight is returned by Begin while the active task is still
// planning or executing.
var ErrTaskInFlight = fmt.Errorf("a task is already in flight")

// ErrStaleWrite is returned by Update when the submitted task no longer
// matches the active task. Engine goroutines race user-initiated task
// replacement; the ID guard makes their late writes harmless.
var ErrStaleWrite = fmt.Errorf("task is no longer active")

// Registry holds the single active task plus a bounded history of
// finished ones. All reads return deep clones and all writes replace the
// whole task, so callers never share mutable state.
type Registry struct {
	mu      sync.RWMutex
	active  *Task
	history []*Task
	maxHist int
}

// NewRegistry creates a registry keeping at most maxHist finished tasks.
// If maxHist <= 0, it defaults to 20.
func NewRegistry(maxHist int) *Registry {
	if maxHist <= 0 {
		maxHist = 20
	}
	return &Registry{maxHist: maxHist}
}

// Begin installs t as the active task. If the current active task is
// still in flight, Begin fails; if it is terminal, it is archived first.
func (r *Registry) Begin(t *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil && !r.active.Terminal() {
		return ErrTaskInFlight
	}
	if r.active != nil {
		r.archiveLocked(r.active)
	}
	r.active = t.Clone()
	return nil
}

// Active returns a clone of the active task, or nil. The active task
// remains visible after completion until a new one replaces it.
func (r *Registry) Active() *Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active.Clone()
}

// Update replaces the active task with t. The write is rejected if t's ID
// does not match the active task, which guards engine goroutines against
// writing into a task the user has since replaced.
func (r *Registry) Update(t *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == nil || r.active.ID != t.ID {
		return ErrStaleWrite
	}
	r.active = t.Clone()
	return nil
}

// Get returns a clone of the task with the given ID, searching the active
// task first and then history. Returns nil if not found.
func (r *Registry) Get(id string) *Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.active != nil && r.active.ID == id {
		return r.active.Clone()
	}
	for _, t := range r.history {
		if t.ID == id {
			return t.Clone()
		}
	}
	return nil
}

// History returns clones of finished tasks, most recent first.
func (r *Registry) History() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Task, len(r.history))
	for i, t := range r.history {
		result[len(r.history)-1-i] = t.Clone()
	}
	return result
}

func (r *Registry) archiveLocked(t *Task) {
	r.history = append(r.history, t)
	if len(r.history) > r.maxHist {
		r.history = r.history[len(r.history)-r.maxHist:]
	}
}
