// Package experience turns completed tasks into reusable lessons.
//
// The distiller asks the model to reflect on a finished task and
// produces an Experience record. Experiences accumulate in a capped,
// most-recent-first log that seeds future planning.
package experience

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cloneos/cloneos/internal/task"
)

// DefaultCap is the maximum number of experiences retained.
const DefaultCap = 50

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailure = "failure"
)

// Experience is one distilled record.
type Experience struct {
	ID        string    `json:"id"`
	Goal      string    `json:"goal"`
	Outcome   string    `json:"outcome"`
	Lessons   []string  `json:"lessons"`
	Timestamp time.Time `json:"timestamp"`
}

// OutcomeOf derives the task outcome from its subtask results.
func OutcomeOf(t *task.Task) string {
	if len(t.Subtasks) == 0 {
		return OutcomeFailure
	}
	completed := 0
	for _, st := range t.Subtasks {
		if st.Status == task.SubtaskCompleted {
			completed++
		}
	}
	switch completed {
	case len(t.Subtasks):
		return OutcomeSuccess
	case 0:
		return OutcomeFailure
	default:
		return OutcomePartial
	}
}

// Log is a thread-safe capped experience log, most recent first.
type Log struct {
	mu      sync.RWMutex
	entries []Experience
	maxSize int
}

// NewLog creates a log with the given capacity.
// If maxSize <= 0, it defaults to DefaultCap.
func NewLog(maxSize int) *Log {
	if maxSize <= 0 {
		maxSize = DefaultCap
	}
	return &Log{maxSize: maxSize}
}

// Add prepends an experience, evicting the oldest past the cap.
// The ID and timestamp are assigned if missing.
func (l *Log) Add(exp Experience) Experience {
	if exp.ID == "" {
		exp.ID = uuid.New().String()
	}
	if exp.Timestamp.IsZero() {
		exp.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append([]Experience{exp}, l.entries...)
	if len(l.entries) > l.maxSize {
		l.entries = l.entries[:l.maxSize]
	}
	return exp
}

// Recent returns up to n experiences, most recent first.
func (l *Log) Recent(n int) []Experience {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	return append([]Experience(nil), l.entries[:n]...)
}

// All returns every experience, most recent first.
func (l *Log) All() []Experience {
	return l.Recent(0)
}

// Restore replaces the log contents, keeping only the newest maxSize.
func (l *Log) Restore(entries []Experience) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(entries) > l.maxSize {
		entries = entries[:l.maxSize]
	}
	l.entries = append([]Experience(nil), entries...)
}

// Len returns the number of stored experiences.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Summarize renders experiences into a planning prompt fragment.
func Summarize(exps []Experience) string {
	if len(exps) == 0 {
		return ""
	}
	out := "Lessons from past tasks:\n"
	for _, e := range exps {
		out += fmt.Sprintf("- [%s] %s", e.Outcome, e.Goal)
		for _, lesson := range e.Lessons {
			out += "\n  * " + lesson
		}
		out += "\n"
	}
	return out
}
