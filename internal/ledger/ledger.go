// Package ledger holds the rolling activity feed of the system.
//
// Every orchestration step, window action, and distilled lesson appends an
// entry. The ledger is a thread-safe ring buffer capped at DefaultCap
// entries; once full, the oldest entry is evicted on each append.
package ledger

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCap is the maximum number of entries retained.
const DefaultCap = 100

// Entry categories.
const (
	CategoryThought  = "thought"
	CategoryAction   = "action"
	CategorySync     = "sync"
	CategoryLearning = "learning"
)

// Entry is a single ledger record.
type Entry struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Ledger is a thread-safe ring buffer of the last N entries.
type Ledger struct {
	mu      sync.RWMutex
	entries []Entry
	maxSize int
	head    int // write position (next slot to overwrite)
	count   int
}

// New creates a ledger with the given capacity.
// If maxSize <= 0, it defaults to DefaultCap.
func New(maxSize int) *Ledger {
	if maxSize <= 0 {
		maxSize = DefaultCap
	}
	return &Ledger{
		entries: make([]Entry, maxSize),
		maxSize: maxSize,
	}
}

// Append records a new entry and returns it.
func (l *Ledger) Append(category, content string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		ID:        uuid.New().String(),
		Category:  category,
		Content:   content,
		Timestamp: time.Now(),
	}

	l.entries[l.head] = entry
	l.head = (l.head + 1) % l.maxSize
	if l.count < l.maxSize {
		l.count++
	}
	return entry
}

// Recent returns the most recent n entries in chronological order
// (oldest first). If n exceeds the stored count, all entries are returned.
func (l *Ledger) Recent(n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 {
		return nil
	}
	if n > l.count {
		n = l.count
	}

	result := make([]Entry, n)
	for i := 0; i < n; i++ {
		idx := (l.head - n + i + l.maxSize) % l.maxSize
		result[i] = l.entries[idx]
	}
	return result
}

// All returns every stored entry in chronological order (oldest first).
func (l *Ledger) All() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]Entry, l.count)
	for i := 0; i < l.count; i++ {
		var idx int
		if l.count < l.maxSize {
			idx = i
		} else {
			idx = (l.head + i) % l.maxSize
		}
		result[i] = l.entries[idx]
	}
	return result
}

// Restore replaces the ledger contents with the given entries,
// keeping only the newest maxSize if more are supplied.
// Used when rehydrating from a saved session.
func (l *Ledger) Restore(entries []Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(entries) > l.maxSize {
		entries = entries[len(entries)-l.maxSize:]
	}

	l.entries = make([]Entry, l.maxSize)
	copy(l.entries, entries)
	l.head = len(entries) % l.maxSize
	l.count = len(entries)
}

// Clear removes all entries.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = make([]Entry, l.maxSize)
	l.head = 0
	l.count = 0
}

// Len returns the number of entries currently stored.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.count
}

// Cap returns the maximum number of entries the ledger retains.
func (l *Ledger) Cap() int {
	return l.maxSize
}
