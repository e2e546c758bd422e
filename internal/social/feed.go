// Package social is the clone's personal feed: short posts written by
// the user or on their behalf, each tagged with the model's read of its
// tone. The feed keeps the newest DefaultCap posts and persists as a
// session slice.
package social

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCap is the maximum number of posts retained.
const DefaultCap = 50

// Post is a single feed entry. Sentiment is advisory and may be empty
// when tagging was unavailable at post time.
type Post struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Sentiment string    `json:"sentiment,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Feed is a thread-safe, newest-first collection of posts.
type Feed struct {
	mu    sync.RWMutex
	cap   int
	posts []Post // newest first
}

// NewFeed creates a feed with the given capacity.
// If cap <= 0, it defaults to DefaultCap.
func NewFeed(cap int) *Feed {
	if cap <= 0 {
		cap = DefaultCap
	}
	return &Feed{cap: cap}
}

// Add stores a post, assigning ID and timestamp if missing, and evicts
// the oldest post beyond the cap. Returns the stored post.
func (f *Feed) Add(p Post) Post {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append([]Post{p}, f.posts...)
	if len(f.posts) > f.cap {
		f.posts = f.posts[:f.cap]
	}
	return p
}

// Recent returns up to n posts, newest first. n <= 0 means all.
func (f *Feed) Recent(n int) []Post {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if n <= 0 || n > len(f.posts) {
		n = len(f.posts)
	}
	out := make([]Post, n)
	copy(out, f.posts[:n])
	return out
}

// All returns every stored post, newest first.
func (f *Feed) All() []Post {
	return f.Recent(0)
}

// Restore replaces the feed contents, keeping only the newest cap posts
// if more are supplied. Used when rehydrating from a saved session.
func (f *Feed) Restore(posts []Post) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(posts) > f.cap {
		posts = posts[:f.cap]
	}
	f.posts = make([]Post, len(posts))
	copy(f.posts, posts)
}

// Len returns the number of posts currently stored.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.posts)
}
