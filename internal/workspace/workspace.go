// Package workspace collects code files produced by agents. Fenced code
// blocks in subtask results are extracted into named files and persisted
// as the codefiles session slice.
package workspace

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// File is one extracted code file.
type File struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Language  string    `json:"language"`
	Content   string    `json:"content"`
	Source    string    `json:"source,omitempty"` // subtask title it came from
	Timestamp time.Time `json:"timestamp"`
}

var fencedBlock = regexp.MustCompile("(?s)```([a-zA-Z0-9+#-]*)\n(.*?)```")

// extensions maps fence language tags to file extensions.
var extensions = map[string]string{
	"go":         "go",
	"python":     "py",
	"py":         "py",
	"javascript": "js",
	"js":         "js",
	"typescript": "ts",
	"ts":         "ts",
	"tsx":        "tsx",
	"rust":       "rs",
	"java":       "java",
	"c":          "c",
	"cpp":        "cpp",
	"c++":        "cpp",
	"csharp":     "cs",
	"c#":         "cs",
	"html":       "html",
	"css":        "css",
	"sql":        "sql",
	"bash":       "sh",
	"sh":         "sh",
	"shell":      "sh",
	"json":       "json",
	"yaml":       "yaml",
	"yml":        "yaml",
}

// Workspace is a thread-safe collection of extracted files.
type Workspace struct {
	mu    sync.RWMutex
	files []File
}

// New creates an empty workspace.
func New() *Workspace {
	return &Workspace{}
}

// Extract pulls fenced code blocks out of text and stores each as a
// file. source labels where the code came from (subtask title). Blocks
// shorter than two lines are ignored as inline snippets.
func (w *Workspace) Extract(source, text string) []File {
	matches := fencedBlock.FindAllStringSubmatch(text, -1)
	var added []File
	for _, m := range matches {
		lang := strings.ToLower(m[1])
		content := strings.TrimRight(m[2], "\n")
		if strings.Count(content, "\n") < 1 {
			continue
		}
		f := File{
			ID:        uuid.New().String(),
			Name:      inferName(source, lang, len(added)),
			Language:  lang,
			Content:   content,
			Source:    source,
			Timestamp: time.Now().UTC(),
		}
		added = append(added, f)
	}

	if len(added) > 0 {
		w.mu.Lock()
		w.files = append(w.files, added...)
		w.mu.Unlock()
	}
	return added
}

// Add stores a file directly, assigning identity if missing.
func (w *Workspace) Add(f File) File {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now().UTC()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files = append(w.files, f)
	return f
}

// Get returns a file by ID, or nil.
func (w *Workspace) Get(id string) *File {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for i := range w.files {
		if w.files[i].ID == id {
			f := w.files[i]
			return &f
		}
	}
	return nil
}

// List returns all files in insertion order.
func (w *Workspace) List() []File {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]File(nil), w.files...)
}

// Restore replaces workspace contents from a saved slice.
func (w *Workspace) Restore(files []File) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files = append([]File(nil), files...)
}

// Len returns the number of stored files.
func (w *Workspace) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.files)
}

// inferName builds a file name from the source label and language.
func inferName(source, lang string, n int) string {
	base := slug(source)
	if base == "" {
		base = "snippet"
	}
	if n > 0 {
		base = fmt.Sprintf("%s-%d", base, n+1)
	}
	ext, ok := extensions[lang]
	if !ok {
		ext = "txt"
	}
	return base + "." + ext
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastDash := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
