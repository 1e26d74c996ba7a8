package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Notes appends finalized records to one markdown file per day.
type Notes struct {
	dir string
	mu  sync.Mutex
}

func NewNotes(dir string) *Notes {
	return &Notes{dir: dir}
}

// Append writes rec to the notes file for its creation day and returns
// that file's path.
func (n *Notes) Append(rec Record) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := os.MkdirAll(n.dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", n.dir, err)
	}

	path := n.PathFor(rec.CreatedAt)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprint(f, FormatMarkdown(rec)); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}

	return path, nil
}

func (n *Notes) PathFor(t time.Time) string {
	return filepath.Join(n.dir, t.Local().Format("2006-01-02")+".md")
}

func FormatMarkdown(rec Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", strings.TrimSpace(rec.Title))
	fmt.Fprintf(&b, "*%s · %s · %s*\n\n",
		rec.CreatedAt.Local().Format("15:04"),
		time.Duration(rec.Duration)*time.Second,
		rec.UserID,
	)
	b.WriteString("### Summary\n\n")
	b.WriteString(strings.TrimSpace(rec.Summary))
	b.WriteString("\n\n### Transcript\n\n")
	if t := strings.TrimSpace(rec.Transcript); t != "" {
		b.WriteString(t)
	} else {
		b.WriteString("_No speech detected._")
	}
	b.WriteString("\n\n")
	return b.String()
}
