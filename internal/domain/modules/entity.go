package modules

import (
	"path"
	"strings"
	"time"
)

// Status perubahan file dari GitHub (added, modified, removed, renamed, ...)
type Status string

const (
	StatusAdded    Status = "added"
	StatusModified Status = "modified"
	StatusRemoved  Status = "removed"
	StatusRenamed  Status = "renamed"
)

// Module is one changed module file inside a watched directory.
type Module struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	URL        string    `json:"url"`
	Status     Status    `json:"status"`
	Category   string    `json:"type"`
	LastCommit time.Time `json:"last_commit"`
	Content    string    `json:"-"`
}

// ChangedFile is a single entry of a commit's file list.
type ChangedFile struct {
	Filename string
	Status   Status
	BlobURL  string
}

// Commit as returned by the commit list, with the files filled in from the
// commit detail endpoint.
type Commit struct {
	SHA   string
	Date  time.Time
	Files []ChangedFile
}

// Watch decides which changed files count as modules.
type Watch struct {
	Prefixes   []string
	Extensions []string
}

// Matches reports whether filename lies under a watched prefix and carries a
// watched extension.
func (w Watch) Matches(filename string) bool {
	prefixOK := false
	for _, p := range w.Prefixes {
		if strings.HasPrefix(filename, p) {
			prefixOK = true
			break
		}
	}
	if !prefixOK {
		return false
	}
	for _, ext := range w.Extensions {
		if strings.HasSuffix(filename, ext) {
			return true
		}
	}
	return false
}

// CategoryOf returns the second path segment ("modules/exploits/x.rb" -> "exploits").
func CategoryOf(filename string) string {
	parts := strings.Split(filename, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// NewModule builds a Module from a changed file and its commit time.
func NewModule(f ChangedFile, committed time.Time) Module {
	return Module{
		Name:       path.Base(f.Filename),
		Path:       f.Filename,
		URL:        f.BlobURL,
		Status:     f.Status,
		Category:   CategoryOf(f.Filename),
		LastCommit: committed,
	}
}
