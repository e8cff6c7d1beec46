package modules

import (
	"context"
	"time"
)

// Source port (interface ke hosting repository)
type Source interface {
	// ListCommits returns commits newer than since. Files are not filled.
	ListCommits(ctx context.Context, since time.Time) ([]Commit, error)
	// CommitFiles returns the changed-file list of one commit.
	CommitFiles(ctx context.Context, sha string) ([]ChangedFile, error)
}

// ContentFetcher returns the raw text of a module.
type ContentFetcher interface {
	FetchContent(ctx context.Context, m Module) (string, error)
}
