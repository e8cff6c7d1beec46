package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/bryanwahyu/automaton-intel/internal/application"
	"github.com/bryanwahyu/automaton-intel/internal/domain/modules"
)

// Service finds the modules touched inside the lookback window.
type Service struct {
	Source modules.Source
	Watch  modules.Watch
	Window time.Duration
	Clock  application.Clock
}

// RecentModules returns the latest state of every watched file changed in
// the window. A failing commit list yields an empty result; a failing commit
// detail only drops that commit.
func (s *Service) RecentModules(ctx context.Context) []modules.Module {
	return s.RecentModulesWithin(ctx, s.Window)
}

// RecentModulesWithin is RecentModules with an explicit window.
func (s *Service) RecentModulesWithin(ctx context.Context, window time.Duration) []modules.Module {
	since := s.Clock.Now().UTC().Add(-window)
	slog.Info("fetching commits", "since", since.Format(time.RFC3339))

	commits, err := s.Source.ListCommits(ctx, since)
	if err != nil {
		slog.Error("error fetching commit list", "error", err)
		return []modules.Module{}
	}
	slog.Info("commits found", "count", len(commits), "since", since.Format(time.RFC3339))

	tracker := modules.NewTracker(s.Watch)
	for _, c := range commits {
		files, err := s.Source.CommitFiles(ctx, c.SHA)
		if err != nil {
			slog.Warn("error processing commit, skipping", "sha", c.SHA, "error", err)
			continue
		}
		for _, f := range files {
			tracker.Observe(c, f)
		}
	}

	out := tracker.Modules()
	slog.Info("new/modified modules", "count", len(out), "tracked", tracker.Len())
	return out
}
