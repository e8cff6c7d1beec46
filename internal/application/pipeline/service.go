package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/automaton-intel/internal/application"
	"github.com/bryanwahyu/automaton-intel/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-intel/internal/domain/modules"
	"github.com/bryanwahyu/automaton-intel/internal/domain/publication"
)

const (
	SinkJira       = "jira"
	SinkConfluence = "confluence"
)

// Outcome of one module, used for metrics.
const (
	OutcomePublished   = "published"
	OutcomeUnpublished = "unpublished"
	OutcomeDryRun      = "dry_run"
	OutcomeFetchFailed = "fetch_failed"
	OutcomeAIFailed    = "analysis_failed"
)

// Detector is the change-detection stage.
type Detector interface {
	RecentModulesWithin(ctx context.Context, window time.Duration) []modules.Module
}

// Analyzer is the content-and-analysis stage.
type Analyzer interface {
	Analyze(ctx context.Context, m modules.Module, content string) (*analysis.Analysis, error)
}

// Recorder receives pipeline metrics. Nil disables them.
type Recorder interface {
	ObserveModule(outcome string)
	ObservePublication(sink string, ok bool)
	ObserveRun(d time.Duration, found int)
}

// Service menjalankan tiga tahap: deteksi, analisa, publikasi
// Tickets, Wiki, Repo, Archive and Metrics are optional.
type Service struct {
	Detector Detector
	Fetcher  modules.ContentFetcher
	Analyzer Analyzer
	Tickets  publication.TicketSink
	Wiki     publication.WikiSink
	Repo     publication.Repository
	Archive  publication.Archive
	Metrics  Recorder
	Clock    application.Clock

	Window  time.Duration
	Workers int
	Sinks   []string // default sinks when RunOptions.Sinks is empty
}

// RunOptions override the defaults for one run.
type RunOptions struct {
	RunID  publication.RunID // generated when empty
	Window time.Duration
	Sinks  []string
	DryRun bool // analyse but do not publish
}

// Report is what one run produced.
type Report struct {
	Run     publication.Run       `json:"run"`
	Results []*publication.Result `json:"results"`
}

// Run executes one full pass. Stage failures never abort the run; they show
// up as results with Error set. The only error returned is ctx's.
func (s *Service) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	clock := s.clock()
	window := opts.Window
	if window <= 0 {
		window = s.Window
	}
	sinks := opts.Sinks
	if len(sinks) == 0 {
		sinks = s.Sinks
	}

	runID := opts.RunID
	if runID == "" {
		runID = publication.RunID(uuid.NewString())
	}
	run := publication.Run{ID: runID, StartedAt: clock.Now().UTC()}
	log := slog.With("run_id", run.ID)
	log.Info("run started", "window", window.String(), "sinks", strings.Join(sinks, ","), "dry_run", opts.DryRun)

	mods := s.Detector.RecentModulesWithin(ctx, window)
	run.Found = len(mods)

	results := make([]*publication.Result, len(mods))
	workers := s.Workers
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, m := range mods {
		i, m := i, m
		g.Go(func() error {
			results[i] = s.process(gctx, log, run.ID, m, sinks, opts.DryRun)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		switch {
		case r.Analysis == nil:
			run.Failed++
		case r.Published():
			run.Analyzed++
			run.Published++
		default:
			run.Analyzed++
		}
	}
	run.FinishedAt = clock.Now().UTC()
	if s.Metrics != nil {
		s.Metrics.ObserveRun(run.FinishedAt.Sub(run.StartedAt), run.Found)
	}
	log.Info("run finished",
		"found", run.Found, "analyzed", run.Analyzed, "published", run.Published, "failed", run.Failed,
		"duration", run.FinishedAt.Sub(run.StartedAt).String())

	return &Report{Run: run, Results: results}, ctx.Err()
}

// process handles one module end to end inside a single goroutine.
func (s *Service) process(ctx context.Context, log *slog.Logger, runID publication.RunID, m modules.Module, sinks []string, dryRun bool) *publication.Result {
	res := &publication.Result{RunID: runID, Module: m}
	log = log.With("module", m.Path)
	defer func() {
		res.CreatedAt = s.clock().Now().UTC()
		// the audit trail is written even when the run was cancelled
		s.persist(context.WithoutCancel(ctx), log, res)
	}()

	if err := ctx.Err(); err != nil {
		res.Error = err.Error()
		return res
	}

	content, err := s.Fetcher.FetchContent(ctx, m)
	if err != nil {
		log.Warn("could not fetch module content, skipping", "error", err)
		res.Error = fmt.Sprintf("fetch: %v", err)
		s.observe(OutcomeFetchFailed)
		return res
	}
	res.Module.Content = content

	a, err := s.Analyzer.Analyze(ctx, m, content)
	if err != nil {
		log.Error("analysis failed, skipping", "error", err)
		res.Error = err.Error()
		s.observe(OutcomeAIFailed)
		return res
	}
	res.Analysis = a

	if dryRun {
		s.observe(OutcomeDryRun)
		return res
	}

	if hasSink(sinks, SinkJira) && s.Tickets != nil {
		res.TicketKey = s.Tickets.CreateTicket(ctx, m, a)
		s.observePublication(SinkJira, res.TicketKey != "")
	}
	if hasSink(sinks, SinkConfluence) && s.Wiki != nil {
		id, ok := s.Wiki.PublishAnalysis(ctx, m, a)
		if ok {
			res.PageID = id
		}
		s.observePublication(SinkConfluence, ok)
	}

	if res.Published() {
		s.observe(OutcomePublished)
	} else {
		s.observe(OutcomeUnpublished)
	}
	return res
}

// persist writes the audit row and the archive objects. Failures are logged
// only; the run result does not depend on them.
func (s *Service) persist(ctx context.Context, log *slog.Logger, res *publication.Result) {
	if s.Archive != nil {
		if res.Module.Content != "" {
			if _, err := s.Archive.PutText(ctx, SourceKey(res.RunID, res.Module), res.Module.Content); err != nil {
				log.Warn("archive source failed", "error", err)
			}
		}
		if _, err := s.Archive.PutJSON(ctx, ResultKey(res.RunID, res.Module), res); err != nil {
			log.Warn("archive result failed", "error", err)
		}
	}
	if s.Repo != nil {
		if err := s.Repo.Save(ctx, res); err != nil {
			log.Warn("save result failed", "error", err)
		}
	}
}

// ResultKey is {run_id}/results/{path}.json. Module names repeat across
// platform directories, so the full path is used.
func ResultKey(runID publication.RunID, m modules.Module) string {
	p := m.Path
	if p == "" {
		p = m.Name
	}
	return fmt.Sprintf("%s/results/%s.json", runID, p)
}

// SourceKey is {run_id}/source/{path}.
func SourceKey(runID publication.RunID, m modules.Module) string {
	return fmt.Sprintf("%s/source/%s", runID, m.Path)
}

func (s *Service) clock() application.Clock {
	if s.Clock == nil {
		return application.SystemClock{}
	}
	return s.Clock
}

func (s *Service) observe(outcome string) {
	if s.Metrics != nil {
		s.Metrics.ObserveModule(outcome)
	}
}

func (s *Service) observePublication(sink string, ok bool) {
	if s.Metrics != nil {
		s.Metrics.ObservePublication(sink, ok)
	}
}

func hasSink(sinks []string, name string) bool {
	for _, s := range sinks {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}
