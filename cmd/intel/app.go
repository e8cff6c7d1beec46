package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/bryanwahyu/automaton-intel/internal/application"
	appai "github.com/bryanwahyu/automaton-intel/internal/application/ai"
	"github.com/bryanwahyu/automaton-intel/internal/application/monitor"
	"github.com/bryanwahyu/automaton-intel/internal/application/pipeline"
	"github.com/bryanwahyu/automaton-intel/internal/config"
	"github.com/bryanwahyu/automaton-intel/internal/domain/modules"
	"github.com/bryanwahyu/automaton-intel/internal/domain/publication"
	"github.com/bryanwahyu/automaton-intel/internal/infra/ai/openai"
	"github.com/bryanwahyu/automaton-intel/internal/infra/confluence"
	mysqlp "github.com/bryanwahyu/automaton-intel/internal/infra/db/mysql"
	"github.com/bryanwahyu/automaton-intel/internal/infra/db/postgres"
	"github.com/bryanwahyu/automaton-intel/internal/infra/github"
	"github.com/bryanwahyu/automaton-intel/internal/infra/jira"
	minioStore "github.com/bryanwahyu/automaton-intel/internal/infra/storage"
	"github.com/bryanwahyu/automaton-intel/internal/middleware"
)

// resultRepo is what the optional audit store offers.
type resultRepo interface {
	publication.Repository
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
}

// app holds every wired component for one process.
type app struct {
	cfg      *config.Config
	monitor  *monitor.Service
	pipeline *pipeline.Service
	repo     resultRepo
	checkers map[string]middleware.HealthChecker
	sinks    []string // sinks with a client behind them
	db       *sql.DB
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

func window(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

// newMonitor wires only the change-detection stage.
func newMonitor(cfg *config.Config) (*github.Client, *monitor.Service, error) {
	gh, err := github.NewClient(github.Options{
		Repo:           cfg.GitHub.Repo,
		Branch:         cfg.GitHub.Branch,
		Token:          cfg.GitHub.Token,
		APIBaseURL:     cfg.GitHub.APIBaseURL,
		RawBaseURL:     cfg.GitHub.RawBaseURL,
		MaxCommits:     cfg.GitHub.MaxCommits,
		RequestsPerSec: cfg.GitHub.RequestsPerSec,
	})
	if err != nil {
		return nil, nil, err
	}
	mon := &monitor.Service{
		Source: gh,
		Watch:  modules.Watch{Prefixes: cfg.GitHub.WatchDirs, Extensions: cfg.GitHub.Extensions},
		Window: window(cfg.GitHub.Days),
		Clock:  application.SystemClock{},
	}
	return gh, mon, nil
}

// buildApp wires the full pipeline. cfg must already be validated.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	gh, mon, err := newMonitor(cfg)
	if err != nil {
		return nil, err
	}

	aiSvc := appai.NewService(
		openai.NewClient(cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.Model, cfg.AI.MaxTokens),
		cfg.AI.MaxContentChars,
	)

	a := &app{cfg: cfg, monitor: mon, checkers: map[string]middleware.HealthChecker{}}
	svc := &pipeline.Service{
		Detector: mon,
		Fetcher:  gh,
		Analyzer: aiSvc,
		Metrics:  middleware.PipelineRecorder{},
		Clock:    application.SystemClock{},
		Window:   window(cfg.GitHub.Days),
		Workers:  cfg.Pipeline.Workers,
		Sinks:    cfg.Pipeline.Sinks,
	}

	if err := a.wireSinks(svc, aiSvc); err != nil {
		return nil, err
	}

	if err := a.openRepo(ctx); err != nil {
		return nil, err
	}
	if a.repo != nil {
		svc.Repo = a.repo
		a.checkers["database"] = middleware.PingChecker{Pinger: a.repo}
	}

	if cfg.Minio.Endpoint != "" {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("minio init error: %w", err)
		}
		svc.Archive = store
		a.checkers["archive"] = middleware.PingChecker{Pinger: store}
	}

	a.pipeline = svc
	return a, nil
}

// wireSinks builds a client for every sink that is enabled or has complete
// credentials, so a per-run override can only name a sink that can publish.
func (a *app) wireSinks(svc *pipeline.Service, describer jira.Describer) error {
	cfg := a.cfg
	if cfg.HasSink(config.SinkJira) || cfg.SinkReady(config.SinkJira) {
		opts := jira.Options{
			BaseURL:   cfg.Jira.BaseURL,
			Email:     cfg.Jira.Email,
			APIToken:  cfg.Jira.APIToken,
			Project:   cfg.Jira.Project,
			IssueType: cfg.Jira.IssueType,
			Priority:  cfg.Jira.Priority,
		}
		if cfg.Jira.AIDescription {
			opts.Describer = describer
		}
		tickets, err := jira.NewClient(opts)
		if err != nil {
			return err
		}
		svc.Tickets = tickets
		a.sinks = append(a.sinks, config.SinkJira)
	}
	if cfg.HasSink(config.SinkConfluence) || cfg.SinkReady(config.SinkConfluence) {
		wiki, err := confluence.NewClient(confluence.Options{
			BaseURL:        cfg.Confluence.BaseURL,
			Username:       cfg.Confluence.Username,
			APIToken:       cfg.Confluence.APIToken,
			SpaceKey:       cfg.Confluence.SpaceKey,
			ContainerTitle: cfg.Confluence.ContainerTitle,
		})
		if err != nil {
			return err
		}
		svc.Wiki = wiki
		a.sinks = append(a.sinks, config.SinkConfluence)
	}
	slog.Info("sinks wired", "sinks", a.sinks, "default", cfg.Pipeline.Sinks)
	return nil
}

func (a *app) openRepo(ctx context.Context) error {
	var err error
	switch a.cfg.Database.Driver {
	case "":
		return nil
	case "mysql":
		if a.db, err = mysqlp.Connect(ctx, a.cfg.Database.DSN); err != nil {
			return fmt.Errorf("mysql connect error: %w", err)
		}
		a.repo = mysqlp.NewResultRepository(a.db)
	case "postgres":
		if a.db, err = postgres.Connect(ctx, a.cfg.Database.DSN); err != nil {
			return fmt.Errorf("postgres connect error: %w", err)
		}
		a.repo = postgres.NewResultRepository(a.db)
	default:
		return fmt.Errorf("unsupported database driver %q (allowed: mysql, postgres)", a.cfg.Database.Driver)
	}
	if err := a.repo.Migrate(ctx); err != nil {
		a.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	slog.Info("result repository ready", "driver", a.cfg.Database.Driver)
	return nil
}
