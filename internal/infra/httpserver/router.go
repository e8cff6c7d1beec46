package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/bryanwahyu/automaton-intel/internal/application/pipeline"
	"github.com/bryanwahyu/automaton-intel/internal/domain/publication"
	"github.com/bryanwahyu/automaton-intel/internal/middleware"
)

// Runner is the pipeline as seen by the HTTP layer.
type Runner interface {
	Run(ctx context.Context, opts pipeline.RunOptions) (*pipeline.Report, error)
}

type Options struct {
	APIKeys    []string
	RateBurst  int
	RatePerSec float64
	Checkers   map[string]middleware.HealthChecker
	Repo       publication.Repository // nil: only the last in-memory report is served
	Sinks      []string               // sinks with a wired client; others are rejected
	// BaseContext bounds background runs; they outlive the trigger request.
	BaseContext context.Context
}

type Router struct {
	runner  Runner
	repo    publication.Repository
	sinks   []string
	baseCtx context.Context

	mu      sync.Mutex
	running publication.RunID
	last    *pipeline.Report
	wg      sync.WaitGroup
}

// statusError carries an HTTP status out of a handler.
type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string { return e.msg }

func NewRouter(runner Runner, opts Options) (*Router, http.Handler) {
	r := &Router{runner: runner, repo: opts.Repo, sinks: opts.Sinks, baseCtx: opts.BaseContext}
	if r.baseCtx == nil {
		r.baseCtx = context.Background()
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	mux.Get("/health", middleware.HealthHandler(opts.Checkers))
	mux.Method(http.MethodGet, "/metrics", middleware.MetricsHandler())

	mux.Route("/v1", func(rt chi.Router) {
		rt.Use(middleware.APIKeyAuth(opts.APIKeys))
		rt.With(middleware.RateLimitMiddleware(opts.RateBurst, opts.RatePerSec)).
			Post("/runs", r.wrap(r.handleTrigger))
		rt.Get("/runs/latest", r.wrap(r.handleLatest))
		rt.Get("/runs/{id}/results", r.wrap(r.handleResults))
	})

	return r, mux
}

// Wait blocks until a background run (if any) has finished.
func (r *Router) Wait() { r.wg.Wait() }

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			var se *statusError
			if errors.As(err, &se) {
				http.Error(w, se.msg, se.code)
				return
			}
			slog.Error("handler error", "path", req.URL.Path, "err", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

type triggerRequest struct {
	Days   int      `json:"days"`
	Sinks  []string `json:"sinks"`
	DryRun bool     `json:"dry_run"`
}

// POST /v1/runs
// Body (optional): {"days": 8, "sinks": ["jira","confluence"], "dry_run": false}
func (r *Router) handleTrigger(w http.ResponseWriter, req *http.Request) error {
	var body triggerRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return &statusError{http.StatusBadRequest, "invalid JSON body"}
	}
	if err := middleware.ValidateDays(body.Days); err != nil {
		return &statusError{http.StatusBadRequest, err.Error()}
	}
	if err := middleware.ValidateSinks(body.Sinks, r.sinks); err != nil {
		return &statusError{http.StatusBadRequest, err.Error()}
	}

	opts := pipeline.RunOptions{
		RunID:  publication.RunID(uuid.NewString()),
		Window: time.Duration(body.Days) * 24 * time.Hour,
		Sinks:  body.Sinks,
		DryRun: body.DryRun,
	}

	r.mu.Lock()
	if r.running != "" {
		current := r.running
		r.mu.Unlock()
		return writeJSON(w, http.StatusConflict, map[string]any{
			"status": "running",
			"run_id": current,
		})
	}
	r.running = opts.RunID
	r.wg.Add(1)
	r.mu.Unlock()

	// jalankan di background, biar jalan sampai selesai
	go func() {
		defer r.wg.Done()
		report, err := r.runner.Run(r.baseCtx, opts)
		if err != nil {
			slog.Error("background run error", "run_id", opts.RunID, "err", err)
		}
		r.mu.Lock()
		r.running = ""
		if report != nil {
			r.last = report
		}
		r.mu.Unlock()
	}()

	return writeJSON(w, http.StatusAccepted, map[string]any{
		"status":   "queued",
		"run_id":   opts.RunID,
		"queuedAt": time.Now().UTC(),
	})
}

// GET /v1/runs/latest?limit=20
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	limit = middleware.ValidateLimit(limit)

	r.mu.Lock()
	last, running := r.last, r.running
	r.mu.Unlock()

	resp := map[string]any{"running": running != ""}
	if running != "" {
		resp["running_id"] = running
	}
	if last != nil {
		resp["run"] = last.Run
	}

	if r.repo != nil {
		list, err := r.repo.Latest(req.Context(), limit)
		if err != nil {
			return err
		}
		resp["results"] = list
		return writeJSON(w, http.StatusOK, resp)
	}

	results := []*publication.Result{}
	if last != nil {
		results = last.Results
		if len(results) > limit {
			results = results[:limit]
		}
	}
	resp["results"] = results
	return writeJSON(w, http.StatusOK, resp)
}

// GET /v1/runs/{id}/results
func (r *Router) handleResults(w http.ResponseWriter, req *http.Request) error {
	id := middleware.SanitizeString(chi.URLParam(req, "id"))
	if err := middleware.ValidateRunID(id); err != nil {
		return &statusError{http.StatusBadRequest, err.Error()}
	}
	runID := publication.RunID(id)

	if r.repo != nil {
		list, err := r.repo.ListByRun(req.Context(), runID)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return &statusError{http.StatusNotFound, "run not found"}
		}
		return writeJSON(w, http.StatusOK, list)
	}

	r.mu.Lock()
	last := r.last
	r.mu.Unlock()
	if last == nil || last.Run.ID != runID {
		return &statusError{http.StatusNotFound, "run not found"}
	}
	return writeJSON(w, http.StatusOK, last.Results)
}

func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}
