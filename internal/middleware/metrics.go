package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intel",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status code",
	}, []string{"method", "route", "code"})

	requestsInProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "intel",
		Subsystem: "http",
		Name:      "requests_in_progress",
		Help:      "HTTP requests currently being served",
	})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "intel",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// modulesTotal counts processed modules.
	// Labels: outcome (published, unpublished, dry_run, fetch_failed, analysis_failed)
	modulesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intel",
		Subsystem: "pipeline",
		Name:      "modules_total",
		Help:      "Modules processed by outcome",
	}, []string{"outcome"})

	// publicationsTotal counts sink calls.
	// Labels: sink (jira, confluence), result (ok, failed)
	publicationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intel",
		Subsystem: "pipeline",
		Name:      "publications_total",
		Help:      "Publication attempts by sink and result",
	}, []string{"sink", "result"})

	runsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "intel",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Completed pipeline runs",
	})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "intel",
		Subsystem: "pipeline",
		Name:      "run_duration_seconds",
		Help:      "Wall time of a pipeline run",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	modulesFound = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "intel",
		Subsystem: "pipeline",
		Name:      "last_run_modules_found",
		Help:      "Modules found by the most recent run",
	})
)

// PipelineRecorder publishes pipeline metrics to the default registry.
type PipelineRecorder struct{}

func (PipelineRecorder) ObserveModule(outcome string) {
	modulesTotal.WithLabelValues(outcome).Inc()
}

func (PipelineRecorder) ObservePublication(sink string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	publicationsTotal.WithLabelValues(sink, result).Inc()
}

func (PipelineRecorder) ObserveRun(d time.Duration, found int) {
	runsTotal.Inc()
	runDuration.Observe(d.Seconds())
	modulesFound.Set(float64(found))
}

// MetricsMiddleware tracks request metrics
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestsInProgress.Inc()
		defer requestsInProgress.Dec()
		start := time.Now()
		wrapped := wrap(w)

		next.ServeHTTP(wrapped, r)

		// pattern route dipakai supaya label tidak meledak per ID
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// MetricsHandler serves the Prometheus exposition format.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
