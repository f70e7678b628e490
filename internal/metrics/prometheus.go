package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/trafficgen/internal/executor"
)

// Prometheus metric names.
const (
	MetricSessionsTotal   = "trafficgen_sessions_total"
	MetricRequestsTotal   = "trafficgen_requests_total"
	MetricFailuresTotal   = "trafficgen_failures_total"
	MetricBouncesTotal    = "trafficgen_bounces_total"
	MetricRequestDuration = "trafficgen_request_duration_seconds"
	MetricPagesPerSession = "trafficgen_pages_per_session"
)

// PrometheusExporter exposes run statistics on an HTTP endpoint and
// records session results into Prometheus metrics.
type PrometheusExporter struct {
	registry *prometheus.Registry
	server   *http.Server

	sessions        *prometheus.CounterVec
	requests        *prometheus.CounterVec
	failures        prometheus.Counter
	bounces         prometheus.Counter
	requestDuration prometheus.Histogram
	pagesPerSession prometheus.Histogram
}

// NewPrometheusExporter builds an exporter serving on the given port and
// path.
func NewPrometheusExporter(port int, path string) *PrometheusExporter {
	registry := prometheus.NewRegistry()

	e := &PrometheusExporter{
		registry: registry,
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricSessionsTotal,
			Help: "Total sessions executed, by traffic source.",
		}, []string{"category", "source", "device"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRequestsTotal,
			Help: "Total page requests sent, by outcome.",
		}, []string{"status"}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricFailuresTotal,
			Help: "Total failed page requests.",
		}),
		bounces: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricBouncesTotal,
			Help: "Total single-page sessions.",
		}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricRequestDuration,
			Help:    "Latency of page requests in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		pagesPerSession: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricPagesPerSession,
			Help:    "Number of pages visited per session.",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
		}),
	}

	registry.MustRegister(
		e.sessions,
		e.requests,
		e.failures,
		e.bounces,
		e.requestDuration,
		e.pagesPerSession,
	)

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	e.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	return e
}

// Record implements Recorder.
func (e *PrometheusExporter) Record(result *executor.Result) {
	plan := result.Plan

	e.sessions.WithLabelValues(
		string(plan.Source.Category),
		plan.Source.Name,
		string(plan.Device),
	).Inc()

	for _, pr := range result.Pages {
		if pr.Err != nil {
			e.requests.WithLabelValues("error").Inc()
			e.failures.Inc()
			continue
		}
		e.requests.WithLabelValues("ok").Inc()
		e.requestDuration.Observe(pr.Latency.Seconds())
	}

	if plan.IsBounce {
		e.bounces.Inc()
	}
	e.pagesPerSession.Observe(float64(result.Requests))
}

// Start serves the metrics endpoint until Stop is called. Serve errors are
// reported through the returned channel; a failed endpoint does not stop
// the run.
func (e *PrometheusExporter) Start() <-chan error {
	errs := make(chan error, 1)
	go func() {
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()
	return errs
}

// Stop shuts the metrics endpoint down.
func (e *PrometheusExporter) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return e.server.Shutdown(shutdownCtx)
}

// Registry exposes the underlying registry, mainly for tests.
func (e *PrometheusExporter) Registry() *prometheus.Registry {
	return e.registry
}
