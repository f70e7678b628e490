// Package runner assembles the traffic generator from its configuration
// and drives a full run: one scheduler per worker, a shared rate limit,
// shared metrics, and a final summary.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/example/trafficgen/internal/catalog"
	"github.com/example/trafficgen/internal/config"
	"github.com/example/trafficgen/internal/executor"
	"github.com/example/trafficgen/internal/keywords"
	"github.com/example/trafficgen/internal/metrics"
	"github.com/example/trafficgen/internal/scheduler"
	"github.com/example/trafficgen/internal/session"
)

// Runner owns one configured traffic run.
type Runner struct {
	cfg    *config.Config
	logger zerolog.Logger

	catalog   *catalog.Catalog
	collector *metrics.Collector
	exporter  *metrics.PrometheusExporter
	workers   []*scheduler.Scheduler
}

// New builds a Runner from validated configuration. The seed fixes every
// random stream; each worker derives its own stream from it so concurrent
// runs stay reproducible per worker.
func New(cfg *config.Config, seed uint64, logger zerolog.Logger) (*Runner, error) {
	cat, err := catalog.New(cfg.Sources)
	if err != nil {
		return nil, err
	}

	var keywordPool []string
	if cfg.SEO.KeywordFile != "" {
		keywordPool, err = keywords.LoadFromFile(cfg.SEO.KeywordFile)
		if err != nil {
			return nil, err
		}
		logger.Info().Int("keywords", len(keywordPool)).Str("file", cfg.SEO.KeywordFile).Msg("keyword pool loaded")
	}

	r := &Runner{
		cfg:       cfg,
		logger:    logger,
		catalog:   cat,
		collector: metrics.NewCollector(),
	}

	recorder := metrics.MultiRecorder{r.collector}
	if cfg.Prometheus.Enabled {
		r.exporter = metrics.NewPrometheusExporter(cfg.Prometheus.Port, cfg.Prometheus.Path)
		recorder = append(recorder, r.exporter)
	}

	// One token bucket shared by every worker keeps the aggregate rate
	// under max_qps.
	var limiter *rate.Limiter
	if cfg.MaxQPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxQPS), 1)
	}

	// Shared across workers so a dead target is backed off globally.
	breaker := executor.NewBreaker(5, 30*time.Second)

	for i := 0; i < cfg.Workers; i++ {
		share := workerShare(cfg.NumRequests, cfg.Workers, i)
		if cfg.NumRequests > 0 && share == 0 {
			// More workers than sessions; an empty share must not be
			// mistaken for an unbounded one.
			continue
		}
		workerSeed := seed + uint64(i)

		synth, err := session.NewSynthesizer(cfg, cat, workerSeed, keywordPool)
		if err != nil {
			return nil, fmt.Errorf("building worker %d: %w", i, err)
		}

		execOpts := []executor.Option{
			executor.WithLogger(logger.With().Int("worker", i).Logger()),
			executor.WithBreaker(breaker),
		}
		if limiter != nil {
			execOpts = append(execOpts, executor.WithLimiter(limiter))
		}
		exec := executor.NewHTTPExecutor(cfg.Timeout, execOpts...)

		r.workers = append(r.workers, scheduler.New(scheduler.Options{
			Planner:     synth,
			Executor:    exec,
			Recorder:    recorder,
			Logger:      logger.With().Int("worker", i).Logger(),
			Sessions:    share,
			IntervalMin: cfg.RequestInterval.Min,
			IntervalMax: cfg.RequestInterval.Max,
			Seed:        workerSeed,
		}))
	}

	return r, nil
}

// workerShare splits a session budget across workers, spreading the
// remainder over the first few. A zero budget means unbounded for every
// worker.
func workerShare(total, workers, index int) int {
	if total == 0 {
		return 0
	}
	share := total / workers
	if index < total%workers {
		share++
	}
	return share
}

// Run executes the full traffic run and returns the final summary.
// Cancellation through the context stops the run gracefully between
// sessions; the summary covers everything completed by then.
func (r *Runner) Run(ctx context.Context) (metrics.Summary, error) {
	if r.exporter != nil {
		serveErrs := r.exporter.Start()
		go func() {
			if err, ok := <-serveErrs; ok && err != nil {
				r.logger.Warn().Err(err).Msg("metrics endpoint failed")
			}
		}()
		defer func() {
			if err := r.exporter.Stop(context.Background()); err != nil {
				r.logger.Warn().Err(err).Msg("metrics endpoint shutdown error")
			}
		}()
		r.logger.Info().
			Int("port", r.cfg.Prometheus.Port).
			Str("path", r.cfg.Prometheus.Path).
			Msg("metrics endpoint up")
	}

	var wg sync.WaitGroup
	errs := make([]error, len(r.workers))
	for i, w := range r.workers {
		wg.Add(1)
		go func(i int, w *scheduler.Scheduler) {
			defer wg.Done()
			errs[i] = w.Run(ctx)
		}(i, w)
	}
	wg.Wait()

	cancelled := false
	for _, err := range errs {
		if errors.Is(err, scheduler.ErrCancelled) {
			cancelled = true
		}
	}

	summary := r.collector.Snapshot()
	if cancelled {
		return summary, scheduler.ErrCancelled
	}
	return summary, nil
}

// Catalog exposes the resolved source catalog, for listing sources before
// a run.
func (r *Runner) Catalog() *catalog.Catalog {
	return r.catalog
}
