// Package metrics aggregates traffic run statistics: an in-process
// collector for the final report and an optional Prometheus exporter for
// live scraping.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/trafficgen/internal/executor"
)

// Recorder receives session results as they complete.
type Recorder interface {
	Record(result *executor.Result)
}

// MultiRecorder fans results out to several recorders.
type MultiRecorder []Recorder

func (m MultiRecorder) Record(result *executor.Result) {
	for _, r := range m {
		r.Record(result)
	}
}

// Collector accumulates run statistics. Safe for concurrent use.
type Collector struct {
	sessions atomic.Int64
	requests atomic.Int64
	failures atomic.Int64
	bounces  atomic.Int64

	totalDwell   atomic.Int64
	dwellCount   atomic.Int64
	totalLatency atomic.Int64
	latencyCount atomic.Int64

	mu         sync.Mutex
	byCategory map[string]int64
	bySource   map[string]int64
	byDevice   map[string]int64

	started time.Time
}

// NewCollector returns a Collector with the run clock started.
func NewCollector() *Collector {
	return &Collector{
		byCategory: make(map[string]int64),
		bySource:   make(map[string]int64),
		byDevice:   make(map[string]int64),
		started:    time.Now(),
	}
}

// Record folds one session result into the running totals.
func (c *Collector) Record(result *executor.Result) {
	plan := result.Plan

	c.sessions.Add(1)
	c.requests.Add(int64(result.Requests))
	c.failures.Add(int64(result.Failures))
	if plan.IsBounce {
		c.bounces.Add(1)
	}

	for _, d := range plan.DwellTimes {
		c.totalDwell.Add(int64(d))
		c.dwellCount.Add(1)
	}
	for _, pr := range result.Pages {
		if pr.Err == nil {
			c.totalLatency.Add(int64(pr.Latency))
			c.latencyCount.Add(1)
		}
	}

	c.mu.Lock()
	c.byCategory[string(plan.Source.Category)]++
	c.bySource[plan.Source.Name]++
	c.byDevice[string(plan.Device)]++
	c.mu.Unlock()
}

// Summary is a point-in-time snapshot of the run.
type Summary struct {
	Sessions int64
	Requests int64
	Failures int64
	Bounces  int64

	// BounceRate is the share of sessions that bounced, in percent.
	BounceRate float64

	// AvgDwell is the mean simulated per-page dwell.
	AvgDwell time.Duration

	// AvgLatency is the mean latency of successful requests.
	AvgLatency time.Duration

	ByCategory map[string]int64
	BySource   map[string]int64
	ByDevice   map[string]int64

	Elapsed time.Duration
}

// Snapshot returns the current totals.
func (c *Collector) Snapshot() Summary {
	s := Summary{
		Sessions:   c.sessions.Load(),
		Requests:   c.requests.Load(),
		Failures:   c.failures.Load(),
		Bounces:    c.bounces.Load(),
		ByCategory: make(map[string]int64),
		BySource:   make(map[string]int64),
		ByDevice:   make(map[string]int64),
		Elapsed:    time.Since(c.started),
	}

	if s.Sessions > 0 {
		s.BounceRate = float64(s.Bounces) / float64(s.Sessions) * 100
	}
	if n := c.dwellCount.Load(); n > 0 {
		s.AvgDwell = time.Duration(c.totalDwell.Load() / n)
	}
	if n := c.latencyCount.Load(); n > 0 {
		s.AvgLatency = time.Duration(c.totalLatency.Load() / n)
	}

	c.mu.Lock()
	for k, v := range c.byCategory {
		s.ByCategory[k] = v
	}
	for k, v := range c.bySource {
		s.BySource[k] = v
	}
	for k, v := range c.byDevice {
		s.ByDevice[k] = v
	}
	c.mu.Unlock()

	return s
}
