package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/trafficgen/internal/catalog"
	"github.com/example/trafficgen/internal/executor"
	"github.com/example/trafficgen/internal/session"
)

func sampleResult(source string, category catalog.Category, bounce bool, pages int) *executor.Result {
	plan := &session.Plan{
		ID:       uuid.New(),
		Source:   catalog.Source{Name: source, Category: category},
		Device:   session.DeviceDesktop,
		IsBounce: bounce,
	}
	result := &executor.Result{Plan: plan}
	for i := 0; i < pages; i++ {
		plan.Pages = append(plan.Pages, "https://example.com/")
		plan.DwellTimes = append(plan.DwellTimes, 2*time.Second)
		result.Pages = append(result.Pages, executor.PageResult{
			URL:        "https://example.com/",
			StatusCode: 200,
			Latency:    100 * time.Millisecond,
		})
		result.Requests++
	}
	return result
}

func TestCollectorRecord(t *testing.T) {
	c := NewCollector()

	c.Record(sampleResult("google", catalog.CategorySearchEngine, true, 1))
	c.Record(sampleResult("google", catalog.CategorySearchEngine, false, 3))
	c.Record(sampleResult("direct", catalog.CategoryDirect, false, 2))

	s := c.Snapshot()
	assert.Equal(t, int64(3), s.Sessions)
	assert.Equal(t, int64(6), s.Requests)
	assert.Equal(t, int64(0), s.Failures)
	assert.Equal(t, int64(1), s.Bounces)
	assert.InDelta(t, 100.0/3.0, s.BounceRate, 0.01)
	assert.Equal(t, 2*time.Second, s.AvgDwell)
	assert.Equal(t, 100*time.Millisecond, s.AvgLatency)
	assert.Equal(t, int64(2), s.ByCategory["search_engine"])
	assert.Equal(t, int64(1), s.ByCategory["direct"])
	assert.Equal(t, int64(2), s.BySource["google"])
	assert.Equal(t, int64(3), s.ByDevice["desktop"])
}

func TestCollectorFailedPagesExcludedFromLatency(t *testing.T) {
	c := NewCollector()

	result := sampleResult("google", catalog.CategorySearchEngine, false, 1)
	result.Pages = append(result.Pages, executor.PageResult{
		URL:     "https://example.com/broken",
		Err:     executor.ErrRequestFailed,
		Latency: 10 * time.Second,
	})
	result.Requests++
	result.Failures++
	c.Record(result)

	s := c.Snapshot()
	assert.Equal(t, int64(2), s.Requests)
	assert.Equal(t, int64(1), s.Failures)
	assert.Equal(t, 100*time.Millisecond, s.AvgLatency)
}

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Record(sampleResult("google", catalog.CategorySearchEngine, false, 1))
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	assert.Equal(t, int64(1000), s.Sessions)
	assert.Equal(t, int64(1000), s.Requests)
}

func TestCollectorEmptySnapshot(t *testing.T) {
	s := NewCollector().Snapshot()
	assert.Zero(t, s.Sessions)
	assert.Zero(t, s.BounceRate)
	assert.Zero(t, s.AvgDwell)
	assert.Zero(t, s.AvgLatency)
}

func TestMultiRecorder(t *testing.T) {
	a, b := NewCollector(), NewCollector()
	m := MultiRecorder{a, b}

	m.Record(sampleResult("direct", catalog.CategoryDirect, false, 1))

	require.Equal(t, int64(1), a.Snapshot().Sessions)
	require.Equal(t, int64(1), b.Snapshot().Sessions)
}
