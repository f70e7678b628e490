package executor

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/trafficgen/internal/catalog"
	"github.com/example/trafficgen/internal/session"
)

// recordedRequest captures what the test server saw.
type recordedRequest struct {
	Path      string
	UserAgent string
	Referer   string
	Country   string
}

type recordingServer struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	server   *httptest.Server
}

func newRecordingServer(status int) *recordingServer {
	rs := &recordingServer{status: status}
	rs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.mu.Lock()
		rs.requests = append(rs.requests, recordedRequest{
			Path:      r.URL.Path,
			UserAgent: r.Header.Get("User-Agent"),
			Referer:   r.Header.Get("Referer"),
			Country:   r.Header.Get("X-Geo-Country"),
		})
		rs.mu.Unlock()
		w.WriteHeader(rs.status)
	}))
	return rs
}

func (rs *recordingServer) seen() []recordedRequest {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]recordedRequest, len(rs.requests))
	copy(out, rs.requests)
	return out
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func testPlan(base string, pages ...string) *session.Plan {
	urls := make([]string, 0, len(pages))
	dwells := make([]time.Duration, 0, len(pages))
	for _, p := range pages {
		urls = append(urls, base+p)
		dwells = append(dwells, 10*time.Millisecond)
	}
	return &session.Plan{
		ID:          uuid.New(),
		Source:      catalog.Source{Name: "google", Category: catalog.CategorySearchEngine},
		Device:      session.DeviceDesktop,
		UserAgent:   "test-agent",
		ReferrerURL: "https://www.google.com/search?q=example",
		Pages:       urls,
		DwellTimes:  dwells,
		CreatedAt:   time.Now(),
	}
}

func TestExecuteSinglePage(t *testing.T) {
	rs := newRecordingServer(http.StatusOK)
	defer rs.server.Close()

	e := NewHTTPExecutor(5*time.Second, WithSleep(noSleep))
	result, err := e.Execute(context.Background(), testPlan(rs.server.URL, "/"))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Requests)
	assert.Equal(t, 0, result.Failures)
	require.Len(t, result.Pages, 1)
	assert.Equal(t, http.StatusOK, result.Pages[0].StatusCode)
	assert.NoError(t, result.Pages[0].Err)
	assert.Greater(t, result.Pages[0].Latency, time.Duration(0))

	seen := rs.seen()
	require.Len(t, seen, 1)
	assert.Equal(t, "test-agent", seen[0].UserAgent)
	assert.Equal(t, "https://www.google.com/search?q=example", seen[0].Referer)
}

func TestExecuteReferrerChaining(t *testing.T) {
	rs := newRecordingServer(http.StatusOK)
	defer rs.server.Close()

	plan := testPlan(rs.server.URL, "/", "/about", "/products")
	e := NewHTTPExecutor(5*time.Second, WithSleep(noSleep))
	result, err := e.Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Requests)

	seen := rs.seen()
	require.Len(t, seen, 3)
	// First page carries the plan referrer; later pages carry the
	// previous page's URL.
	assert.Equal(t, "https://www.google.com/search?q=example", seen[0].Referer)
	assert.Equal(t, rs.server.URL+"/", seen[1].Referer)
	assert.Equal(t, rs.server.URL+"/about", seen[2].Referer)
}

func TestExecuteDirectHasNoReferer(t *testing.T) {
	rs := newRecordingServer(http.StatusOK)
	defer rs.server.Close()

	plan := testPlan(rs.server.URL, "/")
	plan.ReferrerURL = ""
	e := NewHTTPExecutor(5*time.Second, WithSleep(noSleep))
	_, err := e.Execute(context.Background(), plan)
	require.NoError(t, err)

	seen := rs.seen()
	require.Len(t, seen, 1)
	assert.Empty(t, seen[0].Referer)
}

func TestExecuteGeoHeader(t *testing.T) {
	rs := newRecordingServer(http.StatusOK)
	defer rs.server.Close()

	plan := testPlan(rs.server.URL, "/")
	plan.Country = "DE"
	e := NewHTTPExecutor(5*time.Second, WithSleep(noSleep))
	_, err := e.Execute(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, "DE", rs.seen()[0].Country)
}

func TestExecuteServerError(t *testing.T) {
	rs := newRecordingServer(http.StatusInternalServerError)
	defer rs.server.Close()

	plan := testPlan(rs.server.URL, "/", "/about")
	e := NewHTTPExecutor(5*time.Second, WithSleep(noSleep))
	result, err := e.Execute(context.Background(), plan)
	require.NoError(t, err)

	// Failures are recorded but the session keeps going.
	assert.Equal(t, 2, result.Requests)
	assert.Equal(t, 2, result.Failures)
	for _, pr := range result.Pages {
		assert.ErrorIs(t, pr.Err, ErrRequestFailed)
		assert.Equal(t, http.StatusInternalServerError, pr.StatusCode)
	}
}

func TestExecuteConnectionRefused(t *testing.T) {
	e := NewHTTPExecutor(time.Second, WithSleep(noSleep))
	plan := testPlan("http://127.0.0.1:1", "/")
	result, err := e.Execute(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failures)
	assert.ErrorIs(t, result.Pages[0].Err, ErrRequestFailed)
}

func TestExecuteReusesConnections(t *testing.T) {
	var mu sync.Mutex
	conns := 0

	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>page body</body></html>"))
	}))
	server.Config.ConnState = func(c net.Conn, state http.ConnState) {
		if state == http.StateNew {
			mu.Lock()
			conns++
			mu.Unlock()
		}
	}
	server.Start()
	defer server.Close()

	plan := testPlan(server.URL, "/", "/about", "/products")
	e := NewHTTPExecutor(5*time.Second, WithSleep(noSleep))
	result, err := e.Execute(context.Background(), plan)
	require.NoError(t, err)
	require.Equal(t, 3, result.Requests)

	// Bodies are drained before close, so every page rides the same
	// keep-alive connection.
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, conns)
}

func TestExecuteCancelledContext(t *testing.T) {
	rs := newRecordingServer(http.StatusOK)
	defer rs.server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plan := testPlan(rs.server.URL, "/", "/about")
	e := NewHTTPExecutor(5*time.Second, WithSleep(noSleep))
	_, err := e.Execute(ctx, plan)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
	assert.NoError(t, sleepContext(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Minute), context.Canceled)
}
