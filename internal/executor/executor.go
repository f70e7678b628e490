// Package executor replays session plans as real HTTP traffic.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/example/trafficgen/internal/session"
)

// ErrRequestFailed is returned when a page request cannot be completed or
// the server answers with an error status.
var ErrRequestFailed = errors.New("executor: request failed")

// maxBodyDrain caps how much of a response body is read before closing.
// Bodies are discarded; reading them keeps the connection reusable.
const maxBodyDrain = 1 << 20

// ambientHeaders are sent with every request to resemble a real browser.
var ambientHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"Accept-Encoding":           "gzip, deflate, br",
	"DNT":                       "1",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "cross-site",
	"Cache-Control":             "max-age=0",
}

// PageResult records the outcome of one page request.
type PageResult struct {
	URL        string
	StatusCode int
	Latency    time.Duration
	Err        error
}

// Result records the outcome of one executed session.
type Result struct {
	Plan     *session.Plan
	Pages    []PageResult
	Requests int
	Failures int
	Started  time.Time
	Elapsed  time.Duration
}

// Executor runs a session plan to completion.
type Executor interface {
	Execute(ctx context.Context, plan *session.Plan) (*Result, error)
}

// HTTPExecutor replays plans over HTTP: one GET per page, the plan's
// user agent on every request, the referrer chained page to page, and the
// dwell pause between pages.
type HTTPExecutor struct {
	client  *http.Client
	limiter *rate.Limiter
	breaker *Breaker
	logger  zerolog.Logger

	// sleep is swappable in tests so dwell pauses do not slow the suite.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures an HTTPExecutor.
type Option func(*HTTPExecutor)

// WithLimiter caps the executor's request rate. A nil limiter disables
// the cap.
func WithLimiter(l *rate.Limiter) Option {
	return func(e *HTTPExecutor) { e.limiter = l }
}

// WithBreaker enables per-host failure backoff.
func WithBreaker(b *Breaker) Option {
	return func(e *HTTPExecutor) { e.breaker = b }
}

// WithLogger sets the executor's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *HTTPExecutor) { e.logger = logger }
}

// WithSleep overrides the dwell pause implementation.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *HTTPExecutor) { e.sleep = sleep }
}

// NewHTTPExecutor builds an executor with the given per-request timeout.
func NewHTTPExecutor(timeout time.Duration, opts ...Option) *HTTPExecutor {
	e := &HTTPExecutor{
		client: &http.Client{Timeout: timeout},
		logger: zerolog.Nop(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs every page of the plan in order. A failed page is recorded
// and the session continues to the next page. The returned error is non-nil
// only when the context is cancelled mid-session.
func (e *HTTPExecutor) Execute(ctx context.Context, plan *session.Plan) (*Result, error) {
	result := &Result{
		Plan:    plan,
		Pages:   make([]PageResult, 0, len(plan.Pages)),
		Started: time.Now(),
	}
	defer func() { result.Elapsed = time.Since(result.Started) }()

	referrer := plan.ReferrerURL
	for i, page := range plan.Pages {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return result, err
			}
		}

		var pr PageResult
		if e.breaker != nil && !e.breaker.Allow(page) {
			pr = PageResult{URL: page, Err: ErrTargetSuspended}
		} else {
			pr = e.fetch(ctx, plan, page, referrer)
			if e.breaker != nil {
				e.breaker.Report(page, pr.Err != nil)
			}
		}
		result.Pages = append(result.Pages, pr)
		result.Requests++
		if pr.Err != nil {
			result.Failures++
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		// The next page's referrer is the page just visited.
		referrer = page

		if i < len(plan.Pages)-1 {
			if err := e.sleep(ctx, plan.DwellTimes[i]); err != nil {
				return result, err
			}
		}
	}

	e.logger.Debug().
		Str("session", plan.ID.String()).
		Str("source", plan.Source.Name).
		Str("device", string(plan.Device)).
		Int("pages", result.Requests).
		Int("failures", result.Failures).
		Bool("bounce", plan.IsBounce).
		Msg("session complete")

	return result, nil
}

// fetch performs a single page request.
func (e *HTTPExecutor) fetch(ctx context.Context, plan *session.Plan, page, referrer string) PageResult {
	pr := PageResult{URL: page}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, page, nil)
	if err != nil {
		pr.Err = fmt.Errorf("%w: %v", ErrRequestFailed, err)
		return pr
	}

	req.Header.Set("User-Agent", plan.UserAgent)
	for k, v := range ambientHeaders {
		req.Header.Set(k, v)
	}
	if referrer != "" {
		req.Header.Set("Referer", referrer)
	}
	if plan.Country != "" {
		req.Header.Set("X-Geo-Country", plan.Country)
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	pr.Latency = time.Since(start)
	if err != nil {
		pr.Err = fmt.Errorf("%w: %v", ErrRequestFailed, err)
		e.logger.Warn().Str("url", page).Err(err).Msg("request error")
		return pr
	}
	defer resp.Body.Close()

	// Drain the body so the keep-alive connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyDrain))

	pr.StatusCode = resp.StatusCode
	if resp.StatusCode >= 400 {
		pr.Err = fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
	}
	return pr
}

// sleepContext waits for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
