package executor

import (
	"errors"
	"net/url"
	"sync"
	"time"
)

// ErrTargetSuspended is returned for pages whose host is under failure
// backoff.
var ErrTargetSuspended = errors.New("executor: target suspended after repeated failures")

// breakerState is the per-host failure state.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// Breaker suspends traffic to a host after consecutive failures and probes
// it again after a cooldown, so a dead target does not burn the whole
// session budget. Safe for concurrent use.
type Breaker struct {
	mu       sync.Mutex
	hosts    map[string]*hostBreaker
	failures int
	cooldown time.Duration

	// now is swappable in tests.
	now func() time.Time
}

type hostBreaker struct {
	state       breakerState
	consecutive int
	openedAt    time.Time
}

// NewBreaker builds a Breaker that opens after the given number of
// consecutive failures and probes again after the cooldown.
func NewBreaker(failures int, cooldown time.Duration) *Breaker {
	return &Breaker{
		hosts:    make(map[string]*hostBreaker),
		failures: failures,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Allow reports whether a request to the page's host may proceed. An open
// breaker past its cooldown allows a single probe through.
func (b *Breaker) Allow(page string) bool {
	host := hostOf(page)

	b.mu.Lock()
	defer b.mu.Unlock()

	hb, ok := b.hosts[host]
	if !ok {
		return true
	}

	switch hb.state {
	case breakerClosed, breakerHalfOpen:
		return true
	case breakerOpen:
		if b.now().Sub(hb.openedAt) >= b.cooldown {
			hb.state = breakerHalfOpen
			return true
		}
		return false
	}
	return true
}

// Report records the outcome of a request to the page's host.
func (b *Breaker) Report(page string, failed bool) {
	host := hostOf(page)

	b.mu.Lock()
	defer b.mu.Unlock()

	hb, ok := b.hosts[host]
	if !ok {
		hb = &hostBreaker{}
		b.hosts[host] = hb
	}

	if !failed {
		hb.state = breakerClosed
		hb.consecutive = 0
		return
	}

	hb.consecutive++
	if hb.state == breakerHalfOpen || hb.consecutive >= b.failures {
		hb.state = breakerOpen
		hb.openedAt = b.now()
		hb.consecutive = 0
	}
}

func hostOf(page string) string {
	u, err := url.Parse(page)
	if err != nil {
		return page
	}
	return u.Host
}
