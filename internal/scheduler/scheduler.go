// Package scheduler paces session execution: it draws a plan, runs it,
// then waits a randomized interval before the next one, until the session
// budget is spent or the run is cancelled.
package scheduler

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/trafficgen/internal/executor"
	"github.com/example/trafficgen/internal/session"
)

// ErrCancelled is returned when the run is stopped before the session
// budget is spent.
var ErrCancelled = errors.New("scheduler: run cancelled")

// State is the scheduler lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// atomicState is a typed wrapper over atomic.Int32.
type atomicState struct {
	v atomic.Int32
}

func (a *atomicState) Store(s State) { a.v.Store(int32(s)) }
func (a *atomicState) Load() State   { return State(a.v.Load()) }

// Planner supplies the next session plan.
type Planner interface {
	Next() *session.Plan
}

// Recorder receives completed session results.
type Recorder interface {
	Record(result *executor.Result)
}

// Scheduler runs sessions one at a time with a randomized pause between
// them. One Scheduler drives one worker; it is not safe for concurrent Run
// calls.
type Scheduler struct {
	planner  Planner
	executor executor.Executor
	recorder Recorder
	logger   zerolog.Logger

	// sessions is the number of sessions to run. 0 means run until
	// cancelled.
	sessions int

	intervalMin time.Duration
	intervalMax time.Duration

	rng   *rand.Rand
	state atomicState

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Options configures a Scheduler.
type Options struct {
	Planner  Planner
	Executor executor.Executor
	Recorder Recorder
	Logger   zerolog.Logger

	Sessions    int
	IntervalMin time.Duration
	IntervalMax time.Duration
	Seed        uint64
}

// New builds a Scheduler in the idle state.
func New(opts Options) *Scheduler {
	s := &Scheduler{
		planner:     opts.Planner,
		executor:    opts.Executor,
		recorder:    opts.Recorder,
		logger:      opts.Logger,
		sessions:    opts.Sessions,
		intervalMin: opts.IntervalMin,
		intervalMax: opts.IntervalMax,
		rng:         rand.New(rand.NewPCG(opts.Seed, opts.Seed)),
		sleep:       sleepContext,
	}
	s.state.Store(StateIdle)
	return s
}

// State returns the scheduler's current lifecycle state.
func (s *Scheduler) State() State {
	return s.state.Load()
}

// Run executes sessions until the budget is spent or the context is
// cancelled. Cancellation is honored between sessions, never inside one,
// so an in-flight session always completes; Run then returns ErrCancelled.
// Individual session failures are recorded and do not stop the run.
func (s *Scheduler) Run(ctx context.Context) error {
	s.state.Store(StateRunning)
	defer s.state.Store(StateStopped)

	for i := 0; s.sessions == 0 || i < s.sessions; i++ {
		if ctx.Err() != nil {
			s.state.Store(StateStopping)
			return ErrCancelled
		}

		plan := s.planner.Next()
		result, err := s.executor.Execute(ctx, plan)
		if result != nil && s.recorder != nil {
			s.recorder.Record(result)
		}
		if err != nil {
			// Execution errors are cancellation, surfaced as such on
			// the next loop check. Request failures never bubble up
			// as errors here.
			s.logger.Debug().Err(err).Str("session", plan.ID.String()).Msg("session interrupted")
			continue
		}

		if s.sessions == 0 || i < s.sessions-1 {
			if err := s.sleep(ctx, s.interval()); err != nil {
				s.state.Store(StateStopping)
				return ErrCancelled
			}
		}
	}

	return nil
}

// interval draws a uniform pause from the configured bounds.
func (s *Scheduler) interval() time.Duration {
	if s.intervalMax <= s.intervalMin {
		return s.intervalMin
	}
	return s.intervalMin + time.Duration(s.rng.Int64N(int64(s.intervalMax-s.intervalMin)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
