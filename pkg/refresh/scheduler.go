package refresh

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/HatiCode/trainboard/pkg/lines"
	"github.com/HatiCode/trainboard/pkg/storage"
)

// ErrAlreadyStarted is returned by a second call to Scheduler.Start.
var ErrAlreadyStarted = errors.New("scheduler already started")

// Assignment is one planned task and the delay before its first tick.
type Assignment struct {
	Line         lines.Line
	Direction    lines.Direction
	InitialDelay time.Duration
}

// Scheduler starts and supervises one Task per (line, direction).
type Scheduler struct {
	fetcher Fetcher
	store   storage.Store
	opts    Options
	jitter  func(upper time.Duration) time.Duration

	started atomic.Bool
	wg      conc.WaitGroup
}

// NewScheduler creates a scheduler. Tasks share fetcher, store and opts.
func NewScheduler(fetcher Fetcher, store storage.Store, opts Options) *Scheduler {
	return &Scheduler{
		fetcher: fetcher,
		store:   store,
		opts:    opts.withDefaults(),
		jitter:  uniformJitter,
	}
}

// uniformJitter samples uniformly from [0, upper). A non-positive upper
// means no jitter.
func uniformJitter(upper time.Duration) time.Duration {
	if upper <= 0 {
		return 0
	}
	return rand.N(upper)
}

// Plan returns the tasks Start would launch, with an independently sampled
// initial delay for each so the fleet does not hit upstream in one burst.
func (s *Scheduler) Plan(ls []lines.Line) []Assignment {
	plan := make([]Assignment, 0, len(ls)*len(lines.Directions))
	for _, l := range ls {
		for _, d := range []lines.Direction{lines.Outbound, lines.Inbound} {
			plan = append(plan, Assignment{
				Line:         l,
				Direction:    d,
				InitialDelay: s.jitter(s.opts.MaxStartDelay),
			})
		}
	}
	return plan
}

// Start launches every task and returns immediately. Tasks stop when ctx is
// cancelled; use Wait to block until they have. Start may be called once.
func (s *Scheduler) Start(ctx context.Context, ls []lines.Line) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	plan := s.Plan(ls)
	for _, a := range plan {
		task := NewTask(a.Line, a.Direction, s.fetcher, s.store, s.opts)
		delay := a.InitialDelay
		s.wg.Go(func() {
			task.Run(ctx, delay)
		})
	}

	s.opts.Logger.Info("refresh scheduler started",
		"tasks", len(plan),
		"interval", s.opts.Interval,
		"max_start_delay", s.opts.MaxStartDelay,
	)
	return nil
}

// Wait blocks until every task has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
	s.opts.Logger.Info("refresh scheduler stopped")
}
