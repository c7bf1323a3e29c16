// Package refresh keeps the arrival cache current.
//
// One Task owns one (line, direction) cache key. It waits a staggered initial
// delay, then loops forever: fetch from upstream, parse, write to the store,
// sleep a fixed interval. Failures are logged and counted at the task
// boundary and never touch the cache, so readers keep the last good value.
// The Scheduler starts one Task per key and supervises them until the
// context is cancelled.
package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sourcegraph/conc/panics"

	"github.com/HatiCode/trainboard/pkg/lines"
	"github.com/HatiCode/trainboard/pkg/storage"
	"github.com/HatiCode/trainboard/pkg/upstream"
)

const (
	DefaultInterval      = 30 * time.Second
	DefaultMaxStartDelay = 20 * time.Second
	DefaultTimeout       = 10 * time.Second
)

// ErrParse marks an upstream body that is not valid JSON.
var ErrParse = errors.New("malformed upstream payload")

// Fetcher retrieves the raw arrivals document between two stations.
// *upstream.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, origin, destination string, limit int) ([]byte, error)
}

// Observer receives per-tick measurements. All methods must be safe for
// concurrent use.
type Observer interface {
	ObserveFetch(line string, d lines.Direction, seconds float64)
	RecordFetchError(line string, d lines.Direction, reason string)
	RecordCacheWrite(line string, d lines.Direction, entries int)
}

type nopObserver struct{}

func (nopObserver) ObserveFetch(string, lines.Direction, float64) {}

func (nopObserver) RecordFetchError(string, lines.Direction, string) {}

func (nopObserver) RecordCacheWrite(string, lines.Direction, int) {}

// Options configures tasks. Zero values are replaced by defaults. A negative
// MaxStartDelay starts every task immediately.
type Options struct {
	HubStation    string
	Limit         int
	Interval      time.Duration
	MaxStartDelay time.Duration
	Timeout       time.Duration
	Clock         clockwork.Clock
	Observer      Observer
	Logger        *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.HubStation == "" {
		o.HubStation = lines.DefaultHubStation
	}
	if o.Limit <= 0 {
		o.Limit = upstream.DefaultLimit
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.MaxStartDelay == 0 {
		o.MaxStartDelay = DefaultMaxStartDelay
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// State is where a Task is in its cycle.
type State int32

const (
	StateScheduled State = iota
	StateFetching
	StateIdle
)

func (s State) String() string {
	switch s {
	case StateScheduled:
		return "scheduled"
	case StateFetching:
		return "fetching"
	case StateIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// Task refreshes a single (line, direction) cache key.
type Task struct {
	line      lines.Line
	direction lines.Direction
	fetcher   Fetcher
	store     storage.Store
	opts      Options
	logger    *slog.Logger
	state     atomic.Int32
}

// NewTask creates a task. It does nothing until Tick or Run is called.
func NewTask(line lines.Line, direction lines.Direction, fetcher Fetcher, store storage.Store, opts Options) *Task {
	opts = opts.withDefaults()
	return &Task{
		line:      line,
		direction: direction,
		fetcher:   fetcher,
		store:     store,
		opts:      opts,
		logger:    opts.Logger.With("line", line.Name, "direction", direction.String()),
	}
}

// Line returns the line this task refreshes.
func (t *Task) Line() lines.Line { return t.line }

// Direction returns the direction this task refreshes.
func (t *Task) Direction() lines.Direction { return t.direction }

// State reports the task's current state.
func (t *Task) State() State { return State(t.state.Load()) }

// Run waits initialDelay, then ticks every Interval until ctx is cancelled.
// The next wait starts after the tick finishes, whatever its outcome.
func (t *Task) Run(ctx context.Context, initialDelay time.Duration) {
	t.logger.Debug("refresh task scheduled", "initial_delay", initialDelay)

	delay := initialDelay
	for {
		t.state.Store(int32(StateScheduled))
		if delay > 0 {
			select {
			case <-ctx.Done():
				t.logger.Debug("refresh task stopped")
				return
			case <-t.opts.Clock.After(delay):
			}
		} else if ctx.Err() != nil {
			t.logger.Debug("refresh task stopped")
			return
		}

		err := t.safeTick(ctx)
		if ctx.Err() != nil {
			t.logger.Debug("refresh task stopped")
			return
		}
		if err != nil {
			t.logger.Warn("refresh tick failed", "error", err)
		}
		delay = t.opts.Interval
	}
}

// safeTick runs Tick and turns a panic into an error so one bad response
// cannot take the task down.
func (t *Task) safeTick(ctx context.Context) (err error) {
	var pc panics.Catcher
	pc.Try(func() { err = t.Tick(ctx) })
	if r := pc.Recovered(); r != nil {
		t.opts.Observer.RecordFetchError(t.line.Name, t.direction, "panic")
		return fmt.Errorf("tick panicked: %w", r.AsError())
	}
	return err
}

// Tick performs one fetch, parse and store cycle.
// Exported for testing purposes.
func (t *Task) Tick(ctx context.Context) error {
	t.state.Store(int32(StateFetching))
	defer t.state.Store(int32(StateIdle))

	start := time.Now()
	from, to := t.line.Endpoints(t.direction, t.opts.HubStation)

	fetchCtx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	defer cancel()

	body, err := t.fetcher.Fetch(fetchCtx, from, to, t.opts.Limit)
	if err != nil && ctx.Err() != nil {
		// Shutting down; an aborted fetch is not an upstream failure.
		return fmt.Errorf("fetch %s to %s: %w", from, to, ctx.Err())
	}
	t.opts.Observer.ObserveFetch(t.line.Name, t.direction, time.Since(start).Seconds())
	if err != nil {
		t.opts.Observer.RecordFetchError(t.line.Name, t.direction, Reason(err))
		return fmt.Errorf("fetch %s to %s: %w", from, to, err)
	}

	var payload json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		t.opts.Observer.RecordFetchError(t.line.Name, t.direction, Reason(ErrParse))
		return fmt.Errorf("%w: %w", ErrParse, err)
	}

	t.store.Upsert(t.direction, t.line.Name, payload)
	t.opts.Observer.RecordCacheWrite(t.line.Name, t.direction, t.store.Snapshot().Len())

	t.logger.Debug("refresh tick complete",
		"bytes", len(payload),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Reason classifies a tick error for metrics labels.
func Reason(err error) string {
	var statusErr *upstream.StatusError
	switch {
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &statusErr):
		return "status"
	case errors.Is(err, upstream.ErrNetwork):
		return "network"
	default:
		return "other"
	}
}
