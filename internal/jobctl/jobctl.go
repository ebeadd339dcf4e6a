// Package jobctl implements the single-flight job controller pattern
// for extensions that drive long-lived external worker processes keyed
// by a resource identifier, typically a project directory.
//
// Guarantees per key: at most one worker process in flight, overlapping
// callers join the in-flight outcome, a completed build is cached until
// invalidated, and cancellation terminates the worker and reverts the
// key to its prior state.
package jobctl

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/loom/internal/observability"
	"github.com/haasonsaas/loom/internal/worker"
)

// State is the lifecycle position of a key.
type State int

const (
	// Absent means no build has completed and none is running.
	Absent State = iota
	// Running means a build worker is in flight.
	Running
	// Ready means the last build completed and is still valid.
	Ready
	// Stale means a prior Ready result was invalidated.
	Stale
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Ready:
		return "ready"
	case Stale:
		return "stale"
	default:
		return "absent"
	}
}

// Outcome is how an Ensure call settled.
type Outcome int

const (
	// OutcomeBuilt means the key is Ready, either freshly built or
	// already cached.
	OutcomeBuilt Outcome = iota
	// OutcomeFailed means the build worker failed; the key keeps
	// whatever state it had before the attempt.
	OutcomeFailed
	// OutcomeAborted means the build was cancelled.
	OutcomeAborted
)

// Built reports whether the key ended up Ready.
func (o Outcome) Built() bool { return o == OutcomeBuilt }

func (o Outcome) String() string {
	switch o {
	case OutcomeBuilt:
		return "built"
	case OutcomeFailed:
		return "failed"
	default:
		return "aborted"
	}
}

// BuildSpec produces the worker invocation that builds a key.
type BuildSpec func(key string) worker.Spec

// job is one in-flight build. It is registered in the job table before
// the worker is spawned and removed exactly once when the worker
// settles; the terminal outcome lives on only in the per-key ready and
// stale flags.
type job struct {
	key     string
	done    chan struct{}
	outcome Outcome
	cancel  context.CancelFunc
}

// Controller owns the job table and the per-key staleness flags. One
// controller instance is constructed per consuming extension and passed
// by reference, never reached through globals.
type Controller struct {
	mu      sync.Mutex
	jobs    map[string]*job
	ready   map[string]bool
	stale   map[string]bool
	queries map[string]map[string]context.CancelFunc

	runner  worker.Runner
	build   BuildSpec
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records build outcomes and durations.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// New creates a controller that builds keys with the given runner and
// build spec.
func New(runner worker.Runner, build BuildSpec, opts ...Option) *Controller {
	c := &Controller{
		jobs:    make(map[string]*job),
		ready:   make(map[string]bool),
		stale:   make(map[string]bool),
		queries: make(map[string]map[string]context.CancelFunc),
		runner:  runner,
		build:   build,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "jobctl")
	return c
}

// Ensure makes key Ready, spawning at most one build worker. A caller
// arriving while a build is in flight joins the same outcome instead of
// spawning a duplicate; a Ready, non-stale key returns immediately.
//
// Failures never surface as errors: a failed or aborted build is an
// explicit Outcome, and the key keeps its prior state for retry on next
// access.
func (c *Controller) Ensure(ctx context.Context, key string) Outcome {
	c.mu.Lock()
	if j, ok := c.jobs[key]; ok {
		c.mu.Unlock()
		c.count("joined")
		return c.await(ctx, j)
	}
	if c.ready[key] && !c.stale[key] {
		c.mu.Unlock()
		c.count("cached")
		return OutcomeBuilt
	}

	// Register the job before releasing the lock so a second caller
	// racing this one observes Running and joins instead of spawning.
	buildCtx, cancel := context.WithCancel(ctx)
	j := &job{key: key, done: make(chan struct{}), cancel: cancel}
	c.jobs[key] = j
	c.mu.Unlock()

	start := time.Now()
	_, err := c.runner.Run(buildCtx, c.build(key))

	c.mu.Lock()
	delete(c.jobs, key)
	switch {
	case err == nil:
		c.ready[key] = true
		c.stale[key] = false
		j.outcome = OutcomeBuilt
	case errors.Is(err, worker.ErrAborted):
		// Prior Ready/Stale flags stay untouched, so the key reverts
		// to its last known state, or Absent when there is none.
		j.outcome = OutcomeAborted
	default:
		j.outcome = OutcomeFailed
	}
	c.mu.Unlock()

	close(j.done)
	cancel()

	if err != nil {
		c.logger.Warn("build settled without success",
			"key", key,
			"outcome", j.outcome.String(),
			"error", err)
	} else {
		c.logger.Debug("build completed", "key", key, "duration", time.Since(start))
	}
	c.count(j.outcome.String())
	if c.metrics != nil {
		c.metrics.BuildDuration.Observe(time.Since(start).Seconds())
	}
	return j.outcome
}

// await blocks a joining caller until the shared job settles. The
// joiner's own cancellation resolves its call as aborted without
// affecting the in-flight build.
func (c *Controller) await(ctx context.Context, j *job) Outcome {
	select {
	case <-j.done:
		return j.outcome
	case <-ctx.Done():
		return OutcomeAborted
	}
}

// Cancel terminates the in-flight build for key, if any. Cleanup of the
// job table entry happens exactly once, in the goroutine that spawned
// the worker.
func (c *Controller) Cancel(key string) {
	c.mu.Lock()
	j, ok := c.jobs[key]
	c.mu.Unlock()
	if ok {
		j.cancel()
	}
}

// MarkStale flags key for rebuild before its next use.
func (c *Controller) MarkStale(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stale[key] = true
}

// StateOf reports the key's lifecycle position.
func (c *Controller) StateOf(key string) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.jobs[key]; ok {
		return Running
	}
	if c.ready[key] {
		if c.stale[key] {
			return Stale
		}
		return Ready
	}
	return Absent
}

// Query runs a short-lived worker for a per-call operation against an
// already built key. Queries are tracked in a separate per-key process
// table so they can be cancelled independently of an in-flight build.
func (c *Controller) Query(ctx context.Context, key string, spec worker.Spec) (worker.Result, error) {
	queryCtx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()

	c.mu.Lock()
	if c.queries[key] == nil {
		c.queries[key] = make(map[string]context.CancelFunc)
	}
	c.queries[key][id] = cancel
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.queries[key], id)
		if len(c.queries[key]) == 0 {
			delete(c.queries, key)
		}
		c.mu.Unlock()
		cancel()
	}()

	return c.runner.Run(queryCtx, spec)
}

// CancelQueries terminates every in-flight query for key without
// touching a concurrent build.
func (c *Controller) CancelQueries(key string) {
	c.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(c.queries[key]))
	for _, cancel := range c.queries[key] {
		cancels = append(cancels, cancel)
	}
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

func (c *Controller) count(outcome string) {
	if c.metrics != nil {
		c.metrics.BuildOutcomes.WithLabelValues(outcome).Inc()
	}
}
