package container

import (
	"context"
	"sync"
	"time"

	"github.com/siddontang/go-log/loggers"

	"github.com/tomellm/hermes/pkg/metrics"
)

// DefaultTaskTimeout is how long a TaskContainer waits for a run
// before abandoning it on Tick.
const DefaultTaskTimeout = 5 * time.Second

type taskOutcome[T any] struct {
	result T
	err    error
}

// TaskContainer runs independent parameterized background work that
// isn't tied to any SQL view — a caller-supplied function of some
// parameter type P producing a result T. Like Container, it never
// blocks: NewParams/ExecuteAny/ExecuteChanges start work in the
// background and Tick picks up whatever has landed, abandoning a run
// that has outlived its timeout rather than waiting on it forever.
type TaskContainer[P any, T any] struct {
	run     func(ctx context.Context, p P) (T, error)
	timeout time.Duration
	metrics metrics.Sink
	logger  loggers.Advanced
	name    string

	mu            sync.Mutex
	lastParams    P
	hasLastParams bool

	pending  chan taskOutcome[T]
	deadline time.Time
	awaiting bool

	result    T
	hasResult bool
}

// NewTaskContainer constructs a TaskContainer with the default
// timeout. run is given a context carrying that same timeout, so a
// well-behaved run can cancel its own work instead of leaking past
// the point Tick gives up on it.
func NewTaskContainer[P any, T any](run func(context.Context, P) (T, error), sink metrics.Sink, logger loggers.Advanced, name string) *TaskContainer[P, T] {
	return &TaskContainer[P, T]{
		run:     run,
		timeout: DefaultTaskTimeout,
		metrics: sink,
		logger:  logger,
		name:    name,
	}
}

// SetTimeout overrides the default 5s timeout.
func (tc *TaskContainer[P, T]) SetTimeout(d time.Duration) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.timeout = d
}

// NewParams starts a fresh run with p unconditionally, abandoning
// whatever run was previously in flight.
func (tc *TaskContainer[P, T]) NewParams(p P) {
	tc.start(p)
}

// ExecuteAny is NewParams under the name spec callers expect for a
// Task Container analog of ExecuteMany: always run, regardless of
// whether a run is already in flight or what its params were.
func (tc *TaskContainer[P, T]) ExecuteAny(p P) {
	tc.start(p)
}

// ExecuteChanges only starts a new run when p differs, per equal,
// from the params of the most recently started run — avoiding
// redundant work when a caller retriggers with identical input.
func (tc *TaskContainer[P, T]) ExecuteChanges(p P, equal func(a, b P) bool) {
	tc.mu.Lock()
	unchanged := tc.hasLastParams && equal(tc.lastParams, p)
	tc.mu.Unlock()
	if unchanged {
		return
	}
	tc.start(p)
}

func (tc *TaskContainer[P, T]) start(p P) {
	tc.mu.Lock()
	timeout := tc.timeout
	ch := make(chan taskOutcome[T], 1)
	tc.lastParams = p
	tc.hasLastParams = true
	tc.pending = ch
	tc.deadline = time.Now().Add(timeout)
	tc.awaiting = true
	tc.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		result, err := tc.run(ctx, p)
		ch <- taskOutcome[T]{result: result, err: err}
	}()
}

// Tick drains a completed run, if one landed, or abandons the
// currently awaited run once its deadline has passed. It returns true
// only when a new result was applied this tick. A run that completes
// after being abandoned sends into an orphaned channel nobody reads
// again — there is no explicit cancellation beyond the context
// deadline passed to run.
func (tc *TaskContainer[P, T]) Tick() bool {
	tc.mu.Lock()
	ch := tc.pending
	awaiting := tc.awaiting
	deadline := tc.deadline
	tc.mu.Unlock()
	if !awaiting {
		return false
	}

	select {
	case o := <-ch:
		tc.mu.Lock()
		tc.awaiting = false
		tc.mu.Unlock()
		if o.err != nil {
			tc.logger.Errorf("%s: task failed: %v", tc.name, o.err)
			tc.metrics.IncrCounter("task_container_failed", nil)
			return false
		}
		tc.mu.Lock()
		tc.result = o.result
		tc.hasResult = true
		tc.mu.Unlock()
		tc.metrics.IncrCounter("task_container_succeeded", nil)
		return true
	default:
		if time.Now().After(deadline) {
			tc.mu.Lock()
			tc.awaiting = false
			tc.mu.Unlock()
			tc.logger.Warnf("%s: task timed out, abandoning result", tc.name)
			tc.metrics.IncrCounter("task_container_timeout", nil)
		}
		return false
	}
}

// Result returns the last applied result and whether one has ever
// landed.
func (tc *TaskContainer[P, T]) Result() (T, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.result, tc.hasResult
}

// Awaiting reports whether a run is currently in flight.
func (tc *TaskContainer[P, T]) Awaiting() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.awaiting
}
