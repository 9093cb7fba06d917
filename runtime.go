// Package cohook provides transparent suspension of blocking POSIX I/O
// calls for cooperative tasks: fcntl, socket, listen, connect, accept,
// close, read/recv variants, and write/send variants are exposed as
// Runtime methods that behave like their blocking counterparts from the
// caller's perspective, but suspend the calling task (instead of the OS
// thread) whenever the underlying descriptor isn't ready.
package cohook

import (
	"context"
	"fmt"

	"github.com/YingshuLu/cohook/internal/constants"
	"github.com/YingshuLu/cohook/internal/interfaces"
	"github.com/YingshuLu/cohook/internal/logging"
	"github.com/YingshuLu/cohook/internal/registry"
	"github.com/YingshuLu/cohook/internal/synctab"
)

// Runtime is the interposition core: it owns the descriptor registry
// and the syscall table, and consumes a Scheduler and Poller supplied
// by the caller. A Runtime has no knowledge of how tasks are scheduled
// or how readiness is multiplexed; it only ever asks those questions
// through the interfaces package.
type Runtime struct {
	scheduler interfaces.Scheduler
	poller    interfaces.Poller
	table     *synctab.Table
	registry  *registry.Registry

	logger   *logging.Logger
	observer Observer
	metrics  *Metrics

	defaultTimeoutMS int
}

// RuntimeOptions configures a Runtime. The zero value is valid: every
// field falls back to a sensible default.
type RuntimeOptions struct {
	// DefaultTimeoutMS is the readiness timeout applied to descriptors
	// at creation, in milliseconds. 0 means constants.DefaultTimeoutMS.
	DefaultTimeoutMS int

	// Table overrides the syscall table, for tests. Nil means synctab.Default().
	Table *synctab.Table

	// Logger receives diagnostic messages. Nil means logging.Default().
	Logger *logging.Logger

	// Observer receives suspension metrics. Nil means a Metrics-backed observer.
	Observer Observer
}

// NewRuntime constructs a Runtime bound to the given Scheduler and
// Poller. Both are required: a Runtime with no way to find the current
// task, or no way to wait for readiness, cannot suspend anything.
func NewRuntime(scheduler interfaces.Scheduler, poller interfaces.Poller, opts *RuntimeOptions) (*Runtime, error) {
	if scheduler == nil {
		return nil, NewError("new_runtime", ErrCodeInvalidParameters, "scheduler must not be nil")
	}
	if poller == nil {
		return nil, NewError("new_runtime", ErrCodeInvalidParameters, "poller must not be nil")
	}
	if opts == nil {
		opts = &RuntimeOptions{}
	}

	timeout := opts.DefaultTimeoutMS
	if timeout == 0 {
		timeout = constants.DefaultTimeoutMS
	}

	table := opts.Table
	if table == nil {
		table = synctab.Default()
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	metrics := NewMetrics()
	observer := opts.Observer
	if observer == nil {
		observer = NewMetricsObserver(metrics)
	}

	return &Runtime{
		scheduler:        scheduler,
		poller:           poller,
		table:            table,
		registry:         registry.New(),
		logger:           logger,
		observer:         observer,
		metrics:          metrics,
		defaultTimeoutMS: timeout,
	}, nil
}

// Metrics returns the runtime's built-in metrics instance (populated
// only if no custom Observer was configured at construction).
func (r *Runtime) Metrics() *Metrics {
	return r.metrics
}

// currentTask resolves the task bound to ctx, failing with
// ErrCodeNoCurrentTask if ctx doesn't carry one.
func (r *Runtime) currentTask(op string, ctx context.Context) (interfaces.Task, error) {
	task := r.scheduler.CurrentTask(ctx)
	if task == nil {
		return nil, NewError(op, ErrCodeNoCurrentTask, "context carries no current task")
	}
	return task, nil
}

// hookedHere is component E, the runtime-context predicate: interposed
// behavior only applies when there is a current task and that task has
// enabled the hook (enable_hook()/disable_hook() in spec terms).
func (r *Runtime) hookedHere(ctx context.Context) bool {
	task := r.scheduler.CurrentTask(ctx)
	return task != nil && task.HookEnabled()
}

// EnableHook turns on managed (suspend-capable) behavior for the
// current task's interposed calls.
func (r *Runtime) EnableHook(ctx context.Context) error {
	task, err := r.currentTask("enable_hook", ctx)
	if err != nil {
		return err
	}
	task.SetHookEnabled(true)
	return nil
}

// DisableHook turns off managed behavior: interposed calls made by the
// current task fall straight through to the raw syscall table with no
// suspension, exactly mirroring a thread outside coroutine context in
// the original system.
func (r *Runtime) DisableHook(ctx context.Context) error {
	task, err := r.currentTask("disable_hook", ctx)
	if err != nil {
		return err
	}
	task.SetHookEnabled(false)
	return nil
}

// CloseAll closes every descriptor still tracked by the registry. Used
// at shutdown to avoid leaking fds whose owning tasks never reached
// their own Close call.
func (r *Runtime) CloseAll() error {
	records := r.registry.RemoveAll()
	var firstErr error
	for _, rec := range records {
		if err := r.table.Close(rec.Fd); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close fd %d: %w", rec.Fd, err)
		}
	}
	return firstErr
}
