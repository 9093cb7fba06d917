package cohook

import (
	"context"
	"errors"
	"time"

	"github.com/YingshuLu/cohook/internal/interfaces"
	"github.com/YingshuLu/cohook/internal/registry"
	"golang.org/x/sys/unix"
)

// isRetryable reports whether err is the EAGAIN/EWOULDBLOCK that a drain
// loop (or accept) answers by polling for readiness and retrying, rather
// than propagating it.
func isRetryable(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// isConnectPending reports whether a connect() errno means the
// handshake is still in flight and should be awaited via event_poll.
func isConnectPending(err error) bool {
	return errors.Is(err, unix.EINPROGRESS) || errors.Is(err, unix.EALREADY)
}

// managed looks up fd's record and reports whether the forward-unchanged
// condition from spec.md §4.D applies: not hooked here, no record, or
// blocking mode. dataOp controls whether the NONBLOCK-flags check
// applies (it does for every data-transfer op; socket/fcntl/listen
// have their own narrower rules, handled by their callers).
func (r *Runtime) managed(ctx context.Context, fd int, dataOp bool) (*registry.Record, bool) {
	if !r.hookedHere(ctx) {
		return nil, false
	}
	rec := r.registry.Lookup(fd)
	if rec == nil {
		return nil, false
	}
	if dataOp && rec.Flags&unix.O_NONBLOCK == 0 {
		return rec, false
	}
	return rec, true
}

// poll invokes the poller for rec.Fd, records suspension metrics, and
// translates a timed-out or failed poll into a structured *Error.
// Observed events are written into rec.Error before returning, exactly
// as spec.md §4.F describes the poller's contract. rec.BoundTask holds
// the suspended task for the duration of the call only, matching spec.md
// §3 invariant 2 ("bound_task is non-none only while that task is
// suspended inside an interposed call on fd").
func (r *Runtime) poll(ctx context.Context, op string, rec *registry.Record, events interfaces.EventMask) (interfaces.EventMask, error) {
	rec.BoundTask = r.scheduler.CurrentTask(ctx)
	defer func() { rec.BoundTask = nil }()

	r.logger.Debug("suspending task", "op", op, "fd", rec.Fd, "events", events, "timeout_ms", rec.Timeout)

	start := time.Now()
	observed, err := r.poller.EventPoll(ctx, rec.Fd, events, rec.Timeout)
	latency := time.Since(start)

	success := err == nil
	r.observer.ObserveSuspend(op, uint64(latency.Nanoseconds()), success)

	rec.Error = observed
	if err != nil {
		r.logger.Warn("poll failed", "op", op, "fd", rec.Fd, "error", err)
		return observed, WrapError(op, rec.Fd, err)
	}
	if observed.Has(interfaces.EventTimeout) {
		r.logger.Warn("poll timed out", "op", op, "fd", rec.Fd, "timeout_ms", rec.Timeout)
		return observed, NewErrnoError(op, rec.Fd, unix.ETIMEDOUT)
	}
	r.logger.Debug("resumed task", "op", op, "fd", rec.Fd, "observed", observed)
	return observed, nil
}

// setNonblockingAndRegister sets O_NONBLOCK on a freshly created or
// accepted fd and, if that succeeds, creates its registry record. It is
// used by socket() and accept() to implement "new descriptors are
// auto-registered non-blocking" (spec.md §3 Lifecycle).
func (r *Runtime) setNonblockingAndRegister(ctx context.Context, op string, fd int) error {
	flags, err := r.table.Fcntl(fd, unix.F_GETFL, 0)
	if err != nil {
		return WrapError(op, fd, err)
	}
	newFlags := flags | unix.O_NONBLOCK
	if newFlags != flags {
		if _, err := r.table.Fcntl(fd, unix.F_SETFL, newFlags); err != nil {
			return WrapError(op, fd, err)
		}
	}
	rec := r.registry.Create(fd)
	rec.Flags = newFlags
	rec.Timeout = r.defaultTimeoutMS
	return nil
}
