package cohook

import (
	"context"

	"github.com/YingshuLu/cohook/internal/constants"
	"github.com/YingshuLu/cohook/internal/interfaces"
	"golang.org/x/sys/unix"
)

// Socket implements the interposed socket(). A successful creation
// under an enabled hook is immediately set non-blocking and registered,
// mirroring "new sockets are auto-managed" (spec.md §3 Lifecycle).
func (r *Runtime) Socket(ctx context.Context, domain, typ, proto int) (int, error) {
	fd, err := r.table.Socket(domain, typ, proto)
	if err != nil {
		return -1, WrapError("socket", -1, err)
	}
	if r.hookedHere(ctx) {
		if rerr := r.setNonblockingAndRegister(ctx, "socket", fd); rerr != nil {
			return fd, rerr
		}
	}
	return fd, nil
}

// Listen implements the interposed listen(). A managed listening socket
// has no per-accept deadline (spec.md §4.D).
func (r *Runtime) Listen(ctx context.Context, fd int, backlog int) error {
	if rec := r.registry.Lookup(fd); rec != nil && r.hookedHere(ctx) {
		rec.Timeout = constants.InfiniteTimeout
	}
	if err := r.table.Listen(fd, backlog); err != nil {
		return WrapError("listen", fd, err)
	}
	return nil
}

// Connect implements the interposed connect(), including the
// EINPROGRESS/EALREADY await-then-check-SO_ERROR sequence (spec.md §4.D).
func (r *Runtime) Connect(ctx context.Context, fd int, sa unix.Sockaddr) error {
	rec, ok := r.managed(ctx, fd, true)
	if !ok {
		if err := r.table.Connect(fd, sa); err != nil {
			return WrapError("connect", fd, err)
		}
		return nil
	}

	err := r.table.Connect(fd, sa)
	if err == nil {
		return nil
	}
	if !isConnectPending(err) {
		return WrapError("connect", fd, err)
	}

	observed, perr := r.poll(ctx, "connect", rec, interfaces.EventWrite|interfaces.EventRDHUP|interfaces.EventErr)
	if perr != nil {
		return perr
	}
	if !observed.Has(interfaces.EventWrite) {
		return NewFdError("connect", fd, ErrCodeIOError, "connect wake without WRITE event")
	}

	soErr, gerr := r.table.GetsockoptErr(fd)
	if gerr != nil {
		return WrapError("connect", fd, gerr)
	}
	if soErr == 0 {
		return nil
	}
	return NewErrnoError("connect", fd, unix.Errno(soErr))
}

// Accept implements the interposed accept(), including the single
// retry-after-poll for EAGAIN/EWOULDBLOCK (spec.md §4.D).
func (r *Runtime) Accept(ctx context.Context, fd int) (int, unix.Sockaddr, error) {
	rec, ok := r.managed(ctx, fd, true)
	if !ok {
		newFd, sa, err := r.table.Accept(fd)
		if err != nil {
			return -1, nil, WrapError("accept", fd, err)
		}
		return newFd, sa, nil
	}

	newFd, sa, err := r.table.Accept(fd)
	if err == nil {
		return newFd, sa, r.setNonblockingAndRegister(ctx, "accept", newFd)
	}
	if !isRetryable(err) {
		return -1, nil, WrapError("accept", fd, err)
	}

	if _, perr := r.poll(ctx, "accept", rec, interfaces.EventRead|interfaces.EventRDHUP|interfaces.EventErr|interfaces.EdgeTrigger); perr != nil {
		return -1, nil, perr
	}

	newFd, sa, err = r.table.Accept(fd)
	if err != nil {
		return -1, nil, WrapError("accept", fd, err)
	}
	return newFd, sa, r.setNonblockingAndRegister(ctx, "accept", newFd)
}

// Close implements the interposed close(): the record is destroyed
// before the underlying close so no lookup can observe it afterward
// (spec.md §3 invariant 6).
func (r *Runtime) Close(ctx context.Context, fd int) error {
	if r.hookedHere(ctx) {
		r.registry.Remove(fd)
	}
	if err := r.table.Close(fd); err != nil {
		return WrapError("close", fd, err)
	}
	return nil
}
