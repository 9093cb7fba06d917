package cohook

import (
	"context"

	"golang.org/x/sys/unix"
)

// Fcntl implements the interposed fcntl() for every command whose
// argument is a plain int (spec.md §4.D). F_GETLK/F_SETLK/F_SETLKW take
// a flock struct instead and are served by FcntlLock.
func (r *Runtime) Fcntl(ctx context.Context, fd int, cmd int, arg int) (int, error) {
	switch cmd {
	case unix.F_DUPFD, unix.F_DUPFD_CLOEXEC:
		return r.fcntlDup(ctx, fd, cmd, arg)

	case unix.F_GETFD, unix.F_SETFD, unix.F_GETOWN, unix.F_SETOWN:
		return r.rawFcntl(fd, cmd, arg)

	case unix.F_GETFL:
		if rec := r.registry.Lookup(fd); rec != nil && r.hookedHere(ctx) {
			return rec.Flags, nil
		}
		return r.rawFcntl(fd, cmd, arg)

	case unix.F_SETFL:
		return r.fcntlSetfl(ctx, fd, arg)

	default:
		return -1, NewFdError("fcntl", fd, ErrCodeInvalidParameters, "unsupported fcntl command")
	}
}

// FcntlLock implements the interposed fcntl() commands that take a
// struct flock, all of which pass through unchanged per spec.md §4.D.
func (r *Runtime) FcntlLock(ctx context.Context, fd int, cmd int, lock *unix.Flock_t) error {
	if err := r.table.FcntlFlock(fd, cmd, lock); err != nil {
		return WrapError("fcntl", fd, err)
	}
	return nil
}

func (r *Runtime) rawFcntl(fd, cmd, arg int) (int, error) {
	n, err := r.table.Fcntl(fd, cmd, arg)
	if err != nil {
		return n, WrapError("fcntl", fd, err)
	}
	return n, nil
}

func (r *Runtime) fcntlDup(ctx context.Context, fd, cmd, arg int) (int, error) {
	newFd, err := r.table.Fcntl(fd, cmd, arg)
	if err != nil {
		return newFd, WrapError("fcntl", fd, err)
	}

	if !r.hookedHere(ctx) {
		return newFd, nil
	}

	if src := r.registry.Lookup(fd); src != nil && src.Flags&unix.O_NONBLOCK != 0 {
		rec := r.registry.Create(newFd)
		rec.Flags = src.Flags
		rec.Timeout = r.defaultTimeoutMS
	}
	return newFd, nil
}

func (r *Runtime) fcntlSetfl(ctx context.Context, fd int, newFlags int) (int, error) {
	if !r.hookedHere(ctx) {
		return r.rawFcntl(fd, unix.F_SETFL, newFlags)
	}

	rec := r.registry.Lookup(fd)
	if newFlags&unix.O_NONBLOCK != 0 && rec == nil {
		rec = r.registry.Create(fd)
		rec.Timeout = r.defaultTimeoutMS
	}

	if rec != nil && rec.Flags == newFlags {
		return 0, nil
	}

	n, err := r.table.Fcntl(fd, unix.F_SETFL, newFlags)
	if err != nil {
		return n, WrapError("fcntl", fd, err)
	}
	if rec != nil {
		rec.Flags = newFlags
	}
	return n, nil
}
