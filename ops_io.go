package cohook

import (
	"context"

	"github.com/YingshuLu/cohook/internal/interfaces"
	"golang.org/x/sys/unix"
)

// readFamily implements the shared contract for read/recv/recvfrom/recvmsg
// (spec.md §4.D Read family): poll once for readiness, invoke the
// underlying call once, and translate a zero-byte return alongside an
// observed RDHUP into a hard error instead of ordinary EOF.
func (r *Runtime) readFamily(ctx context.Context, op string, fd int, call func() (int, error)) (int, error) {
	rec, ok := r.managed(ctx, fd, true)
	if !ok {
		return call()
	}

	if _, err := r.poll(ctx, op, rec, interfaces.EventRead|interfaces.EventRDHUP|interfaces.EventErr); err != nil {
		return -1, err
	}

	n, err := call()
	if err != nil {
		return n, WrapError(op, fd, err)
	}
	if n == 0 && rec.Error.Has(interfaces.EventRDHUP) {
		return -1, NewErrnoError(op, fd, unix.ECONNRESET)
	}
	return n, nil
}

// Read implements the interposed read().
func (r *Runtime) Read(ctx context.Context, fd int, buf []byte) (int, error) {
	return r.readFamily(ctx, "read", fd, func() (int, error) {
		return r.table.Read(fd, buf)
	})
}

// Recv implements the interposed recv() as recvfrom() with a discarded
// peer address, matching how libc itself typically layers recv over
// recvfrom.
func (r *Runtime) Recv(ctx context.Context, fd int, buf []byte, flags int) (int, error) {
	return r.readFamily(ctx, "recv", fd, func() (int, error) {
		n, _, err := r.table.Recvfrom(fd, buf, flags)
		return n, err
	})
}

// Recvfrom implements the interposed recvfrom().
func (r *Runtime) Recvfrom(ctx context.Context, fd int, buf []byte, flags int) (int, unix.Sockaddr, error) {
	var from unix.Sockaddr
	n, err := r.readFamily(ctx, "recvfrom", fd, func() (int, error) {
		nn, addr, e := r.table.Recvfrom(fd, buf, flags)
		from = addr
		return nn, e
	})
	return n, from, err
}

// Recvmsg implements the interposed recvmsg().
func (r *Runtime) Recvmsg(ctx context.Context, fd int, p, oob []byte, flags int) (n, oobn, recvflags int, from unix.Sockaddr, err error) {
	n, err = r.readFamily(ctx, "recvmsg", fd, func() (int, error) {
		nn, oobnn, rf, fr, e := r.table.Recvmsg(fd, p, oob, flags)
		oobn, recvflags, from = oobnn, rf, fr
		return nn, e
	})
	return n, oobn, recvflags, from, err
}

// writeFamily implements the shared drain loop for write/send/sendto
// (spec.md §4.D Write family): keep writing until either the whole
// buffer is sent or a non-retryable error occurs, suspending on
// EAGAIN/EWOULDBLOCK between attempts.
func (r *Runtime) writeFamily(ctx context.Context, op string, fd int, buf []byte, call func([]byte) (int, error)) (int, error) {
	rec, ok := r.managed(ctx, fd, true)
	if !ok {
		return call(buf)
	}

	length := 0
	for length < len(buf) {
		n, err := call(buf[length:])
		if err != nil {
			if isRetryable(err) {
				r.observer.ObserveRetry(op)
				if _, perr := r.poll(ctx, op, rec, interfaces.EventWrite|interfaces.EventRDHUP|interfaces.EventErr|interfaces.EdgeTrigger); perr != nil {
					return length, perr
				}
				continue
			}
			return length, WrapError(op, fd, err)
		}
		length += n
	}
	return length, nil
}

// Write implements the interposed write().
func (r *Runtime) Write(ctx context.Context, fd int, buf []byte) (int, error) {
	return r.writeFamily(ctx, "write", fd, buf, func(p []byte) (int, error) {
		return r.table.Write(fd, p)
	})
}

// Send implements the interposed send() as sendto() with no destination.
func (r *Runtime) Send(ctx context.Context, fd int, buf []byte, flags int) (int, error) {
	return r.writeFamily(ctx, "send", fd, buf, func(p []byte) (int, error) {
		if err := r.table.Sendto(fd, p, flags, nil); err != nil {
			return 0, err
		}
		return len(p), nil
	})
}

// Sendto implements the interposed sendto().
func (r *Runtime) Sendto(ctx context.Context, fd int, buf []byte, flags int, to unix.Sockaddr) (int, error) {
	return r.writeFamily(ctx, "sendto", fd, buf, func(p []byte) (int, error) {
		if err := r.table.Sendto(fd, p, flags, to); err != nil {
			return 0, err
		}
		return len(p), nil
	})
}

// Sendmsg implements the interposed sendmsg(). Per spec.md §9's open
// question on partial sendmsg retries, this advances the payload view
// between retries (rather than re-sending the whole buffer) and only
// presents ancillary data (oob) on the first attempt, since resending
// it alongside a partial payload would duplicate control messages such
// as passed file descriptors.
func (r *Runtime) Sendmsg(ctx context.Context, fd int, p, oob []byte, to unix.Sockaddr, flags int) (int, error) {
	rec, ok := r.managed(ctx, fd, true)
	if !ok {
		n, err := r.table.Sendmsg(fd, p, oob, to, flags)
		if err != nil {
			return n, WrapError("sendmsg", fd, err)
		}
		return n, nil
	}

	length := 0
	first := true
	for length < len(p) {
		thisOOB := oob
		if !first {
			thisOOB = nil
		}
		n, err := r.table.Sendmsg(fd, p[length:], thisOOB, to, flags)
		first = false
		if err != nil {
			if isRetryable(err) {
				r.observer.ObserveRetry("sendmsg")
				if _, perr := r.poll(ctx, "sendmsg", rec, interfaces.EventWrite|interfaces.EventRDHUP|interfaces.EventErr|interfaces.EdgeTrigger); perr != nil {
					return length, perr
				}
				continue
			}
			return length, WrapError("sendmsg", fd, err)
		}
		length += n
	}
	return length, nil
}
