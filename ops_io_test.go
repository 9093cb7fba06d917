package cohook

import (
	"testing"

	"github.com/YingshuLu/cohook/internal/interfaces"
	"github.com/YingshuLu/cohook/internal/synctab"
	"golang.org/x/sys/unix"
)

func TestReadPollsThenReturnsResult(t *testing.T) {
	tbl := &synctab.Table{
		Read: func(fd int, p []byte) (int, error) {
			copy(p, "ping")
			return 4, nil
		},
	}
	rt, _, _, poller, ctx := newTestRuntime(t, tbl)
	rec := rt.registry.Create(4)
	rec.Flags = unix.O_NONBLOCK
	poller.QueueResponse(4, interfaces.EventRead, nil)

	buf := make([]byte, 16)
	n, err := rt.Read(ctx, 4, buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if n != 4 || string(buf[:4]) != "ping" {
		t.Fatalf("expected 'ping', got %q (n=%d)", buf[:n], n)
	}
}

func TestReadZeroWithRDHUPIsError(t *testing.T) {
	tbl := &synctab.Table{
		Read: func(fd int, p []byte) (int, error) { return 0, nil },
	}
	rt, _, _, poller, ctx := newTestRuntime(t, tbl)
	rec := rt.registry.Create(4)
	rec.Flags = unix.O_NONBLOCK
	poller.QueueResponse(4, interfaces.EventRead|interfaces.EventRDHUP, nil)

	_, err := rt.Read(ctx, 4, make([]byte, 16))
	if !IsErrno(err, unix.ECONNRESET) {
		t.Fatalf("expected ECONNRESET on RDHUP zero-read, got %v", err)
	}
}

func TestReadZeroWithoutRDHUPIsOrdinaryEOF(t *testing.T) {
	tbl := &synctab.Table{
		Read: func(fd int, p []byte) (int, error) { return 0, nil },
	}
	rt, _, _, poller, ctx := newTestRuntime(t, tbl)
	rec := rt.registry.Create(4)
	rec.Flags = unix.O_NONBLOCK
	poller.QueueResponse(4, interfaces.EventRead, nil)

	n, err := rt.Read(ctx, 4, make([]byte, 16))
	if err != nil {
		t.Fatalf("expected ordinary EOF with no error, got %v", err)
	}
	if n != 0 {
		t.Fatalf("expected n=0, got %d", n)
	}
}

func TestReadPassthroughWhenNotManaged(t *testing.T) {
	called := false
	tbl := &synctab.Table{
		Read: func(fd int, p []byte) (int, error) { called = true; return 3, nil },
	}
	rt, _, _, poller, ctx := newTestRuntime(t, tbl)

	if _, err := rt.Read(ctx, 99, make([]byte, 16)); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !called {
		t.Fatal("expected passthrough to underlying read")
	}
	if len(poller.Calls()) != 0 {
		t.Fatal("expected no poll for unmanaged fd")
	}
}

func TestWriteDrainsUntilComplete(t *testing.T) {
	written := 0
	attempts := 0
	tbl := &synctab.Table{
		Write: func(fd int, p []byte) (int, error) {
			attempts++
			if attempts == 1 {
				return 0, unix.EAGAIN
			}
			n := len(p)
			if n > 4 {
				n = 4
			}
			written += n
			return n, nil
		},
	}
	rt, _, _, poller, ctx := newTestRuntime(t, tbl)
	rec := rt.registry.Create(5)
	rec.Flags = unix.O_NONBLOCK
	poller.QueueResponse(5, interfaces.EventWrite, nil)

	buf := make([]byte, 10)
	n, err := rt.Write(ctx, 5, buf)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != 10 {
		t.Fatalf("expected full 10-byte write, got %d", n)
	}
	calls := poller.Calls()
	if len(calls) != 1 || !calls[0].Events.Has(interfaces.EdgeTrigger) {
		t.Fatalf("expected one edge-triggered poll, got %+v", calls)
	}
}

func TestWriteAbortsOnFatalError(t *testing.T) {
	tbl := &synctab.Table{
		Write: func(fd int, p []byte) (int, error) { return 0, unix.EPIPE },
	}
	rt, _, _, _, ctx := newTestRuntime(t, tbl)
	rec := rt.registry.Create(5)
	rec.Flags = unix.O_NONBLOCK

	_, err := rt.Write(ctx, 5, make([]byte, 10))
	if !IsErrno(err, unix.EPIPE) {
		t.Fatalf("expected EPIPE surfaced, got %v", err)
	}
}

func TestSendmsgAdvancesPayloadOnRetry(t *testing.T) {
	var seenOOB [][]byte
	var seenLens []int
	attempts := 0
	tbl := &synctab.Table{
		Sendmsg: func(fd int, p, oob []byte, to unix.Sockaddr, flags int) (int, error) {
			attempts++
			seenOOB = append(seenOOB, oob)
			seenLens = append(seenLens, len(p))
			if attempts == 1 {
				return 3, nil
			}
			return len(p), nil
		},
	}
	rt, _, _, poller, ctx := newTestRuntime(t, tbl)
	rec := rt.registry.Create(6)
	rec.Flags = unix.O_NONBLOCK
	poller.QueueResponse(6, interfaces.EventWrite, nil)

	payload := []byte("hello world")
	oob := []byte{0xAA}
	n, err := rt.Sendmsg(ctx, 6, payload, oob, nil, 0)
	if err != nil {
		t.Fatalf("Sendmsg failed: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("expected full payload sent, got %d", n)
	}
	if seenLens[0] != len(payload) {
		t.Fatalf("expected first attempt to see full payload, got %d", seenLens[0])
	}
	if seenLens[1] != len(payload)-3 {
		t.Fatalf("expected second attempt to see advanced payload (%d), got %d", len(payload)-3, seenLens[1])
	}
	if seenOOB[0] == nil || seenOOB[1] != nil {
		t.Fatalf("expected oob only on first attempt, got %v", seenOOB)
	}
}
