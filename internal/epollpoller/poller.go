// Package epollpoller is a reference interfaces.Poller backed by Linux
// epoll, one instance per OS thread per spec.md §5's per-thread
// concurrency model. Each call to EventPoll registers (or re-arms)
// interest in a single fd, blocks the calling goroutine until either
// the requested events fire or the per-call timeout elapses, then
// de-registers the fd so the next interposed call starts from a clean
// slate — the userspace analogue of the kernel's EPOLLONESHOT.
package epollpoller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/YingshuLu/cohook/internal/interfaces"
	"golang.org/x/sys/unix"
)

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Poller wraps one epoll instance. It is safe for concurrent use by
// multiple goroutines waiting on distinct fds; exactly one waiter may
// be registered per fd at a time, matching the "single bound task"
// invariant in spec.md §4.F.
type Poller struct {
	epfd int

	mu      sync.Mutex
	waiters map[int]chan result
}

type result struct {
	events interfaces.EventMask
	err    error
}

// New creates an epoll instance and starts its background wait loop,
// bound to ctx: cancelling ctx stops the loop. A waiter parked in
// EventPoll is not woken by that cancellation; it returns only when an
// event is delivered, its own call ctx is done, or its timeout elapses.
func New(ctx context.Context) (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	p := &Poller{epfd: epfd, waiters: make(map[int]chan result)}
	go p.loop(ctx)
	return p, nil
}

// Close releases the underlying epoll fd.
func (p *Poller) Close() error {
	return unix.Close(p.epfd)
}

func toEpollEvents(m interfaces.EventMask) uint32 {
	var e uint32
	if m.Has(interfaces.EventRead) {
		e |= unix.EPOLLIN
	}
	if m.Has(interfaces.EventWrite) {
		e |= unix.EPOLLOUT
	}
	if m.Has(interfaces.EventRDHUP) {
		e |= unix.EPOLLRDHUP
	}
	if m.Has(interfaces.EdgeTrigger) {
		e |= unix.EPOLLET
	}
	// ERR and HUP are always reported by the kernel regardless of request.
	return e
}

func fromEpollEvents(e uint32) interfaces.EventMask {
	var m interfaces.EventMask
	if e&unix.EPOLLIN != 0 {
		m |= interfaces.EventRead
	}
	if e&unix.EPOLLOUT != 0 {
		m |= interfaces.EventWrite
	}
	if e&unix.EPOLLRDHUP != 0 {
		m |= interfaces.EventRDHUP
	}
	if e&unix.EPOLLERR != 0 {
		m |= interfaces.EventErr
	}
	if e&unix.EPOLLHUP != 0 {
		m |= interfaces.EventHup
	}
	return m
}

// EventPoll implements interfaces.Poller.
func (p *Poller) EventPoll(ctx context.Context, fd int, events interfaces.EventMask, timeoutMS int) (interfaces.EventMask, error) {
	ch := make(chan result, 1)

	p.mu.Lock()
	if _, dup := p.waiters[fd]; dup {
		p.mu.Unlock()
		return 0, fmt.Errorf("epollpoller: fd %d already has a waiter bound", fd)
	}
	p.waiters[fd] = ch
	p.mu.Unlock()

	ev := &unix.EpollEvent{Events: toEpollEvents(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		p.removeWaiter(fd)
		return 0, fmt.Errorf("epoll_ctl add fd %d: %w", fd, err)
	}

	var timer <-chan struct{}
	if timeoutMS >= 0 {
		done := make(chan struct{})
		go func() {
			timeoutCtx, cancel := context.WithTimeout(ctx, msToDuration(timeoutMS))
			defer cancel()
			<-timeoutCtx.Done()
			close(done)
		}()
		timer = done
	}

	select {
	case r := <-ch:
		p.disarm(fd)
		return r.events, r.err
	case <-timer:
		p.disarm(fd)
		p.removeWaiter(fd)
		return interfaces.EventTimeout, nil
	case <-ctx.Done():
		p.disarm(fd)
		p.removeWaiter(fd)
		return 0, ctx.Err()
	}
}

func (p *Poller) disarm(fd int) {
	_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *Poller) removeWaiter(fd int) {
	p.mu.Lock()
	delete(p.waiters, fd)
	p.mu.Unlock()
}

func (p *Poller) loop(ctx context.Context) {
	events := make([]unix.EpollEvent, 64)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := unix.EpollWait(p.epfd, events, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			p.mu.Lock()
			ch, ok := p.waiters[fd]
			if ok {
				delete(p.waiters, fd)
			}
			p.mu.Unlock()
			if ok {
				ch <- result{events: fromEpollEvents(events[i].Events)}
			}
		}
	}
}
