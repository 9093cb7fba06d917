// Command echoserver is a runnable demonstration of the cohook runtime:
// one task listens and echoes a single connection's first message back,
// another connects and exchanges it, both using ordinary blocking-style
// calls that transparently suspend on the epoll-backed poller instead of
// blocking their OS thread.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/YingshuLu/cohook"
	"github.com/YingshuLu/cohook/internal/epollpoller"
	"github.com/YingshuLu/cohook/internal/interfaces"
	"github.com/YingshuLu/cohook/internal/logging"
	"golang.org/x/sys/unix"
)

// task is the minimal interfaces.Task a goroutine-per-task scheduler needs.
type task struct {
	mu          sync.RWMutex
	hookEnabled bool
}

func (t *task) HookEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hookEnabled
}

func (t *task) SetHookEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hookEnabled = enabled
}

type taskCtxKey struct{}

// scheduler is a reference interfaces.Scheduler: every goroutine is a
// task, and its identity is carried through context.Context exactly as
// SPEC_FULL's "co_self() -> context.Context" adaptation describes.
type scheduler struct{}

func (s *scheduler) spawn(parent context.Context) context.Context {
	return context.WithValue(parent, taskCtxKey{}, &task{})
}

func (s *scheduler) CurrentTask(ctx context.Context) interfaces.Task {
	t, _ := ctx.Value(taskCtxKey{}).(interfaces.Task)
	return t
}

func main() {
	var (
		port    = flag.Int("port", 17000, "TCP port for the demo listener")
		verbose = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller, err := epollpoller.New(ctx)
	if err != nil {
		logger.Error("failed to create poller", "error", err)
		os.Exit(1)
	}
	defer poller.Close()

	sched := &scheduler{}
	rt, err := cohook.NewRuntime(sched, poller, &cohook.RuntimeOptions{Logger: logger})
	if err != nil {
		logger.Error("failed to create runtime", "error", err)
		os.Exit(1)
	}
	defer rt.CloseAll()

	var wg sync.WaitGroup
	wg.Add(2)

	listening := make(chan struct{})

	go runServer(rt, sched.spawn(ctx), *port, listening, &wg, logger)

	go func() {
		<-listening
		runClient(rt, sched.spawn(ctx), *port, &wg, logger)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("echo round-trip complete")
	case <-sigCh:
		logger.Info("received shutdown signal")
	case <-time.After(5 * time.Second):
		logger.Error("timed out waiting for echo round-trip")
	}
}

func runServer(rt *cohook.Runtime, ctx context.Context, port int, listening chan<- struct{}, wg *sync.WaitGroup, logger *logging.Logger) {
	defer wg.Done()

	if err := rt.EnableHook(ctx); err != nil {
		logger.Error("server: enable hook failed", "error", err)
		return
	}

	lfd, err := rt.Socket(ctx, unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		logger.Error("server: socket failed", "error", err)
		return
	}
	defer rt.Close(ctx, lfd)

	if err := unix.SetsockoptInt(lfd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		logger.Error("server: setsockopt failed", "error", err)
		return
	}
	if err := unix.Bind(lfd, &unix.SockaddrInet4{Port: port}); err != nil {
		logger.Error("server: bind failed", "error", err)
		return
	}
	if err := rt.Listen(ctx, lfd, 16); err != nil {
		logger.Error("server: listen failed", "error", err)
		return
	}

	logger.Info("server: listening", "port", port)
	close(listening)

	connFd, _, err := rt.Accept(ctx, lfd)
	if err != nil {
		logger.Error("server: accept failed", "error", err)
		return
	}
	defer rt.Close(ctx, connFd)

	buf := make([]byte, 64)
	n, err := rt.Read(ctx, connFd, buf)
	if err != nil {
		logger.Error("server: read failed", "error", err)
		return
	}

	if _, err := rt.Write(ctx, connFd, buf[:n]); err != nil {
		logger.Error("server: write failed", "error", err)
		return
	}
	logger.Info("server: echoed message", "bytes", n)
}

func runClient(rt *cohook.Runtime, ctx context.Context, port int, wg *sync.WaitGroup, logger *logging.Logger) {
	defer wg.Done()

	if err := rt.EnableHook(ctx); err != nil {
		logger.Error("client: enable hook failed", "error", err)
		return
	}

	cfd, err := rt.Socket(ctx, unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		logger.Error("client: socket failed", "error", err)
		return
	}
	defer rt.Close(ctx, cfd)

	addr := &unix.SockaddrInet4{Port: port, Addr: [4]byte{127, 0, 0, 1}}
	if err := rt.Connect(ctx, cfd, addr); err != nil {
		logger.Error("client: connect failed", "error", err)
		return
	}

	if _, err := rt.Write(ctx, cfd, []byte("ping")); err != nil {
		logger.Error("client: write failed", "error", err)
		return
	}

	buf := make([]byte, 64)
	n, err := rt.Read(ctx, cfd, buf)
	if err != nil {
		logger.Error("client: read failed", "error", err)
		return
	}

	fmt.Printf("client received: %q\n", buf[:n])
}
