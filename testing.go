package cohook

import (
	"context"
	"sync"

	"github.com/YingshuLu/cohook/internal/interfaces"
)

// MockTask is a test double for interfaces.Task: a per-task hook flag
// with no real scheduling behind it.
type MockTask struct {
	mu          sync.RWMutex
	name        string
	hookEnabled bool
}

// NewMockTask creates a mock task, hook disabled by default (matching a
// freshly scheduled task before it calls EnableHook).
func NewMockTask(name string) *MockTask {
	return &MockTask{name: name}
}

func (t *MockTask) HookEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hookEnabled
}

func (t *MockTask) SetHookEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hookEnabled = enabled
}

// Name returns the label this mock task was constructed with, for
// failure messages in tests with more than one task in flight.
func (t *MockTask) Name() string {
	return t.name
}

type mockSchedulerCtxKey struct{}

// MockScheduler is a test double for interfaces.Scheduler. Tests bind a
// task to a context via WithTask and pass the resulting context into
// Runtime calls, exactly as a real scheduler would carry task identity
// through context.Context.
type MockScheduler struct{}

// NewMockScheduler creates a scheduler whose CurrentTask just reads
// back whatever task WithTask bound into the context.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{}
}

// WithTask returns a child context with task bound as the current task.
func (s *MockScheduler) WithTask(parent context.Context, task interfaces.Task) context.Context {
	return context.WithValue(parent, mockSchedulerCtxKey{}, task)
}

func (s *MockScheduler) CurrentTask(ctx context.Context) interfaces.Task {
	task, _ := ctx.Value(mockSchedulerCtxKey{}).(interfaces.Task)
	return task
}

// PollCall records one EventPoll invocation observed by a MockPoller.
type PollCall struct {
	Fd        int
	Events    interfaces.EventMask
	TimeoutMS int
}

type pollResponse struct {
	events interfaces.EventMask
	err    error
}

// MockPoller is a test double for interfaces.Poller: tests queue
// canned responses per fd, and every invocation is recorded for later
// assertions about how many times (and with what events) a fd was polled.
type MockPoller struct {
	mu        sync.Mutex
	responses map[int][]pollResponse
	calls     []PollCall
}

// NewMockPoller creates an empty mock poller. With no queued response,
// EventPoll grants the requested events (minus the request-only
// EdgeTrigger modifier) and returns nil error —
// a reasonable default for tests that only care about the drain/retry
// control flow, not timeout or failure paths.
func NewMockPoller() *MockPoller {
	return &MockPoller{responses: make(map[int][]pollResponse)}
}

// QueueResponse appends one canned (events, err) pair to be returned by
// the next EventPoll call against fd, in FIFO order.
func (p *MockPoller) QueueResponse(fd int, events interfaces.EventMask, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses[fd] = append(p.responses[fd], pollResponse{events: events, err: err})
}

func (p *MockPoller) EventPoll(ctx context.Context, fd int, events interfaces.EventMask, timeoutMS int) (interfaces.EventMask, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, PollCall{Fd: fd, Events: events, TimeoutMS: timeoutMS})

	queue := p.responses[fd]
	if len(queue) == 0 {
		return events &^ interfaces.EdgeTrigger, nil
	}
	resp := queue[0]
	p.responses[fd] = queue[1:]
	return resp.events, resp.err
}

// Calls returns every EventPoll invocation observed so far, in order.
func (p *MockPoller) Calls() []PollCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PollCall, len(p.calls))
	copy(out, p.calls)
	return out
}

// Reset clears recorded calls and queued responses.
func (p *MockPoller) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
	p.responses = make(map[int][]pollResponse)
}

// Compile-time interface checks.
var (
	_ interfaces.Task      = (*MockTask)(nil)
	_ interfaces.Scheduler = (*MockScheduler)(nil)
	_ interfaces.Poller    = (*MockPoller)(nil)
)
