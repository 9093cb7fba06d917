package cohook

import (
	"context"
	"testing"

	"github.com/YingshuLu/cohook/internal/interfaces"
	"github.com/YingshuLu/cohook/internal/synctab"
)

// boundTaskCapturingPoller records rec.BoundTask (read back through the
// registry) at the instant EventPoll runs, so tests can assert the
// suspended task is visible to collaborators mid-suspension rather than
// only before/after the call.
type boundTaskCapturingPoller struct {
	rt  *Runtime
	fd  int
	saw interfaces.Task
}

func (p *boundTaskCapturingPoller) EventPoll(ctx context.Context, fd int, events interfaces.EventMask, timeoutMS int) (interfaces.EventMask, error) {
	if rec := p.rt.registry.Lookup(p.fd); rec != nil {
		p.saw = rec.BoundTask
	}
	return events, nil
}

func TestPollBindsAndUnbindsTask(t *testing.T) {
	sched := NewMockScheduler()
	task := NewMockTask("poller-task")
	task.SetHookEnabled(true)
	ctx := sched.WithTask(context.Background(), task)

	rt, err := NewRuntime(sched, &boundTaskCapturingPoller{}, &RuntimeOptions{Table: &synctab.Table{}})
	if err != nil {
		t.Fatalf("NewRuntime failed: %v", err)
	}
	poller := &boundTaskCapturingPoller{rt: rt, fd: 4}
	rt.poller = poller

	rec := rt.registry.Create(4)

	if rec.BoundTask != nil {
		t.Fatalf("expected BoundTask nil before suspension, got %v", rec.BoundTask)
	}

	if _, err := rt.poll(ctx, "read", rec, interfaces.EventRead); err != nil {
		t.Fatalf("poll failed: %v", err)
	}

	if poller.saw != task {
		t.Fatalf("expected poller to observe the current task bound mid-suspension, got %v", poller.saw)
	}
	if rec.BoundTask != nil {
		t.Fatalf("expected BoundTask cleared after resume, got %v", rec.BoundTask)
	}
}
