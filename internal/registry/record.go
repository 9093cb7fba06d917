// Package registry tracks per-descriptor state for interposed file
// descriptors: cached flags, the task currently bound for readiness,
// its timeout, and any pending error the poller observed on its behalf.
package registry

import "github.com/YingshuLu/cohook/internal/interfaces"

// Record is the managed state for a single interposed descriptor,
// component B of the descriptor registry.
type Record struct {
	Fd    int
	Flags int // cached F_GETFL value

	// BoundTask is the task currently waiting on this fd's readiness, if
	// any. Only one task may be bound at a time.
	BoundTask interfaces.Task

	// Timeout is the readiness deadline in milliseconds; -1 means no
	// deadline (set by listen(), per spec).
	Timeout int

	// TimerLink is an opaque slot for a caller-owned timer wheel; the
	// registry never interprets it.
	TimerLink int

	// Error holds the events the poller observed against this fd on the
	// most recent poll. Each poll overwrites it; events do not accumulate
	// across polls.
	Error interfaces.EventMask
}
