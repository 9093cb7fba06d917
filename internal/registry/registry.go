package registry

import (
	"sync"

	"github.com/YingshuLu/cohook/internal/constants"
)

// Registry is the descriptor registry, component A: fd -> *Record.
// Small fds (the overwhelming common case, since the OS reuses low
// numbers aggressively) are held in a direct-indexed, growable slice for
// O(1) lookup without hashing; fds beyond constants.MaxDirectFd spill
// into a map so a handful of sparse high-numbered descriptors don't
// force a huge slice allocation.
//
// Guarded by a single mutex. The C original assumed a registry was only
// ever touched by the OS thread that owned its coroutines; Go's
// scheduler can migrate a goroutine across OS threads even while the
// logical "one task per thread for its lifetime" model holds, so this
// port strengthens that assumption into an explicit lock rather than
// carry it over as an undocumented invariant.
type Registry struct {
	mu     sync.Mutex
	direct []*Record // index == fd
	sparse map[int]*Record
}

// New returns an empty registry pre-sized per constants.InitialRegistrySize.
func New() *Registry {
	return &Registry{
		direct: make([]*Record, constants.InitialRegistrySize),
		sparse: make(map[int]*Record),
	}
}

// Create installs a fresh Record for fd, overwriting any previous entry,
// and returns it.
func (r *Registry) Create(fd int) *Record {
	rec := &Record{Fd: fd, Timeout: constants.DefaultTimeoutMS}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store(fd, rec)
	return rec
}

// Lookup returns the Record for fd, or nil if fd is not managed.
func (r *Registry) Lookup(fd int) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(fd)
}

// Remove drops fd from the registry and returns the Record it held, if
// any. The caller is responsible for any teardown (unbinding a waiting
// task, closing the underlying descriptor).
func (r *Registry) Remove(fd int) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.load(fd)
	if rec == nil {
		return nil
	}
	if fd >= 0 && fd < len(r.direct) {
		r.direct[fd] = nil
	} else {
		delete(r.sparse, fd)
	}
	return rec
}

// RemoveAll drains the registry, returning every Record it held. Used
// by Runtime.CloseAll to tear down every still-managed descriptor, e.g.
// at process shutdown.
func (r *Registry) RemoveAll() []*Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Record, 0, len(r.sparse))
	for i, rec := range r.direct {
		if rec != nil {
			out = append(out, rec)
			r.direct[i] = nil
		}
	}
	for fd, rec := range r.sparse {
		out = append(out, rec)
		delete(r.sparse, fd)
	}
	return out
}

func (r *Registry) store(fd int, rec *Record) {
	if fd >= 0 && fd < constants.MaxDirectFd {
		r.growDirect(fd)
		r.direct[fd] = rec
		return
	}
	r.sparse[fd] = rec
}

func (r *Registry) load(fd int) *Record {
	if fd >= 0 && fd < len(r.direct) {
		return r.direct[fd]
	}
	return r.sparse[fd]
}

func (r *Registry) growDirect(fd int) {
	if fd < len(r.direct) {
		return
	}
	newLen := len(r.direct) * 2
	if newLen <= fd {
		newLen = fd + 1
	}
	grown := make([]*Record, newLen)
	copy(grown, r.direct)
	r.direct = grown
}
