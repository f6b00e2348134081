// Package probes fans syscall entry and exit notifications out to
// attached tracing channels. It stands in for the kernel tracepoint
// plumbing: channels attach callbacks per (entry/exit × native/compat)
// point, and the syscall-side Enter/Exit calls fan out without taking
// locks or allocating.
package probes

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/sctrace/sctrace/syscalls"
)

// Fn is a probe callback. It receives the raw syscall number exactly as
// the instrumented point observed it; no validation has happened yet.
type Fn func(nr int)

type entry struct {
	fn Fn
}

// Hub is the fan-out point syscall events pass through. Attach and
// Detach are serialized by a mutex; Enter and Exit only read
// atomically-published callback lists, so the syscall side never
// contends with reconfiguration.
type Hub struct {
	mu    sync.Mutex
	lists [syscalls.NumVariants]atomic.Pointer[[]*entry]

	// grace period accounting: a fan-out bumps started on the way in
	// and finished on the way out.
	started  atomic.Int64
	finished atomic.Int64
}

func NewHub() *Hub {
	return &Hub{}
}

// Attachment is a handle to one attached callback.
type Attachment struct {
	hub     *Hub
	variant syscalls.Variant
	e       *entry
}

// Attach registers fn at the given instrumentation point. The returned
// handle detaches it again.
func (h *Hub) Attach(v syscalls.Variant, fn Fn) *Attachment {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := &entry{fn: fn}

	var next []*entry
	if old := h.lists[v].Load(); old != nil {
		next = append(next, *old...)
	}

	next = append(next, e)
	h.lists[v].Store(&next)

	return &Attachment{hub: h, variant: v, e: e}
}

// Detach removes the callback from its instrumentation point. New
// fan-outs no longer see it; fan-outs already in flight may still call
// it, so callers must Quiesce before tearing down callback state.
// Detaching twice is a no-op.
func (a *Attachment) Detach() {
	a.hub.mu.Lock()
	defer a.hub.mu.Unlock()

	old := a.hub.lists[a.variant].Load()
	if old == nil {
		return
	}

	next := make([]*entry, 0, len(*old))

	for _, e := range *old {
		if e != a.e {
			next = append(next, e)
		}
	}

	a.hub.lists[a.variant].Store(&next)
}

// Enter reports a syscall invocation to every attached entry callback.
func (h *Hub) Enter(compat bool, nr int) {
	h.dispatch(syscalls.VariantOf(false, compat), nr)
}

// Exit reports a syscall return to every attached exit callback.
func (h *Hub) Exit(compat bool, nr int) {
	h.dispatch(syscalls.VariantOf(true, compat), nr)
}

func (h *Hub) dispatch(v syscalls.Variant, nr int) {
	h.started.Add(1)

	if fns := h.lists[v].Load(); fns != nil {
		for _, e := range *fns {
			e.fn(nr)
		}
	}

	h.finished.Add(1)
}

// Quiesce returns once every fan-out that began before the call has
// finished. Combined with Detach this gives the reclamation guarantee
// channel teardown relies on: after Detach+Quiesce no callback attached
// through this hub can still be executing.
func (h *Hub) Quiesce() {
	target := h.started.Load()

	for h.finished.Load() < target {
		// fan-outs are short and never block; yielding is enough
		// to let stragglers drain.
		runtime.Gosched()
	}
}
