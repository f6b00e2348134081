package filter

import "github.com/sctrace/sctrace/syscalls"

// Event is one recordable syscall event on a channel: a descriptor
// observed at one of the four instrumentation points. The filter only
// interprets the two discriminators; payload layout belongs to the
// recording side.
type Event struct {
	Variant syscalls.Variant
	Desc    *syscalls.Descriptor
}

// Unknown reports whether this is a variant's catch-all sentinel event,
// used when a syscall is admitted but no specific event object exists.
func (e *Event) Unknown() bool {
	return e.Desc.Handler == syscalls.HandlerUnknown
}

// Sink receives admitted events. Implementations are called from the
// dispatch hot path on arbitrary goroutines and must not block.
type Sink interface {
	Record(ev *Event, nr int)
}
