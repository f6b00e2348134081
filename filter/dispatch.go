package filter

import "github.com/sctrace/sctrace/syscalls"

// dispatch is the syscall hot path, invoked through the hub on
// arbitrary goroutines whenever an attached instrumentation point
// fires. Every outcome is forward or drop: no locks, no allocation, no
// logging, no error returns.
func (c *Channel) dispatch(v syscalls.Variant, nr int) {
	// a raw id outside the table is filtered out, not an error
	if nr < 0 || nr >= c.fset.Len(v) {
		return
	}

	// tracing everything costs one flag read per event; so does
	// tracing nothing.
	if !c.enableAll.Load() && !c.fset.Test(v, nr) {
		return
	}

	ev := c.events[v][nr].Load()
	if ev == nil {
		ev = c.unknown[v]
	}

	c.sink.Record(ev, nr)
}
