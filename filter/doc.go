// Package filter decides, for every syscall entry and exit, whether an
// event is emitted on a tracing channel.
//
// Each channel owns a FilterSet: four bit-vectors (native/compat ×
// entry/exit) sized to the syscall catalog, plus a single enable-all
// flag that bypasses the bit-vectors entirely when the whole syscall
// surface is traced. The control plane flips bits through enabler
// rules; the syscall hot path only ever reads.
//
// Control-plane calls on a Channel must be serialized by the caller
// (tracing sessions hold a session lock). Dispatch runs concurrently
// with them and is wait-free: no locks, no allocation, no error paths.
package filter
