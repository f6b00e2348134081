// Package syscalls holds the static syscall descriptor catalog.
//
// The catalog enumerates every syscall the platform knows about, split
// into four variant tables: native entry, native exit, compat entry and
// compat exit. Tables are built once per process and never mutated, so
// any number of tracing channels can hold read-only references to them.
//
// This package is the only place where textual syscall names are turned
// into numeric table indices.
package syscalls
