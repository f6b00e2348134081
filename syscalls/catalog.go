package syscalls

import (
	"errors"
	"fmt"
	"sync"
)

var ErrUnknownSyscall = errors.New("unknown syscall")

// Raw instrumentation-name markers. Every descriptor's raw name is
// assembled from these; the filter package decomposes them again when
// matching enabler rules.
const (
	EntryMarker  = "syscall_entry_"
	ExitMarker   = "syscall_exit_"
	CompatMarker = "compat_"
)

// UnknownName is the canonical name given to table holes: syscall
// numbers the platform reserves but does not describe.
const UnknownName = "unknown"

// HandlerSlot selects the payload handler an admitted event is
// dispatched to. Unknown descriptors share a catch-all slot.
type HandlerSlot uint8

const (
	HandlerGeneric HandlerSlot = iota
	HandlerUnknown
)

// Descriptor describes a single syscall within one variant table.
// Descriptors are immutable once the catalog is built.
type Descriptor struct {
	Nr      int
	Name    string // bare canonical name, e.g. "openat"
	Raw     string // instrumentation name, e.g. "compat_syscall_entry_openat"
	Handler HandlerSlot
}

// Catalog holds the four variant descriptor tables plus the name
// resolution indices derived from them.
type Catalog struct {
	tables [NumVariants][]Descriptor
	native map[string]int
	compat map[string]int
}

var (
	catalogOnce sync.Once
	catalog     *Catalog
)

// Load returns the process-wide catalog, building it on first use.
// The returned value is shared and must be treated as read-only.
func Load() *Catalog {
	catalogOnce.Do(func() {
		catalog = build(nativeNames[:], compatNames[:])
	})

	return catalog
}

// build assembles variant tables from the platform name lists. Exposed
// to tests so they can run against a hand-made name list.
func build(native, compat []string) *Catalog {
	c := &Catalog{
		native: make(map[string]int, len(native)),
		compat: make(map[string]int, len(compat)),
	}

	c.tables[NativeEntry] = buildTable(NativeEntry, native)
	c.tables[NativeExit] = buildTable(NativeExit, native)
	c.tables[CompatEntry] = buildTable(CompatEntry, compat)
	c.tables[CompatExit] = buildTable(CompatExit, compat)

	for nr, name := range native {
		if name != "" {
			c.native[name] = nr
		}
	}

	for nr, name := range compat {
		if name != "" {
			c.compat[name] = nr
		}
	}

	return c
}

func buildTable(v Variant, names []string) []Descriptor {
	table := make([]Descriptor, len(names))

	for nr, name := range names {
		table[nr] = newDescriptor(v, nr, name)
	}

	return table
}

func newDescriptor(v Variant, nr int, name string) Descriptor {
	if name == "" {
		return Descriptor{
			Nr:      nr,
			Name:    UnknownName,
			Handler: HandlerUnknown,
		}
	}

	return Descriptor{
		Nr:      nr,
		Name:    name,
		Raw:     RawName(v, name),
		Handler: HandlerGeneric,
	}
}

// RawName assembles the instrumentation name for a bare syscall name
// observed at variant v.
func RawName(v Variant, name string) string {
	raw := EntryMarker + name
	if v.IsExit() {
		raw = ExitMarker + name
	}

	if v.IsCompat() {
		raw = CompatMarker + raw
	}

	return raw
}

// Len reports the table length for a variant. A zero length means the
// platform has no table for that variant (no compat ABI).
func (c *Catalog) Len(v Variant) int {
	return len(c.tables[v])
}

// Table returns the descriptor table for a variant. Callers must not
// mutate the returned slice.
func (c *Catalog) Table(v Variant) []Descriptor {
	return c.tables[v]
}

// Lookup returns the descriptor for nr within variant v, or nil when nr
// is outside the table.
func (c *Catalog) Lookup(v Variant, nr int) *Descriptor {
	if nr < 0 || nr >= len(c.tables[v]) {
		return nil
	}

	return &c.tables[v][nr]
}

// HasCompat reports whether the platform carries compat ABI tables.
func (c *Catalog) HasCompat() bool {
	return len(c.tables[CompatEntry]) > 0
}

// ResolveNative resolves a bare syscall name to its native number.
func (c *Catalog) ResolveNative(name string) (int, error) {
	nr, ok := c.native[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q has no native number", ErrUnknownSyscall, name)
	}

	return nr, nil
}

// ResolveCompat resolves a bare syscall name to its compat number.
func (c *Catalog) ResolveCompat(name string) (int, error) {
	nr, ok := c.compat[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q has no compat number", ErrUnknownSyscall, name)
	}

	return nr, nil
}
