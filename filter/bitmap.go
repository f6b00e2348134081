package filter

import (
	"fmt"
	"sync/atomic"

	"github.com/sctrace/sctrace/syscalls"
)

const wordBits = 64

// FilterSet holds the four per-variant enable bit-vectors of one
// channel. It is allocated in full before any probe attaches and never
// reallocated while the channel is registered; only individual bits
// change after that.
//
// Enable and Disable publish with release semantics, Test loads with
// acquire semantics. A concurrent reader may observe either side of an
// in-flight toggle; nothing stronger is needed.
type FilterSet struct {
	vecs [syscalls.NumVariants][]atomic.Uint64
	lens [syscalls.NumVariants]int
}

// NewFilterSet allocates zeroed bit-vectors sized to the catalog's
// variant tables.
func NewFilterSet(c *syscalls.Catalog) *FilterSet {
	f := &FilterSet{}

	for v := syscalls.Variant(0); v < syscalls.NumVariants; v++ {
		n := c.Len(v)
		f.lens[v] = n
		f.vecs[v] = make([]atomic.Uint64, (n+wordBits-1)/wordBits)
	}

	return f
}

// Len reports the bit-vector length for a variant.
func (f *FilterSet) Len(v syscalls.Variant) int {
	return f.lens[v]
}

// Enable sets the bit for (v, nr). Setting an already-set bit fails
// with ErrAlreadyEnabled and changes nothing.
func (f *FilterSet) Enable(v syscalls.Variant, nr int) error {
	f.check(v, nr)

	old := f.vecs[v][nr/wordBits].Or(1 << (nr % wordBits))
	if old&(1<<(nr%wordBits)) != 0 {
		return fmt.Errorf("%w: %s nr %d", ErrAlreadyEnabled, v, nr)
	}

	return nil
}

// Disable clears the bit for (v, nr). Clearing an already-clear bit
// fails with ErrNotEnabled and changes nothing.
func (f *FilterSet) Disable(v syscalls.Variant, nr int) error {
	f.check(v, nr)

	old := f.vecs[v][nr/wordBits].And(^uint64(1 << (nr % wordBits)))
	if old&(1<<(nr%wordBits)) == 0 {
		return fmt.Errorf("%w: %s nr %d", ErrNotEnabled, v, nr)
	}

	return nil
}

// Test reports whether the bit for (v, nr) is set.
func (f *FilterSet) Test(v syscalls.Variant, nr int) bool {
	f.check(v, nr)

	return f.vecs[v][nr/wordBits].Load()&(1<<(nr%wordBits)) != 0
}

// check guards against caller bugs: every caller is required to bounds
// check against the catalog before touching the bitmap, so an
// out-of-range nr here is unrecoverable.
func (f *FilterSet) check(v syscalls.Variant, nr int) {
	if nr < 0 || nr >= f.lens[v] {
		panic(fmt.Sprintf("filter: nr %d out of range for %s table of %d", nr, v, f.lens[v]))
	}
}
