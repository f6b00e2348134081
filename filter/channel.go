package filter

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/sctrace/sctrace/probes"
	"github.com/sctrace/sctrace/syscalls"
)

type channelState uint8

const (
	stateNew channelState = iota
	stateRegistered
	stateUnregistered
	stateDestroyed
)

// Channel owns the syscall filter state of one tracing channel: the
// FilterSet, the enable-all flag, per-variant event object tables with
// their unknown sentinels, and the four probe attachments.
//
// Control-plane methods take the channel mutex and must additionally be
// serialized against each other by the caller's session lock; dispatch
// never takes the mutex.
type Channel struct {
	logger  *zap.SugaredLogger
	catalog *syscalls.Catalog
	hub     *probes.Hub
	sink    Sink

	mu    sync.Mutex
	state channelState

	fset      *FilterSet
	enableAll atomic.Bool

	events  [syscalls.NumVariants][]atomic.Pointer[Event]
	unknown [syscalls.NumVariants]*Event

	attached [syscalls.NumVariants]*probes.Attachment
}

// NewChannel creates a channel over the shared catalog. Nothing is
// allocated or attached until Register.
func NewChannel(logger *zap.SugaredLogger, catalog *syscalls.Catalog, hub *probes.Hub, sink Sink) *Channel {
	return &Channel{
		logger:  logger,
		catalog: catalog,
		hub:     hub,
		sink:    sink,
	}
}

// Register allocates the channel's filter state if absent and attaches
// the probe callbacks whose variant the platform carries. Each attach
// point is guarded by its own flag, so repeated calls are no-ops.
func (c *Channel) Register() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateDestroyed {
		return fmt.Errorf("cannot register: %w", ErrDestroyed)
	}

	c.ensureAllocated()

	for v := syscalls.Variant(0); v < syscalls.NumVariants; v++ {
		if c.attached[v] != nil || c.catalog.Len(v) == 0 {
			continue
		}

		v := v
		c.attached[v] = c.hub.Attach(v, func(nr int) {
			c.dispatch(v, nr)
		})
	}

	c.state = stateRegistered
	c.logger.Infow("syscall filter registered",
		"native", c.catalog.Len(syscalls.NativeEntry),
		"compat", c.catalog.Len(syscalls.CompatEntry),
	)

	return nil
}

// Unregister detaches whatever probes are attached. Filter memory is
// deliberately kept: a dispatch call that started before detachment may
// still be reading it. Idempotent.
func (c *Channel) Unregister() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for v, a := range c.attached {
		if a == nil {
			continue
		}

		a.Detach()
		c.attached[v] = nil
	}

	if c.state == stateRegistered {
		c.state = stateUnregistered
		c.logger.Infow("syscall filter unregistered")
	}
}

// Destroy frees the channel's filter state. It is only legal once all
// probes are detached; Destroy then waits out the hub's grace period so
// no dispatch call that began before detachment can still be reading
// the memory it releases.
func (c *Channel) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, a := range c.attached {
		if a != nil {
			return fmt.Errorf("cannot destroy: %w", ErrStillAttached)
		}
	}

	if c.state == stateDestroyed {
		return nil
	}

	c.hub.Quiesce()

	c.fset = nil

	for v := range c.events {
		c.events[v] = nil
		c.unknown[v] = nil
	}

	c.state = stateDestroyed
	c.logger.Infow("syscall filter destroyed")

	return nil
}

// EnableEvent sets the filter bit for one event, resolving the event's
// descriptor name in the ABI its discriminators select.
func (c *Channel) EnableEvent(ev *Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	nr, err := c.resolve(ev)
	if err != nil {
		return err
	}

	c.ensureAllocated()
	c.events[ev.Variant][nr].Store(ev)

	return c.fset.Enable(ev.Variant, nr)
}

// DisableEvent clears the filter bit for one event.
func (c *Channel) DisableEvent(ev *Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	nr, err := c.resolve(ev)
	if err != nil {
		return err
	}

	c.ensureAllocated()

	return c.fset.Disable(ev.Variant, nr)
}

func (c *Channel) resolve(ev *Event) (int, error) {
	if c.state == stateDestroyed {
		return 0, ErrDestroyed
	}

	name := ev.Desc.Name

	if ev.Variant.IsCompat() {
		return c.catalog.ResolveCompat(name)
	}

	return c.catalog.ResolveNative(name)
}

// Reconcile applies an ordered set of enabler rules. The distinguished
// wildcard enabler only toggles the enable-all flag, leaving the
// bitmaps untouched underneath it; every other enabler is matched
// against the full catalog and drives event state through the bitmap
// path, which stays the single source of truth.
//
// Rules are validated up front: an invalid rule rejects the whole set
// before any state changes.
func (c *Channel) Reconcile(enablers []Enabler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateDestroyed {
		return ErrDestroyed
	}

	wildcard := false
	matchers := make([]*matcher, 0, len(enablers))

	for _, e := range enablers {
		if e.IsWildcard() {
			wildcard = true
			continue
		}

		m, err := compileEnabler(e)
		if err != nil {
			return err
		}

		matchers = append(matchers, m)
	}

	c.ensureAllocated()

	for _, m := range matchers {
		if err := c.applyMatcher(m); err != nil {
			return err
		}
	}

	c.enableAll.Store(wildcard)
	c.logger.Infow("reconciled enablers",
		"rules", len(enablers),
		"enable-all", wildcard,
	)

	return nil
}

func (c *Channel) applyMatcher(m *matcher) error {
	for v := syscalls.Variant(0); v < syscalls.NumVariants; v++ {
		table := c.catalog.Table(v)

		for nr := range table {
			d := &table[nr]
			if d.Handler == syscalls.HandlerUnknown {
				continue
			}

			ok, err := m.match(d.Raw)
			if err != nil {
				return fmt.Errorf("matching %q: %w", d.Raw, err)
			}

			if !ok {
				continue
			}

			if c.events[v][nr].Load() == nil {
				c.events[v][nr].Store(&Event{Variant: v, Desc: d})
			}

			if err := c.fset.Enable(v, nr); err != nil && !isAlreadyEnabled(err) {
				return err
			}
		}
	}

	return nil
}

// QueryMask snapshots the enabled syscalls as a bitmask over syscall
// numbers: a position is set when any of its four variant bits is set,
// or unconditionally under enable-all. Listing tools consume this.
func (c *Channel) QueryMask() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.catalog.Len(syscalls.NativeEntry)
	if cn := c.catalog.Len(syscalls.CompatEntry); cn > n {
		n = cn
	}

	mask := make([]uint64, (n+wordBits-1)/wordBits)

	if c.state == stateDestroyed {
		return mask
	}

	all := c.enableAll.Load()

	for nr := 0; nr < n; nr++ {
		if all || c.testAnyVariant(nr) {
			mask[nr/wordBits] |= 1 << (nr % wordBits)
		}
	}

	return mask
}

func (c *Channel) testAnyVariant(nr int) bool {
	if c.fset == nil {
		return false
	}

	for v := syscalls.Variant(0); v < syscalls.NumVariants; v++ {
		if nr < c.fset.Len(v) && c.fset.Test(v, nr) {
			return true
		}
	}

	return false
}

// ensureAllocated establishes the always-allocated invariant: the
// FilterSet, event tables and unknown sentinels all exist before any
// probe can attach, and stay put until Destroy.
func (c *Channel) ensureAllocated() {
	if c.fset == nil {
		c.fset = NewFilterSet(c.catalog)
	}

	for v := syscalls.Variant(0); v < syscalls.NumVariants; v++ {
		if c.events[v] == nil {
			c.events[v] = make([]atomic.Pointer[Event], c.catalog.Len(v))
		}

		if c.unknown[v] == nil {
			c.unknown[v] = &Event{
				Variant: v,
				Desc: &syscalls.Descriptor{
					Nr:      -1,
					Name:    syscalls.UnknownName,
					Handler: syscalls.HandlerUnknown,
				},
			}
		}
	}
}

func isAlreadyEnabled(err error) bool {
	return errors.Is(err, ErrAlreadyEnabled)
}
