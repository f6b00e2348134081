package filter_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sctrace/sctrace/filter"
	"github.com/sctrace/sctrace/probes"
	"github.com/sctrace/sctrace/syscalls"
)

type record struct {
	variant syscalls.Variant
	nr      int
	unknown bool
}

type recordSink struct {
	mu  sync.Mutex
	got []record
}

func (s *recordSink) Record(ev *filter.Event, nr int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.got = append(s.got, record{variant: ev.Variant, nr: nr, unknown: ev.Unknown()})
}

func (s *recordSink) records() []record {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]record(nil), s.got...)
}

func newTestChannel(t *testing.T) (*filter.Channel, *probes.Hub, *recordSink) {
	t.Helper()

	hub := probes.NewHub()
	sink := &recordSink{}
	ch := filter.NewChannel(zap.NewNop().Sugar(), syscalls.Load(), hub, sink)

	return ch, hub, sink
}

func eventFor(t *testing.T, v syscalls.Variant, name string) *filter.Event {
	t.Helper()

	return &filter.Event{
		Variant: v,
		Desc:    &syscalls.Descriptor{Name: name},
	}
}

func TestChannelOpenatScenario(t *testing.T) {
	ch, hub, sink := newTestChannel(t)
	c := syscalls.Load()

	require.NoError(t, ch.Register())
	defer ch.Unregister()

	require.NoError(t, ch.EnableEvent(eventFor(t, syscalls.NativeEntry, "openat")))

	nr, err := c.ResolveNative("openat")
	require.NoError(t, err)

	hub.Enter(false, nr) // forwarded
	hub.Exit(false, nr)  // dropped: exit bit untouched

	if c.HasCompat() {
		compatNr, err := c.ResolveCompat("openat")
		require.NoError(t, err)

		hub.Enter(true, compatNr) // dropped: compat bit untouched
	}

	require.Equal(t, []record{{variant: syscalls.NativeEntry, nr: nr}}, sink.records())
}

func TestChannelEnableTwice(t *testing.T) {
	ch, _, _ := newTestChannel(t)

	require.NoError(t, ch.Register())
	defer ch.Unregister()

	ev := eventFor(t, syscalls.NativeEntry, "read")
	require.NoError(t, ch.EnableEvent(ev))
	require.ErrorIs(t, ch.EnableEvent(ev), filter.ErrAlreadyEnabled)
}

func TestChannelDisableNeverEnabled(t *testing.T) {
	ch, _, _ := newTestChannel(t)

	require.NoError(t, ch.Register())
	defer ch.Unregister()

	err := ch.DisableEvent(eventFor(t, syscalls.NativeExit, "read"))
	require.ErrorIs(t, err, filter.ErrNotEnabled)
}

func TestChannelUnknownNameBothABIs(t *testing.T) {
	ch, _, _ := newTestChannel(t)

	require.NoError(t, ch.Register())
	defer ch.Unregister()

	err := ch.EnableEvent(eventFor(t, syscalls.NativeEntry, "not_a_syscall"))
	require.ErrorIs(t, err, syscalls.ErrUnknownSyscall)

	if syscalls.Load().HasCompat() {
		err = ch.EnableEvent(eventFor(t, syscalls.CompatEntry, "not_a_syscall"))
		require.ErrorIs(t, err, syscalls.ErrUnknownSyscall)
	}

	// a failed resolution must not have flipped anything
	for _, w := range ch.QueryMask() {
		require.Zero(t, w)
	}
}

func TestChannelWildcardPreservesBitmaps(t *testing.T) {
	ch, hub, sink := newTestChannel(t)
	c := syscalls.Load()

	require.NoError(t, ch.Register())
	defer ch.Unregister()

	// bitmap state underneath the wildcard: read entry only
	require.NoError(t, ch.EnableEvent(eventFor(t, syscalls.NativeEntry, "read")))

	readNr, err := c.ResolveNative("read")
	require.NoError(t, err)
	writeNr, err := c.ResolveNative("write")
	require.NoError(t, err)

	// with the wildcard applied everything is admitted
	require.NoError(t, ch.Reconcile([]filter.Enabler{
		{Kind: filter.MatchExact, Pattern: filter.WildcardPattern},
	}))

	hub.Enter(false, writeNr)
	hub.Exit(false, writeNr)
	require.Len(t, sink.records(), 2)

	// withdrawing the wildcard restores exactly the bitmap state
	require.NoError(t, ch.Reconcile(nil))

	hub.Enter(false, readNr)  // still enabled: bit survived the wildcard
	hub.Enter(false, writeNr) // dropped again
	hub.Exit(false, readNr)   // dropped: exit was never enabled

	got := sink.records()
	require.Len(t, got, 3)
	require.Equal(t, record{variant: syscalls.NativeEntry, nr: readNr}, got[2])
}

func TestChannelReconcileGlob(t *testing.T) {
	ch, hub, sink := newTestChannel(t)
	c := syscalls.Load()

	require.NoError(t, ch.Register())
	defer ch.Unregister()

	require.NoError(t, ch.Reconcile([]filter.Enabler{
		{Kind: filter.MatchGlob, Point: filter.PointEntry, ABI: filter.ABINative, Pattern: "open*"},
	}))

	openatNr, err := c.ResolveNative("openat")
	require.NoError(t, err)

	hub.Enter(false, openatNr) // matched by glob
	hub.Exit(false, openatNr)  // outside the entry point scope

	got := sink.records()
	require.Equal(t, []record{{variant: syscalls.NativeEntry, nr: openatNr}}, got)
}

func TestChannelReconcileInvalidRejectsWholeSet(t *testing.T) {
	ch, _, _ := newTestChannel(t)

	require.NoError(t, ch.Register())
	defer ch.Unregister()

	err := ch.Reconcile([]filter.Enabler{
		{Kind: filter.MatchExact, Pattern: "openat"},
		{Kind: filter.MatchNumber, Pattern: "257"},
	})
	require.ErrorIs(t, err, filter.ErrUnimplemented)

	// nothing was applied
	for _, w := range ch.QueryMask() {
		require.Zero(t, w)
	}
}

func TestChannelOutOfRangeDispatchDropsSilently(t *testing.T) {
	ch, hub, sink := newTestChannel(t)

	require.NoError(t, ch.Register())
	defer ch.Unregister()

	require.NoError(t, ch.Reconcile([]filter.Enabler{
		{Kind: filter.MatchExact, Pattern: filter.WildcardPattern},
	}))

	hub.Enter(false, 1<<20)
	hub.Enter(false, -1)

	require.Empty(t, sink.records())
}

func TestChannelUnknownSentinelForwarded(t *testing.T) {
	ch, hub, sink := newTestChannel(t)
	c := syscalls.Load()

	hole := -1

	table := c.Table(syscalls.NativeEntry)
	for nr := range table {
		if table[nr].Handler == syscalls.HandlerUnknown {
			hole = nr
			break
		}
	}

	if hole < 0 {
		t.Skip("native table has no holes on this platform")
	}

	require.NoError(t, ch.Register())
	defer ch.Unregister()

	require.NoError(t, ch.Reconcile([]filter.Enabler{
		{Kind: filter.MatchExact, Pattern: filter.WildcardPattern},
	}))

	hub.Enter(false, hole)

	got := sink.records()
	require.Len(t, got, 1)
	require.True(t, got[0].unknown)
	require.Equal(t, hole, got[0].nr)
}

func TestChannelQueryMask(t *testing.T) {
	ch, _, _ := newTestChannel(t)
	c := syscalls.Load()

	require.NoError(t, ch.Register())
	defer ch.Unregister()

	require.NoError(t, ch.EnableEvent(eventFor(t, syscalls.NativeExit, "close")))

	closeNr, err := c.ResolveNative("close")
	require.NoError(t, err)

	mask := ch.QueryMask()
	require.NotZero(t, mask[closeNr/64]&(1<<(closeNr%64)), "exit-only enable must surface in the mask")

	// enable-all saturates the mask
	require.NoError(t, ch.Reconcile([]filter.Enabler{
		{Kind: filter.MatchExact, Pattern: filter.WildcardPattern},
	}))

	mask = ch.QueryMask()
	require.NotZero(t, mask[0]&1)
}

func TestChannelDestroyWhileAttached(t *testing.T) {
	ch, _, _ := newTestChannel(t)

	require.NoError(t, ch.Register())

	require.ErrorIs(t, ch.Destroy(), filter.ErrStillAttached)

	// still functional after the rejected destroy
	require.NoError(t, ch.EnableEvent(eventFor(t, syscalls.NativeEntry, "read")))

	ch.Unregister()
	require.NoError(t, ch.Destroy())
}

func TestChannelLifecycle(t *testing.T) {
	ch, _, _ := newTestChannel(t)

	require.NoError(t, ch.Register())
	require.NoError(t, ch.Register()) // idempotent

	ch.Unregister()
	ch.Unregister() // idempotent

	require.NoError(t, ch.Destroy())
	require.NoError(t, ch.Destroy()) // idempotent

	require.ErrorIs(t, ch.Register(), filter.ErrDestroyed)
	require.ErrorIs(t, ch.Reconcile(nil), filter.ErrDestroyed)
	require.ErrorIs(t, ch.EnableEvent(eventFor(t, syscalls.NativeEntry, "read")), filter.ErrDestroyed)
}

type blockingSink struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSink) Record(*filter.Event, int) {
	s.entered <- struct{}{}
	<-s.release
}

// Destroy must wait out dispatch calls that began before the probes
// were detached.
func TestChannelDestroyWaitsForInFlightDispatch(t *testing.T) {
	hub := probes.NewHub()
	sink := &blockingSink{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}

	ch := filter.NewChannel(zap.NewNop().Sugar(), syscalls.Load(), hub, sink)

	require.NoError(t, ch.Register())
	require.NoError(t, ch.Reconcile([]filter.Enabler{
		{Kind: filter.MatchExact, Pattern: filter.WildcardPattern},
	}))

	go hub.Enter(false, 0)
	<-sink.entered // dispatch is now in flight

	ch.Unregister()

	destroyed := make(chan error, 1)

	go func() {
		destroyed <- ch.Destroy()
	}()

	select {
	case <-destroyed:
		t.Fatal("Destroy returned while a dispatch call was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(sink.release)

	select {
	case err := <-destroyed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Destroy did not complete after dispatch drained")
	}
}
