package filter

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/sctrace/sctrace/syscalls"
)

// MatchKind selects how an enabler's pattern is compared against bare
// syscall names.
type MatchKind uint8

const (
	MatchExact MatchKind = iota
	MatchGlob
	// MatchNumber is reserved: matching by syscall number is part of
	// the control ABI but has never been implemented.
	MatchNumber
)

// PointScope restricts an enabler to syscall entry, exit, or both.
type PointScope uint8

const (
	PointAny PointScope = iota
	PointEntry
	PointExit
)

// ABIScope restricts an enabler to the native ABI, the compat ABI, or
// both.
type ABIScope uint8

const (
	ABIAny ABIScope = iota
	ABINative
	ABICompat
)

// WildcardPattern is the distinguished enable-everything pattern. An
// exact-match enabler carrying it with unrestricted scopes toggles the
// channel's enable-all flag instead of touching bitmaps.
const WildcardPattern = "*"

// Enabler is one control-plane rule describing which syscall events to
// trace. Enablers are transient inputs: the channel reconciles against
// them but never stores them.
type Enabler struct {
	Kind    MatchKind
	Point   PointScope
	ABI     ABIScope
	Pattern string
}

// IsWildcard reports whether e is the distinguished enable-everything
// enabler.
func (e Enabler) IsWildcard() bool {
	return e.Kind == MatchExact &&
		e.Point == PointAny &&
		e.ABI == ABIAny &&
		e.Pattern == WildcardPattern
}

// matcher is an Enabler with its glob pattern compiled, ready to be
// evaluated against every catalog descriptor without further
// allocation.
type matcher struct {
	Enabler
	g glob.Glob
}

// compileEnabler validates e and pre-compiles its pattern.
func compileEnabler(e Enabler) (*matcher, error) {
	m := &matcher{Enabler: e}

	switch e.Kind {
	case MatchExact:
	case MatchGlob:
		g, err := glob.Compile(e.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: bad glob %q: %v", ErrInvalid, e.Pattern, err)
		}

		m.g = g
	case MatchNumber:
		return nil, fmt.Errorf("%w: match by syscall number", ErrUnimplemented)
	default:
		return nil, fmt.Errorf("%w: unknown match kind %d", ErrInvalid, e.Kind)
	}

	return m, nil
}

// decomposedName is a raw instrumentation name split back into its
// discriminators and bare syscall name.
type decomposedName struct {
	bare   string
	exit   bool
	compat bool
}

// decomposeName strips the compat marker, then requires exactly one of
// the entry or exit markers. A name carrying neither cannot come from a
// well-formed catalog.
func decomposeName(raw string) (decomposedName, error) {
	var d decomposedName

	rest, ok := strings.CutPrefix(raw, syscalls.CompatMarker)
	d.compat = ok

	if bare, ok := strings.CutPrefix(rest, syscalls.EntryMarker); ok {
		d.bare = bare
		return d, nil
	}

	if bare, ok := strings.CutPrefix(rest, syscalls.ExitMarker); ok {
		d.bare = bare
		d.exit = true

		return d, nil
	}

	return d, fmt.Errorf("%w: %q has no entry or exit marker", ErrMalformedName, raw)
}

// match evaluates the enabler against one descriptor's raw
// instrumentation name: point scope first, then ABI scope, then the
// bare-name pattern.
func (m *matcher) match(raw string) (bool, error) {
	d, err := decomposeName(raw)
	if err != nil {
		return false, err
	}

	switch m.Point {
	case PointEntry:
		if d.exit {
			return false, nil
		}
	case PointExit:
		if !d.exit {
			return false, nil
		}
	}

	switch m.ABI {
	case ABINative:
		if d.compat {
			return false, nil
		}
	case ABICompat:
		if !d.compat {
			return false, nil
		}
	}

	if m.Kind == MatchExact {
		return d.bare == m.Pattern, nil
	}

	return m.g.Match(d.bare), nil
}
