package filter

import (
	"errors"
	"testing"
)

func TestDecomposeName(t *testing.T) {
	tests := []struct {
		raw    string
		bare   string
		exit   bool
		compat bool
		err    error
	}{
		{raw: "syscall_entry_openat", bare: "openat"},
		{raw: "syscall_exit_openat", bare: "openat", exit: true},
		{raw: "compat_syscall_entry_mmap2", bare: "mmap2", compat: true},
		{raw: "compat_syscall_exit_mmap2", bare: "mmap2", exit: true, compat: true},
		{raw: "openat", err: ErrMalformedName},
		{raw: "compat_openat", err: ErrMalformedName},
		{raw: "", err: ErrMalformedName},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			d, err := decomposeName(tt.raw)

			if !errors.Is(err, tt.err) {
				t.Fatalf("decomposeName(%q) err = %v, expected %v", tt.raw, err, tt.err)
			}

			if err != nil {
				return
			}

			if d.bare != tt.bare || d.exit != tt.exit || d.compat != tt.compat {
				t.Errorf("decomposeName(%q) = %+v", tt.raw, d)
			}
		})
	}
}

func TestMatcherScopes(t *testing.T) {
	tests := []struct {
		name    string
		enabler Enabler
		raw     string
		want    bool
	}{
		{
			name:    "exact match entry",
			enabler: Enabler{Kind: MatchExact, Pattern: "openat"},
			raw:     "syscall_entry_openat",
			want:    true,
		},
		{
			name:    "exact mismatch",
			enabler: Enabler{Kind: MatchExact, Pattern: "openat"},
			raw:     "syscall_entry_open",
			want:    false,
		},
		{
			name:    "entry scope rejects exit",
			enabler: Enabler{Kind: MatchExact, Point: PointEntry, Pattern: "openat"},
			raw:     "syscall_exit_openat",
			want:    false,
		},
		{
			name:    "exit scope rejects entry",
			enabler: Enabler{Kind: MatchExact, Point: PointExit, Pattern: "openat"},
			raw:     "syscall_entry_openat",
			want:    false,
		},
		{
			name:    "native scope rejects compat",
			enabler: Enabler{Kind: MatchExact, ABI: ABINative, Pattern: "openat"},
			raw:     "compat_syscall_entry_openat",
			want:    false,
		},
		{
			name:    "compat scope rejects native",
			enabler: Enabler{Kind: MatchExact, ABI: ABICompat, Pattern: "openat"},
			raw:     "syscall_entry_openat",
			want:    false,
		},
		{
			name:    "compat scope accepts compat",
			enabler: Enabler{Kind: MatchExact, ABI: ABICompat, Pattern: "openat"},
			raw:     "compat_syscall_entry_openat",
			want:    true,
		},
		{
			name:    "glob matches prefix family",
			enabler: Enabler{Kind: MatchGlob, Pattern: "open*"},
			raw:     "syscall_entry_openat",
			want:    true,
		},
		{
			name:    "glob matches against bare name not raw name",
			enabler: Enabler{Kind: MatchGlob, Pattern: "syscall_*"},
			raw:     "syscall_entry_openat",
			want:    false,
		},
		{
			name:    "glob question mark",
			enabler: Enabler{Kind: MatchGlob, Pattern: "rea?"},
			raw:     "syscall_exit_read",
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := compileEnabler(tt.enabler)
			if err != nil {
				t.Fatalf("compileEnabler() err = %v", err)
			}

			got, err := m.match(tt.raw)
			if err != nil {
				t.Fatalf("match(%q) err = %v", tt.raw, err)
			}

			if got != tt.want {
				t.Errorf("match(%q) = %v, expected %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestMatcherMalformedName(t *testing.T) {
	m, err := compileEnabler(Enabler{Kind: MatchExact, Pattern: "openat"})
	if err != nil {
		t.Fatalf("compileEnabler() err = %v", err)
	}

	if _, err := m.match("not_an_instrumentation_name"); !errors.Is(err, ErrMalformedName) {
		t.Errorf("match() err = %v, expected ErrMalformedName", err)
	}
}

func TestCompileEnablerRejectsNumeric(t *testing.T) {
	if _, err := compileEnabler(Enabler{Kind: MatchNumber}); !errors.Is(err, ErrUnimplemented) {
		t.Errorf("compileEnabler(numeric) err = %v, expected ErrUnimplemented", err)
	}
}

func TestCompileEnablerRejectsBadGlob(t *testing.T) {
	if _, err := compileEnabler(Enabler{Kind: MatchGlob, Pattern: "[unterminated"}); !errors.Is(err, ErrInvalid) {
		t.Errorf("compileEnabler(bad glob) err = %v, expected ErrInvalid", err)
	}
}

func TestIsWildcard(t *testing.T) {
	if !(Enabler{Kind: MatchExact, Pattern: WildcardPattern}).IsWildcard() {
		t.Error("universal exact * should be the wildcard")
	}

	for _, e := range []Enabler{
		{Kind: MatchGlob, Pattern: WildcardPattern},
		{Kind: MatchExact, Point: PointEntry, Pattern: WildcardPattern},
		{Kind: MatchExact, ABI: ABICompat, Pattern: WildcardPattern},
		{Kind: MatchExact, Pattern: "openat"},
	} {
		if e.IsWildcard() {
			t.Errorf("%+v should not be the wildcard", e)
		}
	}
}
