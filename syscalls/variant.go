package syscalls

// Variant identifies one of the four instrumentation points a syscall
// can be observed at: the (entry/exit × native/compat) product.
type Variant uint8

const (
	NativeEntry Variant = iota
	NativeExit
	CompatEntry
	CompatExit

	// NumVariants sizes per-variant arrays.
	NumVariants = 4
)

// VariantOf maps the two event discriminators onto a Variant.
func VariantOf(exit, compat bool) Variant {
	v := NativeEntry
	if exit {
		v = NativeExit
	}

	if compat {
		v += 2
	}

	return v
}

// IsExit reports whether v observes syscall return rather than invocation.
func (v Variant) IsExit() bool {
	return v == NativeExit || v == CompatExit
}

// IsCompat reports whether v belongs to the compatibility ABI.
func (v Variant) IsCompat() bool {
	return v == CompatEntry || v == CompatExit
}

func (v Variant) String() string {
	switch v {
	case NativeEntry:
		return "native-entry"
	case NativeExit:
		return "native-exit"
	case CompatEntry:
		return "compat-entry"
	case CompatExit:
		return "compat-exit"
	default:
		return "invalid-variant"
	}
}
