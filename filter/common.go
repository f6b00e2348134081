package filter

import "errors"

var (
	ErrAlreadyEnabled = errors.New("syscall already enabled")
	ErrNotEnabled     = errors.New("syscall not enabled")
	ErrInvalid        = errors.New("invalid enabler")
	ErrUnimplemented  = errors.New("match kind not implemented")
	ErrMalformedName  = errors.New("malformed instrumentation name")
	ErrStillAttached  = errors.New("probes still attached")
	ErrDestroyed      = errors.New("channel destroyed")
)
