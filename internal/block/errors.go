package block

import "errors"

// ErrFatal wraps every fatal invariant violation: the run must abort
// without advancing past the last safe checkpoint.
var ErrFatal = errors.New("block: fatal invariant violation")

// ErrMissingPrice marks a missing oracle price, distinguished from the
// general ErrFatal family only so callers can special-case it if they
// choose; it still satisfies errors.Is(err, ErrFatal).
var ErrMissingPrice = errors.New("block: missing price")
