package multicopter

import "errors"

// ErrInvalidInputLength is returned when the control input vector does not
// line up index-for-index with the rotor layout. It is recoverable: callers
// skip the vehicle for the tick and report the condition.
var ErrInvalidInputLength = errors.New("incorrect control input length")

// ErrDegenerateConstruction is returned when a vehicle cannot be assembled:
// no rotors, an invalid rotor, a non-positive mass or a non-invertible
// inertia tensor. No usable value is returned alongside it.
var ErrDegenerateConstruction = errors.New("degenerate vehicle construction")
