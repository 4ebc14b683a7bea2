package streetsim

import "github.com/pkg/errors"

// Error taxonomy of the data-model primitives. Call sites wrap these with
// errors.Wrapf to attach ids and indexes; callers classify with errors.Is.
var (
	ErrOutOfRange        = errors.New("index out of range")
	ErrDimensionMismatch = errors.New("dimensions do not match")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrDuplicateOccupant = errors.New("occupant already present")
	ErrNotFound          = errors.New("not found")
	ErrNotConfigured     = errors.New("not configured")
	ErrInvalidInput      = errors.New("invalid input")
)
