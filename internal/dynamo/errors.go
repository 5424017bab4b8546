package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for kernel operations.
var (
	// ErrValidation indicates malformed input: mismatched lengths, empty
	// required collections, non-positive radii.
	ErrValidation = errors.New("dynamo: invalid input")

	// ErrInvariant indicates a broken structural or physical invariant.
	// It is a programming error, never a recoverable condition.
	ErrInvariant = errors.New("dynamo: invariant violated")

	// ErrUnsupported indicates an operation the kernel does not implement
	// (self-intersecting clumps, multi-node mass lumping, ...).
	ErrUnsupported = errors.New("dynamo: operation not supported")

	// ErrPrecondition indicates the object graph is not in a state which
	// permits the operation (e.g. removing a clumped node).
	ErrPrecondition = errors.New("dynamo: precondition failed")

	// ErrNotFound indicates a particle, node or contact that does not exist.
	ErrNotFound = errors.New("dynamo: not found")

	// ErrInvalidState indicates NaN or Inf in kinematic state.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")
)

// OpError wraps one of the domain errors with the failing operation.
type OpError struct {
	Op     string
	Kind   error
	Detail string
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Detail)
}

func (e *OpError) Unwrap() error {
	return e.Kind
}

// Errorf builds an *OpError of the given kind.
func Errorf(op string, kind error, format string, args ...any) error {
	return &OpError{Op: op, Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// SimulationError wraps an error with stepping context.
type SimulationError struct {
	Step    int
	Time    float64
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("step %d (t=%.6g): %v", e.Step, e.Time, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
