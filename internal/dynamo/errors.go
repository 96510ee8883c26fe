package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for simulation operations.
var (
	// ErrInvalidMatrix indicates an interaction or radius matrix with
	// non-finite or out of range entries.
	ErrInvalidMatrix = errors.New("dynamo: invalid matrix")

	// ErrInvalidConfig indicates a simulation config that cannot run.
	ErrInvalidConfig = errors.New("dynamo: invalid config")

	// ErrDimensionMismatch indicates matrices sized for a different type count.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between matrices and config")

	// ErrOutOfMemory indicates a device buffer allocation failed.
	ErrOutOfMemory = errors.New("dynamo: device out of memory")

	// ErrDeviceLost indicates the compute device is gone.
	ErrDeviceLost = errors.New("dynamo: compute device lost")

	// ErrStaleBinding indicates a bind group referencing a destroyed buffer.
	ErrStaleBinding = errors.New("dynamo: bind group references destroyed buffer")

	// ErrEmptyStore indicates a step was requested with no particles loaded.
	ErrEmptyStore = errors.New("dynamo: no particles loaded")

	// ErrNoRules indicates a step was requested before matrices were set.
	ErrNoRules = errors.New("dynamo: interaction rules not set")

	// ErrUnavailable indicates a backend that cannot run on this machine.
	ErrUnavailable = errors.New("dynamo: backend unavailable")
)

// SimulationError wraps an error with step context.
type SimulationError struct {
	Step    int
	Phase   string
	Wrapped error
}

func (e *SimulationError) Error() string {
	if e.Phase == "" {
		return fmt.Sprintf("step %d: %v", e.Step, e.Wrapped)
	}
	return fmt.Sprintf("step %d (%s): %v", e.Step, e.Phase, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
