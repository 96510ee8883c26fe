package gpu

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WorkgroupSize is the number of invocations per workgroup for every kernel.
const WorkgroupSize = 256

var (
	// ErrBindingLayout indicates a bind group with the wrong number of entries.
	ErrBindingLayout = errors.New("gpu: bind group does not match kernel layout")

	// ErrBufferRange indicates an out of range buffer read or write.
	ErrBufferRange = errors.New("gpu: buffer access out of range")
)

// Kernel identifies a compute program.
type Kernel int

const (
	KernelClear Kernel = iota
	KernelCount
	KernelPrefix
	KernelSort
	KernelForces
	KernelAdvance
	numKernels
)

var kernelNames = [numKernels]string{"clear", "count", "prefix", "sort", "forces", "advance"}

// kernelArity is the number of bound buffers each kernel expects.
var kernelArity = [numKernels]int{2, 3, 4, 7, 9, 3}

func (k Kernel) String() string {
	if k < 0 || k >= numKernels {
		return fmt.Sprintf("kernel(%d)", int(k))
	}
	return kernelNames[k]
}

// Arity returns the number of buffers bound to k.
func (k Kernel) Arity() int { return kernelArity[k] }

// Buffer is a device allocation of 32-bit words.
type Buffer interface {
	ID() uint64
	Label() string
	Len() int
	Destroyed() bool
}

// BindGroup is an ordered set of buffers bound to a kernel's slots.
type BindGroup struct {
	Kernel  Kernel
	Entries []Buffer
}

// Stale reports whether any bound buffer has been destroyed.
func (g *BindGroup) Stale() bool {
	for _, b := range g.Entries {
		if b.Destroyed() {
			return true
		}
	}
	return false
}

// Dispatch is one recorded kernel launch.
type Dispatch struct {
	Label       string
	Group       *BindGroup
	Invocations int
}

// Workgroups is the number of workgroups covering the invocations.
func (d Dispatch) Workgroups() int {
	return (d.Invocations + WorkgroupSize - 1) / WorkgroupSize
}

// SubmitError reports the dispatch at which a submission failed.
type SubmitError struct {
	Index int
	Label string
	Err   error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("gpu: dispatch %d (%s): %v", e.Index, e.Label, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// Device is a compute device executing word-buffer kernels.
//
// Submit executes dispatches in order with a full memory barrier between
// them. ReadBuffer blocks until all submitted work has completed. A device
// is used from a single goroutine.
type Device interface {
	Name() string
	CreateBuffer(label string, words int) (Buffer, error)
	DestroyBuffer(b Buffer)
	WriteBuffer(b Buffer, offset int, data []uint32) error
	ReadBuffer(ctx context.Context, b Buffer, offset int, dst []uint32) error
	CreateBindGroup(k Kernel, entries ...Buffer) (*BindGroup, error)
	Submit(ctx context.Context, cmds []Dispatch) error
	// LastTimings holds one duration per dispatch of the last successful
	// submission.
	LastTimings() []time.Duration
	Release()
}

func checkBindGroup(k Kernel, entries []Buffer) error {
	if k < 0 || k >= numKernels {
		return fmt.Errorf("%w: unknown kernel %d", ErrBindingLayout, int(k))
	}
	if len(entries) != k.Arity() {
		return fmt.Errorf("%w: %s wants %d buffers, got %d", ErrBindingLayout, k, k.Arity(), len(entries))
	}
	for i, b := range entries {
		if b == nil {
			return fmt.Errorf("%w: %s slot %d is nil", ErrBindingLayout, k, i)
		}
	}
	return nil
}
