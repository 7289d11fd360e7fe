// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package device defines the compute-backend contract the render
// orchestrator depends on: buffer allocation within a byte budget,
// dispatch submission, fence signaling, small-buffer readback, and
// device-loss notification.
//
// Backends register themselves through the registry (see registry.go) and
// are selected once at initialization, never per frame. Two backends ship
// with this module: cpu (deterministic reference implementation) and wgpu
// (GPU execution via gogpu/wgpu).
package device

import (
	"errors"
	"time"

	"github.com/gogpu/gputypes"
)

// Common device errors.
var (
	// ErrDeviceLost is returned once the device is irrecoverably gone.
	// All resources created from the device are invalid after this.
	ErrDeviceLost = errors.New("device: lost")

	// ErrDeviceClosed is returned when operating on a closed device.
	ErrDeviceClosed = errors.New("device: closed")

	// ErrBudgetExceeded is returned when a buffer allocation would exceed
	// the device's configured memory budget.
	ErrBudgetExceeded = errors.New("device: memory budget exceeded")

	// ErrUnknownProgram is returned when a dispatch references a program
	// the device cannot execute.
	ErrUnknownProgram = errors.New("device: unknown program")

	// ErrFenceTimeout is returned when a fence wait exceeds its deadline.
	ErrFenceTimeout = errors.New("device: fence wait timed out")
)

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	// Label is an optional debug name.
	Label string

	// Size is the buffer size in bytes.
	Size uint64

	// Usage specifies how the buffer will be used.
	Usage gputypes.BufferUsage
}

// Buffer is an opaque handle to device-visible memory. Buffers are created
// and destroyed through the owning Device; the orchestrator only ever
// passes them back in bindings and readback calls.
type Buffer interface {
	// Label returns the debug name the buffer was created with.
	Label() string

	// Size returns the buffer size in bytes.
	Size() uint64
}

// Program is an opaque handle to a compiled compute program, one per
// pipeline stage. Programs are produced ahead of a frame by the program
// cache; the orchestrator never compiles anything itself.
type Program interface {
	// Name returns the stage name the program was compiled for.
	Name() string
}

// Fence is a synchronization primitive signaled by the device when the
// submission it was attached to has finished executing.
type Fence interface{}

// Binding attaches a buffer range to one slot of a dispatch. A zero Size
// binds the remainder of the buffer from Offset.
type Binding struct {
	Slot     uint32
	Buffer   Buffer
	Offset   uint64
	Size     uint64
	ReadOnly bool
}

// Dispatch is one compute-stage invocation: a program, its buffer
// bindings, and the workgroup grid to launch.
type Dispatch struct {
	Label    string
	Program  Program
	Bindings []Binding
	Groups   [3]uint32
}

// Queue submits work to the device and moves data across the host
// boundary. Submission is asynchronous: Submit returns as soon as the
// batch is queued, and completion is observed through the attached fence.
// Dispatches within one batch execute in order; each dispatch observes
// all buffer writes of the dispatches before it.
type Queue interface {
	// WriteBuffer schedules a host-to-device copy. The data is consumed
	// before WriteBuffer returns and lands before any later submission.
	WriteBuffer(buf Buffer, offset uint64, data []byte) error

	// Submit enqueues a batch of dispatches. The fence, if non-nil, is
	// signaled when every dispatch in the batch has completed.
	Submit(batch []Dispatch, fence Fence) error

	// ReadBuffer copies len(dst) bytes from the buffer into dst. It
	// blocks until previously submitted work touching the buffer has
	// completed. Intended for small diagnostic and output readbacks.
	ReadBuffer(buf Buffer, offset uint64, dst []byte) error
}

// Device is the capability surface of one compute backend instance.
// Implementations must be safe for concurrent use.
type Device interface {
	// Name returns the backend identifier (e.g. "cpu", "wgpu").
	Name() string

	// CreateBuffer allocates device-visible memory.
	CreateBuffer(desc *BufferDescriptor) (Buffer, error)

	// DestroyBuffer releases a buffer. Destroying a buffer still
	// referenced by in-flight work is a caller error.
	DestroyBuffer(buf Buffer)

	// CreateProgram compiles WGSL source into an executable program for
	// the named stage.
	CreateProgram(name, source string) (Program, error)

	// DestroyProgram releases a compiled program.
	DestroyProgram(p Program)

	// CreateFence creates an unsignaled fence.
	CreateFence() (Fence, error)

	// DestroyFence releases a fence.
	DestroyFence(f Fence)

	// Signaled polls a fence without blocking.
	Signaled(f Fence) (bool, error)

	// Wait blocks until the fence signals or the timeout elapses.
	// It returns false with a nil error on timeout only if the backend
	// cannot distinguish timeout from failure; otherwise ErrFenceTimeout.
	Wait(f Fence, timeout time.Duration) (bool, error)

	// Queue returns the device's submission queue.
	Queue() Queue

	// Lost returns a channel that receives exactly one error when the
	// device is irrecoverably lost. After that, all operations fail with
	// ErrDeviceLost and the caller must discard every resource created
	// from this device.
	Lost() <-chan error

	// Close releases the device and all remaining resources.
	Close()
}
