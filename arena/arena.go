// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package arena provides bump-allocated GPU memory for frame-scoped
// buffers, and a fence-gated pool that recycles arenas across frames.
//
// An Arena wraps one large device buffer and hands out aligned regions by
// advancing an offset. Nothing is freed individually; Reset reclaims the
// whole arena in one step once the frame that used it has retired on the
// device. The Pool enforces that ordering: an arena released with a fence
// is not handed out again until the fence has signaled.
package arena

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/catalina/device"
	"github.com/gogpu/catalina/estimate"
)

// RegionAlign is the byte alignment of every sub-allocation. 256 covers
// the storage and uniform offset alignment of all supported backends.
const RegionAlign = 256

// Overflow reports a sub-allocation that did not fit in the arena.
// It carries the demand so the caller can grow the arena and retry.
type Overflow struct {
	Requested uint64
	Available uint64
}

func (e *Overflow) Error() string {
	return fmt.Sprintf("arena: allocation of %d bytes exceeds %d available", e.Requested, e.Available)
}

// Region is a sub-range of an arena's buffer. Regions are plain values;
// they borrow the arena's buffer and become invalid at the next Reset.
type Region struct {
	Buffer device.Buffer
	Offset uint64
	Size   uint64
}

// Arena is a bump allocator over one device buffer.
// It is not safe for concurrent use; the pool serializes access.
type Arena struct {
	dev  device.Device
	buf  device.Buffer
	size uint64
	off  uint64

	// fence guards reuse: set on release, waited before the next acquire.
	fence device.Fence
}

// New creates an arena backed by a fresh device buffer of the given size.
func New(dev device.Device, size uint64, label string) (*Arena, error) {
	buf, err := dev.CreateBuffer(&device.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageUniform |
			gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("arena: create backing buffer: %w", err)
	}
	return &Arena{dev: dev, buf: buf, size: size}, nil
}

// Size returns the arena's total capacity in bytes.
func (a *Arena) Size() uint64 { return a.size }

// Used returns the bytes consumed since the last Reset.
func (a *Arena) Used() uint64 { return a.off }

// Buffer returns the backing device buffer.
func (a *Arena) Buffer() device.Buffer { return a.buf }

// Alloc bump-allocates an aligned region. On overflow the arena is left
// unchanged and an *Overflow error reports the shortfall.
func (a *Arena) Alloc(size uint64) (Region, error) {
	off := estimate.NextMultipleOf(a.off, uint64(RegionAlign))
	if size > a.size || off > a.size-size {
		return Region{}, &Overflow{Requested: size, Available: a.size - min(off, a.size)}
	}
	a.off = off + size
	return Region{Buffer: a.buf, Offset: off, Size: size}, nil
}

// Reset reclaims the whole arena. The caller must guarantee no in-flight
// device work still references it; the pool does this with fences.
func (a *Arena) Reset() { a.off = 0 }

// grow replaces the backing buffer with a larger one. Existing regions
// become invalid; only callable on a reset arena.
func (a *Arena) grow(size uint64, label string) error {
	buf, err := a.dev.CreateBuffer(&device.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageUniform |
			gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("arena: grow to %d bytes: %w", size, err)
	}
	a.dev.DestroyBuffer(a.buf)
	a.buf = buf
	a.size = size
	a.off = 0
	return nil
}

// destroy releases the backing buffer and any pending fence.
func (a *Arena) destroy() {
	if a.fence != nil {
		a.dev.DestroyFence(a.fence)
		a.fence = nil
	}
	if a.buf != nil {
		a.dev.DestroyBuffer(a.buf)
		a.buf = nil
	}
	a.size = 0
	a.off = 0
}
