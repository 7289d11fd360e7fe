// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// Handle provides GPU device access from a host application.
//
// The renderer receives its device from the host, it does not create one.
// A host that already owns a GPU context (a windowing framework, a compute
// runtime) implements gpucontext.DeviceProvider and passes it to the wgpu
// backend (see the wgpu sub-package's Adopt), which then shares that
// device instead of opening its own.
//
// Handle is an alias for gpucontext.DeviceProvider so it stays fully
// compatible with the rest of the gpucontext ecosystem.
type Handle = gpucontext.DeviceProvider

// NullHandle is a Handle with no device behind it. Hosts use it where a
// provider is required but only CPU execution is available.
type NullHandle struct{}

// Device returns nil for the null handle.
func (NullHandle) Device() gpucontext.Device { return nil }

// Queue returns nil for the null handle.
func (NullHandle) Queue() gpucontext.Queue { return nil }

// Adapter returns nil for the null handle.
func (NullHandle) Adapter() gpucontext.Adapter { return nil }

// SurfaceFormat returns undefined format for the null handle.
func (NullHandle) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatUndefined
}

// AdapterInfo returns unknown adapter info for the null handle.
func (NullHandle) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Type: gpucontext.AdapterTypeUnknown}
}

// Ensure NullHandle implements Handle.
var _ Handle = NullHandle{}
