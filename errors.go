// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package catalina

import (
	"errors"
	"fmt"

	"github.com/gogpu/catalina/device"
	"github.com/gogpu/catalina/estimate"
)

// ErrDeviceLost is returned when the device is irrecoverably gone. The
// renderer's arena pool is invalidated; the caller must reinitialize the
// device and create a new renderer. Alias of device.ErrDeviceLost so
// callers can match it without importing the device package.
var ErrDeviceLost = device.ErrDeviceLost

// ErrClosed is returned when rendering with a closed renderer.
var ErrClosed = errors.New("catalina: renderer closed")

// RenderOverflowError is returned when a frame overflows its buffers even
// after the single permitted resize-and-retry. It is fatal for the render
// call; the counters carry the demand observed on the final attempt.
type RenderOverflowError struct {
	Attempts int
	Counters estimate.Counters
}

func (e *RenderOverflowError) Error() string {
	return fmt.Sprintf("catalina: render overflow after %d attempts (elements=%d bin_entries=%d ptcl_words=%d)",
		e.Attempts, e.Counters.Elements, e.Counters.BinEntries, e.Counters.PtclWords)
}

// UnsupportedConfigError reports a render configuration the renderer
// cannot execute, detected before any dispatch.
type UnsupportedConfigError struct {
	Reason string
}

func (e *UnsupportedConfigError) Error() string {
	return "catalina: unsupported config: " + e.Reason
}
