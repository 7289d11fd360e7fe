// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package catalina

import (
	"github.com/gogpu/catalina/pipeline"
	"github.com/gogpu/catalina/scene"
)

// OutputFormat selects the pixel layout of the rendered target.
type OutputFormat int

const (
	// FormatRGBA8 is 8-bit RGBA, R first in memory. The default.
	FormatRGBA8 OutputFormat = iota

	// FormatBGRA8 is 8-bit BGRA, the common swapchain layout.
	FormatBGRA8
)

// String returns the format name.
func (f OutputFormat) String() string {
	switch f {
	case FormatRGBA8:
		return "rgba8"
	case FormatBGRA8:
		return "bgra8"
	}
	return "unknown"
}

// RenderConfig describes the target of one render call. Immutable per
// call.
type RenderConfig struct {
	// Width and Height are the target dimensions in pixels.
	Width  uint32
	Height uint32

	// Antialiasing selects the fine-stage coverage method.
	Antialiasing pipeline.AAMode

	// BaseColor is the background the target is cleared to before any
	// element is composited.
	BaseColor scene.RGBA

	// Format is the output pixel layout.
	Format OutputFormat
}
