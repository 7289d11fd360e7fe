// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package scene defines the encoded scene consumed by the render pipeline.
//
// A Scene is an opaque byte stream plus a Summary of element counts. The
// pipeline orchestrator never inspects the stream itself; it sizes buffers
// from the Summary and hands the bytes to the device as-is. The stream
// format documented here is what the reference cpu device and the stage
// programs agree on: a flat sequence of tagged commands, little-endian,
// with no pointers and no variable-length headers.
package scene

// Summary holds the element counts of an encoded scene. The resource
// estimator derives every buffer size from these counts, so an encoder
// must keep them consistent with the stream it produced.
type Summary struct {
	// Paths is the number of encoded path outlines.
	Paths int

	// DrawObjects is the number of draw commands (fills, strokes, images).
	DrawObjects int

	// Clips is the number of clip regions pushed over the scene's lifetime.
	Clips int

	// Glyphs is the number of pre-flattened glyph outlines.
	Glyphs int

	// Layers is the number of compositing layers pushed.
	Layers int
}

// IsEmpty reports whether the summary describes a scene with no content.
func (s Summary) IsEmpty() bool {
	return s.Paths == 0 && s.DrawObjects == 0 && s.Clips == 0 &&
		s.Glyphs == 0 && s.Layers == 0
}

// Scene is an immutable encoded scene: the packed command stream and its
// summary counts. Once submitted for rendering a Scene is never mutated;
// the same Scene value may be rendered any number of times.
type Scene struct {
	data    []byte
	summary Summary
}

// New wraps an encoded command stream and its summary counts.
// The caller must not modify data after the call.
func New(data []byte, summary Summary) *Scene {
	return &Scene{data: data, summary: summary}
}

// Data returns the packed command stream. Callers must treat the returned
// slice as read-only.
func (s *Scene) Data() []byte { return s.data }

// Summary returns the scene's element counts.
func (s *Scene) Summary() Summary { return s.summary }

// IsEmpty reports whether the scene has no content to render.
func (s *Scene) IsEmpty() bool {
	return s == nil || (len(s.data) == 0 && s.summary.IsEmpty())
}
