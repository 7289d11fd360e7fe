// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

// Tag identifies one command in the encoded stream. Tags are stored as a
// full uint32 word so the stream stays 4-byte aligned for GPU consumption.
// Groups by high nibble of the low byte:
//
//	0x2X: draw commands
//	0x3X: layer commands
//	0x4X: clip commands
type Tag uint32

const (
	// TagFillRect fills an axis-aligned rectangle.
	// Payload: 4 float32 [x0, y0, x1, y1], 1 uint32 packed RGBA color
	// (R in the low byte).
	TagFillRect Tag = 0x21

	// TagPushLayer begins a compositing layer.
	// Payload: 1 float32 layer alpha.
	TagPushLayer Tag = 0x31

	// TagPopLayer ends the most recent layer. No payload.
	TagPopLayer Tag = 0x32

	// TagBeginClip pushes an axis-aligned clip rectangle.
	// Payload: 4 float32 [x0, y0, x1, y1].
	TagBeginClip Tag = 0x41

	// TagEndClip pops the most recent clip. No payload.
	TagEndClip Tag = 0x42
)

// payloadWords returns the number of 4-byte payload words following the tag.
func (t Tag) payloadWords() int {
	switch t {
	case TagFillRect:
		return 5
	case TagPushLayer:
		return 1
	case TagBeginClip:
		return 4
	default:
		return 0
	}
}

// IsDraw reports whether the tag is a draw command.
func (t Tag) IsDraw() bool { return t&0xf0 == 0x20 }
