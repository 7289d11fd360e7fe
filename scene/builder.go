// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"encoding/binary"
	"math"
)

// RGBA is a straight-alpha 8-bit color.
type RGBA struct {
	R, G, B, A uint8
}

// Packed returns the color as a packed uint32 with R in the low byte,
// matching the layout the fine stage reads.
func (c RGBA) Packed() uint32 {
	return uint32(c.R) | uint32(c.G)<<8 | uint32(c.B)<<16 | uint32(c.A)<<24
}

// Builder accumulates commands into an encoded scene. It is a minimal
// encoder covering the command set the reference device understands;
// production encoders live outside this module and only need to produce
// the same stream layout and consistent Summary counts.
//
// Builder is not safe for concurrent use.
type Builder struct {
	buf     []byte
	summary Summary
}

// NewBuilder creates an empty scene builder.
func NewBuilder() *Builder {
	return &Builder{buf: make([]byte, 0, 256)}
}

// Reset clears the builder for reuse without deallocating.
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
	b.summary = Summary{}
}

func (b *Builder) putWord(v uint32) {
	b.buf = binary.LittleEndian.AppendUint32(b.buf, v)
}

func (b *Builder) putFloat(v float32) {
	b.putWord(math.Float32bits(v))
}

// FillRect encodes an axis-aligned filled rectangle. Coordinates are in
// device space; an inverted or empty rectangle is encoded as-is and
// rasterizes to nothing.
func (b *Builder) FillRect(x0, y0, x1, y1 float32, c RGBA) {
	b.putWord(uint32(TagFillRect))
	b.putFloat(x0)
	b.putFloat(y0)
	b.putFloat(x1)
	b.putFloat(y1)
	b.putWord(c.Packed())
	b.summary.Paths++
	b.summary.DrawObjects++
}

// PushLayer begins a compositing layer with the given alpha.
// Layers must be balanced with PopLayer before Build.
func (b *Builder) PushLayer(alpha float32) {
	b.putWord(uint32(TagPushLayer))
	b.putFloat(alpha)
	b.summary.Layers++
}

// PopLayer ends the most recent layer.
func (b *Builder) PopLayer() {
	b.putWord(uint32(TagPopLayer))
}

// BeginClip pushes an axis-aligned clip rectangle. Subsequent draws are
// intersected with it until the matching EndClip.
func (b *Builder) BeginClip(x0, y0, x1, y1 float32) {
	b.putWord(uint32(TagBeginClip))
	b.putFloat(x0)
	b.putFloat(y0)
	b.putFloat(x1)
	b.putFloat(y1)
	b.summary.Clips++
}

// EndClip pops the most recent clip rectangle.
func (b *Builder) EndClip() {
	b.putWord(uint32(TagEndClip))
}

// Summary returns the counts accumulated so far.
func (b *Builder) Summary() Summary { return b.summary }

// Build returns the encoded scene. The builder may be reused after Reset;
// the returned Scene owns a copy of the accumulated stream.
func (b *Builder) Build() *Scene {
	data := make([]byte, len(b.buf))
	copy(data, b.buf)
	return New(data, b.summary)
}
