// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrTruncatedStream is returned when a command's payload extends past the
// end of the encoded stream.
var ErrTruncatedStream = errors.New("scene: truncated command stream")

// ErrUnknownTag is returned when the stream contains a tag the decoder
// does not recognize.
var ErrUnknownTag = errors.New("scene: unknown tag")

// Decoder walks an encoded command stream. It is used by the reference
// cpu device's element-processing stage and by tests; GPU stage programs
// read the same layout directly from the scene buffer.
//
// Usage:
//
//	dec := scene.NewDecoder(s.Data())
//	for dec.Next() {
//	    switch dec.Tag() { ... }
//	}
//	if err := dec.Err(); err != nil { ... }
type Decoder struct {
	data []byte
	pos  int
	tag  Tag
	args [5]uint32
	err  error
}

// NewDecoder creates a decoder over an encoded stream.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Next advances to the next command. It returns false at end of stream or
// on a malformed command; check Err after the loop.
func (d *Decoder) Next() bool {
	if d.err != nil || d.pos >= len(d.data) {
		return false
	}
	if d.pos+4 > len(d.data) {
		d.err = ErrTruncatedStream
		return false
	}
	d.tag = Tag(binary.LittleEndian.Uint32(d.data[d.pos:]))
	d.pos += 4

	n := d.tag.payloadWords()
	switch d.tag {
	case TagFillRect, TagPushLayer, TagPopLayer, TagBeginClip, TagEndClip:
	default:
		d.err = ErrUnknownTag
		return false
	}
	if d.pos+4*n > len(d.data) {
		d.err = ErrTruncatedStream
		return false
	}
	for i := 0; i < n; i++ {
		d.args[i] = binary.LittleEndian.Uint32(d.data[d.pos:])
		d.pos += 4
	}
	return true
}

// Tag returns the tag of the current command.
func (d *Decoder) Tag() Tag { return d.tag }

// Err returns the first decode error encountered, if any.
func (d *Decoder) Err() error { return d.err }

// Rect returns the rectangle payload of a TagFillRect or TagBeginClip.
func (d *Decoder) Rect() (x0, y0, x1, y1 float32) {
	return math.Float32frombits(d.args[0]),
		math.Float32frombits(d.args[1]),
		math.Float32frombits(d.args[2]),
		math.Float32frombits(d.args[3])
}

// Color returns the packed RGBA payload of a TagFillRect.
func (d *Decoder) Color() uint32 { return d.args[4] }

// Alpha returns the alpha payload of a TagPushLayer.
func (d *Decoder) Alpha() float32 { return math.Float32frombits(d.args[0]) }
