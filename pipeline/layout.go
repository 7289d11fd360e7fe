// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"encoding/binary"
	"math"
)

// AAMode selects the antialiasing method of the fine stage.
type AAMode uint32

const (
	// AAArea is analytic area antialiasing, supported everywhere.
	AAArea AAMode = iota

	// AAMSAA uses multisampling in the fine stage. Requires a fine
	// program variant the backend may not provide.
	AAMSAA

	// AANone disables antialiasing.
	AANone
)

// String returns the mode name as used in configuration files.
func (m AAMode) String() string {
	switch m {
	case AAArea:
		return "area"
	case AAMSAA:
		return "msaa"
	case AANone:
		return "none"
	}
	return "unknown"
}

// ConfigUniform is the per-frame configuration block every stage reads.
//
// Layout must match struct Config in the WGSL stage programs: sixteen
// uint32 words, little-endian, trailing words reserved.
type ConfigUniform struct {
	// WidthInTiles is the tile grid width.
	WidthInTiles uint32
	// HeightInTiles is the tile grid height.
	HeightInTiles uint32
	// TargetWidth is the target width in pixels.
	TargetWidth uint32
	// TargetHeight is the target height in pixels.
	TargetHeight uint32
	// BaseColor is the packed RGBA background color.
	BaseColor uint32
	// NumElements is the number of scene elements to process.
	NumElements uint32
	// ElementsCap is the element record capacity.
	ElementsCap uint32
	// BinDataCap is the bin data capacity in entries.
	BinDataCap uint32
	// PtclCap is the per-tile command list capacity in words.
	PtclCap uint32
	// AA is the antialiasing mode.
	AA AAMode
}

// ConfigUniformLen is the serialized size of ConfigUniform in bytes.
const ConfigUniformLen = 64

// ToBytes serializes the config block into its WGSL layout.
func (c *ConfigUniform) ToBytes() []byte {
	b := make([]byte, ConfigUniformLen)
	le := binary.LittleEndian
	le.PutUint32(b[0:], c.WidthInTiles)
	le.PutUint32(b[4:], c.HeightInTiles)
	le.PutUint32(b[8:], c.TargetWidth)
	le.PutUint32(b[12:], c.TargetHeight)
	le.PutUint32(b[16:], c.BaseColor)
	le.PutUint32(b[20:], c.NumElements)
	le.PutUint32(b[24:], c.ElementsCap)
	le.PutUint32(b[28:], c.BinDataCap)
	le.PutUint32(b[32:], c.PtclCap)
	le.PutUint32(b[36:], uint32(c.AA))
	return b
}

// ConfigFromBytes parses a serialized config block. Used by the reference
// cpu device.
func ConfigFromBytes(b []byte) ConfigUniform {
	le := binary.LittleEndian
	return ConfigUniform{
		WidthInTiles:  le.Uint32(b[0:]),
		HeightInTiles: le.Uint32(b[4:]),
		TargetWidth:   le.Uint32(b[8:]),
		TargetHeight:  le.Uint32(b[12:]),
		BaseColor:     le.Uint32(b[16:]),
		NumElements:   le.Uint32(b[20:]),
		ElementsCap:   le.Uint32(b[24:]),
		BinDataCap:    le.Uint32(b[28:]),
		PtclCap:       le.Uint32(b[32:]),
		AA:            AAMode(le.Uint32(b[36:])),
	}
}

// ElementRecord is one processed scene element as emitted by the element
// stage: a device-space bounding box, a resolved color, and an element
// kind. Clips are applied during element processing, so records carry
// final geometry.
//
// Layout must match struct Element in the WGSL stage programs: 32 bytes,
// trailing words reserved.
type ElementRecord struct {
	// X0, Y0, X1, Y1 is the clipped device-space bounding box.
	X0, Y0, X1, Y1 float32
	// Color is the packed RGBA fill color after layer alpha.
	Color uint32
	// Kind discriminates element types.
	Kind uint32
}

// Element kinds.
const (
	// ElementRect is an axis-aligned rectangle fill.
	ElementRect uint32 = 1
)

// ElementRecordLen is the serialized size of ElementRecord in bytes.
const ElementRecordLen = 32

// Encode serializes the record at b[off:]. The slice must have room for
// ElementRecordLen bytes.
func (e *ElementRecord) Encode(b []byte, off int) {
	le := binary.LittleEndian
	le.PutUint32(b[off+0:], math.Float32bits(e.X0))
	le.PutUint32(b[off+4:], math.Float32bits(e.Y0))
	le.PutUint32(b[off+8:], math.Float32bits(e.X1))
	le.PutUint32(b[off+12:], math.Float32bits(e.Y1))
	le.PutUint32(b[off+16:], e.Color)
	le.PutUint32(b[off+20:], e.Kind)
}

// DecodeElementRecord parses the record at b[off:].
func DecodeElementRecord(b []byte, off int) ElementRecord {
	le := binary.LittleEndian
	return ElementRecord{
		X0:    math.Float32frombits(le.Uint32(b[off+0:])),
		Y0:    math.Float32frombits(le.Uint32(b[off+4:])),
		X1:    math.Float32frombits(le.Uint32(b[off+8:])),
		Y1:    math.Float32frombits(le.Uint32(b[off+12:])),
		Color: le.Uint32(b[off+16:]),
		Kind:  le.Uint32(b[off+20:]),
	}
}

// BinHeader is the per-tile record of the binning stage: how many
// elements landed in the tile and where their index chunk starts in the
// bin data buffer.
//
// Layout must match struct BinHeader in the WGSL stage programs:
// two uint32 words.
type BinHeader struct {
	ElementCount uint32
	ChunkOffset  uint32
}

// BinHeaderLen is the serialized size of BinHeader in bytes.
const BinHeaderLen = 8

// Encode serializes the header at b[off:].
func (h *BinHeader) Encode(b []byte, off int) {
	le := binary.LittleEndian
	le.PutUint32(b[off+0:], h.ElementCount)
	le.PutUint32(b[off+4:], h.ChunkOffset)
}

// DecodeBinHeader parses the header at b[off:].
func DecodeBinHeader(b []byte, off int) BinHeader {
	le := binary.LittleEndian
	return BinHeader{
		ElementCount: le.Uint32(b[off+0:]),
		ChunkOffset:  le.Uint32(b[off+4:]),
	}
}

// Per-tile command list opcodes written by the coarse stage and consumed
// by the fine stage. Each tile owns a fixed window of the ptcl buffer;
// commands are word sequences terminated by PtclEnd.
const (
	// PtclEnd terminates a tile's command list. No operands.
	PtclEnd uint32 = 0

	// PtclFill draws a clipped rectangle fill.
	// Operands: 4 float32 bbox words, 1 packed color word.
	PtclFill uint32 = 1
)

// PtclFillLen is the word count of a PtclFill command including opcode.
const PtclFillLen = 6
