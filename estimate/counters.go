// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package estimate

import "encoding/binary"

// CountersLen is the wire size of the counter block in bytes.
const CountersLen = countersSize

// Counters is the bump counter block the stage programs maintain in the
// counters buffer. Each stage increments its counters with atomics and
// sets Failed instead of writing past a buffer's capacity, so the block
// read back after a frame reports both success and, on overflow, the
// exact demand the retry must satisfy.
//
// The layout must match the counters struct in the WGSL stage programs:
// eight uint32 words, little-endian, trailing words reserved.
type Counters struct {
	// Failed is nonzero if any stage exhausted a buffer.
	Failed uint32

	// Elements is the number of element records emitted.
	Elements uint32

	// BinEntries is the total number of bin entries demanded, including
	// those dropped after overflow.
	BinEntries uint32

	// PtclWords is the peak per-tile command list demand in words.
	// Tiles get equal fixed windows of the ptcl buffer, so sizing from
	// the peak guarantees every tile fits.
	PtclWords uint32
}

// HasFailed reports whether any stage signaled overflow.
func (c Counters) HasFailed() bool { return c.Failed != 0 }

// DecodeCounters parses a counter block read back from the device.
// The slice must be at least CountersLen bytes.
func DecodeCounters(b []byte) Counters {
	return Counters{
		Failed:     binary.LittleEndian.Uint32(b[0:]),
		Elements:   binary.LittleEndian.Uint32(b[4:]),
		BinEntries: binary.LittleEndian.Uint32(b[8:]),
		PtclWords:  binary.LittleEndian.Uint32(b[12:]),
	}
}

// Encode serializes the counter block into its wire layout. Used by the
// reference cpu device and by tests.
func (c Counters) Encode() []byte {
	b := make([]byte, CountersLen)
	binary.LittleEndian.PutUint32(b[0:], c.Failed)
	binary.LittleEndian.PutUint32(b[4:], c.Elements)
	binary.LittleEndian.PutUint32(b[8:], c.BinEntries)
	binary.LittleEndian.PutUint32(b[12:], c.PtclWords)
	return b
}
