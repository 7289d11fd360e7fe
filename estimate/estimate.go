// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package estimate derives GPU buffer sizes from scene summary counts.
//
// Two modes exist. Static estimation is pure arithmetic over the summary:
// conservative cost factors per element, fast, and deliberately capable of
// underestimating adversarial scenes (every element overlapping every
// tile). Dynamic estimation sizes buffers from exact counters produced by
// a counting prepass on the device; it never underestimates but costs an
// extra dispatch round-trip.
package estimate

import (
	"fmt"

	"golang.org/x/exp/constraints"

	"github.com/gogpu/catalina/scene"
)

// Tile dimensions in pixels. Must match the stage programs.
const (
	TileWidth  = 16
	TileHeight = 16
)

// Maximum target dimension in pixels, per side.
const MaxDimension = 16384

// Cost factors of the static model, in bytes unless noted. The per-object
// tile factor assumes a typical element covers a handful of tiles; scenes
// where many elements span most of the target exceed it and trigger the
// resize path.
const (
	elementRecordSize = 32 // processed element record
	binEntrySize      = 4  // one element index in a tile's bin chunk
	binHeaderSize     = 8  // per-tile {count, chunk offset}
	ptclWordsPerTile  = 64 // per-tile command list window, in uint32 words
	countersSize      = 64 // bump counter block, incl. failure flag
	configSize        = 64 // uniform config block

	avgTilesPerObject = 4
)

// staticMargin is the safety factor applied to variable-size buffers:
// sizes are scaled by staticMarginNum/staticMarginDen after the per-count
// costs are summed.
const (
	staticMarginNum = 5
	staticMarginDen = 4
)

// EstimationError reports a scene or target parameter outside renderable
// limits. It is terminal for the render call; retrying with the same
// inputs cannot succeed.
type EstimationError struct {
	Field  string
	Value  int64
	Reason string
}

func (e *EstimationError) Error() string {
	return fmt.Sprintf("estimate: %s=%d: %s", e.Field, e.Value, e.Reason)
}

// Sizes holds the byte size of every pipeline buffer for one frame.
// Offsets within the frame arena are assigned later, always in the field
// order below.
type Sizes struct {
	// Scene is the encoded command stream.
	Scene uint64

	// Config is the uniform configuration block.
	Config uint64

	// Elements holds processed element records.
	Elements uint64

	// BinHeaders holds one header per 16x16 tile.
	BinHeaders uint64

	// BinData holds per-tile element index chunks.
	BinData uint64

	// Ptcl holds per-tile command lists.
	Ptcl uint64

	// Counters is the bump counter block written by the stages.
	Counters uint64

	// Output is the target pixel buffer, RGBA8.
	Output uint64
}

// Total returns the arena footprint of the sizes with each buffer rounded
// up to the given alignment.
func (s Sizes) Total(align uint64) uint64 {
	var t uint64
	for _, v := range [...]uint64{
		s.Scene, s.Config, s.Elements, s.BinHeaders,
		s.BinData, s.Ptcl, s.Counters, s.Output,
	} {
		t += NextMultipleOf(v, align)
	}
	return t
}

// Validate checks summary counts and target dimensions against renderable
// limits. A nil return means estimation can proceed.
func Validate(sum scene.Summary, width, height uint32) error {
	switch {
	case width == 0:
		return &EstimationError{Field: "width", Value: 0, Reason: "target width must be positive"}
	case height == 0:
		return &EstimationError{Field: "height", Value: 0, Reason: "target height must be positive"}
	case width > MaxDimension:
		return &EstimationError{Field: "width", Value: int64(width), Reason: fmt.Sprintf("exceeds maximum dimension %d", MaxDimension)}
	case height > MaxDimension:
		return &EstimationError{Field: "height", Value: int64(height), Reason: fmt.Sprintf("exceeds maximum dimension %d", MaxDimension)}
	}
	for _, c := range [...]struct {
		name  string
		value int
	}{
		{"paths", sum.Paths},
		{"draw_objects", sum.DrawObjects},
		{"clips", sum.Clips},
		{"glyphs", sum.Glyphs},
		{"layers", sum.Layers},
	} {
		if c.value < 0 {
			return &EstimationError{Field: c.name, Value: int64(c.value), Reason: "negative count"}
		}
		if c.value > 1<<24 {
			return &EstimationError{Field: c.name, Value: int64(c.value), Reason: "count exceeds pipeline limit"}
		}
	}
	return nil
}

// TilesFor returns the tile grid covering a target.
func TilesFor(width, height uint32) (wTiles, hTiles uint32) {
	return CeilDiv(width, TileWidth), CeilDiv(height, TileHeight)
}

// Static computes conservative buffer sizes from summary counts alone.
// The caller must have validated the inputs.
func Static(sum scene.Summary, sceneBytes int, width, height uint32) Sizes {
	wTiles, hTiles := TilesFor(width, height)
	nTiles := uint64(wTiles) * uint64(hTiles)
	// Layers and clips materialize as element records too.
	nElems := uint64(sum.DrawObjects + sum.Glyphs + 2*sum.Layers + 2*sum.Clips)
	if nElems == 0 {
		nElems = 1
	}

	binData := withMargin(nElems * avgTilesPerObject * binEntrySize)
	ptcl := withMargin(nTiles * ptclWordsPerTile * 4)
	return Sizes{
		Scene:      NextMultipleOf(uint64(sceneBytes), 4),
		Config:     configSize,
		Elements:   nElems * elementRecordSize,
		BinHeaders: nTiles * binHeaderSize,
		BinData:    binData,
		Ptcl:       ptcl,
		Counters:   countersSize,
		Output:     uint64(width) * uint64(height) * 4,
	}
}

func withMargin(v uint64) uint64 {
	return NextMultipleOf(v*staticMarginNum/staticMarginDen, 4)
}

// FromCounters computes exact buffer sizes from counters produced by a
// counting prepass or a failed full pass. Fixed-size buffers keep their
// static sizes; variable buffers are sized to the observed demand.
func FromCounters(c Counters, sum scene.Summary, sceneBytes int, width, height uint32) Sizes {
	s := Static(sum, sceneBytes, width, height)
	if n := uint64(c.Elements) * elementRecordSize; n > s.Elements {
		s.Elements = n
	}
	if n := uint64(c.BinEntries) * binEntrySize; n > s.BinData {
		s.BinData = NextMultipleOf(n, 4)
	}
	// Tiles share the ptcl buffer in equal fixed windows, so the buffer
	// must grant every tile the peak demand.
	wTiles, hTiles := TilesFor(width, height)
	if n := uint64(c.PtclWords) * 4 * uint64(wTiles) * uint64(hTiles); n > s.Ptcl {
		s.Ptcl = n
	}
	return s
}

// Estimator sizes the frame buffers ahead of dispatch. The default is the
// static model; tests substitute their own to force the overflow paths.
type Estimator interface {
	Estimate(sum scene.Summary, sceneBytes int, width, height uint32) Sizes
}

// StaticEstimator is the default Estimator, backed by Static.
type StaticEstimator struct{}

// Estimate implements Estimator.
func (StaticEstimator) Estimate(sum scene.Summary, sceneBytes int, width, height uint32) Sizes {
	return Static(sum, sceneBytes, width, height)
}

// NextMultipleOf rounds v up to the next multiple of align. An align of
// zero returns v unchanged.
func NextMultipleOf[T constraints.Unsigned](v, align T) T {
	if align == 0 {
		return v
	}
	if r := v % align; r != 0 {
		return v + (align - r)
	}
	return v
}

// CeilDiv returns ceil(a/b) for unsigned integers.
func CeilDiv[T constraints.Unsigned](a, b T) T {
	return (a + b - 1) / b
}
