// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package pipeline assembles the fixed compute-stage sequence of a frame:
// element processing, tile binning, coarse rasterization, fine
// rasterization, plus an optional counting prepass for dynamic buffer
// sizing. It owns the GPU-visible data layouts the stages agree on and
// builds the dispatch batch for one frame from a sub-allocated arena.
package pipeline

import "fmt"

// Stage identifies one compute stage. The zero value is StageElement;
// stages always run in ascending order within a frame.
type Stage int

const (
	// StageElement decodes the scene stream into element records.
	StageElement Stage = iota

	// StageBinning assigns element records to 16x16 tiles.
	StageBinning

	// StageCoarse builds per-tile command lists from the bins.
	StageCoarse

	// StageFine rasterizes per-tile command lists into pixels.
	StageFine

	// StageCount is the counting prepass of dynamic estimation. It runs
	// alone, before the main sequence, and only writes counters.
	StageCount

	numStages = int(StageCount) + 1
)

// Stages lists the main frame sequence in execution order.
var Stages = [...]Stage{StageElement, StageBinning, StageCoarse, StageFine}

// String returns the stage's program name.
func (s Stage) String() string {
	switch s {
	case StageElement:
		return "element"
	case StageBinning:
		return "binning"
	case StageCoarse:
		return "coarse"
	case StageFine:
		return "fine"
	case StageCount:
		return "count"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Workgroup sizes of the stage programs. Must match the WGSL sources.
const (
	// ElementWorkgroup is threads per workgroup in the element, binning
	// and count stages; each thread handles one scene element.
	ElementWorkgroup = 256

	// CoarseTileSpan is the tile grid edge one coarse workgroup covers.
	CoarseTileSpan = 16
)
