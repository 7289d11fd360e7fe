// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package catalina

import (
	"time"

	"github.com/google/uuid"

	"github.com/gogpu/catalina/estimate"
	"github.com/gogpu/catalina/scene"
)

// FrameStats is the per-frame record handed to the instrumentation hook.
type FrameStats struct {
	// FrameID uniquely identifies the render call across logs.
	FrameID uuid.UUID

	// Summary is the scene's element counts.
	Summary scene.Summary

	// Mode is the estimation mode the frame ran under.
	Mode EstimationMode

	// Attempts is 1 for a clean frame, 2 when the frame was resized and
	// retried.
	Attempts int

	// ShortCircuit reports an empty scene cleared host-side with no
	// dispatches.
	ShortCircuit bool

	// ArenaBytes is the frame's arena footprint on the final attempt.
	ArenaBytes uint64

	// Counters is the counter block read back on the final attempt.
	Counters estimate.Counters

	// Phase durations of the final attempt.
	Estimate time.Duration
	Plan     time.Duration
	Dispatch time.Duration
	Readback time.Duration
	Total    time.Duration
}
