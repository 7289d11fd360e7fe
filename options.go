// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package catalina

import (
	"time"

	"github.com/gogpu/catalina/estimate"
)

// EstimationMode selects how frame buffers are sized before dispatch.
type EstimationMode int

const (
	// EstimationStatic sizes buffers from summary counts with a
	// conservative cost table. No GPU round-trip; may understate
	// adversarial scenes and trigger the resize path. The default.
	EstimationStatic EstimationMode = iota

	// EstimationDynamic runs a counting prepass and sizes buffers from
	// exact counts. One extra GPU round-trip; never overflows.
	EstimationDynamic
)

// String returns the mode name as used in configuration files.
func (m EstimationMode) String() string {
	switch m {
	case EstimationStatic:
		return "static"
	case EstimationDynamic:
		return "dynamic"
	}
	return "unknown"
}

// Default renderer settings.
const (
	DefaultPoolDepth    = 2
	DefaultFenceTimeout = 5 * time.Second
)

type options struct {
	mode         EstimationMode
	estimator    estimate.Estimator
	poolDepth    int
	blockSize    uint64
	fenceTimeout time.Duration
	instrument   func(FrameStats)
	programDir   string
	hotReload    bool
}

func defaultOptions() options {
	return options{
		mode:         EstimationStatic,
		estimator:    estimate.StaticEstimator{},
		poolDepth:    DefaultPoolDepth,
		fenceTimeout: DefaultFenceTimeout,
	}
}

// Option configures a Renderer.
type Option func(*options)

// WithEstimationMode sets the buffer sizing strategy.
func WithEstimationMode(mode EstimationMode) Option {
	return func(o *options) { o.mode = mode }
}

// WithEstimator replaces the static estimator. Intended for tests that
// need to force the overflow paths.
func WithEstimator(e estimate.Estimator) Option {
	return func(o *options) { o.estimator = e }
}

// WithPoolDepth sets the number of frames that may be in flight.
func WithPoolDepth(n int) Option {
	return func(o *options) { o.poolDepth = n }
}

// WithBlockSize sets the initial arena capacity in bytes.
func WithBlockSize(bytes uint64) Option {
	return func(o *options) { o.blockSize = bytes }
}

// WithFenceTimeout bounds every fence wait the renderer performs.
func WithFenceTimeout(d time.Duration) Option {
	return func(o *options) { o.fenceTimeout = d }
}

// WithInstrumentation installs a hook invoked with per-frame statistics
// after every render call. The hook must not call back into the
// renderer; it is never required for correctness.
func WithInstrumentation(fn func(FrameStats)) Option {
	return func(o *options) { o.instrument = fn }
}

// WithProgramDir sets a directory whose WGSL files shadow the embedded
// stage programs.
func WithProgramDir(dir string) Option {
	return func(o *options) { o.programDir = dir }
}

// WithHotReload watches the program directory and recompiles changed
// stage programs between render calls. Requires WithProgramDir.
func WithHotReload() Option {
	return func(o *options) { o.hotReload = true }
}
