// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package catalina is the orchestration core of a GPU-compute 2D vector
// renderer. It consumes a pre-encoded scene and drives a fixed compute
// pipeline (element processing, tile binning, coarse rasterization, fine
// rasterization) into a target pixel buffer.
//
// The renderer sizes every frame buffer before dispatch, either from a
// conservative static cost table or from an exact GPU counting prepass.
// Frame memory comes from a pool of bump-allocated arenas recycled behind
// fences; when a statically sized frame overflows, the renderer resizes
// from the overflow counters and retries exactly once.
//
// Basic use:
//
//	dev, err := device.OpenDefault()
//	r, err := catalina.New(dev)
//	defer r.Close()
//	target, err := r.Render(scn, catalina.RenderConfig{Width: 800, Height: 600})
//
// Backends register themselves on import:
//
//	import _ "github.com/gogpu/catalina/device/cpu"
//	import _ "github.com/gogpu/catalina/device/wgpu"
package catalina
