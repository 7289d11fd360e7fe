// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"fmt"

	"github.com/gogpu/catalina/arena"
	"github.com/gogpu/catalina/device"
	"github.com/gogpu/catalina/estimate"
)

// Binding slots of the stage programs. Must match the WGSL sources.
// Every stage binds config at slot 0; the remaining slots follow the
// data flow of the stage.
const (
	SlotConfig = 0

	SlotScene        = 1 // element, count
	SlotElementOut   = 2 // element
	SlotCountersElem = 3 // element, count

	SlotElements   = 1 // binning, coarse, fine
	SlotBinHeaders = 2 // binning, coarse
	SlotBinData    = 3 // binning, coarse
	SlotCoarsePtcl = 4 // coarse
	SlotCounters   = 5 // binning, coarse; slot 4 unused in binning

	SlotFinePtcl = 2 // fine
	SlotOutput   = 3 // fine
)

// Plan is the frame plan: every buffer region of one frame, sub-allocated
// from an arena in a fixed order, plus the serialized configuration. A
// plan is built per render attempt and discarded with its arena.
type Plan struct {
	Config ConfigUniform
	Sizes  estimate.Sizes

	Scene      arena.Region
	ConfigBuf  arena.Region
	Elements   arena.Region
	BinHeaders arena.Region
	BinData    arena.Region
	Ptcl       arena.Region
	Counters   arena.Region
	Output     arena.Region
}

// Build sub-allocates every frame buffer from the arena. Allocation order
// is fixed (scene, config, elements, bin headers, bin data, ptcl,
// counters, output) so repeated builds of the same sizes produce the same
// offsets. On overflow the arena is left partially consumed; the caller
// resets or discards it.
func Build(a *arena.Arena, sizes estimate.Sizes, cfg ConfigUniform) (*Plan, error) {
	p := &Plan{Config: cfg, Sizes: sizes}
	for _, alloc := range []struct {
		name string
		size uint64
		dst  *arena.Region
	}{
		{"scene", sizes.Scene, &p.Scene},
		{"config", sizes.Config, &p.ConfigBuf},
		{"elements", sizes.Elements, &p.Elements},
		{"bin_headers", sizes.BinHeaders, &p.BinHeaders},
		{"bin_data", sizes.BinData, &p.BinData},
		{"ptcl", sizes.Ptcl, &p.Ptcl},
		{"counters", sizes.Counters, &p.Counters},
		{"output", sizes.Output, &p.Output},
	} {
		r, err := a.Alloc(alloc.size)
		if err != nil {
			return nil, fmt.Errorf("pipeline: alloc %s: %w", alloc.name, err)
		}
		*alloc.dst = r
	}
	return p, nil
}

// PrepassSizes strips a size estimate down to what the counting prepass
// needs: the scene, the config, and the counter block.
func PrepassSizes(s estimate.Sizes) estimate.Sizes {
	return estimate.Sizes{Scene: s.Scene, Config: s.Config, Counters: s.Counters}
}

// BuildPrepass sub-allocates only the counting-prepass buffers.
func BuildPrepass(a *arena.Arena, sizes estimate.Sizes, cfg ConfigUniform) (*Plan, error) {
	p := &Plan{Config: cfg, Sizes: sizes}
	for _, alloc := range []struct {
		name string
		size uint64
		dst  *arena.Region
	}{
		{"scene", sizes.Scene, &p.Scene},
		{"config", sizes.Config, &p.ConfigBuf},
		{"counters", sizes.Counters, &p.Counters},
	} {
		r, err := a.Alloc(alloc.size)
		if err != nil {
			return nil, fmt.Errorf("pipeline: alloc %s: %w", alloc.name, err)
		}
		*alloc.dst = r
	}
	return p, nil
}

// Upload writes the frame's host-side inputs: the scene stream, the
// serialized config, and a zeroed counter block.
func (p *Plan) Upload(q device.Queue, sceneData []byte) error {
	if len(sceneData) > 0 {
		if err := q.WriteBuffer(p.Scene.Buffer, p.Scene.Offset, sceneData); err != nil {
			return fmt.Errorf("pipeline: upload scene: %w", err)
		}
	}
	if err := q.WriteBuffer(p.ConfigBuf.Buffer, p.ConfigBuf.Offset, p.Config.ToBytes()); err != nil {
		return fmt.Errorf("pipeline: upload config: %w", err)
	}
	zeros := make([]byte, p.Counters.Size)
	if err := q.WriteBuffer(p.Counters.Buffer, p.Counters.Offset, zeros); err != nil {
		return fmt.Errorf("pipeline: clear counters: %w", err)
	}
	return nil
}

func bind(slot uint32, r arena.Region, ro bool) device.Binding {
	return device.Binding{
		Slot:     slot,
		Buffer:   r.Buffer,
		Offset:   r.Offset,
		Size:     r.Size,
		ReadOnly: ro,
	}
}

// elementGroups returns the 1D workgroup count of the per-element stages.
func (p *Plan) elementGroups() uint32 {
	n := estimate.CeilDiv(p.Config.NumElements, uint32(ElementWorkgroup))
	if n == 0 {
		n = 1
	}
	return n
}

// Dispatches builds the frame's dispatch batch in stage order. The progs
// map must contain a program for every main stage.
func (p *Plan) Dispatches(progs map[Stage]device.Program) ([]device.Dispatch, error) {
	for _, s := range Stages {
		if progs[s] == nil {
			return nil, fmt.Errorf("pipeline: %w: %s", device.ErrUnknownProgram, s)
		}
	}
	wg := p.elementGroups()
	coarseX := estimate.CeilDiv(p.Config.WidthInTiles, uint32(CoarseTileSpan))
	coarseY := estimate.CeilDiv(p.Config.HeightInTiles, uint32(CoarseTileSpan))

	return []device.Dispatch{
		{
			Label:   "element",
			Program: progs[StageElement],
			Bindings: []device.Binding{
				bind(SlotConfig, p.ConfigBuf, true),
				bind(SlotScene, p.Scene, true),
				bind(SlotElementOut, p.Elements, false),
				bind(SlotCountersElem, p.Counters, false),
			},
			Groups: [3]uint32{wg, 1, 1},
		},
		{
			Label:   "binning",
			Program: progs[StageBinning],
			Bindings: []device.Binding{
				bind(SlotConfig, p.ConfigBuf, true),
				bind(SlotElements, p.Elements, true),
				bind(SlotBinHeaders, p.BinHeaders, false),
				bind(SlotBinData, p.BinData, false),
				bind(SlotCounters, p.Counters, false),
			},
			Groups: [3]uint32{wg, 1, 1},
		},
		{
			Label:   "coarse",
			Program: progs[StageCoarse],
			Bindings: []device.Binding{
				bind(SlotConfig, p.ConfigBuf, true),
				bind(SlotElements, p.Elements, true),
				bind(SlotBinHeaders, p.BinHeaders, true),
				bind(SlotBinData, p.BinData, true),
				bind(SlotCoarsePtcl, p.Ptcl, false),
				bind(SlotCounters, p.Counters, false),
			},
			Groups: [3]uint32{coarseX, coarseY, 1},
		},
		{
			Label:   "fine",
			Program: progs[StageFine],
			Bindings: []device.Binding{
				bind(SlotConfig, p.ConfigBuf, true),
				bind(SlotElements, p.Elements, true),
				bind(SlotFinePtcl, p.Ptcl, true),
				bind(SlotOutput, p.Output, false),
			},
			Groups: [3]uint32{p.Config.WidthInTiles, p.Config.HeightInTiles, 1},
		},
	}, nil
}

// CountDispatch builds the dynamic-estimation counting prepass. It binds
// only the scene, config, and counters, and writes exact demand into the
// counter block.
func (p *Plan) CountDispatch(prog device.Program) device.Dispatch {
	return device.Dispatch{
		Label:   "count",
		Program: prog,
		Bindings: []device.Binding{
			bind(SlotConfig, p.ConfigBuf, true),
			bind(SlotScene, p.Scene, true),
			bind(SlotCountersElem, p.Counters, false),
		},
		Groups: [3]uint32{p.elementGroups(), 1, 1},
	}
}
