// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu implements the device contract on top of gogpu/wgpu's HAL.
// WGSL stage programs are compiled to SPIR-V through naga; dispatches are
// encoded into compute passes and retired through HAL fences.
//
// The backend either opens its own Vulkan device or adopts a shared one
// from a host application (see Adopt).
package wgpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/catalina/device"
)

func init() {
	device.Register(device.BackendWGPU, func() (device.Device, error) {
		return Open()
	})
}

type buffer struct {
	label string
	size  uint64
	hb    hal.Buffer
}

func (b *buffer) Label() string { return b.label }
func (b *buffer) Size() uint64  { return b.size }

// program holds a compiled shader module and its lazily created pipeline.
// The pipeline layout is derived from the first dispatch's bindings; by
// contract slot 0 is the uniform config and every other slot is storage.
type program struct {
	name     string
	module   hal.ShaderModule
	bgLayout hal.BindGroupLayout
	layout   hal.PipelineLayout
	pipeline hal.ComputePipeline
}

func (p *program) Name() string { return p.name }

type fence struct {
	hf hal.Fence

	mu      sync.Mutex
	garbage []func()
}

func (f *fence) onRetire(fn func()) {
	f.mu.Lock()
	f.garbage = append(f.garbage, fn)
	f.mu.Unlock()
}

func (f *fence) collect() {
	f.mu.Lock()
	g := f.garbage
	f.garbage = nil
	f.mu.Unlock()
	for _, fn := range g {
		fn()
	}
}

// Device is the HAL-backed device. Safe for concurrent use.
type Device struct {
	mu sync.Mutex

	instance hal.Instance
	dev      hal.Device
	hq       hal.Queue
	owned    bool

	lost   chan error
	closed bool
}

// Open creates a standalone compute device on the best available adapter.
func Open() (*Device, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("wgpu: %w: vulkan backend not available", device.ErrBackendNotAvailable)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: %w: no adapters found", device.ErrBackendNotAvailable)
	}
	selected := &adapters[0]
	for i := range adapters {
		t := adapters[i].Info.DeviceType
		if t == gputypes.DeviceTypeDiscreteGPU || t == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: open adapter %q: %w", selected.Info.Name, err)
	}

	return &Device{
		instance: instance,
		dev:      openDev.Device,
		hq:       openDev.Queue,
		owned:    true,
		lost:     make(chan error, 1),
	}, nil
}

// Adopt wraps a shared HAL device from a host application. On top of
// device.Handle the provider must expose HalDevice() any and HalQueue()
// any returning hal.Device and hal.Queue, the convention gogpu hosts
// follow for direct HAL access. The caller keeps ownership; Close does
// not destroy adopted resources.
func Adopt(provider device.Handle) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("wgpu: provider does not expose HAL types")
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok || dev == nil {
		return nil, fmt.Errorf("wgpu: provider HalDevice is not hal.Device")
	}
	hq, ok := hp.HalQueue().(hal.Queue)
	if !ok || hq == nil {
		return nil, fmt.Errorf("wgpu: provider HalQueue is not hal.Queue")
	}
	return &Device{dev: dev, hq: hq, lost: make(chan error, 1)}, nil
}

// Name implements device.Device.
func (d *Device) Name() string { return device.BackendWGPU }

func (d *Device) check() error {
	if d.closed {
		return device.ErrDeviceClosed
	}
	return nil
}

// CreateBuffer implements device.Device.
func (d *Device) CreateBuffer(desc *device.BufferDescriptor) (device.Buffer, error) {
	d.mu.Lock()
	err := d.check()
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	hb, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create buffer %q: %w", desc.Label, err)
	}
	return &buffer{label: desc.Label, size: desc.Size, hb: hb}, nil
}

// DestroyBuffer implements device.Device.
func (d *Device) DestroyBuffer(buf device.Buffer) {
	if b, ok := buf.(*buffer); ok && b.hb != nil {
		d.dev.DestroyBuffer(b.hb)
		b.hb = nil
	}
}

// CreateProgram implements device.Device. The WGSL source is compiled to
// SPIR-V with naga; pipeline creation is deferred to the first dispatch,
// when the binding layout is known.
func (d *Device) CreateProgram(name, source string) (device.Program, error) {
	d.mu.Lock()
	err := d.check()
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("wgpu: compile %s: %w", name, err)
	}
	spirv := make([]uint32, len(spirvBytes)/4)
	for i := range spirv {
		spirv[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	module, err := d.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  name,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: shader module %s: %w", name, err)
	}
	return &program{name: name, module: module}, nil
}

// DestroyProgram implements device.Device.
func (d *Device) DestroyProgram(p device.Program) {
	pp, ok := p.(*program)
	if !ok {
		return
	}
	if pp.pipeline != nil {
		d.dev.DestroyComputePipeline(pp.pipeline)
	}
	if pp.layout != nil {
		d.dev.DestroyPipelineLayout(pp.layout)
	}
	if pp.bgLayout != nil {
		d.dev.DestroyBindGroupLayout(pp.bgLayout)
	}
	if pp.module != nil {
		d.dev.DestroyShaderModule(pp.module)
	}
	*pp = program{name: pp.name}
}

// ensurePipeline creates the bind group layout and pipeline from the
// bindings of the first dispatch that uses the program.
func (d *Device) ensurePipeline(p *program, bindings []device.Binding) error {
	if p.pipeline != nil {
		return nil
	}
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(bindings))
	for _, bd := range bindings {
		var ty gputypes.BufferBindingType
		switch {
		case bd.Slot == 0:
			ty = gputypes.BufferBindingTypeUniform
		case bd.ReadOnly:
			ty = gputypes.BufferBindingTypeReadOnlyStorage
		default:
			ty = gputypes.BufferBindingTypeStorage
		}
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    bd.Slot,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: ty},
		})
	}

	bgLayout, err := d.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   p.name + "_bgl",
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("wgpu: bind group layout %s: %w", p.name, err)
	}
	layout, err := d.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            p.name + "_pl",
		BindGroupLayouts: []hal.BindGroupLayout{bgLayout},
	})
	if err != nil {
		d.dev.DestroyBindGroupLayout(bgLayout)
		return fmt.Errorf("wgpu: pipeline layout %s: %w", p.name, err)
	}
	pipeline, err := d.dev.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  p.name,
		Layout: layout,
		Compute: hal.ComputeState{
			Module:     p.module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		d.dev.DestroyPipelineLayout(layout)
		d.dev.DestroyBindGroupLayout(bgLayout)
		return fmt.Errorf("wgpu: compute pipeline %s: %w", p.name, err)
	}
	p.bgLayout = bgLayout
	p.layout = layout
	p.pipeline = pipeline
	return nil
}

// CreateFence implements device.Device.
func (d *Device) CreateFence() (device.Fence, error) {
	hf, err := d.dev.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("wgpu: create fence: %w", err)
	}
	return &fence{hf: hf}, nil
}

// DestroyFence implements device.Device. Per-submission resources
// attached to the fence are freed here.
func (d *Device) DestroyFence(f device.Fence) {
	ff, ok := f.(*fence)
	if !ok {
		return
	}
	ff.collect()
	if ff.hf != nil {
		d.dev.DestroyFence(ff.hf)
		ff.hf = nil
	}
}

// Signaled implements device.Device.
func (d *Device) Signaled(f device.Fence) (bool, error) {
	ff, ok := f.(*fence)
	if !ok {
		return false, fmt.Errorf("wgpu: foreign fence")
	}
	return d.dev.Wait(ff.hf, 1, 0)
}

// Wait implements device.Device.
func (d *Device) Wait(f device.Fence, timeout time.Duration) (bool, error) {
	ff, ok := f.(*fence)
	if !ok {
		return false, fmt.Errorf("wgpu: foreign fence")
	}
	ok, err := d.dev.Wait(ff.hf, 1, timeout)
	if err != nil {
		return false, fmt.Errorf("wgpu: fence wait: %w", err)
	}
	if !ok {
		return false, device.ErrFenceTimeout
	}
	return true, nil
}

// Queue implements device.Device.
func (d *Device) Queue() device.Queue { return (*queue)(d) }

// Lost implements device.Device.
func (d *Device) Lost() <-chan error { return d.lost }

// Close implements device.Device. Adopted devices are not destroyed.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	if d.owned {
		if d.dev != nil {
			d.dev.Destroy()
		}
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.dev = nil
	d.hq = nil
	d.instance = nil
}

type queue Device

// WriteBuffer implements device.Queue.
func (q *queue) WriteBuffer(buf device.Buffer, offset uint64, data []byte) error {
	d := (*Device)(q)
	b, ok := buf.(*buffer)
	if !ok {
		return fmt.Errorf("wgpu: foreign buffer")
	}
	d.mu.Lock()
	err := d.check()
	d.mu.Unlock()
	if err != nil {
		return err
	}
	d.hq.WriteBuffer(b.hb, offset, data)
	return nil
}

// Submit implements device.Queue. The batch is encoded as one command
// buffer with a compute pass per dispatch; pass ordering gives the
// inter-stage memory barriers.
func (q *queue) Submit(batch []device.Dispatch, f device.Fence) error {
	d := (*Device)(q)
	d.mu.Lock()
	err := d.check()
	d.mu.Unlock()
	if err != nil {
		return err
	}

	ff, _ := f.(*fence)
	encoder, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "frame"})
	if err != nil {
		return fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("frame"); err != nil {
		return fmt.Errorf("wgpu: begin encoding: %w", err)
	}

	var bindGroups []hal.BindGroup
	discard := func() {
		encoder.DiscardEncoding()
		for _, bg := range bindGroups {
			d.dev.DestroyBindGroup(bg)
		}
	}

	for _, disp := range batch {
		p, ok := disp.Program.(*program)
		if !ok {
			discard()
			return fmt.Errorf("wgpu: %w: dispatch %q", device.ErrUnknownProgram, disp.Label)
		}
		if err := d.ensurePipeline(p, disp.Bindings); err != nil {
			discard()
			return err
		}

		entries := make([]gputypes.BindGroupEntry, 0, len(disp.Bindings))
		for _, bd := range disp.Bindings {
			bb, ok := bd.Buffer.(*buffer)
			if !ok {
				discard()
				return fmt.Errorf("wgpu: foreign buffer in dispatch %q", disp.Label)
			}
			entries = append(entries, gputypes.BindGroupEntry{
				Binding: bd.Slot,
				Resource: gputypes.BufferBinding{
					Buffer: bb.hb.NativeHandle(),
					Offset: bd.Offset,
					Size:   bd.Size,
				},
			})
		}
		bg, err := d.dev.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:   disp.Label + "_bg",
			Layout:  p.bgLayout,
			Entries: entries,
		})
		if err != nil {
			discard()
			return fmt.Errorf("wgpu: bind group for %q: %w", disp.Label, err)
		}
		bindGroups = append(bindGroups, bg)

		pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: disp.Label})
		pass.SetPipeline(p.pipeline)
		pass.SetBindGroup(0, bg, nil)
		pass.Dispatch(disp.Groups[0], disp.Groups[1], disp.Groups[2])
		pass.End()
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		for _, bg := range bindGroups {
			d.dev.DestroyBindGroup(bg)
		}
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}

	var hf hal.Fence
	if ff != nil {
		hf = ff.hf
	}
	if err := d.hq.Submit([]hal.CommandBuffer{cmdBuf}, hf, 1); err != nil {
		for _, bg := range bindGroups {
			d.dev.DestroyBindGroup(bg)
		}
		d.dev.FreeCommandBuffer(cmdBuf)
		return fmt.Errorf("wgpu: submit: %w", err)
	}

	cleanup := func() {
		for _, bg := range bindGroups {
			d.dev.DestroyBindGroup(bg)
		}
		d.dev.FreeCommandBuffer(cmdBuf)
	}
	if ff != nil {
		ff.onRetire(cleanup)
	} else {
		// No fence to hang the cleanup on; the queue is drained before
		// resources are freed.
		d.drainAndFree(cleanup)
	}
	return nil
}

// drainAndFree waits for the queue to go idle, then frees resources.
func (d *Device) drainAndFree(cleanup func()) {
	f, err := d.dev.CreateFence()
	if err == nil {
		if err := d.hq.Submit(nil, f, 1); err == nil {
			d.dev.Wait(f, 1, 2*time.Second) //nolint:errcheck
		}
		d.dev.DestroyFence(f)
	}
	cleanup()
}

// ReadBuffer implements device.Queue. The range is copied into a MapRead
// staging buffer behind a fence, then read on the host.
func (q *queue) ReadBuffer(buf device.Buffer, offset uint64, dst []byte) error {
	d := (*Device)(q)
	b, ok := buf.(*buffer)
	if !ok {
		return fmt.Errorf("wgpu: foreign buffer")
	}
	d.mu.Lock()
	err := d.check()
	d.mu.Unlock()
	if err != nil {
		return err
	}

	size := uint64(len(dst))
	staging, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: "readback_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create staging buffer: %w", err)
	}
	defer d.dev.DestroyBuffer(staging)

	encoder, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "readback"})
	if err != nil {
		return fmt.Errorf("wgpu: create readback encoder: %w", err)
	}
	if err := encoder.BeginEncoding("readback"); err != nil {
		return fmt.Errorf("wgpu: begin readback encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(b.hb, staging, []hal.BufferCopy{
		{SrcOffset: offset, DstOffset: 0, Size: size},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("wgpu: end readback encoding: %w", err)
	}
	defer d.dev.FreeCommandBuffer(cmdBuf)

	hf, err := d.dev.CreateFence()
	if err != nil {
		return fmt.Errorf("wgpu: create readback fence: %w", err)
	}
	defer d.dev.DestroyFence(hf)
	if err := d.hq.Submit([]hal.CommandBuffer{cmdBuf}, hf, 1); err != nil {
		return fmt.Errorf("wgpu: submit readback: %w", err)
	}
	ok, err = d.dev.Wait(hf, 1, 5*time.Second)
	if err != nil {
		return fmt.Errorf("wgpu: wait readback: %w", err)
	}
	if !ok {
		return device.ErrFenceTimeout
	}
	return d.hq.ReadBuffer(staging, 0, dst)
}
