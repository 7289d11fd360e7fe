// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package cpu implements the device contract in pure Go. It executes the
// stage programs deterministically on the host, which makes it the
// reference for pixel-exact tests and the fallback when no GPU backend is
// available.
//
// The package also carries the test hooks the orchestrator's concurrency
// tests depend on: an artificial submission delay to simulate a slow
// device, write-hazard detection for buffers referenced by in-flight
// work, and device-loss injection.
package cpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/catalina/device"
)

// DefaultBudget is the default memory budget (256 MB).
const DefaultBudget = 256 << 20

func init() {
	device.Register(device.BackendCPU, func() (device.Device, error) {
		return New(), nil
	})
}

// Option configures a Device.
type Option func(*Device)

// WithBudget sets the memory budget in bytes.
func WithBudget(bytes uint64) Option {
	return func(d *Device) { d.budget = bytes }
}

// WithSubmitDelay makes every submission execute asynchronously after the
// given delay, simulating a device that falls behind the host.
func WithSubmitDelay(delay time.Duration) Option {
	return func(d *Device) { d.submitDelay = delay }
}

type buffer struct {
	label string
	data  []byte

	// inflight counts submissions that reference this buffer and have
	// not retired yet. Guarded by the owning device's mu.
	inflight int
}

func (b *buffer) Label() string { return b.label }
func (b *buffer) Size() uint64  { return uint64(len(b.data)) }

type program struct {
	name string
	exec stageFunc
}

func (p *program) Name() string { return p.name }

type fence struct {
	ch   chan struct{}
	once sync.Once

	// execErr records a failed execution of the submission this fence was
	// attached to. Written before the channel closes, read only after.
	execErr error
}

func (f *fence) signal(err error) {
	f.once.Do(func() {
		f.execErr = err
		close(f.ch)
	})
}

// Device is the reference backend. It is safe for concurrent use.
type Device struct {
	mu sync.Mutex

	budget      uint64
	used        uint64
	submitDelay time.Duration

	pending sync.WaitGroup

	lost     chan error
	lostErr  error
	closed   bool
	hazards  uint64
	submits  uint64
}

// New creates a cpu device.
func New(opts ...Option) *Device {
	d := &Device{
		budget: DefaultBudget,
		lost:   make(chan error, 1),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Name implements device.Device.
func (d *Device) Name() string { return device.BackendCPU }

func (d *Device) check() error {
	if d.closed {
		return device.ErrDeviceClosed
	}
	if d.lostErr != nil {
		return device.ErrDeviceLost
	}
	return nil
}

// CreateBuffer implements device.Device.
func (d *Device) CreateBuffer(desc *device.BufferDescriptor) (device.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return nil, err
	}
	if desc.Size > d.budget || d.used > d.budget-desc.Size {
		return nil, fmt.Errorf("%w: %d bytes requested, %d of %d in use",
			device.ErrBudgetExceeded, desc.Size, d.used, d.budget)
	}
	d.used += desc.Size
	return &buffer{label: desc.Label, data: make([]byte, desc.Size)}, nil
}

// DestroyBuffer implements device.Device.
func (d *Device) DestroyBuffer(buf device.Buffer) {
	b, ok := buf.(*buffer)
	if !ok {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.used >= uint64(len(b.data)) {
		d.used -= uint64(len(b.data))
	}
	b.data = nil
}

// CreateProgram implements device.Device. The WGSL source is not
// compiled; the stage name selects a built-in Go implementation with the
// same semantics.
func (d *Device) CreateProgram(name, source string) (device.Program, error) {
	d.mu.Lock()
	err := d.check()
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	exec, ok := stageFuncs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", device.ErrUnknownProgram, name)
	}
	return &program{name: name, exec: exec}, nil
}

// DestroyProgram implements device.Device.
func (d *Device) DestroyProgram(p device.Program) {}

// CreateFence implements device.Device.
func (d *Device) CreateFence() (device.Fence, error) {
	d.mu.Lock()
	err := d.check()
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &fence{ch: make(chan struct{})}, nil
}

// DestroyFence implements device.Device.
func (d *Device) DestroyFence(f device.Fence) {}

// Signaled implements device.Device. A signaled fence whose submission
// failed reports the execution error.
func (d *Device) Signaled(f device.Fence) (bool, error) {
	ff, ok := f.(*fence)
	if !ok {
		return false, fmt.Errorf("cpu: foreign fence")
	}
	select {
	case <-ff.ch:
		return true, ff.execErr
	default:
		return false, nil
	}
}

// Wait implements device.Device. A signaled fence whose submission
// failed reports the execution error.
func (d *Device) Wait(f device.Fence, timeout time.Duration) (bool, error) {
	ff, ok := f.(*fence)
	if !ok {
		return false, fmt.Errorf("cpu: foreign fence")
	}
	select {
	case <-ff.ch:
		return true, ff.execErr
	case <-time.After(timeout):
		return false, device.ErrFenceTimeout
	}
}

// Queue implements device.Device.
func (d *Device) Queue() device.Queue { return (*queue)(d) }

// Lost implements device.Device.
func (d *Device) Lost() <-chan error { return d.lost }

// Close implements device.Device.
func (d *Device) Close() {
	d.pending.Wait()
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

// InjectDeviceLost marks the device lost, failing all further operations
// and delivering err on the Lost channel. Test hook.
func (d *Device) InjectDeviceLost(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lostErr != nil {
		return
	}
	d.lostErr = err
	select {
	case d.lost <- err:
	default:
	}
}

// WriteHazards returns the number of buffer writes observed while the
// target buffer was referenced by in-flight work. Test hook; any nonzero
// value means frame memory was recycled too early.
func (d *Device) WriteHazards() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hazards
}

// Submits returns the number of batches submitted so far. Test hook.
func (d *Device) Submits() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submits
}

type queue Device

// WriteBuffer implements device.Queue.
func (q *queue) WriteBuffer(buf device.Buffer, offset uint64, data []byte) error {
	d := (*Device)(q)
	b, ok := buf.(*buffer)
	if !ok {
		return fmt.Errorf("cpu: foreign buffer")
	}
	d.mu.Lock()
	if err := d.check(); err != nil {
		d.mu.Unlock()
		return err
	}
	if b.inflight > 0 {
		d.hazards++
	}
	d.mu.Unlock()
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return fmt.Errorf("cpu: write of %d bytes at %d exceeds buffer %q (%d bytes)",
			len(data), offset, b.label, len(b.data))
	}
	copy(b.data[offset:], data)
	return nil
}

// Submit implements device.Queue. Dispatches run in order; with a submit
// delay configured they run on a background goroutine after the delay.
func (q *queue) Submit(batch []device.Dispatch, f device.Fence) error {
	d := (*Device)(q)
	d.mu.Lock()
	if err := d.check(); err != nil {
		d.mu.Unlock()
		return err
	}
	d.submits++
	bufs := batchBuffers(batch)
	for _, b := range bufs {
		b.inflight++
	}
	d.mu.Unlock()

	run := func() error {
		for _, disp := range batch {
			p, ok := disp.Program.(*program)
			if !ok {
				return fmt.Errorf("cpu: foreign program in dispatch %q", disp.Label)
			}
			if err := p.exec(disp); err != nil {
				return fmt.Errorf("cpu: stage %s: %w", p.name, err)
			}
		}
		return nil
	}

	retire := func(execErr error) {
		d.mu.Lock()
		for _, b := range bufs {
			b.inflight--
		}
		d.mu.Unlock()
		if ff, ok := f.(*fence); ok && ff != nil {
			ff.signal(execErr)
		}
	}

	if d.submitDelay <= 0 {
		err := run()
		retire(err)
		return err
	}
	d.pending.Add(1)
	go func() {
		defer d.pending.Done()
		time.Sleep(d.submitDelay)
		retire(run())
	}()
	return nil
}

// ReadBuffer implements device.Queue. It drains all pending submissions
// first, matching the blocking readback semantics of the contract.
func (q *queue) ReadBuffer(buf device.Buffer, offset uint64, dst []byte) error {
	d := (*Device)(q)
	d.pending.Wait()
	b, ok := buf.(*buffer)
	if !ok {
		return fmt.Errorf("cpu: foreign buffer")
	}
	d.mu.Lock()
	err := d.check()
	d.mu.Unlock()
	if err != nil {
		return err
	}
	if offset+uint64(len(dst)) > uint64(len(b.data)) {
		return fmt.Errorf("cpu: read of %d bytes at %d exceeds buffer %q (%d bytes)",
			len(dst), offset, b.label, len(b.data))
	}
	copy(dst, b.data[offset:])
	return nil
}

func batchBuffers(batch []device.Dispatch) []*buffer {
	seen := make(map[*buffer]bool)
	var out []*buffer
	for _, disp := range batch {
		for _, bd := range disp.Bindings {
			if b, ok := bd.Buffer.(*buffer); ok && !seen[b] {
				seen[b] = true
				out = append(out, b)
			}
		}
	}
	return out
}
