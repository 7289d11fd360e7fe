// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package catalina

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gogpu/catalina/arena"
	"github.com/gogpu/catalina/device"
	"github.com/gogpu/catalina/estimate"
	"github.com/gogpu/catalina/pipeline"
	"github.com/gogpu/catalina/program"
	"github.com/gogpu/catalina/scene"
)

// Renderer drives the compute pipeline: it estimates buffer sizes for a
// scene, acquires a pooled arena, builds and submits the stage sequence,
// detects overflow through the counter readback, and performs at most one
// resize-and-retry before failing the call.
//
// A Renderer owns its arena pool and program cache but not the device;
// multiple renderers may share one device. Render calls may be pipelined
// from multiple goroutines up to the pool depth; each call is orchestrated
// single-threaded.
type Renderer struct {
	dev     device.Device
	pool    *arena.Pool
	cache   *program.Cache
	watcher *program.Watcher
	opts    options
	closed  atomic.Bool
}

// New creates a renderer on the given device.
func New(dev device.Device, opts ...Option) (*Renderer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	pool, err := arena.NewPool(dev, arena.PoolConfig{
		Depth:        o.poolDepth,
		BlockSize:    o.blockSize,
		FenceTimeout: o.fenceTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("catalina: create arena pool: %w", err)
	}

	var cacheOpts []program.Option
	if o.programDir != "" {
		cacheOpts = append(cacheOpts, program.WithDir(o.programDir))
	}
	cache := program.NewCache(dev, cacheOpts...)

	r := &Renderer{dev: dev, pool: pool, cache: cache, opts: o}
	if o.hotReload {
		w, err := program.Watch(cache)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("catalina: start shader watcher: %w", err)
		}
		r.watcher = w
	}
	return r, nil
}

// Close releases the renderer's pool, programs, and watcher. The device
// is the caller's and stays open.
func (r *Renderer) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	if r.watcher != nil {
		r.watcher.Close() //nolint:errcheck
	}
	r.pool.Close()
	r.cache.Close()
}

// Render rasterizes the scene into a new target. The returned target is
// written all-or-nothing: any error leaves no partial output.
func (r *Renderer) Render(s *scene.Scene, cfg RenderConfig) (*Target, error) {
	start := time.Now()
	stats := FrameStats{
		FrameID: uuid.New(),
		Mode:    r.opts.mode,
	}
	if s != nil {
		stats.Summary = s.Summary()
	}

	if r.closed.Load() {
		return nil, ErrClosed
	}
	if err := r.checkLost(); err != nil {
		return nil, err
	}
	if err := r.validate(cfg); err != nil {
		return nil, err
	}
	if r.watcher != nil && r.watcher.ReloadIfChanged() {
		Logger().Info("stage programs reloaded", "frame", stats.FrameID)
	}

	// Empty scene: clear host-side, no dispatches.
	if s.IsEmpty() {
		t := newTarget(cfg)
		stats.ShortCircuit = true
		stats.Attempts = 0
		stats.Total = time.Since(start)
		r.instrument(stats)
		return t, nil
	}

	if err := estimate.Validate(s.Summary(), cfg.Width, cfg.Height); err != nil {
		return nil, err
	}

	estStart := time.Now()
	sizes, err := r.estimateSizes(s, cfg)
	if err != nil {
		return nil, r.fail(err)
	}
	stats.Estimate = time.Since(estStart)

	// Dispatch loop: one attempt, plus one resize-and-retry. A second
	// overflow is fatal, never retried again.
	var counters estimate.Counters
	for attempt := 1; ; attempt++ {
		stats.Attempts = attempt
		stats.ArenaBytes = sizes.Total(arena.RegionAlign)

		t, c, err := r.renderAttempt(s, cfg, sizes, &stats)
		if err != nil {
			return nil, r.fail(err)
		}
		counters = c
		stats.Counters = c

		if !c.HasFailed() {
			stats.Total = time.Since(start)
			r.instrument(stats)
			Logger().Debug("frame completed",
				"frame", stats.FrameID, "attempts", attempt)
			return t, nil
		}

		if attempt >= 2 || r.opts.mode == EstimationDynamic {
			break
		}
		Logger().Debug("frame overflowed, resizing",
			"frame", stats.FrameID,
			"elements", c.Elements, "bin_entries", c.BinEntries, "ptcl_words", c.PtclWords)
		sizes = estimate.FromCounters(c, s.Summary(), len(s.Data()), cfg.Width, cfg.Height)
	}

	return nil, &RenderOverflowError{Attempts: stats.Attempts, Counters: counters}
}

// validate rejects configurations before any device resource is touched.
func (r *Renderer) validate(cfg RenderConfig) error {
	if cfg.Width == 0 || cfg.Height == 0 {
		return &UnsupportedConfigError{Reason: "target dimensions must be positive"}
	}
	if cfg.Format != FormatRGBA8 && cfg.Format != FormatBGRA8 {
		return &UnsupportedConfigError{Reason: "unknown output format"}
	}
	if !r.cache.SupportsAA(cfg.Antialiasing) {
		return &UnsupportedConfigError{
			Reason: fmt.Sprintf("antialiasing mode %q has no stage program", cfg.Antialiasing),
		}
	}
	return nil
}

// estimateSizes produces the initial size estimate per the configured
// mode. Dynamic mode runs the counting prepass and sizes exactly.
func (r *Renderer) estimateSizes(s *scene.Scene, cfg RenderConfig) (estimate.Sizes, error) {
	static := r.opts.estimator.Estimate(s.Summary(), len(s.Data()), cfg.Width, cfg.Height)
	if r.opts.mode == EstimationStatic {
		return static, nil
	}
	c, err := r.countPrepass(s, cfg, static)
	if err != nil {
		return estimate.Sizes{}, err
	}
	return estimate.FromCounters(c, s.Summary(), len(s.Data()), cfg.Width, cfg.Height), nil
}

// countPrepass submits the counting dispatch and reads back exact demand.
func (r *Renderer) countPrepass(s *scene.Scene, cfg RenderConfig, sizes estimate.Sizes) (estimate.Counters, error) {
	var zero estimate.Counters
	pre := pipeline.PrepassSizes(sizes)
	a, err := r.pool.Acquire(pre.Total(arena.RegionAlign))
	if err != nil {
		return zero, fmt.Errorf("catalina: acquire prepass arena: %w", err)
	}

	plan, err := pipeline.BuildPrepass(a, pre, r.configUniform(s, cfg, sizes))
	if err != nil {
		r.pool.Release(a, nil)
		return zero, err
	}
	q := r.dev.Queue()
	if err := plan.Upload(q, s.Data()); err != nil {
		r.pool.Release(a, nil)
		return zero, err
	}
	prog, err := r.cache.Get(pipeline.StageCount)
	if err != nil {
		r.pool.Release(a, nil)
		return zero, err
	}

	fence, err := r.dev.CreateFence()
	if err != nil {
		r.pool.Release(a, nil)
		return zero, fmt.Errorf("catalina: create prepass fence: %w", err)
	}
	if err := q.Submit([]device.Dispatch{plan.CountDispatch(prog)}, fence); err != nil {
		r.dev.DestroyFence(fence)
		r.pool.Release(a, nil)
		return zero, fmt.Errorf("catalina: submit prepass: %w", err)
	}
	if _, err := r.dev.Wait(fence, r.opts.fenceTimeout); err != nil {
		r.pool.Release(a, fence)
		return zero, fmt.Errorf("catalina: wait prepass: %w", err)
	}

	c, err := r.readCounters(plan)
	r.pool.Release(a, fence)
	if err != nil {
		return zero, err
	}
	return c, nil
}

// renderAttempt runs one full dispatch sequence. It returns the target
// and counters; an overflow is reported through the counters, not as an
// error.
func (r *Renderer) renderAttempt(s *scene.Scene, cfg RenderConfig, sizes estimate.Sizes, stats *FrameStats) (*Target, estimate.Counters, error) {
	var zero estimate.Counters

	planStart := time.Now()
	a, err := r.pool.Acquire(sizes.Total(arena.RegionAlign))
	if err != nil {
		return nil, zero, fmt.Errorf("catalina: acquire arena: %w", err)
	}
	plan, err := pipeline.Build(a, sizes, r.configUniform(s, cfg, sizes))
	if err != nil {
		r.pool.Release(a, nil)
		return nil, zero, err
	}
	q := r.dev.Queue()
	if err := plan.Upload(q, s.Data()); err != nil {
		r.pool.Release(a, nil)
		return nil, zero, err
	}
	progs, err := r.cache.MainStages(cfg.Antialiasing)
	if err != nil {
		r.pool.Release(a, nil)
		return nil, zero, err
	}
	batch, err := plan.Dispatches(progs)
	if err != nil {
		r.pool.Release(a, nil)
		return nil, zero, err
	}
	stats.Plan = time.Since(planStart)

	dispatchStart := time.Now()
	fence, err := r.dev.CreateFence()
	if err != nil {
		r.pool.Release(a, nil)
		return nil, zero, fmt.Errorf("catalina: create fence: %w", err)
	}
	if err := q.Submit(batch, fence); err != nil {
		r.dev.DestroyFence(fence)
		r.pool.Release(a, nil)
		return nil, zero, fmt.Errorf("catalina: submit frame: %w", err)
	}
	if _, err := r.dev.Wait(fence, r.opts.fenceTimeout); err != nil {
		r.pool.Release(a, fence)
		return nil, zero, fmt.Errorf("catalina: wait frame: %w", err)
	}
	stats.Dispatch = time.Since(dispatchStart)

	readStart := time.Now()
	counters, err := r.readCounters(plan)
	if err != nil {
		r.pool.Release(a, fence)
		return nil, zero, err
	}
	if counters.HasFailed() {
		// Overflow: the output buffer is not trustworthy. Nothing is
		// copied out; the caller decides between retry and failure.
		r.pool.Release(a, fence)
		return nil, counters, nil
	}

	out := make([]byte, plan.Output.Size)
	if err := q.ReadBuffer(plan.Output.Buffer, plan.Output.Offset, out); err != nil {
		r.pool.Release(a, fence)
		return nil, zero, fmt.Errorf("catalina: read output: %w", err)
	}
	r.pool.Release(a, fence)
	stats.Readback = time.Since(readStart)

	t := &Target{Width: cfg.Width, Height: cfg.Height, Format: cfg.Format,
		Pix: make([]byte, len(out))}
	t.fromRGBA(out)
	return t, counters, nil
}

// readCounters reads back the diagnostic counter block.
func (r *Renderer) readCounters(plan *pipeline.Plan) (estimate.Counters, error) {
	buf := make([]byte, estimate.CountersLen)
	if err := r.dev.Queue().ReadBuffer(plan.Counters.Buffer, plan.Counters.Offset, buf); err != nil {
		return estimate.Counters{}, fmt.Errorf("catalina: read counters: %w", err)
	}
	return estimate.DecodeCounters(buf), nil
}

// configUniform derives the per-frame config block from the scene and
// the buffer capacities of the current size estimate.
func (r *Renderer) configUniform(s *scene.Scene, cfg RenderConfig, sizes estimate.Sizes) pipeline.ConfigUniform {
	sum := s.Summary()
	wTiles, hTiles := estimate.TilesFor(cfg.Width, cfg.Height)
	return pipeline.ConfigUniform{
		WidthInTiles:  wTiles,
		HeightInTiles: hTiles,
		TargetWidth:   cfg.Width,
		TargetHeight:  cfg.Height,
		BaseColor:     cfg.BaseColor.Packed(),
		NumElements:   uint32(sum.DrawObjects + sum.Glyphs + 2*sum.Layers + 2*sum.Clips),
		ElementsCap:   uint32(sizes.Elements / pipeline.ElementRecordLen),
		BinDataCap:    uint32(sizes.BinData / 4),
		PtclCap:       uint32(sizes.Ptcl / 4),
		AA:            cfg.Antialiasing,
	}
}

// checkLost polls the device-loss channel without blocking.
func (r *Renderer) checkLost() error {
	select {
	case err := <-r.dev.Lost():
		r.onDeviceLost(err)
		return fmt.Errorf("catalina: %w", ErrDeviceLost)
	default:
		return nil
	}
}

// fail maps device loss to pool invalidation on any error path.
func (r *Renderer) fail(err error) error {
	if errors.Is(err, device.ErrDeviceLost) {
		r.onDeviceLost(err)
	}
	return err
}

// onDeviceLost discards every pooled arena. They reference device memory
// that no longer exists; reuse would be worse than the loss itself.
func (r *Renderer) onDeviceLost(cause error) {
	Logger().Error("device lost, invalidating arena pool", "cause", cause)
	r.pool.Invalidate()
}

// instrument invokes the instrumentation hook, if any.
func (r *Renderer) instrument(stats FrameStats) {
	if r.opts.instrument != nil {
		r.opts.instrument(stats)
	}
}
