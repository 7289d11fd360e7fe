// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package catalina

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gogpu/catalina/device/cpu"
	"github.com/gogpu/catalina/estimate"
	"github.com/gogpu/catalina/pipeline"
	"github.com/gogpu/catalina/scene"
)

func newRenderer(t *testing.T, dev *cpu.Device, opts ...Option) *Renderer {
	t.Helper()
	r, err := New(dev, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

func testRenderConfig(w, h uint32) RenderConfig {
	return RenderConfig{
		Width:     w,
		Height:    h,
		BaseColor: scene.RGBA{R: 10, G: 20, B: 30, A: 255},
	}
}

func TestRenderEmptySceneShortCircuits(t *testing.T) {
	dev := cpu.New()
	defer dev.Close()

	var stats FrameStats
	r := newRenderer(t, dev, WithInstrumentation(func(s FrameStats) { stats = s }))

	target, err := r.Render(scene.NewBuilder().Build(), testRenderConfig(64, 64))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !stats.ShortCircuit {
		t.Error("empty scene should short-circuit")
	}
	if got := dev.Submits(); got != 0 {
		t.Errorf("Submits() = %d, want 0 for an empty scene", got)
	}

	// Every pixel carries the base color.
	for i := 0; i < len(target.Pix); i += 4 {
		if target.Pix[i] != 10 || target.Pix[i+1] != 20 || target.Pix[i+2] != 30 || target.Pix[i+3] != 255 {
			t.Fatalf("pixel %d = %v, want base color", i/4, target.Pix[i:i+4])
		}
	}
}

func TestRenderNilScene(t *testing.T) {
	dev := cpu.New()
	defer dev.Close()
	r := newRenderer(t, dev)
	if _, err := r.Render(nil, testRenderConfig(32, 32)); err != nil {
		t.Fatalf("Render(nil) = %v, want host-side clear", err)
	}
}

func TestRenderSolidRect(t *testing.T) {
	dev := cpu.New()
	defer dev.Close()
	r := newRenderer(t, dev)

	b := scene.NewBuilder()
	b.FillRect(0, 0, 64, 64, scene.RGBA{R: 255, A: 255})
	target, err := r.Render(b.Build(), testRenderConfig(64, 64))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for i := 0; i < len(target.Pix); i += 4 {
		if target.Pix[i] != 255 || target.Pix[i+1] != 0 || target.Pix[i+2] != 0 || target.Pix[i+3] != 255 {
			t.Fatalf("pixel %d = %v, want opaque red", i/4, target.Pix[i:i+4])
		}
	}
}

// adversarialScene stacks many rects in one tile, far beyond what the
// static per-tile command window covers.
func adversarialScene() *scene.Scene {
	b := scene.NewBuilder()
	for i := 0; i < 50; i++ {
		b.FillRect(1, 1, 10, 10, scene.RGBA{R: uint8(i*5 + 5), A: 255})
	}
	return b.Build()
}

func TestRenderStaticOverflowRetriesOnce(t *testing.T) {
	dev := cpu.New()
	defer dev.Close()

	var stats FrameStats
	r := newRenderer(t, dev,
		WithEstimationMode(EstimationStatic),
		WithInstrumentation(func(s FrameStats) { stats = s }))

	target, err := r.Render(adversarialScene(), testRenderConfig(64, 64))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if stats.Attempts != 2 {
		t.Errorf("Attempts = %d, want exactly one retry", stats.Attempts)
	}
	if stats.Counters.HasFailed() {
		t.Error("final counters should be clean after the retry")
	}

	// The retried static frame and the dynamic frame must agree
	// byte for byte.
	rd := newRenderer(t, dev, WithEstimationMode(EstimationDynamic))
	dynTarget, err := rd.Render(adversarialScene(), testRenderConfig(64, 64))
	if err != nil {
		t.Fatalf("dynamic Render: %v", err)
	}
	if !bytes.Equal(target.Pix, dynTarget.Pix) {
		t.Error("static-with-retry output differs from dynamic output")
	}
}

func TestRenderDynamicNeverOverflows(t *testing.T) {
	dev := cpu.New()
	defer dev.Close()

	var stats FrameStats
	r := newRenderer(t, dev,
		WithEstimationMode(EstimationDynamic),
		WithInstrumentation(func(s FrameStats) { stats = s }))

	if _, err := r.Render(adversarialScene(), testRenderConfig(64, 64)); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if stats.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1 in dynamic mode", stats.Attempts)
	}
}

// wideScene returns rects that each cover the whole target, so bin
// demand far exceeds the static per-object tile assumption.
func wideScene(n int) *scene.Scene {
	b := scene.NewBuilder()
	for i := 0; i < n; i++ {
		b.FillRect(0, 0, 64, 64, scene.RGBA{G: 255, A: 255})
	}
	return b.Build()
}

// starvedEstimator leaves room for a single element record, forcing an
// element overflow whose truncated counters understate bin demand.
type starvedEstimator struct{}

func (starvedEstimator) Estimate(sum scene.Summary, sceneBytes int, w, h uint32) estimate.Sizes {
	s := estimate.Static(sum, sceneBytes, w, h)
	s.Elements = pipeline.ElementRecordLen
	return s
}

func TestRenderOverflowAfterRetryIsFatal(t *testing.T) {
	dev := cpu.New()
	defer dev.Close()
	r := newRenderer(t, dev,
		WithEstimationMode(EstimationStatic),
		WithEstimator(starvedEstimator{}))

	_, err := r.Render(wideScene(100), testRenderConfig(64, 64))
	var oe *RenderOverflowError
	if !errors.As(err, &oe) {
		t.Fatalf("Render = %v, want *RenderOverflowError", err)
	}
	if oe.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", oe.Attempts)
	}
	if !oe.Counters.HasFailed() {
		t.Error("fatal overflow must carry failed counters")
	}
}

func TestRenderDeterministic(t *testing.T) {
	dev := cpu.New()
	defer dev.Close()
	r := newRenderer(t, dev)

	b := scene.NewBuilder()
	b.PushLayer(0.5)
	b.FillRect(3.25, 7.5, 41.75, 55.5, scene.RGBA{R: 200, G: 50, B: 120, A: 220})
	b.PopLayer()
	b.BeginClip(10, 10, 50, 50)
	b.FillRect(0, 0, 64, 64, scene.RGBA{B: 255, A: 100})
	b.EndClip()
	s := b.Build()

	t1, err := r.Render(s, testRenderConfig(64, 64))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	t2, err := r.Render(s, testRenderConfig(64, 64))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.Equal(t1.Pix, t2.Pix) {
		t.Error("same scene and config must render byte-identical output")
	}
}

func TestRenderPipelinedFramesNoHazard(t *testing.T) {
	dev := cpu.New(cpu.WithSubmitDelay(20 * time.Millisecond))
	defer dev.Close()
	r := newRenderer(t, dev, WithPoolDepth(2))

	b := scene.NewBuilder()
	b.FillRect(5, 5, 60, 60, scene.RGBA{R: 128, G: 64, B: 32, A: 255})
	s := b.Build()

	for i := 0; i < 3; i++ {
		if _, err := r.Render(s, testRenderConfig(64, 64)); err != nil {
			t.Fatalf("Render %d: %v", i, err)
		}
	}
	if got := dev.WriteHazards(); got != 0 {
		t.Errorf("WriteHazards() = %d, want 0", got)
	}
}

func TestRenderUnsupportedConfig(t *testing.T) {
	dev := cpu.New()
	defer dev.Close()
	r := newRenderer(t, dev)
	s := scene.NewBuilder().Build()

	tests := []struct {
		name string
		cfg  RenderConfig
	}{
		{"zero width", RenderConfig{Width: 0, Height: 64}},
		{"zero height", RenderConfig{Width: 64, Height: 0}},
		{"unknown format", RenderConfig{Width: 64, Height: 64, Format: OutputFormat(99)}},
		{"msaa without program", RenderConfig{Width: 64, Height: 64, Antialiasing: pipeline.AAMSAA}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Render(s, tt.cfg)
			var ue *UnsupportedConfigError
			if !errors.As(err, &ue) {
				t.Errorf("Render = %v, want *UnsupportedConfigError", err)
			}
		})
	}
	if got := dev.Submits(); got != 0 {
		t.Errorf("Submits() = %d, config validation must not touch the device", got)
	}
}

func TestRenderEstimationErrorBeforeDispatch(t *testing.T) {
	dev := cpu.New()
	defer dev.Close()
	r := newRenderer(t, dev)

	b := scene.NewBuilder()
	b.FillRect(0, 0, 1, 1, scene.RGBA{A: 255})
	_, err := r.Render(b.Build(), testRenderConfig(estimate.MaxDimension+1, 64))
	var ee *estimate.EstimationError
	if !errors.As(err, &ee) {
		t.Fatalf("Render = %v, want *EstimationError", err)
	}
	if got := dev.Submits(); got != 0 {
		t.Errorf("Submits() = %d, estimation errors must precede dispatch", got)
	}
}

func TestRenderDeviceLost(t *testing.T) {
	dev := cpu.New()
	defer dev.Close()
	r := newRenderer(t, dev)

	s := scene.NewBuilder().Build()
	dev.InjectDeviceLost(errors.New("simulated loss"))
	if _, err := r.Render(s, testRenderConfig(64, 64)); !errors.Is(err, ErrDeviceLost) {
		t.Errorf("Render = %v, want ErrDeviceLost", err)
	}
}

func TestRenderAfterClose(t *testing.T) {
	dev := cpu.New()
	defer dev.Close()
	r, err := New(dev)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.Close()
	if _, err := r.Render(scene.NewBuilder().Build(), testRenderConfig(32, 32)); !errors.Is(err, ErrClosed) {
		t.Errorf("Render = %v, want ErrClosed", err)
	}
	// Close is idempotent.
	r.Close()
}

func TestCloseConcurrentWithRender(t *testing.T) {
	dev := cpu.New(cpu.WithSubmitDelay(5 * time.Millisecond))
	defer dev.Close()
	r, err := New(dev, WithPoolDepth(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	b := scene.NewBuilder()
	b.FillRect(0, 0, 32, 32, scene.RGBA{R: 255, A: 255})
	sc := b.Build()
	cfg := testRenderConfig(32, 32)

	// In-flight renders racing Close must fail cleanly, never corrupt
	// renderer state.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Render(sc, cfg) //nolint:errcheck
		}()
	}
	r.Close()
	wg.Wait()

	if _, err := r.Render(sc, cfg); !errors.Is(err, ErrClosed) {
		t.Errorf("Render after Close = %v, want ErrClosed", err)
	}
	r.Close()
}

func TestRenderBGRAOutput(t *testing.T) {
	dev := cpu.New()
	defer dev.Close()
	r := newRenderer(t, dev)

	b := scene.NewBuilder()
	b.FillRect(0, 0, 32, 32, scene.RGBA{R: 255, A: 255})
	cfg := testRenderConfig(32, 32)
	cfg.Format = FormatBGRA8

	target, err := r.Render(b.Build(), cfg)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	// Red lands in the third byte under BGRA.
	if target.Pix[0] != 0 || target.Pix[2] != 255 {
		t.Errorf("first pixel = %v, want BGRA red", target.Pix[:4])
	}

	img := target.Image()
	if c := img.NRGBAAt(0, 0); c.R != 255 || c.B != 0 {
		t.Errorf("Image() pixel = %+v, want red regardless of target format", c)
	}
}

func TestRenderInstrumentation(t *testing.T) {
	dev := cpu.New()
	defer dev.Close()

	var stats FrameStats
	r := newRenderer(t, dev, WithInstrumentation(func(s FrameStats) { stats = s }))

	b := scene.NewBuilder()
	b.FillRect(0, 0, 16, 16, scene.RGBA{A: 255})
	if _, err := r.Render(b.Build(), testRenderConfig(64, 64)); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if stats.FrameID == uuid.Nil {
		t.Error("FrameID not assigned")
	}
	if stats.Summary.DrawObjects != 1 {
		t.Errorf("Summary.DrawObjects = %d, want 1", stats.Summary.DrawObjects)
	}
	if stats.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", stats.Attempts)
	}
	if stats.ArenaBytes == 0 {
		t.Error("ArenaBytes not recorded")
	}
	if stats.Total <= 0 {
		t.Error("Total duration not recorded")
	}
}
