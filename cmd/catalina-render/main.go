// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command catalina-render renders a demo scene to a PNG file. It exists
// to exercise the renderer end to end from the command line: pick a
// backend, optionally load a TOML config, render, and save.
package main

import (
	"flag"
	"fmt"
	"image/png"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gogpu/catalina"
	"github.com/gogpu/catalina/config"
	"github.com/gogpu/catalina/device"
	_ "github.com/gogpu/catalina/device/cpu"
	_ "github.com/gogpu/catalina/device/wgpu"
	"github.com/gogpu/catalina/scene"
)

func main() {
	var (
		cfgPath    = flag.String("config", "", "TOML config file")
		backend    = flag.String("backend", "", "device backend (cpu, wgpu); default best available")
		width      = flag.Uint("width", 800, "target width in pixels")
		height     = flag.Uint("height", 600, "target height in pixels")
		output     = flag.String("output", "out.png", "output PNG file")
		estimation = flag.String("estimation", "", "buffer sizing mode (static, dynamic)")
		verbose    = flag.Bool("verbose", false, "debug logging")
	)
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "catalina",
	})
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	if err := run(logger, *cfgPath, *backend, uint32(*width), uint32(*height), *output, *estimation, *verbose); err != nil {
		logger.Fatal("render failed", "err", err)
	}
}

func run(logger *log.Logger, cfgPath, backend string, width, height uint32, output, estimation string, verbose bool) error {
	rc := catalina.RenderConfig{
		Width:     width,
		Height:    height,
		BaseColor: scene.RGBA{R: 0x18, G: 0x18, B: 0x22, A: 0xff},
		Format:    catalina.FormatRGBA8,
	}
	var opts []catalina.Option

	if cfgPath != "" {
		c, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if opts, err = c.Options(); err != nil {
			return err
		}
		fileRC, err := c.RenderConfig()
		if err != nil {
			return err
		}
		if fileRC.Width > 0 && fileRC.Height > 0 {
			rc = fileRC
		}
		if backend == "" {
			backend = c.Renderer.Backend
		}
	}
	switch estimation {
	case "":
	case "static":
		opts = append(opts, catalina.WithEstimationMode(catalina.EstimationStatic))
	case "dynamic":
		opts = append(opts, catalina.WithEstimationMode(catalina.EstimationDynamic))
	default:
		return fmt.Errorf("unknown estimation mode %q", estimation)
	}
	if verbose {
		opts = append(opts, catalina.WithInstrumentation(func(s catalina.FrameStats) {
			logger.Debug("frame stats",
				"frame", s.FrameID,
				"mode", s.Mode,
				"attempts", s.Attempts,
				"arena_bytes", s.ArenaBytes,
				"total", s.Total)
		}))
	}

	var (
		dev device.Device
		err error
	)
	if backend != "" {
		dev, err = device.Open(backend)
	} else {
		dev, err = device.OpenDefault()
	}
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	defer dev.Close()
	logger.Info("device opened", "backend", dev.Name())

	r, err := catalina.New(dev, opts...)
	if err != nil {
		return err
	}
	defer r.Close()

	start := time.Now()
	target, err := r.Render(demoScene(rc.Width, rc.Height), rc)
	if err != nil {
		return err
	}
	logger.Info("frame rendered",
		"size", fmt.Sprintf("%dx%d", target.Width, target.Height),
		"elapsed", time.Since(start))

	f, err := os.Create(output)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := png.Encode(f, target.Image()); err != nil {
		return fmt.Errorf("encode %s: %w", output, err)
	}
	logger.Info("saved", "file", output)
	return nil
}

// demoScene builds a small scene touching every command: overlapping
// rectangles, a clipped stripe pattern, and a translucent layer.
func demoScene(width, height uint32) *scene.Scene {
	w, h := float32(width), float32(height)
	b := scene.NewBuilder()

	b.FillRect(w*0.10, h*0.10, w*0.55, h*0.55, scene.RGBA{R: 0xe8, G: 0x4a, B: 0x5f, A: 0xff})
	b.FillRect(w*0.30, h*0.30, w*0.75, h*0.75, scene.RGBA{R: 0x3f, G: 0x88, B: 0xc5, A: 0xc0})

	b.BeginClip(w*0.55, h*0.05, w*0.95, h*0.45)
	for i := 0; i < 8; i++ {
		y := h * (0.05 + 0.05*float32(i))
		b.FillRect(w*0.50, y, w, y+h*0.025, scene.RGBA{R: 0xf4, G: 0xd3, B: 0x5e, A: 0xff})
	}
	b.EndClip()

	b.PushLayer(0.5)
	b.FillRect(w*0.20, h*0.60, w*0.90, h*0.92, scene.RGBA{R: 0x6a, G: 0xd1, B: 0x8b, A: 0xff})
	b.PopLayer()

	return b.Build()
}
