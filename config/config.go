// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package config loads renderer settings from TOML files. It exists for
// tools and examples; library users configure the renderer directly with
// options.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/catalina"
	"github.com/gogpu/catalina/pipeline"
	"github.com/gogpu/catalina/scene"
)

// Config is the TOML configuration surface.
type Config struct {
	Renderer RendererConfig `toml:"renderer"`
	Target   TargetConfig   `toml:"target"`
}

// RendererConfig configures the renderer itself.
type RendererConfig struct {
	// Backend selects the device backend; empty means best available.
	Backend string `toml:"backend"`

	// Estimation is "static" (default) or "dynamic".
	Estimation string `toml:"estimation"`

	// PoolDepth is the number of frames in flight.
	PoolDepth int `toml:"pool_depth"`

	// BlockSizeMB is the initial arena capacity in megabytes.
	BlockSizeMB int `toml:"block_size_mb"`

	// FenceTimeoutMS bounds fence waits in milliseconds.
	FenceTimeoutMS int `toml:"fence_timeout_ms"`

	// ProgramDir overrides embedded stage programs.
	ProgramDir string `toml:"program_dir"`

	// HotReload watches ProgramDir for shader changes.
	HotReload bool `toml:"hot_reload"`
}

// TargetConfig configures the render target.
type TargetConfig struct {
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`

	// Antialiasing is "area" (default), "msaa", or "none".
	Antialiasing string `toml:"antialiasing"`

	// Format is "rgba8" (default) or "bgra8".
	Format string `toml:"format"`

	// BaseColor is the background as [r, g, b, a] bytes.
	BaseColor [4]uint8 `toml:"base_color"`
}

// Load reads and parses a TOML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses TOML config bytes.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return &c, nil
}

// Options converts the renderer section into renderer options.
func (c *Config) Options() ([]catalina.Option, error) {
	var opts []catalina.Option
	switch c.Renderer.Estimation {
	case "", "static":
		opts = append(opts, catalina.WithEstimationMode(catalina.EstimationStatic))
	case "dynamic":
		opts = append(opts, catalina.WithEstimationMode(catalina.EstimationDynamic))
	default:
		return nil, fmt.Errorf("config: unknown estimation mode %q", c.Renderer.Estimation)
	}
	if c.Renderer.PoolDepth > 0 {
		opts = append(opts, catalina.WithPoolDepth(c.Renderer.PoolDepth))
	}
	if c.Renderer.BlockSizeMB > 0 {
		opts = append(opts, catalina.WithBlockSize(uint64(c.Renderer.BlockSizeMB)<<20))
	}
	if c.Renderer.FenceTimeoutMS > 0 {
		opts = append(opts, catalina.WithFenceTimeout(time.Duration(c.Renderer.FenceTimeoutMS)*time.Millisecond))
	}
	if c.Renderer.ProgramDir != "" {
		opts = append(opts, catalina.WithProgramDir(c.Renderer.ProgramDir))
		if c.Renderer.HotReload {
			opts = append(opts, catalina.WithHotReload())
		}
	}
	return opts, nil
}

// RenderConfig converts the target section into a render configuration.
func (c *Config) RenderConfig() (catalina.RenderConfig, error) {
	rc := catalina.RenderConfig{
		Width:  c.Target.Width,
		Height: c.Target.Height,
		BaseColor: scene.RGBA{
			R: c.Target.BaseColor[0],
			G: c.Target.BaseColor[1],
			B: c.Target.BaseColor[2],
			A: c.Target.BaseColor[3],
		},
	}
	switch c.Target.Antialiasing {
	case "", "area":
		rc.Antialiasing = pipeline.AAArea
	case "msaa":
		rc.Antialiasing = pipeline.AAMSAA
	case "none":
		rc.Antialiasing = pipeline.AANone
	default:
		return rc, fmt.Errorf("config: unknown antialiasing mode %q", c.Target.Antialiasing)
	}
	switch c.Target.Format {
	case "", "rgba8":
		rc.Format = catalina.FormatRGBA8
	case "bgra8":
		rc.Format = catalina.FormatBGRA8
	default:
		return rc, fmt.Errorf("config: unknown output format %q", c.Target.Format)
	}
	return rc, nil
}
