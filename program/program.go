// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package program owns the WGSL stage sources and their compiled
// programs. Sources are embedded in the binary; an override directory can
// shadow them file by file, which is also what the hot-reload watcher
// monitors during development.
package program

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gogpu/catalina/device"
	"github.com/gogpu/catalina/pipeline"
)

//go:embed shaders/*.wgsl
var shaderFS embed.FS

// FineMSAA is the name of the optional MSAA fine-stage variant. It is not
// embedded; rendering with MSAA requires an override directory that
// provides it.
const FineMSAA = "fine_msaa"

// ErrNoSource is returned when no WGSL source exists for a program name.
var ErrNoSource = errors.New("program: no source")

// Option configures a Cache.
type Option func(*Cache)

// WithDir sets an override directory. Files named <stage>.wgsl in it
// shadow the embedded sources.
func WithDir(dir string) Option {
	return func(c *Cache) { c.dir = dir }
}

// Cache compiles stage programs on demand and keeps them until
// invalidated. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	dev      device.Device
	dir      string
	programs map[string]device.Program
}

// NewCache creates a program cache for the device.
func NewCache(dev device.Device, opts ...Option) *Cache {
	c := &Cache{
		dev:      dev,
		programs: make(map[string]device.Program),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// source returns the WGSL source for a program name, preferring the
// override directory.
func (c *Cache) source(name string) (string, error) {
	if c.dir != "" {
		path := filepath.Join(c.dir, name+".wgsl")
		if data, err := os.ReadFile(path); err == nil {
			return string(data), nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("program: read %s: %w", path, err)
		}
	}
	data, err := shaderFS.ReadFile("shaders/" + name + ".wgsl")
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNoSource, name)
	}
	return string(data), nil
}

// get compiles and caches the named program.
func (c *Cache) get(name string) (device.Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.programs[name]; ok {
		return p, nil
	}
	src, err := c.source(name)
	if err != nil {
		return nil, err
	}
	p, err := c.dev.CreateProgram(name, src)
	if err != nil {
		return nil, fmt.Errorf("program: compile %s: %w", name, err)
	}
	c.programs[name] = p
	return p, nil
}

// Get returns the compiled program for a stage.
func (c *Cache) Get(stage pipeline.Stage) (device.Program, error) {
	return c.get(stage.String())
}

// Fine returns the fine-stage program for an antialiasing mode. Area and
// center-sample modes share the embedded fine program, which switches on
// the config's aa_mode; MSAA needs the override variant.
func (c *Cache) Fine(mode pipeline.AAMode) (device.Program, error) {
	if mode == pipeline.AAMSAA {
		return c.get(FineMSAA)
	}
	return c.get(pipeline.StageFine.String())
}

// MainStages returns programs for the four main stages, with the fine
// stage selected by antialiasing mode.
func (c *Cache) MainStages(mode pipeline.AAMode) (map[pipeline.Stage]device.Program, error) {
	out := make(map[pipeline.Stage]device.Program, len(pipeline.Stages))
	for _, s := range pipeline.Stages {
		var (
			p   device.Program
			err error
		)
		if s == pipeline.StageFine {
			p, err = c.Fine(mode)
		} else {
			p, err = c.Get(s)
		}
		if err != nil {
			return nil, err
		}
		out[s] = p
	}
	return out, nil
}

// SupportsAA reports whether programs exist for an antialiasing mode.
func (c *Cache) SupportsAA(mode pipeline.AAMode) bool {
	if mode != pipeline.AAMSAA {
		return true
	}
	if c.dir == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(c.dir, FineMSAA+".wgsl"))
	return err == nil
}

// Invalidate destroys every cached program so the next Get recompiles
// from source. Called by the hot-reload watcher between frames; never
// call it while a frame using the programs is in flight.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, p := range c.programs {
		c.dev.DestroyProgram(p)
		delete(c.programs, name)
	}
}

// Close releases all compiled programs.
func (c *Cache) Close() {
	c.Invalidate()
}
