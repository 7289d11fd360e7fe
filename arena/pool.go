// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package arena

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/catalina/device"
)

// Pool errors.
var (
	// ErrPoolClosed is returned when operating on a closed pool.
	ErrPoolClosed = errors.New("arena: pool closed")

	// ErrPoolExhausted is returned when no arena becomes free within the
	// acquire timeout.
	ErrPoolExhausted = errors.New("arena: pool exhausted")
)

// Pool defaults.
const (
	// DefaultDepth is the number of arenas kept in flight. Two allows one
	// frame to be recorded while the previous one executes.
	DefaultDepth = 2

	// DefaultBlockSize is the initial capacity of each arena (16 MB).
	DefaultBlockSize = 16 << 20

	// DefaultAcquireTimeout bounds the wait for a free arena.
	DefaultAcquireTimeout = 5 * time.Second

	// DefaultFenceTimeout bounds the wait for a released arena's fence.
	DefaultFenceTimeout = 2 * time.Second
)

// PoolConfig holds configuration for creating a Pool.
type PoolConfig struct {
	// Depth is the number of arenas. Defaults to DefaultDepth if <= 0.
	Depth int

	// BlockSize is the initial arena capacity in bytes.
	// Defaults to DefaultBlockSize if 0.
	BlockSize uint64

	// AcquireTimeout bounds Acquire when all arenas are in use.
	AcquireTimeout time.Duration

	// FenceTimeout bounds the fence wait before an arena is reused.
	FenceTimeout time.Duration
}

// PoolStats contains pool usage statistics.
type PoolStats struct {
	Depth      int
	Free       int
	Acquires   uint64
	FenceWaits uint64
	Grows      uint64
	BlockBytes uint64
}

// String returns a human-readable summary of the stats.
func (s PoolStats) String() string {
	return fmt.Sprintf("Pool[%d/%d free, %d acquires, %d fence waits, %d grows, %d MB blocks]",
		s.Free, s.Depth, s.Acquires, s.FenceWaits, s.Grows, s.BlockBytes/(1024*1024))
}

// Pool recycles arenas across frames. Each arena carries the fence of the
// frame that last used it; Acquire waits that fence before handing the
// arena out, so recycled memory is never touched while the device still
// reads it.
//
// Pool is safe for concurrent use.
type Pool struct {
	mu  sync.Mutex
	dev device.Device
	cfg PoolConfig

	free chan *Arena

	acquires   uint64
	fenceWaits uint64
	grows      uint64
	blockBytes uint64

	closed bool
}

// NewPool creates a pool of pre-allocated arenas.
func NewPool(dev device.Device, cfg PoolConfig) (*Pool, error) {
	if cfg.Depth <= 0 {
		cfg.Depth = DefaultDepth
	}
	if cfg.BlockSize == 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = DefaultAcquireTimeout
	}
	if cfg.FenceTimeout <= 0 {
		cfg.FenceTimeout = DefaultFenceTimeout
	}

	p := &Pool{
		dev:        dev,
		cfg:        cfg,
		free:       make(chan *Arena, cfg.Depth),
		blockBytes: cfg.BlockSize,
	}
	for i := 0; i < cfg.Depth; i++ {
		a, err := New(dev, cfg.BlockSize, fmt.Sprintf("frame-arena-%d", i))
		if err != nil {
			p.Invalidate()
			return nil, err
		}
		p.free <- a
	}
	return p, nil
}

// Acquire returns a reset arena with at least minSize capacity. If the
// arena's previous frame has not retired, Acquire blocks on its fence
// first. Blocks up to the acquire timeout when all arenas are in use.
func (p *Pool) Acquire(minSize uint64) (*Arena, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.acquires++
	p.mu.Unlock()

	var a *Arena
	select {
	case a = <-p.free:
	default:
		timer := time.NewTimer(p.cfg.AcquireTimeout)
		defer timer.Stop()
		select {
		case a = <-p.free:
		case <-timer.C:
			return nil, ErrPoolExhausted
		}
	}

	if a.fence != nil {
		p.mu.Lock()
		p.fenceWaits++
		p.mu.Unlock()
		ok, err := p.dev.Wait(a.fence, p.cfg.FenceTimeout)
		if err == nil && !ok {
			err = device.ErrFenceTimeout
		}
		p.dev.DestroyFence(a.fence)
		a.fence = nil
		if err != nil {
			// The arena may still be referenced by the device. Do not
			// recycle it; replace it so the pool keeps its depth.
			a.destroy()
			repl, rerr := New(p.dev, p.cfg.BlockSize, "frame-arena-replacement")
			if rerr == nil {
				p.free <- repl
			}
			return nil, fmt.Errorf("arena: wait for recycled arena: %w", err)
		}
	}
	a.Reset()

	if minSize > a.Size() {
		p.mu.Lock()
		p.grows++
		if minSize > p.blockBytes {
			p.blockBytes = minSize
		}
		p.mu.Unlock()
		if err := a.grow(minSize, "frame-arena-grown"); err != nil {
			p.free <- a
			return nil, err
		}
	}
	return a, nil
}

// Release returns an arena to the pool, recording the fence of the frame
// that used it. A nil fence marks the arena immediately reusable.
func (p *Pool) Release(a *Arena, fence device.Fence) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		if fence != nil {
			p.dev.DestroyFence(fence)
		}
		a.destroy()
		return
	}
	a.fence = fence
	p.free <- a
}

// Invalidate destroys every pooled arena without waiting on fences. Used
// after device loss, when fences will never signal and the buffers are
// already gone.
func (p *Pool) Invalidate() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case a := <-p.free:
			a.destroy()
		default:
			return
		}
	}
}

// Close waits for outstanding fences and releases all arenas. Arenas not
// yet released back to the pool are the caller's to destroy.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case a := <-p.free:
			if a.fence != nil {
				p.dev.Wait(a.fence, p.cfg.FenceTimeout) //nolint:errcheck
			}
			a.destroy()
		default:
			return
		}
	}
}

// Stats returns a snapshot of pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Depth:      p.cfg.Depth,
		Free:       len(p.free),
		Acquires:   p.acquires,
		FenceWaits: p.fenceWaits,
		Grows:      p.grows,
		BlockBytes: p.blockBytes,
	}
}
