// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package arena_test

import (
	"errors"
	"testing"

	"github.com/gogpu/catalina/arena"
	"github.com/gogpu/catalina/device/cpu"
)

func TestArenaAlloc(t *testing.T) {
	dev := cpu.New()
	defer dev.Close()

	a, err := arena.New(dev, 4096, "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Size() != 4096 {
		t.Errorf("Size() = %d, want 4096", a.Size())
	}

	r1, err := a.Alloc(100)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if r1.Offset != 0 || r1.Size != 100 {
		t.Errorf("first region = {%d, %d}, want {0, 100}", r1.Offset, r1.Size)
	}

	// Bump offset advances to the next aligned boundary.
	r2, err := a.Alloc(100)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if r2.Offset != arena.RegionAlign {
		t.Errorf("second region offset = %d, want %d", r2.Offset, arena.RegionAlign)
	}
	if r1.Buffer != r2.Buffer {
		t.Error("regions should share the backing buffer")
	}
	if a.Used() != uint64(arena.RegionAlign)+100 {
		t.Errorf("Used() = %d, want %d", a.Used(), arena.RegionAlign+100)
	}
}

func TestArenaOverflow(t *testing.T) {
	dev := cpu.New()
	defer dev.Close()

	a, err := arena.New(dev, 1024, "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.Alloc(512); err != nil {
		t.Fatalf("Alloc(512): %v", err)
	}
	used := a.Used()

	_, err = a.Alloc(1024)
	var ov *arena.Overflow
	if !errors.As(err, &ov) {
		t.Fatalf("Alloc = %v, want *Overflow", err)
	}
	if ov.Requested != 1024 {
		t.Errorf("Requested = %d, want 1024", ov.Requested)
	}
	// A failed allocation leaves the arena unchanged.
	if a.Used() != used {
		t.Errorf("Used() = %d after overflow, want %d", a.Used(), used)
	}
}

func TestArenaReset(t *testing.T) {
	dev := cpu.New()
	defer dev.Close()

	a, err := arena.New(dev, 1024, "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.Alloc(512); err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	a.Reset()
	if a.Used() != 0 {
		t.Errorf("Used() = %d after Reset, want 0", a.Used())
	}
	r, err := a.Alloc(1024)
	if err != nil {
		t.Fatalf("Alloc after Reset: %v", err)
	}
	if r.Offset != 0 {
		t.Errorf("offset = %d after Reset, want 0", r.Offset)
	}
}

func TestArenaDeterministicOffsets(t *testing.T) {
	dev := cpu.New()
	defer dev.Close()

	a, err := arena.New(dev, 1<<20, "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sizes := []uint64{100, 64, 300, 4096, 12}

	var first []uint64
	for _, s := range sizes {
		r, err := a.Alloc(s)
		if err != nil {
			t.Fatalf("Alloc(%d): %v", s, err)
		}
		first = append(first, r.Offset)
	}
	a.Reset()
	for i, s := range sizes {
		r, err := a.Alloc(s)
		if err != nil {
			t.Fatalf("Alloc(%d): %v", s, err)
		}
		if r.Offset != first[i] {
			t.Errorf("allocation %d offset = %d, want %d", i, r.Offset, first[i])
		}
	}
}
