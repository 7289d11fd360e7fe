// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package estimate

import (
	"errors"
	"testing"

	"github.com/gogpu/catalina/scene"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		sum       scene.Summary
		w, h      uint32
		wantField string
	}{
		{"ok", scene.Summary{DrawObjects: 10}, 800, 600, ""},
		{"zero width", scene.Summary{}, 0, 600, "width"},
		{"zero height", scene.Summary{}, 800, 0, "height"},
		{"width too large", scene.Summary{}, MaxDimension + 1, 600, "width"},
		{"height too large", scene.Summary{}, 800, MaxDimension + 1, "height"},
		{"max dimension ok", scene.Summary{}, MaxDimension, MaxDimension, ""},
		{"negative draws", scene.Summary{DrawObjects: -1}, 800, 600, "draw_objects"},
		{"negative clips", scene.Summary{Clips: -3}, 800, 600, "clips"},
		{"count over limit", scene.Summary{Paths: 1<<24 + 1}, 800, 600, "paths"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.sum, tt.w, tt.h)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var ee *EstimationError
			if !errors.As(err, &ee) {
				t.Fatalf("Validate() = %v, want *EstimationError", err)
			}
			if ee.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ee.Field, tt.wantField)
			}
		})
	}
}

func TestTilesFor(t *testing.T) {
	tests := []struct {
		w, h           uint32
		wTiles, hTiles uint32
	}{
		{16, 16, 1, 1},
		{17, 16, 2, 1},
		{1, 1, 1, 1},
		{800, 600, 50, 38},
		{64, 64, 4, 4},
	}
	for _, tt := range tests {
		wt, ht := TilesFor(tt.w, tt.h)
		if wt != tt.wTiles || ht != tt.hTiles {
			t.Errorf("TilesFor(%d, %d) = (%d, %d), want (%d, %d)",
				tt.w, tt.h, wt, ht, tt.wTiles, tt.hTiles)
		}
	}
}

func TestStatic(t *testing.T) {
	sum := scene.Summary{DrawObjects: 10, Layers: 2, Clips: 1}
	s := Static(sum, 200, 64, 64)

	if s.Output != 64*64*4 {
		t.Errorf("Output = %d, want %d", s.Output, 64*64*4)
	}
	if s.Counters != CountersLen {
		t.Errorf("Counters = %d, want %d", s.Counters, CountersLen)
	}
	// Layers and clips expand to two records each.
	wantElems := uint64(10+2*2+2*1) * 32
	if s.Elements != wantElems {
		t.Errorf("Elements = %d, want %d", s.Elements, wantElems)
	}
	if s.BinHeaders != 4*4*8 {
		t.Errorf("BinHeaders = %d, want %d", s.BinHeaders, 4*4*8)
	}
	for _, v := range []uint64{s.Scene, s.Config, s.BinData, s.Ptcl} {
		if v == 0 {
			t.Errorf("Static produced a zero-size buffer: %+v", s)
			break
		}
	}
}

func TestStaticEmptySummaryStillAllocates(t *testing.T) {
	s := Static(scene.Summary{}, 0, 32, 32)
	if s.Elements == 0 {
		t.Error("Elements should reserve at least one record")
	}
}

func TestStaticMonotonic(t *testing.T) {
	small := Static(scene.Summary{DrawObjects: 10}, 100, 256, 256)
	big := Static(scene.Summary{DrawObjects: 1000}, 100, 256, 256)
	if big.Elements <= small.Elements {
		t.Errorf("Elements not monotonic: %d <= %d", big.Elements, small.Elements)
	}
	if big.BinData <= small.BinData {
		t.Errorf("BinData not monotonic: %d <= %d", big.BinData, small.BinData)
	}

	smallTarget := Static(scene.Summary{DrawObjects: 10}, 100, 64, 64)
	bigTarget := Static(scene.Summary{DrawObjects: 10}, 100, 1024, 1024)
	if bigTarget.Ptcl <= smallTarget.Ptcl {
		t.Errorf("Ptcl not monotonic in target size: %d <= %d", bigTarget.Ptcl, smallTarget.Ptcl)
	}
	if bigTarget.Output <= smallTarget.Output {
		t.Errorf("Output not monotonic in target size: %d <= %d", bigTarget.Output, smallTarget.Output)
	}
}

func TestFromCounters(t *testing.T) {
	sum := scene.Summary{DrawObjects: 2}
	static := Static(sum, 100, 64, 64)

	t.Run("demand below static keeps static sizes", func(t *testing.T) {
		s := FromCounters(Counters{Elements: 1, BinEntries: 1, PtclWords: 7}, sum, 100, 64, 64)
		if s != static {
			t.Errorf("FromCounters() = %+v, want static %+v", s, static)
		}
	})

	t.Run("demand above static grows buffers", func(t *testing.T) {
		c := Counters{Elements: 100_000, BinEntries: 500_000, PtclWords: 6001}
		s := FromCounters(c, sum, 100, 64, 64)
		if want := uint64(100_000) * 32; s.Elements != want {
			t.Errorf("Elements = %d, want %d", s.Elements, want)
		}
		if want := uint64(500_000) * 4; s.BinData != want {
			t.Errorf("BinData = %d, want %d", s.BinData, want)
		}
		// Every tile gets a window of the peak demand: 4x4 tiles at 64x64.
		if want := uint64(6001) * 4 * 16; s.Ptcl != want {
			t.Errorf("Ptcl = %d, want %d", s.Ptcl, want)
		}
	})
}

// The resize path must produce sizes where per-tile windows cover the
// observed peak, otherwise a retry could overflow again.
func TestFromCountersWindowCoversPeak(t *testing.T) {
	sum := scene.Summary{DrawObjects: 1}
	c := Counters{PtclWords: 1 + 300*6}
	s := FromCounters(c, sum, 0, 64, 64)
	wTiles, hTiles := TilesFor(64, 64)
	nTiles := uint64(wTiles) * uint64(hTiles)
	window := s.Ptcl / 4 / nTiles
	if window < uint64(c.PtclWords) {
		t.Errorf("per-tile window %d words below peak demand %d", window, c.PtclWords)
	}
}

func TestSizesTotal(t *testing.T) {
	s := Sizes{Scene: 1, Config: 64, Elements: 257, Counters: 64, Output: 100}
	// Each nonzero buffer rounds up to 256.
	want := uint64(256 + 256 + 512 + 256 + 256)
	if got := s.Total(256); got != want {
		t.Errorf("Total(256) = %d, want %d", got, want)
	}

	unaligned := s.Scene + s.Config + s.Elements + s.Counters + s.Output
	if got := s.Total(0); got != unaligned {
		t.Errorf("Total(0) = %d, want %d", got, unaligned)
	}
}

func TestNextMultipleOf(t *testing.T) {
	tests := []struct {
		v, align, want uint64
	}{
		{0, 256, 0},
		{1, 256, 256},
		{256, 256, 256},
		{257, 256, 512},
		{5, 0, 5},
		{7, 4, 8},
	}
	for _, tt := range tests {
		if got := NextMultipleOf(tt.v, tt.align); got != tt.want {
			t.Errorf("NextMultipleOf(%d, %d) = %d, want %d", tt.v, tt.align, got, tt.want)
		}
	}
}

func TestCeilDiv(t *testing.T) {
	tests := []struct {
		a, b, want uint32
	}{
		{0, 16, 0},
		{1, 16, 1},
		{16, 16, 1},
		{17, 16, 2},
		{255, 256, 1},
	}
	for _, tt := range tests {
		if got := CeilDiv(tt.a, tt.b); got != tt.want {
			t.Errorf("CeilDiv(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCountersRoundTrip(t *testing.T) {
	c := Counters{Failed: 1, Elements: 42, BinEntries: 1000, PtclWords: 77}
	got := DecodeCounters(c.Encode())
	if got != c {
		t.Errorf("DecodeCounters(Encode()) = %+v, want %+v", got, c)
	}
	if !got.HasFailed() {
		t.Error("HasFailed() should be true")
	}
	if (Counters{}).HasFailed() {
		t.Error("zero counters should not report failure")
	}
}
