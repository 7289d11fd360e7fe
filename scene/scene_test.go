// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestRGBAPacked(t *testing.T) {
	tests := []struct {
		name string
		c    RGBA
		want uint32
	}{
		{"black", RGBA{0, 0, 0, 0}, 0x00000000},
		{"opaque white", RGBA{255, 255, 255, 255}, 0xffffffff},
		{"red low byte", RGBA{R: 0xff, A: 0xff}, 0xff0000ff},
		{"channel order", RGBA{R: 0x11, G: 0x22, B: 0x33, A: 0x44}, 0x44332211},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.Packed(); got != tt.want {
				t.Errorf("Packed() = %#08x, want %#08x", got, tt.want)
			}
		})
	}
}

func TestSummaryIsEmpty(t *testing.T) {
	if !(Summary{}).IsEmpty() {
		t.Error("zero Summary should be empty")
	}
	if (Summary{Layers: 1}).IsEmpty() {
		t.Error("Summary with a layer should not be empty")
	}
}

func TestSceneIsEmpty(t *testing.T) {
	var nilScene *Scene
	if !nilScene.IsEmpty() {
		t.Error("nil scene should be empty")
	}
	if !NewBuilder().Build().IsEmpty() {
		t.Error("freshly built scene should be empty")
	}

	b := NewBuilder()
	b.FillRect(0, 0, 1, 1, RGBA{A: 255})
	if b.Build().IsEmpty() {
		t.Error("scene with a rect should not be empty")
	}
}

func TestBuilderSummary(t *testing.T) {
	b := NewBuilder()
	b.PushLayer(0.5)
	b.BeginClip(0, 0, 10, 10)
	b.FillRect(1, 1, 5, 5, RGBA{R: 255, A: 255})
	b.FillRect(2, 2, 6, 6, RGBA{G: 255, A: 255})
	b.EndClip()
	b.PopLayer()

	got := b.Summary()
	want := Summary{Paths: 2, DrawObjects: 2, Clips: 1, Layers: 1}
	if got != want {
		t.Errorf("Summary() = %+v, want %+v", got, want)
	}

	b.Reset()
	if !b.Summary().IsEmpty() {
		t.Error("Reset should clear the summary")
	}
	if len(b.Build().Data()) != 0 {
		t.Error("Reset should clear the stream")
	}
}

func TestBuildCopiesStream(t *testing.T) {
	b := NewBuilder()
	b.FillRect(0, 0, 4, 4, RGBA{R: 255, A: 255})
	s := b.Build()
	data := s.Data()

	b.FillRect(4, 4, 8, 8, RGBA{B: 255, A: 255})
	if len(s.Data()) != len(data) {
		t.Error("built scene must not alias the builder")
	}
}

func TestDecoderRoundTrip(t *testing.T) {
	b := NewBuilder()
	b.PushLayer(0.25)
	b.BeginClip(1, 2, 3, 4)
	b.FillRect(10, 20, 30, 40, RGBA{R: 0xaa, G: 0xbb, B: 0xcc, A: 0xdd})
	b.EndClip()
	b.PopLayer()

	dec := NewDecoder(b.Build().Data())
	var tags []Tag
	for dec.Next() {
		tags = append(tags, dec.Tag())
		switch dec.Tag() {
		case TagPushLayer:
			if dec.Alpha() != 0.25 {
				t.Errorf("Alpha() = %v, want 0.25", dec.Alpha())
			}
		case TagBeginClip:
			x0, y0, x1, y1 := dec.Rect()
			if x0 != 1 || y0 != 2 || x1 != 3 || y1 != 4 {
				t.Errorf("clip Rect() = (%v,%v,%v,%v), want (1,2,3,4)", x0, y0, x1, y1)
			}
		case TagFillRect:
			x0, y0, x1, y1 := dec.Rect()
			if x0 != 10 || y0 != 20 || x1 != 30 || y1 != 40 {
				t.Errorf("fill Rect() = (%v,%v,%v,%v), want (10,20,30,40)", x0, y0, x1, y1)
			}
			if want := (RGBA{R: 0xaa, G: 0xbb, B: 0xcc, A: 0xdd}).Packed(); dec.Color() != want {
				t.Errorf("Color() = %#08x, want %#08x", dec.Color(), want)
			}
		}
	}
	if err := dec.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	want := []Tag{TagPushLayer, TagBeginClip, TagFillRect, TagEndClip, TagPopLayer}
	if len(tags) != len(want) {
		t.Fatalf("decoded %d commands, want %d", len(tags), len(want))
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Errorf("command %d = %v, want %v", i, tags[i], want[i])
		}
	}
}

func TestDecoderErrors(t *testing.T) {
	t.Run("unknown tag", func(t *testing.T) {
		var buf []byte
		buf = binary.LittleEndian.AppendUint32(buf, 0xdeadbeef)
		dec := NewDecoder(buf)
		if dec.Next() {
			t.Fatal("Next() should fail on unknown tag")
		}
		if !errors.Is(dec.Err(), ErrUnknownTag) {
			t.Errorf("Err() = %v, want ErrUnknownTag", dec.Err())
		}
	})

	t.Run("truncated payload", func(t *testing.T) {
		b := NewBuilder()
		b.FillRect(0, 0, 1, 1, RGBA{A: 255})
		data := b.Build().Data()
		dec := NewDecoder(data[:len(data)-4])
		if dec.Next() {
			t.Fatal("Next() should fail on truncated payload")
		}
		if !errors.Is(dec.Err(), ErrTruncatedStream) {
			t.Errorf("Err() = %v, want ErrTruncatedStream", dec.Err())
		}
	})

	t.Run("truncated tag", func(t *testing.T) {
		dec := NewDecoder([]byte{0x21, 0x00})
		if dec.Next() {
			t.Fatal("Next() should fail on truncated tag")
		}
		if !errors.Is(dec.Err(), ErrTruncatedStream) {
			t.Errorf("Err() = %v, want ErrTruncatedStream", dec.Err())
		}
	})

	t.Run("empty stream", func(t *testing.T) {
		dec := NewDecoder(nil)
		if dec.Next() {
			t.Fatal("Next() should return false on empty stream")
		}
		if dec.Err() != nil {
			t.Errorf("Err() = %v, want nil", dec.Err())
		}
	})
}
