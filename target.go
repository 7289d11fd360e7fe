// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package catalina

import (
	"image"
	imgdraw "image/draw"

	xdraw "golang.org/x/image/draw"
)

// Target is a rendered frame on the host: a tightly packed pixel buffer
// in the configured output format. A Target is written all-or-nothing; a
// failed render call never returns a partially written one.
type Target struct {
	Width  uint32
	Height uint32
	Format OutputFormat
	Pix    []byte
}

// newTarget allocates a cleared target filled with the base color.
func newTarget(cfg RenderConfig) *Target {
	t := &Target{
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: cfg.Format,
		Pix:    make([]byte, int(cfg.Width)*int(cfg.Height)*4),
	}
	c := cfg.BaseColor
	px := [4]byte{c.R, c.G, c.B, c.A}
	if cfg.Format == FormatBGRA8 {
		px[0], px[2] = px[2], px[0]
	}
	for i := 0; i < len(t.Pix); i += 4 {
		copy(t.Pix[i:], px[:])
	}
	return t
}

// fromRGBA fills the target from the pipeline's RGBA8 output, swizzling
// if the configured format differs.
func (t *Target) fromRGBA(src []byte) {
	copy(t.Pix, src)
	if t.Format == FormatBGRA8 {
		for i := 0; i < len(t.Pix); i += 4 {
			t.Pix[i], t.Pix[i+2] = t.Pix[i+2], t.Pix[i]
		}
	}
}

// Image returns the target as a straight-alpha image. The pixel data is
// shared, not copied; BGRA targets are converted and therefore copied.
func (t *Target) Image() *image.NRGBA {
	if t.Format == FormatRGBA8 {
		return &image.NRGBA{
			Pix:    t.Pix,
			Stride: int(t.Width) * 4,
			Rect:   image.Rect(0, 0, int(t.Width), int(t.Height)),
		}
	}
	img := image.NewNRGBA(image.Rect(0, 0, int(t.Width), int(t.Height)))
	for i := 0; i < len(t.Pix); i += 4 {
		img.Pix[i+0] = t.Pix[i+2]
		img.Pix[i+1] = t.Pix[i+1]
		img.Pix[i+2] = t.Pix[i+0]
		img.Pix[i+3] = t.Pix[i+3]
	}
	return img
}

// Draw copies the target into dst, scaling with nearest-neighbor when the
// bounds differ.
func (t *Target) Draw(dst imgdraw.Image) {
	src := t.Image()
	if dst.Bounds().Size() == src.Bounds().Size() {
		xdraw.Copy(dst, dst.Bounds().Min, src, src.Bounds(), xdraw.Src, nil)
		return
	}
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
}
