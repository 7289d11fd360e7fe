// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cpu

import (
	"fmt"
	"math"

	"github.com/gogpu/catalina/device"
	"github.com/gogpu/catalina/estimate"
	"github.com/gogpu/catalina/pipeline"
	"github.com/gogpu/catalina/scene"
)

// stageFunc executes one dispatch against its bound buffer views.
type stageFunc func(device.Dispatch) error

// stageFuncs maps program names to their host implementations. The
// semantics mirror the WGSL stage programs word for word; pixel output
// and counter values must not diverge between backends.
var stageFuncs = map[string]stageFunc{
	pipeline.StageElement.String(): execElement,
	pipeline.StageBinning.String(): execBinning,
	pipeline.StageCoarse.String():  execCoarse,
	pipeline.StageFine.String():    execFine,
	pipeline.StageCount.String():   execCount,
}

// view returns the bound byte range for a slot.
func view(d device.Dispatch, slot uint32) ([]byte, error) {
	for _, bd := range d.Bindings {
		if bd.Slot != slot {
			continue
		}
		b, ok := bd.Buffer.(*buffer)
		if !ok {
			return nil, fmt.Errorf("foreign buffer at slot %d", slot)
		}
		end := bd.Offset + bd.Size
		if bd.Size == 0 {
			end = uint64(len(b.data))
		}
		if end > uint64(len(b.data)) {
			return nil, fmt.Errorf("binding at slot %d exceeds buffer %q", slot, b.label)
		}
		return b.data[bd.Offset:end], nil
	}
	return nil, fmt.Errorf("no binding at slot %d", slot)
}

type rect struct {
	x0, y0, x1, y1 float32
}

func (r rect) empty() bool { return r.x1 <= r.x0 || r.y1 <= r.y0 }

func (r rect) intersect(o rect) rect {
	return rect{
		x0: max(r.x0, o.x0),
		y0: max(r.y0, o.y0),
		x1: min(r.x1, o.x1),
		y1: min(r.y1, o.y1),
	}
}

// decodeElements runs the element-processing semantics without a capacity
// limit: clips are intersected into bounding boxes and layer alpha is
// folded into colors at decode time, so downstream stages see final
// geometry only. Both the element stage and the counting prepass use it.
func decodeElements(data []byte, cfg pipeline.ConfigUniform) ([]pipeline.ElementRecord, error) {
	target := rect{
		x1: float32(cfg.TargetWidth),
		y1: float32(cfg.TargetHeight),
	}
	clipStack := []rect{target}
	alphaStack := []float32{1}

	var out []pipeline.ElementRecord
	dec := scene.NewDecoder(data)
	for dec.Next() {
		switch dec.Tag() {
		case scene.TagFillRect:
			x0, y0, x1, y1 := dec.Rect()
			clipped := rect{x0, y0, x1, y1}.intersect(clipStack[len(clipStack)-1])
			alpha := alphaStack[len(alphaStack)-1]
			out = append(out, pipeline.ElementRecord{
				X0:    clipped.x0,
				Y0:    clipped.y0,
				X1:    clipped.x1,
				Y1:    clipped.y1,
				Color: scaleAlpha(dec.Color(), alpha),
				Kind:  pipeline.ElementRect,
			})
		case scene.TagPushLayer:
			alphaStack = append(alphaStack, alphaStack[len(alphaStack)-1]*dec.Alpha())
		case scene.TagPopLayer:
			if len(alphaStack) > 1 {
				alphaStack = alphaStack[:len(alphaStack)-1]
			}
		case scene.TagBeginClip:
			x0, y0, x1, y1 := dec.Rect()
			clipStack = append(clipStack, rect{x0, y0, x1, y1}.intersect(clipStack[len(clipStack)-1]))
		case scene.TagEndClip:
			if len(clipStack) > 1 {
				clipStack = clipStack[:len(clipStack)-1]
			}
		}
	}
	if err := dec.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// scaleAlpha multiplies the alpha channel of a packed color.
func scaleAlpha(c uint32, alpha float32) uint32 {
	if alpha >= 1 {
		return c
	}
	a := float32(c>>24&0xff) * alpha
	return c&0x00ffffff | uint32(a+0.5)<<24
}

func readCounters(cv []byte) estimate.Counters { return estimate.DecodeCounters(cv) }

func writeCounters(cv []byte, c estimate.Counters) { copy(cv, c.Encode()) }

func execElement(d device.Dispatch) error {
	cfgv, err := view(d, pipeline.SlotConfig)
	if err != nil {
		return err
	}
	cfg := pipeline.ConfigFromBytes(cfgv)
	sv, err := view(d, pipeline.SlotScene)
	if err != nil {
		return err
	}
	ev, err := view(d, pipeline.SlotElementOut)
	if err != nil {
		return err
	}
	cv, err := view(d, pipeline.SlotCountersElem)
	if err != nil {
		return err
	}

	recs, err := decodeElements(sv, cfg)
	if err != nil {
		return err
	}
	c := readCounters(cv)
	c.Elements = uint32(len(recs))
	n := len(recs)
	if n > int(cfg.ElementsCap) {
		c.Failed = 1
		n = int(cfg.ElementsCap)
	}
	for i := 0; i < n; i++ {
		recs[i].Encode(ev, i*pipeline.ElementRecordLen)
	}
	writeCounters(cv, c)
	return nil
}

// tileRange returns the inclusive tile span a record covers, or ok=false
// for records with no renderable area.
func tileRange(r pipeline.ElementRecord, cfg pipeline.ConfigUniform) (tx0, ty0, tx1, ty1 uint32, ok bool) {
	cl := rect{r.X0, r.Y0, r.X1, r.Y1}.intersect(rect{
		x1: float32(cfg.TargetWidth),
		y1: float32(cfg.TargetHeight),
	})
	if cl.empty() {
		return 0, 0, 0, 0, false
	}
	tx0 = uint32(cl.x0) / estimate.TileWidth
	ty0 = uint32(cl.y0) / estimate.TileHeight
	tx1 = uint32(math.Ceil(float64(cl.x1))-1) / estimate.TileWidth
	ty1 = uint32(math.Ceil(float64(cl.y1))-1) / estimate.TileHeight
	if tx1 >= cfg.WidthInTiles {
		tx1 = cfg.WidthInTiles - 1
	}
	if ty1 >= cfg.HeightInTiles {
		ty1 = cfg.HeightInTiles - 1
	}
	return tx0, ty0, tx1, ty1, true
}

// binCounts computes per-tile element counts and the records they came
// from. Shared by binning and the counting prepass.
func binCounts(recs []pipeline.ElementRecord, cfg pipeline.ConfigUniform) []uint32 {
	counts := make([]uint32, cfg.WidthInTiles*cfg.HeightInTiles)
	for _, r := range recs {
		tx0, ty0, tx1, ty1, ok := tileRange(r, cfg)
		if !ok {
			continue
		}
		for ty := ty0; ty <= ty1; ty++ {
			for tx := tx0; tx <= tx1; tx++ {
				counts[ty*cfg.WidthInTiles+tx]++
			}
		}
	}
	return counts
}

func execBinning(d device.Dispatch) error {
	cfgv, err := view(d, pipeline.SlotConfig)
	if err != nil {
		return err
	}
	cfg := pipeline.ConfigFromBytes(cfgv)
	ev, err := view(d, pipeline.SlotElements)
	if err != nil {
		return err
	}
	hv, err := view(d, pipeline.SlotBinHeaders)
	if err != nil {
		return err
	}
	bv, err := view(d, pipeline.SlotBinData)
	if err != nil {
		return err
	}
	cv, err := view(d, pipeline.SlotCounters)
	if err != nil {
		return err
	}

	c := readCounters(cv)
	stored := min(c.Elements, cfg.ElementsCap)
	recs := make([]pipeline.ElementRecord, stored)
	for i := range recs {
		recs[i] = pipeline.DecodeElementRecord(ev, i*pipeline.ElementRecordLen)
	}

	counts := binCounts(recs, cfg)
	offsets := make([]uint32, len(counts))
	var total uint32
	for i, n := range counts {
		offsets[i] = total
		total += n
	}
	c.BinEntries = total
	if total > cfg.BinDataCap {
		c.Failed = 1
	}

	for i := range counts {
		off := min(offsets[i], cfg.BinDataCap)
		count := counts[i]
		if off+count > cfg.BinDataCap {
			count = cfg.BinDataCap - off
		}
		h := pipeline.BinHeader{ElementCount: count, ChunkOffset: off}
		h.Encode(hv, i*pipeline.BinHeaderLen)
	}

	cursor := make([]uint32, len(counts))
	for i, r := range recs {
		tx0, ty0, tx1, ty1, ok := tileRange(r, cfg)
		if !ok {
			continue
		}
		for ty := ty0; ty <= ty1; ty++ {
			for tx := tx0; tx <= tx1; tx++ {
				tile := ty*cfg.WidthInTiles + tx
				pos := offsets[tile] + cursor[tile]
				cursor[tile]++
				if pos < cfg.BinDataCap {
					putWord(bv, int(pos)*4, uint32(i))
				}
			}
		}
	}
	writeCounters(cv, c)
	return nil
}

func execCoarse(d device.Dispatch) error {
	cfgv, err := view(d, pipeline.SlotConfig)
	if err != nil {
		return err
	}
	cfg := pipeline.ConfigFromBytes(cfgv)
	ev, err := view(d, pipeline.SlotElements)
	if err != nil {
		return err
	}
	hv, err := view(d, pipeline.SlotBinHeaders)
	if err != nil {
		return err
	}
	bv, err := view(d, pipeline.SlotBinData)
	if err != nil {
		return err
	}
	pv, err := view(d, pipeline.SlotCoarsePtcl)
	if err != nil {
		return err
	}
	cv, err := view(d, pipeline.SlotCounters)
	if err != nil {
		return err
	}

	c := readCounters(cv)
	nTiles := cfg.WidthInTiles * cfg.HeightInTiles
	window := cfg.PtclCap / nTiles
	var peak uint32
	for tile := uint32(0); tile < nTiles; tile++ {
		h := pipeline.DecodeBinHeader(hv, int(tile)*pipeline.BinHeaderLen)
		need := 1 + h.ElementCount*pipeline.PtclFillLen
		if need > peak {
			peak = need
		}
		base := tile * window
		var cursor uint32
		for j := uint32(0); j < h.ElementCount; j++ {
			if cursor+pipeline.PtclFillLen+1 > window {
				c.Failed = 1
				break
			}
			idx := getWord(bv, int(h.ChunkOffset+j)*4)
			r := pipeline.DecodeElementRecord(ev, int(idx)*pipeline.ElementRecordLen)
			putWord(pv, int(base+cursor)*4, pipeline.PtclFill)
			putWord(pv, int(base+cursor+1)*4, math.Float32bits(r.X0))
			putWord(pv, int(base+cursor+2)*4, math.Float32bits(r.Y0))
			putWord(pv, int(base+cursor+3)*4, math.Float32bits(r.X1))
			putWord(pv, int(base+cursor+4)*4, math.Float32bits(r.Y1))
			putWord(pv, int(base+cursor+5)*4, r.Color)
			cursor += pipeline.PtclFillLen
		}
		if window > 0 {
			putWord(pv, int(base+cursor)*4, pipeline.PtclEnd)
		} else if h.ElementCount > 0 {
			c.Failed = 1
		}
	}
	if peak > c.PtclWords {
		c.PtclWords = peak
	}
	writeCounters(cv, c)
	return nil
}

func execFine(d device.Dispatch) error {
	cfgv, err := view(d, pipeline.SlotConfig)
	if err != nil {
		return err
	}
	cfg := pipeline.ConfigFromBytes(cfgv)
	pv, err := view(d, pipeline.SlotFinePtcl)
	if err != nil {
		return err
	}
	ov, err := view(d, pipeline.SlotOutput)
	if err != nil {
		return err
	}

	nTiles := cfg.WidthInTiles * cfg.HeightInTiles
	window := cfg.PtclCap / nTiles
	for ty := uint32(0); ty < cfg.HeightInTiles; ty++ {
		for tx := uint32(0); tx < cfg.WidthInTiles; tx++ {
			base := (ty*cfg.WidthInTiles + tx) * window
			renderTile(ov, pv, base, window, tx, ty, cfg)
		}
	}
	return nil
}

// renderTile rasterizes one tile's command list into the output buffer.
func renderTile(out, ptcl []byte, base, window, tx, ty uint32, cfg pipeline.ConfigUniform) {
	px0 := tx * estimate.TileWidth
	py0 := ty * estimate.TileHeight
	px1 := min(px0+estimate.TileWidth, cfg.TargetWidth)
	py1 := min(py0+estimate.TileHeight, cfg.TargetHeight)

	for py := py0; py < py1; py++ {
		for px := px0; px < px1; px++ {
			r, g, b, a := unpack(cfg.BaseColor)
			cursor := uint32(0)
			for cursor < window {
				op := getWord(ptcl, int(base+cursor)*4)
				if op == pipeline.PtclEnd {
					break
				}
				// PtclFill
				fr := rect{
					x0: math.Float32frombits(getWord(ptcl, int(base+cursor+1)*4)),
					y0: math.Float32frombits(getWord(ptcl, int(base+cursor+2)*4)),
					x1: math.Float32frombits(getWord(ptcl, int(base+cursor+3)*4)),
					y1: math.Float32frombits(getWord(ptcl, int(base+cursor+4)*4)),
				}
				col := getWord(ptcl, int(base+cursor+5)*4)
				cov := coverage(fr, px, py, cfg.AA)
				if cov > 0 {
					sr, sg, sb, sa := unpack(col)
					r, g, b, a = blend(r, g, b, a, sr, sg, sb, sa*cov)
				}
				cursor += pipeline.PtclFillLen
			}
			off := int(py*cfg.TargetWidth+px) * 4
			out[off+0] = quant(r)
			out[off+1] = quant(g)
			out[off+2] = quant(b)
			out[off+3] = quant(a)
		}
	}
}

// coverage returns the fraction of the pixel at (px, py) covered by r.
func coverage(r rect, px, py uint32, aa pipeline.AAMode) float32 {
	if aa == pipeline.AANone {
		cx := float32(px) + 0.5
		cy := float32(py) + 0.5
		if cx >= r.x0 && cx < r.x1 && cy >= r.y0 && cy < r.y1 {
			return 1
		}
		return 0
	}
	w := min(r.x1, float32(px+1)) - max(r.x0, float32(px))
	h := min(r.y1, float32(py+1)) - max(r.y0, float32(py))
	if w <= 0 || h <= 0 {
		return 0
	}
	return min(w, 1) * min(h, 1)
}

func unpack(c uint32) (r, g, b, a float32) {
	return float32(c&0xff) / 255,
		float32(c>>8&0xff) / 255,
		float32(c>>16&0xff) / 255,
		float32(c>>24&0xff) / 255
}

// blend composites a straight-alpha source over a straight-alpha dst.
func blend(dr, dg, db, da, sr, sg, sb, sa float32) (r, g, b, a float32) {
	a = sa + da*(1-sa)
	if a == 0 {
		return 0, 0, 0, 0
	}
	r = (sr*sa + dr*da*(1-sa)) / a
	g = (sg*sa + dg*da*(1-sa)) / a
	b = (sb*sa + db*da*(1-sa)) / a
	return r, g, b, a
}

func quant(v float32) byte {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return byte(v*255 + 0.5)
}

func execCount(d device.Dispatch) error {
	cfgv, err := view(d, pipeline.SlotConfig)
	if err != nil {
		return err
	}
	cfg := pipeline.ConfigFromBytes(cfgv)
	sv, err := view(d, pipeline.SlotScene)
	if err != nil {
		return err
	}
	cv, err := view(d, pipeline.SlotCountersElem)
	if err != nil {
		return err
	}

	recs, err := decodeElements(sv, cfg)
	if err != nil {
		return err
	}
	counts := binCounts(recs, cfg)
	var total, peakTile uint32
	for _, n := range counts {
		total += n
		if n > peakTile {
			peakTile = n
		}
	}
	writeCounters(cv, estimate.Counters{
		Elements:   uint32(len(recs)),
		BinEntries: total,
		PtclWords:  1 + peakTile*pipeline.PtclFillLen,
	})
	return nil
}

func putWord(b []byte, off int, v uint32) {
	b[off+0] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 16)
	b[off+3] = byte(v >> 24)
}

func getWord(b []byte, off int) uint32 {
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
}
