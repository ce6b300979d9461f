package acf

import (
	"image"
	"runtime"
	"sync"

	"github.com/pkg/errors"
)

// detectParams is the per call snapshot of everything the sliding cascade
// needs, resolved from Options once so the hot loop reads plain ints.
type detectParams struct {
	modelDs    image.Point
	modelDsPad image.Point
	shrink     int
	stride     int
	pad        image.Point
	cascThr    float64
	granular   int
	hs         []float32
	thrs       []float32
	quantize   bool
}

func newDetectParams(opts *Options, clf *Classifier) (detectParams, error) {
	p := detectParams{
		modelDs:    opts.ModelDs.GetOr(image.Point{X: 32, Y: 32}),
		modelDsPad: opts.ModelDsPad.GetOr(image.Point{X: 32, Y: 32}),
		shrink:     opts.Pyramid.Chns.Shrink.GetOr(defShrink),
		stride:     opts.Stride.GetOr(defStride),
		pad:        opts.Pyramid.Pad.GetOr(image.Point{}),
		cascThr:    opts.CascThr.GetOr(defCascThr),
		granular:   opts.CascGranularity.GetOr(1),
		quantize:   opts.Quantize.GetOr(false),
	}
	if p.stride%p.shrink != 0 {
		return p, errors.Wrapf(ErrConfiguration, "detect: stride %d not a multiple of shrink %d", p.stride, p.shrink)
	}
	if p.modelDsPad.X%p.shrink != 0 || p.modelDsPad.Y%p.shrink != 0 {
		return p, errors.Wrapf(ErrConfiguration,
			"detect: padded model size %dx%d not a multiple of shrink %d", p.modelDsPad.X, p.modelDsPad.Y, p.shrink)
	}
	if p.granular < 1 {
		p.granular = 1
	}
	p.hs = clf.calibrated(opts.CascCal.GetOr(defCascCal))
	if p.quantize {
		p.thrs = clf.ScaledThresholds()
	} else {
		p.thrs = clf.Thrs
	}
	return p, nil
}

// windowFeatureCount is the number of features a single window exposes.
func windowFeatureCount(p detectParams, nChns int) int {
	return nChns * (p.modelDsPad.X / p.shrink) * (p.modelDsPad.Y / p.shrink)
}

// buildCids maps every window relative feature id onto a flat offset into the
// level tensor. Feature ids enumerate the window block channel by channel,
// column by column, row innermost; the offsets fold in the level width so the
// evaluator only adds the window origin.
func buildCids(p detectParams, t Tensor) []int {
	wd := p.modelDsPad.X / p.shrink
	hd := p.modelDsPad.Y / p.shrink
	cids := make([]int, t.NCh*wd*hd)
	m := 0
	for c := 0; c < t.NCh; c++ {
		for x := 0; x < wd; x++ {
			for y := 0; y < hd; y++ {
				cids[m] = c*t.W*t.H + y*t.W + x
				m++
			}
		}
	}
	return cids
}

// evalWindow runs the calibrated soft cascade on one window and reports the
// accumulated score plus whether the window survived every stage.
func evalWindow(clf *Classifier, p detectParams, data []float32, thrs []float32, cids []int, base int) (float64, bool) {
	h := 0.0
	nodes := clf.TreeNodes
	for t := 0; t < clf.NTrees; t++ {
		root := t * nodes
		k := 0
		for clf.Child[root+k] != 0 {
			n := root + k
			if data[base+cids[clf.Fids[n]]] < thrs[n] {
				k = int(clf.Child[n]) - 1
			} else {
				k = int(clf.Child[n])
			}
		}
		h += float64(p.hs[root+k])
		if (t+1)%p.granular == 0 && h <= p.cascThr {
			return h, false
		}
	}
	return h, h > p.cascThr
}

// evalWindowU8 is evalWindow over the quantized byte tensor. Thresholds come
// prescaled by 255 so the comparison stays in the byte domain.
func evalWindowU8(clf *Classifier, p detectParams, data []uint8, thrs []float32, cids []int, base int) (float64, bool) {
	h := 0.0
	nodes := clf.TreeNodes
	for t := 0; t < clf.NTrees; t++ {
		root := t * nodes
		k := 0
		for clf.Child[root+k] != 0 {
			n := root + k
			if float32(data[base+cids[clf.Fids[n]]]) < thrs[n] {
				k = int(clf.Child[n]) - 1
			} else {
				k = int(clf.Child[n])
			}
		}
		h += float64(p.hs[root+k])
		if (t+1)%p.granular == 0 && h <= p.cascThr {
			return h, false
		}
	}
	return h, h > p.cascThr
}

// detectLevel slides the cascade over one pyramid level. Rows of window
// positions are evaluated in parallel; hits are collected per row and stitched
// back in scan order so the output is independent of scheduling.
func detectLevel(clf *Classifier, p detectParams, lvl *Level) []Detection {
	t := lvl.Chns
	wd := p.modelDsPad.X / p.shrink
	hd := p.modelDsPad.Y / p.shrink
	strideC := p.stride / p.shrink
	nw := (t.W-wd)/strideC + 1
	nh := (t.H-hd)/strideC + 1
	if nw < 1 || nh < 1 {
		return nil
	}
	cids := buildCids(p, t)

	thrs := p.thrs
	var u8 []uint8
	if p.quantize {
		u8 = t.U8
	}

	shiftX := float64(p.modelDsPad.X-p.modelDs.X)/2 - float64(p.pad.X)
	shiftY := float64(p.modelDsPad.Y-p.modelDs.Y)/2 - float64(p.pad.Y)
	scaleH, scaleW := lvl.ScaleHW[0], lvl.ScaleHW[1]

	rows := make([][]Detection, nh)
	workers := runtime.GOMAXPROCS(0)
	if workers > nh {
		workers = nh
	}
	var wg sync.WaitGroup
	rowCh := make(chan int, nh)
	for r := 0; r < nh; r++ {
		rowCh <- r
	}
	close(rowCh)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range rowCh {
				y0 := r * strideC
				var hits []Detection
				for c := 0; c < nw; c++ {
					x0 := c * strideC
					base := y0*t.W + x0
					var score float64
					var ok bool
					if u8 != nil {
						score, ok = evalWindowU8(clf, p, u8, thrs, cids, base)
					} else {
						score, ok = evalWindow(clf, p, t.Data, thrs, cids, base)
					}
					if !ok {
						continue
					}
					hits = append(hits, Detection{
						X:     (float64(c*p.stride) + shiftX) / scaleW,
						Y:     (float64(r*p.stride) + shiftY) / scaleH,
						W:     float64(p.modelDs.X) / lvl.Scale,
						H:     float64(p.modelDs.Y) / lvl.Scale,
						Score: score,
					})
				}
				rows[r] = hits
			}
		}()
	}
	wg.Wait()

	var out []Detection
	for _, hits := range rows {
		out = append(out, hits...)
	}
	return out
}

// windowGrid records, per level, the window rectangles the sliding pass
// visits, in channel coordinates. Useful for debugging and for callers that
// extract window features directly.
func windowGrid(p detectParams, lvl *Level) []image.Rectangle {
	wd := p.modelDsPad.X / p.shrink
	hd := p.modelDsPad.Y / p.shrink
	strideC := p.stride / p.shrink
	t := lvl.Chns
	nw := (t.W-wd)/strideC + 1
	nh := (t.H-hd)/strideC + 1
	if nw < 1 || nh < 1 {
		return nil
	}
	rois := make([]image.Rectangle, 0, nw*nh)
	for r := 0; r < nh; r++ {
		for c := 0; c < nw; c++ {
			rois = append(rois, image.Rect(c*strideC, r*strideC, c*strideC+wd, r*strideC+hd))
		}
	}
	return rois
}

// detectPyramid runs the cascade over every level, finest first, and tags the
// pooled detections with their insertion order for deterministic suppression.
func detectPyramid(clf *Classifier, p detectParams, pyr *Pyramid) []Detection {
	var out []Detection
	for i := range pyr.Levels {
		lvl := &pyr.Levels[i]
		if lvl.ROIs == nil {
			lvl.ROIs = windowGrid(p, lvl)
		}
		if p.quantize && lvl.Chns.U8 == nil {
			lvl.Chns.Quantize()
		}
		for _, d := range detectLevel(clf, p, lvl) {
			d.order = len(out)
			out = append(out, d)
		}
	}
	return out
}
