package acf

import (
	"image"
	"math"
	"sort"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// Level is one computed scale of the pyramid: the stacked channel tensor plus
// the geometry needed to map window coordinates back to the input image.
type Level struct {
	// Scale is the nominal relative scale of this level.
	Scale float64
	// ScaleHW are the exact per axis scales actually realized after
	// rounding the resampled size to a multiple of shrink (height, width).
	ScaleHW [2]float64
	// Chns is the padded channel tensor.
	Chns Tensor
	// ROIs is the grid of window rectangles, in channel coordinates, that a
	// sliding evaluation visits at the configured stride.
	ROIs []image.Rectangle
}

// Pyramid is the scale indexed set of channel tensors for one image.
type Pyramid struct {
	// Opts records the exact parameters used (may differ from the request:
	// computed lambdas are filled in).
	Opts    PyramidOpts
	Levels  []Level
	Info    []ChannelInfo
	Lambdas []float64
	// Scales lists the nominal scale of every level, finest first.
	Scales []float64
}

// NChns returns the channel count shared by all levels.
func (p *Pyramid) NChns() int {
	n := 0
	for _, in := range p.Info {
		n += in.NChns
	}
	return n
}

// getScales computes the geometric scale progression and, per scale, the
// exact per axis factors such that the scaled size rounds to a multiple of
// shrink. Each nominal scale is nudged inside [s-0.25*shrink/d0,
// s+0.25*shrink/d0] to the candidate minimizing the worst axis rounding
// error; duplicates collapsing onto the same nudged scale are removed.
func getScales(nPerOct, nOctUp int, minDs image.Point, shrink int, sz image.Point) (scales []float64, scaleshw [][2]float64) {
	if sz.X == 0 || sz.Y == 0 {
		return nil, nil
	}
	minScale := math.Min(float64(sz.X)/float64(minDs.X), float64(sz.Y)/float64(minDs.Y))
	nScales := int(math.Floor(float64(nPerOct)*(float64(nOctUp)+math.Log2(minScale)) + 1))
	if nScales < 1 {
		return nil, nil
	}

	d0, d1 := float64(sz.Y), float64(sz.X)
	if d0 > d1 {
		d0, d1 = d1, d0
	}
	for i := 0; i < nScales; i++ {
		s := math.Pow(2, -float64(i)/float64(nPerOct)+float64(nOctUp))
		s0 := (math.Round(d0*s/float64(shrink))*float64(shrink) - 0.25*float64(shrink)) / d0
		s1 := (math.Round(d0*s/float64(shrink))*float64(shrink) + 0.25*float64(shrink)) / d0
		best, bestErr := s, math.Inf(1)
		for k := 0; k < 101; k++ {
			ss := s0 + (s1-s0)*float64(k)/100
			e0 := d0 * ss
			e0 = math.Abs(e0 - math.Round(e0/float64(shrink))*float64(shrink))
			e1 := d1 * ss
			e1 = math.Abs(e1 - math.Round(e1/float64(shrink))*float64(shrink))
			if e := math.Max(e0, e1); e < bestErr {
				best, bestErr = ss, e
			}
		}
		scales = append(scales, best)
	}

	// drop neighbors that rounded onto the same scale
	kp := scales[:0]
	for i, s := range scales {
		if i == len(scales)-1 || s != scales[i+1] {
			kp = append(kp, s)
		}
	}
	scales = kp

	for _, s := range scales {
		sh := math.Round(float64(sz.Y)*s/float64(shrink)) * float64(shrink) / float64(sz.Y)
		sw := math.Round(float64(sz.X)*s/float64(shrink)) * float64(shrink) / float64(sz.X)
		scaleshw = append(scaleshw, [2]float64{sh, sw})
	}
	return scales, scaleshw
}

// BuildPyramid computes the multi scale channel representation of img.
// Channels are computed directly at every (nApprox+1)-th scale; the levels in
// between are derived from the nearest direct level by resampling the tensor
// and applying the per family lambda power of the scale ratio. Scales whose
// shrunk geometry collapses to zero are dropped, not reported as errors.
func BuildPyramid(img image.Image, opts PyramidOpts) (*Pyramid, error) {
	if img == nil {
		return nil, errors.Wrap(ErrInvalidInput, "pyramid: nil image")
	}
	src := ImgToNRGBA(img)
	sz := image.Point{X: src.Bounds().Dx(), Y: src.Bounds().Dy()}
	if sz.X == 0 || sz.Y == 0 {
		return nil, errors.Wrap(ErrInvalidInput, "pyramid: empty image")
	}

	shrink := opts.Chns.Shrink.GetOr(defShrink)
	nPerOct := opts.NPerOct.GetOr(defNPerOct)
	nOctUp := opts.NOctUp.GetOr(0)
	nApprox := opts.NApprox.GetOr(0)
	minDs := opts.MinDs.GetOr(image.Point{X: 16, Y: 16})
	pad := opts.Pad.GetOr(image.Point{})
	smooth := opts.Smooth.GetOr(defSmooth)

	scales, scaleshw := getScales(nPerOct, nOctUp, minDs, shrink, sz)
	if len(scales) == 0 {
		return nil, errors.Wrapf(ErrInvalidInput,
			"pyramid: image %dx%d below the minimum size %dx%d", sz.X, sz.Y, minDs.X, minDs.Y)
	}

	// indices computed directly; the rest approximate from the nearest one
	var isReal []int
	for i := 0; i < len(scales); i += nApprox + 1 {
		isReal = append(isReal, i)
	}

	slots := make([]pyrSlot, len(scales))

	// direct levels, one goroutine per scale
	var wg sync.WaitGroup
	errCh := make(chan error, len(isReal))
	for _, i := range isReal {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w1 := int(math.Round(float64(sz.X)*scales[i]/float64(shrink))) * shrink
			h1 := int(math.Round(float64(sz.Y)*scales[i]/float64(shrink))) * shrink
			if w1 < shrink || h1 < shrink {
				return // degenerate level, silently dropped
			}
			lvl := src
			if w1 != sz.X || h1 != sz.Y {
				lvl = imaging.Resize(src, w1, h1, imaging.Linear)
			}
			chns, err := computeChannels(imgToPlanes(lvl), opts.Chns)
			if err != nil {
				errCh <- errors.Wrapf(err, "pyramid: scale %.4f", scales[i])
				return
			}
			slots[i] = pyrSlot{chns: chns, ok: true}
		}(i)
	}
	wg.Wait()
	close(errCh)
	if err := <-errCh; err != nil {
		return nil, err
	}

	// family layout from the finest computed level
	var info []ChannelInfo
	for _, i := range isReal {
		if slots[i].ok {
			info = slots[i].chns.Info
			break
		}
	}
	if info == nil {
		return nil, errors.Wrap(ErrInvalidInput, "pyramid: every level collapsed to zero size")
	}

	lambdas := opts.Lambdas.Get()
	if !opts.Lambdas.Has() && nApprox > 0 {
		lambdas = estimateLambdas(slots2chns(slots, isReal), scales, isReal, info)
	}
	if lambdas == nil {
		lambdas = make([]float64, len(info))
	}

	// approximated levels
	var wgApprox sync.WaitGroup
	for i := range scales {
		if slots[i].ok {
			continue
		}
		near := nearestReal(isReal, i, slots)
		if near < 0 {
			continue
		}
		wgApprox.Add(1)
		go func(i, near int) {
			defer wgApprox.Done()
			w1 := int(math.Round(float64(sz.X) * scales[i] / float64(shrink)))
			h1 := int(math.Round(float64(sz.Y) * scales[i] / float64(shrink)))
			if w1 < 1 || h1 < 1 {
				return
			}
			ref := slots[near].chns
			ratio := scales[i] / scales[near]
			out := Channels{Info: info}
			out.Data = NewTensor(w1, h1, 0)
			c0 := 0
			for f, in := range info {
				nrm := math.Pow(ratio, -lambdas[f])
				for c := c0; c < c0+in.NChns; c++ {
					out.Data.Append(resamplePlane(ref.Data.Plane(c), w1, h1, nrm))
				}
				c0 += in.NChns
			}
			slots[i] = pyrSlot{chns: out, ok: true}
		}(i, near)
	}
	wgApprox.Wait()

	// smooth, pad and record geometry per surviving level
	p := &Pyramid{Opts: opts, Info: info, Lambdas: lambdas}
	p.Opts.Lambdas = F(lambdas)
	padX, padY := pad.X/shrink, pad.Y/shrink
	var mu sync.Mutex
	var wgPad sync.WaitGroup
	type built struct {
		idx int
		lvl Level
	}
	var out []built
	for i := range scales {
		if !slots[i].ok {
			continue
		}
		wgPad.Add(1)
		go func(i int) {
			defer wgPad.Done()
			t := slots[i].chns.Data
			padded := NewTensor(t.W+2*padX, t.H+2*padY, 0)
			c0 := 0
			for _, in := range info {
				for c := c0; c < c0+in.NChns; c++ {
					pl := convTri(t.Plane(c), smooth)
					pl = padPlane(pl, padX, padY, in.PadWith == PadReplicate, 0)
					padded.Append(pl)
				}
				c0 += in.NChns
			}
			lvl := Level{Scale: scales[i], ScaleHW: scaleshwAt(scaleshw, scales, i), Chns: padded}
			mu.Lock()
			out = append(out, built{idx: i, lvl: lvl})
			mu.Unlock()
		}(i)
	}
	wgPad.Wait()

	sort.Slice(out, func(a, b int) bool { return out[a].idx < out[b].idx })
	for _, b := range out {
		p.Levels = append(p.Levels, b.lvl)
		p.Scales = append(p.Scales, b.lvl.Scale)
	}
	if len(p.Levels) == 0 {
		return nil, errors.Wrap(ErrInvalidInput, "pyramid: every level collapsed to zero size")
	}
	return p, nil
}

func scaleshwAt(scaleshw [][2]float64, scales []float64, i int) [2]float64 {
	if i < len(scaleshw) {
		return scaleshw[i]
	}
	return [2]float64{scales[i], scales[i]}
}

// pyrSlot is one scale's computed channels while the pyramid is being built.
type pyrSlot struct {
	chns Channels
	ok   bool
}

func slots2chns(slots []pyrSlot, isReal []int) []Channels {
	var out []Channels
	for _, i := range isReal {
		if slots[i].ok {
			out = append(out, slots[i].chns)
		}
	}
	return out
}

func nearestReal(isReal []int, i int, slots []pyrSlot) int {
	best, bestDist := -1, 1<<30
	for _, r := range isReal {
		if !slots[r].ok {
			continue
		}
		if d := absDiff(r, i); d < bestDist {
			best, bestDist = r, d
		}
	}
	return best
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

// estimateLambdas fits the power law that relates channel energy to image
// scale. For every family the mean channel value of each directly computed
// level is regressed in log2/log2 space against its scale; the lambda is the
// negated slope. The color family is pinned to zero: a pointwise color
// transform does not change with resampling.
func estimateLambdas(real []Channels, scales []float64, isReal []int, info []ChannelInfo) []float64 {
	lambdas := make([]float64, len(info))
	if len(real) < 2 {
		return lambdas
	}
	xs := make([]float64, 0, len(real))
	for idx, i := range isReal {
		if idx < len(real) {
			xs = append(xs, math.Log2(scales[i]))
		}
	}
	for f, in := range info {
		if in.Name == FamilyColor {
			continue
		}
		ys := make([]float64, 0, len(real))
		for _, ch := range real {
			c0 := 0
			for g := 0; g < f; g++ {
				c0 += info[g].NChns
			}
			var sum float64
			for c := c0; c < c0+in.NChns; c++ {
				sum += ch.Data.Plane(c).Mean()
			}
			ys = append(ys, math.Log2(sum/float64(in.NChns)+1e-12))
		}
		_, slope := stat.LinearRegression(xs[:len(ys)], ys, nil, false)
		if !math.IsNaN(slope) && !math.IsInf(slope, 0) {
			lambdas[f] = -slope
		}
	}
	return lambdas
}
