package acf

import "github.com/pkg/errors"

// Channel family names, in the fixed order they are stacked into the tensor.
const (
	FamilyColor    = "color"
	FamilyGradMag  = "gradient magnitude"
	FamilyGradHist = "gradient histogram"
	FamilyCustom   = "custom"
)

// CustomFunc computes caller supplied channel planes from the smoothed
// working color tensor. The returned planes may be at any resolution; they
// are resampled onto the shrunken channel grid. The policy selects how
// pyramid padding fills them.
type CustomFunc func(conv Tensor) ([]Plane, PadPolicy)

// ChannelInfo describes one channel family of a computed tensor.
type ChannelInfo struct {
	Name string
	// NChns is the number of planes the family contributed.
	NChns int
	// PadWith selects how pyramid padding fills the family's planes:
	// border replication for color, zeros for the gradient families.
	PadWith PadPolicy
}

// PadPolicy selects the padding fill for a channel family.
type PadPolicy int

const (
	PadReplicate PadPolicy = iota
	PadZero
)

// Channels is the result of computing all enabled channel families for one
// image at one scale: the stacked tensor plus the per family layout.
type Channels struct {
	Data Tensor
	Info []ChannelInfo
}

// NChns returns the total channel count implied by the family infos.
func (c Channels) NChns() int {
	n := 0
	for _, in := range c.Info {
		n += in.NChns
	}
	return n
}

// computeChannels runs the channel pipeline for one image: color transform
// and smoothing, gradient magnitude with optional normalization, and oriented
// gradient histograms, each family independently enabled. All output planes
// are emitted at (w/shrink) x (h/shrink); the input is cropped to a multiple
// of shrink first. On error no partial result is returned.
func computeChannels(rgb Tensor, opts ChannelOpts) (Channels, error) {
	shrink := opts.Shrink.GetOr(defShrink)
	if rgb.W == 0 || rgb.H == 0 || rgb.NCh == 0 {
		return Channels{}, errors.Wrap(ErrInvalidInput, "channels: empty image")
	}
	if shrink < 1 {
		return Channels{}, errors.Wrapf(ErrConfiguration, "channels: shrink %d out of range", shrink)
	}
	binSize := opts.GradHist.BinSize.GetOr(shrink)
	if opts.GradHist.Enabled.GetOr(true) && binSize%shrink != 0 && shrink%binSize != 0 {
		return Channels{}, errors.Wrapf(ErrConfiguration,
			"channels: shrink %d does not divide the cell size %d", shrink, binSize)
	}

	// crop so every family downsamples to the same grid
	w := rgb.W - rgb.W%shrink
	h := rgb.H - rgb.H%shrink
	if w == 0 || h == 0 {
		return Channels{}, errors.Wrapf(ErrInvalidInput, "channels: image %dx%d smaller than shrink %d", rgb.W, rgb.H, shrink)
	}
	if w != rgb.W || h != rgb.H {
		rgb = cropTensor(rgb, w, h)
	}
	wc, hc := w/shrink, h/shrink

	var out Channels
	out.Data = NewTensor(wc, hc, 0)

	// color family; the converted planes also feed the gradient families,
	// so the transform runs even when the family itself is disabled.
	colorSpace := opts.Color.ColorSpace.GetOr(ColorSpaceLUV)
	conv, err := rgbConvert(rgb, colorSpace)
	if err != nil {
		return Channels{}, err
	}
	conv = convTriTensor(conv, opts.Color.Smooth.GetOr(defColorSmooth))
	if opts.Color.Enabled.GetOr(true) {
		cc := resampleTensor(conv, wc, hc, 1)
		out.Data.Append(tensorPlanes(cc)...)
		out.Info = append(out.Info, ChannelInfo{Name: FamilyColor, NChns: cc.NCh, PadWith: PadReplicate})
	}

	magOn := opts.GradMag.Enabled.GetOr(true)
	histOn := opts.GradHist.Enabled.GetOr(true)
	if magOn || histOn {
		full := opts.GradMag.Full.GetOr(false)
		m, o := gradMag(conv, opts.GradMag.ColorChn.GetOr(-1), full)
		if rad := opts.GradMag.NormRad.GetOr(defNormRad); rad > 0 {
			m = gradMagNorm(m, rad, opts.GradMag.NormConst.GetOr(defNormConst))
		}

		if magOn {
			out.Data.Append(resamplePlane(m, wc, hc, 1))
			out.Info = append(out.Info, ChannelInfo{Name: FamilyGradMag, NChns: 1, PadWith: PadZero})
		}

		if histOn {
			nOrients := opts.GradHist.NOrients.GetOr(defNOrients)
			softBin := opts.GradHist.SoftBin.GetOr(false)
			var hist Tensor
			if opts.GradHist.UseHog.GetOr(false) {
				hist = hogChannels(m, o, binSize, nOrients, softBin, full, opts.GradHist.ClipHog.GetOr(defClipHog))
			} else {
				hist = gradHist(m, o, binSize, nOrients, softBin, full)
			}
			if hist.W != wc || hist.H != hc {
				hist = resampleTensor(hist, wc, hc, 1)
			}
			out.Data.Append(tensorPlanes(hist)...)
			out.Info = append(out.Info, ChannelInfo{Name: FamilyGradHist, NChns: hist.NCh, PadWith: PadZero})
		}
	}

	if opts.Custom.Enabled.GetOr(false) && opts.Custom.Compute != nil {
		planes, padWith := opts.Custom.Compute(conv)
		if len(planes) > 0 {
			for _, pl := range planes {
				out.Data.Append(resamplePlane(pl, wc, hc, 1))
			}
			out.Info = append(out.Info, ChannelInfo{Name: FamilyCustom, NChns: len(planes), PadWith: padWith})
		}
	}

	return out, nil
}

// cropTensor returns the top-left w x h region of every plane.
func cropTensor(src Tensor, w, h int) Tensor {
	dst := NewTensor(w, h, src.NCh)
	for c := 0; c < src.NCh; c++ {
		sp, dp := src.Plane(c), dst.Plane(c)
		for y := 0; y < h; y++ {
			copy(dp.Pix[y*w:(y+1)*w], sp.Pix[y*src.W:y*src.W+w])
		}
	}
	return dst
}

func tensorPlanes(t Tensor) []Plane {
	ps := make([]Plane, t.NCh)
	for c := range ps {
		ps[c] = t.Plane(c)
	}
	return ps
}
