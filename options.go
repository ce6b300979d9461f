package acf

import (
	"bytes"
	"encoding/json"
	"image"

	"github.com/pkg/errors"
)

// Default parameter values, shared between option accessors and tests.
const (
	defShrink      = 4
	defColorSmooth = 1.0
	defNormRad     = 5
	defNormConst   = 0.005
	defNOrients    = 6
	defClipHog     = 0.2
	defNPerOct     = 8
	defSmooth      = 1.0
	defStride      = 4
	defCascThr     = -1.0
	defCascCal     = 0.005
	defOverlap     = 0.65
)

// Field wraps one option value and tracks whether it was explicitly set or is
// still at its default. Zero value is "unset". Unset fields inherit from the
// base during a merge and serialize as null.
type Field[T any] struct {
	val T
	has bool
}

// F returns a set field holding v.
func F[T any](v T) Field[T] { return Field[T]{val: v, has: true} }

// Has reports whether the field carries an explicit value.
func (f Field[T]) Has() bool { return f.has }

// Get returns the field value; the zero value when unset.
func (f Field[T]) Get() T { return f.val }

// GetOr returns the field value, or def when the field is unset.
func (f Field[T]) GetOr(def T) T {
	if f.has {
		return f.val
	}
	return def
}

// Set stores an explicit value.
func (f *Field[T]) Set(v T) {
	f.val = v
	f.has = true
}

// Clear resets the field to unset.
func (f *Field[T]) Clear() {
	var zero T
	f.val = zero
	f.has = false
}

// MarshalJSON emits the value, or null when unset.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.has {
		return []byte("null"), nil
	}
	return json.Marshal(f.val)
}

// UnmarshalJSON treats null as unset, anything else as an explicit value.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		f.Clear()
		return nil
	}
	if err := json.Unmarshal(data, &f.val); err != nil {
		return err
	}
	f.has = true
	return nil
}

// mergeField overlays src onto dst when src carries an explicit value.
func mergeField[T any](dst *Field[T], src Field[T]) {
	if src.has {
		*dst = src
	}
}

// MergeMode selects how an override option tree is applied onto a base tree.
type MergeMode int

const (
	// MergeAll lets the override replace any field it explicitly sets.
	MergeAll MergeMode = iota
	// MergeModify restricts the override to the runtime tunable subset
	// (pyramid scale geometry, padding, lambdas, NMS, stride and cascade
	// thresholds). Overriding anything else is a configuration error.
	MergeModify
)

// ColorOpts parameterizes the color channel family.
type ColorOpts struct {
	Enabled    Field[bool]    `json:"enabled"`
	Smooth     Field[float64] `json:"smooth"`
	ColorSpace Field[string]  `json:"colorSpace"`
}

func (o *ColorOpts) merge(src ColorOpts) {
	mergeField(&o.Enabled, src.Enabled)
	mergeField(&o.Smooth, src.Smooth)
	mergeField(&o.ColorSpace, src.ColorSpace)
}

// GradMagOpts parameterizes the gradient magnitude family.
type GradMagOpts struct {
	Enabled   Field[bool]    `json:"enabled"`
	ColorChn  Field[int]     `json:"colorChn"`
	NormRad   Field[int]     `json:"normRad"`
	NormConst Field[float64] `json:"normConst"`
	Full      Field[bool]    `json:"full"`
}

func (o *GradMagOpts) merge(src GradMagOpts) {
	mergeField(&o.Enabled, src.Enabled)
	mergeField(&o.ColorChn, src.ColorChn)
	mergeField(&o.NormRad, src.NormRad)
	mergeField(&o.NormConst, src.NormConst)
	mergeField(&o.Full, src.Full)
}

// GradHistOpts parameterizes the oriented gradient histogram family.
type GradHistOpts struct {
	Enabled  Field[bool]    `json:"enabled"`
	BinSize  Field[int]     `json:"binSize"`
	NOrients Field[int]     `json:"nOrients"`
	SoftBin  Field[bool]    `json:"softBin"`
	UseHog   Field[bool]    `json:"useHog"`
	ClipHog  Field[float64] `json:"clipHog"`
}

func (o *GradHistOpts) merge(src GradHistOpts) {
	mergeField(&o.Enabled, src.Enabled)
	mergeField(&o.BinSize, src.BinSize)
	mergeField(&o.NOrients, src.NOrients)
	mergeField(&o.SoftBin, src.SoftBin)
	mergeField(&o.UseHog, src.UseHog)
	mergeField(&o.ClipHog, src.ClipHog)
}

// CustomOpts attaches caller supplied channel planes to the pipeline. The
// compute hook is not serialized: a loaded model that relies on custom
// channels must re-attach it before detecting.
type CustomOpts struct {
	Enabled Field[bool] `json:"enabled"`
	Compute CustomFunc  `json:"-"`
}

func (o *CustomOpts) merge(src CustomOpts) {
	mergeField(&o.Enabled, src.Enabled)
	if src.Compute != nil {
		o.Compute = src.Compute
	}
}

// ChannelOpts groups the per family parameters plus the shared shrink factor.
type ChannelOpts struct {
	Shrink   Field[int]   `json:"shrink"`
	Color    ColorOpts    `json:"pColor"`
	GradMag  GradMagOpts  `json:"pGradMag"`
	GradHist GradHistOpts `json:"pGradHist"`
	Custom   CustomOpts   `json:"pCustom"`
}

func (o *ChannelOpts) merge(src ChannelOpts) {
	mergeField(&o.Shrink, src.Shrink)
	o.Color.merge(src.Color)
	o.GradMag.merge(src.GradMag)
	o.GradHist.merge(src.GradHist)
	o.Custom.merge(src.Custom)
}

// PyramidOpts controls the scale space construction.
type PyramidOpts struct {
	Chns    ChannelOpts        `json:"pChns"`
	NPerOct Field[int]         `json:"nPerOct"`
	NOctUp  Field[int]         `json:"nOctUp"`
	NApprox Field[int]         `json:"nApprox"`
	Lambdas Field[[]float64]   `json:"lambdas"`
	Pad     Field[image.Point] `json:"pad"`
	MinDs   Field[image.Point] `json:"minDs"`
	Smooth  Field[float64]     `json:"smooth"`
}

func (o *PyramidOpts) merge(src PyramidOpts) {
	o.Chns.merge(src.Chns)
	mergeField(&o.NPerOct, src.NPerOct)
	mergeField(&o.NOctUp, src.NOctUp)
	mergeField(&o.NApprox, src.NApprox)
	mergeField(&o.Lambdas, src.Lambdas)
	mergeField(&o.Pad, src.Pad)
	mergeField(&o.MinDs, src.MinDs)
	mergeField(&o.Smooth, src.Smooth)
}

// NmsOpts controls non-maximum suppression.
type NmsOpts struct {
	Type     Field[string]     `json:"type"`
	Thr      Field[float64]    `json:"thr"`
	MaxN     Field[int]        `json:"maxn"`
	Radii    Field[[4]float64] `json:"radii"`
	Overlap  Field[float64]    `json:"overlap"`
	OvrDnm   Field[string]     `json:"ovrDnm"`
	Separate Field[bool]       `json:"separate"`
}

func (o *NmsOpts) merge(src NmsOpts) {
	mergeField(&o.Type, src.Type)
	mergeField(&o.Thr, src.Thr)
	mergeField(&o.MaxN, src.MaxN)
	mergeField(&o.Radii, src.Radii)
	mergeField(&o.Overlap, src.Overlap)
	mergeField(&o.OvrDnm, src.OvrDnm)
	mergeField(&o.Separate, src.Separate)
}

// TreeOpts mirrors the boosting tree parameters carried by trained models.
// The detector never trains, but the values round-trip through serialization
// so a model file stays self describing.
type TreeOpts struct {
	NBins     Field[int]     `json:"nBins"`
	MaxDepth  Field[int]     `json:"maxDepth"`
	MinWeight Field[float64] `json:"minWeight"`
	FracFtrs  Field[float64] `json:"fracFtrs"`
	NThreads  Field[int]     `json:"nThreads"`
}

func (o *TreeOpts) merge(src TreeOpts) {
	mergeField(&o.NBins, src.NBins)
	mergeField(&o.MaxDepth, src.MaxDepth)
	mergeField(&o.MinWeight, src.MinWeight)
	mergeField(&o.FracFtrs, src.FracFtrs)
	mergeField(&o.NThreads, src.NThreads)
}

// BoostOpts mirrors the boosting parameters of the trained model.
type BoostOpts struct {
	Tree     TreeOpts    `json:"pTree"`
	NWeak    Field[int]  `json:"nWeak"`
	Discrete Field[bool] `json:"discrete"`
}

func (o *BoostOpts) merge(src BoostOpts) {
	o.Tree.merge(src.Tree)
	mergeField(&o.NWeak, src.NWeak)
	mergeField(&o.Discrete, src.Discrete)
}

// Options is the full configuration tree consumed by the pipeline. Every
// field independently tracks set versus default; Merge overlays another tree
// field by field.
type Options struct {
	Name       Field[string]      `json:"name"`
	Pyramid    PyramidOpts        `json:"pPyramid"`
	ModelDs    Field[image.Point] `json:"modelDs"`
	ModelDsPad Field[image.Point] `json:"modelDsPad"`
	Nms        NmsOpts            `json:"pNms"`
	Stride     Field[int]         `json:"stride"`
	CascThr    Field[float64]     `json:"cascThr"`
	CascCal    Field[float64]     `json:"cascCal"`
	// CascGranularity is the number of trees evaluated between cascade
	// threshold checks; 1 checks after every tree.
	CascGranularity Field[int]   `json:"cascGranularity"`
	NWeak           Field[[]int] `json:"nWeak"`
	Quantize        Field[bool]  `json:"quantize"`
	Boost           BoostOpts    `json:"pBoost"`
}

// Merge overlays src onto o. With MergeAll any explicitly set field of src
// replaces the corresponding field of o, recursively through the nested
// groups. With MergeModify only the runtime tunable subset may be set in src;
// a src that sets anything else is rejected so a stale override cannot
// silently reshape a trained model.
func (o *Options) Merge(src Options, mode MergeMode) error {
	if mode == MergeModify {
		if err := src.modifiableOnly(); err != nil {
			return err
		}
		p := &o.Pyramid
		mergeField(&p.NPerOct, src.Pyramid.NPerOct)
		mergeField(&p.NOctUp, src.Pyramid.NOctUp)
		mergeField(&p.NApprox, src.Pyramid.NApprox)
		mergeField(&p.Lambdas, src.Pyramid.Lambdas)
		mergeField(&p.Pad, src.Pyramid.Pad)
		mergeField(&p.MinDs, src.Pyramid.MinDs)
		o.Nms.merge(src.Nms)
		mergeField(&o.Stride, src.Stride)
		mergeField(&o.CascThr, src.CascThr)
		mergeField(&o.CascCal, src.CascCal)
		return nil
	}

	mergeField(&o.Name, src.Name)
	o.Pyramid.merge(src.Pyramid)
	mergeField(&o.ModelDs, src.ModelDs)
	mergeField(&o.ModelDsPad, src.ModelDsPad)
	o.Nms.merge(src.Nms)
	mergeField(&o.Stride, src.Stride)
	mergeField(&o.CascThr, src.CascThr)
	mergeField(&o.CascCal, src.CascCal)
	mergeField(&o.CascGranularity, src.CascGranularity)
	mergeField(&o.NWeak, src.NWeak)
	mergeField(&o.Quantize, src.Quantize)
	o.Boost.merge(src.Boost)
	return nil
}

// modifiableOnly verifies that only the runtime tunable fields are set.
func (o Options) modifiableOnly() error {
	type set struct {
		name string
		has  bool
	}
	locked := []set{
		{"name", o.Name.Has()},
		{"modelDs", o.ModelDs.Has()},
		{"modelDsPad", o.ModelDsPad.Has()},
		{"cascGranularity", o.CascGranularity.Has()},
		{"nWeak", o.NWeak.Has()},
		{"quantize", o.Quantize.Has()},
		{"pPyramid.smooth", o.Pyramid.Smooth.Has()},
		{"pPyramid.pChns.shrink", o.Pyramid.Chns.Shrink.Has()},
		{"pPyramid.pChns.pColor.enabled", o.Pyramid.Chns.Color.Enabled.Has()},
		{"pPyramid.pChns.pColor.smooth", o.Pyramid.Chns.Color.Smooth.Has()},
		{"pPyramid.pChns.pColor.colorSpace", o.Pyramid.Chns.Color.ColorSpace.Has()},
		{"pPyramid.pChns.pGradMag.enabled", o.Pyramid.Chns.GradMag.Enabled.Has()},
		{"pPyramid.pChns.pGradMag.colorChn", o.Pyramid.Chns.GradMag.ColorChn.Has()},
		{"pPyramid.pChns.pGradMag.normRad", o.Pyramid.Chns.GradMag.NormRad.Has()},
		{"pPyramid.pChns.pGradMag.normConst", o.Pyramid.Chns.GradMag.NormConst.Has()},
		{"pPyramid.pChns.pGradMag.full", o.Pyramid.Chns.GradMag.Full.Has()},
		{"pPyramid.pChns.pGradHist.enabled", o.Pyramid.Chns.GradHist.Enabled.Has()},
		{"pPyramid.pChns.pGradHist.binSize", o.Pyramid.Chns.GradHist.BinSize.Has()},
		{"pPyramid.pChns.pGradHist.nOrients", o.Pyramid.Chns.GradHist.NOrients.Has()},
		{"pPyramid.pChns.pGradHist.softBin", o.Pyramid.Chns.GradHist.SoftBin.Has()},
		{"pPyramid.pChns.pGradHist.useHog", o.Pyramid.Chns.GradHist.UseHog.Has()},
		{"pPyramid.pChns.pGradHist.clipHog", o.Pyramid.Chns.GradHist.ClipHog.Has()},
		{"pPyramid.pChns.pCustom.enabled", o.Pyramid.Chns.Custom.Enabled.Has()},
		{"pBoost.nWeak", o.Boost.NWeak.Has()},
		{"pBoost.discrete", o.Boost.Discrete.Has()},
		{"pBoost.pTree.nBins", o.Boost.Tree.NBins.Has()},
		{"pBoost.pTree.maxDepth", o.Boost.Tree.MaxDepth.Has()},
		{"pBoost.pTree.minWeight", o.Boost.Tree.MinWeight.Has()},
		{"pBoost.pTree.fracFtrs", o.Boost.Tree.FracFtrs.Has()},
		{"pBoost.pTree.nThreads", o.Boost.Tree.NThreads.Has()},
	}
	for _, f := range locked {
		if f.has {
			return errors.Wrapf(ErrConfiguration, "merge: field %s is not modifiable", f.name)
		}
	}
	return nil
}

// DefaultOptions returns an option tree with every field explicitly set to
// the canonical defaults of the channel pipeline.
func DefaultOptions() Options {
	var o Options
	o.Pyramid.Chns.Shrink = F(defShrink)
	o.Pyramid.Chns.Color = ColorOpts{
		Enabled:    F(true),
		Smooth:     F(defColorSmooth),
		ColorSpace: F(ColorSpaceLUV),
	}
	o.Pyramid.Chns.GradMag = GradMagOpts{
		Enabled:   F(true),
		ColorChn:  F(-1),
		NormRad:   F(defNormRad),
		NormConst: F(defNormConst),
		Full:      F(false),
	}
	o.Pyramid.Chns.GradHist = GradHistOpts{
		Enabled:  F(true),
		BinSize:  F(defShrink),
		NOrients: F(defNOrients),
		SoftBin:  F(false),
		UseHog:   F(false),
		ClipHog:  F(defClipHog),
	}
	o.Pyramid.Chns.Custom.Enabled = F(false)
	o.Pyramid.NPerOct = F(defNPerOct)
	o.Pyramid.NOctUp = F(0)
	o.Pyramid.NApprox = F(0)
	o.Pyramid.Pad = F(image.Point{})
	o.Pyramid.MinDs = F(image.Point{X: 16, Y: 16})
	o.Pyramid.Smooth = F(defSmooth)
	o.ModelDs = F(image.Point{X: 32, Y: 32})
	o.ModelDsPad = F(image.Point{X: 32, Y: 32})
	o.Nms = NmsOpts{
		Type:    F(NmsMax),
		Thr:     F(defCascThr),
		Overlap: F(defOverlap),
		OvrDnm:  F(OvrUnion),
	}
	o.Stride = F(defStride)
	o.CascThr = F(defCascThr)
	o.CascCal = F(defCascCal)
	o.CascGranularity = F(1)
	o.Quantize = F(false)
	return o
}

// LoadOptions decodes an option tree from JSON. With strict set, fields not
// known to this version are rejected instead of ignored.
func LoadOptions(data []byte, strict bool) (Options, error) {
	var o Options
	dec := json.NewDecoder(bytes.NewReader(data))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&o); err != nil {
		return Options{}, errors.Wrap(err, "decoding options")
	}
	return o, nil
}
