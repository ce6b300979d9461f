package acf

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

// synthOptions configures a minimal two channel pipeline (gray + gradient
// magnitude) evaluating a single scale, so windows map one to one onto the
// channel tensor.
func synthOptions() Options {
	o := DefaultOptions()
	o.Pyramid.Chns.Color.ColorSpace = F(ColorSpaceGray)
	o.Pyramid.Chns.Color.Smooth = F(0.0)
	o.Pyramid.Chns.GradMag.NormRad = F(0)
	o.Pyramid.Chns.GradHist.Enabled = F(false)
	o.Pyramid.NPerOct = F(1)
	o.Pyramid.MinDs = F(image.Point{X: 96, Y: 96})
	o.Pyramid.Smooth = F(0.0)
	o.ModelDs = F(image.Point{X: 32, Y: 32})
	o.ModelDsPad = F(image.Point{X: 32, Y: 32})
	o.Stride = F(4)
	o.CascThr = F(-1.0)
	o.CascCal = F(0.0)
	o.Nms.Type = F(NmsNone)
	return o
}

// grayImage builds a grayscale image from a per pixel value function.
func grayImage(w, h int, val func(x, y int) uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g := val(x, y)
			img.SetNRGBA(x, y, color.NRGBA{R: g, G: g, B: g, A: 0xff})
		}
	}
	return img
}

// squareImage is black with a bright 32x32 square at (32, 32).
func squareImage() *image.NRGBA {
	return grayImage(96, 96, func(x, y int) uint8 {
		if x >= 32 && x < 64 && y >= 32 && y < 64 {
			return 255
		}
		return 0
	})
}

// fid 36 addresses channel 0, window offset (4, 4): c*8*8 + x*8 + y.
const centerFid = 36

func TestDetect_WindowsMatchDirectTensorScan(t *testing.T) {
	assert := assert.New(t)

	d := &Detector{Opts: synthOptions(), Clf: stumpClassifier(centerFid, 0.5, 2)}
	assert.NoError(d.prepare())

	img := squareImage()
	pyr, err := BuildPyramid(img, d.Opts.Pyramid)
	assert.NoError(err)
	assert.Len(pyr.Levels, 1)
	lvl := pyr.Levels[0]
	assert.Equal(24, lvl.Chns.W)
	assert.Equal(2, lvl.Chns.NCh)

	// replicate the stump decision by scanning the tensor directly
	gray := lvl.Chns.Plane(0)
	var want []image.Point
	for r := 0; r < 17; r++ {
		for c := 0; c < 17; c++ {
			if gray.At(c+4, r+4) >= 0.5 {
				want = append(want, image.Point{X: c, Y: r})
			}
		}
	}
	assert.NotEmpty(want)

	dets, err := d.Detect(img)
	assert.NoError(err)
	assert.Len(dets, len(want))

	for i, det := range dets {
		assert.Equal(float64(want[i].X*4), det.X)
		assert.Equal(float64(want[i].Y*4), det.Y)
		assert.Equal(32.0, det.W)
		assert.Equal(32.0, det.H)
		assert.InDelta(2.0, det.Score, 1e-6)
	}
}

func TestDetect_CascadeRejectsEverythingAboveThreshold(t *testing.T) {
	assert := assert.New(t)

	opts := synthOptions()
	opts.CascThr = F(3.0) // nothing can reach a score above 3
	d := &Detector{Opts: opts, Clf: stumpClassifier(centerFid, 0.5, 2)}
	assert.NoError(d.prepare())

	dets, err := d.Detect(squareImage())
	assert.NoError(err)
	assert.Empty(dets)
}

func TestDetect_QuantizedPathMatchesFloatPath(t *testing.T) {
	assert := assert.New(t)

	rng := rand.New(rand.NewSource(21))
	img := grayImage(96, 96, func(x, y int) uint8 { return uint8(rng.Intn(256)) })

	// the half integer threshold decides identically in both domains
	thr := float32(127.5 / 255.0)

	df := &Detector{Opts: synthOptions(), Clf: stumpClassifier(centerFid, thr, 2)}
	assert.NoError(df.prepare())

	qOpts := synthOptions()
	qOpts.Quantize = F(true)
	dq := &Detector{Opts: qOpts, Clf: stumpClassifier(centerFid, thr, 2)}
	assert.NoError(dq.prepare())

	fDets, err := df.Detect(img)
	assert.NoError(err)
	qDets, err := dq.Detect(img)
	assert.NoError(err)

	assert.Equal(len(fDets), len(qDets))
	for i := range fDets {
		assert.Equal(fDets[i].X, qDets[i].X)
		assert.Equal(fDets[i].Y, qDets[i].Y)
		assert.Equal(fDets[i].Score, qDets[i].Score)
	}
}

func TestDetect_NmsCollapsesTheCluster(t *testing.T) {
	assert := assert.New(t)

	opts := synthOptions()
	opts.Nms.Type = F(NmsMaxG)
	opts.Nms.Overlap = F(0.1)
	d := &Detector{Opts: opts, Clf: stumpClassifier(centerFid, 0.5, 2)}
	assert.NoError(d.prepare())

	dets, err := d.Detect(squareImage())
	assert.NoError(err)
	assert.NotEmpty(dets)

	// every survivor still sits on the bright square
	target := image.Rect(32, 32, 64, 64)
	for _, det := range dets {
		assert.True(det.Bounds().Overlaps(target))
		assert.InDelta(2.0, det.Score, 1e-6)
	}
	// the suppressed set is much smaller than the raw cluster
	assert.Less(len(dets), 10)
}

func TestDetect_SingleObjectYieldsOneDetection(t *testing.T) {
	assert := assert.New(t)

	// the raw hits on the square form one overlap-connected cluster, so the
	// covering suppression collapses them to a single representative
	opts := synthOptions()
	opts.Nms.Type = F(NmsCover)
	opts.Nms.Overlap = F(0.01)
	d := &Detector{Opts: opts, Clf: stumpClassifier(centerFid, 0.5, 2)}
	assert.NoError(d.prepare())

	dets, err := d.Detect(squareImage())
	assert.NoError(err)
	assert.Len(dets, 1)
	assert.True(dets[0].Bounds().Overlaps(image.Rect(32, 32, 64, 64)))
}

func TestDetect_StrideSkipsWindows(t *testing.T) {
	assert := assert.New(t)

	dense := &Detector{Opts: synthOptions(), Clf: stumpClassifier(centerFid, 0.5, 2)}
	assert.NoError(dense.prepare())

	opts := synthOptions()
	opts.Stride = F(8)
	sparse := &Detector{Opts: opts, Clf: stumpClassifier(centerFid, 0.5, 2)}
	assert.NoError(sparse.prepare())

	img := squareImage()
	dd, err := dense.Detect(img)
	assert.NoError(err)
	sd, err := sparse.Detect(img)
	assert.NoError(err)
	assert.Greater(len(dd), len(sd))
	assert.NotEmpty(sd)
}

func TestDetectParams_RejectsMisalignedGeometry(t *testing.T) {
	assert := assert.New(t)

	opts := synthOptions()
	opts.Stride = F(6) // not a multiple of shrink 4
	d := &Detector{Opts: opts, Clf: stumpClassifier(centerFid, 0.5, 2)}
	assert.True(errors.Is(d.prepare(), ErrConfiguration))

	opts = synthOptions()
	opts.ModelDsPad = F(image.Point{X: 30, Y: 32})
	d = &Detector{Opts: opts, Clf: stumpClassifier(centerFid, 0.5, 2)}
	assert.True(errors.Is(d.prepare(), ErrConfiguration))
}

func TestNewDetector_LoadsModelJSON(t *testing.T) {
	assert := assert.New(t)

	mf := modelFile{Opts: synthOptions(), Clf: stumpClassifier(centerFid, 0.5, 2)}
	data, err := json.Marshal(mf)
	assert.NoError(err)

	d, err := NewDetector(bytes.NewReader(data))
	assert.NoError(err)
	assert.Equal(1, d.Clf.NTrees)
	assert.Equal(ColorSpaceGray, d.Opts.Pyramid.Chns.Color.ColorSpace.Get())

	dets, err := d.Detect(squareImage())
	assert.NoError(err)
	assert.NotEmpty(dets)
}

func TestNewDetector_RejectsOversizedFeatureIds(t *testing.T) {
	assert := assert.New(t)

	// feature 128 is outside the 2*8*8 window block
	mf := modelFile{Opts: synthOptions(), Clf: stumpClassifier(128, 0.5, 2)}
	data, err := json.Marshal(mf)
	assert.NoError(err)

	_, err = NewDetector(bytes.NewReader(data))
	assert.True(errors.Is(err, ErrInvalidInput))
}

func TestDetector_ModifyAppliesRuntimeOverrides(t *testing.T) {
	assert := assert.New(t)

	d := &Detector{Opts: synthOptions(), Clf: stumpClassifier(centerFid, 0.5, 2)}
	assert.NoError(d.prepare())

	assert.NoError(d.Modify([]byte(`{"cascThr": 0.5, "pNms": {"overlap": 0.4}}`)))
	assert.Equal(0.5, d.Opts.CascThr.Get())
	assert.Equal(0.4, d.Opts.Nms.Overlap.Get())
}

func TestDetector_ModifyRejectsLockedAndUnknownFields(t *testing.T) {
	assert := assert.New(t)

	d := &Detector{Opts: synthOptions(), Clf: stumpClassifier(centerFid, 0.5, 2)}
	assert.NoError(d.prepare())

	err := d.Modify([]byte(`{"modelDs": {"X": 64, "Y": 64}}`))
	assert.True(errors.Is(err, ErrConfiguration))
	assert.Equal(image.Point{X: 32, Y: 32}, d.Opts.ModelDs.Get())

	assert.Error(d.Modify([]byte(`{"bogus": 1}`)))
}

func TestDetector_DetectPyramidRejectsChannelMismatch(t *testing.T) {
	assert := assert.New(t)

	d := &Detector{Opts: synthOptions(), Clf: stumpClassifier(centerFid, 0.5, 2)}
	assert.NoError(d.prepare())

	// a default pyramid carries 10 channels, the model expects 2
	var opts PyramidOpts
	opts.MinDs = F(image.Point{X: 32, Y: 32})
	pyr, err := BuildPyramid(sinusoidImage(96, 96), opts)
	assert.NoError(err)

	_, err = d.DetectPyramid(pyr)
	assert.True(errors.Is(err, ErrInvalidInput))
}
