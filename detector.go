package acf

import (
	"encoding/json"
	"image"
	"io"

	"github.com/pkg/errors"
)

// Detector bundles a trained model: the option tree the model was trained
// with and the boosted tree ensemble. Safe for concurrent Detect calls;
// Modify is not safe to race with Detect.
type Detector struct {
	Opts Options
	Clf  Classifier

	params detectParams
}

// modelFile is the on disk layout of a trained model.
type modelFile struct {
	Opts Options    `json:"opts"`
	Clf  Classifier `json:"clf"`
}

// NewDetector reads a JSON model and prepares it for evaluation. The model's
// options are overlaid onto the canonical defaults, so older models that omit
// fields keep working.
func NewDetector(r io.Reader) (*Detector, error) {
	var mf modelFile
	dec := json.NewDecoder(r)
	if err := dec.Decode(&mf); err != nil {
		return nil, errors.Wrap(err, "decoding model")
	}
	d := &Detector{Opts: DefaultOptions(), Clf: mf.Clf}
	if err := d.Opts.Merge(mf.Opts, MergeAll); err != nil {
		return nil, err
	}
	if err := d.prepare(); err != nil {
		return nil, err
	}
	return d, nil
}

// prepare resolves the evaluation parameters and validates the ensemble
// against the window geometry the options imply.
func (d *Detector) prepare() error {
	p, err := newDetectParams(&d.Opts, &d.Clf)
	if err != nil {
		return err
	}
	if err := d.Clf.Validate(windowFeatureCount(p, d.nChns())); err != nil {
		return err
	}
	d.params = p
	return nil
}

// nChns derives the per pixel channel count from the channel options. Custom
// channels are not counted: a serialized model cannot carry the compute hook,
// so a trained ensemble only ever indexes the built-in families.
func (d *Detector) nChns() int {
	ch := d.Opts.Pyramid.Chns
	n := 0
	if ch.Color.Enabled.GetOr(true) {
		switch ch.Color.ColorSpace.GetOr(ColorSpaceLUV) {
		case ColorSpaceGray:
			n++
		default:
			n += 3
		}
	}
	if ch.GradMag.Enabled.GetOr(true) {
		n++
	}
	if ch.GradHist.Enabled.GetOr(true) {
		nOrients := ch.GradHist.NOrients.GetOr(defNOrients)
		if ch.GradHist.UseHog.GetOr(false) {
			n += 2 * nOrients
		} else {
			n += nOrients
		}
	}
	return n
}

// Modify overlays a runtime override, given as an options JSON document, onto
// the model. Only the tunable subset (scale geometry, padding, lambdas, NMS,
// stride, cascade thresholds) may be set; anything else is rejected and the
// detector is left unchanged.
func (d *Detector) Modify(data []byte) error {
	src, err := LoadOptions(data, true)
	if err != nil {
		return err
	}
	trial := d.Opts
	if err := trial.Merge(src, MergeModify); err != nil {
		return err
	}
	p, err := newDetectParams(&trial, &d.Clf)
	if err != nil {
		return err
	}
	d.Opts = trial
	d.params = p
	return nil
}

// Detect runs the full pipeline on one image: pyramid, sliding cascade,
// suppression. The result is in image coordinates, descending score.
func (d *Detector) Detect(img image.Image) ([]Detection, error) {
	pyr, err := BuildPyramid(img, d.Opts.Pyramid)
	if err != nil {
		return nil, err
	}
	return d.DetectPyramid(pyr)
}

// DetectPyramid evaluates the cascade over an already built pyramid, for
// callers that reuse one pyramid across detectors.
func (d *Detector) DetectPyramid(pyr *Pyramid) ([]Detection, error) {
	if got, want := pyr.NChns(), d.nChns(); got != want {
		return nil, errors.Wrapf(ErrInvalidInput, "detect: pyramid has %d channels, model wants %d", got, want)
	}
	dets := detectPyramid(&d.Clf, d.params, pyr)
	return Nms(dets, d.Opts.Nms)
}
