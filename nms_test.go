package acf

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func box(x, y, w, h, score float64) Detection {
	return Detection{X: x, Y: y, W: w, H: h, Score: score}
}

func TestNms_NoneOnlySorts(t *testing.T) {
	assert := assert.New(t)

	dets := []Detection{box(0, 0, 10, 10, 1), box(0, 0, 10, 10, 3), box(0, 0, 10, 10, 2)}
	var opts NmsOpts
	opts.Type = F(NmsNone)

	out, err := Nms(dets, opts)
	assert.NoError(err)
	assert.Len(out, 3)
	assert.Equal(3.0, out[0].Score)
	assert.Equal(2.0, out[1].Score)
	assert.Equal(1.0, out[2].Score)
}

func TestNms_MaxSuppressesOverlapping(t *testing.T) {
	assert := assert.New(t)

	dets := []Detection{
		box(0, 0, 10, 10, 1),
		box(1, 1, 10, 10, 2),
		box(50, 50, 10, 10, 0.5),
	}
	var opts NmsOpts

	out, err := Nms(dets, opts)
	assert.NoError(err)
	assert.Len(out, 2)
	assert.Equal(2.0, out[0].Score)
	assert.Equal(0.5, out[1].Score)
}

func TestNms_OverlapAtThresholdKeepsBoth(t *testing.T) {
	assert := assert.New(t)

	// 10x10 boxes shifted by 5: intersection 50, union 150
	dets := []Detection{box(0, 0, 10, 10, 2), box(5, 0, 10, 10, 1)}

	var opts NmsOpts
	opts.Overlap = F(1.0 / 3.0)
	out, err := Nms(dets, opts)
	assert.NoError(err)
	assert.Len(out, 2, "overlap equal to the threshold must not suppress")

	opts.Overlap = F(0.33)
	out, err = Nms(dets, opts)
	assert.NoError(err)
	assert.Len(out, 1)
}

func TestNms_MinDenominatorSuppressesNestedBoxes(t *testing.T) {
	assert := assert.New(t)

	// a small box fully inside a big one: union overlap is low, min overlap is 1
	dets := []Detection{box(0, 0, 20, 20, 2), box(5, 5, 5, 5, 1)}

	var opts NmsOpts
	out, err := Nms(dets, opts)
	assert.NoError(err)
	assert.Len(out, 2)

	opts.OvrDnm = F(OvrMin)
	out, err = Nms(dets, opts)
	assert.NoError(err)
	assert.Len(out, 1)
}

func TestNms_GreedyAndNonGreedyDiffer(t *testing.T) {
	assert := assert.New(t)

	// a(3) overlaps b(2), b overlaps c(1), a does not overlap c
	dets := []Detection{
		box(0, 0, 10, 10, 3),
		box(6, 0, 10, 10, 2),
		box(12, 0, 10, 10, 1),
	}
	var opts NmsOpts
	opts.Overlap = F(0.2)

	out, err := Nms(dets, opts)
	assert.NoError(err)
	// plain max: b, although suppressed by a, still suppresses c
	assert.Len(out, 1)

	opts.Type = F(NmsMaxG)
	out, err = Nms(dets, opts)
	assert.NoError(err)
	// greedy: only kept detections suppress, so c survives
	assert.Len(out, 2)
	assert.Equal(1.0, out[1].Score)
}

func TestNms_EqualScoresResolveByInsertionOrder(t *testing.T) {
	assert := assert.New(t)

	first := box(0, 0, 10, 10, 1)
	second := box(1, 0, 10, 10, 1)
	var opts NmsOpts
	opts.Overlap = F(0.5)

	out, err := Nms([]Detection{first, second}, opts)
	assert.NoError(err)
	assert.Len(out, 1)
	assert.Equal(0.0, out[0].X, "the earlier detection wins the tie")
}

func TestNms_MaxIsIdempotent(t *testing.T) {
	assert := assert.New(t)

	dets := []Detection{
		box(0, 0, 10, 10, 3),
		box(2, 2, 10, 10, 2),
		box(30, 30, 10, 10, 1),
		box(31, 31, 10, 10, 0.5),
	}
	var opts NmsOpts

	once, err := Nms(dets, opts)
	assert.NoError(err)
	twice, err := Nms(once, opts)
	assert.NoError(err)
	assert.Equal(once, twice)
}

func TestNms_ThresholdDropsWeakDetections(t *testing.T) {
	assert := assert.New(t)

	dets := []Detection{box(0, 0, 10, 10, 2), box(50, 50, 10, 10, 0.1)}
	var opts NmsOpts
	opts.Thr = F(1.0)

	out, err := Nms(dets, opts)
	assert.NoError(err)
	assert.Len(out, 1)
	assert.Equal(2.0, out[0].Score)
}

func TestNms_SeparateSuppressesPerType(t *testing.T) {
	assert := assert.New(t)

	a := box(0, 0, 10, 10, 2)
	b := box(1, 1, 10, 10, 1)
	b.Type = 1

	var opts NmsOpts
	opts.Separate = F(true)
	out, err := Nms([]Detection{a, b}, opts)
	assert.NoError(err)
	assert.Len(out, 2, "different types do not suppress each other")

	opts.Separate = F(false)
	out, err = Nms([]Detection{a, b}, opts)
	assert.NoError(err)
	assert.Len(out, 1)
}

func TestNms_MeanShiftMergesClusters(t *testing.T) {
	assert := assert.New(t)

	dets := []Detection{
		box(0, 0, 10, 10, 1),
		box(1, 0, 10, 10, 1),
		box(100, 100, 10, 10, 2),
	}
	var opts NmsOpts
	opts.Type = F(NmsMs)
	opts.Thr = F(0.5)

	out, err := Nms(dets, opts)
	assert.NoError(err)
	assert.Len(out, 2)
	// cluster scores are summed
	assert.Equal(2.0, out[0].Score)
	assert.Equal(2.0, out[1].Score)
}

func TestNms_CoverKeepsOnePerComponent(t *testing.T) {
	assert := assert.New(t)

	dets := []Detection{
		box(0, 0, 10, 10, 3),
		box(2, 0, 10, 10, 2),
		box(4, 0, 10, 10, 1),
		box(50, 50, 10, 10, 0.5),
	}
	var opts NmsOpts
	opts.Type = F(NmsCover)
	opts.Overlap = F(0.3)

	out, err := Nms(dets, opts)
	assert.NoError(err)
	assert.Len(out, 2)
	assert.Equal(3.0, out[0].Score)
	assert.Equal(0.5, out[1].Score)
}

func TestNms_MaxNSplitsLargeInputs(t *testing.T) {
	assert := assert.New(t)

	var dets []Detection
	for i := 0; i < 10; i++ {
		dets = append(dets, box(float64(i), 0, 10, 10, float64(10-i)))
	}
	var opts NmsOpts
	opts.MaxN = F(4)
	opts.Overlap = F(0.5)

	out, err := Nms(dets, opts)
	assert.NoError(err)
	assert.NotEmpty(out)
	assert.Equal(10.0, out[0].Score)
}

func TestNms_RejectsUnknownType(t *testing.T) {
	assert := assert.New(t)

	var opts NmsOpts
	opts.Type = F("median")
	_, err := Nms([]Detection{box(0, 0, 1, 1, 1)}, opts)
	assert.True(errors.Is(err, ErrConfiguration))
}

func TestDetection_OverlapRatios(t *testing.T) {
	assert := assert.New(t)

	a := box(0, 0, 10, 10, 0)
	b := box(5, 0, 10, 10, 0)
	assert.InDelta(50.0/150.0, a.Overlap(b, OvrUnion), 1e-9)
	assert.InDelta(0.5, a.Overlap(b, OvrMin), 1e-9)

	c := box(20, 20, 5, 5, 0)
	assert.Zero(a.Overlap(c, OvrUnion))
}
