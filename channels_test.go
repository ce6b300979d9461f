package acf

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func noiseRGB(w, h int, seed int64) Tensor {
	rng := rand.New(rand.NewSource(seed))
	return rgbTensor(w, h, func(x, y int) (float32, float32, float32) {
		return rng.Float32(), rng.Float32(), rng.Float32()
	})
}

func TestComputeChannels_DefaultLayout(t *testing.T) {
	assert := assert.New(t)

	var opts ChannelOpts
	chns, err := computeChannels(noiseRGB(32, 32, 1), opts)
	assert.NoError(err)

	// LUV (3) + gradient magnitude (1) + 6 orientation bins
	assert.Equal(10, chns.NChns())
	assert.Equal(10, chns.Data.NCh)
	assert.Equal(8, chns.Data.W)
	assert.Equal(8, chns.Data.H)

	assert.Len(chns.Info, 3)
	assert.Equal(FamilyColor, chns.Info[0].Name)
	assert.Equal(PadReplicate, chns.Info[0].PadWith)
	assert.Equal(FamilyGradMag, chns.Info[1].Name)
	assert.Equal(PadZero, chns.Info[1].PadWith)
	assert.Equal(FamilyGradHist, chns.Info[2].Name)
}

func TestComputeChannels_GrayWithoutHistograms(t *testing.T) {
	assert := assert.New(t)

	var opts ChannelOpts
	opts.Color.ColorSpace = F(ColorSpaceGray)
	opts.GradHist.Enabled = F(false)

	chns, err := computeChannels(noiseRGB(32, 32, 2), opts)
	assert.NoError(err)
	assert.Equal(2, chns.NChns())
	assert.Len(chns.Info, 2)
}

func TestComputeChannels_DisabledColorStillFeedsGradients(t *testing.T) {
	assert := assert.New(t)

	var opts ChannelOpts
	opts.Color.Enabled = F(false)
	opts.GradHist.Enabled = F(false)

	chns, err := computeChannels(noiseRGB(32, 32, 3), opts)
	assert.NoError(err)
	assert.Equal(1, chns.NChns())
	assert.Equal(FamilyGradMag, chns.Info[0].Name)

	var sum float64
	for _, v := range chns.Data.Data {
		sum += float64(v)
	}
	assert.Greater(sum, 0.0)
}

func TestComputeChannels_CropsToShrinkMultiple(t *testing.T) {
	assert := assert.New(t)

	var opts ChannelOpts
	chns, err := computeChannels(noiseRGB(33, 38, 4), opts)
	assert.NoError(err)
	assert.Equal(8, chns.Data.W)
	assert.Equal(9, chns.Data.H)
}

func TestComputeChannels_CustomFamilyAppendsLast(t *testing.T) {
	assert := assert.New(t)

	var opts ChannelOpts
	opts.Custom.Enabled = F(true)
	opts.Custom.Compute = func(conv Tensor) ([]Plane, PadPolicy) {
		// one constant plane at the working resolution
		p := NewPlane(conv.W, conv.H)
		for i := range p.Pix {
			p.Pix[i] = 0.5
		}
		return []Plane{p}, PadReplicate
	}

	chns, err := computeChannels(noiseRGB(32, 32, 8), opts)
	assert.NoError(err)
	assert.Equal(11, chns.NChns())

	last := chns.Info[len(chns.Info)-1]
	assert.Equal(FamilyCustom, last.Name)
	assert.Equal(1, last.NChns)
	assert.Equal(PadReplicate, last.PadWith)
	assert.InDelta(0.5, float64(chns.Data.Plane(10).At(3, 3)), 1e-5)
}

func TestComputeChannels_RejectsBadConfig(t *testing.T) {
	assert := assert.New(t)

	var opts ChannelOpts
	opts.Shrink = F(0)
	_, err := computeChannels(noiseRGB(32, 32, 5), opts)
	assert.True(errors.Is(err, ErrConfiguration))

	opts = ChannelOpts{}
	opts.Shrink = F(4)
	opts.GradHist.BinSize = F(3)
	_, err = computeChannels(noiseRGB(32, 32, 6), opts)
	assert.True(errors.Is(err, ErrConfiguration))
}

func TestComputeChannels_RejectsEmptyInput(t *testing.T) {
	assert := assert.New(t)

	var opts ChannelOpts
	_, err := computeChannels(Tensor{}, opts)
	assert.True(errors.Is(err, ErrInvalidInput))

	_, err = computeChannels(noiseRGB(3, 3, 7), opts)
	assert.True(errors.Is(err, ErrInvalidInput))
}
