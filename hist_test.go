package acf

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGradHist_HardBinningConservesMagnitude(t *testing.T) {
	assert := assert.New(t)

	rng := rand.New(rand.NewSource(7))
	m := NewPlane(16, 16)
	o := NewPlane(16, 16)
	var total float64
	for i := range m.Pix {
		m.Pix[i] = rng.Float32()
		o.Pix[i] = float32(rng.Float64() * (math.Pi - 1e-3))
		total += float64(m.Pix[i])
	}

	hist := gradHist(m, o, 2, 6, false, false)
	assert.Equal(8, hist.W)
	assert.Equal(8, hist.H)
	assert.Equal(6, hist.NCh)

	var sum float64
	for _, v := range hist.Data {
		sum += float64(v)
	}
	assert.InDelta(total, sum, total*1e-4)
}

func TestGradHist_ZeroOrientationFillsFirstBin(t *testing.T) {
	assert := assert.New(t)

	m := NewPlane(8, 8)
	o := NewPlane(8, 8)
	for i := range m.Pix {
		m.Pix[i] = 1
	}

	hist := gradHist(m, o, 4, 6, false, false)
	p0 := hist.Plane(0)
	assert.InDelta(16.0, float64(p0.At(0, 0)), 1e-4)
	for c := 1; c < 6; c++ {
		for _, v := range hist.Plane(c).Pix {
			assert.Zero(v)
		}
	}
}

func TestGradHist_SoftBinSplitsOrientationWeight(t *testing.T) {
	assert := assert.New(t)

	// orientation exactly halfway between bins 0 and 1
	half := float32(math.Pi / 6 / 2)
	m := NewPlane(4, 4)
	o := NewPlane(4, 4)
	for i := range m.Pix {
		m.Pix[i] = 1
		o.Pix[i] = half
	}

	// binSize 1 keeps the spatial interpolation exact on cell centers
	hist := gradHist(m, o, 1, 6, true, false)
	assert.InDelta(0.5, float64(hist.Plane(0).At(2, 2)), 1e-4)
	assert.InDelta(0.5, float64(hist.Plane(1).At(2, 2)), 1e-4)
}

func TestGradHist_IgnoresPartialCells(t *testing.T) {
	assert := assert.New(t)

	// 9x9 input with binSize 4 covers only the top-left 8x8 region
	m := NewPlane(9, 9)
	o := NewPlane(9, 9)
	for i := range m.Pix {
		m.Pix[i] = 1
	}

	hist := gradHist(m, o, 4, 6, false, false)
	assert.Equal(2, hist.W)
	assert.Equal(2, hist.H)

	var sum float64
	for _, v := range hist.Data {
		sum += float64(v)
	}
	assert.InDelta(64.0, sum, 1e-3)
}

func TestHogChannels_NormalizedAndClipped(t *testing.T) {
	assert := assert.New(t)

	rng := rand.New(rand.NewSource(11))
	m := NewPlane(16, 16)
	o := NewPlane(16, 16)
	for i := range m.Pix {
		m.Pix[i] = rng.Float32()
		o.Pix[i] = float32(rng.Float64() * (math.Pi - 1e-3))
	}

	out := hogChannels(m, o, 4, 6, false, false, 0.2)
	assert.Equal(12, out.NCh)

	// the normalized half never exceeds the clip value
	for c := 0; c < 6; c++ {
		for _, v := range out.Plane(c).Pix {
			assert.LessOrEqual(float64(v), 0.2+1e-6)
		}
	}
}
