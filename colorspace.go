package acf

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

// Supported working color spaces.
const (
	ColorSpaceRGB  = "rgb"
	ColorSpaceLUV  = "luv"
	ColorSpaceGray = "gray"
	ColorSpaceHSV  = "hsv"
)

// LUV conversion constants. The RGB to XYZ matrix and the scaling terms keep
// all three output planes inside [0, 1], which the quantized channel path
// relies on.
var rgb2xyz = [9]float64{
	0.430574, 0.341550, 0.178325,
	0.222015, 0.706655, 0.071330,
	0.020183, 0.129553, 0.939180,
}

const (
	luvY0   = 0.00885645167 // (6/29)^3
	luvA    = 903.296296296 // (29/3)^3
	luvUn   = 0.197833
	luvVn   = 0.468331
	luvMaxi = 1.0 / 270.0
	luvMinU = luvMaxi * -88.0
	luvMinV = luvMaxi * -134.0
)

// rgb2luv converts a single rgb triplet (each in [0,1]) to the scaled LUV
// space used by the channel pipeline.
func rgb2luv(r, g, b float64) (l, u, v float64) {
	x := rgb2xyz[0]*r + rgb2xyz[1]*g + rgb2xyz[2]*b
	y := rgb2xyz[3]*r + rgb2xyz[4]*g + rgb2xyz[5]*b
	z := rgb2xyz[6]*r + rgb2xyz[7]*g + rgb2xyz[8]*b

	c := x + 15*y + 3*z + 1e-35
	zi := 1.0 / c

	if y > luvY0 {
		l = (116.0*math.Cbrt(y) - 16.0) * luvMaxi
	} else {
		l = y * luvA * luvMaxi
	}
	u = l*((52.0*x*zi)-(13.0*luvUn)) - luvMinU
	v = l*((117.0*y*zi)-(13.0*luvVn)) - luvMinV
	return l, u, v
}

// rgbConvert transforms the three rgb input planes into the requested working
// color space. The returned tensor carries 3 planes, except for gray which
// carries one. The input tensor is left untouched.
func rgbConvert(src Tensor, colorSpace string) (Tensor, error) {
	if src.NCh != 3 {
		return Tensor{}, errors.Wrapf(ErrInvalidInput, "color transform: expected 3 input planes, got %d", src.NCh)
	}
	n := src.W * src.H
	r, g, b := src.Plane(0), src.Plane(1), src.Plane(2)

	switch colorSpace {
	case ColorSpaceRGB:
		dst := NewTensor(src.W, src.H, 3)
		copy(dst.Data, src.Data)
		return dst, nil
	case ColorSpaceLUV:
		dst := NewTensor(src.W, src.H, 3)
		l, u, v := dst.Plane(0), dst.Plane(1), dst.Plane(2)
		for i := 0; i < n; i++ {
			lf, uf, vf := rgb2luv(float64(r.Pix[i]), float64(g.Pix[i]), float64(b.Pix[i]))
			l.Pix[i] = float32(lf)
			u.Pix[i] = float32(uf)
			v.Pix[i] = float32(vf)
		}
		return dst, nil
	case ColorSpaceGray:
		dst := NewTensor(src.W, src.H, 1)
		gr := dst.Plane(0)
		for i := 0; i < n; i++ {
			gr.Pix[i] = 0.299*r.Pix[i] + 0.587*g.Pix[i] + 0.114*b.Pix[i]
		}
		return dst, nil
	case ColorSpaceHSV:
		dst := NewTensor(src.W, src.H, 3)
		hp, sp, vp := dst.Plane(0), dst.Plane(1), dst.Plane(2)
		for i := 0; i < n; i++ {
			c := colorful.Color{R: float64(r.Pix[i]), G: float64(g.Pix[i]), B: float64(b.Pix[i])}
			h, s, v := c.Hsv()
			hp.Pix[i] = float32(h / 360.0)
			sp.Pix[i] = float32(s)
			vp.Pix[i] = float32(v)
		}
		return dst, nil
	default:
		return Tensor{}, errors.Wrapf(ErrConfiguration, "color transform: unknown color space %q", colorSpace)
	}
}
