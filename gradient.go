package acf

import "math"

// gradMag computes per-pixel gradient magnitude M and orientation O from the
// planes of src. When channel >= 0 only that plane is used; otherwise every
// plane is evaluated and the one with the largest magnitude wins, with the
// orientation taken from the winning plane. Orientations are mapped to
// [0, pi) by default, or [0, 2*pi) when full is set.
//
// Gradients use central differences, one sided at the borders.
func gradMag(src Tensor, channel int, full bool) (m, o Plane) {
	w, h := src.W, src.H
	m = NewPlane(w, h)
	o = NewPlane(w, h)
	gx := make([]float32, w*h)
	gy := make([]float32, w*h)

	c0, c1 := 0, src.NCh
	if channel >= 0 && channel < src.NCh {
		c0, c1 = channel, channel+1
	}

	for c := c0; c < c1; c++ {
		p := src.Plane(c)
		for y := 0; y < h; y++ {
			row := p.Pix[y*w : (y+1)*w]
			var up, down []float32
			if y > 0 {
				up = p.Pix[(y-1)*w : y*w]
			} else {
				up = row
			}
			if y < h-1 {
				down = p.Pix[(y+1)*w : (y+2)*w]
			} else {
				down = row
			}
			dy := float32(0.5)
			if y == 0 || y == h-1 {
				dy = 1
			}
			for x := 0; x < w; x++ {
				x0, x1 := x-1, x+1
				dx := float32(0.5)
				if x0 < 0 {
					x0, dx = 0, 1
				}
				if x1 > w-1 {
					x1, dx = w-1, 1
				}
				ggx := (row[x1] - row[x0]) * dx
				ggy := (down[x] - up[x]) * dy
				mag := ggx*ggx + ggy*ggy
				i := y*w + x
				if mag > m.Pix[i] {
					m.Pix[i] = mag
					gx[i] = ggx
					gy[i] = ggy
				}
			}
		}
	}

	rng := math.Pi
	if full {
		rng = 2 * math.Pi
	}
	for i := range m.Pix {
		m.Pix[i] = float32(math.Sqrt(float64(m.Pix[i])))
		a := math.Atan2(float64(gy[i]), float64(gx[i]))
		if a < 0 {
			a += 2 * math.Pi
		}
		if !full && a >= math.Pi {
			a -= math.Pi
		}
		if a >= rng {
			a -= rng
		}
		o.Pix[i] = float32(a)
	}
	return m, o
}

// gradMagNorm normalizes the magnitude plane by a smoothed copy of itself:
// M <- M / (convTri(M, normRad) + normConst). Suppresses the dependence of
// gradient strength on local illumination.
func gradMagNorm(m Plane, normRad int, normConst float64) Plane {
	if normRad <= 0 {
		return m
	}
	s := convTri(m, float64(normRad))
	dst := NewPlane(m.W, m.H)
	nc := float32(normConst)
	for i, v := range m.Pix {
		dst.Pix[i] = v / (s.Pix[i] + nc)
	}
	return dst
}
