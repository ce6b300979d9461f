package acf

import "acf/utils"

// convTri smooths a plane with a separable triangle filter of integer radius
// r, kernel [1 2 ... r+1 ... 2 1] / (r+1)^2, with replicated borders. For
// r <= 0 the plane is returned as is; fractional radii in (0, 1) go through
// convTri1. The input plane is not modified.
func convTri(src Plane, r float64) Plane {
	if r <= 0 {
		return src
	}
	if r < 1 {
		return convTri1(src, 12/r/(r+2)-2)
	}
	rad := int(r)
	tmp := convTriRows(src, rad)
	return convTriCols(tmp, rad)
}

// convTri1 smooths with the 3 tap kernel [1 p 1] / (p + 2), the cheap
// approximation used for sub-unit radii.
func convTri1(src Plane, p float64) Plane {
	w, h := src.W, src.H
	nrm := float32(1.0 / (p + 2))
	pf := float32(p)

	tmp := NewPlane(w, h)
	for y := 0; y < h; y++ {
		row := src.Pix[y*w : (y+1)*w]
		out := tmp.Pix[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			l := row[utils.Max(x-1, 0)]
			rr := row[utils.Min(x+1, w-1)]
			out[x] = (l + pf*row[x] + rr) * nrm
		}
	}
	dst := NewPlane(w, h)
	for y := 0; y < h; y++ {
		y0 := utils.Max(y-1, 0)
		y1 := utils.Min(y+1, h-1)
		top := tmp.Pix[y0*w : y0*w+w]
		mid := tmp.Pix[y*w : y*w+w]
		bot := tmp.Pix[y1*w : y1*w+w]
		out := dst.Pix[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			out[x] = (top[x] + pf*mid[x] + bot[x]) * nrm
		}
	}
	return dst
}

// convTriRows runs the horizontal triangle pass. The triangle kernel is built
// as two box passes worth of weights evaluated directly, which keeps the
// result exact for the replicated border.
func convTriRows(src Plane, rad int) Plane {
	w, h := src.W, src.H
	dst := NewPlane(w, h)
	nrm := float32(1.0 / float64((rad+1)*(rad+1)))
	for y := 0; y < h; y++ {
		row := src.Pix[y*w : (y+1)*w]
		out := dst.Pix[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			var acc float32
			for k := -rad; k <= rad; k++ {
				wgt := float32(rad + 1 - utils.Abs(k))
				acc += wgt * row[utils.Clamp(x+k, 0, w-1)]
			}
			out[x] = acc * nrm
		}
	}
	return dst
}

// convTriCols runs the vertical triangle pass.
func convTriCols(src Plane, rad int) Plane {
	w, h := src.W, src.H
	dst := NewPlane(w, h)
	nrm := float32(1.0 / float64((rad+1)*(rad+1)))
	for y := 0; y < h; y++ {
		out := dst.Pix[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			var acc float32
			for k := -rad; k <= rad; k++ {
				wgt := float32(rad + 1 - utils.Abs(k))
				acc += wgt * src.Pix[utils.Clamp(y+k, 0, h-1)*w+x]
			}
			out[x] = acc * nrm
		}
	}
	return dst
}

// convTriTensor smooths every channel of a tensor, returning a new tensor.
func convTriTensor(src Tensor, r float64) Tensor {
	if r <= 0 {
		return src
	}
	dst := NewTensor(src.W, src.H, 0)
	for c := 0; c < src.NCh; c++ {
		dst.Append(convTri(src.Plane(c), r))
	}
	return dst
}
