package acf

// resamplePlane resizes a float plane to (wd, hd) with bilinear sampling and
// multiplies every output value by nrm. It is the channel-space counterpart
// of the image-space resize used on real pyramid scales: it preserves the
// channel count of a tensor and lets approximated levels be derived without
// recomputing the channels.
func resamplePlane(src Plane, wd, hd int, nrm float64) Plane {
	if wd == src.W && hd == src.H && nrm == 1 {
		return src.Clone()
	}
	dst := NewPlane(wd, hd)
	if wd <= 0 || hd <= 0 || src.W == 0 || src.H == 0 {
		return dst
	}
	sx := float64(src.W) / float64(wd)
	sy := float64(src.H) / float64(hd)
	nf := float32(nrm)

	for y := 0; y < hd; y++ {
		fy := (float64(y)+0.5)*sy - 0.5
		y0 := int(fy)
		if fy < 0 {
			fy, y0 = 0, 0
		}
		y1 := y0 + 1
		if y1 > src.H-1 {
			y1 = src.H - 1
		}
		wy := float32(fy - float64(y0))
		row0 := src.Pix[y0*src.W : (y0+1)*src.W]
		row1 := src.Pix[y1*src.W : (y1+1)*src.W]
		out := dst.Pix[y*wd : (y+1)*wd]
		for x := 0; x < wd; x++ {
			fx := (float64(x)+0.5)*sx - 0.5
			x0 := int(fx)
			if fx < 0 {
				fx, x0 = 0, 0
			}
			x1 := x0 + 1
			if x1 > src.W-1 {
				x1 = src.W - 1
			}
			wx := float32(fx - float64(x0))
			top := row0[x0] + (row0[x1]-row0[x0])*wx
			bot := row1[x0] + (row1[x1]-row1[x0])*wx
			out[x] = (top + (bot-top)*wy) * nf
		}
	}
	return dst
}

// resampleTensor resizes every channel of a tensor to (wd, hd), scaling the
// values by nrm.
func resampleTensor(src Tensor, wd, hd int, nrm float64) Tensor {
	dst := NewTensor(wd, hd, 0)
	for c := 0; c < src.NCh; c++ {
		dst.Append(resamplePlane(src.Plane(c), wd, hd, nrm))
	}
	return dst
}
