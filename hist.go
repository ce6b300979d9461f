package acf

import (
	"math"

	"acf/utils"
)

const histEps = 1e-5

// gradHist accumulates the magnitude plane into nOrients orientation planes
// over binSize x binSize spatial cells. With soft binning the magnitude is
// linearly interpolated between the two nearest orientation bins and
// bilinearly over the four nearest cells; hard binning snaps to the nearest
// bin and cell. The output planes have size (w/binSize) x (h/binSize); input
// rows and columns beyond the last full cell are ignored.
func gradHist(m, o Plane, binSize, nOrients int, softBin, full bool) Tensor {
	w, h := m.W, m.H
	wb, hb := w/binSize, h/binSize
	rng := math.Pi
	if full {
		rng = 2 * math.Pi
	}
	oMult := float64(nOrients) / rng
	inv := 1.0 / float64(binSize)

	hist := NewTensor(wb, hb, nOrients)
	add := func(bin, cx, cy int, v float32) {
		if cx < 0 || cy < 0 || cx >= wb || cy >= hb {
			return
		}
		hist.Data[bin*wb*hb+cy*wb+cx] += v
	}

	for y := 0; y < hb*binSize; y++ {
		for x := 0; x < wb*binSize; x++ {
			mag := m.At(x, y)
			if mag == 0 {
				continue
			}
			ob := float64(o.At(x, y)) * oMult

			// orientation binning
			o0 := int(ob)
			od := float32(ob - float64(o0))
			o0 %= nOrients
			o1 := (o0 + 1) % nOrients
			m0, m1 := mag*(1-od), mag*od
			if !softBin {
				// snap all weight to the nearest orientation bin
				if od >= 0.5 {
					o0, m0, m1 = o1, mag, 0
				} else {
					m0, m1 = mag, 0
				}
			}

			if !softBin {
				add(o0, x/binSize, y/binSize, m0)
				continue
			}

			// bilinear spatial binning over the four nearest cells
			xc := (float64(x)+0.5)*inv - 0.5
			yc := (float64(y)+0.5)*inv - 0.5
			x0, y0 := int(math.Floor(xc)), int(math.Floor(yc))
			xd, yd := float32(xc-float64(x0)), float32(yc-float64(y0))
			w00 := (1 - xd) * (1 - yd)
			w10 := xd * (1 - yd)
			w01 := (1 - xd) * yd
			w11 := xd * yd

			add(o0, x0, y0, m0*w00)
			add(o0, x0+1, y0, m0*w10)
			add(o0, x0, y0+1, m0*w01)
			add(o0, x0+1, y0+1, m0*w11)
			if m1 != 0 {
				add(o1, x0, y0, m1*w00)
				add(o1, x0+1, y0, m1*w10)
				add(o1, x0, y0+1, m1*w01)
				add(o1, x0+1, y0+1, m1*w11)
			}
		}
	}
	return hist
}

// hogChannels derives the useHog channel set from a plain gradient histogram:
// the histogram normalized per cell by its total magnitude and clipped at
// clipHog, followed by a coarser unnormalized copy computed over cells twice
// the size and upsampled back to cell resolution.
func hogChannels(m, o Plane, binSize, nOrients int, softBin, full bool, clipHog float64) Tensor {
	hist := gradHist(m, o, binSize, nOrients, softBin, full)
	wb, hb := hist.W, hist.H
	clip := float32(clipHog)

	out := NewTensor(wb, hb, 0)

	// per cell normalization across orientation bins, then clipping
	norm := NewPlane(wb, hb)
	for c := 0; c < nOrients; c++ {
		p := hist.Plane(c)
		for i, v := range p.Pix {
			norm.Pix[i] += v
		}
	}
	for c := 0; c < nOrients; c++ {
		src := hist.Plane(c)
		dst := NewPlane(wb, hb)
		for i, v := range src.Pix {
			dst.Pix[i] = utils.Min(v/(norm.Pix[i]+histEps), clip)
		}
		out.Append(dst)
	}

	// coarse unnormalized copy at twice the cell size
	coarse := gradHist(m, o, binSize*2, nOrients, softBin, full)
	for c := 0; c < nOrients; c++ {
		out.Append(resamplePlane(coarse.Plane(c), wb, hb, 1))
	}
	return out
}
