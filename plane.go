package acf

import "acf/utils"

// Plane is a single 2D grid of float32 feature values, stored row major.
// A Plane may either own its pixels or alias a region of a Tensor.
type Plane struct {
	W, H int
	Pix  []float32
}

// NewPlane allocates a zero filled plane of the given size.
func NewPlane(w, h int) Plane {
	return Plane{W: w, H: h, Pix: make([]float32, w*h)}
}

// At returns the value at (x, y). No bounds checking beyond the slice's own.
func (p Plane) At(x, y int) float32 {
	return p.Pix[y*p.W+x]
}

// Set stores v at (x, y).
func (p Plane) Set(x, y int, v float32) {
	p.Pix[y*p.W+x] = v
}

// Clone returns a deep copy of the plane.
func (p Plane) Clone() Plane {
	q := Plane{W: p.W, H: p.H, Pix: make([]float32, len(p.Pix))}
	copy(q.Pix, p.Pix)
	return q
}

// Mean returns the average of all plane values.
func (p Plane) Mean() float64 {
	if len(p.Pix) == 0 {
		return 0
	}
	var sum float64
	for _, v := range p.Pix {
		sum += float64(v)
	}
	return sum / float64(len(p.Pix))
}

// padPlane grows the plane by padX columns on the left/right and padY rows on
// the top/bottom. When replicate is true the border values are copied outward,
// otherwise the padding area is filled with fill.
func padPlane(p Plane, padX, padY int, replicate bool, fill float32) Plane {
	if padX == 0 && padY == 0 {
		return p
	}
	w, h := p.W+2*padX, p.H+2*padY
	q := NewPlane(w, h)
	if !replicate && fill != 0 {
		for i := range q.Pix {
			q.Pix[i] = fill
		}
	}
	for y := 0; y < h; y++ {
		sy := utils.Clamp(y-padY, 0, p.H-1)
		drow := q.Pix[y*w : (y+1)*w]
		srow := p.Pix[sy*p.W : (sy+1)*p.W]
		if replicate {
			for x := 0; x < padX; x++ {
				drow[x] = srow[0]
				drow[w-1-x] = srow[p.W-1]
			}
			copy(drow[padX:padX+p.W], srow)
		} else if y >= padY && y < padY+p.H {
			copy(drow[padX:padX+p.W], srow)
		}
	}
	return q
}

// Tensor is an ordered stack of equal sized planes backed by one contiguous
// buffer, so that a flat feature index addresses (channel, row, column)
// directly. Once computed the channel order and count are fixed.
type Tensor struct {
	W, H int
	NCh  int
	Data []float32

	// U8 holds the channel values quantized to 8 bits (round(v*255), clamped),
	// same layout as Data. Populated on demand by Quantize.
	U8 []uint8
}

// NewTensor allocates a tensor of nch zero filled planes.
func NewTensor(w, h, nch int) Tensor {
	return Tensor{W: w, H: h, NCh: nch, Data: make([]float32, w*h*nch)}
}

// Plane returns a view of channel c aliasing the tensor's buffer.
func (t Tensor) Plane(c int) Plane {
	n := t.W * t.H
	return Plane{W: t.W, H: t.H, Pix: t.Data[c*n : (c+1)*n]}
}

// Append stacks the planes of src after the existing channels.
// All planes must share the tensor geometry.
func (t *Tensor) Append(planes ...Plane) {
	for _, p := range planes {
		if t.NCh == 0 && t.W == 0 {
			t.W, t.H = p.W, p.H
		}
		t.Data = append(t.Data, p.Pix...)
		t.NCh++
	}
}

// Quantize fills the U8 buffer from the float data. Values are clamped
// to [0, 1] before scaling, matching the prescaled threshold table of the
// classifier (see Classifier.ScaledThresholds).
func (t *Tensor) Quantize() {
	if len(t.U8) == len(t.Data) {
		return
	}
	t.U8 = make([]uint8, len(t.Data))
	for i, v := range t.Data {
		s := v * 255
		if s < 0 {
			s = 0
		} else if s > 255 {
			s = 255
		}
		t.U8[i] = uint8(s + 0.5)
	}
}
