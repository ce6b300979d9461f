package acf

import (
	"image"
	"image/color"
	"math"

	"acf/utils"
)

// DrawDetections renders the detections onto a copy of img as rectangle
// outlines. The hex color accepts #rgb and #rrggbb; thickness is in pixels
// and scales no further with the box size.
func DrawDetections(img image.Image, dets []Detection, hexColor string, thickness int) *image.NRGBA {
	src := ImgToNRGBA(img)
	dst := image.NewNRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	col := utils.HexToRGBA(hexColor)
	if thickness < 1 {
		thickness = 1
	}
	for _, d := range dets {
		strokeRect(dst, d.Bounds(), col, thickness)
	}
	return dst
}

// Bounds returns the detection window rounded to integer pixel coordinates.
func (d Detection) Bounds() image.Rectangle {
	return image.Rect(
		int(math.Round(d.X)), int(math.Round(d.Y)),
		int(math.Round(d.X+d.W)), int(math.Round(d.Y+d.H)),
	)
}

// strokeRect draws the outline of r with the given thickness, growing inward.
func strokeRect(dst *image.NRGBA, r image.Rectangle, col color.NRGBA, thickness int) {
	b := dst.Bounds()
	for t := 0; t < thickness; t++ {
		rt := r.Inset(t)
		if rt.Empty() {
			break
		}
		for x := rt.Min.X; x < rt.Max.X; x++ {
			setPx(dst, b, x, rt.Min.Y, col)
			setPx(dst, b, x, rt.Max.Y-1, col)
		}
		for y := rt.Min.Y; y < rt.Max.Y; y++ {
			setPx(dst, b, rt.Min.X, y, col)
			setPx(dst, b, rt.Max.X-1, y, col)
		}
	}
}

func setPx(dst *image.NRGBA, b image.Rectangle, x, y int, col color.NRGBA) {
	if (image.Point{X: x, Y: y}).In(b) {
		dst.SetNRGBA(x, y, col)
	}
}

// CropDetection extracts the detection window from img, clamped to the image
// bounds. The second return is false when the window misses the image
// entirely.
func CropDetection(img image.Image, d Detection) (*image.NRGBA, bool) {
	src := ImgToNRGBA(img)
	r := d.Bounds().Intersect(src.Bounds())
	if r.Empty() {
		return nil, false
	}
	return src.SubImage(r).(*image.NRGBA), true
}
