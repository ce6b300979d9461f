package acf

import (
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"acf/utils"

	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
)

// Processor options
type Processor struct {
	// Detector is the loaded model the processor evaluates.
	Detector *Detector
	// MarkerColor is the hex color of the detection outlines.
	MarkerColor string
	// Thickness is the outline width in pixels.
	Thickness int
	// MinScore drops detections scoring below it before drawing or output.
	MinScore float64
	// JSONOut switches the output from an annotated image to a JSON report.
	JSONOut bool
	Spinner *utils.Spinner
}

// detectionReport is the JSON shape of one detection in the -json output.
type detectionReport struct {
	X     int     `json:"x"`
	Y     int     `json:"y"`
	W     int     `json:"w"`
	H     int     `json:"h"`
	Score float64 `json:"score"`
}

// LoadDetector reads the model file and prepares the processor for use.
func (p *Processor) LoadDetector(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening the model file")
	}
	defer f.Close()

	d, err := NewDetector(f)
	if err != nil {
		return err
	}
	p.Detector = d
	return nil
}

// Process runs the detector over the image read from r and writes the result
// to w: the source image with the detections outlined, or a JSON report when
// JSONOut is set.
func (p *Processor) Process(r io.Reader, w io.Writer) error {
	if p.Detector == nil {
		return errors.Wrap(ErrConfiguration, "process: no model loaded")
	}
	img, _, err := image.Decode(r)
	if err != nil {
		return fmt.Errorf("could not decode the source image: %v", err)
	}

	dets, err := p.Detector.Detect(img)
	if err != nil {
		return err
	}
	dets = p.filter(dets)

	if p.JSONOut {
		report := make([]detectionReport, 0, len(dets))
		for _, d := range dets {
			b := d.Bounds()
			report = append(report, detectionReport{
				X: b.Min.X, Y: b.Min.Y, W: b.Dx(), H: b.Dy(), Score: d.Score,
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	out := DrawDetections(img, dets, p.markerColor(), p.Thickness)
	return EncodeImg(w, out)
}

func (p *Processor) filter(dets []Detection) []Detection {
	out := dets[:0]
	for _, d := range dets {
		if d.Score >= p.MinScore {
			out = append(out, d)
		}
	}
	return out
}

func (p *Processor) markerColor() string {
	if p.MarkerColor == "" {
		return "#ff0000"
	}
	return p.MarkerColor
}
