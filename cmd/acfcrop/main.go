package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"acf"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"
	log "github.com/sirupsen/logrus"
)

// meanAcc accumulates a running per pixel sum of equally sized crops. Each
// worker owns one accumulator; they are merged once all workers are done.
type meanAcc struct {
	w, h  int
	sum   []float64
	count int
}

func newMeanAcc(w, h int) *meanAcc {
	return &meanAcc{w: w, h: h, sum: make([]float64, w*h*3)}
}

func (a *meanAcc) add(img *image.RGBA) {
	for y := 0; y < a.h; y++ {
		for x := 0; x < a.w; x++ {
			px := img.RGBAAt(img.Rect.Min.X+x, img.Rect.Min.Y+y)
			i := (y*a.w + x) * 3
			a.sum[i] += float64(px.R)
			a.sum[i+1] += float64(px.G)
			a.sum[i+2] += float64(px.B)
		}
	}
	a.count++
}

func (a *meanAcc) merge(b *meanAcc) {
	for i := range a.sum {
		a.sum[i] += b.sum[i]
	}
	a.count += b.count
}

func (a *meanAcc) image() *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, a.w, a.h))
	if a.count == 0 {
		return out
	}
	n := float64(a.count)
	for y := 0; y < a.h; y++ {
		for x := 0; x < a.w; x++ {
			i := (y*a.w + x) * 3
			out.SetNRGBA(x, y, nrgba(a.sum[i]/n, a.sum[i+1]/n, a.sum[i+2]/n))
		}
	}
	return out
}

func nrgba(r, g, b float64) (c color.NRGBA) {
	c.R, c.G, c.B, c.A = clamp8(r), clamp8(g), clamp8(b), 0xff
	return c
}

func clamp8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}

var (
	source   = flag.String("in", "", "Source directory")
	dest     = flag.String("out", "", "Destination directory for the crops")
	model    = flag.String("model", "", "Trained detector model (JSON)")
	cropW    = flag.Int("width", 64, "Crop width")
	cropH    = flag.Int("height", 64, "Crop height")
	padding  = flag.Float64("pad", 0.1, "Padding around the detection, as a fraction of its size")
	minScore = flag.Float64("score", 0.0, "Minimum detection score")
	meanOut  = flag.String("mean", "", "Write the mean crop image to this file")
	workers  = flag.Int("conc", runtime.NumCPU(), "Number of files to process concurrently")
)

func main() {
	flag.Parse()
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if *source == "" || *dest == "" || *model == "" {
		flag.Usage()
		os.Exit(1)
	}

	proc := &acf.Processor{MinScore: *minScore}
	if err := proc.LoadDetector(*model); err != nil {
		log.WithError(err).Fatal("failed to load the detector model")
	}
	if err := os.MkdirAll(*dest, 0755); err != nil {
		log.WithError(err).Fatal("failed to create the destination directory")
	}

	var paths []string
	err := filepath.Walk(*source, func(path string, f os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !f.Mode().IsRegular() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".jpg", ".jpeg", ".png", ".bmp":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Fatal("failed to walk the source directory")
	}
	log.WithField("images", len(paths)).Info("starting the crop run")

	if *workers < 1 {
		*workers = 1
	}
	pathCh := make(chan string, len(paths))
	for _, p := range paths {
		pathCh <- p
	}
	close(pathCh)

	accs := make([]*meanAcc, *workers)
	var wg sync.WaitGroup
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			acc := newMeanAcc(*cropW, *cropH)
			accs[w] = acc
			for path := range pathCh {
				if err := cropOne(proc.Detector, path, acc); err != nil {
					log.WithError(err).WithField("image", path).Warn("skipping image")
				}
			}
		}(w)
	}
	wg.Wait()

	total := newMeanAcc(*cropW, *cropH)
	for _, acc := range accs {
		if acc != nil {
			total.merge(acc)
		}
	}
	log.WithField("crops", total.count).Info("crop run finished")

	if *meanOut != "" && total.count > 0 {
		if err := imgio.Save(*meanOut, total.image(), imgio.PNGEncoder()); err != nil {
			log.WithError(err).Fatal("failed to save the mean crop image")
		}
		log.WithField("file", *meanOut).Info("mean crop image saved")
	}
}

// cropOne detects in one image, saves every padded crop resized to the target
// size and feeds it into the worker's running mean.
func cropOne(d *acf.Detector, path string, acc *meanAcc) error {
	img, err := imgio.Open(path)
	if err != nil {
		return err
	}
	dets, err := d.Detect(img)
	if err != nil {
		return err
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for i, det := range dets {
		if det.Score < *minScore {
			continue
		}
		det.X -= det.W * *padding
		det.Y -= det.H * *padding
		det.W *= 1 + 2**padding
		det.H *= 1 + 2**padding
		crop, ok := acf.CropDetection(img, det)
		if !ok {
			continue
		}
		sized := transform.Resize(crop, *cropW, *cropH, transform.Linear)
		acc.add(sized)
		out := filepath.Join(*dest, fmt.Sprintf("%s_%02d.png", base, i))
		if err := imgio.Save(out, sized, imgio.PNGEncoder()); err != nil {
			return err
		}
	}
	return nil
}
