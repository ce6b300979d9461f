package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"

	"acf"
	"acf/utils"
)

const HelpBanner = `
┌─┐┌─┐┌─┐┌┬┐┌─┐┌┬┐┌─┐┌─┐┌┬┐
├─┤│  ├┤  ││├┤  │ ├┤ │   │
┴ ┴└─┘└   ┴┘└─┘ ┴ └─┘└─┘ ┴

Aggregated channel features object detector.
    Version: %s

`

// pipeName is the file name that indicates stdin/stdout is being used.
const pipeName = "-"

// Version indicates the current build version.
var Version string

var (
	// Flags
	source      = flag.String("in", pipeName, "Source")
	destination = flag.String("out", pipeName, "Destination")
	model       = flag.String("model", "", "Trained detector model (JSON)")
	modify      = flag.String("modify", "", "Runtime option overrides (JSON file)")
	minScore    = flag.Float64("score", 0.0, "Minimum detection score")
	markerColor = flag.String("color", "#ff0000", "Detection marker color")
	thickness   = flag.Int("thickness", 2, "Detection marker thickness")
	jsonOut     = flag.Bool("json", false, "Output the detections as JSON instead of an annotated image")
	workers     = flag.Int("conc", runtime.NumCPU(), "Number of files to process concurrently")
)

func main() {
	log.SetFlags(0)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, HelpBanner, Version)
		flag.PrintDefaults()
	}
	flag.Parse()

	if len(*model) == 0 {
		log.Fatalf(utils.DecorateText("Please specify a trained detector model using the -model flag!\n", utils.ErrorMessage))
	}

	proc := &acf.Processor{
		MarkerColor: *markerColor,
		Thickness:   *thickness,
		MinScore:    *minScore,
		JSONOut:     *jsonOut,
	}
	if err := proc.LoadDetector(*model); err != nil {
		log.Fatalf(
			utils.DecorateText("Failed to load the detector model: %v", utils.ErrorMessage),
			utils.DecorateText(err.Error(), utils.DefaultMessage),
		)
	}

	if len(*modify) > 0 {
		data, err := os.ReadFile(*modify)
		if err != nil {
			log.Fatalf(
				utils.DecorateText("Failed to read the overrides file: %v", utils.ErrorMessage),
				utils.DecorateText(err.Error(), utils.DefaultMessage),
			)
		}
		if err := proc.Detector.Modify(data); err != nil {
			log.Fatalf(
				utils.DecorateText("Failed to apply the overrides: %v", utils.ErrorMessage),
				utils.DecorateText(err.Error(), utils.DefaultMessage),
			)
		}
	}

	proc.Execute(&acf.Ops{
		Src:      *source,
		Dst:      *destination,
		PipeName: pipeName,
		Workers:  *workers,
	})
}
