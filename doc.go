/*
Package acf is an aggregated channel features object detection library. It computes
per pixel feature channels (LUV color, gradient magnitude and oriented gradient
histograms) over a multi scale pyramid and slides a boosted decision tree cascade
over the channels to locate object instances, which are then filtered through
non-maximum suppression.

The package provides a command line interface, supporting various flags for running
a trained detector over images, directories, URLs or pipes. To check the supported
commands type:

	$ acfdetect --help

In case you wish to integrate the API in a self constructed environment here is a simple example:

	package main

	import (
		"fmt"
		"os"

		"acf"
	)

	func main() {
		f, err := os.Open("model.json")
		if err != nil {
			fmt.Printf("Error opening the model: %s", err.Error())
			return
		}
		defer f.Close()

		d, err := acf.NewDetector(f)
		if err != nil {
			fmt.Printf("Error loading the model: %s", err.Error())
			return
		}

		dets, err := d.Detect(img)
		if err != nil {
			fmt.Printf("Error detecting objects: %s", err.Error())
		}

		for _, det := range dets {
			fmt.Printf("%v score=%.2f\n", det.Bounds(), det.Score)
		}
	}
*/
package acf
