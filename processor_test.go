package acf

import (
	"bytes"
	"encoding/json"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProcessor_JSONReport(t *testing.T) {
	assert := assert.New(t)

	d := &Detector{Opts: synthOptions(), Clf: stumpClassifier(centerFid, 0.5, 2)}
	assert.NoError(d.prepare())

	var src bytes.Buffer
	assert.NoError(png.Encode(&src, squareImage()))

	proc := &Processor{Detector: d, JSONOut: true}
	var out bytes.Buffer
	assert.NoError(proc.Process(&src, &out))

	var report []detectionReport
	assert.NoError(json.Unmarshal(out.Bytes(), &report))
	assert.NotEmpty(report)
	for _, r := range report {
		assert.Equal(32, r.W)
		assert.Equal(32, r.H)
		assert.InDelta(2.0, r.Score, 1e-6)
	}
}

func TestProcessor_MinScoreFiltersReport(t *testing.T) {
	assert := assert.New(t)

	d := &Detector{Opts: synthOptions(), Clf: stumpClassifier(centerFid, 0.5, 2)}
	assert.NoError(d.prepare())

	var src bytes.Buffer
	assert.NoError(png.Encode(&src, squareImage()))

	proc := &Processor{Detector: d, JSONOut: true, MinScore: 5}
	var out bytes.Buffer
	assert.NoError(proc.Process(&src, &out))

	var report []detectionReport
	assert.NoError(json.Unmarshal(out.Bytes(), &report))
	assert.Empty(report)
}

func TestProcessor_AnnotatedImageOutput(t *testing.T) {
	assert := assert.New(t)

	d := &Detector{Opts: synthOptions(), Clf: stumpClassifier(centerFid, 0.5, 2)}
	assert.NoError(d.prepare())

	var src bytes.Buffer
	assert.NoError(png.Encode(&src, squareImage()))

	proc := &Processor{Detector: d, MarkerColor: "#00ff00", Thickness: 2}
	var out bytes.Buffer
	assert.NoError(proc.Process(&src, &out))
	// default writer encoding is jpeg
	assert.Equal([]byte{0xff, 0xd8}, out.Bytes()[:2])
}

func TestProcessor_RequiresLoadedModel(t *testing.T) {
	assert := assert.New(t)

	proc := &Processor{}
	err := proc.Process(&bytes.Buffer{}, &bytes.Buffer{})
	assert.Error(err)
}
