package utils

import (
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecorateText_WrapsWithColorCodes(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(ErrorColor+"boom"+DefaultColor, DecorateText("boom", ErrorMessage))
	assert.Equal(StatusColor+"run"+DefaultColor, DecorateText("run", StatusMessage))
	assert.Equal(SuccessColor+"ok"+DefaultColor, DecorateText("ok", SuccessMessage))
	assert.Equal(DefaultColor+"plain"+DefaultColor, DecorateText("plain", DefaultMessage))
	assert.Equal("raw", DecorateText("raw", MessageType(99)))
}

func TestFormatTime_HumanReadable(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("1.50s", FormatTime(1500*time.Millisecond))
	assert.Equal("2m 5.00s", FormatTime(125*time.Second))
	assert.Equal("1h 1m 5.00s", FormatTime(time.Hour+65*time.Second))
}

func TestHexToRGBA_ParsesShortAndLongForms(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(color.NRGBA{R: 0xff, A: 0xff}, HexToRGBA("#ff0000"))
	assert.Equal(color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, HexToRGBA("#fff"))
	assert.Equal(color.NRGBA{R: 0x11, G: 0x22, B: 0x33, A: 0xff}, HexToRGBA("112233"))
}
