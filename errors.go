package acf

import "github.com/pkg/errors"

// Root error kinds surfaced by the detection pipeline. Callers can test for
// them with errors.Is after unwrapping whatever context was added along the
// way. Degenerate pyramid levels are not errors: they are dropped silently
// and the remaining levels stay valid.
var (
	// ErrInvalidInput marks an empty or malformed image, or a classifier
	// whose feature layout does not match the configured channels.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfiguration marks inconsistent options, for instance a shrink
	// factor that does not divide the histogram cell geometry.
	ErrConfiguration = errors.New("invalid configuration")
)
