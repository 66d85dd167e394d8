// Package coords converts coordinates taken from a caller's screenshot into the
// hosted page's native CSS pixel space.
package coords

import (
	"fmt"
	"math"
)

// Screenshot quality presets and the capture scale each one implies.
const (
	QualityLow  = "low"
	QualityHigh = "high"

	ScaleLow  = 1.0
	ScaleHigh = 3.0
)

// Normalizer rescales screenshot coordinates by a fixed, positive scale factor.
// The zero value is not usable; construct one with New or FromQuality.
type Normalizer struct {
	scale float64
}

// New returns a Normalizer for the given scale factor.
func New(scale float64) (Normalizer, error) {
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return Normalizer{}, fmt.Errorf("scale factor must be a positive finite number, got %v", scale)
	}
	return Normalizer{scale: scale}, nil
}

// FromQuality resolves the scale factor for a screenshot quality preset. An
// override greater than zero wins over the preset.
func FromQuality(quality string, override float64) (Normalizer, error) {
	if override > 0 {
		return New(override)
	}
	switch quality {
	case QualityLow:
		return New(ScaleLow)
	case QualityHigh, "":
		return New(ScaleHigh)
	default:
		return Normalizer{}, fmt.Errorf("unknown screenshot quality %q (expected %q or %q)", quality, QualityLow, QualityHigh)
	}
}

// Scale returns the configured scale factor.
func (n Normalizer) Scale() float64 { return n.scale }

// Normalize maps (x, y) to (floor(x/scale), floor(y/scale)).
func (n Normalizer) Normalize(x, y float64) (int, int) {
	return int(math.Floor(x / n.scale)), int(math.Floor(y / n.scale))
}
