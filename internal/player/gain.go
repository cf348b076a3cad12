package player

import (
	"math"
	"sync/atomic"
)

const (
	VolumeCurveExponent = 0.5
	MinVolumeDB         = -10.0
)

// Gain is a linear amplitude factor in [0, 1] shared between the controller and
// the audio goroutine. Loads and stores are single atomic operations.
type Gain struct {
	bits atomic.Uint64
}

func NewGain(v float64) *Gain {
	g := &Gain{}
	g.Set(v)
	return g
}

// Set clamps v to [0, 1]; NaN is treated as silence.
func (g *Gain) Set(v float64) {
	switch {
	case math.IsNaN(v) || v < 0:
		v = 0
	case v > 1:
		v = 1
	}
	g.bits.Store(math.Float64bits(v))
}

func (g *Gain) Load() float64 {
	return math.Float64frombits(g.bits.Load())
}

// PercentToGain maps a 0-100 volume to a linear gain on a perceptual curve.
// 0% is silence.
func PercentToGain(percent int) float64 {
	if percent <= 0 {
		return 0
	}
	return math.Pow(2, percentToExponent(float64(percent)))
}

func percentToExponent(p float64) float64 {
	if p <= 0 {
		return MinVolumeDB
	}
	if p >= 100 {
		return 0
	}

	normalized := p / 100.0
	adjusted := math.Pow(normalized, VolumeCurveExponent)
	return (1.0 - adjusted) * MinVolumeDB
}
