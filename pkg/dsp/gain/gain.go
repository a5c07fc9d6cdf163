// Package gain provides amplitude and gain-related DSP operations.
package gain

import (
	"math"
)

const (
	// MinDB is the floor reported for silence. Every level in the system is
	// clamped to it so that log-of-zero never produces -Inf or NaN.
	MinDB = -120.0

	// Epsilon guards divisions and logarithms of near-zero energy.
	Epsilon = 1e-10
)

// LinearToDb converts a linear amplitude value to decibels.
// Returns MinDB for values at or below the floor.
func LinearToDb(linear float64) float64 {
	if linear <= 0 {
		return MinDB
	}
	db := 20.0 * math.Log10(linear)
	if db < MinDB {
		return MinDB
	}
	return db
}

// DbToLinear converts a decibel value to linear amplitude.
// Values <= MinDB return 0.
func DbToLinear(db float64) float64 {
	if db <= MinDB {
		return 0
	}
	return math.Pow(10.0, db/20.0)
}

// ClampDb limits a dB value to [lo, hi].
func ClampDb(db, lo, hi float64) float64 {
	if db < lo {
		return lo
	}
	if db > hi {
		return hi
	}
	return db
}

// Combine multiplies linear gain factors. The product is independent of
// argument order within float rounding.
func Combine(factors ...float32) float32 {
	g := float32(1)
	for _, f := range factors {
		g *= f
	}
	return g
}

// ApplyBuffer applies gain to an entire buffer in-place.
func ApplyBuffer(buffer []float32, gain float32) {
	for i := range buffer {
		buffer[i] *= gain
	}
}

// ApplyChannels applies one gain factor to every channel in a single pass.
func ApplyChannels(channels [][]float32, gain float32) {
	if gain == 1 {
		return
	}
	for _, ch := range channels {
		ApplyBuffer(ch, gain)
	}
}
