// Package dynamics provides the output ceiling stage of the gain chain.
package dynamics

import (
	"math"

	"github.com/justyntemme/gainlink/pkg/dsp/envelope"
	"github.com/justyntemme/gainlink/pkg/dsp/gain"
)

const (
	// CeilingAttack is the time the reduction factor needs to land within
	// 1% of the reduction a block asks for.
	CeilingAttack = 0.001
	// CeilingRelease is the time the reduction factor needs to let go.
	CeilingRelease = 0.050

	// MinCeilingDB is the lowest ceiling the limiter accepts.
	MinCeilingDB = -24.0

	minPeak = 0.0001

	// ln(100): one-pole time constants in which 99% of a step is covered.
	settleConstants = 4.605170185988092
)

// CeilingLimiter keeps the output peak under a ceiling. It finds the block
// peak, derives the reduction factor needed to meet the ceiling and glides
// a per-sample gain toward it. The gain never exceeds unity.
type CeilingLimiter struct {
	sampleRate float64

	ceilingDB  float64
	ceilingLin float32

	smoother *envelope.AttackRelease
}

// NewCeilingLimiter creates a limiter with a 0 dB ceiling, which leaves the
// signal untouched until SetCeiling lowers it.
func NewCeilingLimiter(sampleRate float64) *CeilingLimiter {
	l := &CeilingLimiter{
		sampleRate: sampleRate,
		smoother:   envelope.NewAttackRelease(sampleRate, CeilingAttack/settleConstants, CeilingRelease, 1),
	}
	l.SetCeiling(0)
	return l
}

// SetSampleRate recomputes the smoothing coefficients.
func (l *CeilingLimiter) SetSampleRate(sampleRate float64) {
	l.sampleRate = sampleRate
	l.smoother.SetSampleRate(sampleRate)
}

// SetCeiling sets the ceiling in dB, clamped to [MinCeilingDB, 0].
func (l *CeilingLimiter) SetCeiling(dB float64) {
	l.ceilingDB = gain.ClampDb(dB, MinCeilingDB, 0)
	l.ceilingLin = float32(gain.DbToLinear(l.ceilingDB))
}

// Ceiling returns the ceiling in dB.
func (l *CeilingLimiter) Ceiling() float64 {
	return l.ceilingDB
}

// Active reports whether the ceiling is below full scale.
func (l *CeilingLimiter) Active() bool {
	return l.ceilingDB < 0
}

// Process limits the block in place. While inactive it keeps releasing any
// reduction left over from an earlier block so the gain returns to unity
// without a step.
func (l *CeilingLimiter) Process(channels [][]float32) {
	if len(channels) == 0 {
		return
	}
	numSamples := len(channels[0])

	target := float64(1)
	if l.Active() {
		peak := blockPeak(channels)
		if peak > l.ceilingLin && peak > minPeak {
			target = float64(l.ceilingLin / peak)
		}
	}

	if target == 1 && l.smoother.Value() >= 1 {
		return
	}

	for i := 0; i < numSamples; i++ {
		g := float32(math.Min(1, l.smoother.Step(target)))
		for _, ch := range channels {
			if i < len(ch) {
				ch[i] *= g
			}
		}
	}
}

// Gain returns the current linear reduction factor (1 = no reduction).
func (l *CeilingLimiter) Gain() float32 {
	return float32(math.Min(1, l.smoother.Value()))
}

// GainReduction returns the current reduction in dB as a non-positive value.
func (l *CeilingLimiter) GainReduction() float64 {
	return gain.LinearToDb(float64(l.Gain()))
}

// Reset returns the limiter to unity gain.
func (l *CeilingLimiter) Reset() {
	l.smoother.Reset()
}

func blockPeak(channels [][]float32) float32 {
	var peak float32
	for _, ch := range channels {
		for _, s := range ch {
			if s < 0 {
				s = -s
			}
			if s > peak {
				peak = s
			}
		}
	}
	return peak
}
