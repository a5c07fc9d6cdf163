package analysis

import (
	"math"

	"github.com/justyntemme/gainlink/pkg/dsp/gain"
)

const (
	// MaxWidth is the widest stereo width reported, in percent.
	MaxWidth = 200.0
)

// Correlate returns the normalized cross-correlation of two channels,
// sum(L*R) / sqrt(sum(L^2) * sum(R^2)), clamped to [-1, 1]. Silent input
// reports NeutralCorrelation.
func Correlate(left, right []float32) float64 {
	n := len(left)
	if len(right) < n {
		n = len(right)
	}

	var sumLR, sumL2, sumR2 float64
	for i := 0; i < n; i++ {
		l := float64(left[i])
		r := float64(right[i])
		sumLR += l * r
		sumL2 += l * l
		sumR2 += r * r
	}

	denom := math.Sqrt(sumL2 * sumR2)
	if denom < gain.Epsilon {
		return NeutralCorrelation
	}

	correlation := sumLR / denom

	// Clamp to [-1, 1] to handle numerical errors
	if correlation > 1.0 {
		correlation = 1.0
	} else if correlation < -1.0 {
		correlation = -1.0
	}

	return correlation
}

// StereoWidth maps correlation to a width percentage: 0 for mono content,
// 100 for uncorrelated channels and up to MaxWidth for inverted ones.
func StereoWidth(correlation float64) float64 {
	width := (1.0 - correlation) * 100.0
	if width < 0 {
		return 0
	}
	if width > MaxWidth {
		return MaxWidth
	}
	return width
}

// MonoCompatibility maps correlation from [-1, 1] to a [0, 1] score.
func MonoCompatibility(correlation float64) float64 {
	return (correlation + 1.0) / 2.0
}

// PhaseStatus represents the qualitative phase relationship
type PhaseStatus int

const (
	PhaseInPhase PhaseStatus = iota
	PhaseMostlyInPhase
	PhasePartiallyCorrelated
	PhaseMostlyOutOfPhase
	PhaseOutOfPhase
)

// PhaseStatusOf classifies a correlation value.
func PhaseStatusOf(corr float64) PhaseStatus {
	switch {
	case corr > 0.9:
		return PhaseInPhase
	case corr > 0.5:
		return PhaseMostlyInPhase
	case corr > -0.5:
		return PhasePartiallyCorrelated
	case corr > -0.9:
		return PhaseMostlyOutOfPhase
	default:
		return PhaseOutOfPhase
	}
}

// PhaseWarning reports whether a correlation is low enough to flag in
// summaries.
func PhaseWarning(corr float64) bool {
	return corr < 0.3
}

// String returns a string representation of the phase status
func (ps PhaseStatus) String() string {
	switch ps {
	case PhaseInPhase:
		return "In Phase"
	case PhaseMostlyInPhase:
		return "Mostly In Phase"
	case PhasePartiallyCorrelated:
		return "Partially Correlated"
	case PhaseMostlyOutOfPhase:
		return "Mostly Out of Phase"
	case PhaseOutOfPhase:
		return "Out of Phase"
	default:
		return "Unknown"
	}
}
