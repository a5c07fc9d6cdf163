package analysis

import (
	"math"

	"github.com/justyntemme/gainlink/pkg/dsp/gain"
)

// NeutralCorrelation is reported when there is no stereo pair to compare,
// or when both channels are silent.
const NeutralCorrelation = 1.0

// Levels is the result of measuring one block.
type Levels struct {
	RMS  float64 // linear, across all channels
	Peak float64 // linear, max absolute sample

	RMSDB   float64
	PeakDB  float64
	CrestDB float64

	// Correlation between channel 0 and 1 in [-1, 1].
	Correlation float64
}

// SilentLevels is what an empty block measures as.
var SilentLevels = Levels{
	RMSDB:       gain.MinDB,
	PeakDB:      gain.MinDB,
	Correlation: NeutralCorrelation,
}

// MeasureBlock computes RMS, peak, crest factor and correlation of a block
// in a single pass over the samples.
func MeasureBlock(channels [][]float32) Levels {
	var (
		sumSquares float64
		peak       float32
		count      int
	)

	for _, ch := range channels {
		for _, s := range ch {
			sumSquares += float64(s) * float64(s)
			if s < 0 {
				s = -s
			}
			if s > peak {
				peak = s
			}
		}
		count += len(ch)
	}

	if count == 0 {
		return SilentLevels
	}

	l := Levels{
		RMS:         math.Sqrt(sumSquares / float64(count)),
		Peak:        float64(peak),
		Correlation: NeutralCorrelation,
	}
	l.RMSDB = gain.LinearToDb(l.RMS)
	l.PeakDB = gain.LinearToDb(l.Peak)
	l.CrestDB = l.PeakDB - l.RMSDB

	if len(channels) >= 2 {
		l.Correlation = Correlate(channels[0], channels[1])
	}
	return l
}
