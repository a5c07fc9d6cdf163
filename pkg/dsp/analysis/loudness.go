package analysis

import (
	"math"

	"github.com/justyntemme/gainlink/pkg/dsp/gain"
)

const (
	// LoudnessWindowSeconds is the accumulation length of the short-term
	// estimate.
	LoudnessWindowSeconds = 3.0

	// LoudnessOffset is the BS.1770 channel-sum offset in LU.
	LoudnessOffset = -0.691

	// LoudnessFloor is reported until the first window completes and for
	// silent windows. Estimates at or below ValidLoudness are not usable for
	// gain decisions.
	LoudnessFloor = -120.0
	ValidLoudness = -60.0
)

// LoudnessWindow approximates short-term loudness from the mean square of
// the mono sum over a ~3 second window. There is no K-weighting and no
// gating. The estimate is refreshed each time the window fills, then the
// window restarts.
type LoudnessWindow struct {
	windowSamples int64

	sum   float64
	count int64

	lifetimeSum   float64
	lifetimeCount int64

	shortTerm  float64
	integrated float64
}

// NewLoudnessWindow creates a window sized for the sample rate.
func NewLoudnessWindow(sampleRate float64) *LoudnessWindow {
	lw := &LoudnessWindow{}
	lw.SetSampleRate(sampleRate)
	lw.Reset()
	return lw
}

// SetSampleRate resizes the window. Accumulated energy is kept.
func (lw *LoudnessWindow) SetSampleRate(sampleRate float64) {
	lw.windowSamples = int64(sampleRate * LoudnessWindowSeconds)
	if lw.windowSamples < 1 {
		lw.windowSamples = 1
	}
}

// Process accumulates a block. Stereo input is summed to mono as
// (L+R)/2; other layouts use the first channel. It returns true when the
// estimate was refreshed.
func (lw *LoudnessWindow) Process(channels [][]float32) bool {
	if len(channels) == 0 || len(channels[0]) == 0 {
		return false
	}

	var sum float64
	n := len(channels[0])
	if len(channels) >= 2 {
		left, right := channels[0], channels[1]
		if len(right) < n {
			n = len(right)
		}
		for i := 0; i < n; i++ {
			m := float64(left[i]+right[i]) * 0.5
			sum += m * m
		}
	} else {
		for _, s := range channels[0] {
			sum += float64(s) * float64(s)
		}
	}

	lw.sum += sum
	lw.count += int64(n)

	if lw.count < lw.windowSamples {
		return false
	}

	lw.lifetimeSum += lw.sum
	lw.lifetimeCount += lw.count

	lw.shortTerm = meanSquareToLoudness(lw.sum / float64(lw.count))
	lw.integrated = meanSquareToLoudness(lw.lifetimeSum / float64(lw.lifetimeCount))

	lw.sum = 0
	lw.count = 0
	return true
}

// ShortTerm returns the last completed window estimate in LUFS.
func (lw *LoudnessWindow) ShortTerm() float64 {
	return lw.shortTerm
}

// Integrated returns the ungated average over every completed window.
func (lw *LoudnessWindow) Integrated() float64 {
	return lw.integrated
}

// Valid reports whether the short-term estimate can drive gain decisions.
func (lw *LoudnessWindow) Valid() bool {
	return lw.shortTerm > ValidLoudness
}

// Reset clears all accumulated energy.
func (lw *LoudnessWindow) Reset() {
	lw.sum = 0
	lw.count = 0
	lw.lifetimeSum = 0
	lw.lifetimeCount = 0
	lw.shortTerm = LoudnessFloor
	lw.integrated = LoudnessFloor
}

func meanSquareToLoudness(ms float64) float64 {
	return math.Max(LoudnessFloor, LoudnessOffset+10.0*math.Log10(math.Max(gain.Epsilon, ms)))
}
