package analysis

import (
	"math"
)

const (
	// BandFFTSize is the transform length used for band analysis.
	BandFFTSize = 512
	// SpectrumBins is the number of magnitude bins produced per transform.
	SpectrumBins = BandFFTSize/2 + 1

	// LowBandMax is the upper edge of the low band in Hz.
	LowBandMax = 300.0
	// MidBandMax is the upper edge of the mid band in Hz.
	MidBandMax = 4000.0

	// SpectrumFloorDB is the lowest value reported in the dB spectrum.
	SpectrumFloorDB = -100.0

	bandEpsilon = 1e-10
)

// Bands holds normalized band energies. Low+Mid+High is 1 whenever there
// was any signal.
type Bands struct {
	Low  float64
	Mid  float64
	High float64
}

// BandAnalyzer accumulates channel samples across blocks until it has a
// full transform, then splits the magnitude spectrum into three bands.
type BandAnalyzer struct {
	sampleRate float64
	fft        *FFT

	input    []float32
	inputPos int

	lowEndBin int
	midEndBin int

	bands    Bands
	spectrum []float64
	frames   int
}

// NewBandAnalyzer creates an analyzer with a Hann window.
func NewBandAnalyzer(sampleRate float64) *BandAnalyzer {
	ba := &BandAnalyzer{
		fft:      NewFFT(BandFFTSize, HannWindow),
		input:    make([]float32, BandFFTSize),
		spectrum: make([]float64, SpectrumBins),
	}
	for i := range ba.spectrum {
		ba.spectrum[i] = SpectrumFloorDB
	}
	ba.SetSampleRate(sampleRate)
	return ba
}

// SetSampleRate recomputes the band edges.
func (ba *BandAnalyzer) SetSampleRate(sampleRate float64) {
	ba.sampleRate = sampleRate
	if sampleRate <= 0 {
		return
	}
	freqPerBin := sampleRate / float64(BandFFTSize)
	ba.lowEndBin = int(LowBandMax / freqPerBin)
	ba.midEndBin = int(MidBandMax / freqPerBin)
}

// Process feeds one channel of a block. It returns true when at least one
// transform completed during this call.
func (ba *BandAnalyzer) Process(samples []float32) bool {
	updated := false
	for len(samples) > 0 {
		n := copy(ba.input[ba.inputPos:], samples)
		ba.inputPos += n
		samples = samples[n:]

		if ba.inputPos == BandFFTSize {
			ba.inputPos = 0
			ba.analyze()
			updated = true
		}
	}
	return updated
}

func (ba *BandAnalyzer) analyze() {
	mag := ba.fft.Magnitude(ba.input)
	nyquistBin := BandFFTSize / 2

	// Bin 0 (DC) belongs to no band.
	var low, mid, high float64
	for bin := 1; bin < nyquistBin; bin++ {
		switch {
		case bin <= ba.lowEndBin:
			low += mag[bin]
		case bin <= ba.midEndBin:
			mid += mag[bin]
		default:
			high += mag[bin]
		}
	}

	total := low + mid + high + bandEpsilon
	ba.bands = Bands{
		Low:  low / total,
		Mid:  mid / total,
		High: high / total,
	}

	for i, m := range mag {
		db := SpectrumFloorDB
		if v := m / BandFFTSize; v > 0 {
			db = 20.0 * math.Log10(v)
		}
		ba.spectrum[i] = math.Max(SpectrumFloorDB, math.Min(0, db))
	}
	ba.frames++
}

// Bands returns the energies of the last completed transform.
func (ba *BandAnalyzer) Bands() Bands {
	return ba.bands
}

// Spectrum returns the dB magnitude of the last completed transform,
// clamped to [SpectrumFloorDB, 0]. The slice is reused.
func (ba *BandAnalyzer) Spectrum() []float64 {
	return ba.spectrum
}

// Frames returns how many transforms have completed.
func (ba *BandAnalyzer) Frames() int {
	return ba.frames
}

// BinFrequency returns the center frequency of a spectrum bin.
func (ba *BandAnalyzer) BinFrequency(bin int) float64 {
	return ba.fft.BinFrequency(bin, ba.sampleRate)
}

// Reset clears the accumulated input and results.
func (ba *BandAnalyzer) Reset() {
	for i := range ba.input {
		ba.input[i] = 0
	}
	ba.inputPos = 0
	ba.bands = Bands{}
	for i := range ba.spectrum {
		ba.spectrum[i] = SpectrumFloorDB
	}
	ba.frames = 0
}
