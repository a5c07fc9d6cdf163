package analysis

import (
	"math"
	"sync/atomic"

	"github.com/justyntemme/gainlink/pkg/dsp/gain"
)

// Loudness is a pair of loudness estimates in LUFS.
type Loudness struct {
	ShortTerm  float64
	Integrated float64
}

// Snapshot is a consistent-enough copy of the pipeline results. Fields are
// published one at a time, so a reader racing the audio thread may see a
// mix of two consecutive blocks.
type Snapshot struct {
	Input  Levels
	Output Levels

	Width             float64 // percent, from output correlation
	MonoCompatibility float64
	PhaseStatus       PhaseStatus

	TruePeakDB float64 // highest output peak since the last reset
	ClipCount  uint64  // output blocks that reached full scale

	InputLoudness  Loudness
	OutputLoudness Loudness

	Bands Bands
}

// HeadroomDB returns the distance between the held output peak and full
// scale.
func (s Snapshot) HeadroomDB() float64 {
	return -s.TruePeakDB
}

// Pipeline measures the signal before and after the gain chain. MeasureInput
// and MeasureOutput must be called from the audio thread only; Snapshot and
// Spectrum may be called from anywhere.
type Pipeline struct {
	sampleRate float64

	inputLoudness  *LoudnessWindow
	outputLoudness *LoudnessWindow
	bands          *BandAnalyzer

	truePeak float64
	clips    uint64

	pub published
}

type published struct {
	input  atomicLevels
	output atomicLevels

	width      atomicFloat
	truePeak   atomicFloat
	clipCount  atomic.Uint64
	inShort    atomicFloat
	inInteg    atomicFloat
	outShort   atomicFloat
	outInteg   atomicFloat
	bandLow    atomicFloat
	bandMid    atomicFloat
	bandHigh   atomicFloat
	spectrum   [SpectrumBins]atomicFloat
	resetPeaks atomic.Bool
}

type atomicLevels struct {
	rms, peak, rmsDB, peakDB, crestDB, corr atomicFloat
}

func (a *atomicLevels) store(l Levels) {
	a.rms.Store(l.RMS)
	a.peak.Store(l.Peak)
	a.rmsDB.Store(l.RMSDB)
	a.peakDB.Store(l.PeakDB)
	a.crestDB.Store(l.CrestDB)
	a.corr.Store(l.Correlation)
}

func (a *atomicLevels) load() Levels {
	return Levels{
		RMS:         a.rms.Load(),
		Peak:        a.peak.Load(),
		RMSDB:       a.rmsDB.Load(),
		PeakDB:      a.peakDB.Load(),
		CrestDB:     a.crestDB.Load(),
		Correlation: a.corr.Load(),
	}
}

type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) Load() float64   { return math.Float64frombits(f.bits.Load()) }
func (f *atomicFloat) Store(v float64) { f.bits.Store(math.Float64bits(v)) }

// NewPipeline creates a pipeline for the sample rate.
func NewPipeline(sampleRate float64) *Pipeline {
	p := &Pipeline{
		inputLoudness:  NewLoudnessWindow(sampleRate),
		outputLoudness: NewLoudnessWindow(sampleRate),
		bands:          NewBandAnalyzer(sampleRate),
	}
	p.sampleRate = sampleRate
	p.Reset()
	return p
}

// SetSampleRate resizes the loudness windows and band edges.
func (p *Pipeline) SetSampleRate(sampleRate float64) {
	p.sampleRate = sampleRate
	p.inputLoudness.SetSampleRate(sampleRate)
	p.outputLoudness.SetSampleRate(sampleRate)
	p.bands.SetSampleRate(sampleRate)
}

// MeasureInput measures the block before any gain is applied.
func (p *Pipeline) MeasureInput(channels [][]float32) Levels {
	l := MeasureBlock(channels)
	p.pub.input.store(l)

	if p.inputLoudness.Process(channels) {
		p.pub.inShort.Store(p.inputLoudness.ShortTerm())
		p.pub.inInteg.Store(p.inputLoudness.Integrated())
	}
	return l
}

// InputLoudness returns the short-term loudness of the unprocessed signal.
func (p *Pipeline) InputLoudness() (lufs float64, valid bool) {
	return p.inputLoudness.ShortTerm(), p.inputLoudness.Valid()
}

// MeasureOutput measures the processed block and updates the peak hold,
// clip count, loudness and band analysis.
func (p *Pipeline) MeasureOutput(channels [][]float32) Levels {
	if p.pub.resetPeaks.CompareAndSwap(true, false) {
		p.truePeak = gain.MinDB
		p.clips = 0
	}

	l := MeasureBlock(channels)
	p.pub.output.store(l)
	p.pub.width.Store(StereoWidth(l.Correlation))

	if l.PeakDB > p.truePeak {
		p.truePeak = l.PeakDB
	}
	if l.Peak >= 1.0 {
		p.clips++
	}
	p.pub.truePeak.Store(p.truePeak)
	p.pub.clipCount.Store(p.clips)

	if p.outputLoudness.Process(channels) {
		p.pub.outShort.Store(p.outputLoudness.ShortTerm())
		p.pub.outInteg.Store(p.outputLoudness.Integrated())
	}

	if len(channels) > 0 && p.bands.Process(channels[0]) {
		b := p.bands.Bands()
		p.pub.bandLow.Store(b.Low)
		p.pub.bandMid.Store(b.Mid)
		p.pub.bandHigh.Store(b.High)
		for i, v := range p.bands.Spectrum() {
			p.pub.spectrum[i].Store(v)
		}
	}
	return l
}

// Snapshot returns the latest published results.
func (p *Pipeline) Snapshot() Snapshot {
	out := p.pub.output.load()
	return Snapshot{
		Input:             p.pub.input.load(),
		Output:            out,
		Width:             p.pub.width.Load(),
		MonoCompatibility: MonoCompatibility(out.Correlation),
		PhaseStatus:       PhaseStatusOf(out.Correlation),
		TruePeakDB:        p.pub.truePeak.Load(),
		ClipCount:         p.pub.clipCount.Load(),
		InputLoudness: Loudness{
			ShortTerm:  p.pub.inShort.Load(),
			Integrated: p.pub.inInteg.Load(),
		},
		OutputLoudness: Loudness{
			ShortTerm:  p.pub.outShort.Load(),
			Integrated: p.pub.outInteg.Load(),
		},
		Bands: Bands{
			Low:  p.pub.bandLow.Load(),
			Mid:  p.pub.bandMid.Load(),
			High: p.pub.bandHigh.Load(),
		},
	}
}

// Spectrum copies the latest dB spectrum into dst and returns it. A nil or
// short dst is replaced by a new slice.
func (p *Pipeline) Spectrum(dst []float64) []float64 {
	if len(dst) < SpectrumBins {
		dst = make([]float64, SpectrumBins)
	}
	for i := range p.pub.spectrum {
		dst[i] = p.pub.spectrum[i].Load()
	}
	return dst[:SpectrumBins]
}

// ResetPeakHold asks the audio thread to clear the peak hold and clip
// count on its next block.
func (p *Pipeline) ResetPeakHold() {
	p.pub.resetPeaks.Store(true)
}

// Reset clears all state. Call only while the audio thread is stopped.
func (p *Pipeline) Reset() {
	p.inputLoudness.Reset()
	p.outputLoudness.Reset()
	p.bands.Reset()
	p.truePeak = gain.MinDB
	p.clips = 0

	p.pub.input.store(SilentLevels)
	p.pub.output.store(SilentLevels)
	p.pub.width.Store(StereoWidth(NeutralCorrelation))
	p.pub.truePeak.Store(gain.MinDB)
	p.pub.clipCount.Store(0)
	p.pub.inShort.Store(LoudnessFloor)
	p.pub.inInteg.Store(LoudnessFloor)
	p.pub.outShort.Store(LoudnessFloor)
	p.pub.outInteg.Store(LoudnessFloor)
	p.pub.bandLow.Store(0)
	p.pub.bandMid.Store(0)
	p.pub.bandHigh.Store(0)
	for i := range p.pub.spectrum {
		p.pub.spectrum[i].Store(SpectrumFloorDB)
	}
	p.pub.resetPeaks.Store(false)
}
