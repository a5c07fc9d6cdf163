// Package gainstage implements the coordinator and participant processors
// and the gain engine they share.
package gainstage

import (
	"math"
	"sync/atomic"

	"github.com/justyntemme/gainlink/pkg/dsp/analysis"
	"github.com/justyntemme/gainlink/pkg/dsp/dynamics"
	"github.com/justyntemme/gainlink/pkg/dsp/envelope"
	"github.com/justyntemme/gainlink/pkg/dsp/gain"
)

// Gain engine constants.
const (
	// AutoFloorDB is the input RMS below which auto gain sits at unity.
	AutoFloorDB = -80.0
	AutoMinDB   = -24.0
	AutoMaxDB   = 12.0
	AutoTime    = 0.300

	// RiderFloorDB is the input RMS below which the rider sits at unity.
	RiderFloorDB  = -60.0
	RiderRangeDB  = 6.0
	RiderAttack   = 0.080
	RiderRelease  = 0.300
	riderMinGain  = 0.5
	riderMaxGain  = 2.0
	riderMinShare = 0.01

	// LoudnessFloorLUFS is the loudness below which an estimate is not
	// trusted.
	LoudnessFloorLUFS = analysis.ValidLoudness
	LoudnessRangeDB   = 12.0
	LoudnessTime      = 0.100
)

// Settings are the parameter values one block is processed with.
type Settings struct {
	GainDB    float64
	TargetDB  float64
	CeilingDB float64

	AutoEnabled bool
	RiderAmount float64 // percent

	LoudnessEnabled    bool
	LoudnessTargetLUFS float64
}

// Result reports what the engine did to one block.
type Result struct {
	Input  analysis.Levels
	Output analysis.Levels

	// Linear factors of the block.
	Manual   float64
	Auto     float64
	Rider    float64
	Loudness float64
	Combined float32

	// GainReductionDB is the ceiling limiter's reduction at the end of the
	// block.
	GainReductionDB float64
}

// Engine turns an input block into an output block. Process runs on the
// audio thread and does not allocate; AppliedGain may be read from anywhere.
type Engine struct {
	sampleRate float64

	pipeline *analysis.Pipeline
	auto     *envelope.Follower
	rider    *envelope.AttackRelease
	loudness *envelope.Follower
	limiter  *dynamics.CeilingLimiter

	applied atomic.Uint64
}

// NewEngine creates an engine for sampleRate.
func NewEngine(sampleRate float64) *Engine {
	e := &Engine{
		sampleRate: sampleRate,
		pipeline:   analysis.NewPipeline(sampleRate),
		auto:       envelope.NewFollower(sampleRate, AutoTime, 1),
		rider:      envelope.NewAttackRelease(sampleRate, RiderAttack, RiderRelease, 1),
		loudness:   envelope.NewFollower(sampleRate, LoudnessTime, 1),
		limiter:    dynamics.NewCeilingLimiter(sampleRate),
	}
	e.rider.SetAttackDirection(envelope.Rising)
	e.applied.Store(math.Float64bits(1))
	return e
}

// Prepare recomputes every coefficient for sampleRate and clears all
// smoothing state. Call only while the audio thread is stopped.
func (e *Engine) Prepare(sampleRate float64) {
	e.sampleRate = sampleRate
	e.pipeline.SetSampleRate(sampleRate)
	e.auto.SetSampleRate(sampleRate)
	e.rider.SetSampleRate(sampleRate)
	e.loudness.SetSampleRate(sampleRate)
	e.limiter.SetSampleRate(sampleRate)
	e.Reset()
}

// Reset clears smoothing and metering state.
func (e *Engine) Reset() {
	e.pipeline.Reset()
	e.auto.Reset()
	e.rider.Reset()
	e.loudness.Reset()
	e.limiter.Reset()
	e.applied.Store(math.Float64bits(1))
}

// SampleRate returns the rate set by NewEngine or Prepare.
func (e *Engine) SampleRate() float64 {
	return e.sampleRate
}

// Pipeline returns the engine's metering pipeline.
func (e *Engine) Pipeline() *analysis.Pipeline {
	return e.pipeline
}

// AppliedGain returns the linear gain of the last block, limiter included.
func (e *Engine) AppliedGain() float64 {
	return math.Float64frombits(e.applied.Load())
}

// Process runs one block in place.
func (e *Engine) Process(channels [][]float32, s Settings) Result {
	n := 0
	if len(channels) > 0 {
		n = len(channels[0])
	}

	res := Result{Manual: 1, Auto: 1, Rider: 1, Loudness: 1, Combined: 1}
	res.Input = e.pipeline.MeasureInput(channels)
	if n == 0 {
		res.Output = res.Input
		return res
	}

	rms := res.Input.RMSDB
	res.Manual = gain.DbToLinear(s.GainDB)
	res.Auto = e.autoGain(s, rms, n)
	res.Rider = e.riderGain(s, rms, n)
	res.Loudness = e.loudnessGain(s)

	res.Combined = gain.Combine(
		float32(res.Manual),
		float32(res.Auto),
		float32(res.Rider),
		float32(res.Loudness),
	)
	gain.ApplyChannels(channels, res.Combined)

	e.limiter.SetCeiling(s.CeilingDB)
	e.limiter.Process(channels)
	res.GainReductionDB = e.limiter.GainReduction()

	res.Output = e.pipeline.MeasureOutput(channels)
	e.applied.Store(math.Float64bits(float64(res.Combined * e.limiter.Gain())))
	return res
}

func (e *Engine) autoGain(s Settings, rms float64, n int) float64 {
	if !s.AutoEnabled || rms <= AutoFloorDB {
		e.auto.Reset()
		return 1
	}
	correction := gain.ClampDb(s.TargetDB-rms, AutoMinDB, AutoMaxDB)
	return e.auto.StepN(gain.DbToLinear(correction), n)
}

func (e *Engine) riderGain(s Settings, rms float64, n int) float64 {
	amount := math.Max(0, math.Min(1, s.RiderAmount/100))
	if amount <= riderMinShare || rms <= RiderFloorDB {
		e.rider.Reset()
		return 1
	}
	deviation := gain.ClampDb(s.TargetDB-rms, -RiderRangeDB, RiderRangeDB)
	smoothed := e.rider.StepN(gain.DbToLinear(deviation), n)
	blended := 1 + amount*(smoothed-1)
	return math.Max(riderMinGain, math.Min(riderMaxGain, blended))
}

// loudnessGain steps once per block. An invalid estimate leaves the state
// alone and contributes unity.
func (e *Engine) loudnessGain(s Settings) float64 {
	if !s.LoudnessEnabled {
		e.loudness.Reset()
		return 1
	}
	lufs, valid := e.pipeline.InputLoudness()
	if !valid || lufs <= LoudnessFloorLUFS {
		return 1
	}
	correction := gain.ClampDb(s.LoudnessTargetLUFS-lufs, -LoudnessRangeDB, LoudnessRangeDB)
	return e.loudness.Step(gain.DbToLinear(correction))
}
