// Package signal generates stereo test material for driving gain staging
// without a host: tones, pink noise and a slow level drift, scaled to a
// target RMS level.
package signal

import (
	"math"
	"math/rand"

	"github.com/justyntemme/gainlink/pkg/dsp/gain"
)

// Kind selects the basic material.
type Kind int

const (
	// Tone is a sine, identical on both channels.
	Tone Kind = iota
	// Noise is pink noise, independent per channel.
	Noise
	// Pulse is a decaying sine burst repeating at Rate, like a kick drum.
	Pulse
)

// Config describes a generator.
type Config struct {
	Kind Kind
	// LevelDB is the long-term RMS level in dBFS.
	LevelDB float64
	// Frequency of the tone or burst, in Hz.
	Frequency float64
	// Rate is the burst repetition rate for Pulse, in Hz.
	Rate float64
	// DriftDB is the depth of a slow sinusoidal level change.
	DriftDB float64
	// DriftRate is the drift frequency in Hz.
	DriftRate float64
	// Width blends the right channel from the left (0) to independent (1).
	// Only Noise has independent channels to blend in.
	Width float64
	Seed  int64
}

// pulseDecay is the burst envelope time constant in seconds.
const pulseDecay = 0.05

// Generator renders a Config block by block.
type Generator struct {
	cfg        Config
	sampleRate float64

	phase, phaseInc float64 // tone, 0..1
	drift, driftInc float64 // drift LFO, 0..1
	burst, burstInc float64 // pulse position within its period, 0..1
	env, decay      float64

	pinkL, pinkR pink
	rand         *rand.Rand
	scale        float64
}

// New creates a generator for sampleRate.
func New(sampleRate float64, cfg Config) *Generator {
	if cfg.Frequency <= 0 {
		cfg.Frequency = 1000
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 2
	}
	g := &Generator{
		cfg:        cfg,
		sampleRate: sampleRate,
		phaseInc:   cfg.Frequency / sampleRate,
		driftInc:   cfg.DriftRate / sampleRate,
		burstInc:   cfg.Rate / sampleRate,
		env:        1,
		decay:      math.Exp(-1 / (sampleRate * pulseDecay)),
		rand:       rand.New(rand.NewSource(cfg.Seed)),
	}
	g.pinkL.init(g.rand)
	g.pinkR.init(g.rand)
	g.scale = gain.DbToLinear(cfg.LevelDB) / g.unitRMS()
	return g
}

// unitRMS is the RMS of the material before scaling.
func (g *Generator) unitRMS() float64 {
	switch g.cfg.Kind {
	case Noise:
		return 1
	case Pulse:
		// Mean of sin² · e^(-2t/τ) over one period.
		tau := pulseDecay
		period := 1 / g.cfg.Rate
		energy := 0.5 * (tau / 2) * (1 - math.Exp(-2*period/tau))
		return math.Sqrt(energy / period)
	default:
		return 1 / math.Sqrt2
	}
}

// Config returns the generator's configuration.
func (g *Generator) Config() Config {
	return g.cfg
}

// Process fills left and right. They must have the same length.
func (g *Generator) Process(left, right []float32) {
	for i := range left {
		level := g.scale
		if g.cfg.DriftDB != 0 {
			level *= gain.DbToLinear(g.cfg.DriftDB * math.Sin(2*math.Pi*g.drift))
			g.drift = wrap(g.drift + g.driftInc)
		}

		var l, r float64
		switch g.cfg.Kind {
		case Noise:
			l = g.pinkL.next(g.rand)
			r = g.pinkR.next(g.rand)
			r = l + g.cfg.Width*(r-l)
		case Pulse:
			l = math.Sin(2*math.Pi*g.phase) * g.env
			r = l
			g.phase = wrap(g.phase + g.phaseInc)
			g.env *= g.decay
			g.burst += g.burstInc
			if g.burst >= 1 {
				g.burst -= 1
				g.phase = 0
				g.env = 1
			}
		default:
			l = math.Sin(2 * math.Pi * g.phase)
			r = l
			g.phase = wrap(g.phase + g.phaseInc)
		}
		left[i] = float32(l * level)
		right[i] = float32(r * level)
	}
}

func wrap(p float64) float64 {
	if p >= 1 {
		return p - math.Floor(p)
	}
	return p
}

// pinkNorm scales the sum of 17 uniform values on [-1, 1] to unit RMS.
var pinkNorm = math.Sqrt(3.0 / 17.0)

// pink is a Voss-McCartney pink noise source.
type pink struct {
	rows  [16]float64
	sum   float64
	index int
}

func (p *pink) init(r *rand.Rand) {
	p.sum = 0
	for i := range p.rows {
		p.rows[i] = white(r)
		p.sum += p.rows[i]
	}
}

func (p *pink) next(r *rand.Rand) float64 {
	p.index = (p.index + 1) & 0xffff
	if p.index != 0 {
		row := 0
		for n := p.index; n&1 == 0; n >>= 1 {
			row++
		}
		p.sum -= p.rows[row]
		p.rows[row] = white(r)
		p.sum += p.rows[row]
	}
	return (p.sum + white(r)) * pinkNorm
}

func white(r *rand.Rand) float64 {
	return r.Float64()*2 - 1
}
