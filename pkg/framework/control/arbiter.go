package control

import (
	"math"
	"sync/atomic"

	"github.com/go-logr/logr"

	"github.com/justyntemme/gainlink/pkg/framework/logging"
	"github.com/justyntemme/gainlink/pkg/framework/metrics"
	"github.com/justyntemme/gainlink/pkg/framework/param"
	"github.com/justyntemme/gainlink/pkg/shared"
)

// Mapping names the parameter IDs a control record maps onto.
type Mapping struct {
	Gain        uint32
	Target      uint32
	Ceiling     uint32
	Auto        uint32
	RiderAmount uint32
}

// Manual is the set of values the user last chose by hand.
type Manual struct {
	GainDB      float64
	TargetDB    float64
	CeilingDB   float64
	Auto        bool
	RiderAmount float64
}

// Arbiter applies decisions to a parameter store.
//
// While a shared source is adopted the store holds the adopted values, so
// the arbiter keeps the user's own values aside and puts them back once the
// instance falls back to local control or the broadcast expires.
//
// Apply is called from the audio thread only. Source, Manual and Remember
// may be called from any thread.
type Arbiter struct {
	params *param.Registry
	ids    Mapping
	log    logr.Logger

	last   atomic.Int32
	manual manualValues
}

// manualValues holds a Manual in atomic words.
type manualValues struct {
	gain, target, ceiling, rider atomic.Uint64
	auto                         atomic.Bool
}

func (m *manualValues) load() Manual {
	return Manual{
		GainDB:      math.Float64frombits(m.gain.Load()),
		TargetDB:    math.Float64frombits(m.target.Load()),
		CeilingDB:   math.Float64frombits(m.ceiling.Load()),
		Auto:        m.auto.Load(),
		RiderAmount: math.Float64frombits(m.rider.Load()),
	}
}

func (m *manualValues) store(v Manual) {
	m.gain.Store(math.Float64bits(v.GainDB))
	m.target.Store(math.Float64bits(v.TargetDB))
	m.ceiling.Store(math.Float64bits(v.CeilingDB))
	m.auto.Store(v.Auto)
	m.rider.Store(math.Float64bits(v.RiderAmount))
}

// NewArbiter creates an arbiter writing to params.
func NewArbiter(params *param.Registry, ids Mapping, log logr.Logger) *Arbiter {
	a := &Arbiter{params: params, ids: ids, log: log}
	a.manual.store(a.read())
	return a
}

// Source returns the source applied by the last Apply.
func (a *Arbiter) Source() Source {
	return Source(a.last.Load())
}

// Manual returns the user's values. While nothing is adopted they are the
// store's current values.
func (a *Arbiter) Manual() Manual {
	if a.Source().Adopted() {
		return a.manual.load()
	}
	return a.read()
}

// Remember records a manual edit made while a shared source is adopted, so
// the edit survives the later restore.
func (a *Arbiter) Remember(id uint32, plain float64) {
	switch id {
	case a.ids.Gain:
		a.manual.gain.Store(math.Float64bits(plain))
	case a.ids.Target:
		a.manual.target.Store(math.Float64bits(plain))
	case a.ids.Ceiling:
		a.manual.ceiling.Store(math.Float64bits(plain))
	case a.ids.Auto:
		a.manual.auto.Store(plain >= 0.5)
	case a.ids.RiderAmount:
		a.manual.rider.Store(math.Float64bits(plain))
	}
}

// Apply makes the store reflect d. It reports whether any parameter value
// changed.
func (a *Arbiter) Apply(d Decision) bool {
	prev := Source(a.last.Swap(int32(d.Source)))
	if prev != d.Source {
		a.transition(prev, d.Source)
	}

	switch {
	case d.Source.Adopted():
		if !prev.Adopted() {
			a.manual.store(a.read())
		}
		return a.write(Manual{
			GainDB:      float64(d.Control.GainDB),
			TargetDB:    float64(d.Control.TargetDB),
			CeilingDB:   float64(d.Control.CeilingDB),
			Auto:        d.Control.AutoEnabled,
			RiderAmount: float64(d.Control.RiderAmount),
		})
	case prev.Adopted():
		return a.write(a.manual.load())
	default:
		return false
	}
}

func (a *Arbiter) transition(from, to Source) {
	metrics.RecordControlSource(to.String())
	a.log.V(logging.VERBOSE).Info("Control source changed", "from", from.String(), "to", to.String())
}

func (a *Arbiter) read() Manual {
	return Manual{
		GainDB:      a.params.Plain(a.ids.Gain),
		TargetDB:    a.params.Plain(a.ids.Target),
		CeilingDB:   a.params.Plain(a.ids.Ceiling),
		Auto:        a.params.Bool(a.ids.Auto),
		RiderAmount: a.params.Plain(a.ids.RiderAmount),
	}
}

func (a *Arbiter) write(v Manual) bool {
	changed := a.params.SetPlainNotifying(a.ids.Gain, v.GainDB)
	changed = a.params.SetPlainNotifying(a.ids.Target, v.TargetDB) || changed
	changed = a.params.SetPlainNotifying(a.ids.Ceiling, v.CeilingDB) || changed
	changed = a.params.SetBoolNotifying(a.ids.Auto, v.Auto) || changed
	changed = a.params.SetPlainNotifying(a.ids.RiderAmount, v.RiderAmount) || changed
	return changed
}

// ControlFromManual converts manual values to a control record payload.
func ControlFromManual(m Manual) shared.Control {
	return shared.Control{
		TargetDB:    float32(m.TargetDB),
		GainDB:      float32(m.GainDB),
		CeilingDB:   float32(m.CeilingDB),
		RiderAmount: float32(m.RiderAmount),
		AutoEnabled: m.Auto,
	}
}
