package gainstage

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/justyntemme/gainlink/pkg/framework/connection"
	"github.com/justyntemme/gainlink/pkg/framework/control"
	"github.com/justyntemme/gainlink/pkg/framework/logging"
	"github.com/justyntemme/gainlink/pkg/framework/plugin"
	"github.com/justyntemme/gainlink/pkg/framework/process"
	"github.com/justyntemme/gainlink/pkg/framework/state"
	"github.com/justyntemme/gainlink/pkg/shared"
)

// ParticipantInfo describes the participant processor.
var ParticipantInfo = plugin.Info{
	ID:       "com.gainlink.participant",
	Name:     "Gainlink Participant",
	Version:  "1.0.0",
	Vendor:   "Gainlink",
	Category: "Fx|Dynamics",
}

// Participant is the per-track processor. It registers itself in the shared
// registry, publishes its metering and follows whatever control source
// wins arbitration.
type Participant struct {
	*plugin.BaseProcessor

	reg     *shared.Registry
	conn    *connection.Connection
	arbiter *control.Arbiter
	engine  *Engine
	state   *state.Manager

	clock     clock.PassiveClock
	log       logr.Logger
	freshness time.Duration

	localOverride atomic.Bool
}

// NewParticipant creates a participant and tries to join reg. A registry
// that cannot be opened leaves the participant standalone until a later
// Initialize or keepalive tick maps it.
func NewParticipant(reg *shared.Registry, opts ...Option) *Participant {
	o := applyOptions(opts)

	p := &Participant{
		BaseProcessor: plugin.NewBaseProcessor(ParticipantInfo),
		reg:           reg,
		engine:        NewEngine(44100),
		clock:         o.clock,
		log:           o.log.WithName("participant"),
		freshness:     o.freshness,
	}
	params := p.Parameters()
	_ = params.Add(participantParameters()...)
	params.SetPlain(ParamSource, float64(o.source))

	p.arbiter = control.NewArbiter(params, controlMapping, p.log)

	p.state = state.NewManager(params)
	p.state.SetValuesFunc(p.savedValues)
	p.state.SetCustom(
		func(w io.Writer) error { return state.WriteString(w, p.Label()) },
		func(r io.Reader) error {
			label, err := state.ReadString(r)
			if err != nil {
				return err
			}
			p.SetLabel(label)
			return nil
		},
	)

	connOpts := []connection.Option{
		connection.WithClock(o.clock),
		connection.WithLogger(p.log),
		connection.WithInterval(o.keepaliveInterval),
		connection.WithLabel(o.label),
		connection.WithSourceType(int(o.source)),
		connection.WithSeed(p.seed),
	}
	if o.identity != 0 {
		connOpts = append(connOpts, connection.WithIdentity(o.identity))
	}
	p.conn = connection.New(reg, connOpts...)

	p.OnInitialize(func(sampleRate float64, _ int32) error {
		p.engine.Prepare(sampleRate)
		p.join()
		return nil
	})
	p.OnReset(p.engine.Reset)

	p.join()
	return p
}

func (p *Participant) join() {
	if !p.reg.Available() {
		if err := p.reg.OpenOrCreate(); err != nil {
			p.log.Error(err, "Shared registry unavailable, running standalone")
			return
		}
	}
	if err := p.conn.Connect(); err != nil {
		p.log.V(logging.DEFAULT).Info("Not registered yet, will retry", "err", err.Error())
	}
}

// seed supplies the values a freshly claimed slot starts from.
func (p *Participant) seed() shared.Control {
	return control.ControlFromManual(p.arbiter.Manual())
}

// Run keeps the slot alive until ctx is cancelled, independent of whether
// the host is calling ProcessAudio.
func (p *Participant) Run(ctx context.Context) {
	p.conn.Run(ctx)
}

// ProcessAudio implements plugin.Processor.
func (p *Participant) ProcessAudio(ctx *process.Context) {
	channels := ctx.Channels()

	p.arbitrate()

	res := p.engine.Process(channels, manualSettings(p.Parameters()))

	p.conn.Refresh(shared.Metering{
		RMSDB:        float32(res.Input.RMSDB),
		PeakDB:       float32(res.Input.PeakDB),
		CrestDB:      float32(res.Input.CrestDB),
		Correlation:  float32(res.Input.Correlation),
		AppliedGain:  float32(p.engine.AppliedGain()),
		OutputRMSDB:  float32(res.Output.RMSDB),
		OutputPeakDB: float32(res.Output.PeakDB),
	})
}

// arbitrate resolves the control source for this block and pushes adopted
// values into the parameter store.
func (p *Participant) arbitrate() {
	in := control.Inputs{
		LocalOverride: p.localOverride.Load(),
		Now:           p.clock.Now(),
		Freshness:     p.freshness,
	}
	if slot := p.conn.Slot(); slot >= 0 {
		if c, err := p.reg.ReadControl(slot); err == nil {
			in.Connected = true
			in.Control = c
		}
	}
	p.arbiter.Apply(control.Resolve(in))
}

// SetLocalOverride pins the participant to its own values. While set,
// broadcasts and per-instance overrides are ignored.
func (p *Participant) SetLocalOverride(on bool) {
	if p.localOverride.Swap(on) != on {
		p.log.V(logging.DEFAULT).Info("Local override changed", "enabled", on)
	}
}

// LocalOverride reports whether the participant is pinned to its own values.
func (p *Participant) LocalOverride() bool {
	return p.localOverride.Load()
}

// EnableCoordinatorControl clears the local override so the coordinator
// takes over again.
func (p *Participant) EnableCoordinatorControl() {
	p.SetLocalOverride(false)
}

// SetParameter is a manual edit from the user interface. The value becomes
// the participant's manual value, which it returns to once shared control
// lapses.
func (p *Participant) SetParameter(id uint32, plain float64) {
	params := p.Parameters()
	params.SetPlain(id, plain)
	p.arbiter.Remember(id, params.Plain(id))
	if id == ParamSource {
		p.conn.SetSourceType(params.Get(ParamSource).Index())
		return
	}
	if !p.arbiter.Source().Adopted() {
		p.conn.Reseed()
	}
}

// SetLabel renames the participant's track.
func (p *Participant) SetLabel(label string) {
	p.conn.SetLabel(label)
}

// Label returns the track name.
func (p *Participant) Label() string {
	return p.conn.Label()
}

// ControlSource returns the source that won the last arbitration.
func (p *Participant) ControlSource() control.Source {
	return p.arbiter.Source()
}

// ControlledByCoordinator reports whether adopted values are in force.
func (p *Participant) ControlledByCoordinator() bool {
	return p.arbiter.Source().Adopted()
}

// Slot returns the owned slot index, or -1.
func (p *Participant) Slot() int {
	return p.conn.Slot()
}

// Connected reports whether the participant owns a slot.
func (p *Participant) Connected() bool {
	return p.conn.Connected()
}

// Identity returns the participant's registry identity.
func (p *Participant) Identity() uint64 {
	return p.conn.Identity()
}

// Engine returns the participant's gain engine.
func (p *Participant) Engine() *Engine {
	return p.engine
}

// Theme returns the coordinator's theme index, shared so that every
// instance looks the same.
func (p *Participant) Theme() (theme, knobStyle int) {
	g := p.reg.Global()
	return g.Theme, g.KnobStyle
}

// SaveState writes the participant's state for the host to keep with its
// project. The user's own values are saved, not adopted ones.
func (p *Participant) SaveState(w io.Writer) error {
	return p.state.Save(w)
}

// LoadState restores state written by SaveState.
func (p *Participant) LoadState(r io.Reader) error {
	restored, err := p.state.Load(r)
	if err != nil {
		return err
	}
	for id, plain := range restored {
		p.arbiter.Remember(id, plain)
	}
	p.conn.SetSourceType(p.Parameters().Get(ParamSource).Index())
	if !p.arbiter.Source().Adopted() {
		p.conn.Reseed()
	}
	p.log.V(logging.VERBOSE).Info("State restored", "label", p.Label(), "parameters", len(restored))
	return nil
}

func (p *Participant) savedValues() map[uint32]float64 {
	v := p.Parameters().Values()
	m := p.arbiter.Manual()
	v[ParamGain] = m.GainDB
	v[ParamTarget] = m.TargetDB
	v[ParamCeiling] = m.CeilingDB
	v[ParamRiderAmount] = m.RiderAmount
	v[ParamAutoEnabled] = 0
	if m.Auto {
		v[ParamAutoEnabled] = 1
	}
	return v
}

// Close leaves the registry.
func (p *Participant) Close() error {
	p.conn.Disconnect()
	return nil
}
