package gainstage

import (
	"encoding/json"
	"io"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"github.com/justyntemme/gainlink/pkg/dsp/analysis"
	"github.com/justyntemme/gainlink/pkg/dsp/gain"
	"github.com/justyntemme/gainlink/pkg/framework/broadcast"
	"github.com/justyntemme/gainlink/pkg/framework/logging"
	"github.com/justyntemme/gainlink/pkg/framework/metrics"
	"github.com/justyntemme/gainlink/pkg/framework/param"
	"github.com/justyntemme/gainlink/pkg/framework/plugin"
	"github.com/justyntemme/gainlink/pkg/framework/process"
	"github.com/justyntemme/gainlink/pkg/framework/state"
	"github.com/justyntemme/gainlink/pkg/shared"
)

// CoordinatorInfo describes the coordinator processor.
var CoordinatorInfo = plugin.Info{
	ID:       "com.gainlink.coordinator",
	Name:     "Gainlink Coordinator",
	Version:  "1.0.0",
	Vendor:   "Gainlink",
	Category: "Fx|Dynamics",
}

// Coordinator is the master-bus processor. It owns the registry's global
// state, broadcasts its settings to every live participant and exposes the
// participants to its user interface.
type Coordinator struct {
	*plugin.BaseProcessor

	reg         *shared.Registry
	broadcaster *broadcast.Broadcaster
	engine      *Engine
	state       *state.Manager

	log          logr.Logger
	freshness    time.Duration
	activeWindow time.Duration

	opened    atomic.Bool
	theme     atomic.Int32
	knobStyle atomic.Int32
}

// NewCoordinator creates a coordinator. The registry is opened by
// Initialize.
func NewCoordinator(reg *shared.Registry, opts ...Option) *Coordinator {
	o := applyOptions(opts)

	c := &Coordinator{
		BaseProcessor: plugin.NewBaseProcessor(CoordinatorInfo),
		reg:           reg,
		engine:        NewEngine(44100),
		log:           o.log.WithName("coordinator"),
		freshness:     o.freshness,
		activeWindow:  o.activeWindow,
	}
	c.broadcaster = broadcast.New(reg,
		broadcast.WithClock(o.clock),
		broadcast.WithLogger(c.log),
		broadcast.WithInterval(o.broadcastInterval),
		broadcast.WithLiveWindow(o.liveWindow),
	)
	_ = c.Parameters().Add(coordinatorParameters()...)

	c.state = state.NewManager(c.Parameters())
	c.state.SetCustom(c.saveCosmetic, c.loadCosmetic)

	c.OnInitialize(func(sampleRate float64, _ int32) error {
		c.engine.Prepare(sampleRate)
		c.open()
		return nil
	})
	c.OnReset(c.engine.Reset)
	return c
}

// open maps the registry the first time Initialize runs. Slots left over
// from a previous session are cleared; their owners reconnect on their
// next keepalive.
func (c *Coordinator) open() {
	if c.opened.Load() {
		return
	}
	if err := c.reg.OpenOrCreate(); err != nil {
		metrics.RecordOpenFailure()
		c.log.Error(err, "Shared registry unavailable, running standalone")
		return
	}
	c.reg.ClearAll()
	c.reg.MarkCoordinatorStart()
	c.reg.SetCosmetic(int(c.theme.Load()), int(c.knobStyle.Load()))
	c.broadcaster.Invalidate()
	c.opened.Store(true)
	c.log.V(logging.DEFAULT).Info("Coordinator registered")
}

// Standalone reports whether the coordinator runs without a registry.
func (c *Coordinator) Standalone() bool {
	return !c.reg.Available()
}

// ProcessAudio implements plugin.Processor.
func (c *Coordinator) ProcessAudio(ctx *process.Context) {
	channels := ctx.Channels()
	params := c.Parameters()

	s := manualSettings(params)
	if !params.Bool(ParamRiderEnabled) {
		s.RiderAmount = 0
	}
	s.LoudnessEnabled = params.Bool(ParamLoudnessEnabled)
	s.LoudnessTargetLUFS = params.Plain(ParamLoudnessTarget)

	res := c.engine.Process(channels, s)
	c.broadcaster.Update(c.global(params), c.levels(res))
}

func (c *Coordinator) global(params *param.Registry) shared.Global {
	return shared.Global{
		TargetDB:         float32(params.Plain(ParamTarget)),
		GainDB:           float32(params.Plain(ParamGain)),
		CeilingDB:        float32(params.Plain(ParamCeiling)),
		LoudnessTargetDB: float32(params.Plain(ParamLoudnessTarget)),
		RiderAmount:      float32(params.Plain(ParamRiderAmount)),
		AutoEnabled:      params.Bool(ParamAutoEnabled),
		RiderEnabled:     params.Bool(ParamRiderEnabled),
		LoudnessEnabled:  params.Bool(ParamLoudnessEnabled),
		Genre:            params.Get(ParamGenre).Index(),
		Source:           params.Get(ParamSource).Index(),
		Situation:        params.Get(ParamSituation).Index(),
	}
}

func (c *Coordinator) levels(res Result) shared.CoordinatorLevels {
	snap := c.engine.Pipeline().Snapshot()
	return shared.CoordinatorLevels{
		RMSDB:          float32(res.Output.RMSDB),
		PeakDB:         float32(res.Output.PeakDB),
		CrestDB:        float32(res.Output.CrestDB),
		Correlation:    float32(res.Output.Correlation),
		ShortTermLUFS:  float32(snap.OutputLoudness.ShortTerm),
		IntegratedLUFS: float32(snap.OutputLoudness.Integrated),
		Width:          float32(snap.Width),
	}
}

// ActiveParticipantCount counts participants refreshed within the active
// window.
func (c *Coordinator) ActiveParticipantCount() int {
	return c.reg.ActiveCount(c.activeWindow)
}

// Participant returns slot i. Inactive and stale slots read as inactive.
func (c *Coordinator) Participant(i int) (shared.SlotSnapshot, error) {
	return c.reg.ReadSlot(i)
}

// Participants returns every participant refreshed within the active
// window, in slot order.
func (c *Coordinator) Participants() []shared.SlotSnapshot {
	return c.reg.Live(c.activeWindow)
}

// Metering returns the coordinator's own analysis.
func (c *Coordinator) Metering() analysis.Snapshot {
	return c.engine.Pipeline().Snapshot()
}

// Spectrum copies the coordinator's output spectrum into dst.
func (c *Coordinator) Spectrum(dst []float64) []float64 {
	return c.engine.Pipeline().Spectrum(dst)
}

// ResetPeakHold clears the true-peak hold and clip counter.
func (c *Coordinator) ResetPeakHold() {
	c.engine.Pipeline().ResetPeakHold()
}

// Engine returns the coordinator's gain engine.
func (c *Coordinator) Engine() *Engine {
	return c.engine
}

// SetParticipantControl pins slot i to ctl until ReleaseParticipantControl.
func (c *Coordinator) SetParticipantControl(i int, ctl shared.Control) error {
	ctl.GainDB = float32(gain.ClampDb(float64(ctl.GainDB), AutoMinDB, AutoMaxDB))
	if err := c.reg.WriteControl(i, ctl); err != nil {
		return err
	}
	c.log.V(logging.VERBOSE).Info("Participant pinned", "slot", i)
	return nil
}

// ReleaseParticipantControl hands slot i back to broadcast control.
func (c *Coordinator) ReleaseParticipantControl(i int) error {
	if err := c.reg.ReleaseControl(i); err != nil {
		return err
	}
	c.log.V(logging.VERBOSE).Info("Participant released", "slot", i)
	return nil
}

// setAll writes fields of ctl into every active participant that is not
// pinned and returns how many it reached.
func (c *Coordinator) setAll(ctl shared.Control, fields shared.ControlField) int {
	n := c.reg.Broadcast(ctl, fields, c.activeWindow)
	c.log.V(logging.VERBOSE).Info("Pushed to all participants", "fields", fields, "participants", n)
	return n
}

// SetAllGain sets the manual gain of every active participant.
func (c *Coordinator) SetAllGain(db float64) int {
	db = gain.ClampDb(db, AutoMinDB, AutoMaxDB)
	return c.setAll(shared.Control{GainDB: float32(db)}, shared.FieldGain)
}

// SetAllCeiling sets the ceiling of every active participant.
func (c *Coordinator) SetAllCeiling(db float64) int {
	return c.setAll(shared.Control{CeilingDB: float32(db)}, shared.FieldCeiling)
}

// SetAllTarget sets the coordinator's target and pushes it to every active
// participant. Later broadcasts carry the same target.
func (c *Coordinator) SetAllTarget(db float64) int {
	c.Parameters().SetPlainNotifying(ParamTarget, db)
	return c.setAll(shared.Control{TargetDB: float32(c.Parameters().Plain(ParamTarget))}, shared.FieldTarget)
}

// SetAllAuto switches auto gain on every active participant.
func (c *Coordinator) SetAllAuto(on bool) int {
	c.Parameters().SetBoolNotifying(ParamAutoEnabled, on)
	return c.setAll(shared.Control{AutoEnabled: on}, shared.FieldAuto)
}

// SetAllRider sets the rider amount, in percent, of every active
// participant. Zero switches the rider off.
func (c *Coordinator) SetAllRider(amount float64) int {
	params := c.Parameters()
	params.SetBoolNotifying(ParamRiderEnabled, amount > 0)
	if amount > 0 {
		params.SetPlainNotifying(ParamRiderAmount, amount)
		amount = params.Plain(ParamRiderAmount)
	}
	return c.setAll(shared.Control{RiderAmount: float32(amount)}, shared.FieldRider)
}

// AutoGainAll gives every active participant the static gain that brings
// its measured input level to target, and switches its auto gain on.
func (c *Coordinator) AutoGainAll(target float64) int {
	c.Parameters().SetPlainNotifying(ParamTarget, target)
	target = c.Parameters().Plain(ParamTarget)

	n := 0
	for _, s := range c.Participants() {
		needed := gain.ClampDb(target-float64(s.Metering.RMSDB), AutoMinDB, AutoMaxDB)
		ok, err := c.reg.BroadcastSlot(s.Index, shared.Control{
			GainDB:      float32(needed),
			TargetDB:    float32(target),
			AutoEnabled: true,
		}, shared.FieldGain|shared.FieldTarget|shared.FieldAuto)
		if err == nil && ok {
			n++
		}
	}
	c.log.V(logging.VERBOSE).Info("Auto gain applied to all participants", "target", target, "participants", n)
	return n
}

// SuggestTarget sets the target to the suggestion for the coordinator's
// source, genre and situation, and returns it.
func (c *Coordinator) SuggestTarget() float64 {
	params := c.Parameters()
	target := SuggestTarget(
		SourceType(params.Get(ParamSource).Index()),
		Genre(params.Get(ParamGenre).Index()),
		Situation(params.Get(ParamSituation).Index()),
	)
	params.SetPlainNotifying(ParamTarget, target)
	return target
}

// SetTheme shares the interface theme with every instance.
func (c *Coordinator) SetTheme(theme int) {
	c.theme.Store(int32(theme))
	c.reg.SetCosmetic(theme, int(c.knobStyle.Load()))
}

// SetKnobStyle shares the knob style with every instance.
func (c *Coordinator) SetKnobStyle(style int) {
	c.knobStyle.Store(int32(style))
	c.reg.SetCosmetic(int(c.theme.Load()), style)
}

// SaveState writes the coordinator's parameters and look for the host to
// keep with its project.
func (c *Coordinator) SaveState(w io.Writer) error {
	return c.state.Save(w)
}

// LoadState restores state written by SaveState. Restored settings reach
// the participants with the next broadcast.
func (c *Coordinator) LoadState(r io.Reader) error {
	restored, err := c.state.Load(r)
	if err != nil {
		return err
	}
	c.log.V(logging.VERBOSE).Info("State restored", "parameters", len(restored))
	return nil
}

func (c *Coordinator) saveCosmetic(w io.Writer) error {
	if err := state.WriteInt32(w, c.theme.Load()); err != nil {
		return err
	}
	return state.WriteInt32(w, c.knobStyle.Load())
}

func (c *Coordinator) loadCosmetic(r io.Reader) error {
	theme, err := state.ReadInt32(r)
	if err != nil {
		return err
	}
	style, err := state.ReadInt32(r)
	if err != nil {
		return err
	}
	c.theme.Store(theme)
	c.knobStyle.Store(style)
	c.reg.SetCosmetic(int(theme), int(style))
	return nil
}

// Context returns the session as seen from the registry.
func (c *Coordinator) Context() Context {
	return BuildContext(c.reg, c.activeWindow, c.freshness)
}

// ContextJSON returns Context as JSON.
func (c *Coordinator) ContextJSON() ([]byte, error) {
	return json.Marshal(c.Context())
}

// Summary describes every active participant, one per line.
func (c *Coordinator) Summary() string {
	return Summarize(c.Context().Participants)
}
