package gainstage

import (
	"fmt"
	"strings"
	"time"

	"github.com/justyntemme/gainlink/pkg/dsp/analysis"
	"github.com/justyntemme/gainlink/pkg/dsp/gain"
	"github.com/justyntemme/gainlink/pkg/shared"
)

// ParticipantReport is a display-ready view of one live slot.
type ParticipantReport struct {
	Index      int    `json:"index" yaml:"index"`
	Name       string `json:"name" yaml:"name"`
	SourceType int    `json:"sourceType" yaml:"sourceType"`
	Source     string `json:"source" yaml:"source"`

	// Input levels, before the track's gain stage.
	RMSDB        float32 `json:"rmsDb" yaml:"rmsDb"`
	PeakDB       float32 `json:"peakDb" yaml:"peakDb"`
	CrestDB      float32 `json:"crestDb" yaml:"crestDb"`
	Correlation  float32 `json:"phaseCorrelation" yaml:"phaseCorrelation"`
	PhaseWarning bool    `json:"phaseWarning" yaml:"phaseWarning"`
	CurrentGain  float32 `json:"currentGain" yaml:"currentGain"`

	// Output levels, after the ceiling.
	OutputRMSDB  float32 `json:"outputRmsDb" yaml:"outputRmsDb"`
	OutputPeakDB float32 `json:"outputPeakDb" yaml:"outputPeakDb"`

	GainDB      float32 `json:"gainDb" yaml:"gainDb"`
	TargetDB    float32 `json:"targetDb" yaml:"targetDb"`
	CeilingDB   float32 `json:"ceilingDb" yaml:"ceilingDb"`
	AutoEnabled bool    `json:"autoEnabled" yaml:"autoEnabled"`
	RiderAmount float32 `json:"riderAmount" yaml:"riderAmount"`

	ControlledByCoordinator bool `json:"controlledByCoordinator" yaml:"controlledByCoordinator"`
	Override                bool `json:"override" yaml:"override"`

	AgeMs int64 `json:"ageMs" yaml:"ageMs"`
}

// CurrentGainDB returns the applied gain in dB.
func (r ParticipantReport) CurrentGainDB() float64 {
	return gain.LinearToDb(float64(r.CurrentGain))
}

// CoordinatorReport is a display-ready view of the global state.
type CoordinatorReport struct {
	TargetDB           float32 `json:"targetDb" yaml:"targetDb"`
	GainDB             float32 `json:"gainDb" yaml:"gainDb"`
	CeilingDB          float32 `json:"ceilingDb" yaml:"ceilingDb"`
	LoudnessTargetLUFS float32 `json:"loudnessTargetLufs" yaml:"loudnessTargetLufs"`
	RiderAmount        float32 `json:"riderAmount" yaml:"riderAmount"`
	AutoEnabled        bool    `json:"autoEnabled" yaml:"autoEnabled"`
	RiderEnabled       bool    `json:"riderEnabled" yaml:"riderEnabled"`
	LoudnessEnabled    bool    `json:"loudnessEnabled" yaml:"loudnessEnabled"`

	Genre     string `json:"genre" yaml:"genre"`
	Source    string `json:"source" yaml:"source"`
	Situation string `json:"situation" yaml:"situation"`

	RMSDB          float32 `json:"rmsDb" yaml:"rmsDb"`
	PeakDB         float32 `json:"peakDb" yaml:"peakDb"`
	ShortTermLUFS  float32 `json:"shortTermLufs" yaml:"shortTermLufs"`
	IntegratedLUFS float32 `json:"integratedLufs" yaml:"integratedLufs"`
	Width          float32 `json:"width" yaml:"width"`

	// LastBroadcastMs is how long ago the coordinator last pushed, or -1
	// if it never did.
	LastBroadcastMs int64 `json:"lastBroadcastMs" yaml:"lastBroadcastMs"`
}

// Context is everything known about a session.
type Context struct {
	Coordinator  CoordinatorReport   `json:"coordinator" yaml:"coordinator"`
	Participants []ParticipantReport `json:"participants" yaml:"participants"`
}

// TrackName returns the slot label, or a name derived from its index.
func TrackName(s shared.SlotSnapshot) string {
	if s.Label != "" {
		return s.Label
	}
	return fmt.Sprintf("Track %d", s.Index+1)
}

// NewParticipantReport converts a slot snapshot.
func NewParticipantReport(s shared.SlotSnapshot, now time.Time, freshness time.Duration) ParticipantReport {
	return ParticipantReport{
		Index:       s.Index,
		Name:        TrackName(s),
		SourceType:  s.SourceType,
		Source:      SourceType(s.SourceType).String(),
		RMSDB:       s.Metering.RMSDB,
		PeakDB:      s.Metering.PeakDB,
		CrestDB:     s.Metering.CrestDB,
		Correlation: s.Metering.Correlation,
		CurrentGain: s.Metering.AppliedGain,
		GainDB:      s.Control.GainDB,

		PhaseWarning: analysis.PhaseWarning(float64(s.Metering.Correlation)),
		OutputRMSDB:  s.Metering.OutputRMSDB,
		OutputPeakDB: s.Metering.OutputPeakDB,

		TargetDB:    s.Control.TargetDB,
		CeilingDB:   s.Control.CeilingDB,
		AutoEnabled: s.Control.AutoEnabled,
		RiderAmount: s.Control.RiderAmount,

		ControlledByCoordinator: s.Control.FreshBroadcast(now, freshness),
		Override:                s.Control.PerInstanceOverride,

		AgeMs: s.Age(now).Milliseconds(),
	}
}

// NewCoordinatorReport converts the global state.
func NewCoordinatorReport(g shared.Global, now time.Time) CoordinatorReport {
	last := int64(-1)
	if g.LastBroadcast > 0 {
		last = now.UnixMilli() - g.LastBroadcast
	}
	return CoordinatorReport{
		TargetDB:           g.TargetDB,
		GainDB:             g.GainDB,
		CeilingDB:          g.CeilingDB,
		LoudnessTargetLUFS: g.LoudnessTargetDB,
		RiderAmount:        g.RiderAmount,
		AutoEnabled:        g.AutoEnabled,
		RiderEnabled:       g.RiderEnabled,
		LoudnessEnabled:    g.LoudnessEnabled,
		Genre:              Genre(g.Genre).String(),
		Source:             SourceType(g.Source).String(),
		Situation:          Situation(g.Situation).String(),
		RMSDB:              g.Metering.RMSDB,
		PeakDB:             g.Metering.PeakDB,
		ShortTermLUFS:      g.Metering.ShortTermLUFS,
		IntegratedLUFS:     g.Metering.IntegratedLUFS,
		Width:              g.Metering.Width,
		LastBroadcastMs:    last,
	}
}

// BuildContext reads the registry into a Context. Participants refreshed
// within window are included.
func BuildContext(reg *shared.Registry, window, freshness time.Duration) Context {
	now := reg.Now()
	ctx := Context{
		Coordinator:  NewCoordinatorReport(reg.Global(), now),
		Participants: []ParticipantReport{},
	}
	for _, s := range reg.Live(window) {
		ctx.Participants = append(ctx.Participants, NewParticipantReport(s, now, freshness))
	}
	return ctx
}

// Summarize renders participants as one line each.
func Summarize(reports []ParticipantReport) string {
	if len(reports) == 0 {
		return "No participant tracks connected. Load the participant processor on individual tracks for multi-track gain staging."
	}

	var b strings.Builder
	for i, r := range reports {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s (%s): RMS %.1fdB, Peak %.1fdB, Crest %.1fdB",
			r.Name, r.Source, r.RMSDB, r.PeakDB, r.CrestDB)

		if g := r.CurrentGainDB(); g > 0.1 || g < -0.1 {
			fmt.Fprintf(&b, ", Gain %+.1fdB", g)
		}
		if r.PhaseWarning {
			b.WriteString(" [Phase issues!]")
		}
		switch {
		case r.Override:
			b.WriteString(" [Pinned]")
		case r.ControlledByCoordinator:
			b.WriteString(" [Coordinator controlled]")
		}
	}
	fmt.Fprintf(&b, "\n(Total: %d active participant tracks)", len(reports))
	return b.String()
}
