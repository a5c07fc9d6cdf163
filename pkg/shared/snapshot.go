package shared

import (
	"time"
)

// Default control values written into a freshly claimed slot.
const (
	DefaultTargetDB  = -18.0
	DefaultGainDB    = 0.0
	DefaultCeilingDB = 0.0

	DefaultLoudnessTargetDB = -14.0
)

// Metering is a plain copy of a MeteringRecord.
type Metering struct {
	RMSDB       float32
	PeakDB      float32
	CrestDB     float32
	Correlation float32
	AppliedGain float32

	OutputRMSDB  float32
	OutputPeakDB float32
}

// Control is a plain copy of a ControlRecord.
type Control struct {
	TargetDB    float32
	GainDB      float32
	CeilingDB   float32
	RiderAmount float32
	AutoEnabled bool

	ControlledByBroadcast bool
	PerInstanceOverride   bool
	UpdateTime            int64 // unix ms
}

// DefaultControl returns the control values of an untouched slot.
func DefaultControl() Control {
	return Control{
		TargetDB:  DefaultTargetDB,
		GainDB:    DefaultGainDB,
		CeilingDB: DefaultCeilingDB,
	}
}

// FreshBroadcast reports whether the record holds a broadcast that has not
// yet expired at now.
func (c Control) FreshBroadcast(now time.Time, window time.Duration) bool {
	return c.ControlledByBroadcast && now.UnixMilli()-c.UpdateTime < window.Milliseconds()
}

// SlotSnapshot is a plain copy of one slot.
type SlotSnapshot struct {
	Index      int
	Active     bool
	Identity   uint64
	LastUpdate int64 // unix ms
	Label      string
	SourceType int
	Metering   Metering
	Control    Control
}

// Age returns how long ago the slot was last refreshed.
func (s SlotSnapshot) Age(now time.Time) time.Duration {
	return time.Duration(now.UnixMilli()-s.LastUpdate) * time.Millisecond
}

// LiveWithin reports whether the slot is active and was refreshed within
// window of now.
func (s SlotSnapshot) LiveWithin(now time.Time, window time.Duration) bool {
	return s.Active && s.Age(now) < window
}

// CoordinatorLevels is a plain copy of CoordinatorMetering.
type CoordinatorLevels struct {
	RMSDB          float32
	PeakDB         float32
	CrestDB        float32
	Correlation    float32
	ShortTermLUFS  float32
	IntegratedLUFS float32
	Width          float32
}

// Global is a plain copy of GlobalState.
type Global struct {
	TargetDB         float32
	GainDB           float32
	CeilingDB        float32
	LoudnessTargetDB float32
	RiderAmount      float32

	AutoEnabled     bool
	RiderEnabled    bool
	LoudnessEnabled bool

	Genre     int
	Source    int
	Situation int
	Theme     int
	KnobStyle int

	CoordinatorInit int64
	LastBroadcast   int64

	Metering CoordinatorLevels
}

// DefaultGlobal is what an unavailable registry reports.
func DefaultGlobal() Global {
	return Global{
		TargetDB:         DefaultTargetDB,
		GainDB:           DefaultGainDB,
		CeilingDB:        DefaultCeilingDB,
		LoudnessTargetDB: DefaultLoudnessTargetDB,
	}
}

func (m *MeteringRecord) load() Metering {
	return Metering{
		RMSDB:       m.RMSDB.Load(),
		PeakDB:      m.PeakDB.Load(),
		CrestDB:     m.CrestDB.Load(),
		Correlation: m.Correlation.Load(),
		AppliedGain: m.AppliedGain.Load(),

		OutputRMSDB:  m.OutputRMSDB.Load(),
		OutputPeakDB: m.OutputPeakDB.Load(),
	}
}

func (m *MeteringRecord) store(v Metering) {
	m.RMSDB.Store(v.RMSDB)
	m.PeakDB.Store(v.PeakDB)
	m.CrestDB.Store(v.CrestDB)
	m.Correlation.Store(v.Correlation)
	m.AppliedGain.Store(v.AppliedGain)
	m.OutputRMSDB.Store(v.OutputRMSDB)
	m.OutputPeakDB.Store(v.OutputPeakDB)
}

func (c *ControlRecord) load() Control {
	return Control{
		TargetDB:              c.TargetDB.Load(),
		GainDB:                c.GainDB.Load(),
		CeilingDB:             c.CeilingDB.Load(),
		RiderAmount:           c.RiderAmount.Load(),
		AutoEnabled:           c.AutoEnabled.Load(),
		ControlledByBroadcast: c.ControlledByBroadcast.Load(),
		PerInstanceOverride:   c.PerInstanceOverride.Load(),
		UpdateTime:            c.UpdateTime.Load(),
	}
}

func (c *ControlRecord) storeValues(v Control) {
	c.TargetDB.Store(v.TargetDB)
	c.GainDB.Store(v.GainDB)
	c.CeilingDB.Store(v.CeilingDB)
	c.RiderAmount.Store(v.RiderAmount)
	c.AutoEnabled.Store(v.AutoEnabled)
}

func (c *ControlRecord) storeBroadcast(v Control, fields ControlField, now int64) {
	if fields&FieldTarget != 0 {
		c.TargetDB.Store(v.TargetDB)
	}
	if fields&FieldGain != 0 {
		c.GainDB.Store(v.GainDB)
	}
	if fields&FieldCeiling != 0 {
		c.CeilingDB.Store(v.CeilingDB)
	}
	if fields&FieldAuto != 0 {
		c.AutoEnabled.Store(v.AutoEnabled)
	}
	if fields&FieldRider != 0 {
		c.RiderAmount.Store(v.RiderAmount)
	}
	c.ControlledByBroadcast.Store(true)
	c.UpdateTime.Store(now)
}

func (c *ControlRecord) clearFlags() {
	c.ControlledByBroadcast.Store(false)
	c.PerInstanceOverride.Store(false)
	c.UpdateTime.Store(0)
}

func (g *GlobalState) load() Global {
	return Global{
		TargetDB:         g.TargetDB.Load(),
		GainDB:           g.GainDB.Load(),
		CeilingDB:        g.CeilingDB.Load(),
		LoudnessTargetDB: g.LoudnessTargetDB.Load(),
		RiderAmount:      g.RiderAmount.Load(),
		AutoEnabled:      g.AutoEnabled.Load(),
		RiderEnabled:     g.RiderEnabled.Load(),
		LoudnessEnabled:  g.LoudnessEnabled.Load(),
		Genre:            int(g.Genre.Load()),
		Source:           int(g.Source.Load()),
		Situation:        int(g.Situation.Load()),
		Theme:            int(g.Theme.Load()),
		KnobStyle:        int(g.KnobStyle.Load()),
		CoordinatorInit:  g.CoordinatorInit.Load(),
		LastBroadcast:    g.LastBroadcast.Load(),
		Metering: CoordinatorLevels{
			RMSDB:          g.Metering.RMSDB.Load(),
			PeakDB:         g.Metering.PeakDB.Load(),
			CrestDB:        g.Metering.CrestDB.Load(),
			Correlation:    g.Metering.Correlation.Load(),
			ShortTermLUFS:  g.Metering.ShortTermLUFS.Load(),
			IntegratedLUFS: g.Metering.IntegratedLUFS.Load(),
			Width:          g.Metering.Width.Load(),
		},
	}
}

func (g *GlobalState) storeParams(v Global) {
	g.TargetDB.Store(v.TargetDB)
	g.GainDB.Store(v.GainDB)
	g.CeilingDB.Store(v.CeilingDB)
	g.LoudnessTargetDB.Store(v.LoudnessTargetDB)
	g.RiderAmount.Store(v.RiderAmount)
	g.AutoEnabled.Store(v.AutoEnabled)
	g.RiderEnabled.Store(v.RiderEnabled)
	g.LoudnessEnabled.Store(v.LoudnessEnabled)
	g.Genre.Store(int32(v.Genre))
	g.Source.Store(int32(v.Source))
	g.Situation.Store(int32(v.Situation))
}

func (g *GlobalState) storeMetering(m CoordinatorLevels) {
	g.Metering.RMSDB.Store(m.RMSDB)
	g.Metering.PeakDB.Store(m.PeakDB)
	g.Metering.CrestDB.Store(m.CrestDB)
	g.Metering.Correlation.Store(m.Correlation)
	g.Metering.ShortTermLUFS.Store(m.ShortTermLUFS)
	g.Metering.IntegratedLUFS.Store(m.IntegratedLUFS)
	g.Metering.Width.Store(m.Width)
}
