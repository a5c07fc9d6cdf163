package gainstage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/gainlink/pkg/framework/control"
	"github.com/justyntemme/gainlink/pkg/framework/plugin"
	"github.com/justyntemme/gainlink/pkg/shared"
)

func TestBroadcastReachesParticipantsAndExpires(t *testing.T) {
	s := newSession(t)
	coord, ch := s.coordinator()
	a, ah := s.participant("Vox")
	b, bh := s.participant("Bass")

	a.SetParameter(ParamTarget, -12)
	b.SetParameter(ParamTarget, -24)
	coord.Parameters().SetPlain(ParamTarget, -20)

	ch.Process(dcBlock(-30))
	s.clock.Step(10 * time.Millisecond)
	processAll(-30, ah, bh)

	for _, p := range []*Participant{a, b} {
		assert.InDelta(t, -20, p.Parameters().Plain(ParamTarget), 1e-6)
		assert.True(t, p.Parameters().Bool(ParamAutoEnabled), "coordinator auto gain is on by default")
		assert.Equal(t, control.SourceBroadcast, p.ControlSource())
	}

	// The coordinator goes quiet; the participants keep processing.
	for i := 0; i < 49; i++ {
		s.clock.Step(100 * time.Millisecond)
		processAll(-30, ah, bh)
	}
	assert.InDelta(t, -20, a.Parameters().Plain(ParamTarget), 1e-6)

	s.clock.Step(100 * time.Millisecond)
	processAll(-30, ah, bh)

	assert.InDelta(t, -12, a.Parameters().Plain(ParamTarget), 1e-6)
	assert.InDelta(t, -24, b.Parameters().Plain(ParamTarget), 1e-6)
	assert.False(t, a.Parameters().Bool(ParamAutoEnabled))
	assert.Equal(t, control.SourceNone, a.ControlSource())
}

func TestBroadcastKeepsParticipantGain(t *testing.T) {
	s := newSession(t)
	coord, ch := s.coordinator()
	a, ah := s.participant("Vox")

	a.SetParameter(ParamGain, 4)
	coord.Parameters().SetPlain(ParamGain, -6)

	ch.Process(dcBlock(-30))
	ah.Process(dcBlock(-30))

	require.Equal(t, control.SourceBroadcast, a.ControlSource())
	assert.InDelta(t, 4, a.Parameters().Plain(ParamGain), 1e-6, "coordinator gain is its own")
}

func TestArbitrationPrecedence(t *testing.T) {
	s := newSession(t)
	coord, ch := s.coordinator()
	a, ah := s.participant("Vox")

	a.SetParameter(ParamTarget, -12)
	a.SetLocalOverride(true)
	coord.Parameters().SetPlain(ParamTarget, -20)

	ch.Process(dcBlock(-30))
	ah.Process(dcBlock(-30))
	assert.InDelta(t, -12, a.Parameters().Plain(ParamTarget), 1e-6)
	assert.Equal(t, control.SourceLocal, a.ControlSource())

	pinned := shared.Control{TargetDB: -30, GainDB: 2, CeilingDB: -1, AutoEnabled: true, RiderAmount: 10}
	require.NoError(t, coord.SetParticipantControl(a.Slot(), pinned))
	ah.Process(dcBlock(-30))
	assert.InDelta(t, -12, a.Parameters().Plain(ParamTarget), 1e-6, "local override ignores the pin")

	a.EnableCoordinatorControl()
	ch.Process(dcBlock(-30))
	ah.Process(dcBlock(-30))
	assert.Equal(t, control.SourceOverride, a.ControlSource())
	assert.InDelta(t, -30, a.Parameters().Plain(ParamTarget), 1e-6, "a pin beats a broadcast")
	assert.InDelta(t, 2, a.Parameters().Plain(ParamGain), 1e-6)
	assert.InDelta(t, -1, a.Parameters().Plain(ParamCeiling), 1e-6)
	assert.InDelta(t, 10, a.Parameters().Plain(ParamRiderAmount), 1e-6)

	s.clock.Step(6 * time.Second)
	ah.Process(dcBlock(-30))
	assert.InDelta(t, -30, a.Parameters().Plain(ParamTarget), 1e-6, "a pin does not expire")

	require.NoError(t, coord.ReleaseParticipantControl(a.Slot()))
	ah.Process(dcBlock(-30))
	assert.Equal(t, control.SourceNone, a.ControlSource())
	assert.InDelta(t, -12, a.Parameters().Plain(ParamTarget), 1e-6)
	assert.InDelta(t, 0, a.Parameters().Plain(ParamGain), 1e-6)
}

func TestLocalOverrideRestoresManualValues(t *testing.T) {
	s := newSession(t)
	coord, ch := s.coordinator()
	a, ah := s.participant("Vox")
	a.SetParameter(ParamTarget, -12)
	coord.Parameters().SetPlain(ParamTarget, -20)

	ch.Process(dcBlock(-30))
	ah.Process(dcBlock(-30))
	require.InDelta(t, -20, a.Parameters().Plain(ParamTarget), 1e-6)
	assert.True(t, a.ControlledByCoordinator())

	a.SetLocalOverride(true)
	ch.Process(dcBlock(-30))
	ah.Process(dcBlock(-30))
	assert.InDelta(t, -12, a.Parameters().Plain(ParamTarget), 1e-6)
	assert.False(t, a.ControlledByCoordinator())
	assert.True(t, a.LocalOverride())
}

func TestParticipantPublishesMetering(t *testing.T) {
	s := newSession(t)
	a, ah := s.participant("Vox", WithSourceType(SourceBass))
	require.True(t, a.Connected())

	a.SetParameter(ParamGain, 6)
	ah.Process(dcBlock(-30))

	reg := s.registry()
	require.NoError(t, reg.OpenOrCreate())
	snap, err := reg.ReadSlot(a.Slot())
	require.NoError(t, err)
	assert.True(t, snap.Active)
	assert.Equal(t, a.Identity(), snap.Identity)
	assert.Equal(t, "Vox", snap.Label)
	assert.Equal(t, int(SourceBass), snap.SourceType)
	assert.InDelta(t, -30, snap.Metering.RMSDB, 0.01)
	assert.InDelta(t, 1.995, snap.Metering.AppliedGain, 0.001)

	a.SetParameter(ParamSource, float64(SourceKick))
	a.SetLabel("Kick In")
	snap, _ = reg.ReadSlot(a.Slot())
	assert.Equal(t, int(SourceKick), snap.SourceType)
	assert.Equal(t, "Kick In", snap.Label)
	assert.Equal(t, "Kick In", a.Label())
}

func TestParticipantReconnectsAfterCoordinatorStart(t *testing.T) {
	s := newSession(t)
	a, ah := s.participant("Vox")
	require.True(t, a.Connected())

	coord, _ := s.coordinator()
	assert.Zero(t, coord.ActiveParticipantCount(), "a starting coordinator clears old slots")

	ah.Process(dcBlock(-30))
	ah.Process(dcBlock(-30))
	assert.True(t, a.Connected())
	assert.Equal(t, 1, coord.ActiveParticipantCount())
}

func TestParticipantStandalone(t *testing.T) {
	p := NewParticipant(shared.New(failingBacking{}), WithLabel("Vox"))
	h, err := plugin.NewHost(p, testSampleRate, testBlock)
	require.NoError(t, err)

	p.SetParameter(ParamGain, 6)
	block := dcBlock(-30)
	h.Process(block)

	assert.False(t, p.Connected())
	assert.Equal(t, control.SourceNone, p.ControlSource())
	assert.InDelta(t, -24, p.Engine().Pipeline().Snapshot().Output.RMSDB, 0.01)
	assert.NoError(t, p.Close())
}

func TestParticipantJoinsOnInitializeAfterFailedOpen(t *testing.T) {
	s := newSession(t)
	reg := shared.New(&lateBacking{Backing: s.backing}, shared.WithClock(s.clock))
	p := NewParticipant(reg, WithClock(s.clock), WithLabel("Vox"))
	t.Cleanup(func() { _ = p.Close() })
	require.False(t, p.Connected())

	h, err := plugin.NewHost(p, testSampleRate, testBlock)
	require.NoError(t, err)
	assert.True(t, p.Connected())

	h.Process(dcBlock(-30))
	snap, err := s.mapped().ReadSlot(p.Slot())
	require.NoError(t, err)
	assert.Equal(t, "Vox", snap.Label)
	assert.InDelta(t, -30, snap.Metering.RMSDB, 0.01)
}

func TestAdoptedValuesReachTheHost(t *testing.T) {
	s := newSession(t)
	coord, ch := s.coordinator()
	a, ah := s.participant("Vox")

	ah.Process(dcBlock(-30))
	require.Zero(t, ah.Edits())

	coord.Parameters().SetPlain(ParamTarget, -20)
	ch.Process(dcBlock(-30))
	ah.Process(dcBlock(-30))
	require.True(t, a.ControlledByCoordinator())
	assert.NotZero(t, ah.Edits())

	before := ah.Edits()
	ah.Process(dcBlock(-30))
	assert.Equal(t, before, ah.Edits(), "a steady broadcast is reported once")
}

func TestParticipantPublishesInputAndOutputLevels(t *testing.T) {
	s := newSession(t)
	a, ah := s.participant("Vox")
	a.SetParameter(ParamGain, 6)

	mono := dcBlock(-30)[:1]
	ah.Process(mono)

	snap, err := s.mapped().ReadSlot(a.Slot())
	require.NoError(t, err)
	assert.InDelta(t, -30, snap.Metering.RMSDB, 0.01)
	assert.InDelta(t, -24, snap.Metering.OutputRMSDB, 0.01)
	assert.InDelta(t, -24, snap.Metering.OutputPeakDB, 0.01)
	assert.Equal(t, float32(1), snap.Metering.Correlation, "mono input is neutral")

	ctx := BuildContext(s.mapped(), shared.ActiveWindow, shared.FreshnessWindow)
	require.Len(t, ctx.Participants, 1)
	r := ctx.Participants[0]
	assert.False(t, r.PhaseWarning)
	assert.InDelta(t, -24, r.OutputRMSDB, 0.01)
	assert.NotContains(t, Summarize(ctx.Participants), "[Phase issues!]")
}

func TestParticipantCloseReleasesSlot(t *testing.T) {
	s := newSession(t)
	a, _ := s.participant("Vox")
	slot := a.Slot()
	require.GreaterOrEqual(t, slot, 0)

	require.NoError(t, a.Close())
	reg := s.registry()
	require.NoError(t, reg.OpenOrCreate())
	snap, err := reg.ReadSlot(slot)
	require.NoError(t, err)
	assert.False(t, snap.Active)
}
