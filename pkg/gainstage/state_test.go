package gainstage

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/gainlink/pkg/framework/control"
	"github.com/justyntemme/gainlink/pkg/framework/state"
)

func TestParticipantStateKeepsManualValues(t *testing.T) {
	s := newSession(t)
	coord, ch := s.coordinator()
	a, ah := s.participant("Vox")

	a.SetParameter(ParamTarget, -12)
	a.SetParameter(ParamGain, 3)
	a.SetParameter(ParamSource, float64(SourceBass))
	coord.Parameters().SetPlain(ParamTarget, -20)
	ch.Process(dcBlock(-30))
	ah.Process(dcBlock(-30))
	require.Equal(t, control.SourceBroadcast, a.ControlSource())

	var buf bytes.Buffer
	require.NoError(t, a.SaveState(&buf))

	// A new project session with no coordinator.
	other := newSession(t)
	b, _ := other.participant("Track 1")
	require.NoError(t, b.LoadState(&buf))

	assert.Equal(t, "Vox", b.Label())
	assert.InDelta(t, -12, b.Parameters().Plain(ParamTarget), 1e-6)
	assert.InDelta(t, 3, b.Parameters().Plain(ParamGain), 1e-6)

	snap, err := other.mapped().ReadSlot(b.Slot())
	require.NoError(t, err)
	assert.Equal(t, "Vox", snap.Label)
	assert.Equal(t, int(SourceBass), snap.SourceType)
	assert.InDelta(t, -12, snap.Control.TargetDB, 1e-6)
}

func TestParticipantStateWhileAdopted(t *testing.T) {
	s := newSession(t)
	coord, ch := s.coordinator()
	a, ah := s.participant("Vox")
	saved, _ := newSession(t).participant("Saved")
	saved.SetParameter(ParamTarget, -9)

	var buf bytes.Buffer
	require.NoError(t, saved.SaveState(&buf))

	coord.Parameters().SetPlain(ParamTarget, -20)
	ch.Process(dcBlock(-30))
	ah.Process(dcBlock(-30))
	require.True(t, a.ControlledByCoordinator())

	require.NoError(t, a.LoadState(&buf))
	ah.Process(dcBlock(-30))
	assert.InDelta(t, -20, a.Parameters().Plain(ParamTarget), 1e-6, "broadcast still wins")

	a.SetLocalOverride(true)
	ah.Process(dcBlock(-30))
	assert.InDelta(t, -9, a.Parameters().Plain(ParamTarget), 1e-6, "restored value is the manual one")
}

func TestParticipantLoadStateRejectsGarbage(t *testing.T) {
	s := newSession(t)
	a, _ := s.participant("Vox")
	a.SetParameter(ParamTarget, -12)

	err := a.LoadState(bytes.NewReader([]byte("not a state blob")))
	assert.ErrorIs(t, err, state.ErrInvalidFormat)
	assert.InDelta(t, -12, a.Parameters().Plain(ParamTarget), 1e-6)
	assert.Equal(t, "Vox", a.Label())
}

func TestCoordinatorStateRoundTrip(t *testing.T) {
	s := newSession(t)
	c, _ := s.coordinator()
	c.Parameters().SetPlain(ParamTarget, -14)
	c.Parameters().SetPlain(ParamLoudnessTarget, -16)
	c.SetTheme(2)
	c.SetKnobStyle(1)

	var buf bytes.Buffer
	require.NoError(t, c.SaveState(&buf))

	other := newSession(t)
	restored, rh := other.coordinator()
	p, ph := other.participant("Vox")
	require.NoError(t, restored.LoadState(&buf))

	assert.InDelta(t, -14, restored.Parameters().Plain(ParamTarget), 1e-6)
	assert.InDelta(t, -16, restored.Parameters().Plain(ParamLoudnessTarget), 1e-6)
	theme, knob := p.Theme()
	assert.Equal(t, 2, theme)
	assert.Equal(t, 1, knob)

	rh.Process(dcBlock(-30))
	ph.Process(dcBlock(-30))
	assert.InDelta(t, -14, p.Parameters().Plain(ParamTarget), 1e-6)
}
