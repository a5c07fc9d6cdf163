package control

import (
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/gainlink/pkg/framework/param"
	"github.com/justyntemme/gainlink/pkg/shared"
)

const (
	idGain uint32 = iota
	idTarget
	idCeiling
	idAuto
	idRider
)

var testMapping = Mapping{Gain: idGain, Target: idTarget, Ceiling: idCeiling, Auto: idAuto, RiderAmount: idRider}

func newTestStore(t *testing.T) (*param.Registry, *int) {
	t.Helper()
	r := param.NewRegistry()
	require.NoError(t, r.Add(
		param.GainParameter(idGain, "Gain").Build(),
		param.DecibelParameter(idTarget, "Target", -40, 0, -18).Build(),
		param.CeilingParameter(idCeiling, "Ceiling").Build(),
		param.ToggleParameter(idAuto, "Auto", false).Build(),
		param.AmountParameter(idRider, "Rider", 0).Build(),
	))
	notified := 0
	r.SetListener(func(uint32, float64) { notified++ })
	return r, &notified
}

func TestArbiterAdoptsAndRestores(t *testing.T) {
	store, notified := newTestStore(t)
	store.SetPlain(idGain, 3)
	store.SetPlain(idTarget, -16)
	a := NewArbiter(store, testMapping, logr.Discard())

	bc := shared.Control{TargetDB: -20, GainDB: 3, CeilingDB: 0, AutoEnabled: true, RiderAmount: 40}
	assert.True(t, a.Apply(Decision{Source: SourceBroadcast, Control: bc}))
	assert.Equal(t, SourceBroadcast, a.Source())
	assert.InDelta(t, -20, store.Plain(idTarget), 1e-6)
	assert.True(t, store.Bool(idAuto))
	assert.InDelta(t, 40, store.Plain(idRider), 1e-6)
	assert.Equal(t, 3, *notified, "only changed values are notified")

	assert.False(t, a.Apply(Decision{Source: SourceBroadcast, Control: bc}), "steady state changes nothing")

	manual := a.Manual()
	assert.InDelta(t, -16, manual.TargetDB, 1e-6)
	assert.False(t, manual.Auto)

	assert.True(t, a.Apply(Decision{Source: SourceNone}))
	assert.InDelta(t, -16, store.Plain(idTarget), 1e-6)
	assert.InDelta(t, 3, store.Plain(idGain), 1e-6)
	assert.False(t, store.Bool(idAuto))
	assert.InDelta(t, 0, store.Plain(idRider), 1e-6)

	assert.False(t, a.Apply(Decision{Source: SourceNone}), "restore happens once")
}

func TestArbiterLocalNeverApplies(t *testing.T) {
	store, notified := newTestStore(t)
	a := NewArbiter(store, testMapping, logr.Discard())

	for i := 0; i < 3; i++ {
		assert.False(t, a.Apply(Resolve(Inputs{
			LocalOverride: true,
			Connected:     true,
			Control:       shared.Control{TargetDB: -6, PerInstanceOverride: true},
		})))
	}
	assert.InDelta(t, -18, store.Plain(idTarget), 1e-6)
	assert.Zero(t, *notified)
}

func TestArbiterLocalRestoresAfterOverride(t *testing.T) {
	store, _ := newTestStore(t)
	a := NewArbiter(store, testMapping, logr.Discard())

	a.Apply(Decision{Source: SourceOverride, Control: shared.Control{TargetDB: -10, GainDB: 6, CeilingDB: -3}})
	assert.InDelta(t, 6, store.Plain(idGain), 1e-6)
	assert.InDelta(t, -3, store.Plain(idCeiling), 1e-6)

	assert.True(t, a.Apply(Decision{Source: SourceLocal}))
	assert.InDelta(t, 0, store.Plain(idGain), 1e-6)
	assert.InDelta(t, 0, store.Plain(idCeiling), 1e-6)
	assert.InDelta(t, -18, store.Plain(idTarget), 1e-6)
}

func TestArbiterRemember(t *testing.T) {
	store, _ := newTestStore(t)
	a := NewArbiter(store, testMapping, logr.Discard())

	a.Apply(Decision{Source: SourceBroadcast, Control: shared.Control{TargetDB: -20}})
	a.Remember(idTarget, -12)
	a.Remember(idAuto, 1)

	a.Apply(Decision{Source: SourceNone})
	assert.InDelta(t, -12, store.Plain(idTarget), 1e-6)
	assert.True(t, store.Bool(idAuto))
}

func TestControlFromManual(t *testing.T) {
	c := ControlFromManual(Manual{GainDB: 1, TargetDB: -14, CeilingDB: -1, Auto: true, RiderAmount: 25})
	assert.Equal(t, shared.Control{GainDB: 1, TargetDB: -14, CeilingDB: -1, AutoEnabled: true, RiderAmount: 25}, c)
}

func TestApplyDoesNotAllocate(t *testing.T) {
	store, _ := newTestStore(t)
	store.SetListener(nil)
	a := NewArbiter(store, testMapping, logr.Discard())
	d := Decision{Source: SourceBroadcast, Control: shared.Control{TargetDB: -20}}
	a.Apply(d)

	allocs := testing.AllocsPerRun(100, func() {
		a.Apply(d)
	})
	assert.Zero(t, allocs)
}
