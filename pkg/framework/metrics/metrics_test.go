package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterTwice(t *testing.T) {
	Register()
	assert.NotPanics(t, Register)
}

func TestSlotClaims(t *testing.T) {
	Register()
	before := testutil.ToFloat64(slotClaims.WithLabelValues(ClaimFull))
	RecordSlotClaim(ClaimFull)
	RecordSlotClaim(ClaimFull)
	assert.Equal(t, before+2, testutil.ToFloat64(slotClaims.WithLabelValues(ClaimFull)))
}

func TestRecordBroadcast(t *testing.T) {
	Register()
	RecordBroadcast(true, 3)

	want := `
# HELP gainlink_broadcast_live_participants Participants written by the most recent broadcast.
# TYPE gainlink_broadcast_live_participants gauge
gainlink_broadcast_live_participants 3
`
	err := testutil.GatherAndCompare(Registry, strings.NewReader(want), "gainlink_broadcast_live_participants")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, testutil.ToFloat64(broadcasts.WithLabelValues(TriggerChange)), 1.0)
}

func TestCounters(t *testing.T) {
	Register()
	r0 := testutil.ToFloat64(reconnects)
	d0 := testutil.ToFloat64(disconnects)
	o0 := testutil.ToFloat64(openFailures)

	RecordReconnect()
	RecordDisconnect()
	RecordOpenFailure()
	RecordControlSource("broadcast")

	assert.Equal(t, r0+1, testutil.ToFloat64(reconnects))
	assert.Equal(t, d0+1, testutil.ToFloat64(disconnects))
	assert.Equal(t, o0+1, testutil.ToFloat64(openFailures))
	assert.GreaterOrEqual(t, testutil.ToFloat64(controlSource.WithLabelValues("broadcast")), 1.0)
}
