package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/justyntemme/gainlink/pkg/shared"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	clock   *testingclock.FakeClock
	backing *shared.MemoryBacking
}

func newHarness() *harness {
	return &harness{
		clock:   testingclock.NewFakeClock(epoch),
		backing: shared.NewMemoryBacking(),
	}
}

// registry opens a new handle, standing in for a separate process.
func (h *harness) registry(t *testing.T) *shared.Registry {
	t.Helper()
	reg := shared.New(h.backing, shared.WithClock(h.clock))
	require.NoError(t, reg.OpenOrCreate())
	return reg
}

func (h *harness) connect(t *testing.T, id uint64, opts ...Option) *Connection {
	t.Helper()
	opts = append([]Option{WithClock(h.clock), WithIdentity(id)}, opts...)
	c := New(h.registry(t), opts...)
	require.NoError(t, c.Connect())
	return c
}

func TestNewIdentityNonZeroAndDistinct(t *testing.T) {
	seen := map[uint64]bool{}
	for i := 0; i < 100; i++ {
		id := NewIdentity(epoch)
		assert.NotZero(t, id)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestConnect(t *testing.T) {
	h := newHarness()
	c := h.connect(t, 7, WithLabel("Vox"), WithSourceType(2))

	assert.True(t, c.Connected())
	assert.Equal(t, 0, c.Slot())
	require.NoError(t, c.Connect(), "connecting twice is a no-op")
	assert.Equal(t, 0, c.Slot())

	snap, err := h.registry(t).ReadSlot(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), snap.Identity)
	assert.Equal(t, "Vox", snap.Label)
	assert.Equal(t, 2, snap.SourceType)
}

func TestConnectSeedsControl(t *testing.T) {
	h := newHarness()
	seed := shared.Control{TargetDB: -20, GainDB: 5, CeilingDB: -1}
	c := h.connect(t, 3, WithSeed(func() shared.Control { return seed }))

	got, err := h.registry(t).ReadControl(c.Slot())
	require.NoError(t, err)
	assert.Equal(t, float32(5), got.GainDB)
	assert.Equal(t, float32(-1), got.CeilingDB)
	assert.False(t, got.ControlledByBroadcast)

	seed.GainDB = -3
	c.Reseed()
	got, err = h.registry(t).ReadControl(c.Slot())
	require.NoError(t, err)
	assert.Equal(t, float32(-3), got.GainDB)
}

func TestRefreshPublishesMetering(t *testing.T) {
	h := newHarness()
	c := h.connect(t, 1)

	h.clock.Step(50 * time.Millisecond)
	require.True(t, c.Refresh(shared.Metering{RMSDB: -21, AppliedGain: 1}))

	snap, _ := h.registry(t).ReadSlot(c.Slot())
	assert.Equal(t, float32(-21), snap.Metering.RMSDB)
	assert.Equal(t, h.clock.Now().UnixMilli(), snap.LastUpdate)
}

func TestReconnectAfterClearAll(t *testing.T) {
	h := newHarness()
	a := h.connect(t, 1)
	b := h.connect(t, 2)
	require.Equal(t, 0, a.Slot())
	require.Equal(t, 1, b.Slot())

	h.registry(t).ClearAll()

	// Both lose their slot on the next refresh and claim again.
	assert.False(t, a.Refresh(shared.Metering{}))
	b.Keepalive()

	assert.True(t, a.Connected())
	assert.True(t, b.Connected())
	assert.NotEqual(t, a.Slot(), b.Slot())

	reg := h.registry(t)
	assert.Equal(t, 2, reg.ActiveCount(shared.ActiveWindow))
	assert.Equal(t, uint64(1), reg.Identity(a.Slot()))
	assert.Equal(t, uint64(2), reg.Identity(b.Slot()))
	assert.True(t, a.Refresh(shared.Metering{}))
}

func TestReconnectAfterTakeover(t *testing.T) {
	h := newHarness()
	a := h.connect(t, 1)
	reg := h.registry(t)
	for i := 1; i < shared.MaxSlots; i++ {
		_, err := reg.Claim(uint64(100+i), shared.SlotMeta{})
		require.NoError(t, err)
	}

	// a and the last filler go silent long enough to be reclaimed.
	h.clock.Step(6 * time.Second)
	for i := 1; i < shared.MaxSlots-1; i++ {
		require.NoError(t, reg.Touch(i, uint64(100+i)))
	}
	intruder := h.connect(t, 99)
	require.Equal(t, 0, intruder.Slot())

	assert.False(t, a.Refresh(shared.Metering{}))
	assert.True(t, a.Connected())
	assert.Equal(t, shared.MaxSlots-1, a.Slot())
	assert.Equal(t, uint64(99), reg.Identity(0))
	assert.Equal(t, uint64(1), reg.Identity(a.Slot()))
}

func TestConcurrentRefreshAndKeepalive(t *testing.T) {
	h := newHarness()
	c := h.connect(t, 5)
	h.registry(t).ClearAll()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Refresh(shared.Metering{})
		}()
		go func() {
			defer wg.Done()
			c.Keepalive()
		}()
	}
	wg.Wait()

	c.Keepalive()
	reg := h.registry(t)
	owned := 0
	reg.Scan(func(s shared.SlotSnapshot) bool {
		if s.Active && s.Identity == 5 {
			owned++
		}
		return true
	})
	assert.Equal(t, 1, owned, "reconnects must not claim more than one slot")
}

func TestDisconnect(t *testing.T) {
	h := newHarness()
	c := h.connect(t, 4)
	slot := c.Slot()

	c.Disconnect()
	assert.False(t, c.Connected())

	snap, _ := h.registry(t).ReadSlot(slot)
	assert.False(t, snap.Active)

	c.Keepalive()
	assert.False(t, c.Refresh(shared.Metering{}))
	assert.False(t, c.Connected(), "a closed connection stays disconnected")
	assert.Error(t, c.Connect())
}

func TestSetLabel(t *testing.T) {
	h := newHarness()
	c := h.connect(t, 8, WithLabel("Gtr"))
	c.SetLabel("Gtr DI")
	c.SetSourceType(3)

	snap, _ := h.registry(t).ReadSlot(c.Slot())
	assert.Equal(t, "Gtr DI", snap.Label)
	assert.Equal(t, 3, snap.SourceType)
	assert.Equal(t, "Gtr DI", c.Label())
}

func TestUnavailableRegistry(t *testing.T) {
	reg := shared.New(shared.NewMemoryBacking())
	c := New(reg, WithIdentity(1))
	assert.ErrorIs(t, c.Connect(), shared.ErrUnavailable)
	assert.False(t, c.Refresh(shared.Metering{}))
	c.Keepalive()
	c.Disconnect()
}

// flakyBacking fails the first few Map calls, like a shared memory
// directory that is not writable yet.
type flakyBacking struct {
	*shared.MemoryBacking
	failures int32
	calls    atomic.Int32
}

func (f *flakyBacking) Map() (*shared.Region, bool, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, false, errors.New("shared memory not ready")
	}
	return f.MemoryBacking.Map()
}

func TestKeepaliveMapsRegistryAfterFailedOpen(t *testing.T) {
	h := newHarness()
	backing := &flakyBacking{MemoryBacking: h.backing, failures: 2}
	reg := shared.New(backing, shared.WithClock(h.clock))
	require.ErrorIs(t, reg.OpenOrCreate(), shared.ErrUnavailable)

	c := New(reg, WithClock(h.clock), WithIdentity(9), WithLabel("Vox"))
	require.ErrorIs(t, c.Connect(), shared.ErrUnavailable)

	for i := 0; i < 20; i++ {
		assert.False(t, c.Refresh(shared.Metering{}))
	}
	assert.Equal(t, int32(1), backing.calls.Load(), "Refresh must not map the region")

	c.Keepalive()
	assert.False(t, c.Connected())

	c.Keepalive()
	require.True(t, c.Connected())
	assert.Equal(t, 0, c.Slot())
	assert.True(t, c.Refresh(shared.Metering{RMSDB: -20}))

	snap, err := h.registry(t).ReadSlot(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), snap.Identity)
	assert.Equal(t, "Vox", snap.Label)
	assert.Equal(t, float32(-20), snap.Metering.RMSDB)
}

func TestRunKeepsSlotFresh(t *testing.T) {
	h := newHarness()
	c := h.connect(t, 6)
	reg := h.registry(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	for i := 0; i < 60; i++ {
		require.Eventually(t, h.clock.HasWaiters, time.Second, time.Millisecond)
		h.clock.Step(KeepaliveInterval)
		want := h.clock.Now().UnixMilli()
		require.Eventually(t, func() bool {
			snap, _ := reg.ReadSlot(c.Slot())
			return snap.LastUpdate == want
		}, time.Second, time.Millisecond)
	}

	// Six seconds of keepalive without any audio: still active.
	snap, _ := reg.ReadSlot(c.Slot())
	assert.True(t, snap.Active)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
