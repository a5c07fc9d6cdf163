// Package connection keeps one instance's slot in the shared registry
// alive: it claims a slot on start, refreshes it from the audio thread and
// a background keepalive, and reclaims a slot when the old one is lost.
package connection

import (
	"context"
	"encoding/binary"
	"errors"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/justyntemme/gainlink/pkg/framework/logging"
	"github.com/justyntemme/gainlink/pkg/framework/metrics"
	"github.com/justyntemme/gainlink/pkg/shared"
)

// KeepaliveInterval is how often the background loop refreshes the slot.
const KeepaliveInterval = 100 * time.Millisecond

// NewIdentity returns a random 64-bit identity mixed with the wall clock.
// It is never zero, since zero marks a released slot.
func NewIdentity(now time.Time) uint64 {
	id := uuid.New()
	v := binary.LittleEndian.Uint64(id[:8]) ^ uint64(now.UnixMilli())
	if v == 0 {
		v = 1
	}
	return v
}

// Connection owns at most one registry slot for one instance.
//
// Refresh runs on the audio thread and Keepalive on the timer goroutine.
// Both may discover that the slot was lost; an atomic flag lets exactly one
// of them reconnect while the other skips the attempt.
type Connection struct {
	reg      *shared.Registry
	clock    clock.WithTicker
	log      logr.Logger
	interval time.Duration
	seed     func() shared.Control

	identity uint64
	// binding packs a generation counter with the slot index so that a
	// goroutine holding an outdated view cannot drop a newer slot.
	binding    atomic.Uint64
	connecting atomic.Bool
	closed     atomic.Bool

	label      atomic.Pointer[string]
	sourceType atomic.Int32
}

// Option configures a Connection.
type Option func(*Connection)

// WithClock sets the time source used for the identity and keepalive.
func WithClock(c clock.WithTicker) Option {
	return func(conn *Connection) { conn.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l logr.Logger) Option {
	return func(conn *Connection) { conn.log = l }
}

// WithInterval overrides KeepaliveInterval.
func WithInterval(d time.Duration) Option {
	return func(conn *Connection) { conn.interval = d }
}

// WithIdentity fixes the identity instead of generating one.
func WithIdentity(id uint64) Option {
	return func(conn *Connection) { conn.identity = id }
}

// WithLabel sets the label written into the slot.
func WithLabel(label string) Option {
	return func(conn *Connection) { conn.label.Store(&label) }
}

// WithSourceType sets the source tag written into the slot.
func WithSourceType(t int) Option {
	return func(conn *Connection) { conn.sourceType.Store(int32(t)) }
}

// WithSeed sets the function that supplies the control values a fresh slot
// starts from. It is called on every (re)connect.
func WithSeed(fn func() shared.Control) Option {
	return func(conn *Connection) { conn.seed = fn }
}

// New creates a connection over reg. Nothing is claimed until Connect.
func New(reg *shared.Registry, opts ...Option) *Connection {
	c := &Connection{
		reg:      reg,
		clock:    clock.RealClock{},
		log:      logr.Discard(),
		interval: KeepaliveInterval,
		seed:     shared.DefaultControl,
	}
	empty := ""
	c.label.Store(&empty)
	c.binding.Store(pack(0, -1))

	for _, opt := range opts {
		opt(c)
	}
	if c.identity == 0 {
		c.identity = NewIdentity(c.clock.Now())
	}
	c.log = c.log.WithValues("identity", c.identity)
	return c
}

// Identity returns the instance identity.
func (c *Connection) Identity() uint64 {
	return c.identity
}

func pack(gen uint32, slot int) uint64 {
	return uint64(gen)<<32 | uint64(uint32(slot+1))
}

func unpack(b uint64) (gen uint32, slot int) {
	return uint32(b >> 32), int(uint32(b)) - 1
}

// bind replaces the binding with slot under a new generation and returns
// the previous slot.
func (c *Connection) bind(slot int) int {
	for {
		old := c.binding.Load()
		gen, prev := unpack(old)
		if c.binding.CompareAndSwap(old, pack(gen+1, slot)) {
			return prev
		}
	}
}

// Slot returns the owned slot index, or -1.
func (c *Connection) Slot() int {
	_, slot := unpack(c.binding.Load())
	return slot
}

// Connected reports whether a slot is owned.
func (c *Connection) Connected() bool {
	return c.Slot() >= 0
}

// Label returns the label written into the slot.
func (c *Connection) Label() string {
	return *c.label.Load()
}

// SetLabel changes the label and writes it into an owned slot.
func (c *Connection) SetLabel(label string) {
	c.label.Store(&label)
	c.writeMeta()
}

// SetSourceType changes the source tag and writes it into an owned slot.
func (c *Connection) SetSourceType(t int) {
	c.sourceType.Store(int32(t))
	c.writeMeta()
}

func (c *Connection) writeMeta() {
	b := c.binding.Load()
	_, slot := unpack(b)
	if slot < 0 {
		return
	}
	err := c.reg.SetMeta(slot, c.identity, c.Label(), int(c.sourceType.Load()))
	if shared.Lost(err) {
		c.lose(b)
	}
}

// Reseed writes the seed values into an owned slot's control record.
func (c *Connection) Reseed() {
	b := c.binding.Load()
	_, slot := unpack(b)
	if slot < 0 {
		return
	}
	if err := c.reg.SeedControl(slot, c.identity, c.seed()); shared.Lost(err) {
		c.lose(b)
	}
}

// Connect claims a slot. It is a no-op when a slot is already owned.
func (c *Connection) Connect() error {
	if c.closed.Load() {
		return errClosed
	}
	if c.Connected() {
		return nil
	}
	if !c.connecting.CompareAndSwap(false, true) {
		return nil
	}
	defer c.connecting.Store(false)

	return c.claim()
}

var errClosed = errors.New("connection closed")

func (c *Connection) claim() error {
	slot, err := c.reg.Claim(c.identity, shared.SlotMeta{
		Label:      c.Label(),
		SourceType: int(c.sourceType.Load()),
		Control:    c.seed(),
	})
	switch {
	case errors.Is(err, shared.ErrUnavailable):
		metrics.RecordSlotClaim(metrics.ClaimUnavailable)
		return err
	case err != nil:
		metrics.RecordSlotClaim(metrics.ClaimFull)
		c.log.V(logging.VERBOSE).Info("No registry slot available", "err", err)
		return err
	}

	metrics.RecordSlotClaim(metrics.ClaimOK)
	if c.closed.Load() {
		c.reg.Release(slot, c.identity)
		return errClosed
	}
	c.bind(slot)
	c.log.V(logging.DEFAULT).Info("Connected to registry", "slot", slot)
	return nil
}

// lose forgets the slot of binding b if b is still current.
func (c *Connection) lose(b uint64) {
	gen, slot := unpack(b)
	if c.binding.CompareAndSwap(b, pack(gen+1, -1)) {
		c.log.V(logging.DEFAULT).Info("Lost registry slot", "slot", slot)
	}
}

// reconnect claims a new slot unless another goroutine is already doing so.
// With mapRegion set it first maps a registry that is not yet available;
// the audio thread passes false and leaves that to the keepalive.
func (c *Connection) reconnect(mapRegion bool) {
	if c.closed.Load() || !c.connecting.CompareAndSwap(false, true) {
		return
	}
	defer c.connecting.Store(false)

	if c.Connected() {
		return
	}
	if !c.reg.Available() {
		if !mapRegion {
			return
		}
		if err := c.reg.OpenOrCreate(); err != nil {
			metrics.RecordOpenFailure()
			c.log.V(logging.DEBUG).Info("Registry still unavailable", "err", err)
			return
		}
	}
	if err := c.claim(); err == nil {
		metrics.RecordReconnect()
	}
}

// Refresh publishes metering into the owned slot and refreshes its
// timestamp. It is called once per audio block. When the slot turns out to
// be lost it reconnects and reports false for this block.
func (c *Connection) Refresh(m shared.Metering) bool {
	b := c.binding.Load()
	_, slot := unpack(b)
	if slot < 0 {
		c.reconnect(false)
		return false
	}
	err := c.reg.UpdateSlot(slot, c.identity, m)
	if err == nil {
		return true
	}
	if shared.Lost(err) {
		c.lose(b)
		c.reconnect(false)
	}
	return false
}

// Keepalive refreshes the slot timestamp without touching metering, so a
// participant stays visible while its host has stopped calling process.
// Without a slot it retries, mapping the registry first if an earlier open
// failed.
func (c *Connection) Keepalive() {
	b := c.binding.Load()
	_, slot := unpack(b)
	if slot < 0 {
		c.reconnect(true)
		return
	}
	if err := c.reg.Touch(slot, c.identity); shared.Lost(err) {
		c.lose(b)
		c.reconnect(true)
	}
}

// Run calls Keepalive every interval until ctx is cancelled.
func (c *Connection) Run(ctx context.Context) {
	c.log.V(logging.VERBOSE).Info("Starting keepalive loop", "interval", c.interval)
	defer c.log.V(logging.VERBOSE).Info("Keepalive loop stopped")

	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			c.Keepalive()
		}
	}
}

// Disconnect releases the owned slot. Later calls to Refresh or Keepalive
// do not reconnect.
func (c *Connection) Disconnect() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	slot := c.bind(-1)
	if slot < 0 {
		return
	}
	if c.reg.Release(slot, c.identity) {
		metrics.RecordDisconnect()
		c.log.V(logging.DEFAULT).Info("Disconnected from registry", "slot", slot)
	}
}
