// Package broadcast pushes the coordinator's parameters and metering into
// the shared registry.
package broadcast

import (
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/justyntemme/gainlink/pkg/framework/logging"
	"github.com/justyntemme/gainlink/pkg/framework/metrics"
	"github.com/justyntemme/gainlink/pkg/shared"
)

// DefaultInterval is the longest time between two pushes of unchanged
// values.
const DefaultInterval = 50 * time.Millisecond

// Fields are the control record fields a broadcast carries. Gain and
// ceiling stay per instance unless pushed explicitly.
const Fields = shared.FieldTarget | shared.FieldAuto | shared.FieldRider

// tracked is the part of the global state whose change forces a push.
type tracked struct {
	target, gain, ceiling, loudnessTarget, riderAmount float32
	auto, rider, loudness                              bool
	genre, source, situation                           int
}

func trackedOf(g shared.Global) tracked {
	return tracked{
		target:         g.TargetDB,
		gain:           g.GainDB,
		ceiling:        g.CeilingDB,
		loudnessTarget: g.LoudnessTargetDB,
		riderAmount:    g.RiderAmount,
		auto:           g.AutoEnabled,
		rider:          g.RiderEnabled,
		loudness:       g.LoudnessEnabled,
		genre:          g.Genre,
		source:         g.Source,
		situation:      g.Situation,
	}
}

// Payload returns the control values a broadcast of g writes into
// participant slots. A disabled rider is broadcast as amount zero.
func Payload(g shared.Global) shared.Control {
	c := shared.Control{
		TargetDB:    g.TargetDB,
		GainDB:      g.GainDB,
		CeilingDB:   g.CeilingDB,
		AutoEnabled: g.AutoEnabled,
	}
	if g.RiderEnabled {
		c.RiderAmount = g.RiderAmount
	}
	return c
}

// Broadcaster decides when to push. It is driven from the coordinator's
// audio thread and does not allocate.
type Broadcaster struct {
	reg      *shared.Registry
	clock    clock.PassiveClock
	log      logr.Logger
	interval time.Duration
	live     time.Duration

	last     tracked
	lastPush time.Time
	primed   bool
	reached  int
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithClock sets the time source.
func WithClock(c clock.PassiveClock) Option {
	return func(b *Broadcaster) { b.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l logr.Logger) Option {
	return func(b *Broadcaster) { b.log = l }
}

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(b *Broadcaster) { b.interval = d }
}

// WithLiveWindow overrides shared.LiveWindow.
func WithLiveWindow(d time.Duration) Option {
	return func(b *Broadcaster) { b.live = d }
}

// New creates a broadcaster writing to reg.
func New(reg *shared.Registry, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		reg:      reg,
		clock:    clock.RealClock{},
		log:      logr.Discard(),
		interval: DefaultInterval,
		live:     shared.LiveWindow,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Update pushes g and m when a tracked value changed since the last push
// or the interval has elapsed. It reports whether it pushed. With the
// registry unavailable it does nothing.
func (b *Broadcaster) Update(g shared.Global, m shared.CoordinatorLevels) bool {
	if !b.reg.Available() {
		return false
	}

	now := b.clock.Now()
	cur := trackedOf(g)
	changed := !b.primed || cur != b.last
	if !changed && now.Sub(b.lastPush) < b.interval {
		return false
	}

	b.reg.PublishGlobal(g)
	b.reg.PublishCoordinatorMetering(m)
	n := b.reg.Broadcast(Payload(g), Fields, b.live)

	if n != b.reached {
		b.log.V(logging.VERBOSE).Info("Broadcast reach changed", "participants", n)
		b.reached = n
	}
	metrics.RecordBroadcast(changed, n)

	b.last = cur
	b.lastPush = now
	b.primed = true
	return true
}

// Invalidate forces the next Update to push.
func (b *Broadcaster) Invalidate() {
	b.primed = false
}

// Reached returns how many participants the last push wrote to.
func (b *Broadcaster) Reached() int {
	return b.reached
}
