package gainstage

import (
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/justyntemme/gainlink/pkg/framework/broadcast"
	"github.com/justyntemme/gainlink/pkg/framework/connection"
	"github.com/justyntemme/gainlink/pkg/shared"
)

type options struct {
	clock  clock.WithTicker
	log    logr.Logger
	label  string
	source SourceType

	identity uint64

	broadcastInterval time.Duration
	keepaliveInterval time.Duration
	freshness         time.Duration
	liveWindow        time.Duration
	activeWindow      time.Duration
}

func defaultOptions() options {
	return options{
		clock:             clock.RealClock{},
		log:               logr.Discard(),
		broadcastInterval: broadcast.DefaultInterval,
		keepaliveInterval: connection.KeepaliveInterval,
		freshness:         shared.FreshnessWindow,
		liveWindow:        shared.LiveWindow,
		activeWindow:      shared.ActiveWindow,
	}
}

// Option configures a Coordinator or Participant.
type Option func(*options)

// WithClock sets the time source.
func WithClock(c clock.WithTicker) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l logr.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithLabel sets the track name a participant registers under.
func WithLabel(label string) Option {
	return func(o *options) { o.label = label }
}

// WithSourceType sets a participant's initial source type.
func WithSourceType(t SourceType) Option {
	return func(o *options) { o.source = t }
}

// WithIdentity fixes a participant's identity instead of generating one.
func WithIdentity(id uint64) Option {
	return func(o *options) { o.identity = id }
}

// WithBroadcastInterval sets the longest time between coordinator pushes.
func WithBroadcastInterval(d time.Duration) Option {
	return func(o *options) { o.broadcastInterval = d }
}

// WithKeepaliveInterval sets the participant keepalive period.
func WithKeepaliveInterval(d time.Duration) Option {
	return func(o *options) { o.keepaliveInterval = d }
}

// WithFreshness sets how long a broadcast stays binding on a participant.
func WithFreshness(d time.Duration) Option {
	return func(o *options) { o.freshness = d }
}

// WithLiveWindow sets how recent a participant refresh must be for the
// coordinator to write into its slot.
func WithLiveWindow(d time.Duration) Option {
	return func(o *options) { o.liveWindow = d }
}

// WithActiveWindow sets how recent a participant refresh must be for the
// coordinator to report it.
func WithActiveWindow(d time.Duration) Option {
	return func(o *options) { o.activeWindow = d }
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
