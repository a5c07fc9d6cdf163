// Package metrics exposes Prometheus counters and gauges for the registry
// protocol. Recording is cheap enough for the keepalive path but is never
// called per audio block.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gainlink"

// Claim results.
const (
	ClaimOK          = "ok"
	ClaimFull        = "full"
	ClaimUnavailable = "unavailable"
)

// Registry holds every gainlink metric. It is separate from the default
// Prometheus registry so that a plugin host embedding several instances
// never panics on duplicate registration.
var Registry = prometheus.NewRegistry()

var (
	slotClaims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "slot_claims_total",
			Help:      "Count of slot claim attempts by result.",
		},
		[]string{"result"},
	)
	reconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "reconnects_total",
			Help:      "Count of reconnects after a participant lost its slot.",
		},
	)
	disconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "disconnects_total",
			Help:      "Count of slots released on shutdown.",
		},
	)
	openFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "open_failures_total",
			Help:      "Count of shared region mappings that failed, leaving the instance standalone.",
		},
	)
	broadcasts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "pushes_total",
			Help:      "Count of coordinator broadcasts by trigger.",
		},
		[]string{"trigger"},
	)
	liveParticipants = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "live_participants",
			Help:      "Participants written by the most recent broadcast.",
		},
	)
	controlSource = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "source_changes_total",
			Help:      "Count of control source transitions by new source.",
		},
		[]string{"source"},
	)
)

// Broadcast triggers.
const (
	TriggerChange   = "change"
	TriggerInterval = "interval"
)

// Children resolved up front so recording on the audio thread does not
// allocate.
var (
	broadcastOnChange   = broadcasts.WithLabelValues(TriggerChange)
	broadcastOnInterval = broadcasts.WithLabelValues(TriggerInterval)
)

var registerMetrics sync.Once

// Register all metrics.
func Register() {
	registerMetrics.Do(func() {
		Registry.MustRegister(slotClaims)
		Registry.MustRegister(reconnects)
		Registry.MustRegister(disconnects)
		Registry.MustRegister(openFailures)
		Registry.MustRegister(broadcasts)
		Registry.MustRegister(liveParticipants)
		Registry.MustRegister(controlSource)
	})
}

// RecordSlotClaim records a claim attempt with one of the Claim* results.
func RecordSlotClaim(result string) {
	slotClaims.WithLabelValues(result).Inc()
}

// RecordReconnect records a reconnect after slot loss.
func RecordReconnect() {
	reconnects.Inc()
}

// RecordDisconnect records a slot released on shutdown.
func RecordDisconnect() {
	disconnects.Inc()
}

// RecordOpenFailure records a failed region mapping.
func RecordOpenFailure() {
	openFailures.Inc()
}

// RecordBroadcast records a coordinator push and how many slots it reached.
// changed selects the change trigger over the interval trigger.
func RecordBroadcast(changed bool, live int) {
	if changed {
		broadcastOnChange.Inc()
	} else {
		broadcastOnInterval.Inc()
	}
	liveParticipants.Set(float64(live))
}

// RecordControlSource records a participant switching control source.
func RecordControlSource(source string) {
	controlSource.WithLabelValues(source).Inc()
}
