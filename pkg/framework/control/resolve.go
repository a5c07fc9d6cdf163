// Package control decides, once per block, which source governs an
// instance's effective parameters and pushes adopted values into the
// instance's parameter store.
package control

import (
	"time"

	"github.com/justyntemme/gainlink/pkg/shared"
)

// Source identifies who decides an instance's parameters.
type Source int

const (
	// SourceNone keeps whatever values the instance holds.
	SourceNone Source = iota
	// SourceLocal uses the instance's own manual values and ignores shared
	// data.
	SourceLocal
	// SourceOverride adopts a per-instance command from the coordinator.
	SourceOverride
	// SourceBroadcast adopts the coordinator's fresh broadcast.
	SourceBroadcast
)

// String returns the source name.
func (s Source) String() string {
	switch s {
	case SourceNone:
		return "none"
	case SourceLocal:
		return "local"
	case SourceOverride:
		return "override"
	case SourceBroadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

// Adopted reports whether values come from the slot's control record.
func (s Source) Adopted() bool {
	return s == SourceOverride || s == SourceBroadcast
}

// Inputs is everything Resolve looks at.
type Inputs struct {
	// LocalOverride is set when the user pinned this instance to its own
	// values.
	LocalOverride bool
	// Connected is false when the instance owns no slot; Control is then
	// ignored.
	Connected bool
	Control   shared.Control
	Now       time.Time
	// Freshness is how long a broadcast stays binding.
	Freshness time.Duration
}

// Decision is the outcome of Resolve. Control is only meaningful when
// Source.Adopted.
type Decision struct {
	Source  Source
	Control shared.Control
}

// Resolve applies the precedence local > per-instance override > fresh
// broadcast > none.
func Resolve(in Inputs) Decision {
	switch {
	case in.LocalOverride:
		return Decision{Source: SourceLocal}
	case !in.Connected:
		return Decision{Source: SourceNone}
	case in.Control.PerInstanceOverride:
		return Decision{Source: SourceOverride, Control: in.Control}
	case in.Control.FreshBroadcast(in.Now, in.Freshness):
		return Decision{Source: SourceBroadcast, Control: in.Control}
	default:
		return Decision{Source: SourceNone}
	}
}
