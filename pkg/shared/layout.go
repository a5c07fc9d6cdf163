// Package shared defines the fixed-layout registry that coordinator and
// participant instances use to see each other, together with the
// operations that allocate, refresh and release its slots.
//
// Every field of the region is an atomic word so that independent
// processes can map the same bytes and read or write them without locks.
// The struct layout is the wire format: changing field order or width
// requires bumping Version.
package shared

import (
	"math"
	"sync/atomic"
)

const (
	// MaxSlots is the number of participant slots in the region.
	MaxSlots = 32

	// Magic identifies a gainlink region ("GLNK" little endian).
	Magic uint32 = 0x4b4e4c47

	// Version is bumped whenever the layout changes.
	Version uint32 = 2

	// LabelSize is the byte capacity of a slot label, including the
	// terminating zero.
	LabelSize = 64

	labelWords = LabelSize / 4
)

// Float32 is an atomically accessed float stored as its IEEE-754 bits.
type Float32 struct {
	bits atomic.Uint32
}

// Load returns the stored value.
func (f *Float32) Load() float32 { return math.Float32frombits(f.bits.Load()) }

// Store sets the value.
func (f *Float32) Store(v float32) { f.bits.Store(math.Float32bits(v)) }

// Header identifies the region layout.
type Header struct {
	Magic     atomic.Uint32
	Version   atomic.Uint32
	SlotCount atomic.Uint32
	SlotSize  atomic.Uint32
	Created   atomic.Int64 // unix ms
}

// ControlRecord carries the values a participant should adopt and who
// asked for them.
type ControlRecord struct {
	TargetDB    Float32
	GainDB      Float32
	CeilingDB   Float32
	RiderAmount Float32

	AutoEnabled           atomic.Bool
	ControlledByBroadcast atomic.Bool
	PerInstanceOverride   atomic.Bool
	_                     uint32

	UpdateTime atomic.Int64 // unix ms
}

// MeteringRecord is a participant's latest metering. The first four
// fields describe the input, before any gain stage; the Output pair is
// measured after the ceiling, which is what reaches the bus.
type MeteringRecord struct {
	RMSDB        Float32
	PeakDB       Float32
	CrestDB      Float32
	Correlation  Float32
	AppliedGain  Float32 // linear
	OutputRMSDB  Float32
	OutputPeakDB Float32
	_            uint32
}

// Slot is one participant's entry.
type Slot struct {
	Active     atomic.Bool
	SourceType atomic.Int32
	Identity   atomic.Uint64
	LastUpdate atomic.Int64 // unix ms
	Label      [labelWords]atomic.Uint32
	Metering   MeteringRecord
	Control    ControlRecord
}

// CoordinatorMetering is the coordinator's own analysis, mirrored for
// observers.
type CoordinatorMetering struct {
	RMSDB          Float32
	PeakDB         Float32
	CrestDB        Float32
	Correlation    Float32
	ShortTermLUFS  Float32
	IntegratedLUFS Float32
	Width          Float32
	_              uint32
}

// GlobalState holds the coordinator's broadcast values, context tags and
// cosmetic settings shared by every instance.
type GlobalState struct {
	TargetDB         Float32
	GainDB           Float32
	CeilingDB        Float32
	LoudnessTargetDB Float32
	RiderAmount      Float32

	AutoEnabled     atomic.Bool
	RiderEnabled    atomic.Bool
	LoudnessEnabled atomic.Bool

	Genre     atomic.Int32
	Source    atomic.Int32
	Situation atomic.Int32
	Theme     atomic.Int32
	KnobStyle atomic.Int32
	_         uint32

	CoordinatorInit atomic.Int64 // unix ms, 0 when no coordinator ran
	LastBroadcast   atomic.Int64 // unix ms

	Metering CoordinatorMetering
}

// Region is the complete shared structure.
type Region struct {
	Header Header
	Global GlobalState
	Slots  [MaxSlots]Slot
}

func (s *Slot) storeLabel(label string) {
	var buf [LabelSize]byte
	copy(buf[:LabelSize-1], label)
	for w := 0; w < labelWords; w++ {
		b := buf[w*4 : w*4+4]
		s.Label[w].Store(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
	}
}

func (s *Slot) loadLabel() string {
	var buf [LabelSize]byte
	for w := 0; w < labelWords; w++ {
		v := s.Label[w].Load()
		buf[w*4] = byte(v)
		buf[w*4+1] = byte(v >> 8)
		buf[w*4+2] = byte(v >> 16)
		buf[w*4+3] = byte(v >> 24)
	}
	n := 0
	for n < LabelSize && buf[n] != 0 {
		n++
	}
	return string(buf[:n])
}
