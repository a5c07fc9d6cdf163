package shared

import "errors"

var (
	// ErrUnavailable is returned when the region could not be mapped.
	ErrUnavailable = errors.New("shared registry unavailable")
	// ErrFull is returned when every slot is owned and fresh.
	ErrFull = errors.New("no free registry slot")
	// ErrBadSlot is returned for an index outside [0, MaxSlots).
	ErrBadSlot = errors.New("slot index out of range")
	// ErrNotOwner is returned when the slot's identity is not the caller's.
	ErrNotOwner = errors.New("slot owned by another identity")
	// ErrSlotInactive is returned when the caller still holds the identity
	// but the slot was cleared.
	ErrSlotInactive = errors.New("slot is no longer active")
	// ErrLayoutMismatch is returned when an existing region carries a
	// different magic, version or geometry.
	ErrLayoutMismatch = errors.New("shared region layout mismatch")
)

// Lost reports whether err means the caller no longer owns its slot and
// should reconnect.
func Lost(err error) bool {
	return errors.Is(err, ErrNotOwner) || errors.Is(err, ErrSlotInactive)
}
