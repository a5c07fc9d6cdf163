package shared

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/justyntemme/gainlink/pkg/framework/logging"
)

// Timing windows of the registry protocol.
const (
	// ReclaimAfter is how long a slot may go without a refresh before a new
	// instance may take it over.
	ReclaimAfter = 5 * time.Second
	// ActiveWindow is how recent a refresh must be for observers to count
	// a participant as connected.
	ActiveWindow = 3 * time.Second
	// LiveWindow is how recent a refresh must be for the coordinator to
	// broadcast into a slot.
	LiveWindow = 2 * time.Second
	// FreshnessWindow is how long a broadcast stays binding.
	FreshnessWindow = 5 * time.Second
)

// ControlField selects control record fields for a broadcast.
type ControlField uint8

const (
	FieldTarget ControlField = 1 << iota
	FieldGain
	FieldCeiling
	FieldAuto
	FieldRider

	AllFields = FieldTarget | FieldGain | FieldCeiling | FieldAuto | FieldRider
)

// SlotMeta describes an instance when it claims a slot.
type SlotMeta struct {
	Label      string
	SourceType int
	// Control seeds the slot's control record, so that a broadcast that
	// only carries some fields leaves the rest at the instance's own values.
	Control Control
}

// Registry is a handle on a shared region. A Registry whose backing failed
// to map is unavailable: reads return defaults, writes are no-ops and
// owner operations return ErrUnavailable.
//
// All methods are safe for concurrent use and never block, except
// OpenOrCreate and Close.
type Registry struct {
	backing      Backing
	clock        clock.PassiveClock
	log          logr.Logger
	reclaimAfter time.Duration

	region atomic.Pointer[Region]
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the time source.
func WithClock(c clock.PassiveClock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l logr.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithReclaimAfter overrides ReclaimAfter.
func WithReclaimAfter(d time.Duration) Option {
	return func(r *Registry) { r.reclaimAfter = d }
}

// New creates a registry over backing. It does not map anything yet.
func New(backing Backing, opts ...Option) *Registry {
	r := &Registry{
		backing:      backing,
		clock:        clock.RealClock{},
		log:          logr.Discard(),
		reclaimAfter: ReclaimAfter,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OpenOrCreate maps the backing, creating and initializing it if needed.
// Calling it again after success is a no-op.
func (r *Registry) OpenOrCreate() error {
	if r.region.Load() != nil {
		return nil
	}

	region, created, err := r.backing.Map()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if r.region.CompareAndSwap(nil, region) {
		r.log.V(logging.DEFAULT).Info("Shared registry mapped", "created", created)
	}
	return nil
}

// Available reports whether the region is mapped.
func (r *Registry) Available() bool {
	return r.region.Load() != nil
}

// Close unmaps the region. The registry is unavailable afterwards.
func (r *Registry) Close() error {
	if r.region.Swap(nil) == nil {
		return nil
	}
	return r.backing.Close()
}

// Now returns the registry clock's current time.
func (r *Registry) Now() time.Time {
	return r.clock.Now()
}

func (r *Registry) nowMs() int64 {
	return r.clock.Now().UnixMilli()
}

func (r *Registry) slot(i int) (*Slot, error) {
	region := r.region.Load()
	if region == nil {
		return nil, ErrUnavailable
	}
	if i < 0 || i >= MaxSlots {
		return nil, fmt.Errorf("%w: %d", ErrBadSlot, i)
	}
	return &region.Slots[i], nil
}

// FindAvailableSlot returns the first inactive slot, or failing that the
// first slot whose last refresh is older than the reclaim threshold, which
// it marks inactive. It returns -1 when the table is full or the registry
// is unavailable.
//
// Finding is not claiming: use Claim to take a slot.
func (r *Registry) FindAvailableSlot() int {
	region := r.region.Load()
	if region == nil {
		return -1
	}
	return r.findAvailable(region, r.nowMs())
}

func (r *Registry) findAvailable(region *Region, now int64) int {
	for i := range region.Slots {
		if !region.Slots[i].Active.Load() {
			return i
		}
	}

	threshold := r.reclaimAfter.Milliseconds()
	for i := range region.Slots {
		s := &region.Slots[i]
		last := s.LastUpdate.Load()
		if now-last <= threshold {
			continue
		}
		// Bumping the timestamp makes the slot fresh again, so of several
		// callers racing over the same stale slot exactly one reclaims it.
		if s.LastUpdate.CompareAndSwap(last, now) {
			s.Active.Store(false)
			return i
		}
	}
	return -1
}

// Claim takes a slot for identity and stamps its metadata. It returns the
// slot index, or ErrFull when no slot is free.
func (r *Registry) Claim(identity uint64, meta SlotMeta) (int, error) {
	region := r.region.Load()
	if region == nil {
		return -1, ErrUnavailable
	}

	now := r.nowMs()
	for attempt := 0; attempt < MaxSlots; attempt++ {
		i := r.findAvailable(region, now)
		if i < 0 {
			break
		}

		s := &region.Slots[i]
		if !s.Active.CompareAndSwap(false, true) {
			continue
		}

		s.Identity.Store(identity)
		s.LastUpdate.Store(now)
		s.SourceType.Store(int32(meta.SourceType))
		s.storeLabel(meta.Label)
		s.Metering.store(Metering{
			RMSDB:        -120,
			PeakDB:       -120,
			Correlation:  1,
			AppliedGain:  1,
			OutputRMSDB:  -120,
			OutputPeakDB: -120,
		})
		s.Control.storeValues(meta.Control)
		s.Control.clearFlags()

		r.log.V(logging.DEFAULT).Info("Claimed registry slot", "slot", i, "identity", identity, "label", meta.Label)
		return i, nil
	}
	return -1, ErrFull
}

// verifyOwner checks that identity still owns an active slot i.
func verifyOwner(s *Slot, identity uint64) error {
	if s.Identity.Load() != identity {
		return ErrNotOwner
	}
	if !s.Active.Load() {
		return ErrSlotInactive
	}
	return nil
}

// touch advances LastUpdate to now without ever moving it backwards.
func touch(s *Slot, now int64) {
	for {
		last := s.LastUpdate.Load()
		if now <= last || s.LastUpdate.CompareAndSwap(last, now) {
			return
		}
	}
}

// Touch refreshes the slot's timestamp on behalf of its owner.
func (r *Registry) Touch(i int, identity uint64) error {
	s, err := r.slot(i)
	if err != nil {
		return err
	}
	if err := verifyOwner(s, identity); err != nil {
		return err
	}
	touch(s, r.nowMs())
	return nil
}

// UpdateSlot publishes metering on behalf of the slot's owner and refreshes
// its timestamp. It fails with ErrNotOwner or ErrSlotInactive when identity
// no longer owns the slot.
func (r *Registry) UpdateSlot(i int, identity uint64, m Metering) error {
	s, err := r.slot(i)
	if err != nil {
		return err
	}
	if err := verifyOwner(s, identity); err != nil {
		return err
	}
	s.Metering.store(m)
	touch(s, r.nowMs())
	return nil
}

// SetMeta updates the label and source tag on behalf of the slot's owner.
func (r *Registry) SetMeta(i int, identity uint64, label string, sourceType int) error {
	s, err := r.slot(i)
	if err != nil {
		return err
	}
	if err := verifyOwner(s, identity); err != nil {
		return err
	}
	s.storeLabel(label)
	s.SourceType.Store(int32(sourceType))
	return nil
}

// SeedControl stores the owner's own values into its control record
// without touching the override and broadcast flags, so a later broadcast
// of some fields leaves the others at what the owner last chose.
func (r *Registry) SeedControl(i int, identity uint64, c Control) error {
	s, err := r.slot(i)
	if err != nil {
		return err
	}
	if err := verifyOwner(s, identity); err != nil {
		return err
	}
	s.Control.storeValues(c)
	return nil
}

// Release frees slot i if identity still owns it. It reports whether the
// slot was released; a slot taken over by another instance is left alone.
func (r *Registry) Release(i int, identity uint64) bool {
	s, err := r.slot(i)
	if err != nil {
		return false
	}
	if !s.Identity.CompareAndSwap(identity, 0) {
		return false
	}
	s.Active.Store(false)
	s.LastUpdate.Store(0)
	s.Control.clearFlags()
	r.log.V(logging.DEFAULT).Info("Released registry slot", "slot", i, "identity", identity)
	return true
}

// ClearAll marks every slot inactive and forgets its timestamps and
// control flags. The coordinator calls it once at startup to drop state
// left by a crashed session.
func (r *Registry) ClearAll() {
	region := r.region.Load()
	if region == nil {
		return
	}
	for i := range region.Slots {
		s := &region.Slots[i]
		s.Active.Store(false)
		s.LastUpdate.Store(0)
		s.Control.clearFlags()
	}
	r.log.V(logging.DEFAULT).Info("Cleared all registry slots")
}

// Identity returns the identity stored in slot i, or 0.
func (r *Registry) Identity(i int) uint64 {
	s, err := r.slot(i)
	if err != nil {
		return 0
	}
	return s.Identity.Load()
}

// ReadSlot returns a copy of slot i. A slot that has gone without a
// refresh for longer than the reclaim threshold reads as inactive.
func (r *Registry) ReadSlot(i int) (SlotSnapshot, error) {
	s, err := r.slot(i)
	if err != nil {
		return SlotSnapshot{Index: i, Control: DefaultControl()}, err
	}
	return r.snapshot(i, s, r.nowMs()), nil
}

func (r *Registry) snapshot(i int, s *Slot, now int64) SlotSnapshot {
	last := s.LastUpdate.Load()
	return SlotSnapshot{
		Index:      i,
		Active:     s.Active.Load() && now-last <= r.reclaimAfter.Milliseconds(),
		Identity:   s.Identity.Load(),
		LastUpdate: last,
		Label:      s.loadLabel(),
		SourceType: int(s.SourceType.Load()),
		Metering:   s.Metering.load(),
		Control:    s.Control.load(),
	}
}

// Scan calls fn for every slot in index order until fn returns false.
func (r *Registry) Scan(fn func(SlotSnapshot) bool) {
	region := r.region.Load()
	if region == nil {
		return
	}
	now := r.nowMs()
	for i := range region.Slots {
		if !fn(r.snapshot(i, &region.Slots[i], now)) {
			return
		}
	}
}

// Live returns the slots that are active and were refreshed within window.
func (r *Registry) Live(window time.Duration) []SlotSnapshot {
	var live []SlotSnapshot
	now := r.Now()
	r.Scan(func(s SlotSnapshot) bool {
		if s.LiveWithin(now, window) {
			live = append(live, s)
		}
		return true
	})
	return live
}

// ActiveCount counts slots that are active and were refreshed within
// window. It does not allocate.
func (r *Registry) ActiveCount(window time.Duration) int {
	region := r.region.Load()
	if region == nil {
		return 0
	}
	now := r.nowMs()
	limit := window.Milliseconds()
	n := 0
	for i := range region.Slots {
		s := &region.Slots[i]
		if s.Active.Load() && now-s.LastUpdate.Load() < limit {
			n++
		}
	}
	return n
}

// ReadControl returns slot i's control record. It does not allocate and is
// safe to call from the audio thread.
func (r *Registry) ReadControl(i int) (Control, error) {
	s, err := r.slot(i)
	if err != nil {
		return DefaultControl(), err
	}
	return s.Control.load(), nil
}

// WriteControl stores c into slot i as a per-instance override, which takes
// precedence over broadcasts until ReleaseControl.
func (r *Registry) WriteControl(i int, c Control) error {
	s, err := r.slot(i)
	if err != nil {
		return err
	}
	s.Control.storeValues(c)
	s.Control.ControlledByBroadcast.Store(false)
	s.Control.PerInstanceOverride.Store(true)
	s.Control.UpdateTime.Store(r.nowMs())
	return nil
}

// ReleaseControl drops a per-instance override and any broadcast claim on
// slot i, so the participant keeps its own values until the next broadcast.
func (r *Registry) ReleaseControl(i int) error {
	s, err := r.slot(i)
	if err != nil {
		return err
	}
	s.Control.PerInstanceOverride.Store(false)
	s.Control.ControlledByBroadcast.Store(false)
	return nil
}

// Broadcast writes the selected fields of c into every slot refreshed within
// window, marks them broadcast-controlled and stamps the control time.
// Slots under a per-instance override are skipped. It returns the number of
// slots written and does not allocate.
func (r *Registry) Broadcast(c Control, fields ControlField, window time.Duration) int {
	region := r.region.Load()
	if region == nil {
		return 0
	}
	now := r.nowMs()
	limit := window.Milliseconds()
	n := 0
	for i := range region.Slots {
		s := &region.Slots[i]
		if now-s.LastUpdate.Load() >= limit {
			continue
		}
		if s.Control.PerInstanceOverride.Load() {
			continue
		}
		s.Control.storeBroadcast(c, fields, now)
		n++
	}
	return n
}

// BroadcastSlot writes the selected fields of c into slot i alone, the way
// Broadcast does for every live slot. It reports false when the slot is
// under a per-instance override.
func (r *Registry) BroadcastSlot(i int, c Control, fields ControlField) (bool, error) {
	s, err := r.slot(i)
	if err != nil {
		return false, err
	}
	if s.Control.PerInstanceOverride.Load() {
		return false, nil
	}
	s.Control.storeBroadcast(c, fields, r.nowMs())
	return true, nil
}

// PublishGlobal stores the coordinator's broadcast parameters and context
// tags and stamps the broadcast time.
func (r *Registry) PublishGlobal(g Global) {
	region := r.region.Load()
	if region == nil {
		return
	}
	region.Global.storeParams(g)
	region.Global.LastBroadcast.Store(r.nowMs())
}

// PublishCoordinatorMetering stores the coordinator's own analysis.
func (r *Registry) PublishCoordinatorMetering(m CoordinatorLevels) {
	region := r.region.Load()
	if region == nil {
		return
	}
	region.Global.storeMetering(m)
}

// MarkCoordinatorStart records when the coordinator came up.
func (r *Registry) MarkCoordinatorStart() {
	region := r.region.Load()
	if region == nil {
		return
	}
	region.Global.CoordinatorInit.Store(r.nowMs())
}

// SetCosmetic stores the shared theme and knob style indices.
func (r *Registry) SetCosmetic(theme, knobStyle int) {
	region := r.region.Load()
	if region == nil {
		return
	}
	region.Global.Theme.Store(int32(theme))
	region.Global.KnobStyle.Store(int32(knobStyle))
}

// Global returns a copy of the global state, or DefaultGlobal when the
// registry is unavailable.
func (r *Registry) Global() Global {
	region := r.region.Load()
	if region == nil {
		return DefaultGlobal()
	}
	return region.Global.load()
}

// Created returns when the region was initialized, or the zero time.
func (r *Registry) Created() time.Time {
	region := r.region.Load()
	if region == nil {
		return time.Time{}
	}
	return time.UnixMilli(region.Header.Created.Load())
}
