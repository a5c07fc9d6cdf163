package shared

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unsafe"
)

// RegionSize is the number of bytes a backing must provide.
const RegionSize = int(unsafe.Sizeof(Region{}))

// FileName is the registry file every instance opens by default.
const FileName = "gainlink-registry-v1"

// DefaultPath returns where instances look for the registry file: the
// shared memory filesystem when the machine has one, the temp directory
// otherwise.
func DefaultPath() string {
	if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
		return filepath.Join("/dev/shm", FileName)
	}
	return filepath.Join(os.TempDir(), FileName)
}

// Backing provides the memory the registry lives in.
type Backing interface {
	// Map returns the region, initializing its header if the backing was
	// just created. created reports whether this call did the
	// initialization.
	Map() (region *Region, created bool, err error)
	// Close releases the mapping. The region must not be used afterwards.
	Close() error
}

// MemoryBacking keeps the region on the Go heap. Several registries that
// share one MemoryBacking behave like separate processes mapping the same
// file.
type MemoryBacking struct {
	mu     sync.Mutex
	region *Region
	now    func() time.Time
}

// NewMemoryBacking creates an empty in-memory backing.
func NewMemoryBacking() *MemoryBacking {
	return &MemoryBacking{now: time.Now}
}

// Map implements Backing.
func (m *MemoryBacking) Map() (*Region, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.region == nil {
		m.region = new(Region)
		initRegion(m.region, m.now())
		return m.region, true, nil
	}
	return m.region, false, nil
}

// Close implements Backing. The memory stays valid for other users.
func (m *MemoryBacking) Close() error {
	return nil
}

// initRegion writes the header of a zeroed region. Magic is stored last so
// a reader that sees it also sees the rest of the header.
func initRegion(r *Region, now time.Time) {
	r.Header.Version.Store(Version)
	r.Header.SlotCount.Store(MaxSlots)
	r.Header.SlotSize.Store(uint32(unsafe.Sizeof(Slot{})))
	r.Header.Created.Store(now.UnixMilli())

	r.Global.TargetDB.Store(DefaultTargetDB)
	r.Global.CeilingDB.Store(DefaultCeilingDB)
	r.Global.LoudnessTargetDB.Store(DefaultLoudnessTargetDB)
	for i := range r.Slots {
		r.Slots[i].Control.storeValues(DefaultControl())
	}

	r.Header.Magic.Store(Magic)
}

// validateRegion checks that an existing region was written by a
// compatible build.
func validateRegion(r *Region) error {
	magic := r.Header.Magic.Load()
	version := r.Header.Version.Load()
	slots := r.Header.SlotCount.Load()
	size := r.Header.SlotSize.Load()

	if magic != Magic || version != Version || slots != MaxSlots || size != uint32(unsafe.Sizeof(Slot{})) {
		return fmt.Errorf("%w: magic %#x version %d slots %d slot size %d",
			ErrLayoutMismatch, magic, version, slots, size)
	}
	return nil
}
