//go:build unix

package shared

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
	"unsafe"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// FileBacking maps a file that every instance on the machine opens by the
// same path.
//
// First-time creation is serialized. Every opener holds an exclusive flock
// while it sizes the file and inspects the header, and whoever first finds
// a zero header writes it. A creator that crashed before initializing
// leaves a zero header behind, which the next opener repairs.
type FileBacking struct {
	path string

	mu     sync.Mutex
	fd     int
	data   []byte
	region *Region
}

// NewFileBacking creates a backing for path. Nothing is opened until Map.
func NewFileBacking(path string) *FileBacking {
	return &FileBacking{path: path, fd: -1}
}

// Path returns the backing file path.
func (f *FileBacking) Path() string {
	return f.path
}

// Map implements Backing.
func (f *FileBacking) Map() (*Region, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.region != nil {
		return f.region, false, nil
	}

	fd, err := openExclusive(f.path)
	if err != nil {
		return nil, false, err
	}

	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		_ = unix.Close(fd)
		return nil, false, fmt.Errorf("locking %s: %w", f.path, err)
	}
	defer func() { _ = unix.Flock(fd, unix.LOCK_UN) }()

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		_ = unix.Close(fd)
		return nil, false, fmt.Errorf("stat %s: %w", f.path, err)
	}
	if st.Size < int64(RegionSize) {
		if err := unix.Ftruncate(fd, int64(RegionSize)); err != nil {
			_ = unix.Close(fd)
			return nil, false, fmt.Errorf("sizing %s: %w", f.path, err)
		}
	}

	data, err := unix.Mmap(fd, 0, RegionSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, false, fmt.Errorf("mapping %s: %w", f.path, err)
	}

	// mmap returns page-aligned memory, which satisfies the 8-byte alignment
	// the 64-bit atomics in Region need.
	region := (*Region)(unsafe.Pointer(&data[0]))

	// The creator may lose the lock race to an opener, so the header, not
	// O_EXCL, decides who initializes.
	created := region.Header.Magic.Load() == 0
	if created {
		initRegion(region, time.Now())
	} else if err := validateRegion(region); err != nil {
		_ = unix.Munmap(data)
		_ = unix.Close(fd)
		return nil, false, fmt.Errorf("%s: %w", f.path, err)
	}

	f.fd = fd
	f.data = data
	f.region = region
	return region, created, nil
}

// Close implements Backing.
func (f *FileBacking) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.region == nil {
		return nil
	}

	err := multierr.Append(
		wrapErr("unmapping", f.path, unix.Munmap(f.data)),
		wrapErr("closing", f.path, unix.Close(f.fd)),
	)
	f.region = nil
	f.data = nil
	f.fd = -1
	return err
}

// Remove deletes the backing file. Instances that already mapped it keep
// their mapping; new instances create a fresh file.
func (f *FileBacking) Remove() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func openExclusive(path string) (int, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, 0o666)
	if err == nil {
		return fd, nil
	}
	if !errors.Is(err, unix.EEXIST) {
		return -1, fmt.Errorf("creating %s: %w", path, err)
	}

	fd, err = unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("opening %s: %w", path, err)
	}
	return fd, nil
}

func wrapErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s %s: %w", op, path, err)
}
