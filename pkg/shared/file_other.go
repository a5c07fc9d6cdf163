//go:build !unix

package shared

import (
	"errors"
	"fmt"
	"os"
)

// FileBacking is not supported on this platform; Map always fails and the
// registry runs standalone.
type FileBacking struct {
	path string
}

// NewFileBacking creates a backing for path.
func NewFileBacking(path string) *FileBacking {
	return &FileBacking{path: path}
}

// Path returns the backing file path.
func (f *FileBacking) Path() string {
	return f.path
}

// Map implements Backing.
func (f *FileBacking) Map() (*Region, bool, error) {
	return nil, false, fmt.Errorf("mapping %s: %w", f.path, errors.ErrUnsupported)
}

// Close implements Backing.
func (f *FileBacking) Close() error {
	return nil
}

// Remove deletes the backing file.
func (f *FileBacking) Remove() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
