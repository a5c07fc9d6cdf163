// Package state saves and restores a processor's parameters as the opaque
// blob a host stores with its project.
package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/justyntemme/gainlink/pkg/framework/param"
)

const (
	magic   = "GLNK"
	version = uint32(1)

	// maxStringLen bounds strings read back from a blob.
	maxStringLen = 1 << 12

	// maxParameters bounds the parameter count read back from a blob.
	maxParameters = 1 << 10
)

// ErrInvalidFormat is returned by Load for data that is not a state blob.
var ErrInvalidFormat = errors.New("invalid state format")

// SaveFunc writes extra state after the parameters.
type SaveFunc func(w io.Writer) error

// LoadFunc reads back what the matching SaveFunc wrote.
type LoadFunc func(r io.Reader) error

// ValuesFunc returns the plain values to save, keyed by parameter ID.
type ValuesFunc func() map[uint32]float64

// Manager handles state saving and loading for one parameter registry.
type Manager struct {
	version  uint32
	registry *param.Registry
	values   ValuesFunc

	save SaveFunc
	load LoadFunc
}

// NewManager creates a state manager that saves the registry's current
// values.
func NewManager(registry *param.Registry) *Manager {
	return &Manager{
		version:  version,
		registry: registry,
		values:   registry.Values,
	}
}

// SetValuesFunc replaces where saved parameter values come from.
func (m *Manager) SetValuesFunc(fn ValuesFunc) {
	m.values = fn
}

// SetCustom sets the functions for state beyond parameters. Both must
// agree on the layout.
func (m *Manager) SetCustom(save SaveFunc, load LoadFunc) {
	m.save = save
	m.load = load
}

// Save writes the state to w.
func (m *Manager) Save(w io.Writer) error {
	if _, err := io.WriteString(w, magic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, m.version); err != nil {
		return err
	}

	values := m.values()
	ids := slices.Sorted(maps.Keys(values))
	if err := binary.Write(w, binary.LittleEndian, uint32(len(ids))); err != nil {
		return err
	}
	for _, id := range ids {
		if err := binary.Write(w, binary.LittleEndian, id); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, values[id]); err != nil {
			return err
		}
	}

	if m.save == nil {
		return binary.Write(w, binary.LittleEndian, uint32(0))
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(1)); err != nil {
		return err
	}
	return m.save(w)
}

// Load reads state from r into the registry and returns the plain values
// it restored. IDs the registry does not know are skipped. Nothing is
// applied unless every parameter record decodes.
func (m *Manager) Load(r io.Reader) (map[uint32]float64, error) {
	header := make([]byte, len(magic))
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	if string(header) != magic {
		return nil, ErrInvalidFormat
	}

	var v uint32
	if err := read(r, &v); err != nil {
		return nil, err
	}
	if v > m.version {
		return nil, fmt.Errorf("state version %d is newer than supported version %d", v, m.version)
	}

	var count uint32
	if err := read(r, &count); err != nil {
		return nil, err
	}
	if count > maxParameters {
		return nil, fmt.Errorf("%w: %d parameters", ErrInvalidFormat, count)
	}

	type record struct {
		ID    uint32
		Plain float64
	}
	records := make([]record, count)
	if err := read(r, records); err != nil {
		return nil, err
	}

	restored := make(map[uint32]float64, min(int(count), int(m.registry.Count())))
	for _, rec := range records {
		if m.registry.SetPlain(rec.ID, rec.Plain) {
			restored[rec.ID] = m.registry.Plain(rec.ID)
		}
	}

	var hasCustom uint32
	if err := read(r, &hasCustom); err != nil {
		return nil, err
	}
	if hasCustom != 0 && m.load != nil {
		if err := m.load(r); err != nil {
			return nil, fmt.Errorf("custom state: %w", err)
		}
	}
	return restored, nil
}

// read decodes a little-endian value, reporting a short blob as
// ErrInvalidFormat.
func read(r io.Reader, data any) error {
	err := binary.Read(r, binary.LittleEndian, data)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	return err
}

// WriteString writes a length-prefixed string.
func WriteString(w io.Writer, s string) error {
	if len(s) > maxStringLen {
		s = s[:maxStringLen]
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// ReadString reads a string written by WriteString.
func ReadString(r io.Reader) (string, error) {
	var n uint16
	if err := read(r, &n); err != nil {
		return "", err
	}
	if int(n) > maxStringLen {
		return "", fmt.Errorf("%w: string of %d bytes", ErrInvalidFormat, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	return string(buf), nil
}

// WriteInt32 writes a little-endian int32.
func WriteInt32(w io.Writer, v int32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

// ReadInt32 reads a little-endian int32.
func ReadInt32(r io.Reader) (int32, error) {
	var v int32
	err := read(r, &v)
	return v, err
}
