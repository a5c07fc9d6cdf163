package state

import (
	"bytes"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/gainlink/pkg/framework/param"
)

func newRegistry(t *testing.T) *param.Registry {
	t.Helper()
	r := param.NewRegistry()
	require.NoError(t, r.Add(
		param.DecibelParameter(1, "Gain", -24, 12, 0).Build(),
		param.DecibelParameter(2, "Target", -48, 0, -18).Build(),
		param.ToggleParameter(3, "Auto", false).Build(),
	))
	return r
}

func TestSaveLoadRoundTrip(t *testing.T) {
	src := newRegistry(t)
	src.SetPlain(1, 4.5)
	src.SetPlain(2, -22)
	src.SetPlain(3, 1)

	var buf bytes.Buffer
	require.NoError(t, NewManager(src).Save(&buf))

	dst := newRegistry(t)
	restored, err := NewManager(dst).Load(&buf)
	require.NoError(t, err)

	want := map[uint32]float64{1: 4.5, 2: -22, 3: 1}
	if diff := cmp.Diff(want, restored, cmpApprox); diff != "" {
		t.Errorf("restored values mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(src.Values(), dst.Values(), cmpApprox); diff != "" {
		t.Errorf("registry mismatch (-want +got):\n%s", diff)
	}
}

var cmpApprox = cmp.Comparer(func(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
})

func TestLoadSkipsUnknownIDs(t *testing.T) {
	src := newRegistry(t)
	require.NoError(t, src.Add(param.DecibelParameter(9, "Extra", -10, 10, 3).Build()))

	var buf bytes.Buffer
	require.NoError(t, NewManager(src).Save(&buf))

	restored, err := NewManager(newRegistry(t)).Load(&buf)
	require.NoError(t, err)
	assert.Len(t, restored, 3)
	assert.NotContains(t, restored, uint32(9))
}

func TestValuesFunc(t *testing.T) {
	src := newRegistry(t)
	m := NewManager(src)
	m.SetValuesFunc(func() map[uint32]float64 {
		v := src.Values()
		v[1] = -6
		return v
	})

	var buf bytes.Buffer
	require.NoError(t, m.Save(&buf))

	dst := newRegistry(t)
	_, err := NewManager(dst).Load(&buf)
	require.NoError(t, err)
	assert.InDelta(t, -6, dst.Plain(1), 1e-9)
	assert.InDelta(t, 0, src.Plain(1), 1e-9)
}

func TestCustomState(t *testing.T) {
	src := NewManager(newRegistry(t))
	src.SetCustom(func(w io.Writer) error {
		if err := WriteString(w, "Lead Vox"); err != nil {
			return err
		}
		return WriteInt32(w, 3)
	}, nil)

	var buf bytes.Buffer
	require.NoError(t, src.Save(&buf))

	var label string
	var n int32
	dst := NewManager(newRegistry(t))
	dst.SetCustom(nil, func(r io.Reader) error {
		var err error
		if label, err = ReadString(r); err != nil {
			return err
		}
		n, err = ReadInt32(r)
		return err
	})
	_, err := dst.Load(&buf)
	require.NoError(t, err)
	assert.Equal(t, "Lead Vox", label)
	assert.Equal(t, int32(3), n)
}

func TestLoadWithoutCustomLoaderIgnoresExtra(t *testing.T) {
	src := NewManager(newRegistry(t))
	src.SetCustom(func(w io.Writer) error { return WriteString(w, "ignored") }, nil)

	var buf bytes.Buffer
	require.NoError(t, src.Save(&buf))

	_, err := NewManager(newRegistry(t)).Load(&buf)
	assert.NoError(t, err)
}

func TestLoadRejectsGarbage(t *testing.T) {
	m := NewManager(newRegistry(t))

	_, err := m.Load(bytes.NewReader([]byte("JUCE0000")))
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = m.Load(bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = m.Load(bytes.NewReader([]byte{'G', 'L', 'N', 'K', 9, 0, 0, 0}))
	assert.ErrorContains(t, err, "newer than supported")

	_, err = m.Load(bytes.NewReader([]byte{'G', 'L', 'N', 'K', 1, 0, 0, 0, 5, 0, 0, 0}))
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestLoadRejectsHugeCount(t *testing.T) {
	tests := []struct {
		name string
		blob []byte
	}{
		{"count over limit", []byte{'G', 'L', 'N', 'K', 1, 0, 0, 0, 0, 0, 0, 4}},
		{"max count", []byte{'G', 'L', 'N', 'K', 1, 0, 0, 0, 0xff, 0xff, 0xff, 0xff}},
		{"truncated version", []byte{'G', 'L', 'N', 'K', 1, 0}},
		{"missing custom flag", []byte{'G', 'L', 'N', 'K', 1, 0, 0, 0, 0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(newRegistry(t)).Load(bytes.NewReader(tt.blob))
			assert.ErrorIs(t, err, ErrInvalidFormat)
		})
	}
}

func TestTruncatedLoadLeavesRegistryUntouched(t *testing.T) {
	src := newRegistry(t)
	src.SetPlain(1, 4.5)
	src.SetPlain(2, -22)

	var buf bytes.Buffer
	require.NoError(t, NewManager(src).Save(&buf))
	blob := buf.Bytes()[:len(buf.Bytes())-10]

	dst := newRegistry(t)
	_, err := NewManager(dst).Load(bytes.NewReader(blob))
	require.ErrorIs(t, err, ErrInvalidFormat)
	assert.InDelta(t, 0, dst.Plain(1), 1e-9)
	assert.InDelta(t, -18, dst.Plain(2), 1e-9)
}

func TestReadStringRejectsOversize(t *testing.T) {
	_, err := ReadString(bytes.NewReader([]byte{0xff, 0xff}))
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = ReadString(bytes.NewReader([]byte{4, 0, 'a'}))
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = ReadInt32(bytes.NewReader([]byte{1}))
	assert.ErrorIs(t, err, ErrInvalidFormat)
}
