package plugin

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/gainlink/pkg/framework/param"
	"github.com/justyntemme/gainlink/pkg/framework/process"
)

type halfGain struct {
	*BaseProcessor
	blocks int
}

func (h *halfGain) ProcessAudio(ctx *process.Context) {
	h.blocks++
	g := float32(ctx.Params().Plain(0))
	for _, ch := range ctx.Channels() {
		for i := range ch {
			ch[i] *= g
		}
	}
}

func newHalfGain(t *testing.T) *halfGain {
	t.Helper()
	p := &halfGain{BaseProcessor: NewBaseProcessor(Info{ID: "com.gainlink.test", Name: "Half"})}
	require.NoError(t, p.Parameters().Add(param.New(0, "Gain").Default(0.5).Build()))
	return p
}

func TestHostProcessesInPlace(t *testing.T) {
	p := newHalfGain(t)
	h, err := NewHost(p, 48000, 64)
	require.NoError(t, err)

	buf := [][]float32{{1, 1}, {-1, 0.5}}
	h.Process(buf)

	assert.Equal(t, [][]float32{{0.5, 0.5}, {-0.5, 0.25}}, buf)
	assert.Equal(t, 1, p.blocks)
	assert.Equal(t, 48000.0, p.SampleRate())
	assert.Equal(t, int32(64), p.MaxBlockSize())
	assert.Equal(t, "Half", p.Info().Name)
}

func TestCallbacks(t *testing.T) {
	p := newHalfGain(t)
	var (
		initRate float64
		active   []bool
		resets   int
	)
	p.OnInitialize(func(sr float64, _ int32) error { initRate = sr; return nil })
	p.OnSetActive(func(a bool) error { active = append(active, a); return nil })
	p.OnReset(func() { resets++ })

	h, err := NewHost(p, 44100, 32)
	require.NoError(t, err)
	require.NoError(t, h.Stop())

	assert.Equal(t, 44100.0, initRate)
	assert.Equal(t, []bool{true, false}, active)
	assert.Equal(t, 1, resets)
}

func TestInitializeErrors(t *testing.T) {
	p := newHalfGain(t)
	_, err := NewHost(p, 0, 32)
	assert.Error(t, err)

	boom := errors.New("boom")
	p.OnInitialize(func(float64, int32) error { return boom })
	_, err = NewHost(p, 48000, 32)
	assert.ErrorIs(t, err, boom)
}

func TestHostRecordsProcessorEdits(t *testing.T) {
	p := newHalfGain(t)
	h, err := NewHost(p, 48000, 64)
	require.NoError(t, err)

	p.Parameters().SetPlain(0, 0.25)
	assert.Zero(t, h.Edits(), "silent sets are not reported")

	assert.True(t, p.Parameters().SetPlainNotifying(0, 0.75))
	assert.False(t, p.Parameters().SetPlainNotifying(0, 0.75), "no change, no report")
	assert.Equal(t, uint64(1), h.Edits())
	assert.Equal(t, uint32(0), h.LastEdit())

	require.NoError(t, h.Stop())
	p.Parameters().SetPlainNotifying(0, 0.1)
	assert.Equal(t, uint64(1), h.Edits())
}
