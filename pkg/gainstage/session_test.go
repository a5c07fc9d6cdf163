package gainstage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/justyntemme/gainlink/pkg/framework/plugin"
	"github.com/justyntemme/gainlink/pkg/shared"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// session stands in for a set of plugin instances sharing one registry.
// Every instance gets its own registry handle, as separate processes would.
type session struct {
	t       *testing.T
	clock   *testingclock.FakeClock
	backing shared.Backing
}

func newSession(t *testing.T) *session {
	return &session{
		t:       t,
		clock:   testingclock.NewFakeClock(epoch),
		backing: shared.NewMemoryBacking(),
	}
}

func (s *session) registry() *shared.Registry {
	return shared.New(s.backing, shared.WithClock(s.clock))
}

// mapped returns a registry handle that is already open.
func (s *session) mapped() *shared.Registry {
	s.t.Helper()
	reg := s.registry()
	require.NoError(s.t, reg.OpenOrCreate())
	return reg
}

func (s *session) coordinator(opts ...Option) (*Coordinator, *plugin.Host) {
	s.t.Helper()
	c := NewCoordinator(s.registry(), append([]Option{WithClock(s.clock)}, opts...)...)
	h, err := plugin.NewHost(c, testSampleRate, testBlock)
	require.NoError(s.t, err)
	return c, h
}

func (s *session) participant(label string, opts ...Option) (*Participant, *plugin.Host) {
	s.t.Helper()
	opts = append([]Option{WithClock(s.clock), WithLabel(label)}, opts...)
	p := NewParticipant(s.registry(), opts...)
	h, err := plugin.NewHost(p, testSampleRate, testBlock)
	require.NoError(s.t, err)
	s.t.Cleanup(func() { _ = p.Close() })
	return p, h
}

// lateBacking fails its first Map call and then behaves like backing.
type lateBacking struct {
	shared.Backing
	failed bool
}

func (l *lateBacking) Map() (*shared.Region, bool, error) {
	if !l.failed {
		l.failed = true
		return nil, false, assert.AnError
	}
	return l.Backing.Map()
}

type failingBacking struct{}

func (failingBacking) Map() (*shared.Region, bool, error) { return nil, false, assert.AnError }
func (failingBacking) Close() error                       { return nil }

func processAll(level float64, hosts ...*plugin.Host) {
	for _, h := range hosts {
		h.Process(dcBlock(level))
	}
}
