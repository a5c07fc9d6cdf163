package param

import (
	"math"
	"sync"
	"sync/atomic"
)

// Listener is told about parameter changes made by the plugin itself, so
// the host can record automation and refresh its display. It receives the
// normalized value.
type Listener func(id uint32, normalized float64)

// Registry manages plugin parameters.
//
// Parameters are added while the plugin is being set up. Lookups read an
// immutable index through an atomic pointer and never take a lock, so the
// audio thread may call Get and the Set* methods.
type Registry struct {
	mu    sync.Mutex // serializes Add
	index atomic.Pointer[index]

	listener atomic.Pointer[Listener]
}

type index struct {
	params map[uint32]*Parameter
	order  []uint32
}

// NewRegistry creates a new parameter registry
func NewRegistry() *Registry {
	r := &Registry{}
	r.index.Store(&index{params: map[uint32]*Parameter{}})
	return r
}

// Add registers new parameters. Duplicate IDs are skipped.
func (r *Registry) Add(params ...*Parameter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.index.Load()
	next := &index{
		params: make(map[uint32]*Parameter, len(old.params)+len(params)),
		order:  append(make([]uint32, 0, len(old.order)+len(params)), old.order...),
	}
	for id, p := range old.params {
		next.params[id] = p
	}
	for _, p := range params {
		if _, exists := next.params[p.ID]; exists {
			continue
		}
		next.params[p.ID] = p
		next.order = append(next.order, p.ID)
	}
	r.index.Store(next)
	return nil
}

// Get retrieves a parameter by ID
func (r *Registry) Get(id uint32) *Parameter {
	return r.index.Load().params[id]
}

// GetByIndex retrieves a parameter by index
func (r *Registry) GetByIndex(i int32) *Parameter {
	idx := r.index.Load()
	if i < 0 || i >= int32(len(idx.order)) {
		return nil
	}
	return idx.params[idx.order[i]]
}

// Count returns the number of parameters
func (r *Registry) Count() int32 {
	return int32(len(r.index.Load().order))
}

// All returns all parameters in order
func (r *Registry) All() []*Parameter {
	idx := r.index.Load()
	result := make([]*Parameter, len(idx.order))
	for i, id := range idx.order {
		result[i] = idx.params[id]
	}
	return result
}

// SetListener installs the host notification callback. nil removes it.
func (r *Registry) SetListener(l Listener) {
	if l == nil {
		r.listener.Store(nil)
		return
	}
	r.listener.Store(&l)
}

// Plain returns the plain value of id, or 0 for an unknown id.
func (r *Registry) Plain(id uint32) float64 {
	if p := r.Get(id); p != nil {
		return p.GetPlainValue()
	}
	return 0
}

// Bool returns whether toggle id is on.
func (r *Registry) Bool(id uint32) bool {
	if p := r.Get(id); p != nil {
		return p.Bool()
	}
	return false
}

// SetPlain stores a plain value without notifying the listener. It is what
// host automation and state restore use.
func (r *Registry) SetPlain(id uint32, plain float64) bool {
	p := r.Get(id)
	if p == nil {
		return false
	}
	p.SetPlainValue(plain)
	return true
}

// changeEpsilon is the smallest normalized change worth reporting.
const changeEpsilon = 1e-6

// SetPlainNotifying stores a plain value and, when it differs from the
// current one, tells the listener. It reports whether the value changed.
func (r *Registry) SetPlainNotifying(id uint32, plain float64) bool {
	p := r.Get(id)
	if p == nil {
		return false
	}
	normalized := p.Normalize(plain)
	if math.Abs(normalized-p.GetValue()) < changeEpsilon {
		return false
	}
	p.SetValue(normalized)
	if l := r.listener.Load(); l != nil {
		(*l)(id, normalized)
	}
	return true
}

// SetBoolNotifying is SetPlainNotifying for toggles.
func (r *Registry) SetBoolNotifying(id uint32, on bool) bool {
	v := 0.0
	if on {
		v = 1
	}
	return r.SetPlainNotifying(id, v)
}

// Values returns the plain value of every parameter keyed by ID.
func (r *Registry) Values() map[uint32]float64 {
	idx := r.index.Load()
	out := make(map[uint32]float64, len(idx.order))
	for _, id := range idx.order {
		out[id] = idx.params[id].GetPlainValue()
	}
	return out
}
