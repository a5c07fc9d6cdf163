// Package plugin provides base processor functionality shared by the
// coordinator and participant processors.
package plugin

import (
	"fmt"
	"sync/atomic"

	"github.com/justyntemme/gainlink/pkg/framework/param"
	"github.com/justyntemme/gainlink/pkg/framework/process"
)

// Processor is what a host drives.
type Processor interface {
	// Initialize is called before processing starts and whenever the
	// sample rate changes.
	Initialize(sampleRate float64, maxBlockSize int32) error
	GetParameters() *param.Registry
	SetActive(active bool) error
	// ProcessAudio processes one block - zero allocations allowed!
	ProcessAudio(ctx *process.Context)
}

// BaseProcessor provides common functionality for audio processors
type BaseProcessor struct {
	info       Info
	params     *param.Registry
	sampleRate float64
	maxBlock   int32

	// Optional callbacks for customization
	onInitialize func(sampleRate float64, maxBlockSize int32) error
	onSetActive  func(active bool) error
	onReset      func()
}

// NewBaseProcessor creates a new base processor
func NewBaseProcessor(info Info) *BaseProcessor {
	return &BaseProcessor{
		info:   info,
		params: param.NewRegistry(),
	}
}

// Info returns the plugin metadata
func (b *BaseProcessor) Info() Info {
	return b.info
}

// Initialize implements the Processor interface
func (b *BaseProcessor) Initialize(sampleRate float64, maxBlockSize int32) error {
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %v", sampleRate)
	}
	b.sampleRate = sampleRate
	b.maxBlock = maxBlockSize

	if b.onInitialize != nil {
		return b.onInitialize(sampleRate, maxBlockSize)
	}
	return nil
}

// GetParameters implements the Processor interface
func (b *BaseProcessor) GetParameters() *param.Registry {
	return b.params
}

// SetActive implements the Processor interface
func (b *BaseProcessor) SetActive(active bool) error {
	if !active && b.onReset != nil {
		b.onReset()
	}

	if b.onSetActive != nil {
		return b.onSetActive(active)
	}
	return nil
}

// SampleRate returns the current sample rate
func (b *BaseProcessor) SampleRate() float64 {
	return b.sampleRate
}

// MaxBlockSize returns the block size passed to Initialize
func (b *BaseProcessor) MaxBlockSize() int32 {
	return b.maxBlock
}

// Parameters returns the parameter registry for adding parameters
func (b *BaseProcessor) Parameters() *param.Registry {
	return b.params
}

// OnInitialize sets a callback for initialization
func (b *BaseProcessor) OnInitialize(fn func(sampleRate float64, maxBlockSize int32) error) {
	b.onInitialize = fn
}

// OnSetActive sets a callback for activation/deactivation
func (b *BaseProcessor) OnSetActive(fn func(active bool) error) {
	b.onSetActive = fn
}

// OnReset sets a callback for when the processor should reset its state
func (b *BaseProcessor) OnReset(fn func()) {
	b.onReset = fn
}

// Host drives a Processor the way a plugin host would: it owns the process
// context and hands it one block at a time. It also listens for parameter
// changes the processor makes on its own, which a real host would record
// as automation.
type Host struct {
	proc Processor
	ctx  *process.Context

	edits    atomic.Uint64
	lastEdit atomic.Uint32
}

// NewHost initializes and activates p.
func NewHost(p Processor, sampleRate float64, maxBlockSize int) (*Host, error) {
	if err := p.Initialize(sampleRate, int32(maxBlockSize)); err != nil {
		return nil, err
	}
	if err := p.SetActive(true); err != nil {
		return nil, err
	}
	ctx := process.NewContext(p.GetParameters())
	ctx.SampleRate = sampleRate
	h := &Host{proc: p, ctx: ctx}
	p.GetParameters().SetListener(h.notify)
	return h, nil
}

func (h *Host) notify(id uint32, _ float64) {
	h.lastEdit.Store(id)
	h.edits.Add(1)
}

// Edits returns how many parameter changes the processor has reported.
func (h *Host) Edits() uint64 {
	return h.edits.Load()
}

// LastEdit returns the ID of the most recently reported parameter.
func (h *Host) LastEdit() uint32 {
	return h.lastEdit.Load()
}

// Process runs one block in place.
func (h *Host) Process(channels [][]float32) {
	h.ctx.Input = channels
	h.ctx.Output = channels
	h.proc.ProcessAudio(h.ctx)
}

// Stop deactivates the processor and stops listening for its edits.
func (h *Host) Stop() error {
	h.proc.GetParameters().SetListener(nil)
	return h.proc.SetActive(false)
}
