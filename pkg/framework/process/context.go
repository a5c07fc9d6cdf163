// Package process provides the per-block processing context.
package process

import (
	"github.com/justyntemme/gainlink/pkg/framework/param"
)

// Context is what a processor sees for one block. Processors read Input and
// write Output; hosts that process in place pass the same buffers for both.
type Context struct {
	Input      [][]float32
	Output     [][]float32
	SampleRate float64

	params *param.Registry
}

// NewContext creates a context over a processor's parameters.
func NewContext(params *param.Registry) *Context {
	return &Context{params: params}
}

// Params returns the parameter registry.
func (c *Context) Params() *param.Registry {
	return c.params
}

// NumInputChannels returns the number of input channels
func (c *Context) NumInputChannels() int {
	return len(c.Input)
}

// NumOutputChannels returns the number of output channels
func (c *Context) NumOutputChannels() int {
	return len(c.Output)
}

// PassThrough copies input to output. Buffers shared between input and
// output are left alone.
func (c *Context) PassThrough() {
	numChannels := c.GetNumChannels()
	for ch := 0; ch < numChannels; ch++ {
		in, out := c.Input[ch], c.Output[ch]
		if len(in) > 0 && len(out) > 0 && &in[0] == &out[0] {
			continue
		}
		copy(out, in)
	}
}
