package process

// GetNumChannels returns the number of channels both sides have
func (c *Context) GetNumChannels() int {
	numChannels := c.NumInputChannels()
	if c.NumOutputChannels() < numChannels {
		numChannels = c.NumOutputChannels()
	}
	return numChannels
}

// Channels returns the output channels that have a matching input, after
// copying the input across. Gain stages then work on the result in place.
func (c *Context) Channels() [][]float32 {
	c.PassThrough()
	return c.Output[:c.GetNumChannels()]
}
