package analysis

import (
	"math"
)

// FFT performs a Fast Fourier Transform on the input data. All buffers are
// allocated once in NewFFT.
type FFT struct {
	size       int
	window     WindowFunc
	windowData []float64
	real       []float64
	imag       []float64
	magnitude  []float64
}

// WindowFunc represents a window function type
type WindowFunc int

const (
	RectangularWindow WindowFunc = iota
	HannWindow
	HammingWindow
	BlackmanWindow
)

// NewFFT creates a new FFT processor. Size must be a power of two.
func NewFFT(size int, window WindowFunc) *FFT {
	fft := &FFT{
		size:       size,
		window:     window,
		windowData: make([]float64, size),
		real:       make([]float64, size),
		imag:       make([]float64, size),
		magnitude:  make([]float64, size/2+1),
	}

	fft.calculateWindow()

	return fft
}

// Size returns the transform length.
func (f *FFT) Size() int {
	return f.size
}

// calculateWindow pre-calculates the window coefficients
func (f *FFT) calculateWindow() {
	n := float64(f.size)

	switch f.window {
	case RectangularWindow:
		for i := 0; i < f.size; i++ {
			f.windowData[i] = 1.0
		}

	case HannWindow:
		for i := 0; i < f.size; i++ {
			f.windowData[i] = 0.5 * (1.0 - math.Cos(2.0*math.Pi*float64(i)/(n-1.0)))
		}

	case HammingWindow:
		for i := 0; i < f.size; i++ {
			f.windowData[i] = 0.54 - 0.46*math.Cos(2.0*math.Pi*float64(i)/(n-1.0))
		}

	case BlackmanWindow:
		for i := 0; i < f.size; i++ {
			val := 0.42 - 0.5*math.Cos(2.0*math.Pi*float64(i)/(n-1.0)) +
				0.08*math.Cos(4.0*math.Pi*float64(i)/(n-1.0))
			if val < 0 {
				val = 0
			}
			f.windowData[i] = val
		}
	}
}

// Magnitude windows input, transforms it and returns the magnitude of bins
// 0..size/2. The returned slice is owned by the FFT and overwritten on the
// next call. Input shorter than the transform is zero padded.
func (f *FFT) Magnitude(input []float32) []float64 {
	for i := 0; i < f.size; i++ {
		if i < len(input) {
			f.real[i] = float64(input[i]) * f.windowData[i]
		} else {
			f.real[i] = 0.0
		}
		f.imag[i] = 0.0
	}

	f.fft(f.real, f.imag)

	for i := 0; i <= f.size/2; i++ {
		f.magnitude[i] = math.Sqrt(f.real[i]*f.real[i] + f.imag[i]*f.imag[i])
	}

	return f.magnitude
}

// fft performs the actual FFT using Cooley-Tukey algorithm
func (f *FFT) fft(real, imag []float64) {
	n := f.size

	// Bit reversal
	j := 0
	for i := 0; i < n; i++ {
		if i < j {
			real[i], real[j] = real[j], real[i]
			imag[i], imag[j] = imag[j], imag[i]
		}
		m := n >> 1
		for m >= 1 && j >= m {
			j -= m
			m >>= 1
		}
		j += m
	}

	for stage := 2; stage <= n; stage <<= 1 {
		theta := -2.0 * math.Pi / float64(stage)
		wReal := math.Cos(theta)
		wImag := math.Sin(theta)

		for k := 0; k < n; k += stage {
			wTempReal := 1.0
			wTempImag := 0.0

			for j := 0; j < stage/2; j++ {
				i1 := k + j
				i2 := i1 + stage/2

				tempReal := wTempReal*real[i2] - wTempImag*imag[i2]
				tempImag := wTempReal*imag[i2] + wTempImag*real[i2]

				real[i2] = real[i1] - tempReal
				imag[i2] = imag[i1] - tempImag

				real[i1] += tempReal
				imag[i1] += tempImag

				oldWReal := wTempReal
				wTempReal = oldWReal*wReal - wTempImag*wImag
				wTempImag = oldWReal*wImag + wTempImag*wReal
			}
		}
	}
}

// BinFrequency returns the frequency corresponding to a given FFT bin
func (f *FFT) BinFrequency(bin int, sampleRate float64) float64 {
	return float64(bin) * sampleRate / float64(f.size)
}
