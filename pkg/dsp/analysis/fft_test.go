package analysis

import (
	"fmt"
	"math"
	"testing"
)

func TestFFT(t *testing.T) {
	tests := []struct {
		name   string
		size   int
		window WindowFunc
	}{
		{"Rectangular 256", 256, RectangularWindow},
		{"Hann 512", 512, HannWindow},
		{"Hamming 1024", 1024, HammingWindow},
		{"Blackman 2048", 2048, BlackmanWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fft := NewFFT(tt.size, tt.window)

			freq := 440.0
			sampleRate := 44100.0
			input := make([]float32, tt.size)

			for i := 0; i < tt.size; i++ {
				input[i] = float32(math.Sin(2.0 * math.Pi * freq * float64(i) / sampleRate))
			}

			magnitude := fft.Magnitude(input)
			if len(magnitude) != tt.size/2+1 {
				t.Fatalf("magnitude length = %d, want %d", len(magnitude), tt.size/2+1)
			}

			maxMag := 0.0
			maxBin := 0
			for i, mag := range magnitude {
				if mag > maxMag {
					maxMag = mag
					maxBin = i
				}
			}

			peakFreq := fft.BinFrequency(maxBin, sampleRate)
			tolerance := sampleRate / float64(tt.size) // One bin width

			if math.Abs(peakFreq-freq) > tolerance {
				t.Errorf("Peak frequency mismatch: expected %f Hz, got %f Hz", freq, peakFreq)
			}
		})
	}
}

func TestWindowFunctions(t *testing.T) {
	size := 1024
	windows := []struct {
		name   string
		window WindowFunc
	}{
		{"Rectangular", RectangularWindow},
		{"Hann", HannWindow},
		{"Hamming", HammingWindow},
		{"Blackman", BlackmanWindow},
	}

	for _, w := range windows {
		t.Run(w.name, func(t *testing.T) {
			fft := NewFFT(size, w.window)

			for _, coeff := range fft.windowData {
				if coeff < 0 {
					t.Errorf("Negative window coefficient found: %f", coeff)
				}
				if coeff > 1.0001 {
					t.Errorf("Window coefficient > 1: %f", coeff)
				}
			}

			for i := 0; i < size/2; i++ {
				if math.Abs(fft.windowData[i]-fft.windowData[size-1-i]) > 1e-10 {
					t.Errorf("Window not symmetric at index %d: %f != %f",
						i, fft.windowData[i], fft.windowData[size-1-i])
				}
			}
		})
	}
}

func TestFFTZeroPads(t *testing.T) {
	fft := NewFFT(64, RectangularWindow)
	fft.Magnitude([]float32{1, 1, 1, 1})

	// A short impulse train has energy at DC and nothing left over from a
	// previous call.
	mag := fft.Magnitude([]float32{1})
	for i, m := range mag {
		if math.Abs(m-1) > 1e-9 {
			t.Fatalf("bin %d = %f, want flat spectrum of a unit impulse", i, m)
		}
	}
}

func TestFFTDoesNotAllocate(t *testing.T) {
	fft := NewFFT(512, HannWindow)
	input := make([]float32, 512)
	allocs := testing.AllocsPerRun(10, func() {
		fft.Magnitude(input)
	})
	if allocs != 0 {
		t.Errorf("Magnitude allocated %f times per run", allocs)
	}
}

func BenchmarkFFT(b *testing.B) {
	sizes := []int{256, 512, 1024, 2048}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("Size%d", size), func(b *testing.B) {
			fft := NewFFT(size, HannWindow)
			input := make([]float32, size)

			for i := 0; i < size; i++ {
				input[i] = float32(math.Sin(2.0 * math.Pi * 440.0 * float64(i) / 44100.0))
			}

			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				fft.Magnitude(input)
			}
		})
	}
}
