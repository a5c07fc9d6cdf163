package analysis

import (
	"math"
	"testing"
)

func TestLoudnessWindowRefreshesEveryThreeSeconds(t *testing.T) {
	sampleRate := 48000.0
	lw := NewLoudnessWindow(sampleRate)

	if lw.Valid() {
		t.Fatal("estimate should be invalid before the first window completes")
	}

	block := [][]float32{constant(480, 0.5), constant(480, 0.5)}
	blocksPerWindow := int(sampleRate*LoudnessWindowSeconds) / 480

	for i := 0; i < blocksPerWindow-1; i++ {
		if lw.Process(block) {
			t.Fatalf("window refreshed early at block %d", i)
		}
	}
	if !lw.Process(block) {
		t.Fatal("window should refresh once it fills")
	}

	// Mono sum of two 0.5 DC channels has mean square 0.25.
	want := LoudnessOffset + 10*math.Log10(0.25)
	if math.Abs(lw.ShortTerm()-want) > 0.001 {
		t.Errorf("short-term = %f, want %f", lw.ShortTerm(), want)
	}
	if !lw.Valid() {
		t.Error("estimate should be valid after a loud window")
	}
}

func TestLoudnessWindowIntegratedAveragesWindows(t *testing.T) {
	sampleRate := 1000.0
	lw := NewLoudnessWindow(sampleRate)

	loud := [][]float32{constant(3000, 1)}
	quiet := [][]float32{constant(3000, 0)}

	lw.Process(loud)
	lw.Process(quiet)

	if lw.ShortTerm() > ValidLoudness {
		t.Errorf("silent window should read below the valid threshold, got %f", lw.ShortTerm())
	}
	// Lifetime mean square is 0.5.
	want := LoudnessOffset + 10*math.Log10(0.5)
	if math.Abs(lw.Integrated()-want) > 0.001 {
		t.Errorf("integrated = %f, want %f", lw.Integrated(), want)
	}
}

func TestLoudnessWindowSilenceIsFinite(t *testing.T) {
	lw := NewLoudnessWindow(100)
	lw.Process([][]float32{make([]float32, 300)})
	if math.IsInf(lw.ShortTerm(), 0) || math.IsNaN(lw.ShortTerm()) {
		t.Errorf("silent window produced %f", lw.ShortTerm())
	}
	if lw.Valid() {
		t.Error("silence must not be a valid estimate")
	}
}

func TestLoudnessWindowReset(t *testing.T) {
	lw := NewLoudnessWindow(100)
	lw.Process([][]float32{constant(300, 1)})
	lw.Reset()
	if lw.ShortTerm() != LoudnessFloor || lw.Integrated() != LoudnessFloor {
		t.Errorf("reset left %f / %f", lw.ShortTerm(), lw.Integrated())
	}
}
