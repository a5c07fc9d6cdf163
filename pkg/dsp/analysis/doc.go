// Package analysis provides the block-rate metering used by the gain chain.
//
// Level Metering:
//   - RMS and peak across all channels, with a -120 dB floor
//   - Crest factor (peak dB minus RMS dB)
//   - Short-term loudness estimate over a rolling ~3 second window
//   - Ungated lifetime loudness average
//
// Stereo Field Analysis:
//   - Block correlation between the first two channels
//   - Stereo width derived from correlation
//   - Mono compatibility and qualitative phase status
//
// Spectral Balance:
//   - 512 point Hann-windowed FFT on the first channel
//   - Low (<=300 Hz), mid (<=4 kHz) and high band energies that sum to 1
//   - Magnitude spectrum in dB for display layers
//
// Per-sample work is limited to running sums, so every Process call is
// allocation free and safe to run on the audio thread. Results are
// published through atomics and may be read from any goroutine.
//
// Example usage:
//
//	p := analysis.NewPipeline(48000)
//	p.MeasureInput(buffers)
//	// ... apply gain ...
//	p.MeasureOutput(buffers)
//
//	snap := p.Snapshot()
//	fmt.Println(snap.Input.RMSDB, snap.ShortTermLUFS, snap.Bands.Low)
package analysis
