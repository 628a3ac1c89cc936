package entities

import "time"

// AudioBuffer is raw captured audio owned exclusively by the active
// capture operation. It is discarded after gating and transcription.
type AudioBuffer struct {
	PCM        []byte    // little-endian 16-bit mono samples
	SampleRate int
	CapturedAt time.Time
}

// SignalMetrics are derived once per captured buffer and never mutated.
type SignalMetrics struct {
	RMS             float64 `json:"rms"`
	DurationSeconds float64 `json:"duration_seconds"`
	PeakAmplitude   float64 `json:"peak_amplitude"`
}

// AudioLevels is one visualization frame. All values are in [0,1].
type AudioLevels struct {
	Bass   float64 `json:"bass"`
	Mid    float64 `json:"mid"`
	Treble float64 `json:"treble"`
	Volume float64 `json:"volume"`
}

// ZeroLevels is pushed whenever neither live monitoring nor playback is
// active, so the visualization degrades to rest immediately.
var ZeroLevels = AudioLevels{}
