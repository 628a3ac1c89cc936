package repositories

import "context"

// TextToSpeech abstracts speech synthesis services.
type TextToSpeech interface {
	// Synthesize renders text as a playable encoded waveform using the
	// given voice.
	Synthesize(ctx context.Context, text string, voiceID string) ([]byte, error)
}
