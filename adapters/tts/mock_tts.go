package tts

import (
	"context"

	"github.com/orbvoice/orb/domain/repositories"
)

// MockTTS returns a canned waveform; used without an API key and in
// tests.
type MockTTS struct {
	Audio  []byte
	Err    error
	Calls  int
	Voices []string
}

var _ repositories.TextToSpeech = (*MockTTS)(nil)

func NewMockTTS() *MockTTS {
	return &MockTTS{Audio: make([]byte, 3200)} // 100ms of silence at 16kHz
}

func (m *MockTTS) Synthesize(_ context.Context, _ string, voiceID string) ([]byte, error) {
	m.Calls++
	m.Voices = append(m.Voices, voiceID)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Audio, nil
}
