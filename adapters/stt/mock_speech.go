package stt

import (
	"context"

	"go.uber.org/zap"

	"github.com/orbvoice/orb/domain/repositories"
)

// MockSpeechToText returns a canned transcript; used when no Google
// credentials are configured and in tests.
type MockSpeechToText struct {
	Transcript string
	Err        error
	Calls      int
	logger     *zap.Logger
}

var _ repositories.SpeechToText = (*MockSpeechToText)(nil)

func NewMockSpeechToText(logger *zap.Logger) *MockSpeechToText {
	return &MockSpeechToText{Transcript: "hello there", logger: logger}
}

func (m *MockSpeechToText) TranscribeAudio(_ context.Context, audioData []byte, _ repositories.AudioConfig) (string, error) {
	m.Calls++
	if m.Err != nil {
		return "", m.Err
	}
	m.logger.Debug("Mock transcription", zap.Int("audioBytes", len(audioData)))
	return m.Transcript, nil
}
