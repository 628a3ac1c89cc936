package audio

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/orbvoice/orb/domain/entities"
)

// Player walks a synthesized waveform in real time, producing one
// visualization frame per tick. Playback itself happens on the client;
// the player is the engine-side clock that bounds the Playing phase and
// feeds the level sink for exactly the playback duration.
type Player interface {
	// Play blocks until the waveform has been fully walked or ctx is
	// cancelled. onFrame is called once per frame; the caller is
	// responsible for pushing zero levels after Play returns.
	Play(ctx context.Context, pcm []byte, sampleRate int, onFrame func(entities.AudioLevels)) (time.Duration, error)
}

const frameInterval = 50 * time.Millisecond

// PacedPlayer is the production Player. It analyses one window of
// samples per tick so the visualization tracks the audio the client is
// playing back.
type PacedPlayer struct {
	logger *zap.Logger
}

func NewPacedPlayer(logger *zap.Logger) *PacedPlayer {
	return &PacedPlayer{logger: logger}
}

func (p *PacedPlayer) Play(ctx context.Context, pcm []byte, sampleRate int, onFrame func(entities.AudioLevels)) (time.Duration, error) {
	if sampleRate <= 0 || len(pcm) < 2 {
		return 0, nil
	}

	sampleCount := len(pcm) / 2
	total := time.Duration(float64(sampleCount) / float64(sampleRate) * float64(time.Second))
	windowBytes := 2 * int(float64(sampleRate)*frameInterval.Seconds())
	if windowBytes < 2 {
		windowBytes = 2
	}

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	start := time.Now()
	for offset := 0; offset < len(pcm); offset += windowBytes {
		end := offset + windowBytes
		if end > len(pcm) {
			end = len(pcm)
		}

		if onFrame != nil {
			onFrame(DeriveLevels(SpectrumFrame(pcm[offset:end])))
		}

		select {
		case <-ctx.Done():
			p.logger.Debug("playback pump cancelled", zap.Duration("elapsed", time.Since(start)))
			return time.Since(start), ctx.Err()
		case <-ticker.C:
		}
	}

	return total, nil
}
