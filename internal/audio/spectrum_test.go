package audio

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/orbvoice/orb/domain/entities"
)

func TestSpectrumFrameEmptyInput(t *testing.T) {
	frame := SpectrumFrame(nil)

	if len(frame) != spectrumBins {
		t.Fatalf("Expected %d bins, got %d", spectrumBins, len(frame))
	}
	for i, v := range frame {
		if v != 0 {
			t.Errorf("Expected bin %d to be zero, got %d", i, v)
		}
	}
}

func TestSpectrumFrameToneLandsInExpectedBin(t *testing.T) {
	// A tone at frequency index 5 of a 1024-sample window should peak at
	// bin 4 (bins start at index 1 of the DFT).
	const n = 1024
	pcm := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		sample := 0.8 * math.Cos(2*math.Pi*5*float64(i)/n)
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(int16(sample*32767)))
	}

	frame := SpectrumFrame(pcm)

	peakBin := 0
	for i := range frame {
		if frame[i] > frame[peakBin] {
			peakBin = i
		}
	}

	if peakBin != 4 {
		t.Errorf("Expected spectral peak at bin 4, got bin %d", peakBin)
	}
	if frame[4] == 0 {
		t.Error("Expected non-zero magnitude at the tone bin")
	}
}

func TestPacedPlayerEmitsFramesAndReturnsDuration(t *testing.T) {
	player := NewPacedPlayer(zap.NewNop())
	pcm := pcmTone(0.5, 16000, 150*time.Millisecond)

	frames := 0
	duration, err := player.Play(context.Background(), pcm, 16000, func(levels entities.AudioLevels) {
		frames++
		if levels.Volume < 0 || levels.Volume > 1 {
			t.Errorf("Volume out of range: %f", levels.Volume)
		}
	})

	if err != nil {
		t.Fatalf("Play returned error: %v", err)
	}
	if frames < 3 {
		t.Errorf("Expected at least 3 frames for a 150ms clip, got %d", frames)
	}
	if math.Abs(duration.Seconds()-0.15) > 0.001 {
		t.Errorf("Expected reported duration 150ms, got %v", duration)
	}
}

func TestPacedPlayerCancellation(t *testing.T) {
	player := NewPacedPlayer(zap.NewNop())
	pcm := pcmTone(0.5, 16000, 2*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := player.Play(ctx, pcm, 16000, nil); err == nil {
		t.Error("Expected context error from cancelled playback")
	}
}
