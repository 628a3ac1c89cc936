package audio

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/orbvoice/orb/domain/entities"
)

func pcmTone(amplitude float64, sampleRate int, duration time.Duration) []byte {
	sampleCount := int(float64(sampleRate) * duration.Seconds())
	pcm := make([]byte, 2*sampleCount)
	for i := 0; i < sampleCount; i++ {
		sample := amplitude * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate))
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(int16(sample*32767)))
	}
	return pcm
}

func TestGateAcceptsSpeechLikeSignal(t *testing.T) {
	gate := NewGate(0.35, 0.008)
	buf := &entities.AudioBuffer{PCM: pcmTone(0.5, 16000, time.Second), SampleRate: 16000}

	metrics, accepted := gate.Evaluate(buf)

	if !accepted {
		t.Errorf("Expected acceptance, got rejection with metrics %+v", metrics)
	}
	// RMS of a sine wave is amplitude/sqrt(2).
	expected := 0.5 / math.Sqrt2
	if math.Abs(metrics.RMS-expected) > 0.01 {
		t.Errorf("Expected RMS near %f, got %f", expected, metrics.RMS)
	}
	if math.Abs(metrics.DurationSeconds-1.0) > 0.001 {
		t.Errorf("Expected duration 1s, got %f", metrics.DurationSeconds)
	}
	if metrics.PeakAmplitude < 0.49 || metrics.PeakAmplitude > 0.51 {
		t.Errorf("Expected peak near 0.5, got %f", metrics.PeakAmplitude)
	}
}

func TestGateRejectsShortClip(t *testing.T) {
	gate := NewGate(0.35, 0.008)
	buf := &entities.AudioBuffer{PCM: pcmTone(0.5, 16000, 200*time.Millisecond), SampleRate: 16000}

	if _, accepted := gate.Evaluate(buf); accepted {
		t.Error("Expected rejection for clip shorter than the duration floor")
	}
}

func TestGateRejectsQuietClip(t *testing.T) {
	gate := NewGate(0.35, 0.008)
	buf := &entities.AudioBuffer{PCM: pcmTone(0.001, 16000, time.Second), SampleRate: 16000}

	if metrics, accepted := gate.Evaluate(buf); accepted {
		t.Errorf("Expected rejection for clip below the RMS floor, metrics %+v", metrics)
	}
}

func TestGateRejectsEmptyBuffer(t *testing.T) {
	gate := NewGate(0.35, 0.008)
	buf := &entities.AudioBuffer{PCM: nil, SampleRate: 16000}

	metrics, accepted := gate.Evaluate(buf)
	if accepted {
		t.Error("Expected rejection for empty buffer")
	}
	if metrics.RMS != 0 || metrics.DurationSeconds != 0 || metrics.PeakAmplitude != 0 {
		t.Errorf("Expected zero metrics for empty buffer, got %+v", metrics)
	}
}

func TestGateThresholdsAreConfigurable(t *testing.T) {
	gate := NewGate(0.05, 0.0001)
	buf := &entities.AudioBuffer{PCM: pcmTone(0.001, 16000, 100*time.Millisecond), SampleRate: 16000}

	if _, accepted := gate.Evaluate(buf); !accepted {
		t.Error("Expected acceptance with loosened thresholds")
	}
}
