package audio

import (
	"encoding/binary"
	"math"

	"github.com/orbvoice/orb/domain/entities"
)

// Gate decides whether a captured buffer is worth transcribing before
// any network call is made. Rejection is an expected steady-state
// outcome (ambient noise), not an error.
type Gate struct {
	MinDuration float64 // seconds
	MinRMS      float64
}

// NewGate builds a gate with the given thresholds.
func NewGate(minDuration, minRMS float64) *Gate {
	return &Gate{MinDuration: minDuration, MinRMS: minRMS}
}

// Evaluate computes signal metrics for a PCM16 buffer and reports
// whether it passes the loudness and duration floors.
func (g *Gate) Evaluate(buf *entities.AudioBuffer) (entities.SignalMetrics, bool) {
	metrics := Measure(buf)
	accepted := metrics.DurationSeconds >= g.MinDuration && metrics.RMS >= g.MinRMS
	return metrics, accepted
}

// Measure derives RMS, duration and peak amplitude from little-endian
// 16-bit mono PCM. Samples are normalized to [-1,1] before measuring.
func Measure(buf *entities.AudioBuffer) entities.SignalMetrics {
	if buf == nil || len(buf.PCM) < 2 || buf.SampleRate <= 0 {
		return entities.SignalMetrics{}
	}

	sampleCount := len(buf.PCM) / 2
	var sumSquares float64
	var peak float64

	for i := 0; i < sampleCount; i++ {
		raw := int16(binary.LittleEndian.Uint16(buf.PCM[2*i:]))
		sample := math.Abs(float64(raw) / 32768.0)
		sumSquares += sample * sample
		if sample > peak {
			peak = sample
		}
	}

	return entities.SignalMetrics{
		RMS:             math.Sqrt(sumSquares / float64(sampleCount)),
		DurationSeconds: float64(sampleCount) / float64(buf.SampleRate),
		PeakAmplitude:   peak,
	}
}
