package audio

import (
	"encoding/binary"
	"math"
)

// spectrumBins is the length of the magnitude frame handed to
// DeriveLevels. 128 bins comfortably covers the 0-100 band range.
const spectrumBins = 128

// SpectrumFrame computes a coarse frequency-domain magnitude frame
// (values 0-255) from a window of little-endian PCM16 samples, using a
// direct DFT over the low bins. The window is Hann-weighted to keep
// band energy from smearing across bins.
func SpectrumFrame(pcm []byte) []byte {
	sampleCount := len(pcm) / 2
	frame := make([]byte, spectrumBins)
	if sampleCount == 0 {
		return frame
	}

	samples := make([]float64, sampleCount)
	for i := 0; i < sampleCount; i++ {
		raw := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		w := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(sampleCount)))
		samples[i] = (float64(raw) / 32768.0) * w
	}

	for k := 0; k < spectrumBins; k++ {
		var re, im float64
		step := 2 * math.Pi * float64(k+1) / float64(sampleCount)
		for n, s := range samples {
			angle := step * float64(n)
			re += s * math.Cos(angle)
			im -= s * math.Sin(angle)
		}
		magnitude := 2 * math.Sqrt(re*re+im*im) / float64(sampleCount)

		// Map to the analyser's 0-255 byte scale with a mild boost so
		// conversational speech registers visibly.
		scaled := magnitude * 4 * 255
		if scaled > 255 {
			scaled = 255
		}
		frame[k] = byte(scaled)
	}

	return frame
}
