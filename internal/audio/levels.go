package audio

import "github.com/orbvoice/orb/domain/entities"

// Fixed band boundaries over the frequency-domain magnitude frame. The
// frame layout mirrors an analyser frame of 0-255 magnitudes, so the
// first hundred bins are enough for bass/mid/treble meters.
const (
	bassLow    = 0
	bassHigh   = 10
	midHigh    = 50
	trebleHigh = 100
)

// DeriveLevels reduces a frequency-domain magnitude frame (values
// 0-255) into normalized band levels. Short or empty frames read the
// missing bins as zero.
func DeriveLevels(frame []byte) entities.AudioLevels {
	if len(frame) == 0 {
		return entities.ZeroLevels
	}

	bass := averageRange(frame, bassLow, bassHigh) / 255
	mid := averageRange(frame, bassHigh, midHigh) / 255
	treble := averageRange(frame, midHigh, trebleHigh) / 255

	return entities.AudioLevels{
		Bass:   bass,
		Mid:    mid,
		Treble: treble,
		Volume: (bass + mid + treble) / 3,
	}
}

func averageRange(frame []byte, start, end int) float64 {
	if start >= len(frame) {
		return 0
	}
	var sum float64
	for i := start; i < end && i < len(frame); i++ {
		sum += float64(frame[i])
	}
	if end <= start {
		return 0
	}
	return sum / float64(end-start)
}
