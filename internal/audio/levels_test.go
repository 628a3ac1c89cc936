package audio

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestDeriveLevelsEmptyFrame(t *testing.T) {
	levels := DeriveLevels(nil)

	if levels.Bass != 0 || levels.Mid != 0 || levels.Treble != 0 || levels.Volume != 0 {
		t.Errorf("Expected all-zero levels for empty frame, got %+v", levels)
	}
}

func TestDeriveLevelsUniformFrame(t *testing.T) {
	frame := make([]byte, 128)
	for i := range frame {
		frame[i] = 255
	}

	levels := DeriveLevels(frame)

	if !almostEqual(levels.Bass, 1) {
		t.Errorf("Expected bass 1.0, got %f", levels.Bass)
	}
	if !almostEqual(levels.Mid, 1) {
		t.Errorf("Expected mid 1.0, got %f", levels.Mid)
	}
	if !almostEqual(levels.Treble, 1) {
		t.Errorf("Expected treble 1.0, got %f", levels.Treble)
	}
	if !almostEqual(levels.Volume, 1) {
		t.Errorf("Expected volume 1.0, got %f", levels.Volume)
	}
}

func TestDeriveLevelsBandRanges(t *testing.T) {
	// Energy only in the bass bins.
	frame := make([]byte, 128)
	for i := 0; i < 10; i++ {
		frame[i] = 255
	}

	levels := DeriveLevels(frame)

	if !almostEqual(levels.Bass, 1) {
		t.Errorf("Expected bass 1.0, got %f", levels.Bass)
	}
	if levels.Mid != 0 {
		t.Errorf("Expected mid 0, got %f", levels.Mid)
	}
	if levels.Treble != 0 {
		t.Errorf("Expected treble 0, got %f", levels.Treble)
	}
	if !almostEqual(levels.Volume, 1.0/3.0) {
		t.Errorf("Expected volume 1/3, got %f", levels.Volume)
	}
}

func TestDeriveLevelsShortFrame(t *testing.T) {
	// Frames shorter than the treble boundary read missing bins as zero.
	frame := make([]byte, 30)
	for i := range frame {
		frame[i] = 255
	}

	levels := DeriveLevels(frame)

	if !almostEqual(levels.Bass, 1) {
		t.Errorf("Expected bass 1.0, got %f", levels.Bass)
	}
	// 20 of 40 mid bins populated
	if !almostEqual(levels.Mid, 0.5) {
		t.Errorf("Expected mid 0.5, got %f", levels.Mid)
	}
	if levels.Treble != 0 {
		t.Errorf("Expected treble 0, got %f", levels.Treble)
	}
}
