// Package dsp holds the small signal helpers shared by the leaf modules:
// waveform shapes on a normalized phase and MIDI note conversion.
package dsp

import (
	"fmt"
	"math"
)

// Shape selects a waveform for Sample.
type Shape int

const (
	ShapeSine Shape = iota
	ShapeTriangle
	ShapeSaw
	ShapeSquare
)

// ParseShape maps the patch-facing waveform names to shapes.
func ParseShape(s string) (Shape, error) {
	switch s {
	case "sine":
		return ShapeSine, nil
	case "triangle":
		return ShapeTriangle, nil
	case "saw":
		return ShapeSaw, nil
	case "square":
		return ShapeSquare, nil
	}
	return 0, fmt.Errorf("unknown waveform %q", s)
}

func (s Shape) String() string {
	switch s {
	case ShapeSine:
		return "sine"
	case ShapeTriangle:
		return "triangle"
	case ShapeSaw:
		return "saw"
	case ShapeSquare:
		return "square"
	default:
		return "unknown"
	}
}

// Sample evaluates the shape at phase in [0, 1). All shapes are bipolar in
// [-1, 1]. pw sets the square's duty cycle and is ignored by the others.
func Sample(s Shape, phase, pw float64) float32 {
	switch s {
	case ShapeSine:
		return float32(math.Sin(2 * math.Pi * phase))
	case ShapeTriangle:
		return float32(1 - 4*math.Abs(phase-0.5))
	case ShapeSaw:
		return float32(2*phase - 1)
	case ShapeSquare:
		if phase < pw {
			return 1
		}
		return -1
	}
	return 0
}

// NoteHz converts a MIDI note number to its equal-tempered frequency,
// A4 (note 69) = 440 Hz.
func NoteHz(note uint8) float64 {
	return 440 * math.Pow(2, (float64(note)-69)/12)
}
