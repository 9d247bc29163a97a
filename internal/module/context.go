package module

import (
	"github.com/Cignor/Collider-sub010/internal/midimsg"
)

// ProcessContext is the per-block view a module processes against. The engine
// owns one context per module per snapshot and rebinds the cheap fields
// (Frames, MIDI, Params) every block; the buffer bindings are fixed at commit
// time.
//
// Buffers follow single-writer discipline: a module writes only its own Out
// slices and reads only its In slices. In slices may alias another module's
// output, a fan-in sum buffer, or the engine's shared silence buffer, so
// modules must never write through In. Slices are valid for the duration of
// Process only; retaining one across blocks reads stale or foreign data.
type ProcessContext struct {
	// Frames is the number of frames to render this block.
	Frames int

	// In holds one buffer per input pin, in Descriptor order. Unconnected
	// pins read as silence.
	In [][]float32

	// Out holds one buffer per output pin, in Descriptor order. The module
	// must fully write every output each block; the engine does not clear
	// them between blocks.
	Out [][]float32

	// MIDI is the block's merged message stream, shared read-only by every
	// module in the snapshot.
	MIDI []midimsg.Message

	// Params holds the block's resolved parameter values in Descriptor
	// order: the routed signal value where a routed pin is connected, the
	// stored value otherwise, clamped either way.
	Params []float64

	// Connected is a bitmask over input pins; bit i set means input i has at
	// least one cable. Pins past index 63 report as connected when in doubt;
	// no shipped module has that many.
	Connected uint64
}

// Param returns the resolved value of the i'th parameter.
func (pc *ProcessContext) Param(i int) float64 { return pc.Params[i] }

// InputConnected reports whether input pin i has at least one cable. Modules
// use this to give unconnected control inputs a neutral meaning (a VCA treats
// a missing gain signal as unity, not as silence).
func (pc *ProcessContext) InputConnected(i int) bool {
	if i >= 64 {
		return true
	}
	return pc.Connected&(1<<uint(i)) != 0
}
