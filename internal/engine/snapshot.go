package engine

import (
	"github.com/Cignor/Collider-sub010/internal/midimsg"
	"github.com/Cignor/Collider-sub010/internal/module"
)

// midiBufCap bounds the merged per-block MIDI stream. Messages past the cap
// are dropped and counted; 512 messages in one block is hardware gone wrong.
const midiBufCap = 512

// paramSlot resolves one parameter each block without map lookups or type
// checks. cvIn is the input pin whose signal overrides the stored value; it
// is only ever set when that pin is connected, so the render path needs no
// connectivity check.
type paramSlot struct {
	cell *paramCell
	min  float64
	max  float64
	cvIn int
}

// sumBinding mixes fan-in sources into one input buffer before the owning
// module processes.
type sumBinding struct {
	dst  []float32
	srcs [][]float32
}

// runtimeModule is one module wired into a snapshot: its context with bound
// buffers, its resolved parameter slots, and its fan-in work.
type runtimeModule struct {
	id       string
	mod      module.Module
	bypassed bool
	pc       module.ProcessContext
	slots    []paramSlot
	sums     []sumBinding
}

// snapshot is the immutable execution plan the render thread walks. A
// snapshot is built entirely on the control plane, published with one atomic
// pointer store, and never mutated afterwards except through the per-block
// fields of each runtimeModule's context, which only the render thread
// touches.
//
// Capability resolution happened at build time: the typed slices below are
// the only way the render thread reaches optional behavior, so the hot path
// contains no type assertions at all.
type snapshot struct {
	rev     uint64
	modules []*runtimeModule

	terminals []module.Terminal
	midiSinks []module.DeviceMIDIConsumer
	rhythm    []module.RhythmProvider
	masterID  string
	masterSrc module.TimelineSource

	// midiBuf backs the block's merged MIDI stream.
	midiBuf []midimsg.Message
	// silence backs every unconnected input in the snapshot. Nothing ever
	// writes it.
	silence []float32
}

// emptySnapshot renders silence. It is what the engine publishes before the
// first commit and after Close.
func emptySnapshot(rev uint64, blockSize int) *snapshot {
	return &snapshot{
		rev:     rev,
		midiBuf: make([]midimsg.Message, 0, midiBufCap),
		silence: make([]float32, blockSize),
	}
}
