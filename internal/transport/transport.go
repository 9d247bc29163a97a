// Package transport owns musical time: the sample-domain clock, the
// play/stop/tempo control surface, and the timing state that is broadcast to
// every module once per block.
//
// The split matters for thread safety. Control surface methods (Play, Stop,
// SetBPM, ...) may be called from any goroutine and only touch atomics. The
// clock's position fields belong to the render thread alone: BeginBlock and
// EndBlock are called from inside the block renderer and nowhere else.
package transport

// Command identifies the most recent transport operation. It is broadcast in
// State so modules can react to discrete operations, not just to the
// resulting playing/position values.
type Command int32

const (
	CommandNone Command = iota
	CommandPlay
	CommandPause
	CommandStop
	CommandReset
	CommandSetBPM
	CommandSetDivision
)

func (c Command) String() string {
	switch c {
	case CommandNone:
		return "none"
	case CommandPlay:
		return "play"
	case CommandPause:
		return "pause"
	case CommandStop:
		return "stop"
	case CommandReset:
		return "reset"
	case CommandSetBPM:
		return "set_bpm"
	case CommandSetDivision:
		return "set_division"
	default:
		return "unknown"
	}
}

// State is the timing snapshot handed to every module at the top of each
// block. It is a plain value: modules may keep a copy, never a pointer into
// engine internals.
type State struct {
	// PositionSamples is the song position in samples at block start.
	PositionSamples int64
	// PositionBeats is the song position in quarter-note beats at block start.
	PositionBeats float64
	// BPM is the tempo in quarter notes per minute.
	BPM float64
	// Playing reports whether the transport is running.
	Playing bool
	// LastCommand is the most recent control surface operation.
	LastCommand Command
	// ForceReset is asserted for exactly one block after a reset command or
	// a timeline wrap. Modules with musical phase (sequencers, synced LFOs)
	// must rewind to their initial position when they see it.
	ForceReset bool
	// DivisionIndex indexes Divisions and is the patch-wide default note
	// length for synced modules.
	DivisionIndex int
	// MasterID names the timeline master module, or is empty when the
	// internal clock is authoritative.
	MasterID string
	// SampleRate is the engine sample rate in Hz.
	SampleRate float64
	// BlockFrames is the number of frames in the block about to render.
	BlockFrames int
}

// TimelineState is what a timeline master publishes about its own playback.
// The render thread reads it once per block, before timing is broadcast, so
// implementations must make it a cheap atomic read.
type TimelineState struct {
	// PositionSamples is the master's playback position.
	PositionSamples int64
	// LengthSamples is the loop length; 0 means the master does not loop.
	LengthSamples int64
	// Rate is the playback step per output frame (a sampler playing at
	// double speed reports 2). Zero is treated as 1.
	Rate float64
	// BPM is the master's tempo claim; 0 claims nothing and leaves the
	// engine tempo in charge.
	BPM float64
}

// RhythmInfo describes one rhythm source for UI and monitoring surfaces.
// It is collected by a low-frequency scan on the control plane.
type RhythmInfo struct {
	DisplayName string  `json:"display_name"`
	BPM         float64 `json:"bpm"`
	IsActive    bool    `json:"is_active"`
	IsSynced    bool    `json:"is_synced"`
	SourceType  string  `json:"source_type"`
}

// Controller is the transport control surface, safe to call from any
// goroutine. The clock implements it; modules that need to drive the
// transport (remote bridges, MIDI machine control) are handed one at bind
// time rather than reaching into the engine.
type Controller interface {
	Play()
	Pause()
	Stop()
	Reset()
	SetBPM(bpm float64)
	SetDivision(index int)
}
