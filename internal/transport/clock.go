package transport

import (
	"math"
	"sync/atomic"
)

const (
	minBPM = 1
	maxBPM = 999
)

// Clock is the engine's internal timeline. Control surface methods are
// goroutine-safe; BeginBlock and EndBlock must only be called from the render
// thread.
//
// When a timeline master is present the clock follows it: every BeginBlock
// adopts the master's position (and tempo, if it claims one). Because the
// clock keeps following block by block, deleting the master simply lets the
// clock freewheel on from the last followed position with no jump.
type Clock struct {
	sampleRate float64

	// Control surface state, written from any goroutine.
	playing       atomic.Bool
	bpmBits       atomic.Uint64
	divisionIndex atomic.Int32
	lastCommand   atomic.Int32
	pendingReset  atomic.Bool
	pendingRewind atomic.Bool

	// Render thread state. Never touched outside BeginBlock/EndBlock.
	posSamples int64
	posBeats   float64
	blockBPM   float64
}

// NewClock creates a stopped clock at position zero, 120 BPM.
func NewClock(sampleRate float64) *Clock {
	c := &Clock{sampleRate: sampleRate}
	c.bpmBits.Store(math.Float64bits(120))
	c.divisionIndex.Store(DefaultDivisionIndex)
	return c
}

// Play starts the transport from the current position.
func (c *Clock) Play() {
	c.playing.Store(true)
	c.lastCommand.Store(int32(CommandPlay))
}

// Pause stops the transport, holding the current position.
func (c *Clock) Pause() {
	c.playing.Store(false)
	c.lastCommand.Store(int32(CommandPause))
}

// Stop stops the transport and rewinds to zero. Modules see a reset pulse on
// the next block so their musical phase rewinds with the position.
func (c *Clock) Stop() {
	c.playing.Store(false)
	c.pendingRewind.Store(true)
	c.pendingReset.Store(true)
	c.lastCommand.Store(int32(CommandStop))
}

// Reset rewinds to zero without changing the playing state and pulses
// ForceReset on the next block.
func (c *Clock) Reset() {
	c.pendingRewind.Store(true)
	c.pendingReset.Store(true)
	c.lastCommand.Store(int32(CommandReset))
}

// SetBPM updates the tempo, clamped to a sane musical range.
func (c *Clock) SetBPM(bpm float64) {
	c.bpmBits.Store(math.Float64bits(math.Min(maxBPM, math.Max(minBPM, bpm))))
	c.lastCommand.Store(int32(CommandSetBPM))
}

// SetDivision updates the patch-wide division index.
func (c *Clock) SetDivision(index int) {
	if index < 0 || index >= len(Divisions) {
		index = DefaultDivisionIndex
	}
	c.divisionIndex.Store(int32(index))
	c.lastCommand.Store(int32(CommandSetDivision))
}

// BPM returns the current tempo setting.
func (c *Clock) BPM() float64 {
	return math.Float64frombits(c.bpmBits.Load())
}

// Playing reports the current run state.
func (c *Clock) Playing() bool {
	return c.playing.Load()
}

// BeginBlock computes the timing state for the block about to render.
// master carries the timeline master's published state when hasMaster is
// true; masterID is its instance name.
//
// The reset pulse is consumed here, so it appears in exactly one State. A
// master wrap predicted to land inside this block also raises the pulse:
// master position is sampled at block start, so position+advance crossing the
// loop length means the wrap happens during this very block.
func (c *Clock) BeginBlock(frames int, master TimelineState, hasMaster bool, masterID string) State {
	playing := c.playing.Load()
	bpm := c.BPM()
	forceReset := c.pendingReset.Swap(false)

	if c.pendingRewind.Swap(false) {
		c.posSamples = 0
		c.posBeats = 0
	}

	if hasMaster {
		if master.BPM > 0 {
			bpm = master.BPM
		}
		c.posSamples = master.PositionSamples
		c.posBeats = float64(master.PositionSamples) / c.sampleRate * bpm / 60
		if playing && master.LengthSamples > 0 {
			rate := master.Rate
			if rate <= 0 {
				rate = 1
			}
			advance := int64(math.Ceil(rate * float64(frames)))
			if master.PositionSamples+advance >= master.LengthSamples {
				forceReset = true
			}
		}
	}

	c.blockBPM = bpm
	return State{
		PositionSamples: c.posSamples,
		PositionBeats:   c.posBeats,
		BPM:             bpm,
		Playing:         playing,
		LastCommand:     Command(c.lastCommand.Load()),
		ForceReset:      forceReset,
		DivisionIndex:   int(c.divisionIndex.Load()),
		MasterID:        masterID,
		SampleRate:      c.sampleRate,
		BlockFrames:     frames,
	}
}

// EndBlock advances the position past the block just rendered. The beat
// position accumulates with the tempo that was in force for the block, so a
// tempo change never rewrites musical history.
func (c *Clock) EndBlock(frames int) {
	if !c.playing.Load() {
		return
	}
	c.posSamples += int64(frames)
	c.posBeats += float64(frames) / c.sampleRate * c.blockBPM / 60
}
