// Package sequencer provides a transport-synced step sequencer. Each step has
// a pitch and an on/off switch; the step length is the patch-wide division.
// The step count is structural, so changing it regrows the per-step parameter
// set on the next commit.
package sequencer

import (
	"fmt"
	"math"
	"strconv"
	"sync/atomic"

	"github.com/Cignor/Collider-sub010/internal/module"
	"github.com/Cignor/Collider-sub010/internal/registry"
	"github.com/Cignor/Collider-sub010/internal/transport"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the module type with the engine registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterModule("sequencer", func() module.Module { return New() })
}

const (
	minSteps     = 1
	maxSteps     = 16
	defaultSteps = 8
)

const (
	outGate = iota
	outPitch
)

const (
	pSteps = iota
	pGateLen
	pFirstStep // pitch_1..pitch_N, then on_1..on_N
)

// Sequencer walks its steps on division boundaries while the transport plays.
// The current step is exported through atomics for the rhythm scan and for
// state capture across instance replacement.
type Sequencer struct {
	steps int

	// Render-thread state.
	beatAcc   float64
	lastPitch float32
	reset     bool
	st        transport.State

	// Shared with the control plane.
	step    atomic.Int64
	active  atomic.Bool
	bpmBits atomic.Uint64
}

// New creates a Sequencer.
func New() *Sequencer {
	return &Sequencer{}
}

func stepCount(cfg module.Config) int {
	n := int(cfg.Param("steps", defaultSteps))
	if n < minSteps {
		n = minSteps
	}
	if n > maxSteps {
		n = maxSteps
	}
	return n
}

// Describe implements module.Module. pitch_N is the step's output frequency
// in Hz; on_N mutes the step's gate without removing it from the cycle.
func (s *Sequencer) Describe(cfg module.Config) module.Descriptor {
	n := stepCount(cfg)

	d := module.Descriptor{
		Outputs: []module.Pin{
			{Name: "gate"},
			{Name: "pitch"},
		},
		Params: []module.Param{
			{ID: "steps", Name: "Steps", Min: minSteps, Max: maxSteps, Default: defaultSteps, Structural: true},
			{ID: "gate_len", Name: "Gate Length", Min: 0.05, Max: 1, Default: 0.5},
		},
	}
	for i := 1; i <= n; i++ {
		idx := strconv.Itoa(i)
		d.Params = append(d.Params, module.Param{
			ID: "pitch_" + idx, Name: "Pitch " + idx, Min: 20, Max: 2000, Default: 220,
		})
	}
	for i := 1; i <= n; i++ {
		idx := strconv.Itoa(i)
		d.Params = append(d.Params, module.Param{
			ID: "on_" + idx, Name: "Step " + idx + " On", Min: 0, Max: 1, Default: 1,
		})
	}
	return d
}

// Prepare implements module.Module.
func (s *Sequencer) Prepare(_ module.StreamInfo, cfg module.Config) error {
	s.steps = stepCount(cfg)
	s.lastPitch = 220
	return nil
}

// SetTimingInfo implements module.Module.
func (s *Sequencer) SetTimingInfo(st transport.State) {
	s.st = st
	if st.ForceReset {
		s.reset = true
	}
	s.active.Store(st.Playing)
	if st.Playing {
		s.bpmBits.Store(math.Float64bits(st.BPM))
	} else {
		s.bpmBits.Store(0)
	}
}

// Process implements module.Module. The step position is an internal beat
// accumulator rather than a value derived from the song position, so the
// sequence keeps its own musical phase until a reset pulse realigns it. While
// the transport is stopped the gate stays low and the pitch holds its last
// value so a downstream envelope release is not cut short.
func (s *Sequencer) Process(pc *module.ProcessContext) {
	if s.reset {
		s.step.Store(0)
		s.beatAcc = 0
		s.reset = false
	}

	gate := pc.Out[outGate]
	pitch := pc.Out[outPitch]

	if !s.st.Playing {
		for i := 0; i < pc.Frames; i++ {
			gate[i] = 0
			pitch[i] = s.lastPitch
		}
		return
	}

	divBeats := transport.DivisionAt(s.st.DivisionIndex).Beats
	gateBeats := pc.Param(pGateLen) * divBeats
	beatsPerSample := s.st.BPM / 60 / s.st.SampleRate

	step := int(s.step.Load()) % s.steps
	for i := 0; i < pc.Frames; i++ {
		for s.beatAcc >= divBeats {
			s.beatAcc -= divBeats
			step++
			if step >= s.steps {
				step = 0
			}
		}

		p := float32(pc.Param(pFirstStep + step))
		on := pc.Param(pFirstStep+s.steps+step) >= 0.5
		s.lastPitch = p
		pitch[i] = p
		if on && s.beatAcc < gateBeats {
			gate[i] = 1
		} else {
			gate[i] = 0
		}

		s.beatAcc += beatsPerSample
	}
	s.step.Store(int64(step))
}

// RhythmInfo implements module.RhythmProvider. A stopped transport reports an
// inactive source with no tempo claim.
func (s *Sequencer) RhythmInfo() transport.RhythmInfo {
	return transport.RhythmInfo{
		DisplayName: fmt.Sprintf("%d-step sequencer", s.steps),
		BPM:         math.Float64frombits(s.bpmBits.Load()),
		IsActive:    s.active.Load(),
		IsSynced:    true,
		SourceType:  "sequencer",
	}
}

// SaveState implements module.Stateful. The blob is the current step index.
func (s *Sequencer) SaveState() []byte {
	return []byte(strconv.FormatInt(s.step.Load(), 10))
}

// RestoreState implements module.Stateful.
func (s *Sequencer) RestoreState(state []byte) error {
	n, err := strconv.ParseInt(string(state), 10, 64)
	if err != nil {
		return fmt.Errorf("sequencer state: %w", err)
	}
	if n < 0 || n >= int64(s.steps) {
		n = 0
	}
	s.step.Store(n)
	return nil
}

// Close implements module.Module.
func (s *Sequencer) Close() error { return nil }
