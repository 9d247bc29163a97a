// Package polysynth provides a MIDI-driven polyphonic synth voice host. A
// fixed pool of oscillator+ADSR voices is built at prepare time; note
// assignment on the render thread is allocation free, with oldest-note
// stealing once the pool is full.
package polysynth

import (
	"fmt"
	"strconv"

	"github.com/Cignor/Collider-sub010/internal/dsp"
	"github.com/Cignor/Collider-sub010/internal/module"
	"github.com/Cignor/Collider-sub010/internal/registry"
	"github.com/Cignor/Collider-sub010/internal/transport"
	"github.com/Cignor/Collider-sub010/internal/voice"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the module type with the engine registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterModule("polysynth", func() module.Module { return New() })
}

const (
	minVoices     = 1
	maxVoices     = 16
	defaultVoices = 8
)

const inLevelCV = 0

const (
	pVoices = iota
	pSplit
	pChannel
	pAttack
	pDecay
	pSustain
	pRelease
	pLevel
)

// PolySynth hosts a voice pool fed by the block's merged MIDI stream.
type PolySynth struct {
	voices []*synthVoice
	pool   *voice.Pool
	split  bool

	wasPlaying bool
	releaseAll bool
}

// New creates a PolySynth.
func New() *PolySynth {
	return &PolySynth{}
}

func voiceCount(cfg module.Config) int {
	n := int(cfg.Param("voices", defaultVoices))
	if n < minVoices {
		n = minVoices
	}
	if n > maxVoices {
		n = maxVoices
	}
	return n
}

// Describe implements module.Module. With split enabled every voice also gets
// its own raw output pin next to the level-scaled mix.
func (p *PolySynth) Describe(cfg module.Config) module.Descriptor {
	n := voiceCount(cfg)
	split := cfg.Param("split", 0) >= 0.5

	d := module.Descriptor{
		Inputs: []module.Pin{
			{Name: "level_cv"},
		},
		Outputs: []module.Pin{
			{Name: "out"},
		},
		Params: []module.Param{
			{ID: "voices", Name: "Voices", Min: minVoices, Max: maxVoices, Default: defaultVoices, Structural: true},
			{ID: "split", Name: "Split Outputs", Min: 0, Max: 1, Default: 0, Structural: true},
			{ID: "channel", Name: "MIDI Channel", Min: 0, Max: 16, Default: 0},
			{ID: "attack", Name: "Attack", Min: 0.001, Max: 5, Default: 0.01},
			{ID: "decay", Name: "Decay", Min: 0.001, Max: 5, Default: 0.1},
			{ID: "sustain", Name: "Sustain", Min: 0, Max: 1, Default: 0.7},
			{ID: "release", Name: "Release", Min: 0.001, Max: 10, Default: 0.3},
			{ID: "level", Name: "Level", Min: 0, Max: 1, Default: 0.5},
		},
		Options: []module.Option{
			{ID: "wave", Default: "saw"},
		},
		Routes: []module.Route{
			{ParamID: "level", Input: "level_cv"},
		},
	}
	if split {
		for i := 1; i <= n; i++ {
			d.Outputs = append(d.Outputs, module.Pin{Name: "voice_" + strconv.Itoa(i)})
		}
	}
	return d
}

// Prepare implements module.Module.
func (p *PolySynth) Prepare(info module.StreamInfo, cfg module.Config) error {
	shape, err := dsp.ParseShape(cfg.Option("wave", "saw"))
	if err != nil {
		return fmt.Errorf("polysynth: %w", err)
	}

	n := voiceCount(cfg)
	p.split = cfg.Param("split", 0) >= 0.5
	p.voices = make([]*synthVoice, n)
	pooled := make([]voice.Voice, n)
	for i := range p.voices {
		v := &synthVoice{sampleRate: info.SampleRate, shape: shape}
		p.voices[i] = v
		pooled[i] = v
	}
	p.pool = voice.NewPool(pooled)
	return nil
}

// SetTimingInfo implements module.Module. A reset pulse or a stop releases
// every held note; the tails ring out through the envelopes' release stage.
func (p *PolySynth) SetTimingInfo(st transport.State) {
	if st.ForceReset || (p.wasPlaying && !st.Playing && st.LastCommand == transport.CommandStop) {
		p.releaseAll = true
	}
	p.wasPlaying = st.Playing
}

// Process implements module.Module.
func (p *PolySynth) Process(pc *module.ProcessContext) {
	if p.releaseAll {
		p.pool.ReleaseAll()
		p.releaseAll = false
	}

	channel := int(pc.Param(pChannel))
	for _, msg := range pc.MIDI {
		if channel > 0 && int(msg.Channel()) != channel-1 {
			continue
		}
		switch {
		case msg.IsNoteOn():
			p.pool.NoteOn(msg.Note(), msg.Velocity())
		case msg.IsNoteOff():
			p.pool.NoteOff(msg.Note())
		}
	}

	attack := pc.Param(pAttack)
	decay := pc.Param(pDecay)
	sustain := pc.Param(pSustain)
	release := pc.Param(pRelease)
	for _, v := range p.voices {
		v.attack = attack
		v.decay = decay
		v.sustain = sustain
		v.release = release
	}

	out := pc.Out[0]
	for i := 0; i < pc.Frames; i++ {
		out[i] = 0
	}

	if p.split {
		for vi, v := range p.voices {
			vOut := pc.Out[1+vi]
			for i := 0; i < pc.Frames; i++ {
				vOut[i] = 0
			}
			if v.Active() {
				v.render(vOut)
			}
			for i := 0; i < pc.Frames; i++ {
				out[i] += vOut[i]
			}
		}
	} else {
		for _, v := range p.voices {
			if v.Active() {
				v.render(out)
			}
		}
	}

	level := float32(pc.Param(pLevel))
	for i := 0; i < pc.Frames; i++ {
		out[i] *= level
	}
}

// Close implements module.Module.
func (p *PolySynth) Close() error { return nil }
