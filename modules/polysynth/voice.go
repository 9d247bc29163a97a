package polysynth

import (
	"github.com/Cignor/Collider-sub010/internal/dsp"
)

type envStage int

const (
	stageIdle envStage = iota
	stageAttack
	stageDecay
	stageSustain
	stageRelease
)

// synthVoice is one oscillator through a linear ADSR. The host copies the
// envelope parameters in before each block; NoteOn and NoteOff only flip
// stages so retriggers are click-free (the attack ramps from the current
// envelope level instead of snapping to zero).
type synthVoice struct {
	sampleRate float64
	shape      dsp.Shape

	phase float64
	freq  float64
	amp   float64
	env   float64
	stage envStage

	attack  float64
	decay   float64
	sustain float64
	release float64
}

func (v *synthVoice) NoteOn(note, velocity uint8) {
	v.freq = dsp.NoteHz(note)
	v.amp = float64(velocity) / 127
	v.stage = stageAttack
}

func (v *synthVoice) NoteOff(uint8) {
	if v.stage != stageIdle {
		v.stage = stageRelease
	}
}

func (v *synthVoice) Active() bool {
	return v.stage != stageIdle
}

// render adds the voice's block into out.
func (v *synthVoice) render(out []float32) {
	inv := 1 / v.sampleRate
	for i := range out {
		switch v.stage {
		case stageAttack:
			v.env += inv / v.attack
			if v.env >= 1 {
				v.env = 1
				v.stage = stageDecay
			}
		case stageDecay:
			v.env -= inv * (1 - v.sustain) / v.decay
			if v.env <= v.sustain {
				v.env = v.sustain
				v.stage = stageSustain
			}
		case stageSustain:
			v.env = v.sustain
			if v.env <= 0 {
				v.stage = stageIdle
				return
			}
		case stageRelease:
			v.env -= inv / v.release
			if v.env <= 0 {
				v.env = 0
				v.stage = stageIdle
				return
			}
		default:
			return
		}

		out[i] += dsp.Sample(v.shape, v.phase, 0.5) * float32(v.env*v.amp)

		v.phase += v.freq * inv
		if v.phase >= 1 {
			v.phase -= 1
		}
	}
}
