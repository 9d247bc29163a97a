// Package output provides the graph's terminal sink. It collects a stereo
// feed, applies master gain, soft-clips, and exposes the result to the engine
// through the Terminal capability so the audio driver has something to play.
package output

import (
	"github.com/Cignor/Collider-sub010/internal/module"
	"github.com/Cignor/Collider-sub010/internal/registry"
	"github.com/Cignor/Collider-sub010/internal/transport"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the module type with the engine registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterModule("output", func() module.Module { return New() })
}

// Output is the master sink module. A patch usually has exactly one, but the
// engine mixes multiple terminals, so nothing breaks if two patches merge.
type Output struct {
	l, r []float32
}

// New creates an unprepared Output.
func New() *Output {
	return &Output{}
}

// Describe implements module.Module.
func (o *Output) Describe(module.Config) module.Descriptor {
	return module.Descriptor{
		Inputs: []module.Pin{
			{Name: "in_l"},
			{Name: "in_r"},
			{Name: "gain_cv"},
		},
		Params: []module.Param{
			{ID: "gain", Name: "Gain", Min: 0, Max: 2, Default: 0.8},
		},
		Routes: []module.Route{
			{ParamID: "gain", Input: "gain_cv"},
		},
	}
}

// Prepare implements module.Module.
func (o *Output) Prepare(info module.StreamInfo, _ module.Config) error {
	o.l = make([]float32, info.BlockSize)
	o.r = make([]float32, info.BlockSize)
	return nil
}

// SetTimingInfo implements module.Module. The sink has no musical state.
func (o *Output) SetTimingInfo(transport.State) {}

// Process implements module.Module. A patch cabled only to in_l plays on both
// sides; the right input takes over the moment it is connected.
func (o *Output) Process(pc *module.ProcessContext) {
	gain := float32(pc.Param(0))
	inL := pc.In[0]
	inR := pc.In[1]
	if !pc.InputConnected(1) {
		inR = inL
	}
	for i := 0; i < pc.Frames; i++ {
		o.l[i] = softClip(inL[i] * gain)
		o.r[i] = softClip(inR[i] * gain)
	}
}

// MasterOut implements module.Terminal.
func (o *Output) MasterOut() (left, right []float32) {
	return o.l, o.r
}

// Close implements module.Module.
func (o *Output) Close() error { return nil }

// softClip is a cubic saturator: unity slope at zero, bending into a hard
// ceiling of ±1 at ±1.5 input. Keeps a hot mix from slamming the DAC while
// staying transparent at sane levels.
func softClip(x float32) float32 {
	if x >= 1.5 {
		return 1
	}
	if x <= -1.5 {
		return -1
	}
	return x * (1 - x*x/6.75)
}
