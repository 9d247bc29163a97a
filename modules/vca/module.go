// Package vca provides a voltage-controlled amplifier: one signal in, one
// signal out, gain set by a parameter or modulated per sample by a CV input.
package vca

import (
	"github.com/Cignor/Collider-sub010/internal/module"
	"github.com/Cignor/Collider-sub010/internal/registry"
	"github.com/Cignor/Collider-sub010/internal/transport"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the module type with the engine registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterModule("vca", func() module.Module { return New() })
}

// pin and parameter indices, matching Describe order.
const (
	inSignal = iota
	inGainCV
)

// VCA multiplies its input by a gain.
type VCA struct{}

// New creates a VCA.
func New() *VCA {
	return &VCA{}
}

// Describe implements module.Module.
func (v *VCA) Describe(module.Config) module.Descriptor {
	return module.Descriptor{
		Inputs: []module.Pin{
			{Name: "in"},
			{Name: "gain_cv"},
		},
		Outputs: []module.Pin{
			{Name: "out"},
		},
		Params: []module.Param{
			{ID: "gain", Name: "Gain", Min: 0, Max: 2, Default: 1},
		},
		Routes: []module.Route{
			{ParamID: "gain", Input: "gain_cv"},
		},
	}
}

// Prepare implements module.Module.
func (v *VCA) Prepare(module.StreamInfo, module.Config) error { return nil }

// SetTimingInfo implements module.Module.
func (v *VCA) SetTimingInfo(transport.State) {}

// Process implements module.Module. With gain_cv patched the gain tracks the
// CV sample by sample, so an envelope shapes the signal inside the block
// instead of stair-stepping at block rate. Negative CV swings are treated as
// closed, not inverted.
func (v *VCA) Process(pc *module.ProcessContext) {
	in := pc.In[inSignal]
	out := pc.Out[0]

	if pc.InputConnected(inGainCV) {
		cv := pc.In[inGainCV]
		for i := 0; i < pc.Frames; i++ {
			g := cv[i]
			if g < 0 {
				g = 0
			}
			out[i] = in[i] * g
		}
		return
	}

	gain := float32(pc.Param(0))
	for i := 0; i < pc.Frames; i++ {
		out[i] = in[i] * gain
	}
}

// Close implements module.Module.
func (v *VCA) Close() error { return nil }
