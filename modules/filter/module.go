// Package filter provides a state-variable filter with simultaneous lowpass,
// highpass and bandpass outputs and per-sample cutoff and resonance CV.
package filter

import (
	"math"

	"github.com/Cignor/Collider-sub010/internal/module"
	"github.com/Cignor/Collider-sub010/internal/registry"
	"github.com/Cignor/Collider-sub010/internal/transport"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the module type with the engine registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterModule("filter", func() module.Module { return New() })
}

const (
	inSignal = iota
	inCutoffCV
	inResCV
)

const (
	pCutoff = iota
	pRes
)

const (
	outLP = iota
	outHP
	outBP
)

// maxCoeff keeps the two integrators stable when the cutoff is pushed toward
// the upper end of the audio band.
const maxCoeff = 1.2

// Filter is a Chamberlin state-variable filter. State is kept in float64 so
// the integrators stay clean at low cutoffs.
type Filter struct {
	sampleRate float64

	low  float64
	band float64
}

// New creates a Filter.
func New() *Filter {
	return &Filter{}
}

// Describe implements module.Module.
func (f *Filter) Describe(module.Config) module.Descriptor {
	return module.Descriptor{
		Inputs: []module.Pin{
			{Name: "in"},
			{Name: "cutoff_cv"},
			{Name: "res_cv"},
		},
		Outputs: []module.Pin{
			{Name: "lp"},
			{Name: "hp"},
			{Name: "bp"},
		},
		Params: []module.Param{
			{ID: "cutoff", Name: "Cutoff", Min: 20, Max: 20000, Default: 1000},
			{ID: "res", Name: "Resonance", Min: 0, Max: 1, Default: 0.2},
		},
		Routes: []module.Route{
			{ParamID: "cutoff", Input: "cutoff_cv"},
			{ParamID: "res", Input: "res_cv"},
		},
	}
}

// Prepare implements module.Module.
func (f *Filter) Prepare(info module.StreamInfo, cfg module.Config) error {
	f.sampleRate = info.SampleRate
	f.low = 0
	f.band = 0
	return nil
}

// SetTimingInfo implements module.Module.
func (f *Filter) SetTimingInfo(transport.State) {}

// Process implements module.Module.
func (f *Filter) Process(pc *module.ProcessContext) {
	in := pc.In[inSignal]
	lp := pc.Out[outLP]
	hp := pc.Out[outHP]
	bp := pc.Out[outBP]

	cutoff := pc.Param(pCutoff)
	res := pc.Param(pRes)
	cutoffPatched := pc.InputConnected(inCutoffCV)
	resPatched := pc.InputConnected(inResCV)
	cutoffCV := pc.In[inCutoffCV]
	resCV := pc.In[inResCV]

	for i := 0; i < pc.Frames; i++ {
		fc := cutoff
		if cutoffPatched {
			fc = float64(cutoffCV[i])
			if fc < 20 {
				fc = 20
			}
		}
		r := res
		if resPatched {
			r = float64(resCV[i])
			if r < 0 {
				r = 0
			} else if r > 1 {
				r = 1
			}
		}

		coeff := 2 * math.Sin(math.Pi*fc/f.sampleRate)
		if coeff > maxCoeff {
			coeff = maxCoeff
		}
		damp := 2 * (1 - r)
		if damp < 0.1 {
			damp = 0.1
		}

		x := float64(in[i])
		f.low += coeff * f.band
		high := x - f.low - damp*f.band
		f.band += coeff * high

		lp[i] = float32(f.low)
		hp[i] = float32(high)
		bp[i] = float32(f.band)
	}
}

// Close implements module.Module.
func (f *Filter) Close() error { return nil }
