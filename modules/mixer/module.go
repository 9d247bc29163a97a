// Package mixer provides an N-channel summing mixer. The channel count is a
// structural parameter: changing it regrows the input pin list and the
// per-channel level parameters on the next commit.
package mixer

import (
	"strconv"

	"github.com/Cignor/Collider-sub010/internal/module"
	"github.com/Cignor/Collider-sub010/internal/registry"
	"github.com/Cignor/Collider-sub010/internal/transport"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the module type with the engine registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterModule("mixer", func() module.Module { return New() })
}

const (
	minInputs     = 1
	maxInputs     = 16
	defaultInputs = 4
)

// Mixer sums its inputs, each through a per-channel level, into one output
// scaled by a master level.
type Mixer struct {
	inputs int
}

// New creates a Mixer.
func New() *Mixer {
	return &Mixer{}
}

func inputCount(cfg module.Config) int {
	n := int(cfg.Param("inputs", defaultInputs))
	if n < minInputs {
		n = minInputs
	}
	if n > maxInputs {
		n = maxInputs
	}
	return n
}

// Describe implements module.Module. Input pins in_1..in_N and their level
// parameters are derived from the structural inputs parameter.
func (mx *Mixer) Describe(cfg module.Config) module.Descriptor {
	n := inputCount(cfg)

	d := module.Descriptor{
		Outputs: []module.Pin{
			{Name: "out"},
		},
		Params: []module.Param{
			{ID: "inputs", Name: "Inputs", Min: minInputs, Max: maxInputs, Default: defaultInputs, Structural: true},
			{ID: "level", Name: "Level", Min: 0, Max: 2, Default: 1},
		},
		Routes: []module.Route{
			{ParamID: "level", Input: "level_cv"},
		},
	}
	for i := 1; i <= n; i++ {
		idx := strconv.Itoa(i)
		d.Inputs = append(d.Inputs, module.Pin{Name: "in_" + idx})
		d.Params = append(d.Params, module.Param{
			ID: "level_" + idx, Name: "Level " + idx, Min: 0, Max: 2, Default: 1,
		})
	}
	d.Inputs = append(d.Inputs, module.Pin{Name: "level_cv"})
	return d
}

// Prepare implements module.Module.
func (mx *Mixer) Prepare(_ module.StreamInfo, cfg module.Config) error {
	mx.inputs = inputCount(cfg)
	return nil
}

// SetTimingInfo implements module.Module.
func (mx *Mixer) SetTimingInfo(transport.State) {}

// Process implements module.Module. Unpatched channels are skipped rather
// than summed as silence.
func (mx *Mixer) Process(pc *module.ProcessContext) {
	out := pc.Out[0]
	for i := 0; i < pc.Frames; i++ {
		out[i] = 0
	}

	// Per-channel level params start after inputs and level.
	for ch := 0; ch < mx.inputs; ch++ {
		if !pc.InputConnected(ch) {
			continue
		}
		lvl := float32(pc.Param(2 + ch))
		if lvl == 0 {
			continue
		}
		in := pc.In[ch]
		for i := 0; i < pc.Frames; i++ {
			out[i] += in[i] * lvl
		}
	}

	if pc.InputConnected(mx.inputs) {
		cv := pc.In[mx.inputs]
		for i := 0; i < pc.Frames; i++ {
			g := cv[i]
			if g < 0 {
				g = 0
			}
			out[i] *= g
		}
		return
	}

	master := float32(pc.Param(1))
	if master == 1 {
		return
	}
	for i := 0; i < pc.Frames; i++ {
		out[i] *= master
	}
}

// Close implements module.Module.
func (mx *Mixer) Close() error { return nil }
