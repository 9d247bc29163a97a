// Package lfo provides a low-frequency modulation source. It free-runs at a
// rate in Hz or, when sync is on, locks one cycle to the patch-wide division
// so the shape stays glued to the timeline through pause, stop and loop wrap.
package lfo

import (
	"fmt"
	"math"

	"github.com/Cignor/Collider-sub010/internal/dsp"
	"github.com/Cignor/Collider-sub010/internal/module"
	"github.com/Cignor/Collider-sub010/internal/registry"
	"github.com/Cignor/Collider-sub010/internal/transport"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the module type with the engine registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterModule("lfo", func() module.Module { return New() })
}

const inRateCV = 0

const (
	pRate = iota
	pDepth
	pOffset
	pSync
)

// LFO emits offset + depth * shape(phase).
type LFO struct {
	shape      dsp.Shape
	sampleRate float64

	phase float64
	st    transport.State
	reset bool
}

// New creates an LFO.
func New() *LFO {
	return &LFO{}
}

// Describe implements module.Module.
func (l *LFO) Describe(module.Config) module.Descriptor {
	return module.Descriptor{
		Inputs: []module.Pin{
			{Name: "rate_cv"},
		},
		Outputs: []module.Pin{
			{Name: "out"},
		},
		Params: []module.Param{
			{ID: "rate", Name: "Rate", Min: 0.01, Max: 50, Default: 1},
			{ID: "depth", Name: "Depth", Min: 0, Max: 1, Default: 1},
			{ID: "offset", Name: "Offset", Min: -1, Max: 1, Default: 0},
			{ID: "sync", Name: "Sync", Min: 0, Max: 1, Default: 0},
		},
		Options: []module.Option{
			{ID: "wave", Default: "sine"},
		},
		Routes: []module.Route{
			{ParamID: "rate", Input: "rate_cv"},
		},
	}
}

// Prepare implements module.Module.
func (l *LFO) Prepare(info module.StreamInfo, cfg module.Config) error {
	shape, err := dsp.ParseShape(cfg.Option("wave", "sine"))
	if err != nil {
		return fmt.Errorf("lfo: %w", err)
	}
	l.shape = shape
	l.sampleRate = info.SampleRate
	return nil
}

// SetTimingInfo implements module.Module.
func (l *LFO) SetTimingInfo(st transport.State) {
	l.st = st
	if st.ForceReset {
		l.reset = true
	}
}

// Process implements module.Module. Synced mode derives phase from the beat
// position instead of accumulating, so a paused transport freezes the LFO and
// a stop or loop wrap snaps it back without drift.
func (l *LFO) Process(pc *module.ProcessContext) {
	if l.reset {
		l.phase = 0
		l.reset = false
	}

	out := pc.Out[0]
	depth := float32(pc.Param(pDepth))
	offset := float32(pc.Param(pOffset))

	if pc.Param(pSync) >= 0.5 {
		divBeats := transport.DivisionAt(l.st.DivisionIndex).Beats
		beatsPerSample := l.st.BPM / 60 / l.sampleRate
		for i := 0; i < pc.Frames; i++ {
			beats := l.st.PositionBeats + float64(i)*beatsPerSample
			l.phase = math.Mod(beats/divBeats, 1)
			out[i] = offset + depth*dsp.Sample(l.shape, l.phase, 0.5)
		}
		return
	}

	rate := pc.Param(pRate)
	ratePatched := pc.InputConnected(inRateCV)
	cv := pc.In[inRateCV]
	inv := 1 / l.sampleRate
	for i := 0; i < pc.Frames; i++ {
		r := rate
		if ratePatched {
			r = float64(cv[i])
			if r < 0 {
				r = 0
			}
		}
		out[i] = offset + depth*dsp.Sample(l.shape, l.phase, 0.5)
		l.phase += r * inv
		if l.phase >= 1 {
			l.phase -= 1
		}
	}
}

// Close implements module.Module.
func (l *LFO) Close() error { return nil }
