// Package oscillator provides the primary tone source: a phase-accumulator
// oscillator with sine, triangle, saw and square shapes, per-sample frequency
// CV, linear FM, and hard sync.
package oscillator

import (
	"fmt"

	"github.com/Cignor/Collider-sub010/internal/dsp"
	"github.com/Cignor/Collider-sub010/internal/module"
	"github.com/Cignor/Collider-sub010/internal/registry"
	"github.com/Cignor/Collider-sub010/internal/transport"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the module type with the engine registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterModule("oscillator", func() module.Module { return New() })
}

const (
	inFreqCV = iota
	inFM
	inSync
)

const (
	pFreq = iota
	pFM
	pPW
)

// Oscillator is a naive phase-accumulator tone generator. Phase lives in
// [0, 1) and advances by freq/sampleRate per sample.
type Oscillator struct {
	shape      dsp.Shape
	sampleRate float64

	phase    float64
	lastSync float32
	reset    bool
}

// New creates an Oscillator.
func New() *Oscillator {
	return &Oscillator{}
}

// Describe implements module.Module.
func (o *Oscillator) Describe(module.Config) module.Descriptor {
	return module.Descriptor{
		Inputs: []module.Pin{
			{Name: "freq_cv"},
			{Name: "fm"},
			{Name: "sync"},
		},
		Outputs: []module.Pin{
			{Name: "out"},
		},
		Params: []module.Param{
			{ID: "freq", Name: "Frequency", Min: 0.1, Max: 20000, Default: 440},
			{ID: "fm_amt", Name: "FM Amount", Min: 0, Max: 2000, Default: 0},
			{ID: "pw", Name: "Pulse Width", Min: 0.05, Max: 0.95, Default: 0.5},
		},
		Options: []module.Option{
			{ID: "wave", Default: "sine"},
		},
		Routes: []module.Route{
			{ParamID: "freq", Input: "freq_cv"},
		},
	}
}

// Prepare implements module.Module.
func (o *Oscillator) Prepare(info module.StreamInfo, cfg module.Config) error {
	shape, err := dsp.ParseShape(cfg.Option("wave", "sine"))
	if err != nil {
		return fmt.Errorf("oscillator: %w", err)
	}
	o.shape = shape
	o.sampleRate = info.SampleRate
	return nil
}

// SetTimingInfo implements module.Module. The oscillator free-runs regardless
// of play state but rewinds its phase on the global reset pulse.
func (o *Oscillator) SetTimingInfo(st transport.State) {
	if st.ForceReset {
		o.reset = true
	}
}

// Process implements module.Module. With freq_cv patched the pitch tracks the
// CV in Hz sample by sample; the fm input adds a linear deviation scaled by
// fm_amt. A rising edge through zero on the sync input snaps the phase back
// to the start of the cycle.
func (o *Oscillator) Process(pc *module.ProcessContext) {
	if o.reset {
		o.phase = 0
		o.reset = false
	}

	out := pc.Out[0]
	freq := pc.Param(pFreq)
	fmAmt := pc.Param(pFM)
	pw := pc.Param(pPW)

	cvPatched := pc.InputConnected(inFreqCV)
	fmPatched := pc.InputConnected(inFM)
	syncPatched := pc.InputConnected(inSync)
	cv := pc.In[inFreqCV]
	fmIn := pc.In[inFM]
	sync := pc.In[inSync]

	inv := 1 / o.sampleRate
	for i := 0; i < pc.Frames; i++ {
		f := freq
		if cvPatched {
			f = float64(cv[i])
		}
		if fmPatched {
			f += float64(fmIn[i]) * fmAmt
		}
		if f < 0 {
			f = 0
		}

		if syncPatched {
			s := sync[i]
			if o.lastSync <= 0 && s > 0 {
				o.phase = 0
			}
			o.lastSync = s
		}

		out[i] = dsp.Sample(o.shape, o.phase, pw)

		o.phase += f * inv
		if o.phase >= 1 {
			o.phase -= 1
		}
	}
}

// Close implements module.Module.
func (o *Oscillator) Close() error { return nil }
