// Package scriptcv runs a user Lua function as a control-rate CV source. The
// script defines process(t, input, bpm, beat) and its return value is held on
// the output until the next result arrives.
//
// Lua is far too slow and allocation-happy for the render path, so the
// interpreter lives on its own goroutine: each block the module posts a job
// without blocking and emits the most recent result. If the script is still
// busy the block simply reuses the last value, which for a control signal is
// the right degradation.
package scriptcv

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"

	"github.com/Cignor/Collider-sub010/internal/module"
	"github.com/Cignor/Collider-sub010/internal/registry"
	"github.com/Cignor/Collider-sub010/internal/transport"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the module type with the engine registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterModule("scriptcv", func() module.Module { return New() })
}

const inSignal = 0

const (
	pScale = iota
	pOffset
)

type job struct {
	t    float64
	in   float64
	bpm  float64
	beat float64
}

// ScriptCV bridges the render thread and a Lua worker.
type ScriptCV struct {
	sampleRate float64

	jobs chan job
	done chan struct{}
	wg   sync.WaitGroup

	outBits atomic.Uint64
	errs    atomic.Uint64

	st transport.State
}

// New creates a ScriptCV.
func New() *ScriptCV {
	return &ScriptCV{}
}

// Describe implements module.Module.
func (s *ScriptCV) Describe(module.Config) module.Descriptor {
	return module.Descriptor{
		Inputs: []module.Pin{
			{Name: "in"},
		},
		Outputs: []module.Pin{
			{Name: "out"},
		},
		Params: []module.Param{
			{ID: "scale", Name: "Scale", Min: -10, Max: 10, Default: 1},
			{ID: "offset", Name: "Offset", Min: -10, Max: 10, Default: 0},
		},
		Options: []module.Option{
			{ID: "script", Default: ""},
		},
	}
}

// Prepare implements module.Module. The script is loaded and checked here so
// a broken file fails the commit instead of silently emitting zeros. The Lua
// state is handed to the worker goroutine and never touched again from the
// control plane.
func (s *ScriptCV) Prepare(info module.StreamInfo, cfg module.Config) error {
	path := cfg.Option("script", "")
	if path == "" {
		return fmt.Errorf("scriptcv: script option is required")
	}

	L := lua.NewState()
	if err := L.DoFile(path); err != nil {
		L.Close()
		return fmt.Errorf("scriptcv: load %q: %w", path, err)
	}
	if L.GetGlobal("process").Type() != lua.LTFunction {
		L.Close()
		return fmt.Errorf("scriptcv: %q does not define a process function", path)
	}

	s.sampleRate = info.SampleRate
	s.jobs = make(chan job, 1)
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.worker(L)
	return nil
}

func (s *ScriptCV) worker(L *lua.LState) {
	defer s.wg.Done()
	defer L.Close()

	fn := L.GetGlobal("process")
	for {
		select {
		case <-s.done:
			return
		case j := <-s.jobs:
			err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true},
				lua.LNumber(j.t), lua.LNumber(j.in), lua.LNumber(j.bpm), lua.LNumber(j.beat))
			if err != nil {
				s.errs.Add(1)
				continue
			}
			ret := L.Get(-1)
			L.Pop(1)
			if n, ok := ret.(lua.LNumber); ok {
				s.outBits.Store(math.Float64bits(float64(n)))
			} else {
				s.errs.Add(1)
			}
		}
	}
}

// SetTimingInfo implements module.Module.
func (s *ScriptCV) SetTimingInfo(st transport.State) {
	s.st = st
}

// Process implements module.Module. The posted job carries the first sample
// of the input block; scripts are control rate by definition.
func (s *ScriptCV) Process(pc *module.ProcessContext) {
	var in float64
	if pc.InputConnected(inSignal) {
		in = float64(pc.In[inSignal][0])
	}
	j := job{
		t:    float64(s.st.PositionSamples) / s.sampleRate,
		in:   in,
		bpm:  s.st.BPM,
		beat: s.st.PositionBeats,
	}
	select {
	case s.jobs <- j:
	default: // worker still busy; hold the previous value
	}

	v := float32(math.Float64frombits(s.outBits.Load()))
	v = v*float32(pc.Param(pScale)) + float32(pc.Param(pOffset))
	out := pc.Out[0]
	for i := 0; i < pc.Frames; i++ {
		out[i] = v
	}
}

// Errors reports how many script invocations have failed since Prepare.
func (s *ScriptCV) Errors() uint64 {
	return s.errs.Load()
}

// Close implements module.Module.
func (s *ScriptCV) Close() error {
	if s.done != nil {
		close(s.done)
		s.wg.Wait()
	}
	return nil
}
