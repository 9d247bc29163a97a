package engine

import (
	"strconv"
	"sync/atomic"

	"github.com/Cignor/Collider-sub010/internal/midimsg"
	"github.com/Cignor/Collider-sub010/internal/module"
	"github.com/Cignor/Collider-sub010/internal/registry"
	"github.com/Cignor/Collider-sub010/internal/transport"
)

const (
	testRate  = 48000.0
	testBlock = 8
)

// genModule emits a constant level on its single output. The level parameter
// is routable from the level_cv input.
type genModule struct {
	prepared bool
	closed   bool
}

func (g *genModule) Describe(module.Config) module.Descriptor {
	return module.Descriptor{
		Inputs:  []module.Pin{{Name: "level_cv"}},
		Outputs: []module.Pin{{Name: "out"}},
		Params: []module.Param{
			{ID: "level", Name: "Level", Min: 0, Max: 1, Default: 0.5},
		},
		Routes: []module.Route{{ParamID: "level", Input: "level_cv"}},
	}
}

func (g *genModule) Prepare(module.StreamInfo, module.Config) error {
	g.prepared = true
	return nil
}

func (g *genModule) SetTimingInfo(transport.State) {}

func (g *genModule) Process(pc *module.ProcessContext) {
	level := float32(pc.Param(0))
	for i := 0; i < pc.Frames; i++ {
		pc.Out[0][i] = level
	}
}

func (g *genModule) Close() error {
	g.closed = true
	return nil
}

// thruModule copies its input to its output.
type thruModule struct{}

func (*thruModule) Describe(module.Config) module.Descriptor {
	return module.Descriptor{
		Inputs:  []module.Pin{{Name: "in"}},
		Outputs: []module.Pin{{Name: "out"}},
	}
}

func (*thruModule) Prepare(module.StreamInfo, module.Config) error { return nil }
func (*thruModule) SetTimingInfo(transport.State)                  {}

func (*thruModule) Process(pc *module.ProcessContext) {
	copy(pc.Out[0][:pc.Frames], pc.In[0][:pc.Frames])
}

func (*thruModule) Close() error { return nil }

// sinkModule is a terminal that mirrors its input to both master channels.
type sinkModule struct {
	l, r []float32
}

func (*sinkModule) Describe(module.Config) module.Descriptor {
	return module.Descriptor{
		Inputs: []module.Pin{{Name: "in"}},
	}
}

func (s *sinkModule) Prepare(info module.StreamInfo, _ module.Config) error {
	s.l = make([]float32, info.BlockSize)
	s.r = make([]float32, info.BlockSize)
	return nil
}

func (*sinkModule) SetTimingInfo(transport.State) {}

func (s *sinkModule) Process(pc *module.ProcessContext) {
	copy(s.l, pc.In[0][:pc.Frames])
	copy(s.r, pc.In[0][:pc.Frames])
}

func (s *sinkModule) MasterOut() (left, right []float32) { return s.l, s.r }

func (*sinkModule) Close() error { return nil }

// tapsModule grows an input pin per unit of its structural taps parameter
// and sums whatever arrives into its output.
type tapsModule struct{}

func (*tapsModule) Describe(cfg module.Config) module.Descriptor {
	n := int(cfg.Param("taps", 1))
	if n < 1 {
		n = 1
	}
	d := module.Descriptor{
		Outputs: []module.Pin{{Name: "out"}},
		Params: []module.Param{
			{ID: "taps", Name: "Taps", Min: 1, Max: 8, Default: 1, Structural: true},
		},
	}
	for i := 0; i < n; i++ {
		d.Inputs = append(d.Inputs, module.Pin{Name: "in_" + strconv.Itoa(i)})
	}
	return d
}

func (*tapsModule) Prepare(module.StreamInfo, module.Config) error { return nil }
func (*tapsModule) SetTimingInfo(transport.State)                  {}

func (*tapsModule) Process(pc *module.ProcessContext) {
	out := pc.Out[0]
	for i := 0; i < pc.Frames; i++ {
		out[i] = 0
	}
	for _, in := range pc.In {
		for i := 0; i < pc.Frames; i++ {
			out[i] += in[i]
		}
	}
}

func (*tapsModule) Close() error { return nil }

// failModule refuses to prepare.
type failModule struct{}

func (*failModule) Describe(module.Config) module.Descriptor {
	return module.Descriptor{Outputs: []module.Pin{{Name: "out"}}}
}

func (*failModule) Prepare(module.StreamInfo, module.Config) error {
	return errStubPrepare
}

func (*failModule) SetTimingInfo(transport.State)  {}
func (*failModule) Process(*module.ProcessContext) {}
func (*failModule) Close() error                   { return nil }

// echoModule carries an option into Prepare and counts processed blocks as
// restorable state.
type echoModule struct {
	mode   string
	blocks atomic.Int64
	closed atomic.Bool
}

func (*echoModule) Describe(module.Config) module.Descriptor {
	return module.Descriptor{
		Outputs: []module.Pin{{Name: "out"}},
		Options: []module.Option{{ID: "mode", Default: "a"}},
	}
}

func (e *echoModule) Prepare(_ module.StreamInfo, cfg module.Config) error {
	e.mode = cfg.Option("mode", "a")
	return nil
}

func (*echoModule) SetTimingInfo(transport.State) {}

func (e *echoModule) Process(pc *module.ProcessContext) {
	e.blocks.Add(1)
	for i := 0; i < pc.Frames; i++ {
		pc.Out[0][i] = 0
	}
}

func (e *echoModule) SaveState() []byte {
	return []byte(strconv.FormatInt(e.blocks.Load(), 10))
}

func (e *echoModule) RestoreState(state []byte) error {
	n, err := strconv.ParseInt(string(state), 10, 64)
	if err != nil {
		return err
	}
	e.blocks.Store(n)
	return nil
}

func (e *echoModule) Close() error {
	e.closed.Store(true)
	return nil
}

// masterModule publishes a test-controlled timeline.
type masterModule struct {
	ts atomic.Pointer[transport.TimelineState]
}

func (*masterModule) Describe(module.Config) module.Descriptor {
	return module.Descriptor{Outputs: []module.Pin{{Name: "out"}}}
}

func (*masterModule) Prepare(module.StreamInfo, module.Config) error { return nil }
func (*masterModule) SetTimingInfo(transport.State)                  {}

func (m *masterModule) Process(pc *module.ProcessContext) {
	for i := 0; i < pc.Frames; i++ {
		pc.Out[0][i] = 0
	}
}

func (m *masterModule) TimelineState() transport.TimelineState {
	if ts := m.ts.Load(); ts != nil {
		return *ts
	}
	return transport.TimelineState{}
}

func (m *masterModule) setTimeline(ts transport.TimelineState) {
	m.ts.Store(&ts)
}

func (*masterModule) Close() error { return nil }

// midiProbe records the device batches it is offered, the merged stream it
// sees in Process, and every timing state it receives.
type midiProbe struct {
	name    string
	offers  *[]string
	batches [][]midimsg.DeviceEvent
	streams [][]midimsg.Message
	states  []transport.State
}

func (*midiProbe) Describe(module.Config) module.Descriptor {
	return module.Descriptor{Outputs: []module.Pin{{Name: "out"}}}
}

func (*midiProbe) Prepare(module.StreamInfo, module.Config) error { return nil }

func (p *midiProbe) SetTimingInfo(st transport.State) {
	p.states = append(p.states, st)
}

func (p *midiProbe) ConsumeDeviceMIDI(events []midimsg.DeviceEvent) {
	if p.offers != nil {
		*p.offers = append(*p.offers, p.name)
	}
	p.batches = append(p.batches, append([]midimsg.DeviceEvent(nil), events...))
}

func (p *midiProbe) Process(pc *module.ProcessContext) {
	p.streams = append(p.streams, append([]midimsg.Message(nil), pc.MIDI...))
	for i := 0; i < pc.Frames; i++ {
		pc.Out[0][i] = 0
	}
}

func (*midiProbe) Close() error { return nil }

// pulseModule exposes a fixed rhythm description.
type pulseModule struct{}

func (*pulseModule) Describe(module.Config) module.Descriptor {
	return module.Descriptor{Outputs: []module.Pin{{Name: "out"}}}
}

func (*pulseModule) Prepare(module.StreamInfo, module.Config) error { return nil }
func (*pulseModule) SetTimingInfo(transport.State)                  {}

func (*pulseModule) Process(pc *module.ProcessContext) {
	for i := 0; i < pc.Frames; i++ {
		pc.Out[0][i] = 0
	}
}

func (*pulseModule) RhythmInfo() transport.RhythmInfo {
	return transport.RhythmInfo{DisplayName: "Pulse", BPM: 120, IsActive: true, SourceType: "internal"}
}

func (*pulseModule) Close() error { return nil }

// stallModule parks inside Process until released, pinning the render thread
// mid-block so tests can observe commits racing a live renderer.
type stallModule struct {
	entered chan struct{}
	release chan struct{}
	closed  atomic.Bool
}

func newStallModule() *stallModule {
	return &stallModule{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (*stallModule) Describe(module.Config) module.Descriptor {
	return module.Descriptor{Outputs: []module.Pin{{Name: "out"}}}
}

func (*stallModule) Prepare(module.StreamInfo, module.Config) error { return nil }
func (*stallModule) SetTimingInfo(transport.State)                  {}

func (s *stallModule) Process(pc *module.ProcessContext) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.release
	for i := 0; i < pc.Frames; i++ {
		pc.Out[0][i] = 0
	}
}

func (s *stallModule) Close() error {
	s.closed.Store(true)
	return nil
}

var errStubPrepare = errStub("prepare failed")

type errStub string

func (e errStub) Error() string { return string(e) }

// stubMIDISource plays back queued device batches, one per Collect.
type stubMIDISource struct {
	queue [][]midimsg.DeviceEvent
}

func (s *stubMIDISource) Collect() []midimsg.DeviceEvent {
	if len(s.queue) == 0 {
		return nil
	}
	batch := s.queue[0]
	s.queue = s.queue[1:]
	return batch
}

func noteOn(device string, note uint8) midimsg.DeviceEvent {
	return midimsg.DeviceEvent{
		Device:  midimsg.DeviceInfo{ID: device, Name: device},
		Message: midimsg.Message{Data: [3]byte{midimsg.StatusNoteOn, note, 100}},
	}
}

func newTestRegistry() *registry.Registry {
	r := registry.New()
	r.RegisterModule("gen", func() module.Module { return &genModule{} })
	r.RegisterModule("thru", func() module.Module { return &thruModule{} })
	r.RegisterModule("sink", func() module.Module { return &sinkModule{} })
	r.RegisterModule("taps", func() module.Module { return &tapsModule{} })
	r.RegisterModule("fail", func() module.Module { return &failModule{} })
	r.RegisterModule("echo", func() module.Module { return &echoModule{} })
	r.RegisterModule("master", func() module.Module { return &masterModule{} })
	r.RegisterModule("probe", func() module.Module { return &midiProbe{} })
	r.RegisterModule("pulse", func() module.Module { return &pulseModule{} })
	r.RegisterModule("stall", func() module.Module { return newStallModule() })
	return r
}

func newTestEngine() *Engine {
	return New(Config{
		SampleRate: testRate,
		BlockSize:  testBlock,
		Registry:   newTestRegistry(),
	})
}

// renderOne runs a single block and returns the interleaved stereo output.
func renderOne(e *Engine) []float32 {
	out := make([]float32, 2*testBlock)
	e.RenderBlock(out)
	return out
}

// instance fetches the live module instance behind an id, for fixtures that
// need prodding from the test.
func instance(e *Engine, id string) module.Module {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	entry, ok := e.topo.modules[id]
	if !ok {
		return nil
	}
	return entry.mod
}
