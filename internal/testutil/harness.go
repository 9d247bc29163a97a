// Package testutil provides shared helpers for exercising modules and
// engines in tests.
package testutil

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Cignor/Collider-sub010/internal/module"
	"github.com/Cignor/Collider-sub010/internal/transport"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// Harness drives a single module instance the way the engine would: it
// describes, prepares, and then processes block by block with buffers bound
// in descriptor order.
type Harness struct {
	M    module.Module
	Desc module.Descriptor
	PC   module.ProcessContext
	Info module.StreamInfo

	t *testing.T
}

// NewHarness describes and prepares m with cfg and binds freshly allocated
// buffers for every pin. All inputs start unconnected and all parameters
// start at their declared defaults.
func NewHarness(t *testing.T, m module.Module, cfg module.Config, info module.StreamInfo) *Harness {
	t.Helper()

	desc := m.Describe(cfg)
	require.NoError(t, m.Prepare(info, cfg))

	h := &Harness{M: m, Desc: desc, Info: info, t: t}
	h.PC.Frames = info.BlockSize
	h.PC.In = make([][]float32, len(desc.Inputs))
	for i := range h.PC.In {
		h.PC.In[i] = make([]float32, info.BlockSize)
	}
	h.PC.Out = make([][]float32, len(desc.Outputs))
	for i := range h.PC.Out {
		h.PC.Out[i] = make([]float32, info.BlockSize)
	}
	h.PC.Params = make([]float64, len(desc.Params))
	for i, p := range desc.Params {
		h.PC.Params[i] = p.Default
	}
	return h
}

// Set overrides one parameter value by id for subsequent blocks.
func (h *Harness) Set(paramID string, v float64) {
	h.t.Helper()
	i := h.Desc.ParamIndex(paramID)
	require.GreaterOrEqual(h.t, i, 0, "unknown param %q", paramID)
	h.PC.Params[i] = v
}

// Patch marks the named input connected and returns its buffer for the test
// to fill.
func (h *Harness) Patch(pin string) []float32 {
	h.t.Helper()
	i := h.Desc.InputIndex(pin)
	require.GreaterOrEqual(h.t, i, 0, "unknown input %q", pin)
	h.PC.Connected |= 1 << uint(i)
	return h.PC.In[i]
}

// Fill sets every sample of buf to v.
func Fill(buf []float32, v float32) {
	for i := range buf {
		buf[i] = v
	}
}

// Out returns the buffer for the named output pin.
func (h *Harness) Out(pin string) []float32 {
	h.t.Helper()
	i := h.Desc.OutputIndex(pin)
	require.GreaterOrEqual(h.t, i, 0, "unknown output %q", pin)
	return h.PC.Out[i]
}

// Step renders one block under the given timing state.
func (h *Harness) Step(st transport.State) {
	if st.SampleRate == 0 {
		st.SampleRate = h.Info.SampleRate
	}
	if st.BlockFrames == 0 {
		st.BlockFrames = h.PC.Frames
	}
	h.M.SetTimingInfo(st)
	h.M.Process(&h.PC)
}

// StepN renders n consecutive blocks under the same timing state, advancing
// the position fields between blocks as the clock would.
func (h *Harness) StepN(n int, st transport.State) {
	for i := 0; i < n; i++ {
		h.Step(st)
		if st.Playing {
			st.PositionSamples += int64(h.PC.Frames)
			st.PositionBeats += float64(h.PC.Frames) / h.Info.SampleRate * st.BPM / 60
		}
		st.ForceReset = false
	}
}

// PlayState returns a running timing state at the given tempo, starting from
// zero.
func PlayState(bpm float64) transport.State {
	return transport.State{
		Playing:       true,
		BPM:           bpm,
		DivisionIndex: transport.DefaultDivisionIndex,
	}
}
