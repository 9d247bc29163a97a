package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cignor/Collider-sub010/internal/engine"
	"github.com/Cignor/Collider-sub010/internal/pinaddr"
	"github.com/Cignor/Collider-sub010/internal/registry"
	"github.com/Cignor/Collider-sub010/modules/filter"
	"github.com/Cignor/Collider-sub010/modules/oscillator"
	"github.com/Cignor/Collider-sub010/modules/output"
	"github.com/Cignor/Collider-sub010/modules/sampler"
	"github.com/Cignor/Collider-sub010/modules/sequencer"
)

type rampStreamer struct {
	frames int
	pos    int
}

func (s *rampStreamer) Stream(samples [][2]float64) (int, bool) {
	n := 0
	for n < len(samples) && s.pos < s.frames {
		v := float64(s.pos%64) / 64
		samples[n][0] = v
		samples[n][1] = -v
		s.pos++
		n++
	}
	return n, n > 0
}

func (s *rampStreamer) Err() error { return nil }

func writeLoopWAV(t *testing.T, frames int, rate beep.SampleRate) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loop.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, wav.Encode(f, &rampStreamer{frames: frames}, beep.Format{
		SampleRate:  rate,
		NumChannels: 2,
		Precision:   2,
	}))
	require.NoError(t, f.Close())
	return path
}

// A sampler elected timeline master wraps its loop every 95 blocks here
// (1520 samples, 16-frame blocks at 800 Hz), while the sequencer walks a
// division every 200 samples. Every wrap must pull the sequencer back to step
// zero in the wrap block itself, loop after loop.
func TestSamplerMasterRealignsSequencerAcrossLoops(t *testing.T) {
	const (
		sampleRate = 800.0
		blockSize  = 16
		loopFrames = 1520
		loopBlocks = loopFrames / blockSize
	)

	r := registry.New()
	(&sampler.Module{}).Register(r)
	(&sequencer.Module{}).Register(r)

	e := engine.New(engine.Config{
		SampleRate: sampleRate,
		BlockSize:  blockSize,
		Registry:   r,
	})
	defer e.Close()
	ctx := context.Background()

	require.NoError(t, e.Apply(ctx,
		engine.AddModule{
			Type:    "sampler",
			ID:      "smp",
			Options: map[string]string{"file": writeLoopWAV(t, loopFrames, sampleRate)},
		},
		engine.AddModule{
			Type:   "sequencer",
			ID:     "seq",
			Params: map[string]float64{"steps": 16},
		},
		engine.SetTimelineMaster{ID: "smp"},
	))
	e.Transport().Play()

	out := make([]float32, 2*blockSize)
	step := func() string {
		states := e.SaveState()
		require.Contains(t, states, "seq")
		return string(states["seq"])
	}

	for loop := 0; loop < 6; loop++ {
		for b := 0; b < loopBlocks-1; b++ {
			e.RenderBlock(out)
		}
		// 94 blocks = 1504 samples = 7.52 divisions into the loop.
		assert.Equal(t, "7", step(), "loop %d: step before the wrap", loop)

		e.RenderBlock(out)
		assert.Equal(t, "0", step(), "loop %d: the wrap block realigns the sequence", loop)
	}
}

// A disconnected ghost: the sequencer keeps walking when the master is not
// looping (one-shot), because no wrap ever raises the pulse.
func TestOneShotMasterNeverRealigns(t *testing.T) {
	const (
		sampleRate = 800.0
		blockSize  = 16
		loopFrames = 1520
		loopBlocks = loopFrames / blockSize
	)

	r := registry.New()
	(&sampler.Module{}).Register(r)
	(&sequencer.Module{}).Register(r)

	e := engine.New(engine.Config{
		SampleRate: sampleRate,
		BlockSize:  blockSize,
		Registry:   r,
	})
	defer e.Close()
	ctx := context.Background()

	require.NoError(t, e.Apply(ctx,
		engine.AddModule{
			Type:    "sampler",
			ID:      "smp",
			Params:  map[string]float64{"loop": 0},
			Options: map[string]string{"file": writeLoopWAV(t, loopFrames, sampleRate)},
		},
		engine.AddModule{
			Type:   "sequencer",
			ID:     "seq",
			Params: map[string]float64{"steps": 16},
		},
		engine.SetTimelineMaster{ID: "smp"},
	))
	e.Transport().Play()

	out := make([]float32, 2*blockSize)
	for b := 0; b < loopBlocks; b++ {
		e.RenderBlock(out)
	}

	states := e.SaveState()
	assert.Equal(t, "7", string(states["seq"]), "no pulse, no realignment")
}

// Two engines built from the same edits must render bit-identical audio, and
// a recompile of an unchanged graph must not perturb the stream: execution
// order, fan-in summation order, and module state all have to be free of
// hidden nondeterminism.
func TestIdenticalGraphsRenderIdenticalAudio(t *testing.T) {
	const blockSize = 64

	build := func() *engine.Engine {
		r := registry.New()
		(&oscillator.Module{}).Register(r)
		(&filter.Module{}).Register(r)
		(&output.Module{}).Register(r)

		e := engine.New(engine.Config{
			SampleRate: 48000,
			BlockSize:  blockSize,
			Registry:   r,
		})
		require.NoError(t, e.Apply(context.Background(),
			engine.AddModule{Type: "oscillator", ID: "osc1", Params: map[string]float64{"freq": 220}},
			engine.AddModule{Type: "oscillator", ID: "osc2", Params: map[string]float64{"freq": 330}},
			engine.AddModule{Type: "filter", ID: "flt", Params: map[string]float64{"cutoff": 1200}},
			engine.AddModule{Type: "output", ID: "out"},
			engine.Connect{From: pinaddr.MustParse("osc1.out"), To: pinaddr.MustParse("flt.in")},
			engine.Connect{From: pinaddr.MustParse("osc2.out"), To: pinaddr.MustParse("flt.in")},
			engine.Connect{From: pinaddr.MustParse("flt.lp"), To: pinaddr.MustParse("out.in_l")},
			engine.Connect{From: pinaddr.MustParse("flt.bp"), To: pinaddr.MustParse("out.in_r")},
		))
		e.Transport().Play()
		return e
	}

	a := build()
	defer a.Close()
	b := build()
	defer b.Close()

	outA := make([]float32, 2*blockSize)
	outB := make([]float32, 2*blockSize)
	render := func(blocks int) {
		for i := 0; i < blocks; i++ {
			a.RenderBlock(outA)
			b.RenderBlock(outB)
			require.Equal(t, outA, outB)
		}
	}

	render(40)

	// Recompiling a's graph without changing anything (the stored cutoff is
	// rewritten with its current value) keeps the two streams locked.
	require.NoError(t, a.Apply(context.Background(),
		engine.SetParam{ModuleID: "flt", ParamID: "cutoff", Value: 1200},
	))
	require.Greater(t, a.Revision(), b.Revision())
	render(40)
}
