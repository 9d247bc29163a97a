package vca

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Cignor/Collider-sub010/internal/module"
	"github.com/Cignor/Collider-sub010/internal/testutil"
)

var testInfo = module.StreamInfo{SampleRate: 48000, BlockSize: 16}

func TestVCA_AppliesStoredGain(t *testing.T) {
	h := testutil.NewHarness(t, New(), module.Config{}, testInfo)

	testutil.Fill(h.Patch("in"), 0.5)
	h.Set("gain", 1.5)
	h.Step(testutil.PlayState(120))

	for _, s := range h.Out("out") {
		assert.InDelta(t, 0.75, s, 1e-6)
	}
}

func TestVCA_TracksCVPerSample(t *testing.T) {
	h := testutil.NewHarness(t, New(), module.Config{}, testInfo)

	testutil.Fill(h.Patch("in"), 1)
	cv := h.Patch("gain_cv")
	for i := range cv {
		cv[i] = float32(i) / float32(len(cv))
	}
	h.Set("gain", 0) // ignored while CV is patched
	h.Step(testutil.PlayState(120))

	out := h.Out("out")
	for i := range out {
		assert.InDelta(t, float64(i)/float64(len(out)), out[i], 1e-6)
	}
}

func TestVCA_ClampsNegativeCVClosed(t *testing.T) {
	h := testutil.NewHarness(t, New(), module.Config{}, testInfo)

	testutil.Fill(h.Patch("in"), 1)
	testutil.Fill(h.Patch("gain_cv"), -0.7)
	h.Step(testutil.PlayState(120))

	for _, s := range h.Out("out") {
		assert.Zero(t, s)
	}
}

func TestVCA_UnityGainByDefault(t *testing.T) {
	h := testutil.NewHarness(t, New(), module.Config{}, testInfo)

	in := h.Patch("in")
	for i := range in {
		in[i] = float32(i)*0.01 - 0.05
	}
	h.Step(testutil.PlayState(120))

	assert.Equal(t, in, h.Out("out"))
}
