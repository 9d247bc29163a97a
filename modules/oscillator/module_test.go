package oscillator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cignor/Collider-sub010/internal/module"
	"github.com/Cignor/Collider-sub010/internal/testutil"
)

// 3000 Hz at 48 kHz puts exactly one cycle in a 16-frame block, so phase
// lands on easy fractions.
var testInfo = module.StreamInfo{SampleRate: 48000, BlockSize: 16}

func TestOscillator_SineCycle(t *testing.T) {
	h := testutil.NewHarness(t, New(), module.Config{}, testInfo)
	h.Set("freq", 3000)
	h.Step(testutil.PlayState(120))

	out := h.Out("out")
	assert.InDelta(t, 0, out[0], 1e-6)  // phase 0
	assert.InDelta(t, 1, out[4], 1e-6)  // phase 1/4
	assert.InDelta(t, 0, out[8], 1e-6)  // phase 1/2
	assert.InDelta(t, -1, out[12], 1e-6)
}

func TestOscillator_SquareRespectsPulseWidth(t *testing.T) {
	cfg := module.Config{Options: map[string]string{"wave": "square"}}
	h := testutil.NewHarness(t, New(), cfg, testInfo)
	h.Set("freq", 3000)
	h.Set("pw", 0.25)
	h.Step(testutil.PlayState(120))

	out := h.Out("out")
	for i := 0; i < 4; i++ {
		assert.Equal(t, float32(1), out[i], "sample %d", i)
	}
	for i := 4; i < 16; i++ {
		assert.Equal(t, float32(-1), out[i], "sample %d", i)
	}
}

func TestOscillator_FreqCVOverridesParam(t *testing.T) {
	h := testutil.NewHarness(t, New(), module.Config{}, testInfo)
	h.Set("freq", 10)
	testutil.Fill(h.Patch("freq_cv"), 3000)
	h.Step(testutil.PlayState(120))

	out := h.Out("out")
	assert.InDelta(t, 1, out[4], 1e-6)
	assert.InDelta(t, -1, out[12], 1e-6)
}

func TestOscillator_HardSyncRestartsCycle(t *testing.T) {
	cfg := module.Config{Options: map[string]string{"wave": "saw"}}
	h := testutil.NewHarness(t, New(), cfg, testInfo)
	h.Set("freq", 3000)

	sync := h.Patch("sync")
	for i := 8; i < len(sync); i++ {
		sync[i] = 1
	}
	h.Step(testutil.PlayState(120))

	out := h.Out("out")
	assert.InDelta(t, -1, out[0], 1e-6)
	// The rising edge at sample 8 snaps the ramp back to its start.
	assert.InDelta(t, -1, out[8], 1e-6)
	assert.InDelta(t, -1+2.0/16, out[9], 1e-6)
}

func TestOscillator_ResetPulseRewindsPhase(t *testing.T) {
	cfg := module.Config{Options: map[string]string{"wave": "saw"}}
	h := testutil.NewHarness(t, New(), cfg, testInfo)
	h.Set("freq", 1000)

	h.Step(testutil.PlayState(120))
	first := h.Out("out")[0]
	require.InDelta(t, -1, first, 1e-6)

	// Without a reset the ramp continues from where it left off.
	h.Step(testutil.PlayState(120))
	assert.Greater(t, h.Out("out")[0], first)

	st := testutil.PlayState(120)
	st.ForceReset = true
	h.Step(st)
	assert.InDelta(t, -1, h.Out("out")[0], 1e-6)
}

func TestOscillator_RejectsUnknownWaveform(t *testing.T) {
	err := New().Prepare(testInfo, module.Config{Options: map[string]string{"wave": "noise"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "noise")
}
