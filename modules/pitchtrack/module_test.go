package pitchtrack

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cignor/Collider-sub010/internal/module"
	"github.com/Cignor/Collider-sub010/internal/testutil"
)

var testInfo = module.StreamInfo{SampleRate: 48000, BlockSize: 64}

func newTracker(t *testing.T, window string) *testutil.Harness {
	t.Helper()
	cfg := module.Config{Options: map[string]string{"window": window}}
	return testutil.NewHarness(t, New(), cfg, testInfo)
}

// feedSine fills the patched input with one block of a continuous sine and
// renders it.
func feedSine(h *testutil.Harness, in []float32, freq float64, phase *float64) {
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * *phase))
		*phase += freq / testInfo.SampleRate
	}
	h.Step(testutil.PlayState(120))
}

func TestTracksSineFrequency(t *testing.T) {
	h := newTracker(t, "2048")
	defer h.M.Close()

	in := h.Patch("in")
	var phase float64
	require.Eventually(t, func() bool {
		feedSine(h, in, 440, &phase)
		return math.Abs(float64(h.Out("pitch")[0])-440) < 10 && h.Out("confidence")[0] > 0.4
	}, 2*time.Second, time.Millisecond)
}

func TestBinAlignedToneIsExact(t *testing.T) {
	// 750 Hz lands exactly on bin 8 of a 512-point window at 48 kHz, so the
	// estimate should be near-perfect and the energy fully concentrated.
	h := newTracker(t, "512")
	defer h.M.Close()

	in := h.Patch("in")
	var phase float64
	require.Eventually(t, func() bool {
		feedSine(h, in, 750, &phase)
		return math.Abs(float64(h.Out("pitch")[0])-750) < 2 && h.Out("confidence")[0] > 0.9
	}, 2*time.Second, time.Millisecond)
}

func TestSilenceDropsConfidence(t *testing.T) {
	h := newTracker(t, "512")
	defer h.M.Close()

	in := h.Patch("in")
	var phase float64
	require.Eventually(t, func() bool {
		feedSine(h, in, 750, &phase)
		return h.Out("confidence")[0] > 0.9
	}, 2*time.Second, time.Millisecond)

	testutil.Fill(in, 0)
	require.Eventually(t, func() bool {
		h.Step(testutil.PlayState(120))
		return h.Out("confidence")[0] == 0 && h.Out("pitch")[0] == 0
	}, 2*time.Second, time.Millisecond)
}

func TestMinFreqSkipsLowHum(t *testing.T) {
	h := newTracker(t, "2048")
	defer h.M.Close()

	h.Set("min_freq", 200)
	in := h.Patch("in")
	var phase float64
	require.Eventually(t, func() bool {
		for i := range in {
			hum := math.Sin(2 * math.Pi * 60 / testInfo.SampleRate * phase)
			tone := 0.3 * math.Sin(2*math.Pi*900/testInfo.SampleRate*phase)
			in[i] = float32(hum + tone)
			phase++
		}
		h.Step(testutil.PlayState(120))
		return math.Abs(float64(h.Out("pitch")[0])-900) < 15
	}, 2*time.Second, time.Millisecond)
}

func TestUnpatchedInputStaysQuiet(t *testing.T) {
	h := newTracker(t, "512")
	defer h.M.Close()

	h.StepN(20, testutil.PlayState(120))
	assert.Zero(t, h.Out("pitch")[0])
	assert.Zero(t, h.Out("confidence")[0])
}

func TestRejectsBadWindow(t *testing.T) {
	err := New().Prepare(testInfo, module.Config{Options: map[string]string{"window": "1000"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "power of two")

	err = New().Prepare(testInfo, module.Config{Options: map[string]string{"window": "huge"}})
	require.Error(t, err)
}
