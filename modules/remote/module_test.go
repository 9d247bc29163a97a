package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cignor/Collider-sub010/internal/module"
	"github.com/Cignor/Collider-sub010/internal/testutil"
	"github.com/Cignor/Collider-sub010/internal/transport"
)

var testInfo = module.StreamInfo{SampleRate: 800, BlockSize: 16}

// newBridge prepares a bridge against an unreachable endpoint; the client
// retries in the background without affecting the render path.
func newBridge(t *testing.T, faders string) *testutil.Harness {
	t.Helper()
	cfg := module.Config{Options: map[string]string{
		"url":    "http://127.0.0.1:9",
		"faders": faders,
	}}
	return testutil.NewHarness(t, New(), cfg, testInfo)
}

func fader(name string, v any) []any {
	return []any{map[string]any{"name": name, "value": v}}
}

func command(cmd string, v float64) []any {
	return []any{map[string]any{"command": cmd, "value": v}}
}

func TestPinsFollowFadersOption(t *testing.T) {
	desc := New().Describe(module.Config{Options: map[string]string{
		"faders": "cutoff, res ,level",
	}})
	require.Len(t, desc.Outputs, 3)
	assert.Equal(t, "cutoff", desc.Outputs[0].Name)
	assert.Equal(t, "res", desc.Outputs[1].Name)
	assert.Equal(t, "level", desc.Outputs[2].Name)

	assert.Empty(t, New().Describe(module.Config{}).Outputs)
}

func TestFaderEventsDriveOutputs(t *testing.T) {
	h := newBridge(t, "a,b")
	defer h.M.Close()
	h.Set("slew", 0)

	b := h.M.(*Bridge)
	b.onFader(fader("a", 0.75))
	h.Step(testutil.PlayState(120))

	for i := 0; i < testInfo.BlockSize; i++ {
		assert.InDelta(t, 0.75, h.Out("a")[i], 1e-6)
		assert.Zero(t, h.Out("b")[i])
	}
}

func TestFaderSlewRamps(t *testing.T) {
	h := newBridge(t, "a")
	defer h.M.Close()

	// 0.02s of travel at 800 Hz is 16 samples, exactly one block.
	h.Set("slew", 0.02)
	b := h.M.(*Bridge)
	b.onFader(fader("a", 1.0))

	h.Step(testutil.PlayState(120))
	out := h.Out("a")
	assert.InDelta(t, 1.0/16, out[0], 1e-6)
	assert.InDelta(t, 0.5, out[7], 1e-6)
	assert.InDelta(t, 1.0, out[15], 1e-6)

	h.Step(testutil.PlayState(120))
	assert.InDelta(t, 1.0, h.Out("a")[0], 1e-6)
}

func TestFaderValuesClamped(t *testing.T) {
	h := newBridge(t, "a")
	defer h.M.Close()
	h.Set("slew", 0)

	b := h.M.(*Bridge)
	b.onFader(fader("a", 1.5))
	h.Step(testutil.PlayState(120))
	assert.InDelta(t, 1.0, h.Out("a")[0], 1e-6)

	b.onFader(fader("a", -0.3))
	h.Step(testutil.PlayState(120))
	assert.Zero(t, h.Out("a")[0])
}

func TestBadFaderPayloadsIgnored(t *testing.T) {
	h := newBridge(t, "a")
	defer h.M.Close()
	h.Set("slew", 0)

	b := h.M.(*Bridge)
	b.onFader(nil)
	b.onFader([]any{"not a map"})
	b.onFader([]any{map[string]any{"name": "a"}})
	b.onFader(fader("a", "high"))
	b.onFader(fader("nope", 0.9))

	h.Step(testutil.PlayState(120))
	assert.Zero(t, h.Out("a")[0])
}

type fakeController struct {
	commands []string
	bpm      float64
	division int
}

var _ transport.Controller = (*fakeController)(nil)

func (f *fakeController) Play()  { f.commands = append(f.commands, "play") }
func (f *fakeController) Pause() { f.commands = append(f.commands, "pause") }
func (f *fakeController) Stop()  { f.commands = append(f.commands, "stop") }
func (f *fakeController) Reset() { f.commands = append(f.commands, "reset") }
func (f *fakeController) SetBPM(bpm float64) {
	f.commands = append(f.commands, "bpm")
	f.bpm = bpm
}
func (f *fakeController) SetDivision(index int) {
	f.commands = append(f.commands, "division")
	f.division = index
}

func TestTransportEventsDriveController(t *testing.T) {
	ctl := &fakeController{}
	b := New()
	b.BindTransport(ctl)

	b.onTransport(command("play", 0))
	b.onTransport(command("bpm", 128))
	b.onTransport(command("division", 2))
	b.onTransport(command("stop", 0))
	b.onTransport(command("warp", 0))

	assert.Equal(t, []string{"play", "bpm", "division", "stop"}, ctl.commands)
	assert.Equal(t, 128.0, ctl.bpm)
	assert.Equal(t, 2, ctl.division)
}

func TestTransportWithoutControllerIsSafe(t *testing.T) {
	b := New()
	b.onTransport(command("play", 0))
	b.onTransport(nil)
}

func TestRequiresURL(t *testing.T) {
	err := New().Prepare(testInfo, module.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url")
}

func TestRhythmInfoReportsConnection(t *testing.T) {
	h := newBridge(t, "")
	defer h.M.Close()

	info := h.M.(*Bridge).RhythmInfo()
	assert.Equal(t, "remote 127.0.0.1:9", info.DisplayName)
	assert.Equal(t, "remote", info.SourceType)
	assert.False(t, info.IsActive)
	assert.True(t, info.IsSynced)
}
