// Package midibridge converts device MIDI into CV: a monophonic gate, the
// last note's pitch in Hz, its velocity, and the mod wheel. The bridge can be
// bound to one hardware device by name and to one MIDI channel, so several
// bridges can split a multi-device rig across the patch.
package midibridge

import (
	"strings"

	"github.com/Cignor/Collider-sub010/internal/dsp"
	"github.com/Cignor/Collider-sub010/internal/midimsg"
	"github.com/Cignor/Collider-sub010/internal/module"
	"github.com/Cignor/Collider-sub010/internal/registry"
	"github.com/Cignor/Collider-sub010/internal/transport"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the module type with the engine registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterModule("midibridge", func() module.Module { return New() })
}

const (
	outGate = iota
	outPitch
	outVelocity
	outMod
)

const pChannel = 0

const modWheelCC = 1

// Bridge tracks held notes from the device batch. All fields are render
// thread only: ConsumeDeviceMIDI and Process run back to back on the same
// goroutine.
type Bridge struct {
	device  string
	channel int

	held      [128]bool
	heldCount int
	pitch     float32
	velocity  float32
	mod       float32
	clear     bool
}

// New creates a Bridge.
func New() *Bridge {
	return &Bridge{}
}

// Describe implements module.Module.
func (b *Bridge) Describe(module.Config) module.Descriptor {
	return module.Descriptor{
		Outputs: []module.Pin{
			{Name: "gate"},
			{Name: "pitch"},
			{Name: "velocity"},
			{Name: "mod"},
		},
		Params: []module.Param{
			{ID: "channel", Name: "MIDI Channel", Min: 0, Max: 16, Default: 0},
		},
		Options: []module.Option{
			{ID: "device", Default: ""},
		},
	}
}

// Prepare implements module.Module.
func (b *Bridge) Prepare(_ module.StreamInfo, cfg module.Config) error {
	b.device = cfg.Option("device", "")
	b.channel = int(cfg.Param("channel", 0))
	return nil
}

// SetTimingInfo implements module.Module. A reset or stop drops every held
// note so stale gates cannot outlive the timeline they were played against.
func (b *Bridge) SetTimingInfo(st transport.State) {
	if st.ForceReset || (!st.Playing && st.LastCommand == transport.CommandStop) {
		b.clear = true
	}
}

// ConsumeDeviceMIDI implements module.DeviceMIDIConsumer. Events from other
// devices or channels are ignored; the same messages still reach the generic
// per-block stream for modules that want everything.
func (b *Bridge) ConsumeDeviceMIDI(events []midimsg.DeviceEvent) {
	for _, ev := range events {
		if b.device != "" && !strings.Contains(ev.Device.Name, b.device) {
			continue
		}
		msg := ev.Message
		if b.channel > 0 && int(msg.Channel()) != b.channel-1 {
			continue
		}

		switch {
		case msg.IsNoteOn():
			note := msg.Note() & 0x7F
			if !b.held[note] {
				b.held[note] = true
				b.heldCount++
			}
			b.pitch = float32(dsp.NoteHz(note))
			b.velocity = float32(msg.Velocity()) / 127
		case msg.IsNoteOff():
			note := msg.Note() & 0x7F
			if b.held[note] {
				b.held[note] = false
				b.heldCount--
			}
		case msg.IsControlChange() && msg.Controller() == modWheelCC:
			b.mod = float32(msg.Value()) / 127
		}
	}
}

// Process implements module.Module. The gate holds for as long as any note
// is down; the pitch and velocity outputs keep their last value through the
// release so a downstream envelope can finish cleanly.
func (b *Bridge) Process(pc *module.ProcessContext) {
	if b.clear {
		b.held = [128]bool{}
		b.heldCount = 0
		b.clear = false
	}

	// Live channel updates take effect on the next block's batch.
	b.channel = int(pc.Param(pChannel))

	gate := float32(0)
	if b.heldCount > 0 {
		gate = 1
	}
	gateOut := pc.Out[outGate]
	pitchOut := pc.Out[outPitch]
	velOut := pc.Out[outVelocity]
	modOut := pc.Out[outMod]
	for i := 0; i < pc.Frames; i++ {
		gateOut[i] = gate
		pitchOut[i] = b.pitch
		velOut[i] = b.velocity
		modOut[i] = b.mod
	}
}

// Close implements module.Module.
func (b *Bridge) Close() error { return nil }
