package module

import (
	"github.com/Cignor/Collider-sub010/internal/midimsg"
	"github.com/Cignor/Collider-sub010/internal/transport"
)

// Optional capabilities. The engine resolves these with a single type
// assertion per module at commit time and stores the results in typed
// snapshot slices, so the render thread never type-switches.

// TimelineSource is implemented by modules that can act as the timeline
// master. The render thread reads TimelineState once per block before timing
// is broadcast, so the implementation must be a cheap atomic read with no
// locking against Process.
type TimelineSource interface {
	Module
	TimelineState() transport.TimelineState
}

// DeviceMIDIConsumer receives the block's device-tagged event batch before
// any module processes. Events carry their source device, letting consumers
// filter by hardware port; the same messages also appear, untagged, in
// ProcessContext.MIDI. The batch slice is shared across consumers and only
// valid during the call.
type DeviceMIDIConsumer interface {
	Module
	ConsumeDeviceMIDI(events []midimsg.DeviceEvent)
}

// RhythmProvider exposes a module's rhythmic identity to the control plane's
// low-frequency scan. RhythmInfo is called from a control goroutine while the
// render thread runs, so it must read from atomics, not from Process state.
type RhythmProvider interface {
	Module
	RhythmInfo() transport.RhythmInfo
}

// Stateful modules can round-trip their musical state as an opaque blob. The
// engine uses it for patch state capture and to carry state across instance
// replacement. RestoreState runs on the control plane, possibly while the
// render thread is processing the instance, so implementations hand the state
// over through atomics.
type Stateful interface {
	Module
	SaveState() []byte
	RestoreState(state []byte) error
}

// Terminal marks a graph sink. After all modules have processed, the engine
// mixes every terminal's MasterOut into the block handed to the audio driver.
// The returned slices must stay valid and stable between Prepare and Close.
type Terminal interface {
	Module
	MasterOut() (left, right []float32)
}

// TransportBinder is implemented by modules that drive the transport, such as
// a remote control bridge. The engine binds the controller once, before the
// instance is first prepared.
type TransportBinder interface {
	Module
	BindTransport(ctl transport.Controller)
}
