// Package midimsg holds plain MIDI data types shared between the device
// layer and the modules that consume MIDI. It has no device or engine
// dependencies so that module code can use it without dragging in portmidi.
package midimsg

import "fmt"

// Status nibbles for channel voice messages.
const (
	StatusNoteOff        = 0x80
	StatusNoteOn         = 0x90
	StatusPolyAftertouch = 0xA0
	StatusControlChange  = 0xB0
	StatusProgramChange  = 0xC0
	StatusAftertouch     = 0xD0
	StatusPitchBend      = 0xE0
)

// Message is one channel voice message. FrameOffset is the sample position
// within the block the message applies to; the device layer stamps events it
// collected between blocks with offset zero.
type Message struct {
	Data        [3]byte
	FrameOffset int32
}

// Status returns the status nibble (message kind) with the channel masked off.
func (m Message) Status() byte { return m.Data[0] & 0xF0 }

// Channel returns the zero-based MIDI channel (0..15).
func (m Message) Channel() uint8 { return m.Data[0] & 0x0F }

// IsNoteOn reports a note-on with non-zero velocity. Note-on with velocity
// zero is treated as a note-off, as most hardware sends it.
func (m Message) IsNoteOn() bool {
	return m.Status() == StatusNoteOn && m.Data[2] > 0
}

// IsNoteOff reports a note-off, including the note-on-velocity-zero form.
func (m Message) IsNoteOff() bool {
	return m.Status() == StatusNoteOff || (m.Status() == StatusNoteOn && m.Data[2] == 0)
}

// IsControlChange reports a CC message.
func (m Message) IsControlChange() bool { return m.Status() == StatusControlChange }

// Note returns the note number for note messages.
func (m Message) Note() uint8 { return m.Data[1] }

// Velocity returns the velocity for note messages.
func (m Message) Velocity() uint8 { return m.Data[2] }

// Controller returns the controller number for CC messages.
func (m Message) Controller() uint8 { return m.Data[1] }

// Value returns the controller value for CC messages.
func (m Message) Value() uint8 { return m.Data[2] }

// DeviceInfo identifies the hardware source of a captured event. ID is stable
// across scans of the same hardware setup; Index is the port index the MIDI
// backend reported at capture time.
type DeviceInfo struct {
	ID    string
	Name  string
	Index int
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s (port %d)", d.Name, d.Index)
}

// DeviceEvent is a captured message tagged with its source device. The
// per-block device batch is made of these, so consumers can filter by device
// before the messages are merged into the generic per-block stream.
type DeviceEvent struct {
	Device  DeviceInfo
	Message Message
}
