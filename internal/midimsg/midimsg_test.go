package midimsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage_NotePredicates(t *testing.T) {
	t.Run("note on with velocity", func(t *testing.T) {
		m := Message{Data: [3]byte{0x90, 60, 100}}
		assert.True(t, m.IsNoteOn())
		assert.False(t, m.IsNoteOff())
		assert.Equal(t, uint8(60), m.Note())
		assert.Equal(t, uint8(100), m.Velocity())
	})

	t.Run("note on with zero velocity is a note off", func(t *testing.T) {
		m := Message{Data: [3]byte{0x90, 60, 0}}
		assert.False(t, m.IsNoteOn())
		assert.True(t, m.IsNoteOff())
	})

	t.Run("explicit note off", func(t *testing.T) {
		m := Message{Data: [3]byte{0x83, 60, 64}}
		assert.True(t, m.IsNoteOff())
		assert.False(t, m.IsNoteOn())
	})
}

func TestMessage_Channel(t *testing.T) {
	m := Message{Data: [3]byte{0x95, 60, 100}}
	assert.Equal(t, uint8(5), m.Channel())
	assert.Equal(t, byte(StatusNoteOn), m.Status())
}

func TestMessage_ControlChange(t *testing.T) {
	m := Message{Data: [3]byte{0xB0, 1, 127}}
	assert.True(t, m.IsControlChange())
	assert.Equal(t, uint8(1), m.Controller())
	assert.Equal(t, uint8(127), m.Value())
	assert.False(t, m.IsNoteOn())
}
