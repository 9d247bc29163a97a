// Package voice manages fixed-size polyphonic voice pools. Pools are built
// on the control plane with fully prepared voices; note assignment on the
// render thread is a state flip on an existing voice, never a construction.
package voice

// Voice is one playable unit owned by a pool. Implementations live in the
// hosting module; the pool only needs trigger, release, and liveness.
type Voice interface {
	// NoteOn starts or restarts the voice.
	NoteOn(note, velocity uint8)
	// NoteOff releases the voice if it is sounding the given note.
	NoteOff(note uint8)
	// Active reports whether the voice still produces signal, including
	// release tails.
	Active() bool
}

type slot struct {
	voice Voice
	note  uint8
	held  bool
	// serial orders note-ons for oldest-first stealing.
	serial uint64
}

// Pool assigns notes to a fixed set of voices. All methods are render thread
// only and allocation free.
type Pool struct {
	slots  []slot
	serial uint64
}

// NewPool wraps prepared voices. The pool takes ownership of assignment but
// not of the voices' lifecycles.
func NewPool(voices []Voice) *Pool {
	slots := make([]slot, len(voices))
	for i, v := range voices {
		slots[i].voice = v
	}
	return &Pool{slots: slots}
}

// NoteOn assigns the note to a voice. Preference order: a voice already
// holding the same note (retrigger), then any inactive voice, then the voice
// holding the oldest note. A zero-voice pool ignores everything.
func (p *Pool) NoteOn(note, velocity uint8) {
	if len(p.slots) == 0 {
		return
	}
	p.serial++

	target := -1
	oldest := 0
	for i := range p.slots {
		s := &p.slots[i]
		if s.held && s.note == note {
			target = i
			break
		}
		if !s.voice.Active() && !s.held {
			if target < 0 {
				target = i
			}
			continue
		}
		if p.slots[oldest].serial > s.serial {
			oldest = i
		}
	}
	if target < 0 {
		target = oldest
	}

	s := &p.slots[target]
	s.note = note
	s.held = true
	s.serial = p.serial
	s.voice.NoteOn(note, velocity)
}

// NoteOff releases every voice holding the note.
func (p *Pool) NoteOff(note uint8) {
	for i := range p.slots {
		s := &p.slots[i]
		if s.held && s.note == note {
			s.held = false
			s.voice.NoteOff(note)
		}
	}
}

// ReleaseAll releases every held note, for transport stops and resets.
func (p *Pool) ReleaseAll() {
	for i := range p.slots {
		s := &p.slots[i]
		if s.held {
			s.held = false
			s.voice.NoteOff(s.note)
		}
	}
}

// ActiveCount reports how many voices are currently producing signal.
func (p *Pool) ActiveCount() int {
	n := 0
	for i := range p.slots {
		if p.slots[i].voice.Active() {
			n++
		}
	}
	return n
}

// Held reports how many notes are currently held.
func (p *Pool) Held() int {
	n := 0
	for i := range p.slots {
		if p.slots[i].held {
			n++
		}
	}
	return n
}
