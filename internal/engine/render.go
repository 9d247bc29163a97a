package engine

import (
	"time"

	"github.com/Cignor/Collider-sub010/internal/midimsg"
	"github.com/Cignor/Collider-sub010/internal/transport"
)

// RenderBlock produces one block of interleaved stereo audio into out. The
// caller owns exactly one render goroutine and len(out) must be twice the
// engine's block size.
//
// The path is allocation free and lock free: it loads the published snapshot
// once, walks it, and leaves. Commits running concurrently are invisible
// until their single pointer store, and the revision recorded here is what
// lets a commit know its predecessor snapshot is out of use.
func (e *Engine) RenderBlock(out []float32) {
	start := time.Now()
	snap := e.published.Load()
	e.activeRev.Store(snap.rev)
	frames := e.blockSize

	var master transport.TimelineState
	hasMaster := snap.masterSrc != nil
	if hasMaster {
		master = snap.masterSrc.TimelineState()
	}
	st := e.clock.BeginBlock(frames, master, hasMaster, snap.masterID)

	// Device-tagged MIDI goes to its consumers first, in execution order,
	// then collapses into the anonymous per-block stream everyone reads.
	var events []midimsg.DeviceEvent
	if e.midi != nil {
		events = e.midi.Collect()
	}
	for _, sink := range snap.midiSinks {
		sink.ConsumeDeviceMIDI(events)
	}
	midi := snap.midiBuf[:0]
	for _, ev := range events {
		if len(midi) == midiBufCap {
			e.met.MIDIDropped.Add(float64(len(events) - len(midi)))
			break
		}
		midi = append(midi, ev.Message)
	}

	for _, rm := range snap.modules {
		if rm.bypassed {
			continue
		}
		for _, sb := range rm.sums {
			dst := sb.dst
			for i := range dst {
				dst[i] = 0
			}
			for _, src := range sb.srcs {
				for i, v := range src {
					dst[i] += v
				}
			}
		}
		for i := range rm.slots {
			slot := &rm.slots[i]
			var v float64
			if slot.cvIn >= 0 {
				v = float64(rm.pc.In[slot.cvIn][0])
			} else {
				v = slot.cell.load()
			}
			if slot.min != 0 || slot.max != 0 {
				if v < slot.min {
					v = slot.min
				} else if v > slot.max {
					v = slot.max
				}
			}
			rm.pc.Params[i] = v
		}
		rm.pc.Frames = frames
		rm.pc.MIDI = midi
		rm.mod.SetTimingInfo(st)
		rm.mod.Process(&rm.pc)
	}

	for i := range out {
		out[i] = 0
	}
	for _, t := range snap.terminals {
		l, r := t.MasterOut()
		for i := 0; i < frames; i++ {
			out[2*i] += l[i]
			out[2*i+1] += r[i]
		}
	}

	e.clock.EndBlock(frames)
	elapsed := time.Since(start)
	e.met.BlocksRendered.Inc()
	e.met.RenderSeconds.Observe(elapsed.Seconds())
	if elapsed > e.blockBudget {
		e.met.DeadlineOverruns.Inc()
	}
}
