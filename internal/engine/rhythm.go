package engine

import "github.com/Cignor/Collider-sub010/internal/transport"

// RhythmReport collects the rhythmic identity of every provider in the
// active snapshot, in execution order. It reads the published snapshot the
// way any control-plane observer does and is meant for low-frequency polling
// by UIs and the monitor endpoint, not for the render path.
func (e *Engine) RhythmReport() []transport.RhythmInfo {
	snap := e.published.Load()
	if len(snap.rhythm) == 0 {
		return nil
	}
	infos := make([]transport.RhythmInfo, 0, len(snap.rhythm))
	for _, p := range snap.rhythm {
		infos = append(infos, p.RhythmInfo())
	}
	return infos
}
