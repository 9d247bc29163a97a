package engine

import (
	"errors"
	"fmt"

	"github.com/Cignor/Collider-sub010/internal/module"
)

// SaveState captures the serialized state of every stateful, prepared module,
// keyed by module id. Modules without state to report are absent from the
// result.
func (e *Engine) SaveState() map[string][]byte {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	states := make(map[string][]byte)
	for id, entry := range e.topo.modules {
		if !entry.prepared {
			continue
		}
		st, ok := entry.mod.(module.Stateful)
		if !ok {
			continue
		}
		if blob := st.SaveState(); blob != nil {
			states[id] = blob
		}
	}
	return states
}

// RestoreState hands saved blobs back to their modules. Ids that no longer
// exist or no longer accept state are skipped silently, so a saved set stays
// usable across topology edits. Module-reported restore failures come back
// joined.
func (e *Engine) RestoreState(states map[string][]byte) error {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	var errs []error
	for _, id := range sortedIDs(e.topo.modules) {
		blob, ok := states[id]
		if !ok {
			continue
		}
		entry := e.topo.modules[id]
		if !entry.prepared {
			continue
		}
		st, ok := entry.mod.(module.Stateful)
		if !ok {
			continue
		}
		if err := st.RestoreState(blob); err != nil {
			errs = append(errs, fmt.Errorf("restore %q: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
