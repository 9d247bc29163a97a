package engine

import (
	"math"
	"sync/atomic"

	"github.com/Cignor/Collider-sub010/internal/module"
	"github.com/Cignor/Collider-sub010/internal/pinaddr"
)

// paramCell is one parameter's storage. The render thread reads it while the
// control plane writes it, so the float64 travels as atomic bits. Cells are
// shared between the live topology and every snapshot referencing the module,
// which is how parameter values survive recompiles.
type paramCell struct {
	bits atomic.Uint64
}

func newParamCell(v float64) *paramCell {
	c := &paramCell{}
	c.store(v)
	return c
}

func (c *paramCell) load() float64   { return math.Float64frombits(c.bits.Load()) }
func (c *paramCell) store(v float64) { c.bits.Store(math.Float64bits(v)) }

// Cable connects one output pin to one input pin.
type Cable struct {
	From pinaddr.Address
	To   pinaddr.Address
}

// moduleEntry is the control plane's record of one module instance.
type moduleEntry struct {
	id      string
	typ     string
	mod     module.Module
	params  map[string]*paramCell
	options map[string]string
	// desc is the shape computed during the most recent commit that saw
	// this entry.
	desc module.Descriptor
	// prepared is set once Prepare succeeded; only prepared instances are
	// ever Closed.
	prepared bool
	// bypassed marks an instance whose Prepare failed. It stays in the
	// topology, renders nothing, and its outputs read as silence.
	bypassed bool
}

// clone copies the entry record. The module instance and the parameter cells
// are shared; the maps and flags are the clone's own, so a failed commit can
// be discarded without disturbing the published state.
func (m *moduleEntry) clone() *moduleEntry {
	params := make(map[string]*paramCell, len(m.params))
	for k, v := range m.params {
		params[k] = v
	}
	options := make(map[string]string, len(m.options))
	for k, v := range m.options {
		options[k] = v
	}
	return &moduleEntry{
		id:       m.id,
		typ:      m.typ,
		mod:      m.mod,
		params:   params,
		options:  options,
		desc:     m.desc,
		prepared: m.prepared,
		bypassed: m.bypassed,
	}
}

// config materializes the entry's current values for Describe and Prepare.
// overrides take precedence over cell values; they carry a batch's staged
// parameter edits before the cells are written.
func (m *moduleEntry) config(overrides map[paramKey]float64) module.Config {
	params := make(map[string]float64, len(m.params))
	for id, cell := range m.params {
		params[id] = cell.load()
	}
	for key, v := range overrides {
		if key.moduleID == m.id {
			params[key.paramID] = v
		}
	}
	options := make(map[string]string, len(m.options))
	for k, v := range m.options {
		options[k] = v
	}
	return module.Config{Params: params, Options: options}
}

type paramKey struct {
	moduleID string
	paramID  string
}

// topology is the engine's editable description of the graph. It lives
// behind the commit mutex; the render thread never sees it.
type topology struct {
	modules  map[string]*moduleEntry
	cables   []Cable
	masterID string
}

func newTopology() *topology {
	return &topology{modules: make(map[string]*moduleEntry)}
}

// clone makes an editable copy sharing instances and cells with the
// original. Edits apply to the clone; the original stays untouched until the
// clone is published.
func (t *topology) clone() *topology {
	next := &topology{
		modules:  make(map[string]*moduleEntry, len(t.modules)),
		cables:   make([]Cable, len(t.cables)),
		masterID: t.masterID,
	}
	for id, entry := range t.modules {
		next.modules[id] = entry.clone()
	}
	copy(next.cables, t.cables)
	return next
}

// removeCablesTouching drops every cable referencing the module id and
// returns how many were dropped.
func (t *topology) removeCablesTouching(id string) int {
	kept := t.cables[:0]
	dropped := 0
	for _, c := range t.cables {
		if c.From.Module == id || c.To.Module == id {
			dropped++
			continue
		}
		kept = append(kept, c)
	}
	t.cables = kept
	return dropped
}

// hasCable reports whether an identical cable already exists.
func (t *topology) hasCable(from, to pinaddr.Address) bool {
	for _, c := range t.cables {
		if c.From == from && c.To == to {
			return true
		}
	}
	return false
}
