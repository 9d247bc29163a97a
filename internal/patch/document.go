// Package patch loads Collider patch files and turns them into engine edit
// batches. A patch is declarative: it says which modules, cables, and
// transport settings should exist, and Diff works out the batch that carries
// a running graph there without rebuilding the parts that already match.
package patch

import (
	"sort"

	"github.com/Cignor/Collider-sub010/internal/engine"
	"github.com/Cignor/Collider-sub010/internal/pinaddr"
	"github.com/Cignor/Collider-sub010/internal/transport"
)

// Module is one module instance a patch asks for.
type Module struct {
	Type    string
	Name    string
	Params  map[string]float64
	Options map[string]string
}

// Cable is one patch connection, output pin to input pin.
type Cable struct {
	From pinaddr.Address
	To   pinaddr.Address
}

// Transport carries the patch's transport block. Nil fields were not named
// by the patch and leave the corresponding control alone.
type Transport struct {
	BPM      *float64
	Division *string
	Playing  *bool
	Master   *string
}

// Document is a parsed patch, independent of the file format it came from.
type Document struct {
	Modules   []Module
	Cables    []Cable
	Transport Transport
}

// Module finds a declared module by instance name.
func (d *Document) Module(name string) (Module, bool) {
	for _, m := range d.Modules {
		if m.Name == name {
			return m, true
		}
	}
	return Module{}, false
}

// Edits returns the batch that builds this document from an empty graph.
func (d *Document) Edits() []engine.Edit {
	return Diff(nil, d)
}

// ApplyTransport pushes the patch's transport settings onto the controller.
// Unknown division names are ignored rather than guessed at.
func (d *Document) ApplyTransport(ctl transport.Controller) {
	if d.Transport.BPM != nil {
		ctl.SetBPM(*d.Transport.BPM)
	}
	if d.Transport.Division != nil {
		if i, ok := transport.FindDivision(*d.Transport.Division); ok {
			ctl.SetDivision(i)
		}
	}
	if d.Transport.Playing != nil {
		if *d.Transport.Playing {
			ctl.Play()
		} else {
			ctl.Pause()
		}
	}
}

// Diff computes the edit batch that carries a graph built from old to one
// matching next. Either document may be nil, meaning empty. Modules keep
// their instances (and so their internal state) when name and type both
// match; a type change under the same name is a remove plus add. Parameters
// a patch stops naming keep their last value.
func Diff(old, next *Document) []engine.Edit {
	if old == nil {
		old = &Document{}
	}
	if next == nil {
		next = &Document{}
	}

	oldMods := indexModules(old)
	nextMods := indexModules(next)

	var edits []engine.Edit

	// Replaced means removed or reappearing under the same name with a new
	// type. Cables touching replaced modules are cascaded away by the
	// removal, so the cable diff below reconnects them explicitly.
	replaced := make(map[string]bool)
	for _, m := range old.Modules {
		nm, ok := nextMods[m.Name]
		if !ok || nm.Type != m.Type {
			edits = append(edits, engine.RemoveModule{ID: m.Name})
			replaced[m.Name] = true
		}
	}

	for _, m := range next.Modules {
		om, ok := oldMods[m.Name]
		if !ok || om.Type != m.Type {
			edits = append(edits, engine.AddModule{
				Type:    m.Type,
				ID:      m.Name,
				Params:  copyParams(m.Params),
				Options: copyOptions(m.Options),
			})
			continue
		}
		for _, id := range sortedKeys(m.Params) {
			if v := m.Params[id]; om.Params[id] != v {
				edits = append(edits, engine.SetParam{ModuleID: m.Name, ParamID: id, Value: v})
			}
		}
		for _, id := range sortedStringKeys(m.Options) {
			if v := m.Options[id]; om.Options[id] != v {
				edits = append(edits, engine.SetOption{ModuleID: m.Name, OptionID: id, Value: v})
			}
		}
	}

	oldCables := indexCables(old)
	nextCables := indexCables(next)
	for _, c := range old.Cables {
		if replaced[c.From.Module] || replaced[c.To.Module] {
			continue // the removal cascade already took it
		}
		if nextCables[c] {
			continue
		}
		edits = append(edits, engine.Disconnect{From: c.From, To: c.To})
	}
	for _, c := range next.Cables {
		if oldCables[c] && !replaced[c.From.Module] && !replaced[c.To.Module] {
			continue
		}
		edits = append(edits, engine.Connect{From: c.From, To: c.To})
	}

	edits = append(edits, masterEdits(old, next, replaced)...)
	return edits
}

func masterEdits(old, next *Document, replaced map[string]bool) []engine.Edit {
	om, nm := old.Transport.Master, next.Transport.Master
	switch {
	case nm == nil && om == nil:
		return nil
	case nm == nil:
		// The patch stopped naming a master; hand time back to the clock.
		return []engine.Edit{engine.SetTimelineMaster{}}
	case om == nil, *om != *nm, replaced[*nm]:
		return []engine.Edit{engine.SetTimelineMaster{ID: *nm}}
	default:
		return nil
	}
}

func indexModules(d *Document) map[string]Module {
	idx := make(map[string]Module, len(d.Modules))
	for _, m := range d.Modules {
		idx[m.Name] = m
	}
	return idx
}

func indexCables(d *Document) map[Cable]bool {
	idx := make(map[Cable]bool, len(d.Cables))
	for _, c := range d.Cables {
		idx[c] = true
	}
	return idx
}

func copyParams(src map[string]float64) map[string]float64 {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]float64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func copyOptions(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedStringKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
