package engine

import (
	"fmt"
	"sort"

	"github.com/Cignor/Collider-sub010/internal/graph"
	"github.com/Cignor/Collider-sub010/internal/module"
	"github.com/Cignor/Collider-sub010/internal/pinaddr"
)

// compiled is the outcome of turning a topology into an executable snapshot.
type compiled struct {
	snap *snapshot
	// dropped lists cables discarded because a pin they referenced no
	// longer exists after descriptors were recomputed.
	dropped []Cable
}

// compile builds the runtime plan from an edited topology. Descriptors must
// already be recomputed on every entry. compile never touches the module
// instances beyond interface assertions, so it is safe to run while an older
// snapshot is rendering.
//
// A dependency cycle is the one structural condition discovered this late,
// because it can only be judged against the recomputed pin layout.
func compile(topo *topology, rev uint64, blockSize int) (*compiled, error) {
	// Partition cables into live and stale. Cables to vanished modules were
	// already cascaded away by edits; what remains can only go stale by a
	// pin disappearing in a layout change.
	var live []Cable
	var dropped []Cable
	for _, c := range topo.cables {
		from, fromOK := topo.modules[c.From.Module]
		to, toOK := topo.modules[c.To.Module]
		if !fromOK || !toOK {
			dropped = append(dropped, c)
			continue
		}
		if from.desc.OutputIndex(c.From.Pin) < 0 || to.desc.InputIndex(c.To.Pin) < 0 {
			dropped = append(dropped, c)
			continue
		}
		live = append(live, c)
	}

	// Deterministic execution order.
	ids := make([]string, 0, len(topo.modules))
	for id := range topo.modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	deps := make(map[string][]string, len(ids))
	for _, c := range live {
		deps[c.To.Module] = append(deps[c.To.Module], c.From.Module)
	}
	order, err := graph.Order(ids, deps)
	if err != nil {
		return nil, err
	}

	snap := emptySnapshot(rev, blockSize)
	snap.masterID = topo.masterID

	// Every output pin gets its own buffer, bypassed or not. Bypassed
	// modules never run, so their outputs hold silence for downstream
	// consumers.
	outBufs := make(map[pinaddr.Address][]float32)
	for _, id := range order {
		entry := topo.modules[id]
		for _, p := range entry.desc.Outputs {
			outBufs[pinaddr.Address{Module: id, Pin: p.Name}] = make([]float32, blockSize)
		}
	}

	// Group live cables by destination input.
	inSources := make(map[pinaddr.Address][]pinaddr.Address)
	for _, c := range live {
		inSources[c.To] = append(inSources[c.To], c.From)
	}
	for _, srcs := range inSources {
		sort.Slice(srcs, func(i, j int) bool { return srcs[i].String() < srcs[j].String() })
	}

	for _, id := range order {
		entry := topo.modules[id]
		desc := entry.desc

		rm := &runtimeModule{
			id:       id,
			mod:      entry.mod,
			bypassed: entry.bypassed,
		}
		rm.pc.In = make([][]float32, len(desc.Inputs))
		rm.pc.Out = make([][]float32, len(desc.Outputs))
		rm.pc.Params = make([]float64, len(desc.Params))

		for i, p := range desc.Outputs {
			rm.pc.Out[i] = outBufs[pinaddr.Address{Module: id, Pin: p.Name}]
		}
		for i, p := range desc.Inputs {
			addr := pinaddr.Address{Module: id, Pin: p.Name}
			srcs := inSources[addr]
			switch len(srcs) {
			case 0:
				rm.pc.In[i] = snap.silence
			case 1:
				rm.pc.In[i] = outBufs[srcs[0]]
				rm.pc.Connected |= 1 << uint(i)
			default:
				sum := make([]float32, blockSize)
				binding := sumBinding{dst: sum}
				for _, src := range srcs {
					binding.srcs = append(binding.srcs, outBufs[src])
				}
				rm.sums = append(rm.sums, binding)
				rm.pc.In[i] = sum
				rm.pc.Connected |= 1 << uint(i)
			}
		}

		rm.slots = make([]paramSlot, len(desc.Params))
		for i, p := range desc.Params {
			cell, ok := entry.params[p.ID]
			if !ok {
				return nil, fmt.Errorf("internal inconsistency: module %q has no cell for parameter %q", id, p.ID)
			}
			slot := paramSlot{cell: cell, min: p.Min, max: p.Max, cvIn: -1}
			for _, r := range desc.Routes {
				if r.ParamID != p.ID {
					continue
				}
				if in := desc.InputIndex(r.Input); in >= 0 && rm.pc.Connected&(1<<uint(in)) != 0 {
					slot.cvIn = in
				}
				break
			}
			rm.slots[i] = slot
		}

		snap.modules = append(snap.modules, rm)

		// One capability resolution per module, here and never at render
		// time.
		if !entry.bypassed {
			if t, ok := entry.mod.(module.Terminal); ok {
				snap.terminals = append(snap.terminals, t)
			}
			if c, ok := entry.mod.(module.DeviceMIDIConsumer); ok {
				snap.midiSinks = append(snap.midiSinks, c)
			}
			if r, ok := entry.mod.(module.RhythmProvider); ok {
				snap.rhythm = append(snap.rhythm, r)
			}
			if topo.masterID == id {
				if src, ok := entry.mod.(module.TimelineSource); ok {
					snap.masterSrc = src
				}
			}
		}
	}

	// A master that is bypassed or gone leaves masterSrc nil and the
	// internal clock in charge; the broadcast then carries no master id.
	if snap.masterSrc == nil {
		snap.masterID = ""
	}

	return &compiled{snap: snap, dropped: dropped}, nil
}
