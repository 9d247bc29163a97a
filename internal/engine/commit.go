package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Cignor/Collider-sub010/internal/module"
	"github.com/Cignor/Collider-sub010/internal/pinaddr"
)

const (
	// graceTimeout bounds how long a commit waits for the render thread to
	// pick up the new snapshot before destroying retired instances anyway.
	graceTimeout = 250 * time.Millisecond
	gracePoll    = 200 * time.Microsecond
)

// commitPlan accumulates the side effects of a batch while it is validated,
// so that nothing irreversible happens before the batch is known to be good.
type commitPlan struct {
	staged  map[paramKey]float64    // parameter writes, applied after prepare
	created []*moduleEntry          // entries whose instance still needs Prepare
	restore map[*moduleEntry][]byte // state blobs carried across replacement
	retired []module.Module         // prepared instances to close after grace
	cables  []Cable                 // cables added by this batch, pin-checked late
}

func newCommitPlan() *commitPlan {
	return &commitPlan{
		staged:  make(map[paramKey]float64),
		restore: make(map[*moduleEntry][]byte),
	}
}

// Apply validates and commits a batch of edits as one atomic topology change.
//
// The batch either lands in full or not at all: any structural problem (an
// unknown module, a bad cable endpoint, a cycle) rejects the whole batch and
// leaves the running graph untouched. A module that fails Prepare does not
// reject the batch; it is committed bypassed and the failure is reported in
// the returned error as a PreparationError.
//
// Apply never blocks the render thread. All allocation, preparation and
// validation happens on the caller's goroutine; the render thread observes
// the change as a single snapshot pointer swap.
func (e *Engine) Apply(ctx context.Context, edits ...Edit) error {
	if len(edits) == 0 {
		return nil
	}
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	if e.closed.Load() {
		return ErrEngineClosed
	}

	next := e.topo.clone()
	plan := newCommitPlan()

	if err := e.applyEdits(next, edits, plan); err != nil {
		e.met.CommitsRejected.Inc()
		return err
	}

	// Recompute every module's shape with the staged parameter values
	// visible, so pin layouts that depend on a parameter settle now.
	e.recomputeShapes(next, plan)

	// A live instance whose pin layout changed cannot keep running: its
	// buffers and internal wiring were sized for the old shape. Swap in a
	// fresh instance and carry state across where the module supports it.
	if err := e.replaceReshaped(next, plan); err != nil {
		e.met.CommitsRejected.Inc()
		return err
	}

	if err := validateStaged(next, plan); err != nil {
		e.met.CommitsRejected.Inc()
		return err
	}
	if err := validateNewCables(next, plan); err != nil {
		e.met.CommitsRejected.Inc()
		return err
	}
	ensureCells(next)

	// Dry compile: catches cycles and internal inconsistencies before any
	// module spends time in Prepare. The result is discarded.
	if _, err := compile(next, 0, e.blockSize); err != nil {
		e.met.CommitsRejected.Inc()
		return structuralf(err, "batch")
	}

	prepErrs, err := e.prepareCreated(ctx, next, plan)
	if err != nil {
		e.met.CommitsRejected.Inc()
		return err
	}

	// Point of no return. Staged values land in the shared cells, the new
	// snapshot is compiled and published, and only then do retired
	// instances get destroyed.
	writeStaged(next, plan)

	rev := e.rev + 1
	comp, err := compile(next, rev, e.blockSize)
	if err != nil {
		// The dry compile passed, so only a bug gets us here.
		e.met.CommitsRejected.Inc()
		return err
	}

	// Stale cables leave the stored topology too, so introspection and the
	// next commit agree with what was published.
	if len(comp.dropped) > 0 {
		stale := make(map[Cable]struct{}, len(comp.dropped))
		for _, c := range comp.dropped {
			stale[c] = struct{}{}
		}
		kept := next.cables[:0]
		for _, c := range next.cables {
			if _, ok := stale[c]; !ok {
				kept = append(kept, c)
			}
		}
		next.cables = kept
	}

	e.published.Store(comp.snap)
	e.topo = next
	e.rev = rev

	e.met.CommitsApplied.Inc()
	e.met.SnapshotRev.Set(float64(rev))
	e.met.ActiveModules.Set(float64(len(next.modules)))
	if n := len(comp.dropped); n > 0 {
		e.met.CablesDropped.Add(float64(n))
		e.logger.Warn("Dropped stale cables", "rev", rev, "count", n)
	}
	e.logger.Info("Topology committed",
		"rev", rev,
		"modules", len(next.modules),
		"cables", len(next.cables),
		"bypassed", len(prepErrs),
	)

	if len(plan.retired) > 0 {
		e.waitRenderGrace(rev)
		for _, m := range plan.retired {
			if cerr := m.Close(); cerr != nil {
				e.logger.Warn("Module close failed", "error", cerr)
			}
		}
	}

	return errors.Join(prepErrs...)
}

// applyEdits walks the batch in order, mutating the cloned topology and
// recording deferred work in the plan. Any error here rejects the batch.
func (e *Engine) applyEdits(next *topology, edits []Edit, plan *commitPlan) error {
	for _, edit := range edits {
		switch ed := edit.(type) {
		case AddModule:
			if err := e.addModule(next, ed, plan); err != nil {
				return err
			}
		case RemoveModule:
			if err := removeModule(next, ed, plan); err != nil {
				return err
			}
		case Connect:
			if err := connect(next, ed, plan); err != nil {
				return err
			}
		case Disconnect:
			if err := disconnect(next, ed); err != nil {
				return err
			}
		case SetParam:
			if err := stageParam(next, ed, plan); err != nil {
				return err
			}
		case SetOption:
			if err := e.setOption(next, ed, plan); err != nil {
				return err
			}
		case SetTimelineMaster:
			if err := setTimelineMaster(next, ed); err != nil {
				return err
			}
		default:
			panic(fmt.Sprintf("engine: unsupported edit %T", edit))
		}
	}
	return nil
}

func (e *Engine) addModule(next *topology, ed AddModule, plan *commitPlan) error {
	id := ed.ID
	if id == "" {
		id = generateID(ed.Type)
	}
	if err := pinaddr.ValidName(id); err != nil {
		return structuralf(ErrInvalidID, "add %q: %v", id, err)
	}
	if _, exists := next.modules[id]; exists {
		return structuralf(ErrDuplicateID, "add %q", id)
	}
	mod, err := e.reg.NewModule(ed.Type)
	if err != nil {
		return structuralf(ErrUnknownType, "add %q: type %q", id, ed.Type)
	}
	if tb, ok := mod.(module.TransportBinder); ok {
		tb.BindTransport(e.clock)
	}

	entry := &moduleEntry{
		id:      id,
		typ:     ed.Type,
		mod:     mod,
		params:  make(map[string]*paramCell),
		options: make(map[string]string),
	}
	for k, v := range ed.Options {
		entry.options[k] = v
	}
	for k, v := range ed.Params {
		plan.staged[paramKey{id, k}] = v
	}
	next.modules[id] = entry
	plan.created = append(plan.created, entry)
	return nil
}

func removeModule(next *topology, ed RemoveModule, plan *commitPlan) error {
	entry, ok := next.modules[ed.ID]
	if !ok {
		return structuralf(ErrUnknownModule, "remove %q", ed.ID)
	}
	delete(next.modules, ed.ID)
	next.removeCablesTouching(ed.ID)
	if next.masterID == ed.ID {
		// The timeline master is gone; fall back to the internal clock.
		next.masterID = ""
	}
	if entry.prepared {
		plan.retired = append(plan.retired, entry.mod)
	}
	return nil
}

func connect(next *topology, ed Connect, plan *commitPlan) error {
	if _, ok := next.modules[ed.From.Module]; !ok {
		return structuralf(ErrUnknownModule, "connect from %s", ed.From)
	}
	if _, ok := next.modules[ed.To.Module]; !ok {
		return structuralf(ErrUnknownModule, "connect to %s", ed.To)
	}
	if next.hasCable(ed.From, ed.To) {
		return nil
	}
	c := Cable{From: ed.From, To: ed.To}
	next.cables = append(next.cables, c)
	plan.cables = append(plan.cables, c)
	return nil
}

func disconnect(next *topology, ed Disconnect) error {
	if _, ok := next.modules[ed.From.Module]; !ok {
		return structuralf(ErrUnknownModule, "disconnect from %s", ed.From)
	}
	if _, ok := next.modules[ed.To.Module]; !ok {
		return structuralf(ErrUnknownModule, "disconnect to %s", ed.To)
	}
	want := Cable{From: ed.From, To: ed.To}
	kept := next.cables[:0]
	for _, c := range next.cables {
		if c != want {
			kept = append(kept, c)
		}
	}
	// Disconnecting a cable that is not there is not an error; both
	// endpoints were checked above, so the intent was already satisfied.
	next.cables = kept
	return nil
}

func stageParam(next *topology, ed SetParam, plan *commitPlan) error {
	if _, ok := next.modules[ed.ModuleID]; !ok {
		return structuralf(ErrUnknownModule, "set param %s.%s", ed.ModuleID, ed.ParamID)
	}
	// Whether the parameter exists is checked after shapes are recomputed,
	// because this very write may bring the parameter into existence.
	plan.staged[paramKey{ed.ModuleID, ed.ParamID}] = ed.Value
	return nil
}

func (e *Engine) setOption(next *topology, ed SetOption, plan *commitPlan) error {
	entry, ok := next.modules[ed.ModuleID]
	if !ok {
		return structuralf(ErrUnknownModule, "set option %s.%s", ed.ModuleID, ed.OptionID)
	}
	if entry.options[ed.OptionID] == ed.Value {
		return nil
	}
	entry.options[ed.OptionID] = ed.Value
	// Options configure an instance before Prepare; a running instance
	// cannot absorb a new value, so force a replacement.
	if entry.prepared {
		return e.replaceInstance(entry, plan)
	}
	return nil
}

func setTimelineMaster(next *topology, ed SetTimelineMaster) error {
	if ed.ID == "" {
		next.masterID = ""
		return nil
	}
	entry, ok := next.modules[ed.ID]
	if !ok {
		return structuralf(ErrUnknownModule, "set timeline master %q", ed.ID)
	}
	if _, ok := entry.mod.(module.TimelineSource); !ok {
		return structuralf(ErrNotTimeline, "set timeline master %q (type %q)", ed.ID, entry.typ)
	}
	next.masterID = ed.ID
	return nil
}

// recomputeShapes refreshes every entry's descriptor with staged parameter
// values overlaid, so layouts that follow a parameter settle before wiring
// is validated.
func (e *Engine) recomputeShapes(next *topology, plan *commitPlan) {
	for _, id := range sortedIDs(next.modules) {
		entry := next.modules[id]
		entry.desc = entry.mod.Describe(entry.config(plan.staged))
	}
}

// replaceReshaped swaps a fresh instance into every prepared entry whose pin
// layout no longer matches the one it was prepared with.
func (e *Engine) replaceReshaped(next *topology, plan *commitPlan) error {
	prev := e.topo.modules
	for _, id := range sortedIDs(next.modules) {
		entry := next.modules[id]
		if !entry.prepared {
			continue
		}
		old, ok := prev[id]
		if ok && old.desc.SameLayout(entry.desc) {
			continue
		}
		if err := e.replaceInstance(entry, plan); err != nil {
			return err
		}
		entry.desc = entry.mod.Describe(entry.config(plan.staged))
	}
	return nil
}

// replaceInstance retires the entry's current instance and installs a fresh
// unprepared one of the same type, carrying serialized state across when the
// module supports it.
func (e *Engine) replaceInstance(entry *moduleEntry, plan *commitPlan) error {
	fresh, err := e.reg.NewModule(entry.typ)
	if err != nil {
		return structuralf(ErrUnknownType, "replace %q: type %q", entry.id, entry.typ)
	}
	if tb, ok := fresh.(module.TransportBinder); ok {
		tb.BindTransport(e.clock)
	}
	if st, ok := entry.mod.(module.Stateful); ok && entry.prepared {
		if blob := st.SaveState(); blob != nil {
			plan.restore[entry] = blob
		}
	}
	if entry.prepared {
		plan.retired = append(plan.retired, entry.mod)
	}
	entry.mod = fresh
	entry.prepared = false
	entry.bypassed = false
	plan.created = append(plan.created, entry)
	return nil
}

// validateStaged rejects writes to parameters that do not exist on the final
// recomputed shape.
func validateStaged(next *topology, plan *commitPlan) error {
	keys := make([]paramKey, 0, len(plan.staged))
	for k := range plan.staged {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].moduleID != keys[j].moduleID {
			return keys[i].moduleID < keys[j].moduleID
		}
		return keys[i].paramID < keys[j].paramID
	})
	for _, k := range keys {
		entry, ok := next.modules[k.moduleID]
		if !ok {
			// The module was added and removed within the batch.
			delete(plan.staged, k)
			continue
		}
		if _, ok := entry.desc.FindParam(k.paramID); !ok {
			return structuralf(ErrUnknownParam, "set param %s.%s", k.moduleID, k.paramID)
		}
	}
	return nil
}

// validateNewCables checks the pins of cables added by this batch against the
// recomputed shapes. Only pre-existing cables may go quietly stale; a cable
// the caller just asked for must actually fit.
func validateNewCables(next *topology, plan *commitPlan) error {
	for _, c := range plan.cables {
		from, ok := next.modules[c.From.Module]
		if !ok {
			continue // removed later in the same batch
		}
		to, ok := next.modules[c.To.Module]
		if !ok {
			continue
		}
		if from.desc.OutputIndex(c.From.Pin) < 0 {
			return structuralf(ErrUnknownPin, "connect from %s", c.From)
		}
		if to.desc.InputIndex(c.To.Pin) < 0 {
			return structuralf(ErrUnknownPin, "connect to %s", c.To)
		}
	}
	return nil
}

// ensureCells guarantees a live cell for every parameter the final shapes
// declare. Cells for parameters that disappeared are kept; the values come
// back if the parameter does.
func ensureCells(next *topology) {
	for _, entry := range next.modules {
		for _, p := range entry.desc.Params {
			if _, ok := entry.params[p.ID]; !ok {
				entry.params[p.ID] = newParamCell(p.Default)
			}
		}
	}
}

// writeStaged lands the batch's parameter values in the shared cells, clamped
// to the declared range. The render thread sees each write atomically.
func writeStaged(next *topology, plan *commitPlan) {
	for k, v := range plan.staged {
		entry, ok := next.modules[k.moduleID]
		if !ok {
			continue
		}
		cell, ok := entry.params[k.paramID]
		if !ok {
			continue
		}
		if p, ok := entry.desc.FindParam(k.paramID); ok {
			v = clampParam(v, p.Min, p.Max)
		}
		cell.store(v)
	}
}

// prepareCreated runs Prepare for every freshly created instance in parallel.
// A failed module is committed bypassed rather than rejecting the batch; the
// failures come back as PreparationErrors. Only context cancellation aborts
// the commit.
func (e *Engine) prepareCreated(ctx context.Context, next *topology, plan *commitPlan) ([]error, error) {
	if len(plan.created) == 0 {
		return nil, nil
	}
	info := module.StreamInfo{SampleRate: e.sampleRate, BlockSize: e.blockSize}

	results := make([]error, len(plan.created))
	g, gctx := errgroup.WithContext(ctx)
	for i, entry := range plan.created {
		i, entry := i, entry
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = entry.mod.Prepare(info, entry.config(plan.staged))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("commit aborted: %w", err)
	}

	var prepErrs []error
	for i, entry := range plan.created {
		if err := results[i]; err != nil {
			entry.bypassed = true
			entry.prepared = false
			e.met.ModulesBypassed.Inc()
			e.logger.Error("Module failed to prepare", "module", entry.id, "type", entry.typ, "error", err)
			prepErrs = append(prepErrs, &PreparationError{ModuleID: entry.id, Err: err})
			continue
		}
		entry.prepared = true
		entry.bypassed = false
		if blob, ok := plan.restore[entry]; ok {
			if st, ok := entry.mod.(module.Stateful); ok {
				if rerr := st.RestoreState(blob); rerr != nil {
					e.logger.Warn("State restore failed", "module", entry.id, "error", rerr)
				}
			}
		}
	}
	return prepErrs, nil
}

// waitRenderGrace blocks until the render thread has loaded snapshot rev or
// the grace period runs out. With no render thread active there is nobody to
// wait for.
func (e *Engine) waitRenderGrace(rev uint64) {
	if !e.running.Load() {
		return
	}
	deadline := time.Now().Add(graceTimeout)
	for e.activeRev.Load() < rev {
		if !e.running.Load() {
			return
		}
		if time.Now().After(deadline) {
			e.met.GraceTimeouts.Inc()
			e.logger.Warn("Render grace period expired", "rev", rev)
			return
		}
		time.Sleep(gracePoll)
	}
}

func generateID(typ string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return typ + "_" + suffix
}

func sortedIDs(m map[string]*moduleEntry) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func clampParam(v, min, max float64) float64 {
	if min == 0 && max == 0 {
		return v
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
