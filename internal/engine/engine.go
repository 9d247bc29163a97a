// Package engine hosts the signal graph: it owns the editable topology, the
// commit pipeline that turns edits into immutable snapshots, and the block
// renderer that executes the published snapshot on the audio thread.
//
// The concurrency model is snapshot publication. The render thread loads one
// atomic pointer per block and works only with what it finds there; the
// control plane builds replacement snapshots off to the side and publishes
// them with a single store. Nothing the control plane does can stall a block.
package engine

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Cignor/Collider-sub010/internal/metrics"
	"github.com/Cignor/Collider-sub010/internal/mididev"
	"github.com/Cignor/Collider-sub010/internal/module"
	"github.com/Cignor/Collider-sub010/internal/registry"
	"github.com/Cignor/Collider-sub010/internal/transport"
)

// Config wires an engine instance.
type Config struct {
	SampleRate float64
	BlockSize  int
	Registry   *registry.Registry
	// MIDI supplies per-block device event batches. Nil disables MIDI.
	MIDI mididev.Source
	// Metrics receives engine health counters. Nil gets a private set.
	Metrics *metrics.Metrics
	// Logger is used on the control plane only. Nil discards.
	Logger *slog.Logger
}

// Engine is the graph host. One render thread calls RenderBlock; any number
// of goroutines call the control plane methods.
type Engine struct {
	sampleRate  float64
	blockSize   int
	blockBudget time.Duration
	reg         *registry.Registry
	midi        mididev.Source
	met         *metrics.Metrics
	logger      *slog.Logger
	clock       *transport.Clock

	published atomic.Pointer[snapshot]
	activeRev atomic.Uint64
	running   atomic.Bool
	closed    atomic.Bool

	// commitMu serializes the control plane: edits, state capture,
	// introspection. The render thread never takes it.
	commitMu sync.Mutex
	topo     *topology
	rev      uint64
}

// New builds an engine and publishes an empty, silent snapshot so rendering
// may start before the first commit.
func New(cfg Config) *Engine {
	met := cfg.Metrics
	if met == nil {
		met = metrics.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	e := &Engine{
		sampleRate:  cfg.SampleRate,
		blockSize:   cfg.BlockSize,
		blockBudget: time.Duration(float64(cfg.BlockSize) / cfg.SampleRate * float64(time.Second)),
		reg:         cfg.Registry,
		midi:        cfg.MIDI,
		met:         met,
		logger:      logger,
		clock:       transport.NewClock(cfg.SampleRate),
		topo:        newTopology(),
	}
	e.published.Store(emptySnapshot(0, cfg.BlockSize))
	return e
}

// Transport returns the control surface for play, stop, tempo, and division.
func (e *Engine) Transport() transport.Controller { return e.clock }

// StreamInfo reports the engine's stream geometry.
func (e *Engine) StreamInfo() module.StreamInfo {
	return module.StreamInfo{SampleRate: e.sampleRate, BlockSize: e.blockSize}
}

// Revision returns the published snapshot revision. It advances by exactly
// one per landed commit, so tests use it to count publications.
func (e *Engine) Revision() uint64 {
	return e.published.Load().rev
}

// SetRenderActive tells the engine whether a driver is pulling blocks. While
// inactive, commits skip the render grace wait, since no render thread can
// be holding an old snapshot.
func (e *Engine) SetRenderActive(active bool) {
	e.running.Store(active)
}

// ModuleInfo describes one module instance for introspection surfaces.
type ModuleInfo struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Inputs   []string       `json:"inputs"`
	Outputs  []string       `json:"outputs"`
	Params   []module.Param `json:"params"`
	Bypassed bool           `json:"bypassed"`
}

// Modules lists the current topology, sorted by id.
func (e *Engine) Modules() []ModuleInfo {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	out := make([]ModuleInfo, 0, len(e.topo.modules))
	for id, entry := range e.topo.modules {
		info := ModuleInfo{ID: id, Type: entry.typ, Bypassed: entry.bypassed}
		for _, p := range entry.desc.Inputs {
			info.Inputs = append(info.Inputs, p.Name)
		}
		for _, p := range entry.desc.Outputs {
			info.Outputs = append(info.Outputs, p.Name)
		}
		info.Params = append(info.Params, entry.desc.Params...)
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Cables lists the current cables.
func (e *Engine) Cables() []Cable {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	out := make([]Cable, len(e.topo.cables))
	copy(out, e.topo.cables)
	return out
}

// Close tears the engine down: publishes a silent snapshot, waits out the
// render grace, and closes every prepared module. The engine rejects edits
// afterwards; RenderBlock keeps working and renders silence.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	e.rev++
	e.published.Store(emptySnapshot(e.rev, e.blockSize))
	e.waitRenderGrace(e.rev)

	var firstErr error
	for _, entry := range e.topo.modules {
		if !entry.prepared {
			continue
		}
		if err := entry.mod.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.topo = newTopology()
	e.logger.Info("Engine closed")
	return firstErr
}
