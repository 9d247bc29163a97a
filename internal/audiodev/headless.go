package audiodev

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// HeadlessDriver renders without a sound device. In manual mode the caller
// advances time explicitly with Step, which is what deterministic tests want.
// With Realtime set, Start paces blocks with a wall clock ticker instead, so
// the engine can run on machines with no audio hardware at all.
type HeadlessDriver struct {
	sampleRate  int
	blockFrames int
	realtime    bool

	mu      sync.Mutex
	render  RenderFunc
	cancel  context.CancelFunc
	done    chan struct{}
	block   []float32
	stepped uint64

	// renderMu serializes block rendering; the engine requires a single
	// render thread even if Step and the pacing loop race.
	renderMu sync.Mutex
}

// HeadlessConfig configures a headless driver.
type HeadlessConfig struct {
	SampleRate  int
	BlockFrames int
	// Realtime paces rendering with a wall clock instead of manual Step.
	Realtime bool
}

// NewHeadlessDriver builds a headless driver.
func NewHeadlessDriver(cfg HeadlessConfig) *HeadlessDriver {
	return &HeadlessDriver{
		sampleRate:  cfg.SampleRate,
		blockFrames: cfg.BlockFrames,
		realtime:    cfg.Realtime,
		block:       make([]float32, cfg.BlockFrames*2),
	}
}

// Start arms the driver. In realtime mode it also launches the pacing loop.
func (d *HeadlessDriver) Start(ctx context.Context, render RenderFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.render != nil {
		return fmt.Errorf("headless driver already started")
	}
	d.render = render

	if d.realtime {
		loopCtx, cancel := context.WithCancel(ctx)
		d.cancel = cancel
		d.done = make(chan struct{})
		interval := time.Duration(d.blockFrames) * time.Second / time.Duration(d.sampleRate)
		go d.loop(loopCtx, interval)
	}
	return nil
}

func (d *HeadlessDriver) loop(ctx context.Context, interval time.Duration) {
	defer close(d.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Step(1)
		}
	}
}

// Step renders n blocks immediately. It is a no-op before Start or after
// Stop.
func (d *HeadlessDriver) Step(n int) {
	d.mu.Lock()
	render := d.render
	d.mu.Unlock()
	if render == nil {
		return
	}
	for i := 0; i < n; i++ {
		d.renderMu.Lock()
		render(d.block)
		d.renderMu.Unlock()
		d.mu.Lock()
		d.stepped++
		d.mu.Unlock()
	}
}

// Blocks reports how many blocks have been rendered.
func (d *HeadlessDriver) Blocks() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stepped
}

// Stop disarms the driver and, in realtime mode, waits for the pacing loop
// to exit.
func (d *HeadlessDriver) Stop() error {
	d.mu.Lock()
	cancel := d.cancel
	done := d.done
	d.cancel = nil
	d.render = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}
