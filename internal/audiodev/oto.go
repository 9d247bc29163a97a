package audiodev

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// OtoDriver plays through the system audio device via oto. The oto player
// pulls bytes with Read on its own goroutine; each Read drains the current
// rendered block and renders the next one when the cursor wraps, converting
// float32 samples to signed 16-bit little endian on the way out.
type OtoDriver struct {
	sampleRate  int
	blockFrames int

	mu     sync.Mutex
	otoCtx *oto.Context
	player *oto.Player
	render RenderFunc

	// Read-side state. Only the player goroutine touches these after Start.
	block  []float32
	cursor int
}

// NewOtoDriver builds a driver for the given stream geometry. Nothing is
// opened until Start.
func NewOtoDriver(sampleRate, blockFrames int) *OtoDriver {
	return &OtoDriver{
		sampleRate:  sampleRate,
		blockFrames: blockFrames,
		block:       make([]float32, blockFrames*2),
		cursor:      blockFrames * 2,
	}
}

// Start opens the device and begins playback.
func (d *OtoDriver) Start(ctx context.Context, render RenderFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player != nil {
		return fmt.Errorf("audio driver already started")
	}

	op := &oto.NewContextOptions{
		SampleRate:   d.sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	}
	// Keep the device buffer a few blocks deep: enough to ride out
	// scheduling jitter, shallow enough to stay playable live.
	op.BufferSize = time.Duration(d.blockFrames*4) * time.Second / time.Duration(d.sampleRate)

	otoCtx, ready, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to open audio context: %w", err)
	}
	<-ready

	d.otoCtx = otoCtx
	d.render = render
	d.player = otoCtx.NewPlayer(d)
	d.player.Play()

	// Tie the device lifetime to the context so shutdown does not depend on
	// every caller remembering Stop.
	go func() {
		<-ctx.Done()
		_ = d.Stop()
	}()
	return nil
}

// Read implements io.Reader for the oto player. It is the audio pull path.
func (d *OtoDriver) Read(p []byte) (int, error) {
	// Whole samples only; oto always asks for even byte counts, but guard
	// anyway so a short read can never split a sample.
	n := len(p) / 2 * 2
	for i := 0; i < n; i += 2 {
		if d.cursor >= len(d.block) {
			d.render(d.block)
			d.cursor = 0
		}
		s := d.block[d.cursor]
		d.cursor++

		// Clamp and widen to int16.
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		p[i] = byte(v)
		p[i+1] = byte(v >> 8)
	}
	return n, nil
}

// Stop closes the player and the device context is left to wind down with
// the process, matching oto's lifecycle model.
func (d *OtoDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return nil
	}
	err := d.player.Close()
	d.player = nil
	d.render = nil
	return err
}
