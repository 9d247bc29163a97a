// Package audiodev abstracts the audio output device behind a block-pull
// driver interface. The engine never talks to a sound API directly; it hands
// the driver a render callback and the driver decides when blocks are due.
//
// Two implementations ship: an oto-backed device driver for real playback and
// a headless driver for tests and offline rendering.
package audiodev

import "context"

// RenderFunc fills one block of interleaved stereo samples. len(out) is
// always 2*blockFrames for the block size the driver was built with. It is
// called from the driver's audio goroutine; implementations must follow
// render thread discipline.
type RenderFunc func(out []float32)

// Driver pulls rendered blocks and plays them.
type Driver interface {
	// Start begins pulling blocks through render. It returns once the
	// device is running; rendering continues in the background until Stop
	// or context cancellation.
	Start(ctx context.Context, render RenderFunc) error

	// Stop tears the device down. It is safe to call more than once.
	Stop() error
}
