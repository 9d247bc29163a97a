// Package mididev captures MIDI from hardware inputs and hands it to the
// engine as device-tagged per-block batches.
//
// Capture runs on its own goroutine, reading every open portmidi input and
// appending to a pending buffer under a mutex. The render thread calls
// Collect once per block, which swaps the pending buffer for the drained one
// under the same mutex. Both critical sections are a few appends or a slice
// swap, so the render thread's wait is bounded regardless of MIDI traffic.
package mididev

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rakyll/portmidi"

	"github.com/Cignor/Collider-sub010/internal/ctxlog"
	"github.com/Cignor/Collider-sub010/internal/midimsg"
)

// Source is what the engine sees: a per-block batch supplier. Collect
// returns every event captured since the previous call; the returned slice
// is valid until the next Collect.
type Source interface {
	Collect() []midimsg.DeviceEvent
}

const (
	// pendingCap bounds the capture buffer. A stalled renderer drops
	// events past this rather than growing without bound.
	pendingCap = 1024
	// readBatch is the most events pulled from one stream per poll.
	readBatch = 64
	// pollInterval paces the capture loop. 2ms keeps worst-case added
	// latency under half a block at typical block sizes.
	pollInterval = 2 * time.Millisecond
	// rescanInterval paces the hardware rescan.
	rescanInterval = 2 * time.Second
)

type openInput struct {
	stream *portmidi.Stream
	info   midimsg.DeviceInfo
}

// Manager owns the portmidi lifecycle and the capture goroutine.
type Manager struct {
	mu      sync.Mutex
	pending []midimsg.DeviceEvent
	drained []midimsg.DeviceEvent
	inputs  []openInput
	devices []midimsg.DeviceInfo

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager initializes portmidi, opens every available input, and starts
// capturing. It returns an error when the MIDI backend itself cannot
// initialize; zero available inputs is not an error.
func NewManager(ctx context.Context) (*Manager, error) {
	logger := ctxlog.FromContext(ctx)
	if err := portmidi.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize MIDI backend: %w", err)
	}

	m := &Manager{
		pending: make([]midimsg.DeviceEvent, 0, pendingCap),
		drained: make([]midimsg.DeviceEvent, 0, pendingCap),
		done:    make(chan struct{}),
	}
	m.openAll(ctx)
	if len(m.inputs) == 0 {
		logger.Warn("No MIDI input devices found")
	} else {
		for _, in := range m.inputs {
			logger.Info("🎹 MIDI input opened", "device", in.info.String())
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	go m.captureLoop(loopCtx)
	return m, nil
}

// openAll scans the hardware and opens every input port. Caller must not
// hold m.mu for the portmidi calls, so this takes it only to swap the lists.
func (m *Manager) openAll(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	count := portmidi.CountDevices()

	var inputs []openInput
	var devices []midimsg.DeviceInfo
	for i := 0; i < count; i++ {
		id := portmidi.DeviceID(i)
		info := portmidi.Info(id)
		if info == nil || !info.IsInputAvailable {
			continue
		}
		stream, err := portmidi.NewInputStream(id, readBatch)
		if err != nil {
			logger.Warn("Failed to open MIDI input, skipping", "device", info.Name, "error", err)
			continue
		}
		di := midimsg.DeviceInfo{
			ID:    fmt.Sprintf("%d:%s", i, info.Name),
			Name:  info.Name,
			Index: i,
		}
		inputs = append(inputs, openInput{stream: stream, info: di})
		devices = append(devices, di)
	}

	m.mu.Lock()
	m.inputs = inputs
	m.devices = devices
	m.mu.Unlock()
}

// captureLoop polls the open streams and rescans the hardware when the port
// count changes, which is the closest portmidi gets to hot-plug awareness.
func (m *Manager) captureLoop(ctx context.Context) {
	defer close(m.done)
	logger := ctxlog.FromContext(ctx)

	poll := time.NewTicker(pollInterval)
	defer poll.Stop()
	rescan := time.NewTicker(rescanInterval)
	defer rescan.Stop()

	knownCount := portmidi.CountDevices()
	for {
		select {
		case <-ctx.Done():
			return
		case <-rescan.C:
			if c := portmidi.CountDevices(); c != knownCount {
				logger.Info("MIDI device count changed, rescanning", "before", knownCount, "after", c)
				knownCount = c
				m.reopen(ctx)
			}
		case <-poll.C:
			m.pollOnce()
		}
	}
}

// pollOnce reads every stream and appends captured events to pending.
func (m *Manager) pollOnce() {
	m.mu.Lock()
	inputs := m.inputs
	m.mu.Unlock()

	for _, in := range inputs {
		events, err := in.stream.Read(readBatch)
		if err != nil || len(events) == 0 {
			continue
		}
		m.mu.Lock()
		for _, ev := range events {
			if len(m.pending) >= pendingCap {
				break
			}
			m.pending = append(m.pending, midimsg.DeviceEvent{
				Device: in.info,
				Message: midimsg.Message{
					Data: [3]byte{byte(ev.Status), byte(ev.Data1), byte(ev.Data2)},
				},
			})
		}
		m.mu.Unlock()
	}
}

// reopen tears the backend down and brings it back up to pick up new ports.
// The render thread is unaffected; it only ever sees the pending buffer.
func (m *Manager) reopen(ctx context.Context) {
	m.mu.Lock()
	inputs := m.inputs
	m.inputs = nil
	m.mu.Unlock()

	for _, in := range inputs {
		_ = in.stream.Close()
	}
	_ = portmidi.Terminate()
	if err := portmidi.Initialize(); err != nil {
		ctxlog.FromContext(ctx).Error("MIDI backend failed to reinitialize", "error", err)
		return
	}
	m.openAll(ctx)
}

// Collect implements Source. Called from the render thread.
func (m *Manager) Collect() []midimsg.DeviceEvent {
	m.mu.Lock()
	m.pending, m.drained = m.drained[:0], m.pending
	m.mu.Unlock()
	return m.drained
}

// Devices returns a snapshot of the currently open input devices.
func (m *Manager) Devices() []midimsg.DeviceInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]midimsg.DeviceInfo, len(m.devices))
	copy(out, m.devices)
	return out
}

// Close stops capture and releases the MIDI backend.
func (m *Manager) Close() error {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
	m.mu.Lock()
	inputs := m.inputs
	m.inputs = nil
	m.mu.Unlock()
	for _, in := range inputs {
		_ = in.stream.Close()
	}
	return portmidi.Terminate()
}
