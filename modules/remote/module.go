// Package remote bridges a patch to an external control surface over
// socket.io.
//
// Fader names declared in the options become output pins. Incoming "fader"
// events land in lock-free latches; the render thread slews each output
// toward its latch so a jumpy surface never produces zipper noise. Incoming
// "transport" events drive the engine clock through the bound controller,
// and a background emitter reports the transport state back to the surface a
// few times per second.
package remote

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/Cignor/Collider-sub010/internal/module"
	"github.com/Cignor/Collider-sub010/internal/registry"
	"github.com/Cignor/Collider-sub010/internal/transport"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the module type with the engine registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterModule("remote", func() module.Module { return New() })
}

const pSlew = 0

const (
	faderEvent     = "fader"
	transportEvent = "transport"
	rhythmEvent    = "rhythm"

	defaultNamespace = "/"
	emitInterval     = 500 * time.Millisecond
)

// Bridge is the socket.io control bridge.
type Bridge struct {
	ctl        transport.Controller
	sampleRate float64
	host       string

	names  []string
	levels []atomic.Uint64
	actual []float32

	manager *socket.Manager
	io      *socket.Socket

	connected atomic.Bool
	playState atomic.Bool
	bpmBits   atomic.Uint64
	beatBits  atomic.Uint64

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a Bridge.
func New() *Bridge {
	return &Bridge{}
}

// faderNames parses the comma-separated faders option.
func faderNames(cfg module.Config) []string {
	var names []string
	for _, part := range strings.Split(cfg.Option("faders", ""), ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Describe implements module.Module.
func (b *Bridge) Describe(cfg module.Config) module.Descriptor {
	names := faderNames(cfg)
	outs := make([]module.Pin, len(names))
	for i, name := range names {
		outs[i] = module.Pin{Name: name}
	}
	return module.Descriptor{
		Outputs: outs,
		Params: []module.Param{
			{ID: "slew", Name: "Fader Slew", Min: 0, Max: 1, Default: 0.02},
		},
		Options: []module.Option{
			{ID: "url"},
			{ID: "namespace", Default: defaultNamespace},
			{ID: "faders"},
		},
	}
}

// BindTransport implements module.TransportBinder.
func (b *Bridge) BindTransport(ctl transport.Controller) {
	b.ctl = ctl
}

// Prepare implements module.Module.
func (b *Bridge) Prepare(info module.StreamInfo, cfg module.Config) error {
	raw := cfg.Option("url", "")
	if raw == "" {
		return fmt.Errorf("remote: url option is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("remote: parse url: %w", err)
	}

	b.sampleRate = info.SampleRate
	b.host = parsed.Host
	b.names = faderNames(cfg)
	b.levels = make([]atomic.Uint64, len(b.names))
	b.actual = make([]float32, len(b.names))

	opts := socket.DefaultOptions()
	opts.SetPath(parsed.Path)
	opts.SetTransports(types.NewSet(transports.WebSocket))

	b.manager = socket.NewManager(fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host), opts)
	b.io = b.manager.Socket(cfg.Option("namespace", defaultNamespace), opts)

	b.io.On(types.EventName("connect"), func(...any) {
		b.connected.Store(true)
	})
	b.io.On(types.EventName("disconnect"), func(...any) {
		b.connected.Store(false)
	})
	b.io.On(types.EventName(faderEvent), func(data ...any) {
		b.onFader(data)
	})
	b.io.On(types.EventName(transportEvent), func(data ...any) {
		b.onTransport(data)
	})

	b.io.Connect()

	b.done = make(chan struct{})
	b.wg.Add(1)
	go b.emitLoop()
	return nil
}

// onFader latches a fader value by name. Unknown names and malformed
// payloads are dropped.
func (b *Bridge) onFader(data []any) {
	if len(data) == 0 {
		return
	}
	m, ok := data[0].(map[string]any)
	if !ok {
		return
	}
	name, _ := m["name"].(string)
	v, ok := m["value"].(float64)
	if !ok {
		return
	}
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	for i, n := range b.names {
		if n == name {
			b.levels[i].Store(math.Float64bits(v))
			return
		}
	}
}

// onTransport forwards a transport command to the bound controller.
func (b *Bridge) onTransport(data []any) {
	if b.ctl == nil || len(data) == 0 {
		return
	}
	m, ok := data[0].(map[string]any)
	if !ok {
		return
	}
	cmd, _ := m["command"].(string)
	v, _ := m["value"].(float64)
	switch cmd {
	case "play":
		b.ctl.Play()
	case "pause":
		b.ctl.Pause()
	case "stop":
		b.ctl.Stop()
	case "reset":
		b.ctl.Reset()
	case "bpm":
		b.ctl.SetBPM(v)
	case "division":
		b.ctl.SetDivision(int(v))
	}
}

func (b *Bridge) emitLoop() {
	defer b.wg.Done()
	tick := time.NewTicker(emitInterval)
	defer tick.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-tick.C:
			if !b.connected.Load() {
				continue
			}
			b.io.Emit(rhythmEvent, map[string]any{
				"bpm":     math.Float64frombits(b.bpmBits.Load()),
				"playing": b.playState.Load(),
				"beat":    math.Float64frombits(b.beatBits.Load()),
			})
		}
	}
}

// SetTimingInfo implements module.Module.
func (b *Bridge) SetTimingInfo(st transport.State) {
	b.playState.Store(st.Playing)
	b.bpmBits.Store(math.Float64bits(st.BPM))
	b.beatBits.Store(math.Float64bits(st.PositionBeats))
}

// Process implements module.Module.
func (b *Bridge) Process(pc *module.ProcessContext) {
	step := float32(1)
	if slew := pc.Param(pSlew); slew > 0 {
		step = float32(1 / (slew * b.sampleRate))
	}
	for i := range b.levels {
		target := float32(math.Float64frombits(b.levels[i].Load()))
		out := pc.Out[i]
		cur := b.actual[i]
		for j := 0; j < pc.Frames; j++ {
			switch {
			case cur < target:
				cur += step
				if cur > target {
					cur = target
				}
			case cur > target:
				cur -= step
				if cur < target {
					cur = target
				}
			}
			out[j] = cur
		}
		b.actual[i] = cur
	}
}

// RhythmInfo implements module.RhythmProvider. The bridge claims no tempo of
// its own; the useful signal is whether the surface is connected.
func (b *Bridge) RhythmInfo() transport.RhythmInfo {
	return transport.RhythmInfo{
		DisplayName: fmt.Sprintf("remote %s", b.host),
		IsActive:    b.connected.Load(),
		IsSynced:    true,
		SourceType:  "remote",
	}
}

// Close implements module.Module.
func (b *Bridge) Close() error {
	if b.done != nil {
		close(b.done)
		b.wg.Wait()
	}
	if b.io != nil {
		b.io.Disconnect()
	}
	return nil
}
