// Package module defines the contract between the engine and the DSP modules
// it hosts. A module is a unit of signal processing with named pins, named
// parameters, and a strict threading contract:
//
//   - Describe and Prepare run on the control plane, during a topology
//     commit. Prepare may allocate, open files, and start worker goroutines.
//   - SetTimingInfo and Process run on the render thread, once per block, in
//     that order. They must not allocate, must not block on locks of
//     unbounded duration, and must not perform I/O.
//   - Close runs on the control plane after the render thread can no longer
//     see the module.
//
// Audio and control signals are the same thing: a []float32 per pin per
// block. What a pin means is the module's business.
package module

import (
	"github.com/Cignor/Collider-sub010/internal/transport"
)

// StreamInfo tells a module the stream geometry it must prepare for.
type StreamInfo struct {
	SampleRate float64
	BlockSize  int
}

// Pin is one named input or output. Every pin carries one mono stream.
type Pin struct {
	Name string
}

// Param describes one automatable parameter. Values are float64 and the
// engine clamps writes to [Min, Max].
//
// Structural marks parameters whose value changes the pin or parameter
// layout, such as a mixer's input count. Changing a structural parameter
// replaces the running instance during the commit instead of updating it in
// place, because a live instance cannot safely re-shape itself under the
// render thread.
type Param struct {
	ID         string
	Name       string
	Min        float64
	Max        float64
	Default    float64
	Structural bool
}

// Option is a string-valued setting consumed at Prepare time, such as a
// sample file path. Options are not automatable; changing one replaces the
// running instance.
type Option struct {
	ID      string
	Default string
}

// Route declares that a parameter is overridden by an input pin whenever that
// pin has at least one cable. The engine resolves routing at commit time:
// while the pin is connected, the module observes the signal value instead of
// the stored parameter, and the stored value reappears untouched when the pin
// is disconnected again.
type Route struct {
	ParamID string
	Input   string
}

// Descriptor is a module's current external shape. The engine recomputes it
// during every commit, so the shape may depend on current parameter values
// (dynamic pin counts). Describe must be pure and cheap.
type Descriptor struct {
	Inputs  []Pin
	Outputs []Pin
	Params  []Param
	Options []Option
	Routes  []Route
}

// Config carries the instance's current parameter values and options into
// Describe and Prepare.
type Config struct {
	Params  map[string]float64
	Options map[string]string
}

// Param returns the configured value for id, or def when unset.
func (c Config) Param(id string, def float64) float64 {
	if v, ok := c.Params[id]; ok {
		return v
	}
	return def
}

// Option returns the configured option for id, or def when unset.
func (c Config) Option(id, def string) string {
	if v, ok := c.Options[id]; ok && v != "" {
		return v
	}
	return def
}

// Module is implemented by every processing unit the engine can host.
type Module interface {
	// Describe reports the module's shape for the given configuration.
	Describe(cfg Config) Descriptor

	// Prepare readies the instance for rendering: allocate buffers, decode
	// files, build voices. It is called on the control plane before the
	// instance is published to the render thread, and again (on a fresh
	// instance) whenever a structural parameter or option changes.
	Prepare(info StreamInfo, cfg Config) error

	// SetTimingInfo hands the module the block's timing state. The engine
	// calls it exactly once per block, before Process, on every running
	// module in the snapshot. It is the only sanctioned way to learn the transport
	// position; modules must not cache timing across blocks except via the
	// state they derive here.
	SetTimingInfo(t transport.State)

	// Process renders one block. Render thread rules apply: no allocation,
	// no unbounded locking, no I/O.
	Process(pc *ProcessContext)

	// Close releases the instance's resources. The engine guarantees the
	// render thread can no longer reach the instance.
	Close() error
}

// InputIndex returns the position of a named input pin, or -1.
func (d Descriptor) InputIndex(name string) int {
	for i, p := range d.Inputs {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// OutputIndex returns the position of a named output pin, or -1.
func (d Descriptor) OutputIndex(name string) int {
	for i, p := range d.Outputs {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// ParamIndex returns the position of a parameter by ID, or -1.
func (d Descriptor) ParamIndex(id string) int {
	for i, p := range d.Params {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// FindParam returns the parameter metadata by ID.
func (d Descriptor) FindParam(id string) (Param, bool) {
	if i := d.ParamIndex(id); i >= 0 {
		return d.Params[i], true
	}
	return Param{}, false
}

// SameLayout reports whether two descriptors expose identical pin layouts.
// The engine uses it to decide whether a running instance can absorb a
// parameter change in place or must be replaced.
func (d Descriptor) SameLayout(other Descriptor) bool {
	if len(d.Inputs) != len(other.Inputs) || len(d.Outputs) != len(other.Outputs) {
		return false
	}
	for i := range d.Inputs {
		if d.Inputs[i].Name != other.Inputs[i].Name {
			return false
		}
	}
	for i := range d.Outputs {
		if d.Outputs[i].Name != other.Outputs[i].Name {
			return false
		}
	}
	return true
}
