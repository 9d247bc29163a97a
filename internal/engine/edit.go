package engine

import (
	"github.com/Cignor/Collider-sub010/internal/pinaddr"
)

// Edit is one topology mutation. A batch of edits passed to Apply commits
// atomically: either every edit lands in one published snapshot or the whole
// batch is rejected. Batching rapid edits is also how commit work coalesces;
// fifty parameter nudges in one Apply cost one recompute.
type Edit interface {
	isEdit()
}

// AddModule instantiates a new module. An empty ID asks the engine to
// generate one from the type name.
type AddModule struct {
	Type string
	ID   string
	// Params seeds initial parameter values by ID.
	Params map[string]float64
	// Options seeds string options, such as a sample file path.
	Options map[string]string
}

// RemoveModule deletes a module and every cable touching it. If the module
// is the timeline master, the transport reverts to the internal clock in the
// same commit.
type RemoveModule struct {
	ID string
}

// Connect adds a cable from an output pin to an input pin. Fan-out and
// fan-in are both legal; fan-in sums at the input.
type Connect struct {
	From pinaddr.Address
	To   pinaddr.Address
}

// Disconnect removes a cable. Removing a cable that does not exist is a
// no-op as long as both modules do.
type Disconnect struct {
	From pinaddr.Address
	To   pinaddr.Address
}

// SetParam updates one parameter value, clamped to the parameter's range.
// Changing a structural parameter (one that reshapes the pin layout)
// replaces the running instance within the commit.
type SetParam struct {
	ModuleID string
	ParamID  string
	Value    float64
}

// SetOption updates one string option. Options feed Prepare, so this always
// replaces the running instance within the commit.
type SetOption struct {
	ModuleID string
	OptionID string
	Value    string
}

// SetTimelineMaster elects the named module as timeline master. The module
// must publish a timeline. An empty ID hands time back to the internal
// clock.
type SetTimelineMaster struct {
	ID string
}

func (AddModule) isEdit()         {}
func (RemoveModule) isEdit()      {}
func (Connect) isEdit()           {}
func (Disconnect) isEdit()        {}
func (SetParam) isEdit()          {}
func (SetOption) isEdit()         {}
func (SetTimelineMaster) isEdit() {}
