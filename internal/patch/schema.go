package patch

import (
	"github.com/hashicorp/hcl/v2"
)

// ParamsBlock holds the raw attribute body of a module's params block. The
// attributes are type-dispatched during translation: numbers become
// parameters, strings become options.
type ParamsBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// ModuleBlock represents a `module` block from a patch file. It declares one
// module instance of a registered type.
type ModuleBlock struct {
	Type   string       `hcl:"module_type,label"`
	Name   string       `hcl:"instance_name,label"`
	Params *ParamsBlock `hcl:"params,block"`
}

// CableBlock represents a `cable` block connecting one output pin to one
// input pin, both in module.pin form.
type CableBlock struct {
	From string `hcl:"from"`
	To   string `hcl:"to"`
}

// TransportBlock represents the optional `transport` block. Every field is a
// pointer so a patch only moves the controls it actually names.
type TransportBlock struct {
	BPM      *float64 `hcl:"bpm,optional"`
	Division *string  `hcl:"division,optional"`
	Playing  *bool    `hcl:"playing,optional"`
	Master   *string  `hcl:"master,optional"`
}

// fileRoot decodes all top-level blocks of one patch file.
type fileRoot struct {
	Modules   []*ModuleBlock  `hcl:"module,block"`
	Cables    []*CableBlock   `hcl:"cable,block"`
	Transport *TransportBlock `hcl:"transport,block"`
	Remain    hcl.Body        `hcl:",remain"`
}
