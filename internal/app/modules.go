package app

import (
	"github.com/Cignor/Collider-sub010/internal/registry"
	"github.com/Cignor/Collider-sub010/modules/filter"
	"github.com/Cignor/Collider-sub010/modules/lfo"
	"github.com/Cignor/Collider-sub010/modules/midibridge"
	"github.com/Cignor/Collider-sub010/modules/mixer"
	"github.com/Cignor/Collider-sub010/modules/oscillator"
	"github.com/Cignor/Collider-sub010/modules/output"
	"github.com/Cignor/Collider-sub010/modules/pitchtrack"
	"github.com/Cignor/Collider-sub010/modules/polysynth"
	"github.com/Cignor/Collider-sub010/modules/remote"
	"github.com/Cignor/Collider-sub010/modules/sampler"
	"github.com/Cignor/Collider-sub010/modules/scriptcv"
	"github.com/Cignor/Collider-sub010/modules/sequencer"
	"github.com/Cignor/Collider-sub010/modules/vca"
)

// coreModules is the definitive list of all module types that are compiled
// into the collider binary.
var coreModules = []registry.Module{
	&filter.Module{},
	&lfo.Module{},
	&midibridge.Module{},
	&mixer.Module{},
	&oscillator.Module{},
	&output.Module{},
	&pitchtrack.Module{},
	&polysynth.Module{},
	&remote.Module{},
	&sampler.Module{},
	&scriptcv.Module{},
	&sequencer.Module{},
	&vca.Module{},
}
