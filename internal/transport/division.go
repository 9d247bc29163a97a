package transport

// Division is one entry of the patch-wide note length table. Beats is the
// length in quarter-note beats, so "1/4" is 1 and a dotted eighth is 0.75.
type Division struct {
	Name  string
	Beats float64
}

// Divisions is the fixed note length table. State.DivisionIndex indexes it.
// The order is stable; persisted patches rely on it.
var Divisions = []Division{
	{"1/1", 4},
	{"1/2", 2},
	{"1/4", 1},
	{"1/8", 0.5},
	{"1/16", 0.25},
	{"1/32", 0.125},
	{"1/8t", 1.0 / 3},
	{"1/16t", 1.0 / 6},
	{"1/8d", 0.75},
	{"1/16d", 0.375},
}

// DefaultDivisionIndex is "1/8".
const DefaultDivisionIndex = 3

// FindDivision returns the table index for a division name.
func FindDivision(name string) (int, bool) {
	for i, d := range Divisions {
		if d.Name == name {
			return i, true
		}
	}
	return 0, false
}

// DivisionAt returns the division for an index, clamping out-of-range values
// to the default so a bad index can never panic the render thread.
func DivisionAt(index int) Division {
	if index < 0 || index >= len(Divisions) {
		return Divisions[DefaultDivisionIndex]
	}
	return Divisions[index]
}
