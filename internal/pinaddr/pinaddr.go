// Package pinaddr defines the structured address of a single module pin.
//
// The canonical string form is "module.pin", where both parts are lower_snake
// identifiers. Cables in patch files and topology edits reference pins by this
// form, and every address survives a Parse/String round trip unchanged.
package pinaddr

import (
	"fmt"
	"strings"
)

// Address identifies one pin on one module instance.
type Address struct {
	// Module is the instance name of the module, e.g. "osc1".
	Module string
	// Pin is the pin name within that module, e.g. "out" or "in_3".
	Pin string
}

// Parse converts the canonical "module.pin" form into an Address.
func Parse(s string) (Address, error) {
	module, pin, ok := strings.Cut(s, ".")
	if !ok {
		return Address{}, fmt.Errorf("invalid pin address %q: expected form \"module.pin\"", s)
	}
	if err := validIdent(module); err != nil {
		return Address{}, fmt.Errorf("invalid pin address %q: bad module name: %w", s, err)
	}
	if err := validIdent(pin); err != nil {
		return Address{}, fmt.Errorf("invalid pin address %q: bad pin name: %w", s, err)
	}
	return Address{Module: module, Pin: pin}, nil
}

// MustParse is Parse for addresses known to be valid at compile time, such as
// test fixtures. It panics on error.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the canonical "module.pin" form.
func (a Address) String() string {
	return a.Module + "." + a.Pin
}

// IsZero reports whether the address is the empty value.
func (a Address) IsZero() bool {
	return a.Module == "" && a.Pin == ""
}

// ValidName reports whether s is usable as a module or pin name on its own.
func ValidName(s string) error {
	return validIdent(s)
}

// validIdent checks one name component. Identifiers are non-empty, start with
// a letter, and contain only letters, digits, and underscores. Dots are the
// separator between components and may not appear inside one.
func validIdent(s string) error {
	if s == "" {
		return fmt.Errorf("empty identifier")
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r == '_', r >= '0' && r <= '9':
			if i == 0 {
				return fmt.Errorf("identifier %q must start with a letter", s)
			}
		default:
			return fmt.Errorf("identifier %q contains invalid character %q", s, r)
		}
	}
	return nil
}
