package engine

import (
	"errors"
	"fmt"
)

// Sentinel causes for structural rejection. Callers match with errors.Is.
var (
	ErrUnknownModule = errors.New("unknown module")
	ErrUnknownType   = errors.New("unknown module type")
	ErrUnknownPin    = errors.New("unknown pin")
	ErrUnknownParam  = errors.New("unknown parameter")
	ErrDuplicateID   = errors.New("duplicate module id")
	ErrInvalidID     = errors.New("invalid module id")
	ErrNotTimeline   = errors.New("module is not a timeline source")
	ErrEngineClosed  = errors.New("engine closed")
)

// StructuralError rejects an edit batch before anything is published. The
// running topology is untouched; the caller fixes the batch and retries.
type StructuralError struct {
	// Op names the offending edit, e.g. "connect osc1.out -> flt.in".
	Op  string
	Err error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("structural error in %s: %v", e.Op, e.Err)
}

func (e *StructuralError) Unwrap() error { return e.Err }

func structuralf(cause error, format string, args ...any) *StructuralError {
	return &StructuralError{Op: fmt.Sprintf(format, args...), Err: cause}
}

// PreparationError reports that a module failed Prepare during a commit. The
// commit itself has landed: the failed module is present but bypassed, and
// the rest of the graph is live. Apply returns these joined, so a caller can
// collect every bypassed module from one batch with errors.As in a loop or
// by unwrapping the join.
type PreparationError struct {
	ModuleID string
	Err      error
}

func (e *PreparationError) Error() string {
	return fmt.Sprintf("module %q failed to prepare and was bypassed: %v", e.ModuleID, e.Err)
}

func (e *PreparationError) Unwrap() error { return e.Err }
