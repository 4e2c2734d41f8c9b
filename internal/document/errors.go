package document

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("document not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrSeparationOfDuties = errors.New("separation of duties violation")
	ErrArtifactGeneration = errors.New("artifact generation failed")
	ErrSignatureMissing   = errors.New("signed artifact missing")
	ErrStorageConsistency = errors.New("storage consistency error")
	ErrInvalidInput       = errors.New("invalid input")
	ErrConflict           = errors.New("conflict")
	ErrLocked             = errors.New("document is locked by another transition")
)

// Denial is a policy or workflow rejection. Kind is ErrForbidden,
// ErrSeparationOfDuties, ErrInvalidTransition, or ErrInvalidInput for a
// missing mandatory reason.
type Denial struct {
	Kind   error
	Action string
	Reason string
}

func (d *Denial) Error() string {
	if d.Action == "" {
		return fmt.Sprintf("%v: %s", d.Kind, d.Reason)
	}
	return fmt.Sprintf("%s: %v: %s", d.Action, d.Kind, d.Reason)
}

func (d *Denial) Unwrap() error { return d.Kind }

// Is lets separation-of-duties denials match ErrForbidden as well.
func (d *Denial) Is(target error) bool {
	return target == ErrForbidden && d.Kind == ErrSeparationOfDuties
}

// Code is the short machine-readable denial kind.
func (d *Denial) Code() string {
	return ErrorCode(d.Kind)
}

// Deny builds a Denial.
func Deny(kind error, action, reason string) *Denial {
	return &Denial{Kind: kind, Action: action, Reason: reason}
}

// AsDenial extracts a Denial from err.
func AsDenial(err error) (*Denial, bool) {
	var d *Denial
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrSeparationOfDuties, "separation_of_duties"},
	{ErrForbidden, "forbidden"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrNotFound, "not_found"},
	{ErrArtifactGeneration, "artifact_generation"},
	{ErrSignatureMissing, "signature_missing"},
	{ErrStorageConsistency, "storage_consistency"},
	{ErrInvalidInput, "invalid_input"},
	{ErrConflict, "conflict"},
	{ErrLocked, "locked"},
}

// ErrorCode maps an error from the taxonomy to its short code, "internal"
// otherwise.
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
