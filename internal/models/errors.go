package models

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds, matched through errors.Is.
var (
	// ErrValidation indicates malformed or out-of-range input; the run never started.
	ErrValidation = errors.New("validation error")

	// ErrNumericInstability indicates a violated stability bound or non-finite field values.
	ErrNumericInstability = errors.New("numeric instability")

	// ErrIO indicates a failure reading or writing a dataset or configuration file.
	ErrIO = errors.New("io error")
)

// Kind names reported to users and exploration clients.
const (
	KindValidation  = "validation"
	KindInstability = "numeric_instability"
	KindIO          = "io"
	KindCanceled    = "canceled"
	KindInternal    = "internal"
)

// ValidationError describes one rejected input option.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s=%v: %s", e.Field, e.Value, e.Reason)
}

// Is reports ErrValidation as this error's kind.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// InstabilityError records where a run diverged or would diverge.
// Step is 0 when the bound was rejected before stepping.
type InstabilityError struct {
	Step   int
	Time   float64
	Reason string
}

func (e *InstabilityError) Error() string {
	if e.Step == 0 {
		return fmt.Sprintf("numeric instability: %s", e.Reason)
	}
	return fmt.Sprintf("numeric instability at step %d (t=%g): %s", e.Step, e.Time, e.Reason)
}

// Is reports ErrNumericInstability as this error's kind.
func (e *InstabilityError) Is(target error) bool {
	return target == ErrNumericInstability
}

// IOError wraps a filesystem failure with the affected path.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Is reports ErrIO as this error's kind.
func (e *IOError) Is(target error) bool {
	return target == ErrIO
}

// RunError attaches the offending parameter set to a failure.
type RunError struct {
	Params ParameterSet
	Err    error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run [%s]: %v", e.Params, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Kind classifies an error chain into a reported kind.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNumericInstability):
		return KindInstability
	case errors.Is(err, ErrIO):
		return KindIO
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}
